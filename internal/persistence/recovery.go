package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/LeoVS09/simple-yield-farm/internal/core"
	"github.com/LeoVS09/simple-yield-farm/internal/event"
	"github.com/LeoVS09/simple-yield-farm/internal/observability"

	"github.com/rs/zerolog"
)

const replayPageSize = 1000

// Decoder parses a logged command payload.
type Decoder func(eventType event.EventType, payload []byte) (event.Event, error)

// RecoveryReport summarises a startup recovery.
type RecoveryReport struct {
	SnapshotSequence int64 // -1 when starting cold
	Replayed         int64
	NextSequence     int64
}

// Recover loads the latest verified snapshot into proc and replays every
// logged command after it. Any divergence from the logged hash chain is
// returned as an error and the processor must not be used.
func Recover(
	ctx context.Context,
	sm *SnapshotManager,
	proc *core.Processor,
	decode Decoder,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) (RecoveryReport, error) {
	start := time.Now()
	report := RecoveryReport{SnapshotSequence: -1}

	snap, err := sm.LoadLatestSnapshot(ctx)
	if err != nil {
		return report, err
	}
	if snap != nil {
		state, err := snap.State()
		if err != nil {
			return report, err
		}
		if err := proc.RestoreFromSnapshot(state); err != nil {
			return report, err
		}
		report.SnapshotSequence = snap.Sequence
	} else {
		logger.Info().Msg("no snapshot found, replaying from sequence 0")
	}

	from := proc.Sequence()
	for {
		rows, err := sm.LoadEventsFrom(ctx, from, replayPageSize)
		if err != nil {
			return report, fmt.Errorf("load events from %d: %w", from, err)
		}

		for _, row := range rows {
			env, err := row.Envelope()
			if err != nil {
				return report, err
			}
			evt, err := decode(env.EventType, env.Payload)
			if err != nil {
				return report, fmt.Errorf("decode sequence %d: %w", env.Sequence, err)
			}
			if err := proc.Replay(ctx, env, evt); err != nil {
				return report, err
			}
			report.Replayed++
			from = row.Sequence + 1
		}

		if len(rows) < replayPageSize {
			break
		}
	}

	report.NextSequence = proc.Sequence()
	if metrics != nil {
		metrics.ReplayEventsTotal.Add(float64(report.Replayed))
		metrics.ReplayDuration.Set(time.Since(start).Seconds())
	}
	logger.Info().
		Int64("snapshot_seq", report.SnapshotSequence).
		Int64("replayed", report.Replayed).
		Int64("next_seq", report.NextSequence).
		Dur("took", time.Since(start)).
		Msg("recovery complete")
	return report, nil
}
