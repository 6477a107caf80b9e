package persistence

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/LeoVS09/simple-yield-farm/internal/core"
	"github.com/LeoVS09/simple-yield-farm/internal/observability"

	"github.com/rs/zerolog"
)

const maxBackoff = 30 * time.Second

// PersistenceWorker drains the persist channel and batch-writes to Postgres.
// The processor blocks on this channel, so if the worker falls behind the
// processor stalls and nothing is lost.
type PersistenceWorker struct {
	db           *sql.DB
	writer       *EventLogWriter
	snapshots    *SnapshotManager
	inputChan    <-chan core.CoreOutput
	committed    chan<- core.CoreOutput
	batchSize    int
	flushTimeout time.Duration
	backoff      time.Duration
	metrics      *observability.Metrics
	logger       zerolog.Logger

	pending     []core.CoreOutput
	lastSeq     int64
	lastHash    []byte
	haveLastSeq bool
}

// NewPersistenceWorker builds the worker. committed, when not nil, receives
// every output after its transaction commits (non-blocking, drops when full).
func NewPersistenceWorker(
	db *sql.DB,
	inputChan <-chan core.CoreOutput,
	committed chan<- core.CoreOutput,
	batchSize int,
	flushTimeout time.Duration,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) *PersistenceWorker {
	return &PersistenceWorker{
		db:           db,
		writer:       NewEventLogWriter(),
		snapshots:    NewSnapshotManager(db),
		inputChan:    inputChan,
		committed:    committed,
		batchSize:    batchSize,
		flushTimeout: flushTimeout,
		backoff:      100 * time.Millisecond,
		metrics:      metrics,
		logger:       logger,
		pending:      make([]core.CoreOutput, 0, batchSize),
	}
}

// Run batches incoming outputs and flushes either when the batch is full
// or the flush timeout expires. It returns once inputChan is closed and
// drained, or when ctx is cancelled (after a final flush).
func (pw *PersistenceWorker) Run(ctx context.Context) error {
	timer := time.NewTimer(pw.flushTimeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			if err := pw.flushWithRetry(context.WithoutCancel(ctx)); err != nil {
				pw.logger.Error().Err(err).Msg("final flush failed")
			}
			return ctx.Err()

		case output, ok := <-pw.inputChan:
			if !ok {
				return pw.flushWithRetry(ctx)
			}

			if output.Snapshot != nil {
				if err := pw.flushWithRetry(ctx); err != nil {
					return err
				}
				pw.saveSnapshot(ctx, output.Snapshot)
				continue
			}

			pw.pending = append(pw.pending, output)
			if len(pw.pending) >= pw.batchSize {
				if err := pw.flushWithRetry(ctx); err != nil {
					return err
				}
				timer.Reset(pw.flushTimeout)
			}

		case <-timer.C:
			if err := pw.flushWithRetry(ctx); err != nil {
				return err
			}
			timer.Reset(pw.flushTimeout)
		}
	}
}

// flushWithRetry writes pending outputs, retrying with exponential backoff
// until it succeeds or ctx is cancelled. On cancellation it makes one last
// attempt without the deadline.
func (pw *PersistenceWorker) flushWithRetry(ctx context.Context) error {
	if len(pw.pending) == 0 {
		return nil
	}

	backoff := pw.backoff
	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			pw.logger.Warn().
				Int("attempt", attempt).
				Dur("backoff", backoff).
				Int("events", len(pw.pending)).
				Msg("persistence retry")
			if pw.metrics != nil {
				pw.metrics.PersistRetry.Inc()
			}

			select {
			case <-ctx.Done():
				if err := pw.flush(context.WithoutCancel(ctx)); err != nil {
					return fmt.Errorf("final flush on shutdown failed: %w", err)
				}
				return nil
			case <-time.After(backoff):
			}
			backoff = min(backoff*2, maxBackoff)
		}

		err := pw.flush(ctx)
		if err == nil {
			if attempt > 0 {
				pw.logger.Info().Int("retries", attempt).Msg("persistence flush succeeded")
			}
			return nil
		}
		pw.logger.Error().Err(err).Msg("persistence flush failed")
	}
}

func (pw *PersistenceWorker) flush(ctx context.Context) error {
	start := time.Now()

	events := make([]EventRow, 0, len(pw.pending))
	var journals []JournalRow
	for _, out := range pw.pending {
		events = append(events, EventRowFromEnvelope(out.Envelope))
		journals = append(journals, JournalRowsFromBatch(out.Batch)...)
	}

	tx, err := pw.db.BeginTx(ctx, nil)
	if err != nil {
		pw.countError("tx_begin")
		return err
	}
	defer tx.Rollback()

	if err := pw.writer.WriteEventBatch(ctx, tx, events); err != nil {
		pw.countError("write_events")
		return err
	}
	if err := pw.writer.WriteJournalBatch(ctx, tx, journals); err != nil {
		pw.countError("write_journals")
		return err
	}
	if err := tx.Commit(); err != nil {
		pw.countError("tx_commit")
		return err
	}

	last := events[len(events)-1]
	pw.lastSeq, pw.lastHash, pw.haveLastSeq = last.Sequence, last.StateHash, true

	if pw.metrics != nil {
		pw.metrics.PersistBatchDur.Observe(time.Since(start).Seconds())
		pw.metrics.PersistBatchSize.Observe(float64(len(events)))
		pw.metrics.PersistEventsWritten.Add(float64(len(events)))
		pw.metrics.PersistJournalsWritten.Add(float64(len(journals)))
		pw.metrics.PersistLastSequence.Set(float64(last.Sequence))
	}

	for _, out := range pw.pending {
		pw.forward(out)
	}
	pw.pending = pw.pending[:0]
	return nil
}

func (pw *PersistenceWorker) forward(out core.CoreOutput) {
	if pw.committed == nil {
		return
	}
	select {
	case pw.committed <- out:
	default:
		if pw.metrics != nil {
			pw.metrics.PublishDrops.Inc()
		}
	}
}

// saveSnapshot stores a snapshot. It is marked verified when it matches
// the log tip this worker just committed. Failures are logged only: the
// log alone is enough to recover.
func (pw *PersistenceWorker) saveSnapshot(ctx context.Context, state *core.SnapshotState) {
	if state.Sequence < 0 {
		return
	}
	start := time.Now()
	snap := SnapshotFromState(state, start.UTC())
	logged := pw.lastHash
	if !pw.haveLastSeq || pw.lastSeq != state.Sequence {
		var err error
		if logged, err = pw.snapshots.StateHashAt(ctx, state.Sequence); err != nil {
			pw.logger.Warn().Err(err).Int64("seq", state.Sequence).Msg("read logged state hash")
		}
	}
	verified := logged != nil && bytes.Equal(logged, snap.StateHash)

	size, err := pw.snapshots.SaveSnapshot(ctx, snap, verified)
	if err != nil {
		pw.countError("snapshot")
		pw.logger.Error().Err(err).Int64("seq", state.Sequence).Msg("save snapshot")
		return
	}

	if pw.metrics != nil {
		pw.metrics.SnapshotTaken.Inc()
		pw.metrics.SnapshotDuration.Observe(time.Since(start).Seconds())
		pw.metrics.SnapshotSizeBytes.Set(float64(size))
		pw.metrics.SnapshotLastSeq.Set(float64(state.Sequence))
	}
	pw.logger.Info().
		Int64("seq", state.Sequence).
		Int("bytes", size).
		Bool("verified", verified).
		Msg("snapshot saved")
}

func (pw *PersistenceWorker) countError(kind string) {
	if pw.metrics != nil {
		pw.metrics.PersistErrors.WithLabelValues(kind).Inc()
	}
}
