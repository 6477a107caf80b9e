package projection

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/LeoVS09/simple-yield-farm/internal/core"
	"github.com/LeoVS09/simple-yield-farm/internal/ledger"
	"github.com/LeoVS09/simple-yield-farm/internal/observability"
	"github.com/LeoVS09/simple-yield-farm/internal/vault"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// WorkerID names the watermark row this worker advances.
const WorkerID = "main"

// ProjectionWorker updates projection tables from processed commands.
// The projection channel drops when full, so the tables may fall behind
// or miss a sequence; RebuildProjections restores them from the journal.
type ProjectionWorker struct {
	db        *sql.DB
	inputChan <-chan core.CoreOutput
	vaultID   uuid.UUID
	metrics   *observability.Metrics
	logger    zerolog.Logger
	lastSeq   int64
}

func NewProjectionWorker(
	db *sql.DB,
	inputChan <-chan core.CoreOutput,
	vaultID uuid.UUID,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) *ProjectionWorker {
	return &ProjectionWorker{
		db:        db,
		inputChan: inputChan,
		vaultID:   vaultID,
		metrics:   metrics,
		logger:    logger,
		lastSeq:   -1,
	}
}

// Run applies outputs until ctx is cancelled or inputChan is closed.
func (pw *ProjectionWorker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case output, ok := <-pw.inputChan:
			if !ok {
				return nil
			}
			if output.Envelope == nil {
				continue
			}

			seq := output.Envelope.Sequence
			if pw.lastSeq >= 0 && seq != pw.lastSeq+1 {
				pw.logger.Warn().
					Int64("expected", pw.lastSeq+1).
					Int64("got", seq).
					Msg("projection missed outputs, rebuild to catch up")
			}

			if err := pw.processOutput(ctx, output); err != nil {
				// Projections are eventually consistent and rebuildable.
				pw.logger.Warn().Err(err).Int64("seq", seq).Msg("projection update failed")
				continue
			}
			pw.lastSeq = seq
		}
	}
}

// LastSequence is the last sequence applied by this worker, -1 before any.
func (pw *ProjectionWorker) LastSequence() int64 {
	return pw.lastSeq
}

func (pw *ProjectionWorker) processOutput(ctx context.Context, output core.CoreOutput) error {
	start := time.Now()
	seq := output.Envelope.Sequence

	tx, err := pw.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if output.Batch != nil {
		for _, j := range output.Batch.Journals {
			if err := updateBalanceProjection(ctx, tx, j, seq); err != nil {
				return fmt.Errorf("balance projection: %w", err)
			}
		}
	}
	pw.observe("balances", start)

	if output.Stats != nil {
		statsStart := time.Now()
		if err := upsertVaultStats(ctx, tx, pw.vaultID, *output.Stats, seq); err != nil {
			return fmt.Errorf("vault stats projection: %w", err)
		}
		pw.observe("vault_stats", statsStart)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projections.watermark (worker_id, last_sequence, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (worker_id) DO UPDATE SET last_sequence = $2, updated_at = NOW()
	`, WorkerID, seq); err != nil {
		return fmt.Errorf("watermark update: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	if pw.metrics != nil {
		pw.metrics.ProjectionLastSeq.Set(float64(seq))
	}
	return nil
}

func (pw *ProjectionWorker) observe(projection string, start time.Time) {
	if pw.metrics != nil {
		pw.metrics.ProjectionUpdateDur.WithLabelValues(projection).Observe(time.Since(start).Seconds())
	}
}

// updateBalanceProjection applies one journal: the debit side grows, the
// credit side shrinks.
func updateBalanceProjection(ctx context.Context, tx *sql.Tx, j ledger.Journal, seq int64) error {
	const upsert = `
		INSERT INTO projections.balances (account_path, token, balance, last_sequence)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (account_path, token)
		DO UPDATE SET balance = projections.balances.balance + $3, last_sequence = $4
	`
	if _, err := tx.ExecContext(ctx, upsert, j.DebitAccount.AccountPath(), string(j.Token), j.Amount, seq); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, upsert, j.CreditAccount.AccountPath(), string(j.Token), -j.Amount, seq); err != nil {
		return err
	}
	return nil
}

func upsertVaultStats(ctx context.Context, tx *sql.Tx, vaultID uuid.UUID, s vault.Stats, seq int64) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO projections.vault_stats
			(vault_id, total_assets, total_supply, total_debt, idle_assets, last_sequence, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (vault_id) DO UPDATE SET
			total_assets = $2, total_supply = $3, total_debt = $4, idle_assets = $5,
			last_sequence = $6, updated_at = NOW()
	`, vaultID, int64(s.TotalAssets), int64(s.TotalSupply), int64(s.TotalDebt), int64(s.IdleAssets), seq)
	return err
}
