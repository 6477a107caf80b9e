package projection

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/LeoVS09/simple-yield-farm/internal/vault"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// RebuildProjections recomputes projections.balances from the journal and
// resets the watermark to the last logged sequence. Vault stats cannot be
// derived from journals, so the caller passes the recovered ones (nil
// leaves the row to the next command).
func RebuildProjections(ctx context.Context, db *sql.DB, vaultID uuid.UUID, stats *vault.Stats, logger zerolog.Logger) (int64, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `TRUNCATE projections.balances`); err != nil {
		return 0, fmt.Errorf("truncate balances: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projections.balances (account_path, token, balance, last_sequence)
		SELECT account_path, token, SUM(delta), MAX(sequence)
		FROM (
			SELECT debit_account AS account_path, token, amount AS delta, sequence FROM event_log.journal
			UNION ALL
			SELECT credit_account AS account_path, token, -amount AS delta, sequence FROM event_log.journal
		) moves
		GROUP BY account_path, token
	`); err != nil {
		return 0, fmt.Errorf("rebuild balances: %w", err)
	}

	var seq sql.NullInt64
	if err := tx.QueryRowContext(ctx, `SELECT MAX(sequence) FROM event_log.events`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("read log tip: %w", err)
	}
	last := int64(-1)
	if seq.Valid {
		last = seq.Int64
	}

	if stats != nil && last >= 0 {
		if err := upsertVaultStats(ctx, tx, vaultID, *stats, last); err != nil {
			return 0, fmt.Errorf("vault stats: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projections.watermark (worker_id, last_sequence, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (worker_id) DO UPDATE SET last_sequence = $2, updated_at = NOW()
	`, WorkerID, last); err != nil {
		return 0, fmt.Errorf("watermark update: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	logger.Info().Int64("seq", last).Msg("projection rebuild complete")
	return last, nil
}
