package query

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/LeoVS09/simple-yield-farm/internal/core"
	"github.com/LeoVS09/simple-yield-farm/internal/ledger"
	fpmath "github.com/LeoVS09/simple-yield-farm/internal/math"
	"github.com/LeoVS09/simple-yield-farm/internal/projection"

	"github.com/google/uuid"
)

const (
	DefaultJournalLimit = 50
	MaxJournalLimit     = 1000
)

// Config names the vault and tokens the service reports on.
type Config struct {
	VaultID     uuid.UUID
	AssetSymbol ledger.Symbol
	ShareSymbol ledger.Symbol
	Units       fpmath.DecimalConfig
}

// QueryService provides read-only access to projection tables and the
// journal. Every response carries as_of_sequence, the projection watermark.
type QueryService struct {
	db  *sql.DB
	cfg Config
}

func NewQueryService(db *sql.DB, cfg Config) *QueryService {
	return &QueryService{db: db, cfg: cfg}
}

// GetPosition returns a holder's shares, their asset value at the
// projected exchange rate, and the underlying the holder keeps outside the
// vault.
func (qs *QueryService) GetPosition(ctx context.Context, holder uuid.UUID) (*PositionResponse, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, fmt.Errorf("watermark: %w", err)
	}

	shares, err := qs.getProjectedBalance(ctx, ledger.NewHolderAccountKey(holder, qs.cfg.ShareSymbol))
	if err != nil {
		return nil, err
	}
	wallet, err := qs.getProjectedBalance(ctx, ledger.NewHolderAccountKey(holder, qs.cfg.AssetSymbol))
	if err != nil {
		return nil, err
	}
	stats, err := qs.readVaultStats(ctx)
	if err != nil {
		return nil, err
	}

	assets := shares
	if stats.TotalSupply > 0 {
		if assets, err = fpmath.MulDiv(shares, stats.TotalAssets, stats.TotalSupply, fpmath.RoundDown); err != nil {
			return nil, err
		}
	}

	return &PositionResponse{
		Holder:        holder,
		Shares:        shares,
		Assets:        assets,
		WalletAssets:  wallet,
		SharesDisplay: qs.cfg.Units.Format(shares),
		AssetsDisplay: qs.cfg.Units.Format(assets),
		AsOfSequence:  asOfSeq,
	}, nil
}

// GetVaultStats returns the projected pool totals.
func (qs *QueryService) GetVaultStats(ctx context.Context) (*VaultStatsResponse, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, fmt.Errorf("watermark: %w", err)
	}
	stats, err := qs.readVaultStats(ctx)
	if err != nil {
		return nil, err
	}
	stats.PricePerShare = qs.cfg.Units.PricePerShare(stats.TotalAssets, stats.TotalSupply).String()
	stats.AsOfSequence = asOfSeq
	return stats, nil
}

// GetJournalHistory returns journal entries touching a holder's accounts,
// newest first.
func (qs *QueryService) GetJournalHistory(ctx context.Context, holder uuid.UUID, f JournalFilter) ([]JournalHistoryEntry, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = DefaultJournalLimit
	}
	limit = min(limit, MaxJournalLimit)

	accountPrefix := fmt.Sprintf("holder:%s:%%", holder)

	query := `
		SELECT journal_id, batch_id, event_ref, sequence,
		       debit_account, credit_account, token, amount, journal_type, timestamp
		FROM event_log.journal
		WHERE (debit_account LIKE $1 OR credit_account LIKE $1)
	`
	args := []any{accountPrefix}
	argIdx := 2

	if f.BeforeSequence != nil {
		query += fmt.Sprintf(" AND sequence < $%d", argIdx)
		args = append(args, *f.BeforeSequence)
		argIdx++
	}
	if f.AsOfSequence != nil {
		query += fmt.Sprintf(" AND sequence <= $%d", argIdx)
		args = append(args, *f.AsOfSequence)
		argIdx++
	}

	query += " ORDER BY sequence DESC, journal_id"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, limit)

	rows, err := qs.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []JournalHistoryEntry
	for rows.Next() {
		var e JournalHistoryEntry
		if err := rows.Scan(
			&e.JournalID, &e.BatchID, &e.EventRef, &e.Sequence,
			&e.DebitAccount, &e.CreditAccount, &e.Token, &e.Amount,
			&e.JournalType, &e.Timestamp,
		); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

// --- Admin APIs ---

// VerifyIntegrity checks the hash chain and that every token's projected
// balances sum to zero.
func (qs *QueryService) VerifyIntegrity(ctx context.Context) (*IntegrityReport, error) {
	report := &IntegrityReport{}
	genesis := core.GenesisHash()

	rows, err := qs.db.QueryContext(ctx, `
		SELECT e1.sequence
		FROM event_log.events e1
		LEFT JOIN event_log.events e2 ON e2.sequence = e1.sequence - 1
		WHERE (e1.sequence = 0 AND e1.prev_hash != $1)
		   OR (e1.sequence > 0 AND (e2.sequence IS NULL OR e1.prev_hash != e2.state_hash))
		ORDER BY e1.sequence
		LIMIT 10
	`, genesis[:])
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var seq int64
		if err := rows.Scan(&seq); err != nil {
			return nil, err
		}
		report.HashChainBreaks = append(report.HashChainBreaks, seq)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	balanceRows, err := qs.db.QueryContext(ctx, `
		SELECT token, SUM(balance) AS total
		FROM projections.balances
		GROUP BY token
		HAVING SUM(balance) != 0
	`)
	if err != nil {
		return nil, err
	}
	defer balanceRows.Close()

	for balanceRows.Next() {
		var u UnbalancedToken
		if err := balanceRows.Scan(&u.Token, &u.Imbalance); err != nil {
			return nil, err
		}
		report.UnbalancedTokens = append(report.UnbalancedTokens, u)
	}
	if err := balanceRows.Err(); err != nil {
		return nil, err
	}

	report.IsHealthy = len(report.HashChainBreaks) == 0 && len(report.UnbalancedTokens) == 0
	return report, nil
}

// --- helpers ---

// getWatermark returns the last projected sequence, -1 before the first.
func (qs *QueryService) getWatermark(ctx context.Context) (int64, error) {
	var seq int64
	err := qs.db.QueryRowContext(ctx,
		`SELECT last_sequence FROM projections.watermark WHERE worker_id = $1`, projection.WorkerID,
	).Scan(&seq)
	if errors.Is(err, sql.ErrNoRows) {
		return -1, nil
	}
	return seq, err
}

func (qs *QueryService) getProjectedBalance(ctx context.Context, key ledger.AccountKey) (uint64, error) {
	var balance int64
	err := qs.db.QueryRowContext(ctx, `
		SELECT balance FROM projections.balances
		WHERE account_path = $1 AND token = $2
	`, key.AccountPath(), string(key.Token)).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if balance < 0 {
		return 0, fmt.Errorf("holder account %s has negative balance %d", key.AccountPath(), balance)
	}
	return uint64(balance), nil
}

func (qs *QueryService) readVaultStats(ctx context.Context) (*VaultStatsResponse, error) {
	s := &VaultStatsResponse{VaultID: qs.cfg.VaultID, LastSequence: -1}
	var ta, ts, debt, idle int64
	err := qs.db.QueryRowContext(ctx, `
		SELECT total_assets, total_supply, total_debt, idle_assets, last_sequence
		FROM projections.vault_stats
		WHERE vault_id = $1
	`, qs.cfg.VaultID).Scan(&ta, &ts, &debt, &idle, &s.LastSequence)
	if errors.Is(err, sql.ErrNoRows) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("vault stats: %w", err)
	}
	s.TotalAssets, s.TotalSupply, s.TotalDebt, s.IdleAssets = uint64(ta), uint64(ts), uint64(debt), uint64(idle)
	return s, nil
}
