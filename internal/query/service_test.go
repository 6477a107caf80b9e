package query

import (
	"context"
	"regexp"
	"testing"

	"github.com/LeoVS09/simple-yield-farm/internal/core"
	fpmath "github.com/LeoVS09/simple-yield-farm/internal/math"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	vaultID = uuid.MustParse("6f1c9a52-3c1e-4b59-9a36-0c3f0f0b7a01")
	alice   = uuid.MustParse("a11ce000-0000-4000-8000-000000000001")

	watermarkQuery = regexp.QuoteMeta("SELECT last_sequence FROM projections.watermark")
	balanceQuery   = regexp.QuoteMeta("SELECT balance FROM projections.balances")
	statsQuery     = regexp.QuoteMeta("FROM projections.vault_stats")
)

func newService(t *testing.T) (*QueryService, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return NewQueryService(db, Config{
		VaultID:     vaultID,
		AssetSymbol: "USDT",
		ShareSymbol: "sUSDT",
		Units:       fpmath.DecimalConfig{Decimals: 6},
	}), mock
}

func statsRow(ta, ts, debt, idle, seq int64) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"total_assets", "total_supply", "total_debt", "idle_assets", "last_sequence"}).
		AddRow(ta, ts, debt, idle, seq)
}

func TestGetPosition(t *testing.T) {
	qs, mock := newService(t)

	mock.ExpectQuery(watermarkQuery).WillReturnRows(sqlmock.NewRows([]string{"last_sequence"}).AddRow(int64(9)))
	mock.ExpectQuery(balanceQuery).
		WithArgs("holder:"+alice.String()+":sUSDT", "sUSDT").
		WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow(int64(2_000_000)))
	mock.ExpectQuery(balanceQuery).
		WithArgs("holder:"+alice.String()+":USDT", "USDT").
		WillReturnRows(sqlmock.NewRows([]string{"balance"}))
	mock.ExpectQuery(statsQuery).WithArgs(vaultID).WillReturnRows(statsRow(3_000_000, 4_000_000, 0, 3_000_000, 9))

	pos, err := qs.GetPosition(context.Background(), alice)
	require.NoError(t, err)
	assert.Equal(t, uint64(2_000_000), pos.Shares)
	assert.Equal(t, uint64(1_500_000), pos.Assets)
	assert.Equal(t, uint64(0), pos.WalletAssets)
	assert.Equal(t, "1.5", pos.AssetsDisplay)
	assert.Equal(t, int64(9), pos.AsOfSequence)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetVaultStatsBeforeAnyCommand(t *testing.T) {
	qs, mock := newService(t)

	mock.ExpectQuery(watermarkQuery).WillReturnRows(sqlmock.NewRows([]string{"last_sequence"}))
	mock.ExpectQuery(statsQuery).WillReturnRows(sqlmock.NewRows([]string{"total_assets"}))

	stats, err := qs.GetVaultStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(-1), stats.AsOfSequence)
	assert.Equal(t, uint64(0), stats.TotalSupply)
	assert.Equal(t, "1", stats.PricePerShare)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetVaultStatsPrice(t *testing.T) {
	qs, mock := newService(t)

	mock.ExpectQuery(watermarkQuery).WillReturnRows(sqlmock.NewRows([]string{"last_sequence"}).AddRow(int64(3)))
	mock.ExpectQuery(statsQuery).WillReturnRows(statsRow(1_100_000, 1_000_000, 400_000, 700_000, 3))

	stats, err := qs.GetVaultStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "1.1", stats.PricePerShare)
	assert.Equal(t, uint64(400_000), stats.TotalDebt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetJournalHistoryFilters(t *testing.T) {
	qs, mock := newService(t)

	before, asOf := int64(20), int64(15)
	cols := []string{"journal_id", "batch_id", "event_ref", "sequence", "debit_account", "credit_account", "token", "amount", "journal_type", "timestamp"}
	mock.ExpectQuery(regexp.QuoteMeta("WHERE (debit_account LIKE $1 OR credit_account LIKE $1) AND sequence < $2 AND sequence <= $3")).
		WithArgs("holder:"+alice.String()+":%", before, asOf, MaxJournalLimit).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("j2", "b2", "cmd-2", int64(12), "holder:x:USDT", "system:vault:USDT", "USDT", int64(5), "transfer", int64(2)).
			AddRow("j1", "b1", "cmd-1", int64(3), "holder:x:USDT", "system:issuance:USDT", "USDT", int64(9), "mint", int64(1)))

	entries, err := qs.GetJournalHistory(context.Background(), alice, JournalFilter{
		Limit:          5000,
		BeforeSequence: &before,
		AsOfSequence:   &asOf,
	})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, int64(12), entries[0].Sequence)
	assert.Equal(t, "mint", entries[1].JournalType)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestVerifyIntegrity(t *testing.T) {
	qs, mock := newService(t)
	genesis := core.GenesisHash()

	mock.ExpectQuery(regexp.QuoteMeta("LEFT JOIN event_log.events e2")).
		WithArgs(genesis[:]).
		WillReturnRows(sqlmock.NewRows([]string{"sequence"}).AddRow(int64(7)))
	mock.ExpectQuery(regexp.QuoteMeta("HAVING SUM(balance) != 0")).
		WillReturnRows(sqlmock.NewRows([]string{"token", "total"}))

	report, err := qs.VerifyIntegrity(context.Background())
	require.NoError(t, err)
	assert.False(t, report.IsHealthy)
	assert.Equal(t, []int64{7}, report.HashChainBreaks)
	assert.Empty(t, report.UnbalancedTokens)
	assert.NoError(t, mock.ExpectationsWereMet())
}
