package vault_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/LeoVS09/simple-yield-farm/internal/ledger"
	fpmath "github.com/LeoVS09/simple-yield-farm/internal/math"
	"github.com/LeoVS09/simple-yield-farm/internal/vault"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ledgerEnv is a vault backed by real book tokens.
type ledgerEnv struct {
	book   *ledger.Book
	asset  *ledger.Token
	shares *ledger.Token
	vault  *vault.Vault
	id     uuid.UUID
}

func newLedgerEnv(t *testing.T, mode vault.AccountingMode) *ledgerEnv {
	t.Helper()

	book := ledger.NewBook()
	asset, err := book.Issue("USDT", 0)
	require.NoError(t, err)
	shares, err := book.Issue("yvUSDT", 0)
	require.NoError(t, err)

	id := uuid.New()
	v, err := vault.New(vault.Config{
		ID:       id,
		Name:     "Yield USDT",
		Symbol:   "yvUSDT",
		Asset:    "USDT",
		Decimals: 0,
		Mode:     mode,
	}, shares, ledger.NewCustody(asset, id), zerolog.Nop())
	require.NoError(t, err)

	return &ledgerEnv{book: book, asset: asset, shares: shares, vault: v, id: id}
}

func (e *ledgerEnv) fund(t *testing.T, holder uuid.UUID, amount uint64) {
	t.Helper()
	require.NoError(t, e.asset.Mint(context.Background(), holder, amount))
}

// donate injects yield straight into custody.
func (e *ledgerEnv) donate(t *testing.T, amount uint64) {
	t.Helper()
	require.NoError(t, e.asset.Mint(context.Background(), e.id, amount))
}

func (e *ledgerEnv) assetsOf(t *testing.T, holder uuid.UUID) uint64 {
	t.Helper()
	ctx := context.Background()
	shares, err := e.vault.BalanceOf(ctx, holder)
	require.NoError(t, err)
	assets, err := e.vault.ConvertToAssets(ctx, shares)
	require.NoError(t, err)
	return assets
}

func (e *ledgerEnv) requirePool(t *testing.T, supply, assets uint64) {
	t.Helper()
	ctx := context.Background()
	gotSupply, err := e.vault.TotalSupply(ctx)
	require.NoError(t, err)
	gotAssets, err := e.vault.TotalAssets(ctx)
	require.NoError(t, err)
	assert.Equal(t, supply, gotSupply, "total supply")
	assert.Equal(t, assets, gotAssets, "total assets")
	require.NoError(t, e.book.Validate())
}

// ============================================================================
// Scenarios
// ============================================================================

func TestVault_ProportionalYield(t *testing.T) {
	ctx := context.Background()
	e := newLedgerEnv(t, vault.ModeDebt)
	alice, bob := uuid.New(), uuid.New()
	e.fund(t, alice, 2000)
	e.fund(t, bob, 4000)

	_, err := e.vault.Deposit(ctx, alice, 2000, alice)
	require.NoError(t, err)
	_, err = e.vault.Deposit(ctx, bob, 4000, bob)
	require.NoError(t, err)

	e.donate(t, 3000)

	assert.Equal(t, uint64(3000), e.assetsOf(t, alice))
	assert.Equal(t, uint64(6000), e.assetsOf(t, bob))
	e.requirePool(t, 6000, 9000)
}

func TestVault_AliceBobWalkthrough(t *testing.T) {
	ctx := context.Background()
	e := newLedgerEnv(t, vault.ModeDebt)
	alice, bob := uuid.New(), uuid.New()
	e.fund(t, alice, 4000)
	e.fund(t, bob, 7001)

	// 1. Alice mints 2000 shares
	assets, err := e.vault.Mint(ctx, alice, 2000, alice)
	require.NoError(t, err)
	assert.Equal(t, uint64(2000), assets)
	e.requirePool(t, 2000, 2000)

	// 2. Bob deposits 4000
	shares, err := e.vault.Deposit(ctx, bob, 4000, bob)
	require.NoError(t, err)
	assert.Equal(t, uint64(4000), shares)
	e.requirePool(t, 6000, 6000)

	// 3. +3000 yield
	e.donate(t, 3000)
	assert.Equal(t, uint64(3000), e.assetsOf(t, alice))
	assert.Equal(t, uint64(6000), e.assetsOf(t, bob))

	// 4. Alice deposits 2000, rounded down to 1333 shares
	shares, err = e.vault.Deposit(ctx, alice, 2000, alice)
	require.NoError(t, err)
	assert.Equal(t, uint64(1333), shares)
	assert.Equal(t, uint64(4999), e.assetsOf(t, alice))
	e.requirePool(t, 7333, 11000)

	// 5. Bob mints 2000 shares, cost rounded up
	assets, err = e.vault.Mint(ctx, bob, 2000, bob)
	require.NoError(t, err)
	assert.Equal(t, uint64(3001), assets)
	assert.Equal(t, uint64(5000), e.assetsOf(t, alice))
	assert.Equal(t, uint64(9000), e.assetsOf(t, bob))
	e.requirePool(t, 9333, 14001)

	// 6. +3000 yield
	e.donate(t, 3000)
	assert.Equal(t, uint64(6071), e.assetsOf(t, alice))
	assert.Equal(t, uint64(10929), e.assetsOf(t, bob))

	// 7. Alice redeems 1333 shares
	receipt, err := e.vault.Redeem(ctx, alice, 1333, 0, alice)
	require.NoError(t, err)
	assert.Equal(t, uint64(2428), receipt.Delivered)
	e.requirePool(t, 8000, 14573)

	// 8. Bob withdraws 2928 assets, burn rounded up
	receipt, err = e.vault.Withdraw(ctx, bob, 2928, 0, bob)
	require.NoError(t, err)
	assert.Equal(t, uint64(1608), receipt.Shares)
	e.requirePool(t, 6392, 11645)

	// 9. Alice withdraws 3643 assets
	receipt, err = e.vault.Withdraw(ctx, alice, 3643, 0, alice)
	require.NoError(t, err)
	assert.Equal(t, uint64(2000), receipt.Shares)
	e.requirePool(t, 4392, 8002)

	// 10. Bob redeems everything and drains the pool
	receipt, err = e.vault.Redeem(ctx, bob, 4392, 0, bob)
	require.NoError(t, err)
	assert.Equal(t, uint64(8002), receipt.Delivered)
	e.requirePool(t, 0, 0)

	phase, err := e.vault.Phase(ctx)
	require.NoError(t, err)
	assert.Equal(t, vault.PhaseEmpty, phase)

	a, _ := e.asset.BalanceOf(ctx, alice)
	b, _ := e.asset.BalanceOf(ctx, bob)
	assert.Equal(t, uint64(4000-2000-2000+2428+3643), a)
	assert.Equal(t, uint64(7001-4000-3001+2928+8002), b)
}

// ============================================================================
// Invariants
// ============================================================================

func TestVault_RoundingFavoursPool(t *testing.T) {
	ctx := context.Background()
	e := newLedgerEnv(t, vault.ModeDebt)
	seed := uuid.New()
	e.fund(t, seed, 1_000)

	_, err := e.vault.Deposit(ctx, seed, 1_000, seed)
	require.NoError(t, err)
	e.donate(t, 337)

	for a := uint64(1); a < 2_000; a += 7 {
		shares, err := e.vault.PreviewDeposit(ctx, a)
		require.NoError(t, err)
		back, err := e.vault.PreviewRedeem(ctx, shares)
		require.NoError(t, err)
		assert.LessOrEqual(t, back, a, "round trip of %d", a)

		burn, err := e.vault.PreviewWithdraw(ctx, a)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, burn, shares, "withdraw of %d burns at least deposit shares", a)
	}
}

func TestVault_BootstrapSkipsBalanceReads(t *testing.T) {
	ctx := context.Background()
	custody := &fakeCustody{}
	strategy := newFakeStrategy()
	v := newFakeVault(t, vault.ModeLive, custody, strategy)

	shares, err := v.Deposit(ctx, uuid.New(), 10, uuid.New())
	require.NoError(t, err)
	assert.Equal(t, uint64(10), shares)
	assert.Zero(t, custody.balanceCalls)
	assert.Zero(t, strategy.totalAssetsCalls)
}

func TestVault_Conservation(t *testing.T) {
	ctx := context.Background()
	e := newLedgerEnv(t, vault.ModeDebt)
	holders := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	for _, h := range holders {
		e.fund(t, h, 10_000)
	}

	strat := newFakeStrategy()
	require.NoError(t, e.vault.SetStrategy(ctx, strat))

	for i, h := range holders {
		_, err := e.vault.Deposit(ctx, h, uint64(1_000*(i+1)), h)
		require.NoError(t, err)
	}
	require.NoError(t, e.vault.Borrow(ctx, strat.ID(), 2_500))
	_, err := e.vault.Withdraw(ctx, holders[0], 500, 0, holders[0])
	require.NoError(t, err)

	stats, err := e.vault.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, stats.IdleAssets+stats.TotalDebt, stats.TotalAssets)

	var sum uint64
	for _, h := range holders {
		b, err := e.vault.BalanceOf(ctx, h)
		require.NoError(t, err)
		sum += b
	}
	assert.Equal(t, stats.TotalSupply, sum)
	require.NoError(t, e.book.Validate())
}

// ============================================================================
// Error paths
// ============================================================================

func TestVault_ZeroShares(t *testing.T) {
	ctx := context.Background()
	e := newLedgerEnv(t, vault.ModeDebt)
	alice := uuid.New()
	e.fund(t, alice, 100)

	_, err := e.vault.Mint(ctx, alice, 0, alice)
	assert.ErrorIs(t, err, vault.ErrZeroShares)

	_, err = e.vault.Deposit(ctx, alice, 0, alice)
	assert.ErrorIs(t, err, vault.ErrZeroShares)

	// 1 share is worth 10 assets after the donation
	_, err = e.vault.Deposit(ctx, alice, 1, alice)
	require.NoError(t, err)
	e.donate(t, 9)

	_, err = e.vault.Deposit(ctx, alice, 9, alice)
	assert.ErrorIs(t, err, vault.ErrZeroShares)
	e.requirePool(t, 1, 10)
}

func TestVault_RedeemZeroAssets(t *testing.T) {
	ctx := context.Background()
	custody := &fakeCustody{}
	v := newFakeVault(t, vault.ModeDebt, custody, nil)
	alice := uuid.New()

	_, err := v.Deposit(ctx, alice, 10, alice)
	require.NoError(t, err)

	// Custody lost everything: shares are worthless
	custody.balance = 0
	_, err = v.Redeem(ctx, alice, 5, 0, alice)
	assert.ErrorIs(t, err, vault.ErrZeroAssets)

	_, err = v.Deposit(ctx, alice, 10, alice)
	assert.ErrorIs(t, err, vault.ErrInsolventPool)
	_, err = v.Mint(ctx, alice, 10, alice)
	assert.ErrorIs(t, err, vault.ErrInsolventPool)
}

func TestVault_InsufficientShares(t *testing.T) {
	ctx := context.Background()
	e := newLedgerEnv(t, vault.ModeDebt)
	alice, bob := uuid.New(), uuid.New()
	e.fund(t, alice, 100)

	_, err := e.vault.Deposit(ctx, alice, 100, alice)
	require.NoError(t, err)

	_, err = e.vault.Withdraw(ctx, bob, 1, 0, bob)
	assert.ErrorIs(t, err, vault.ErrInsufficientShares)
	_, err = e.vault.Redeem(ctx, alice, 101, 0, alice)
	assert.ErrorIs(t, err, vault.ErrInsufficientShares)
	_, err = e.vault.Withdraw(ctx, alice, 101, 0, alice)
	assert.ErrorIs(t, err, vault.ErrInsufficientShares)
}

func TestVault_InvalidAmounts(t *testing.T) {
	ctx := context.Background()
	e := newLedgerEnv(t, vault.ModeDebt)
	alice := uuid.New()

	_, err := e.vault.Withdraw(ctx, alice, 0, 0, alice)
	assert.ErrorIs(t, err, vault.ErrInvalidAmount)
	_, err = e.vault.Withdraw(ctx, alice, 1, fpmath.MaxBps+1, alice)
	assert.ErrorIs(t, err, vault.ErrInvalidAmount)
	_, err = e.vault.Redeem(ctx, alice, 1, fpmath.MaxBps+1, alice)
	assert.ErrorIs(t, err, vault.ErrInvalidAmount)
}

func TestVault_DepositWithoutFundsRollsNothing(t *testing.T) {
	ctx := context.Background()
	e := newLedgerEnv(t, vault.ModeDebt)
	alice := uuid.New()
	e.fund(t, alice, 5)

	_, err := e.vault.Deposit(ctx, alice, 10, alice)
	assert.ErrorIs(t, err, ledger.ErrInsufficientBalance)
	e.requirePool(t, 0, 0)
}

func TestVault_InsufficientLiquidity(t *testing.T) {
	ctx := context.Background()
	custody := &fakeCustody{frozen: true}
	strategy := newFakeStrategy()
	v := newFakeVault(t, vault.ModeLive, custody, strategy)
	alice := uuid.New()

	_, err := v.Deposit(ctx, alice, 10, alice)
	require.NoError(t, err)

	// The strategy report drops between valuation and the recovery check
	custody.balance = 2
	strategy.assetsSeq = []uint64{8, 3}
	_, err = v.Redeem(ctx, alice, 10, 0, alice)
	assert.ErrorIs(t, err, vault.ErrInsufficientLiquidity)
	assert.Empty(t, strategy.withdrawCalls)
	assert.Empty(t, custody.outs)

	assert.ErrorIs(t, v.Borrow(ctx, strategy.ID(), 3), vault.ErrInsufficientLiquidity)
}

func TestVault_MetadataAndMaxViews(t *testing.T) {
	ctx := context.Background()
	e := newLedgerEnv(t, vault.ModeDebt)
	alice := uuid.New()
	e.fund(t, alice, 300)

	cfg := e.vault.Config()
	assert.Equal(t, "Yield USDT", cfg.Name)
	assert.Equal(t, "yvUSDT", cfg.Symbol)
	assert.Equal(t, "USDT", cfg.Asset)

	_, err := e.vault.Deposit(ctx, alice, 300, alice)
	require.NoError(t, err)
	e.donate(t, 150)

	maxRedeem, err := e.vault.MaxRedeem(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, uint64(300), maxRedeem)

	maxWithdraw, err := e.vault.MaxWithdraw(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, uint64(450), maxWithdraw)

	receipt, err := e.vault.Withdraw(ctx, alice, maxWithdraw, 0, alice)
	require.NoError(t, err)
	assert.Equal(t, uint64(300), receipt.Shares)
}

func TestVault_TransferShares(t *testing.T) {
	ctx := context.Background()
	e := newLedgerEnv(t, vault.ModeDebt)
	alice, bob := uuid.New(), uuid.New()
	e.fund(t, alice, 100)

	_, err := e.vault.Deposit(ctx, alice, 100, alice)
	require.NoError(t, err)

	require.NoError(t, e.vault.TransferShares(ctx, alice, bob, 40))
	assert.ErrorIs(t, e.vault.TransferShares(ctx, alice, bob, 61), vault.ErrInsufficientShares)
	assert.ErrorIs(t, e.vault.TransferShares(ctx, alice, bob, 0), vault.ErrInvalidAmount)

	assert.Equal(t, uint64(40), e.assetsOf(t, bob))
	e.requirePool(t, 100, 100)
}

// ============================================================================
// Hooks
// ============================================================================

func TestVault_HooksCounted(t *testing.T) {
	ctx := context.Background()
	e := newLedgerEnv(t, vault.ModeDebt)
	alice := uuid.New()
	e.fund(t, alice, 30)

	var afterDeposit, beforeWithdraw int
	e.vault.SetHooks(vault.Hooks{
		AfterDeposit: func(context.Context, uint64, uint64) error {
			afterDeposit++
			return nil
		},
		BeforeWithdraw: func(context.Context, uint64, uint64) error {
			beforeWithdraw++
			return nil
		},
	})

	_, err := e.vault.Deposit(ctx, alice, 10, alice)
	require.NoError(t, err)
	_, err = e.vault.Mint(ctx, alice, 10, alice)
	require.NoError(t, err)
	_, err = e.vault.Withdraw(ctx, alice, 10, 0, alice)
	require.NoError(t, err)

	assert.Equal(t, 2, afterDeposit)
	assert.Equal(t, 1, beforeWithdraw)
}

func TestVault_HookErrorRollsBack(t *testing.T) {
	ctx := context.Background()
	e := newLedgerEnv(t, vault.ModeDebt)
	alice := uuid.New()
	e.fund(t, alice, 30)

	errHook := errors.New("paused")
	_, err := e.vault.Deposit(ctx, alice, 10, alice)
	require.NoError(t, err)

	e.vault.SetHooks(vault.Hooks{
		AfterDeposit:   func(context.Context, uint64, uint64) error { return errHook },
		BeforeWithdraw: func(context.Context, uint64, uint64) error { return errHook },
	})

	_, err = e.vault.Deposit(ctx, alice, 10, alice)
	assert.ErrorIs(t, err, errHook)
	_, err = e.vault.Redeem(ctx, alice, 5, 0, alice)
	assert.ErrorIs(t, err, errHook)

	e.requirePool(t, 10, 10)
	held, _ := e.asset.BalanceOf(ctx, alice)
	assert.Equal(t, uint64(20), held)
}

// ============================================================================
// Re-entrancy
// ============================================================================

func TestVault_ReentrantStrategyRejected(t *testing.T) {
	ctx := context.Background()
	custody := &fakeCustody{}
	strategy := newFakeStrategy()
	v := newFakeVault(t, vault.ModeDebt, custody, strategy)
	alice := uuid.New()

	_, err := v.Deposit(ctx, alice, 10, alice)
	require.NoError(t, err)
	require.NoError(t, v.Borrow(ctx, strategy.ID(), 6))

	var inner error
	strategy.onWithdraw = func(ctx context.Context, amount uint64) (uint64, error) {
		_, inner = v.TotalAssets(ctx)
		return 0, inner
	}

	_, err = v.Redeem(ctx, alice, 10, 0, alice)
	assert.ErrorIs(t, inner, vault.ErrReentrant)
	assert.ErrorIs(t, err, vault.ErrReentrant)
	assert.Equal(t, uint64(6), v.TotalDebt())
}

func TestVault_ReentrantFreshContextRejected(t *testing.T) {
	ctx := context.Background()
	custody := &fakeCustody{}
	strategy := newFakeStrategy()
	v := newFakeVault(t, vault.ModeDebt, custody, strategy)
	alice := uuid.New()

	_, err := v.Deposit(ctx, alice, 10, alice)
	require.NoError(t, err)
	require.NoError(t, v.Borrow(ctx, strategy.ID(), 6))

	var inner error
	var debtSeen uint64
	strategy.onWithdraw = func(context.Context, uint64) (uint64, error) {
		debtSeen = v.TotalDebt()
		// A strategy with its own client has no vault marker on its context.
		_, inner = v.TotalAssets(context.Background())
		return 0, inner
	}

	done := make(chan error, 1)
	go func() {
		_, err := v.Redeem(ctx, alice, 10, 0, alice)
		done <- err
	}()

	select {
	case err = <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("redeem blocked on a re-entrant strategy callback")
	}
	assert.ErrorIs(t, inner, vault.ErrReentrant)
	assert.ErrorIs(t, err, vault.ErrReentrant)
	assert.Equal(t, uint64(6), debtSeen)
	assert.Equal(t, uint64(6), v.TotalDebt())
	assert.Equal(t, uint64(4), custody.balance)

	// The flag is cleared once the callout returns.
	strategy.onWithdraw = nil
	strategy.custody = custody
	receipt, err := v.Redeem(ctx, alice, 10, 0, alice)
	require.NoError(t, err)
	assert.Equal(t, uint64(10), receipt.Delivered)
	assert.Zero(t, v.TotalDebt())
}

func TestVault_ReentrantHookRejected(t *testing.T) {
	ctx := context.Background()
	custody := &fakeCustody{}
	v := newFakeVault(t, vault.ModeDebt, custody, nil)
	alice := uuid.New()

	var inner error
	v.SetHooks(vault.Hooks{
		AfterDeposit: func(context.Context, uint64, uint64) error {
			_, inner = v.BalanceOf(context.Background(), alice)
			return inner
		},
	})

	_, err := v.Deposit(ctx, alice, 10, alice)
	assert.ErrorIs(t, inner, vault.ErrReentrant)
	assert.ErrorIs(t, err, vault.ErrReentrant)
	assert.Zero(t, custody.balance)
}
