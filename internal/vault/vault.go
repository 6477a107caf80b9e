package vault

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	fpmath "github.com/LeoVS09/simple-yield-farm/internal/math"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// AccountingMode selects how the strategy's share of pool value is read.
type AccountingMode string

const (
	// ModeDebt values lent assets at the tracked debt.
	ModeDebt AccountingMode = "debt"
	// ModeLive values lent assets at the strategy's own report.
	ModeLive AccountingMode = "live"
)

// ParseMode maps a config string to an AccountingMode; empty means debt.
func ParseMode(s string) (AccountingMode, error) {
	switch AccountingMode(s) {
	case "", ModeDebt:
		return ModeDebt, nil
	case ModeLive:
		return ModeLive, nil
	}
	return "", fmt.Errorf("%w: accounting mode %q", ErrInvalidConfig, s)
}

// Phase is the pool lifecycle state.
type Phase int

const (
	PhaseEmpty Phase = iota
	PhaseActive
)

func (p Phase) String() string {
	if p == PhaseActive {
		return "active"
	}
	return "empty"
}

// Config describes one vault instance.
type Config struct {
	ID         uuid.UUID // custody account of the vault
	Name       string
	Symbol     string // share token symbol
	Asset      string // underlying asset symbol
	Decimals   int32
	Mode       AccountingMode
	ReserveBps uint32 // share of total assets kept idle when lending
}

// Validate rejects a config New cannot build a vault from.
func (c Config) Validate() error {
	if c.ID == uuid.Nil {
		return fmt.Errorf("%w: missing id", ErrInvalidConfig)
	}
	if c.Decimals < 0 || c.Decimals > 18 {
		return fmt.Errorf("%w: decimals %d", ErrInvalidConfig, c.Decimals)
	}
	if c.ReserveBps > fpmath.MaxBps {
		return fmt.Errorf("%w: reserve %d bps", ErrInvalidConfig, c.ReserveBps)
	}
	if _, err := ParseMode(string(c.Mode)); err != nil {
		return err
	}
	return nil
}

// Receipt is the outcome of a withdraw or redeem.
type Receipt struct {
	Shares    uint64 // shares burned
	Assets    uint64 // assets the shares were worth before any loss
	Loss      uint64 // loss realized by the strategy
	Delivered uint64 // Assets - Loss, paid to the receiver
	Pulled    uint64 // shortfall recovered from the strategy
}

// Stats is a consistent read of the pool.
type Stats struct {
	TotalAssets uint64
	TotalSupply uint64
	TotalDebt   uint64
	IdleAssets  uint64
}

// Vault is a share/asset pool with an optional lending strategy.
// All methods are safe for concurrent use.
type Vault struct {
	mu        sync.Mutex
	calling   atomic.Bool // set while a strategy or hook runs
	cfg       Config
	shares    ShareLedger
	custody   AssetCustody
	strategy  Strategy
	hooks     Hooks
	totalDebt atomic.Uint64 // written under mu
	logger    zerolog.Logger
}

// New builds an empty vault over the given share ledger and custody.
func New(cfg Config, shares ShareLedger, custody AssetCustody, logger zerolog.Logger) (*Vault, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.Mode, _ = ParseMode(string(cfg.Mode))

	return &Vault{
		cfg:     cfg,
		shares:  shares,
		custody: custody,
		logger:  logger.With().Str("vault", cfg.Symbol).Logger(),
	}, nil
}

func (v *Vault) Config() Config { return v.cfg }

// SetStrategy registers the only account allowed to borrow. Replacing a
// strategy with outstanding debt is refused.
func (v *Vault) SetStrategy(ctx context.Context, s Strategy) error {
	_, release, err := v.enter(ctx)
	if err != nil {
		return err
	}
	defer release()

	if v.strategy != nil && v.totalDebt.Load() > 0 && (s == nil || s.ID() != v.strategy.ID()) {
		return fmt.Errorf("%w: strategy %s still owes %d", ErrInvalidConfig, v.strategy.ID(), v.totalDebt.Load())
	}
	v.strategy = s
	return nil
}

// Strategy returns the registered strategy, if any.
func (v *Vault) Strategy() Strategy {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.strategy
}

// SetHooks replaces the hooks. It must not be called from a hook.
func (v *Vault) SetHooks(h Hooks) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.hooks = h
}

// TotalDebt does not take the lock, so a strategy may read it from inside
// a callout.
func (v *Vault) TotalDebt() uint64 {
	return v.totalDebt.Load()
}

// RestoreDebt sets the debt from a snapshot.
func (v *Vault) RestoreDebt(debt uint64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.totalDebt.Store(debt)
}

// ============================================================================
// Pool valuation
// ============================================================================

func (v *Vault) totalAssets(ctx context.Context) (uint64, error) {
	idle, err := v.custody.Balance(ctx)
	if err != nil {
		return 0, fmt.Errorf("read idle assets: %w", err)
	}

	if v.cfg.Mode == ModeLive {
		if v.strategy == nil {
			return idle, nil
		}
		lent, err := callout(v, func() (uint64, error) { return v.strategy.TotalAssets(ctx) })
		if err != nil {
			return 0, fmt.Errorf("read strategy assets: %w", err)
		}
		return fpmath.AddUint64(idle, lent)
	}

	return fpmath.AddUint64(idle, v.totalDebt.Load())
}

// pool reads supply first and skips the asset read on an empty pool.
func (v *Vault) pool(ctx context.Context) (Pool, error) {
	supply, err := v.shares.TotalSupply(ctx)
	if err != nil {
		return Pool{}, fmt.Errorf("read share supply: %w", err)
	}
	if supply == 0 {
		return Pool{}, nil
	}

	assets, err := v.totalAssets(ctx)
	if err != nil {
		return Pool{}, err
	}
	return Pool{TotalAssets: assets, TotalShares: supply}, nil
}

// ============================================================================
// Views
// ============================================================================

func (v *Vault) TotalAssets(ctx context.Context) (uint64, error) {
	ctx, release, err := v.enter(ctx)
	if err != nil {
		return 0, err
	}
	defer release()
	return v.totalAssets(ctx)
}

func (v *Vault) TotalSupply(ctx context.Context) (uint64, error) {
	ctx, release, err := v.enter(ctx)
	if err != nil {
		return 0, err
	}
	defer release()
	return v.shares.TotalSupply(ctx)
}

func (v *Vault) BalanceOf(ctx context.Context, owner uuid.UUID) (uint64, error) {
	ctx, release, err := v.enter(ctx)
	if err != nil {
		return 0, err
	}
	defer release()
	return v.shares.BalanceOf(ctx, owner)
}

func (v *Vault) Phase(ctx context.Context) (Phase, error) {
	supply, err := v.TotalSupply(ctx)
	if err != nil {
		return PhaseEmpty, err
	}
	if supply == 0 {
		return PhaseEmpty, nil
	}
	return PhaseActive, nil
}

// Stats reads every pool quantity under one lock.
func (v *Vault) Stats(ctx context.Context) (Stats, error) {
	ctx, release, err := v.enter(ctx)
	if err != nil {
		return Stats{}, err
	}
	defer release()

	idle, err := v.custody.Balance(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("read idle assets: %w", err)
	}
	supply, err := v.shares.TotalSupply(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("read share supply: %w", err)
	}
	assets, err := v.totalAssets(ctx)
	if err != nil {
		return Stats{}, err
	}

	return Stats{
		TotalAssets: assets,
		TotalSupply: supply,
		TotalDebt:   v.totalDebt.Load(),
		IdleAssets:  idle,
	}, nil
}

func (v *Vault) convert(ctx context.Context, fn func(Pool) (uint64, error)) (uint64, error) {
	ctx, release, err := v.enter(ctx)
	if err != nil {
		return 0, err
	}
	defer release()

	p, err := v.pool(ctx)
	if err != nil {
		return 0, err
	}
	return fn(p)
}

// ConvertToShares rounds down.
func (v *Vault) ConvertToShares(ctx context.Context, assets uint64) (uint64, error) {
	return v.convert(ctx, func(p Pool) (uint64, error) {
		return p.SharesForAssets(assets, fpmath.RoundDown)
	})
}

// ConvertToAssets rounds down.
func (v *Vault) ConvertToAssets(ctx context.Context, shares uint64) (uint64, error) {
	return v.convert(ctx, func(p Pool) (uint64, error) {
		return p.AssetsForShares(shares, fpmath.RoundDown)
	})
}

func (v *Vault) PreviewDeposit(ctx context.Context, assets uint64) (uint64, error) {
	return v.convert(ctx, func(p Pool) (uint64, error) {
		return p.SharesForAssets(assets, fpmath.RoundDown)
	})
}

func (v *Vault) PreviewMint(ctx context.Context, shares uint64) (uint64, error) {
	return v.convert(ctx, func(p Pool) (uint64, error) {
		if p.Insolvent() {
			return 0, ErrInsolventPool
		}
		return p.AssetsForShares(shares, fpmath.RoundUp)
	})
}

func (v *Vault) PreviewWithdraw(ctx context.Context, assets uint64) (uint64, error) {
	return v.convert(ctx, func(p Pool) (uint64, error) {
		return p.SharesForAssets(assets, fpmath.RoundUp)
	})
}

func (v *Vault) PreviewRedeem(ctx context.Context, shares uint64) (uint64, error) {
	return v.convert(ctx, func(p Pool) (uint64, error) {
		return p.AssetsForShares(shares, fpmath.RoundDown)
	})
}

// MaxRedeem is the owner's share balance.
func (v *Vault) MaxRedeem(ctx context.Context, owner uuid.UUID) (uint64, error) {
	return v.BalanceOf(ctx, owner)
}

// MaxWithdraw is the owner's balance valued at the current rate.
func (v *Vault) MaxWithdraw(ctx context.Context, owner uuid.UUID) (uint64, error) {
	ctx, release, err := v.enter(ctx)
	if err != nil {
		return 0, err
	}
	defer release()

	balance, err := v.shares.BalanceOf(ctx, owner)
	if err != nil {
		return 0, fmt.Errorf("read share balance: %w", err)
	}
	if balance == 0 {
		return 0, nil
	}
	p, err := v.pool(ctx)
	if err != nil {
		return 0, err
	}
	return p.AssetsForShares(balance, fpmath.RoundDown)
}

// ============================================================================
// Deposit / Mint
// ============================================================================

// Deposit takes assets from caller and mints the shares they buy to
// receiver, rounding in the pool's favour.
func (v *Vault) Deposit(ctx context.Context, caller uuid.UUID, assets uint64, receiver uuid.UUID) (uint64, error) {
	ctx, release, err := v.enter(ctx)
	if err != nil {
		return 0, err
	}
	defer release()

	p, err := v.pool(ctx)
	if err != nil {
		return 0, err
	}
	shares, err := p.SharesForAssets(assets, fpmath.RoundDown)
	if err != nil {
		return 0, err
	}
	if shares == 0 {
		return 0, fmt.Errorf("%w: deposit of %d assets", ErrZeroShares, assets)
	}

	if err := v.issue(ctx, caller, assets, shares, receiver); err != nil {
		return 0, err
	}

	v.logger.Info().
		Str("caller", caller.String()).
		Str("receiver", receiver.String()).
		Uint64("assets", assets).
		Uint64("shares", shares).
		Msg("deposit")
	return shares, nil
}

// Mint mints exactly shares to receiver and returns the assets charged.
func (v *Vault) Mint(ctx context.Context, caller uuid.UUID, shares uint64, receiver uuid.UUID) (uint64, error) {
	ctx, release, err := v.enter(ctx)
	if err != nil {
		return 0, err
	}
	defer release()

	if shares == 0 {
		return 0, fmt.Errorf("%w: mint of 0 shares", ErrZeroShares)
	}

	p, err := v.pool(ctx)
	if err != nil {
		return 0, err
	}
	if p.Insolvent() {
		return 0, ErrInsolventPool
	}
	assets, err := p.AssetsForShares(shares, fpmath.RoundUp)
	if err != nil {
		return 0, err
	}

	if err := v.issue(ctx, caller, assets, shares, receiver); err != nil {
		return 0, err
	}

	v.logger.Info().
		Str("caller", caller.String()).
		Str("receiver", receiver.String()).
		Uint64("assets", assets).
		Uint64("shares", shares).
		Msg("mint")
	return assets, nil
}

func (v *Vault) issue(ctx context.Context, caller uuid.UUID, assets, shares uint64, receiver uuid.UUID) error {
	var undo undoLog

	if err := v.custody.TransferIn(ctx, caller, assets); err != nil {
		return fmt.Errorf("transfer in: %w", err)
	}
	undo.push("transfer in", func(ctx context.Context) error {
		return v.custody.TransferOut(ctx, caller, assets)
	})

	if err := v.shares.Mint(ctx, receiver, shares); err != nil {
		return undo.rollback(ctx, fmt.Errorf("mint shares: %w", err))
	}
	undo.push("mint shares", func(ctx context.Context) error {
		return v.shares.Burn(ctx, receiver, shares)
	})

	if v.hooks.AfterDeposit != nil {
		if err := v.runHook(func() error { return v.hooks.AfterDeposit(ctx, assets, shares) }); err != nil {
			return undo.rollback(ctx, fmt.Errorf("after deposit hook: %w", err))
		}
	}
	return nil
}
