package vault

import (
	"context"
	"fmt"

	fpmath "github.com/LeoVS09/simple-yield-farm/internal/math"

	"github.com/google/uuid"
)

// Withdraw burns the shares worth assets (rounded up) from owner and pays
// receiver. maxLossBps bounds the strategy loss the owner accepts.
func (v *Vault) Withdraw(ctx context.Context, owner uuid.UUID, assets uint64, maxLossBps uint32, receiver uuid.UUID) (Receipt, error) {
	ctx, release, err := v.enter(ctx)
	if err != nil {
		return Receipt{}, err
	}
	defer release()

	if assets == 0 {
		return Receipt{}, fmt.Errorf("%w: withdraw of 0 assets", ErrInvalidAmount)
	}
	if maxLossBps > fpmath.MaxBps {
		return Receipt{}, fmt.Errorf("%w: max loss %d bps", ErrInvalidAmount, maxLossBps)
	}

	p, err := v.pool(ctx)
	if err != nil {
		return Receipt{}, err
	}
	shares, err := p.SharesForAssets(assets, fpmath.RoundUp)
	if err != nil {
		return Receipt{}, err
	}
	if err := v.requireShares(ctx, owner, shares); err != nil {
		return Receipt{}, err
	}

	return v.settle(ctx, owner, shares, assets, maxLossBps, receiver)
}

// Redeem burns exactly shares from owner and pays receiver their value
// (rounded down).
func (v *Vault) Redeem(ctx context.Context, owner uuid.UUID, shares uint64, maxLossBps uint32, receiver uuid.UUID) (Receipt, error) {
	ctx, release, err := v.enter(ctx)
	if err != nil {
		return Receipt{}, err
	}
	defer release()

	if maxLossBps > fpmath.MaxBps {
		return Receipt{}, fmt.Errorf("%w: max loss %d bps", ErrInvalidAmount, maxLossBps)
	}
	if err := v.requireShares(ctx, owner, shares); err != nil {
		return Receipt{}, err
	}

	p, err := v.pool(ctx)
	if err != nil {
		return Receipt{}, err
	}
	assets, err := p.AssetsForShares(shares, fpmath.RoundDown)
	if err != nil {
		return Receipt{}, err
	}
	if assets == 0 {
		return Receipt{}, fmt.Errorf("%w: redeem of %d shares", ErrZeroAssets, shares)
	}

	return v.settle(ctx, owner, shares, assets, maxLossBps, receiver)
}

func (v *Vault) requireShares(ctx context.Context, owner uuid.UUID, shares uint64) error {
	balance, err := v.shares.BalanceOf(ctx, owner)
	if err != nil {
		return fmt.Errorf("read share balance: %w", err)
	}
	if shares > balance {
		return fmt.Errorf("%w: have %d, need %d", ErrInsufficientShares, balance, shares)
	}
	return nil
}

// settle pays out assets for shares, pulling any shortfall from the
// strategy. Debt is only committed once every collaborator call succeeded.
func (v *Vault) settle(ctx context.Context, owner uuid.UUID, shares, assets uint64, maxLossBps uint32, receiver uuid.UUID) (Receipt, error) {
	var undo undoLog

	idle, err := v.custody.Balance(ctx)
	if err != nil {
		return Receipt{}, fmt.Errorf("read idle assets: %w", err)
	}

	var shortfall, loss uint64
	if idle < assets {
		shortfall = assets - idle
		if err := v.requireRecoverable(ctx, shortfall); err != nil {
			return Receipt{}, err
		}
		if loss, err = v.pull(ctx, idle, shortfall, &undo); err != nil {
			return Receipt{}, undo.rollback(ctx, err)
		}
	}

	if fpmath.ExceedsBps(loss, assets, maxLossBps) {
		return Receipt{}, undo.rollback(ctx, fmt.Errorf("%w: loss %d on %d assets, max %d bps",
			ErrExcessiveLoss, loss, assets, maxLossBps))
	}

	if v.hooks.BeforeWithdraw != nil {
		if err := v.runHook(func() error { return v.hooks.BeforeWithdraw(ctx, assets, shares) }); err != nil {
			return Receipt{}, undo.rollback(ctx, fmt.Errorf("before withdraw hook: %w", err))
		}
	}

	if err := v.shares.Burn(ctx, owner, shares); err != nil {
		return Receipt{}, undo.rollback(ctx, fmt.Errorf("burn shares: %w", err))
	}
	undo.push("burn shares", func(ctx context.Context) error {
		return v.shares.Mint(ctx, owner, shares)
	})

	delivered := assets - loss
	if delivered > 0 {
		if err := v.custody.TransferOut(ctx, receiver, delivered); err != nil {
			return Receipt{}, undo.rollback(ctx, fmt.Errorf("transfer out: %w", err))
		}
	}

	v.totalDebt.Store(fpmath.SubSat(v.totalDebt.Load(), shortfall))

	receipt := Receipt{
		Shares:    shares,
		Assets:    assets,
		Loss:      loss,
		Delivered: delivered,
		Pulled:    shortfall,
	}
	v.logger.Info().
		Str("owner", owner.String()).
		Str("receiver", receiver.String()).
		Uint64("shares", shares).
		Uint64("assets", assets).
		Uint64("loss", loss).
		Uint64("pulled", shortfall).
		Msg("withdraw")
	return receipt, nil
}

// requireRecoverable fails before touching the strategy when it cannot
// cover the shortfall.
func (v *Vault) requireRecoverable(ctx context.Context, shortfall uint64) error {
	if v.strategy == nil {
		return fmt.Errorf("%w: short %d with no strategy", ErrInsufficientLiquidity, shortfall)
	}

	recoverable := v.totalDebt.Load()
	if v.cfg.Mode == ModeLive {
		lent, err := callout(v, func() (uint64, error) { return v.strategy.TotalAssets(ctx) })
		if err != nil {
			return fmt.Errorf("read strategy assets: %w", err)
		}
		recoverable = lent
	}

	if shortfall > recoverable {
		return fmt.Errorf("%w: short %d, strategy can return %d", ErrInsufficientLiquidity, shortfall, recoverable)
	}
	return nil
}

// pull asks the strategy for shortfall and checks what custody received.
// The received assets are handed back on rollback.
func (v *Vault) pull(ctx context.Context, idle, shortfall uint64, undo *undoLog) (uint64, error) {
	strategy := v.strategy

	loss, err := callout(v, func() (uint64, error) { return strategy.Withdraw(ctx, shortfall) })
	if err != nil {
		return 0, fmt.Errorf("strategy withdraw: %w", err)
	}

	after, err := v.custody.Balance(ctx)
	if err != nil {
		return 0, fmt.Errorf("read idle assets: %w", err)
	}
	received := fpmath.SubSat(after, idle)
	if received > 0 {
		undo.push("strategy withdraw", func(ctx context.Context) error {
			return v.custody.TransferOut(ctx, strategy.ID(), received)
		})
	}

	if loss > shortfall {
		return 0, fmt.Errorf("%w: loss %d on %d requested", ErrStrategyMisreport, loss, shortfall)
	}
	if received < shortfall-loss {
		return 0, fmt.Errorf("%w: received %d, expected %d", ErrStrategyMisreport, received, shortfall-loss)
	}

	v.logger.Debug().
		Str("strategy", strategy.ID().String()).
		Uint64("requested", shortfall).
		Uint64("received", received).
		Uint64("loss", loss).
		Msg("pulled from strategy")
	return loss, nil
}
