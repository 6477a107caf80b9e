package vault

import (
	"context"
	"fmt"

	fpmath "github.com/LeoVS09/simple-yield-farm/internal/math"

	"github.com/google/uuid"
)

func (v *Vault) requireStrategy(caller uuid.UUID) error {
	if v.strategy == nil || v.strategy.ID() != caller {
		return fmt.Errorf("%w: %s", ErrUnauthorizedBorrow, caller)
	}
	return nil
}

// Borrow lends idle assets to the registered strategy.
func (v *Vault) Borrow(ctx context.Context, caller uuid.UUID, amount uint64) error {
	ctx, release, err := v.enter(ctx)
	if err != nil {
		return err
	}
	defer release()

	if err := v.requireStrategy(caller); err != nil {
		return err
	}
	if amount == 0 {
		return fmt.Errorf("%w: borrow of 0", ErrInvalidAmount)
	}

	debt, err := fpmath.AddUint64(v.totalDebt.Load(), amount)
	if err != nil {
		return err
	}

	idle, err := v.custody.Balance(ctx)
	if err != nil {
		return fmt.Errorf("read idle assets: %w", err)
	}
	if idle < amount {
		return fmt.Errorf("%w: borrow %d, idle %d", ErrInsufficientLiquidity, amount, idle)
	}

	if err := v.custody.TransferOut(ctx, caller, amount); err != nil {
		return fmt.Errorf("transfer out: %w", err)
	}
	v.totalDebt.Store(debt)

	v.logger.Info().
		Str("strategy", caller.String()).
		Uint64("amount", amount).
		Uint64("debt", debt).
		Msg("borrow")
	return nil
}

// Repay returns assets from the strategy. Anything above the outstanding
// debt is profit and stays idle. Returns the debt actually repaid.
func (v *Vault) Repay(ctx context.Context, caller uuid.UUID, amount uint64) (uint64, error) {
	ctx, release, err := v.enter(ctx)
	if err != nil {
		return 0, err
	}
	defer release()

	if err := v.requireStrategy(caller); err != nil {
		return 0, err
	}
	if amount == 0 {
		return 0, fmt.Errorf("%w: repay of 0", ErrInvalidAmount)
	}

	if err := v.custody.TransferIn(ctx, caller, amount); err != nil {
		return 0, fmt.Errorf("transfer in: %w", err)
	}

	debt := v.totalDebt.Load()
	repaid := min(amount, debt)
	v.totalDebt.Store(debt - repaid)

	v.logger.Info().
		Str("strategy", caller.String()).
		Uint64("amount", amount).
		Uint64("repaid", repaid).
		Uint64("debt", debt-repaid).
		Msg("repay")
	return repaid, nil
}

// CreditAvailable is the idle balance above the configured reserve.
func (v *Vault) CreditAvailable(ctx context.Context) (uint64, error) {
	ctx, release, err := v.enter(ctx)
	if err != nil {
		return 0, err
	}
	defer release()

	idle, err := v.custody.Balance(ctx)
	if err != nil {
		return 0, fmt.Errorf("read idle assets: %w", err)
	}
	assets, err := v.totalAssets(ctx)
	if err != nil {
		return 0, err
	}

	return fpmath.SubSat(idle, fpmath.BpsOf(assets, v.cfg.ReserveBps)), nil
}

// TransferShares moves shares between holders. The rate is unaffected.
func (v *Vault) TransferShares(ctx context.Context, from, to uuid.UUID, shares uint64) error {
	ctx, release, err := v.enter(ctx)
	if err != nil {
		return err
	}
	defer release()

	if shares == 0 {
		return fmt.Errorf("%w: transfer of 0 shares", ErrInvalidAmount)
	}
	if err := v.requireShares(ctx, from, shares); err != nil {
		return err
	}
	if err := v.shares.Transfer(ctx, from, to, shares); err != nil {
		return fmt.Errorf("transfer shares: %w", err)
	}
	return nil
}
