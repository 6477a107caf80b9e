package vault

import (
	"context"

	"github.com/google/uuid"
)

// ShareLedger tracks share ownership. Every call is atomic.
type ShareLedger interface {
	Mint(ctx context.Context, to uuid.UUID, amount uint64) error
	Burn(ctx context.Context, from uuid.UUID, amount uint64) error
	Transfer(ctx context.Context, from, to uuid.UUID, amount uint64) error
	BalanceOf(ctx context.Context, owner uuid.UUID) (uint64, error)
	TotalSupply(ctx context.Context) (uint64, error)
}

// AssetCustody holds the vault's idle assets.
type AssetCustody interface {
	TransferIn(ctx context.Context, from uuid.UUID, amount uint64) error
	TransferOut(ctx context.Context, to uuid.UUID, amount uint64) error
	Balance(ctx context.Context) (uint64, error)
}

// Strategy borrows idle assets through Vault.Borrow and returns them on
// Withdraw. Withdraw transfers up to amount back into custody and reports
// the part it could not recover as loss.
type Strategy interface {
	ID() uuid.UUID
	TotalAssets(ctx context.Context) (uint64, error)
	Withdraw(ctx context.Context, amount uint64) (loss uint64, err error)
}

// Hooks are optional callbacks run inside an operation. An error aborts
// the operation and rolls it back.
type Hooks struct {
	AfterDeposit   func(ctx context.Context, assets, shares uint64) error
	BeforeWithdraw func(ctx context.Context, assets, shares uint64) error
}
