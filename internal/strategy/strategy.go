package strategy

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrNotAttached          = errors.New("strategy is not attached to a vault")
	ErrAmbiguousReport      = errors.New("report carries both gain and loss")
	ErrLossExceedsHoldings  = errors.New("loss exceeds strategy holdings")
	ErrRemoteStrategyFailed = errors.New("remote strategy failed")
)

// Lender is the vault side a strategy borrows from and repays to.
type Lender interface {
	Borrow(ctx context.Context, caller uuid.UUID, amount uint64) error
	Repay(ctx context.Context, caller uuid.UUID, amount uint64) (uint64, error)
	CreditAvailable(ctx context.Context) (uint64, error)
}
