package strategy

import (
	"context"
	"fmt"
	"sync"

	"github.com/LeoVS09/simple-yield-farm/internal/ledger"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Simulated keeps borrowed assets on the book under its own account.
// Yield and slashing are booked explicitly through Report.
type Simulated struct {
	id     uuid.UUID
	asset  *ledger.Token
	vault  uuid.UUID // vault custody account
	logger zerolog.Logger

	mu     sync.Mutex
	lender Lender
}

func NewSimulated(id uuid.UUID, asset *ledger.Token, vaultAccount uuid.UUID, logger zerolog.Logger) *Simulated {
	return &Simulated{
		id:     id,
		asset:  asset,
		vault:  vaultAccount,
		logger: logger.With().Str("strategy", id.String()).Logger(),
	}
}

// Attach sets the vault Work and Repay go through.
func (s *Simulated) Attach(l Lender) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lender = l
}

func (s *Simulated) getLender() (Lender, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lender == nil {
		return nil, ErrNotAttached
	}
	return s.lender, nil
}

func (s *Simulated) ID() uuid.UUID { return s.id }

func (s *Simulated) TotalAssets(ctx context.Context) (uint64, error) {
	return s.asset.BalanceOf(ctx, s.id)
}

// Withdraw returns up to amount to the vault. Whatever it cannot cover is
// reported as loss.
func (s *Simulated) Withdraw(ctx context.Context, amount uint64) (uint64, error) {
	held, err := s.asset.BalanceOf(ctx, s.id)
	if err != nil {
		return 0, err
	}

	returned := min(amount, held)
	if returned > 0 {
		if err := s.asset.Transfer(ctx, s.id, s.vault, returned); err != nil {
			return 0, fmt.Errorf("return assets: %w", err)
		}
	}

	loss := amount - returned
	if loss > 0 {
		s.logger.Warn().
			Uint64("requested", amount).
			Uint64("returned", returned).
			Uint64("loss", loss).
			Msg("withdraw short")
	}
	return loss, nil
}

// Report books a harvest or a write-down on the strategy's holdings.
func (s *Simulated) Report(ctx context.Context, gain, loss uint64) error {
	switch {
	case gain > 0 && loss > 0:
		return ErrAmbiguousReport
	case gain > 0:
		if err := s.asset.Mint(ctx, s.id, gain); err != nil {
			return fmt.Errorf("book gain: %w", err)
		}
	case loss > 0:
		held, err := s.asset.BalanceOf(ctx, s.id)
		if err != nil {
			return err
		}
		if loss > held {
			return fmt.Errorf("%w: loss %d, held %d", ErrLossExceedsHoldings, loss, held)
		}
		if err := s.asset.Burn(ctx, s.id, loss); err != nil {
			return fmt.Errorf("book loss: %w", err)
		}
	}

	s.logger.Info().Uint64("gain", gain).Uint64("loss", loss).Msg("report")
	return nil
}

// Work borrows all credit the vault currently offers.
func (s *Simulated) Work(ctx context.Context) (uint64, error) {
	lender, err := s.getLender()
	if err != nil {
		return 0, err
	}

	credit, err := lender.CreditAvailable(ctx)
	if err != nil {
		return 0, fmt.Errorf("credit available: %w", err)
	}
	if credit == 0 {
		return 0, nil
	}

	if err := lender.Borrow(ctx, s.id, credit); err != nil {
		return 0, err
	}
	return credit, nil
}

// Borrow takes a specific amount of credit.
func (s *Simulated) Borrow(ctx context.Context, amount uint64) error {
	lender, err := s.getLender()
	if err != nil {
		return err
	}
	return lender.Borrow(ctx, s.id, amount)
}

// Repay returns assets to the vault and reports the debt it cleared.
func (s *Simulated) Repay(ctx context.Context, amount uint64) (uint64, error) {
	lender, err := s.getLender()
	if err != nil {
		return 0, err
	}
	return lender.Repay(ctx, s.id, amount)
}
