package ledger

import (
	"fmt"

	"github.com/google/uuid"
)

// BalanceTracker maintains in-memory account balances.
// Not thread-safe; the owning Book serialises access.
type BalanceTracker struct {
	balances map[AccountKey]int64
}

func NewBalanceTracker() *BalanceTracker {
	return &BalanceTracker{
		balances: make(map[AccountKey]int64),
	}
}

// ApplyJournal applies a single journal entry to balances
func (bt *BalanceTracker) ApplyJournal(j Journal) {
	bt.balances[j.DebitAccount] += j.Amount
	bt.balances[j.CreditAccount] -= j.Amount
}

// ApplyBatch applies all journals in a batch
func (bt *BalanceTracker) ApplyBatch(batch *Batch) error {
	if err := batch.Validate(); err != nil {
		return fmt.Errorf("invalid batch: %w", err)
	}

	for _, j := range batch.Journals {
		bt.ApplyJournal(j)
	}

	return nil
}

// GetBalance returns the current balance for an account
func (bt *BalanceTracker) GetBalance(key AccountKey) int64 {
	return bt.balances[key]
}

// SetBalance overwrites a balance. Used by snapshot restore only.
func (bt *BalanceTracker) SetBalance(key AccountKey, balance int64) {
	if balance == 0 {
		delete(bt.balances, key)
		return
	}
	bt.balances[key] = balance
}

// GetHolderBalance returns a holder's balance of one token
func (bt *BalanceTracker) GetHolderBalance(holder uuid.UUID, token Symbol) int64 {
	return bt.GetBalance(NewHolderAccountKey(holder, token))
}

// SumHolderBalances adds up every holder account of a token.
func (bt *BalanceTracker) SumHolderBalances(token Symbol) int64 {
	var sum int64
	for key, balance := range bt.balances {
		if key.Scope == AccountScopeHolder && key.Token == token {
			sum += balance
		}
	}
	return sum
}

// ComputeGlobalBalance sums all account balances per token (should be 0 for zero-sum ledger)
func (bt *BalanceTracker) ComputeGlobalBalance() map[Symbol]int64 {
	totals := make(map[Symbol]int64)

	for key, balance := range bt.balances {
		totals[key.Token] += balance
	}

	return totals
}

// ValidateNonNegative checks that a specific account balance is >= 0
func (bt *BalanceTracker) ValidateNonNegative(key AccountKey) error {
	balance := bt.GetBalance(key)
	if balance < 0 {
		return fmt.Errorf("account %s has negative balance: %d", key.AccountPath(), balance)
	}
	return nil
}

// ValidateSufficient checks if an account can be credited by amount
func (bt *BalanceTracker) ValidateSufficient(key AccountKey, required int64) error {
	available := bt.GetBalance(key)
	if available < required {
		return fmt.Errorf("%w: %s have=%d, need=%d",
			ErrInsufficientBalance, key.AccountPath(), available, required)
	}
	return nil
}

// Snapshot returns a copy of all balances (for state hashing)
func (bt *BalanceTracker) Snapshot() map[AccountKey]int64 {
	snapshot := make(map[AccountKey]int64, len(bt.balances))
	for k, v := range bt.balances {
		snapshot[k] = v
	}
	return snapshot
}
