package ledger

import (
	"fmt"
	"sort"
)

// InvariantValidator checks ledger invariants
type InvariantValidator struct {
	tracker *BalanceTracker
}

func NewInvariantValidator(tracker *BalanceTracker) *InvariantValidator {
	return &InvariantValidator{
		tracker: tracker,
	}
}

// ValidateBatchBalance verifies batch is balanced
func (v *InvariantValidator) ValidateBatchBalance(batch *Batch) error {
	return batch.Validate()
}

// ValidateGlobalBalance verifies every token is zero-sum
func (v *InvariantValidator) ValidateGlobalBalance() error {
	totals := v.tracker.ComputeGlobalBalance()

	tokens := make([]string, 0, len(totals))
	for token := range totals {
		tokens = append(tokens, string(token))
	}
	sort.Strings(tokens)

	for _, token := range tokens {
		if total := totals[Symbol(token)]; total != 0 {
			return fmt.Errorf("global balance for %s is non-zero: %d", token, total)
		}
	}

	return nil
}

// ValidateHoldersNonNegative checks that no holder account is overdrawn
func (v *InvariantValidator) ValidateHoldersNonNegative() error {
	for key := range v.tracker.balances {
		if key.Scope != AccountScopeHolder {
			continue
		}
		if err := v.tracker.ValidateNonNegative(key); err != nil {
			return err
		}
	}
	return nil
}

// ValidateSupply verifies total supply equals the sum of holder balances
func (v *InvariantValidator) ValidateSupply(token Symbol) error {
	supply := -v.tracker.GetBalance(NewSystemAccountKey(SystemIssuance, token))
	held := v.tracker.SumHolderBalances(token)

	if supply != held {
		return fmt.Errorf("supply of %s is %d but holders own %d", token, supply, held)
	}
	return nil
}

// ValidateAll runs every invariant for the given tokens
func (v *InvariantValidator) ValidateAll(tokens ...Symbol) error {
	if err := v.ValidateGlobalBalance(); err != nil {
		return err
	}
	if err := v.ValidateHoldersNonNegative(); err != nil {
		return err
	}
	for _, token := range tokens {
		if err := v.ValidateSupply(token); err != nil {
			return err
		}
	}
	return nil
}
