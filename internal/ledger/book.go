package ledger

import (
	"fmt"
	gomath "math"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// Book is the double-entry book every token is issued on. Postings are
// applied immediately and also queued as pending journals until the
// caller drains them into a batch (or discards them after a rollback).
type Book struct {
	mu        sync.Mutex
	tracker   *BalanceTracker
	validator *InvariantValidator
	tokens    map[Symbol]*Token

	batchID   uuid.UUID
	eventRef  string
	sequence  int64
	timestamp int64
	pending   []Journal
}

func NewBook() *Book {
	tracker := NewBalanceTracker()
	return &Book{
		tracker:   tracker,
		validator: NewInvariantValidator(tracker),
		tokens:    make(map[Symbol]*Token),
		batchID:   uuid.New(),
	}
}

// Issue registers a new token on the book.
func (b *Book) Issue(symbol Symbol, decimals int32) (*Token, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if symbol == "" {
		return nil, fmt.Errorf("%w: empty symbol", ErrUnknownToken)
	}
	if _, ok := b.tokens[symbol]; ok {
		return nil, fmt.Errorf("%w: %s", ErrTokenExists, symbol)
	}

	t := &Token{book: b, symbol: symbol, decimals: decimals}
	b.tokens[symbol] = t
	return t, nil
}

// Token looks up an issued token.
func (b *Book) Token(symbol Symbol) (*Token, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.tokens[symbol]
	return t, ok
}

// Symbols returns every issued token symbol, sorted.
func (b *Book) Symbols() []Symbol {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]Symbol, 0, len(b.tokens))
	for s := range b.tokens {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Begin stamps subsequent postings with the source command. Any pending
// journals from an earlier command are dropped.
func (b *Book) Begin(eventRef string, sequence, timestamp int64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.pending = nil
	b.batchID = uuid.New()
	b.eventRef = eventRef
	b.sequence = sequence
	b.timestamp = timestamp
}

// Drain returns the pending journals as a batch and starts a new one.
// Returns nil when nothing was posted.
func (b *Book) Drain() *Batch {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.pending) == 0 {
		b.batchID = uuid.New()
		return nil
	}

	batch := &Batch{
		BatchID:   b.batchID,
		EventRef:  b.eventRef,
		Sequence:  b.sequence,
		Timestamp: b.timestamp,
		Journals:  b.pending,
	}
	b.pending = nil
	b.batchID = uuid.New()
	return batch
}

// Balance returns the raw signed balance of an account.
func (b *Book) Balance(key AccountKey) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tracker.GetBalance(key)
}

// Snapshot copies every non-zero balance.
func (b *Book) Snapshot() map[AccountKey]int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tracker.Snapshot()
}

// Restore replaces all balances. Tokens must already be issued.
func (b *Book) Restore(balances map[AccountKey]int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for key := range balances {
		if _, ok := b.tokens[key.Token]; !ok {
			return fmt.Errorf("%w: %s", ErrUnknownToken, key.Token)
		}
	}

	tracker := NewBalanceTracker()
	for key, balance := range balances {
		tracker.SetBalance(key, balance)
	}

	symbols := make([]Symbol, 0, len(b.tokens))
	for s := range b.tokens {
		symbols = append(symbols, s)
	}

	validator := NewInvariantValidator(tracker)
	if err := validator.ValidateAll(symbols...); err != nil {
		return fmt.Errorf("restored balances violate invariants: %w", err)
	}

	b.tracker = tracker
	b.validator = validator
	b.pending = nil
	return nil
}

// Validate runs every ledger invariant over all issued tokens.
func (b *Book) Validate() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	symbols := make([]Symbol, 0, len(b.tokens))
	for s := range b.tokens {
		symbols = append(symbols, s)
	}
	return b.validator.ValidateAll(symbols...)
}

// post applies one journal. The credited holder must cover the amount.
func (b *Book) post(journalType JournalType, debit, credit AccountKey, amount uint64) error {
	if amount > gomath.MaxInt64 {
		return fmt.Errorf("%w: %d", ErrAmountOutOfRange, amount)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.tokens[debit.Token]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownToken, debit.Token)
	}

	j := Journal{
		JournalID:     uuid.New(),
		BatchID:       b.batchID,
		EventRef:      b.eventRef,
		Sequence:      b.sequence,
		DebitAccount:  debit,
		CreditAccount: credit,
		Token:         debit.Token,
		Amount:        int64(amount),
		JournalType:   journalType,
		Timestamp:     b.timestamp,
	}
	if err := j.validate(); err != nil {
		return err
	}

	if credit.Scope == AccountScopeHolder {
		if err := b.tracker.ValidateSufficient(credit, j.Amount); err != nil {
			return err
		}
	}

	// Issuance grows negative with supply; keep it inside int64.
	if journalType == JournalTypeMint {
		if b.tracker.GetBalance(credit) < gomath.MinInt64+j.Amount {
			return fmt.Errorf("%w: supply of %s", ErrAmountOutOfRange, debit.Token)
		}
	}

	b.tracker.ApplyJournal(j)
	b.pending = append(b.pending, j)
	return nil
}

// checkCover fails when a holder cannot cover amount. Used for
// self-transfers, which post nothing.
func (b *Book) checkCover(key AccountKey, amount uint64) error {
	if amount > gomath.MaxInt64 {
		return ErrAmountOutOfRange
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tracker.ValidateSufficient(key, int64(amount))
}
