package ledger

import (
	"fmt"

	"github.com/google/uuid"
)

// JournalType represents the purpose of a journal entry
type JournalType int32

const (
	JournalTypeMint JournalType = iota
	JournalTypeBurn
	JournalTypeTransfer
)

func (t JournalType) String() string {
	switch t {
	case JournalTypeMint:
		return "mint"
	case JournalTypeBurn:
		return "burn"
	case JournalTypeTransfer:
		return "transfer"
	default:
		return "unknown"
	}
}

// Journal represents a single double-entry journal entry
type Journal struct {
	JournalID     uuid.UUID   // Unique identifier
	BatchID       uuid.UUID   // Groups entries produced by one command
	EventRef      string      // Idempotency key of source command
	Sequence      int64       // Global event sequence
	DebitAccount  AccountKey  // Account receiving debit (balance increases)
	CreditAccount AccountKey  // Account receiving credit (balance decreases)
	Token         Symbol      // Token being moved
	Amount        int64       // Fixed-point amount (ALWAYS positive)
	JournalType   JournalType // Entry type
	Timestamp     int64       // Versioned input timestamp (epoch microseconds)
}

// Batch represents the set of journal entries produced by one command
type Batch struct {
	BatchID   uuid.UUID
	EventRef  string
	Sequence  int64
	Timestamp int64
	Journals  []Journal
}

// Validate ensures the batch is well-formed. Each entry moves one positive
// amount from its credit account to its debit account, so every entry is
// balanced on its own.
func (b *Batch) Validate() error {
	if len(b.Journals) == 0 {
		return fmt.Errorf("batch %s is empty", b.BatchID)
	}

	for _, j := range b.Journals {
		if err := j.validate(); err != nil {
			return err
		}

		if j.BatchID != b.BatchID {
			return fmt.Errorf("journal %s has mismatched batch_id", j.JournalID)
		}
	}

	return nil
}

func (j Journal) validate() error {
	if j.Amount <= 0 {
		return fmt.Errorf("journal %s has non-positive amount: %d", j.JournalID, j.Amount)
	}

	// No self-transfers
	if j.DebitAccount == j.CreditAccount {
		return fmt.Errorf("journal %s has same debit and credit account", j.JournalID)
	}

	if j.DebitAccount.Token != j.Token || j.CreditAccount.Token != j.Token {
		return fmt.Errorf("journal %s mixes tokens (%s -> %s as %s)",
			j.JournalID, j.CreditAccount.Token, j.DebitAccount.Token, j.Token)
	}

	return nil
}
