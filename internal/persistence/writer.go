package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/LeoVS09/simple-yield-farm/internal/event"
	"github.com/LeoVS09/simple-yield-farm/internal/ledger"
)

// Execer is satisfied by *sql.DB and *sql.Tx.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// EventLogWriter writes events and journals to Postgres using multi-row
// INSERTs. Conflicts on any unique key are skipped so a retried batch is
// harmless.
type EventLogWriter struct{}

// EventRow represents a row in event_log.events
type EventRow struct {
	Sequence       int64
	EventType      string
	IdempotencyKey string
	Partition      string
	Payload        []byte // JSON-encoded command
	Rejection      string
	StateHash      []byte
	PrevHash       []byte
	Timestamp      time.Time
	SourceSequence int64
}

// JournalRow represents a row in event_log.journal
type JournalRow struct {
	JournalID     string
	BatchID       string
	EventRef      string
	Sequence      int64
	DebitAccount  string
	CreditAccount string
	Token         string
	Amount        int64
	JournalType   string
	Timestamp     int64
}

func NewEventLogWriter() *EventLogWriter {
	return &EventLogWriter{}
}

// EventRowFromEnvelope flattens an envelope for storage.
func EventRowFromEnvelope(env *event.EventEnvelope) EventRow {
	return EventRow{
		Sequence:       env.Sequence,
		EventType:      env.EventType.String(),
		IdempotencyKey: env.IdempotencyKey,
		Partition:      env.Partition,
		Payload:        env.Payload,
		Rejection:      env.Rejection,
		StateHash:      env.StateHash[:],
		PrevHash:       env.PrevHash[:],
		Timestamp:      env.Timestamp,
		SourceSequence: env.SourceSequence,
	}
}

// Envelope rebuilds the envelope a row was written from.
func (r EventRow) Envelope() (*event.EventEnvelope, error) {
	et, ok := event.ParseEventType(r.EventType)
	if !ok {
		return nil, fmt.Errorf("sequence %d: unknown event type %q", r.Sequence, r.EventType)
	}
	if len(r.StateHash) != 32 || len(r.PrevHash) != 32 {
		return nil, fmt.Errorf("sequence %d: malformed hash", r.Sequence)
	}

	env := &event.EventEnvelope{
		Sequence:       r.Sequence,
		IdempotencyKey: r.IdempotencyKey,
		EventType:      et,
		Partition:      r.Partition,
		Timestamp:      r.Timestamp,
		SourceSequence: r.SourceSequence,
		Payload:        r.Payload,
		Rejection:      r.Rejection,
	}
	copy(env.StateHash[:], r.StateHash)
	copy(env.PrevHash[:], r.PrevHash)
	return env, nil
}

// JournalRowsFromBatch flattens a batch for storage. A nil batch has no rows.
func JournalRowsFromBatch(batch *ledger.Batch) []JournalRow {
	if batch == nil {
		return nil
	}
	rows := make([]JournalRow, 0, len(batch.Journals))
	for _, j := range batch.Journals {
		rows = append(rows, JournalRow{
			JournalID:     j.JournalID.String(),
			BatchID:       j.BatchID.String(),
			EventRef:      j.EventRef,
			Sequence:      j.Sequence,
			DebitAccount:  j.DebitAccount.AccountPath(),
			CreditAccount: j.CreditAccount.AccountPath(),
			Token:         string(j.Token),
			Amount:        j.Amount,
			JournalType:   j.JournalType.String(),
			Timestamp:     j.Timestamp,
		})
	}
	return rows
}

// WriteEventBatch writes a batch of events to event_log.events using multi-row INSERT.
func (w *EventLogWriter) WriteEventBatch(ctx context.Context, tx Execer, events []EventRow) error {
	if len(events) == 0 {
		return nil
	}

	query := `INSERT INTO event_log.events
		(sequence, event_type, idempotency_key, partition_key, payload, rejection, state_hash, prev_hash, timestamp, source_sequence)
		VALUES `

	const cols = 10
	values := make([]string, 0, len(events))
	args := make([]any, 0, len(events)*cols)

	for i, e := range events {
		values = append(values, placeholders(i*cols, cols))
		args = append(args,
			e.Sequence, e.EventType, e.IdempotencyKey, e.Partition,
			e.Payload, e.Rejection, e.StateHash, e.PrevHash, e.Timestamp, e.SourceSequence,
		)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT DO NOTHING"

	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

// WriteJournalBatch writes a batch of journal entries to event_log.journal.
func (w *EventLogWriter) WriteJournalBatch(ctx context.Context, tx Execer, journals []JournalRow) error {
	if len(journals) == 0 {
		return nil
	}

	query := `INSERT INTO event_log.journal
		(journal_id, batch_id, event_ref, sequence, debit_account, credit_account, token, amount, journal_type, timestamp)
		VALUES `

	const cols = 10
	values := make([]string, 0, len(journals))
	args := make([]any, 0, len(journals)*cols)

	for i, j := range journals {
		values = append(values, placeholders(i*cols, cols))
		args = append(args,
			j.JournalID, j.BatchID, j.EventRef, j.Sequence,
			j.DebitAccount, j.CreditAccount, j.Token, j.Amount,
			j.JournalType, j.Timestamp,
		)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (journal_id) DO NOTHING"

	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

// placeholders renders "($base+1, ..., $base+n)".
func placeholders(base, n int) string {
	var b strings.Builder
	b.WriteByte('(')
	for i := 1; i <= n; i++ {
		if i > 1 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "$%d", base+i)
	}
	b.WriteByte(')')
	return b.String()
}
