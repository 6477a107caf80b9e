package persistence

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/LeoVS09/simple-yield-farm/internal/event"
	"github.com/LeoVS09/simple-yield-farm/internal/ledger"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleEnvelope(seq int64) *event.EventEnvelope {
	env := &event.EventEnvelope{
		Sequence:       seq,
		IdempotencyKey: uuid.NewString(),
		EventType:      event.EventTypeDeposit,
		Partition:      "holder:a11ce000-0000-4000-8000-000000000001",
		Timestamp:      time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		SourceSequence: seq + 10,
		Payload:        []byte(`{"assets":1000}`),
	}
	env.StateHash[0] = byte(seq + 1)
	env.PrevHash[0] = byte(seq)
	return env
}

func TestPlaceholders(t *testing.T) {
	assert.Equal(t, "($1, $2, $3)", placeholders(0, 3))
	assert.Equal(t, "($11, $12)", placeholders(10, 2))
}

func TestEventRowEnvelopeRoundTrip(t *testing.T) {
	env := sampleEnvelope(7)
	env.Rejection = "insufficient_shares"

	got, err := EventRowFromEnvelope(env).Envelope()
	require.NoError(t, err)
	if diff := cmp.Diff(env, got); diff != "" {
		t.Errorf("envelope mismatch (-want +got):\n%s", diff)
	}
}

func TestEventRowEnvelopeRejectsBadRows(t *testing.T) {
	row := EventRowFromEnvelope(sampleEnvelope(1))
	row.EventType = "Liquidation"
	_, err := row.Envelope()
	assert.Error(t, err)

	row = EventRowFromEnvelope(sampleEnvelope(1))
	row.StateHash = row.StateHash[:16]
	_, err = row.Envelope()
	assert.Error(t, err)
}

func TestJournalRowsFromBatch(t *testing.T) {
	assert.Nil(t, JournalRowsFromBatch(nil))

	holder := uuid.MustParse("a11ce000-0000-4000-8000-000000000001")
	batch := &ledger.Batch{
		BatchID: uuid.New(),
		Journals: []ledger.Journal{{
			JournalID:     uuid.New(),
			EventRef:      "cmd-1",
			Sequence:      3,
			DebitAccount:  ledger.NewHolderAccountKey(holder, "USDT"),
			CreditAccount: ledger.NewSystemAccountKey("issuance", "USDT"),
			Token:         "USDT",
			Amount:        500,
			JournalType:   ledger.JournalTypeMint,
			Timestamp:     42,
		}},
	}

	rows := JournalRowsFromBatch(batch)
	require.Len(t, rows, 1)
	assert.Equal(t, "holder:a11ce000-0000-4000-8000-000000000001:USDT", rows[0].DebitAccount)
	assert.Equal(t, "system:issuance:USDT", rows[0].CreditAccount)
	assert.Equal(t, "mint", rows[0].JournalType)
	assert.Equal(t, int64(500), rows[0].Amount)
}

func TestWriteEventBatch(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	w := NewEventLogWriter()
	rows := []EventRow{EventRowFromEnvelope(sampleEnvelope(0)), EventRowFromEnvelope(sampleEnvelope(1))}

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO event_log.events") + `.*\(\$11, .*\$20\) ON CONFLICT DO NOTHING`).
		WillReturnResult(sqlmock.NewResult(0, 2))

	require.NoError(t, w.WriteEventBatch(context.Background(), db, rows))
	require.NoError(t, w.WriteEventBatch(context.Background(), db, nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWriteJournalBatchPropagatesError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	boom := errors.New("connection reset")
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO event_log.journal")).WillReturnError(boom)

	err = NewEventLogWriter().WriteJournalBatch(context.Background(), db, []JournalRow{{JournalID: "j"}})
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}
