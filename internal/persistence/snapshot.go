package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/LeoVS09/simple-yield-farm/internal/core"
	"github.com/LeoVS09/simple-yield-farm/internal/ledger"

	"github.com/google/uuid"
)

const snapshotFormatVersion = 1

// SnapshotManager handles creating and loading state snapshots for recovery.
type SnapshotManager struct {
	db *sql.DB
}

// SnapshotData is the JSON form of core.SnapshotState.
type SnapshotData struct {
	Sequence        int64            `json:"sequence"`
	StateHash       []byte           `json:"state_hash"`
	Balances        map[string]int64 `json:"balances"` // AccountPath -> balance
	TotalDebt       uint64           `json:"total_debt"`
	SequenceState   map[string]int64 `json:"sequence_state"`   // partition -> next expected seq
	IdempotencyKeys []string         `json:"idempotency_keys"` // oldest first
	CreatedAt       time.Time        `json:"created_at"`
}

// SnapshotFromState converts the processor's snapshot for storage.
func SnapshotFromState(s *core.SnapshotState, createdAt time.Time) *SnapshotData {
	balances := make(map[string]int64, len(s.Balances))
	for key, b := range s.Balances {
		balances[key.AccountPath()] = b
	}
	return &SnapshotData{
		Sequence:        s.Sequence,
		StateHash:       s.StateHash[:],
		Balances:        balances,
		TotalDebt:       s.TotalDebt,
		SequenceState:   s.SequenceState,
		IdempotencyKeys: s.IdempotencyKeys,
		CreatedAt:       createdAt,
	}
}

// State converts stored data back into a processor snapshot.
func (d *SnapshotData) State() (*core.SnapshotState, error) {
	if len(d.StateHash) != 32 {
		return nil, fmt.Errorf("snapshot %d: malformed state hash", d.Sequence)
	}

	balances := make(map[ledger.AccountKey]int64, len(d.Balances))
	for path, b := range d.Balances {
		key, err := ledger.ParseAccountPath(path)
		if err != nil {
			return nil, fmt.Errorf("snapshot %d: %w", d.Sequence, err)
		}
		balances[key] = b
	}

	s := &core.SnapshotState{
		Sequence:        d.Sequence,
		Balances:        balances,
		TotalDebt:       d.TotalDebt,
		SequenceState:   d.SequenceState,
		IdempotencyKeys: d.IdempotencyKeys,
	}
	copy(s.StateHash[:], d.StateHash)
	return s, nil
}

func NewSnapshotManager(db *sql.DB) *SnapshotManager {
	return &SnapshotManager{db: db}
}

// SaveSnapshot persists a snapshot. Only verified snapshots are used for
// recovery; the persistence worker verifies against the log tip it just
// committed. Returns the stored size in bytes.
func (sm *SnapshotManager) SaveSnapshot(ctx context.Context, snap *SnapshotData, verified bool) (int, error) {
	data, err := json.Marshal(snap)
	if err != nil {
		return 0, fmt.Errorf("marshal snapshot: %w", err)
	}

	_, err = sm.db.ExecContext(ctx, `
		INSERT INTO event_log.snapshots
			(snapshot_id, sequence, data, state_hash, format_version, size_bytes, verified, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (sequence) DO UPDATE SET data = $3, state_hash = $4, size_bytes = $6, verified = $7
	`, uuid.New(), snap.Sequence, data, snap.StateHash, snapshotFormatVersion, len(data), verified, snap.CreatedAt)
	if err != nil {
		return 0, err
	}
	return len(data), nil
}

// LoadLatestSnapshot loads the most recent verified snapshot, nil if none.
func (sm *SnapshotManager) LoadLatestSnapshot(ctx context.Context) (*SnapshotData, error) {
	var data []byte
	err := sm.db.QueryRowContext(ctx, `
		SELECT data FROM event_log.snapshots
		WHERE verified = TRUE AND format_version = $1
		ORDER BY sequence DESC
		LIMIT 1
	`, snapshotFormatVersion).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	var snap SnapshotData
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return &snap, nil
}

// LoadEventsFrom loads up to limit events starting at fromSequence.
func (sm *SnapshotManager) LoadEventsFrom(ctx context.Context, fromSequence int64, limit int) ([]EventRow, error) {
	rows, err := sm.db.QueryContext(ctx, `
		SELECT sequence, event_type, idempotency_key, partition_key, payload, rejection,
		       state_hash, prev_hash, timestamp, source_sequence
		FROM event_log.events
		WHERE sequence >= $1
		ORDER BY sequence ASC
		LIMIT $2
	`, fromSequence, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []EventRow
	for rows.Next() {
		var e EventRow
		if err := rows.Scan(
			&e.Sequence, &e.EventType, &e.IdempotencyKey, &e.Partition, &e.Payload, &e.Rejection,
			&e.StateHash, &e.PrevHash, &e.Timestamp, &e.SourceSequence,
		); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// GetLatestSequence returns the highest sequence in the event log, -1 when empty.
func (sm *SnapshotManager) GetLatestSequence(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	if err := sm.db.QueryRowContext(ctx, `SELECT MAX(sequence) FROM event_log.events`).Scan(&seq); err != nil {
		return 0, err
	}
	if !seq.Valid {
		return -1, nil
	}
	return seq.Int64, nil
}

// StateHashAt returns the logged state hash of one sequence, nil when the
// log does not contain it.
func (sm *SnapshotManager) StateHashAt(ctx context.Context, sequence int64) ([]byte, error) {
	var hash []byte
	err := sm.db.QueryRowContext(ctx,
		`SELECT state_hash FROM event_log.events WHERE sequence = $1`, sequence,
	).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return hash, err
}
