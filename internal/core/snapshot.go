package core

import (
	"fmt"

	"github.com/LeoVS09/simple-yield-farm/internal/ledger"
)

// SnapshotState holds the in-memory state needed to resume processing.
type SnapshotState struct {
	Sequence        int64 // last processed sequence, -1 before the first
	StateHash       [32]byte
	Balances        map[ledger.AccountKey]int64
	TotalDebt       uint64
	SequenceState   map[string]int64
	IdempotencyKeys []string
}

// CreateSnapshotState captures the current in-memory state.
func (c *Processor) CreateSnapshotState() *SnapshotState {
	return &SnapshotState{
		Sequence:        c.sequence - 1,
		StateHash:       c.hasher.GetPrevHash(),
		Balances:        c.book.Snapshot(),
		TotalDebt:       c.vault.TotalDebt(),
		SequenceState:   c.sequenceValidator.Partitions(),
		IdempotencyKeys: c.idempotency.lru.Keys(),
	}
}

// RestoreFromSnapshot loads a snapshot into a freshly built processor.
func (c *Processor) RestoreFromSnapshot(snap *SnapshotState) error {
	if err := c.book.Restore(snap.Balances); err != nil {
		return fmt.Errorf("restore balances: %w", err)
	}
	c.vault.RestoreDebt(snap.TotalDebt)

	c.sequence = snap.Sequence + 1
	c.hasher.SetPrevHash(snap.StateHash)
	for partition, next := range snap.SequenceState {
		c.sequenceValidator.SetExpectedSequence(partition, next)
	}
	c.WarmLRU(snap.IdempotencyKeys)

	c.logger.Info().
		Int64("seq", snap.Sequence).
		Int("accounts", len(snap.Balances)).
		Uint64("debt", snap.TotalDebt).
		Msg("restored from snapshot")
	return nil
}

// WarmLRU loads recent idempotency keys into the LRU cache.
func (c *Processor) WarmLRU(keys []string) {
	c.idempotency.lru.WarmFromKeys(keys)
}

// EmitSnapshot queues a snapshot behind every output already sent, so it
// is only stored once the events it covers are.
func (c *Processor) EmitSnapshot() *SnapshotState {
	snap := c.CreateSnapshotState()
	c.persistChan <- CoreOutput{Snapshot: snap}
	return snap
}
