package core

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
)

type stubDB struct {
	dups  map[string]bool
	err   error
	calls int
}

func (s *stubDB) IsDuplicate(_ context.Context, eventType, key string) (bool, error) {
	s.calls++
	return s.dups[eventType+":"+key], s.err
}

func TestIdempotencyLRU_EvictsOldest(t *testing.T) {
	lru := NewIdempotencyLRU(2)
	lru.Add("a")
	lru.Add("b")
	lru.Contains("a") // a is now most recent
	lru.Add("c")

	if lru.Contains("b") {
		t.Errorf("b should have been evicted")
	}
	if !lru.Contains("a") || !lru.Contains("c") {
		t.Errorf("a and c should remain")
	}
	if lru.Evictions() != 1 {
		t.Errorf("evictions: got %d, want 1", lru.Evictions())
	}

	keys := lru.Keys()
	if len(keys) != 2 || keys[1] != "c" {
		t.Errorf("keys oldest first: got %v", keys)
	}

	warm := NewIdempotencyLRU(2)
	warm.WarmFromKeys(keys)
	if got := warm.Keys(); got[0] != keys[0] || got[1] != keys[1] {
		t.Errorf("warming must keep order: got %v, want %v", got, keys)
	}
}

func TestIdempotencyChecker_TwoTiers(t *testing.T) {
	db := &stubDB{dups: map[string]bool{"Deposit:k1": true}}
	ic := NewIdempotencyChecker(10, db, nil, zerolog.Nop())

	if !ic.IsDuplicate(context.Background(), "Deposit", "k1") {
		t.Fatalf("tier 2 hit expected")
	}
	if !ic.IsDuplicate(context.Background(), "Deposit", "k1") {
		t.Fatalf("tier 1 hit expected")
	}
	if db.calls != 1 {
		t.Errorf("tier 2 should be consulted once, got %d", db.calls)
	}

	db.err = errors.New("connection reset")
	if ic.IsDuplicate(context.Background(), "Deposit", "k2") {
		t.Errorf("tier 2 failure must not report a duplicate")
	}

	ic.MarkProcessed("Deposit", "k2")
	if !ic.IsDuplicate(context.Background(), "Deposit", "k2") {
		t.Errorf("processed key should be a duplicate")
	}
}

func TestSequenceValidator_Partitions(t *testing.T) {
	sv := NewSequenceValidator(nil)

	if err := sv.ValidateSequence("holder:x", 0, false); err != nil {
		t.Fatalf("first: %v", err)
	}
	if err := sv.ValidateSequence("holder:x", 2, false); !errors.Is(err, ErrSequenceGap) {
		t.Errorf("expected gap, got %v", err)
	}
	if err := sv.ValidateSequence("holder:x", 0, true); err != nil {
		t.Errorf("stale duplicate should pass, got %v", err)
	}
	if err := sv.ValidateSequence("holder:x", 0, false); !errors.Is(err, ErrOutOfOrder) {
		t.Errorf("expected out-of-order, got %v", err)
	}
	if err := sv.ValidateSequence("strategy:y", 0, false); err != nil {
		t.Errorf("partitions are independent: %v", err)
	}

	parts := sv.Partitions()
	if parts["holder:x"] != 1 || parts["strategy:y"] != 1 {
		t.Errorf("partitions: %v", parts)
	}
	if partitionKind("holder:x") != "holder" {
		t.Errorf("kind: %s", partitionKind("holder:x"))
	}
}

func TestChainHash_MatchesHasher(t *testing.T) {
	h := NewStateHasher()
	got := h.ComputeHash(0, []byte("digest"))
	if want := ChainHash(GenesisHash(), 0, []byte("digest")); got != want {
		t.Errorf("hasher and ChainHash disagree")
	}
	if h.GetPrevHash() != got {
		t.Errorf("tip not advanced")
	}
}
