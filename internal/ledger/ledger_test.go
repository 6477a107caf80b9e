package ledger_test

import (
	"context"
	"errors"
	gomath "math"
	"testing"

	"github.com/LeoVS09/simple-yield-farm/internal/ledger"

	"github.com/google/uuid"
)

const usdt ledger.Symbol = "USDT"

func issuance(token ledger.Symbol) ledger.AccountKey {
	return ledger.NewSystemAccountKey(ledger.SystemIssuance, token)
}

func mintJournal(batchID, holder uuid.UUID, amount int64) ledger.Journal {
	return ledger.Journal{
		JournalID:     uuid.New(),
		BatchID:       batchID,
		DebitAccount:  ledger.NewHolderAccountKey(holder, usdt),
		CreditAccount: issuance(usdt),
		Token:         usdt,
		Amount:        amount,
		JournalType:   ledger.JournalTypeMint,
	}
}

func mustIssue(t *testing.T, book *ledger.Book, symbol ledger.Symbol) *ledger.Token {
	t.Helper()
	token, err := book.Issue(symbol, 6)
	if err != nil {
		t.Fatalf("Issue(%s): %v", symbol, err)
	}
	return token
}

// ============================================================================
// Test: AccountKey
// ============================================================================

func TestAccountKey_HolderPath(t *testing.T) {
	holder := uuid.MustParse("550e8400-e29b-41d4-a716-446655440000")
	key := ledger.NewHolderAccountKey(holder, usdt)

	path := key.AccountPath()
	expected := "holder:550e8400-e29b-41d4-a716-446655440000:USDT"
	if path != expected {
		t.Errorf("got %q, want %q", path, expected)
	}
}

func TestAccountKey_SystemPath(t *testing.T) {
	key := issuance("yvUSDT")

	path := key.AccountPath()
	if path != "system:issuance:yvUSDT" {
		t.Errorf("got %q, want %q", path, "system:issuance:yvUSDT")
	}
}

func TestParseAccountPath_RoundTrip(t *testing.T) {
	keys := []ledger.AccountKey{
		ledger.NewHolderAccountKey(uuid.New(), usdt),
		issuance(usdt),
	}

	for _, key := range keys {
		parsed, err := ledger.ParseAccountPath(key.AccountPath())
		if err != nil {
			t.Fatalf("ParseAccountPath(%q): %v", key.AccountPath(), err)
		}
		if parsed != key {
			t.Errorf("got %+v, want %+v", parsed, key)
		}
	}
}

func TestParseAccountPath_Malformed(t *testing.T) {
	for _, path := range []string{"", "holder:nope:USDT", "vault:x:USDT", "holder:550e8400-e29b-41d4-a716-446655440000"} {
		if _, err := ledger.ParseAccountPath(path); err == nil {
			t.Errorf("expected error for %q", path)
		}
	}
}

func TestAccountKey_Holder(t *testing.T) {
	id := uuid.New()
	if got, ok := ledger.NewHolderAccountKey(id, usdt).Holder(); !ok || got != id {
		t.Errorf("got (%s, %v), want (%s, true)", got, ok, id)
	}
	if _, ok := issuance(usdt).Holder(); ok {
		t.Error("system account should not report a holder")
	}
}

// ============================================================================
// Test: BalanceTracker
// ============================================================================

func TestBalanceTracker_InitialBalanceZero(t *testing.T) {
	bt := ledger.NewBalanceTracker()

	balance := bt.GetHolderBalance(uuid.New(), usdt)
	if balance != 0 {
		t.Errorf("initial balance should be 0, got %d", balance)
	}
}

func TestBalanceTracker_ApplyJournal(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	holder := uuid.New()

	bt.ApplyJournal(mintJournal(uuid.New(), holder, 1_000_000))

	if got := bt.GetHolderBalance(holder, usdt); got != 1_000_000 {
		t.Errorf("holder: got %d, want 1_000_000", got)
	}
	if got := bt.GetBalance(issuance(usdt)); got != -1_000_000 {
		t.Errorf("issuance: got %d, want -1_000_000", got)
	}
}

func TestBalanceTracker_ApplyBatch(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	holder := uuid.New()
	batchID := uuid.New()

	batch := &ledger.Batch{
		BatchID:  batchID,
		Journals: []ledger.Journal{mintJournal(batchID, holder, 500_000)},
	}

	if err := bt.ApplyBatch(batch); err != nil {
		t.Fatalf("ApplyBatch failed: %v", err)
	}

	if bt.GetHolderBalance(holder, usdt) != 500_000 {
		t.Errorf("expected 500_000 after batch apply")
	}
}

func TestBalanceTracker_ValidateSufficient(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	holder := uuid.New()
	key := ledger.NewHolderAccountKey(holder, usdt)

	// No balance: should fail
	err := bt.ValidateSufficient(key, 100)
	if !errors.Is(err, ledger.ErrInsufficientBalance) {
		t.Errorf("expected ErrInsufficientBalance, got %v", err)
	}

	bt.ApplyJournal(mintJournal(uuid.New(), holder, 1_000))

	if err := bt.ValidateSufficient(key, 1_000); err != nil {
		t.Errorf("should have sufficient balance: %v", err)
	}
	if err := bt.ValidateSufficient(key, 1_001); err == nil {
		t.Error("expected error for 1_001 > 1_000")
	}
}

func TestBalanceTracker_Snapshot(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	holder := uuid.New()

	bt.ApplyJournal(mintJournal(uuid.New(), holder, 999))

	snap := bt.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("snapshot: got %d accounts, want 2", len(snap))
	}

	// Mutating snapshot should not affect tracker
	for k := range snap {
		snap[k] = 0
	}

	if bt.GetHolderBalance(holder, usdt) != 999 {
		t.Error("tracker balance should not be affected by snapshot mutation")
	}
}

// ============================================================================
// Test: Batch Validation
// ============================================================================

func TestBatchValidate_EmptyBatch_Fails(t *testing.T) {
	batch := &ledger.Batch{BatchID: uuid.New()}

	if err := batch.Validate(); err == nil {
		t.Error("empty batch should fail validation")
	}
}

func TestBatchValidate_NonPositiveAmount_Fails(t *testing.T) {
	for _, amount := range []int64{0, -100} {
		batchID := uuid.New()
		batch := &ledger.Batch{
			BatchID:  batchID,
			Journals: []ledger.Journal{mintJournal(batchID, uuid.New(), amount)},
		}

		if err := batch.Validate(); err == nil {
			t.Errorf("amount %d should fail validation", amount)
		}
	}
}

func TestBatchValidate_SelfTransfer_Fails(t *testing.T) {
	batchID := uuid.New()
	same := ledger.NewHolderAccountKey(uuid.New(), usdt)

	j := mintJournal(batchID, uuid.New(), 100)
	j.DebitAccount = same
	j.CreditAccount = same

	batch := &ledger.Batch{BatchID: batchID, Journals: []ledger.Journal{j}}
	if err := batch.Validate(); err == nil {
		t.Error("self-transfer should fail validation")
	}
}

func TestBatchValidate_MixedTokens_Fails(t *testing.T) {
	batchID := uuid.New()

	j := mintJournal(batchID, uuid.New(), 100)
	j.CreditAccount = issuance("yvUSDT")

	batch := &ledger.Batch{BatchID: batchID, Journals: []ledger.Journal{j}}
	if err := batch.Validate(); err == nil {
		t.Error("journal across tokens should fail validation")
	}
}

func TestBatchValidate_MismatchedBatchID_Fails(t *testing.T) {
	batch := &ledger.Batch{
		BatchID:  uuid.New(),
		Journals: []ledger.Journal{mintJournal(uuid.New(), uuid.New(), 100)},
	}

	if err := batch.Validate(); err == nil {
		t.Error("mismatched batch ID should fail validation")
	}
}

// ============================================================================
// Test: InvariantValidator
// ============================================================================

func TestInvariantValidator_GlobalBalanceZero(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	v := ledger.NewInvariantValidator(bt)

	if err := v.ValidateGlobalBalance(); err != nil {
		t.Errorf("empty ledger should have zero global balance: %v", err)
	}

	bt.ApplyJournal(mintJournal(uuid.New(), uuid.New(), 1_000_000))

	if err := v.ValidateAll(usdt); err != nil {
		t.Errorf("balanced ledger should pass: %v", err)
	}

	// A one-sided restore breaks both zero-sum and supply
	bt.SetBalance(ledger.NewHolderAccountKey(uuid.New(), usdt), 5)
	if err := v.ValidateGlobalBalance(); err == nil {
		t.Error("expected non-zero global balance")
	}
	if err := v.ValidateSupply(usdt); err == nil {
		t.Error("expected supply mismatch")
	}
}

func TestInvariantValidator_NegativeHolder(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	v := ledger.NewInvariantValidator(bt)

	bt.SetBalance(ledger.NewHolderAccountKey(uuid.New(), usdt), -1)
	if err := v.ValidateHoldersNonNegative(); err == nil {
		t.Error("expected negative holder to fail")
	}
}

// ============================================================================
// Test: Book, Token, Custody
// ============================================================================

func TestBook_IssueTwice_Fails(t *testing.T) {
	book := ledger.NewBook()
	mustIssue(t, book, usdt)

	if _, err := book.Issue(usdt, 6); !errors.Is(err, ledger.ErrTokenExists) {
		t.Errorf("expected ErrTokenExists, got %v", err)
	}
	if _, ok := book.Token(usdt); !ok {
		t.Error("token should be registered")
	}
}

func TestToken_MintBurnTransfer(t *testing.T) {
	ctx := context.Background()
	book := ledger.NewBook()
	token := mustIssue(t, book, usdt)
	alice, bob := uuid.New(), uuid.New()

	if err := token.Mint(ctx, alice, 1_000); err != nil {
		t.Fatalf("Mint: %v", err)
	}
	if err := token.Transfer(ctx, alice, bob, 400); err != nil {
		t.Fatalf("Transfer: %v", err)
	}
	if err := token.Burn(ctx, bob, 100); err != nil {
		t.Fatalf("Burn: %v", err)
	}

	a, _ := token.BalanceOf(ctx, alice)
	b, _ := token.BalanceOf(ctx, bob)
	supply, _ := token.TotalSupply(ctx)
	if a != 600 || b != 300 || supply != 900 {
		t.Errorf("got alice=%d bob=%d supply=%d, want 600/300/900", a, b, supply)
	}

	if err := book.Validate(); err != nil {
		t.Errorf("invariants: %v", err)
	}
}

func TestToken_Overdraw_Fails(t *testing.T) {
	ctx := context.Background()
	book := ledger.NewBook()
	token := mustIssue(t, book, usdt)
	alice, bob := uuid.New(), uuid.New()

	_ = token.Mint(ctx, alice, 10)

	if err := token.Transfer(ctx, alice, bob, 11); !errors.Is(err, ledger.ErrInsufficientBalance) {
		t.Errorf("transfer: expected ErrInsufficientBalance, got %v", err)
	}
	if err := token.Burn(ctx, alice, 11); !errors.Is(err, ledger.ErrInsufficientBalance) {
		t.Errorf("burn: expected ErrInsufficientBalance, got %v", err)
	}
	if err := token.Transfer(ctx, alice, alice, 11); !errors.Is(err, ledger.ErrInsufficientBalance) {
		t.Errorf("self transfer: expected ErrInsufficientBalance, got %v", err)
	}
	if err := token.Mint(ctx, alice, gomath.MaxInt64+1); !errors.Is(err, ledger.ErrAmountOutOfRange) {
		t.Errorf("mint: expected ErrAmountOutOfRange, got %v", err)
	}

	a, _ := token.BalanceOf(ctx, alice)
	if a != 10 {
		t.Errorf("failed postings changed balance: got %d, want 10", a)
	}
}

func TestBook_DrainAndBegin(t *testing.T) {
	ctx := context.Background()
	book := ledger.NewBook()
	token := mustIssue(t, book, usdt)
	alice := uuid.New()

	book.Begin("cmd-1", 7, 1_700_000_000)
	_ = token.Mint(ctx, alice, 50)
	_ = token.Burn(ctx, alice, 20)

	batch := book.Drain()
	if batch == nil {
		t.Fatal("expected a batch")
	}
	if len(batch.Journals) != 2 || batch.EventRef != "cmd-1" || batch.Sequence != 7 {
		t.Errorf("unexpected batch: %+v", batch)
	}
	if err := batch.Validate(); err != nil {
		t.Errorf("drained batch should be valid: %v", err)
	}
	if batch.Journals[0].JournalType != ledger.JournalTypeMint || batch.Journals[1].JournalType != ledger.JournalTypeBurn {
		t.Errorf("journal types: got %s, %s", batch.Journals[0].JournalType, batch.Journals[1].JournalType)
	}

	if book.Drain() != nil {
		t.Error("second drain should be empty")
	}

	_ = token.Mint(ctx, alice, 1)
	book.Begin("cmd-2", 8, 1_700_000_001)
	if book.Drain() != nil {
		t.Error("a new command should drop journals left pending by the last one")
	}
}

func TestBook_SnapshotRestore(t *testing.T) {
	ctx := context.Background()
	book := ledger.NewBook()
	token := mustIssue(t, book, usdt)
	alice := uuid.New()
	_ = token.Mint(ctx, alice, 1_234)

	snap := book.Snapshot()

	restored := ledger.NewBook()
	restoredToken := mustIssue(t, restored, usdt)
	if err := restored.Restore(snap); err != nil {
		t.Fatalf("Restore: %v", err)
	}

	got, _ := restoredToken.BalanceOf(ctx, alice)
	if got != 1_234 {
		t.Errorf("got %d, want 1_234", got)
	}

	// Unbalanced snapshot is rejected
	snap[ledger.NewHolderAccountKey(uuid.New(), usdt)] = 1
	if err := ledger.NewBook().Restore(snap); err == nil {
		t.Error("restore without issued token should fail")
	}
	if err := restored.Restore(snap); err == nil {
		t.Error("unbalanced restore should fail")
	}
}

func TestCustody_TransferInOut(t *testing.T) {
	ctx := context.Background()
	book := ledger.NewBook()
	token := mustIssue(t, book, usdt)
	pool, user := uuid.New(), uuid.New()
	custody := ledger.NewCustody(token, pool)

	_ = token.Mint(ctx, user, 100)

	if err := custody.TransferIn(ctx, user, 60); err != nil {
		t.Fatalf("TransferIn: %v", err)
	}
	if err := custody.TransferOut(ctx, user, 25); err != nil {
		t.Fatalf("TransferOut: %v", err)
	}
	if err := custody.TransferOut(ctx, user, 36); err == nil {
		t.Error("custody should not pay out more than it holds")
	}

	held, _ := custody.Balance(ctx)
	if held != 35 {
		t.Errorf("custody: got %d, want 35", held)
	}
}
