package ledger

import (
	"context"

	"github.com/google/uuid"
)

// Token is a fungible balance sheet on a Book. It serves both as the
// vault's share ledger and as the underlying asset.
type Token struct {
	book     *Book
	symbol   Symbol
	decimals int32
}

func (t *Token) Symbol() Symbol  { return t.symbol }
func (t *Token) Decimals() int32 { return t.decimals }

func (t *Token) holder(id uuid.UUID) AccountKey {
	return NewHolderAccountKey(id, t.symbol)
}

func (t *Token) issuance() AccountKey {
	return NewSystemAccountKey(SystemIssuance, t.symbol)
}

// Mint creates amount new units owned by to.
func (t *Token) Mint(_ context.Context, to uuid.UUID, amount uint64) error {
	if amount == 0 {
		return nil
	}
	return t.book.post(JournalTypeMint, t.holder(to), t.issuance(), amount)
}

// Burn destroys amount units owned by from.
func (t *Token) Burn(_ context.Context, from uuid.UUID, amount uint64) error {
	if amount == 0 {
		return nil
	}
	return t.book.post(JournalTypeBurn, t.issuance(), t.holder(from), amount)
}

// Transfer moves amount units between holders.
func (t *Token) Transfer(_ context.Context, from, to uuid.UUID, amount uint64) error {
	if from == to {
		return t.book.checkCover(t.holder(from), amount)
	}
	if amount == 0 {
		return nil
	}
	return t.book.post(JournalTypeTransfer, t.holder(to), t.holder(from), amount)
}

func (t *Token) BalanceOf(_ context.Context, owner uuid.UUID) (uint64, error) {
	return uint64(t.book.Balance(t.holder(owner))), nil
}

func (t *Token) TotalSupply(_ context.Context) (uint64, error) {
	return uint64(-t.book.Balance(t.issuance())), nil
}

// Custody is one holder's account on a token, used as a pool's asset
// custody.
type Custody struct {
	token *Token
	owner uuid.UUID
}

func NewCustody(token *Token, owner uuid.UUID) *Custody {
	return &Custody{token: token, owner: owner}
}

func (c *Custody) Owner() uuid.UUID { return c.owner }
func (c *Custody) Token() *Token    { return c.token }

// TransferIn pulls amount from a holder into custody.
func (c *Custody) TransferIn(ctx context.Context, from uuid.UUID, amount uint64) error {
	return c.token.Transfer(ctx, from, c.owner, amount)
}

// TransferOut pays amount from custody to a holder.
func (c *Custody) TransferOut(ctx context.Context, to uuid.UUID, amount uint64) error {
	return c.token.Transfer(ctx, c.owner, to, amount)
}

func (c *Custody) Balance(ctx context.Context) (uint64, error) {
	return c.token.BalanceOf(ctx, c.owner)
}
