package vault_test

import (
	"context"
	"errors"
	"testing"

	"github.com/LeoVS09/simple-yield-farm/internal/ledger"
	"github.com/LeoVS09/simple-yield-farm/internal/vault"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type transfer struct {
	holder uuid.UUID
	amount uint64
}

// fakeCustody is a scripted custody. A frozen custody records transfers
// without moving its balance, so tests set the balance per step.
type fakeCustody struct {
	balance      uint64
	frozen       bool
	balanceCalls int
	ins, outs    []transfer
}

func (c *fakeCustody) TransferIn(_ context.Context, from uuid.UUID, amount uint64) error {
	c.ins = append(c.ins, transfer{from, amount})
	if !c.frozen {
		c.balance += amount
	}
	return nil
}

func (c *fakeCustody) TransferOut(_ context.Context, to uuid.UUID, amount uint64) error {
	if !c.frozen {
		if amount > c.balance {
			return errors.New("custody overdrawn")
		}
		c.balance -= amount
	}
	c.outs = append(c.outs, transfer{to, amount})
	return nil
}

func (c *fakeCustody) Balance(context.Context) (uint64, error) {
	c.balanceCalls++
	return c.balance, nil
}

func (c *fakeCustody) lastOut() transfer {
	if len(c.outs) == 0 {
		return transfer{}
	}
	return c.outs[len(c.outs)-1]
}

type fakeStrategy struct {
	id               uuid.UUID
	assets           uint64
	assetsSeq        []uint64
	totalAssetsCalls int
	withdrawCalls    []uint64
	custody          *fakeCustody
	onWithdraw       func(ctx context.Context, amount uint64) (uint64, error)
}

func newFakeStrategy() *fakeStrategy {
	return &fakeStrategy{id: uuid.New()}
}

func (s *fakeStrategy) ID() uuid.UUID { return s.id }

func (s *fakeStrategy) TotalAssets(context.Context) (uint64, error) {
	s.totalAssetsCalls++
	if len(s.assetsSeq) > 0 {
		a := s.assetsSeq[0]
		s.assetsSeq = s.assetsSeq[1:]
		return a, nil
	}
	return s.assets, nil
}

// Withdraw returns the full amount into custody unless scripted.
func (s *fakeStrategy) Withdraw(ctx context.Context, amount uint64) (uint64, error) {
	s.withdrawCalls = append(s.withdrawCalls, amount)
	if s.onWithdraw != nil {
		return s.onWithdraw(ctx, amount)
	}
	if s.custody != nil {
		s.custody.balance += amount
	}
	return 0, nil
}

// newFakeVault backs shares with a real book token and assets with c.
func newFakeVault(t *testing.T, mode vault.AccountingMode, c *fakeCustody, s *fakeStrategy) *vault.Vault {
	t.Helper()

	book := ledger.NewBook()
	shares, err := book.Issue("svUSDT", 6)
	require.NoError(t, err)

	v, err := vault.New(vault.Config{
		ID:       uuid.New(),
		Name:     "StakingVault",
		Symbol:   "svUSDT",
		Asset:    "USDT",
		Decimals: 6,
		Mode:     mode,
	}, shares, c, zerolog.Nop())
	require.NoError(t, err)

	if s != nil {
		require.NoError(t, v.SetStrategy(context.Background(), s))
	}
	return v
}
