package strategy

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/LeoVS09/simple-yield-farm/internal/ledger"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// Requester is the request/reply half of a NATS connection.
type Requester interface {
	RequestWithContext(ctx context.Context, subj string, data []byte) (*nats.Msg, error)
}

type totalAssetsReply struct {
	TotalAssets uint64 `json:"total_assets"`
	Error       string `json:"error,omitempty"`
}

type withdrawRequest struct {
	Strategy string `json:"strategy"`
	Amount   uint64 `json:"amount"`
}

type withdrawReply struct {
	Loss  uint64 `json:"loss"`
	Error string `json:"error,omitempty"`
}

// Remote delegates valuation and unwinding to an out-of-process strategy
// over NATS request/reply. Borrowed assets stay on the book under the
// strategy account; the reply decides how much of them comes back.
type Remote struct {
	id      uuid.UUID
	asset   *ledger.Token
	vault   uuid.UUID
	nc      Requester
	subject string
	timeout time.Duration
	logger  zerolog.Logger
}

func NewRemote(id uuid.UUID, asset *ledger.Token, vaultAccount uuid.UUID, nc Requester, subject string, timeout time.Duration, logger zerolog.Logger) *Remote {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Remote{
		id:      id,
		asset:   asset,
		vault:   vaultAccount,
		nc:      nc,
		subject: subject,
		timeout: timeout,
		logger:  logger.With().Str("strategy", id.String()).Str("subject", subject).Logger(),
	}
}

func (r *Remote) ID() uuid.UUID { return r.id }

func (r *Remote) request(ctx context.Context, op string, payload, reply any) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var data []byte
	if payload != nil {
		var err error
		if data, err = json.Marshal(payload); err != nil {
			return fmt.Errorf("encode %s request: %w", op, err)
		}
	}

	msg, err := r.nc.RequestWithContext(ctx, r.subject+"."+op, data)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrRemoteStrategyFailed, op, err)
	}
	if err := json.Unmarshal(msg.Data, reply); err != nil {
		return fmt.Errorf("decode %s reply: %w", op, err)
	}
	return nil
}

func (r *Remote) TotalAssets(ctx context.Context) (uint64, error) {
	var reply totalAssetsReply
	if err := r.request(ctx, "total_assets", nil, &reply); err != nil {
		return 0, err
	}
	if reply.Error != "" {
		return 0, fmt.Errorf("%w: total_assets: %s", ErrRemoteStrategyFailed, reply.Error)
	}
	return reply.TotalAssets, nil
}

// Withdraw asks the remote to unwind amount, then settles on the book:
// amount-loss moves back to the vault and the loss is written off.
func (r *Remote) Withdraw(ctx context.Context, amount uint64) (uint64, error) {
	var reply withdrawReply
	req := withdrawRequest{Strategy: r.id.String(), Amount: amount}
	if err := r.request(ctx, "withdraw", req, &reply); err != nil {
		return 0, err
	}
	if reply.Error != "" {
		return 0, fmt.Errorf("%w: withdraw: %s", ErrRemoteStrategyFailed, reply.Error)
	}
	if reply.Loss > amount {
		return 0, fmt.Errorf("%w: loss %d on %d", ErrRemoteStrategyFailed, reply.Loss, amount)
	}

	held, err := r.asset.BalanceOf(ctx, r.id)
	if err != nil {
		return 0, err
	}
	if held < amount {
		return 0, fmt.Errorf("%w: holds %d, asked %d", ErrLossExceedsHoldings, held, amount)
	}

	if returned := amount - reply.Loss; returned > 0 {
		if err := r.asset.Transfer(ctx, r.id, r.vault, returned); err != nil {
			return 0, fmt.Errorf("return assets: %w", err)
		}
	}
	if reply.Loss > 0 {
		if err := r.asset.Burn(ctx, r.id, reply.Loss); err != nil {
			return 0, fmt.Errorf("write off loss: %w", err)
		}
	}

	r.logger.Info().Uint64("amount", amount).Uint64("loss", reply.Loss).Msg("remote withdraw")
	return reply.Loss, nil
}
