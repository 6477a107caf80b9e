package core

import (
	"context"
	"fmt"

	"github.com/LeoVS09/simple-yield-farm/internal/event"
	"github.com/LeoVS09/simple-yield-farm/internal/vault"

	"github.com/google/uuid"
)

// dispatch applies one command and fills res. Any error is a refusal:
// the vault and ledger have already undone their part.
func (c *Processor) dispatch(ctx context.Context, evt event.Event, res *Result) error {
	switch e := evt.(type) {
	case *event.AssetCredited:
		return c.handleAssetCredited(ctx, e, res)
	case *event.AssetDebited:
		return c.handleAssetDebited(ctx, e, res)
	case *event.Deposit:
		return c.handleDeposit(ctx, e, res)
	case *event.Mint:
		return c.handleMint(ctx, e, res)
	case *event.Withdraw:
		return c.handleWithdraw(ctx, e, res)
	case *event.Redeem:
		return c.handleRedeem(ctx, e, res)
	case *event.ShareTransfer:
		return c.handleShareTransfer(ctx, e, res)
	case *event.Borrow:
		return c.handleBorrow(ctx, e, res)
	case *event.Repay:
		return c.handleRepay(ctx, e, res)
	case *event.StrategyReport:
		return c.handleStrategyReport(ctx, e, res)
	case *event.StrategyWork:
		return c.handleStrategyWork(ctx, e, res)
	default:
		return fmt.Errorf("%w: %T", ErrUnknownEvent, evt)
	}
}

func (c *Processor) handleAssetCredited(ctx context.Context, evt *event.AssetCredited, res *Result) error {
	if evt.Amount == 0 {
		return fmt.Errorf("%w: credit of 0", ErrInvalidCommand)
	}
	if err := c.asset.Mint(ctx, evt.Holder, evt.Amount); err != nil {
		return fmt.Errorf("credit %s: %w", evt.Holder, err)
	}
	res.Assets = evt.Amount
	c.recordMoved("credit", evt.Amount)
	return nil
}

func (c *Processor) handleAssetDebited(ctx context.Context, evt *event.AssetDebited, res *Result) error {
	if evt.Amount == 0 {
		return fmt.Errorf("%w: debit of 0", ErrInvalidCommand)
	}
	if err := c.asset.Burn(ctx, evt.Holder, evt.Amount); err != nil {
		return fmt.Errorf("debit %s: %w", evt.Holder, err)
	}
	res.Assets = evt.Amount
	c.recordMoved("debit", evt.Amount)
	return nil
}

func (c *Processor) handleDeposit(ctx context.Context, evt *event.Deposit, res *Result) error {
	shares, err := c.vault.Deposit(ctx, evt.Caller, evt.Assets, evt.Receiver)
	if err != nil {
		return err
	}
	res.Shares, res.Assets = shares, evt.Assets
	c.recordMoved("deposit", evt.Assets)
	return nil
}

func (c *Processor) handleMint(ctx context.Context, evt *event.Mint, res *Result) error {
	assets, err := c.vault.Mint(ctx, evt.Caller, evt.Shares, evt.Receiver)
	if err != nil {
		return err
	}
	res.Shares, res.Assets = evt.Shares, assets
	c.recordMoved("mint", assets)
	return nil
}

func (c *Processor) handleWithdraw(ctx context.Context, evt *event.Withdraw, res *Result) error {
	receipt, err := c.vault.Withdraw(ctx, evt.Owner, evt.Assets, evt.MaxLossBps, evt.Receiver)
	if err != nil {
		return err
	}
	c.fillReceipt(res, receipt, "withdraw")
	return nil
}

func (c *Processor) handleRedeem(ctx context.Context, evt *event.Redeem, res *Result) error {
	receipt, err := c.vault.Redeem(ctx, evt.Owner, evt.Shares, evt.MaxLossBps, evt.Receiver)
	if err != nil {
		return err
	}
	c.fillReceipt(res, receipt, "redeem")
	return nil
}

func (c *Processor) fillReceipt(res *Result, r vault.Receipt, op string) {
	res.Shares = r.Shares
	res.Assets = r.Assets
	res.Loss = r.Loss
	res.Delivered = r.Delivered
	res.Pulled = r.Pulled

	c.recordMoved(op, r.Delivered)
	if c.metrics != nil && r.Loss > 0 {
		c.metrics.VaultRealizedLoss.Add(float64(r.Loss))
	}
}

func (c *Processor) handleShareTransfer(ctx context.Context, evt *event.ShareTransfer, res *Result) error {
	if err := c.vault.TransferShares(ctx, evt.From, evt.To, evt.Shares); err != nil {
		return err
	}
	res.Shares = evt.Shares
	return nil
}

func (c *Processor) handleBorrow(ctx context.Context, evt *event.Borrow, res *Result) error {
	if err := c.vault.Borrow(ctx, evt.Strategy, evt.Amount); err != nil {
		return err
	}
	res.Assets = evt.Amount
	c.recordMoved("borrow", evt.Amount)
	return nil
}

func (c *Processor) handleRepay(ctx context.Context, evt *event.Repay, res *Result) error {
	repaid, err := c.vault.Repay(ctx, evt.Strategy, evt.Amount)
	if err != nil {
		return err
	}
	res.Assets, res.Repaid = evt.Amount, repaid
	c.recordMoved("repay", evt.Amount)
	return nil
}

func (c *Processor) handleStrategyReport(ctx context.Context, evt *event.StrategyReport, res *Result) error {
	s, err := c.strategy(evt.Strategy)
	if err != nil {
		return err
	}
	reporter, ok := s.(Reporter)
	if !ok {
		return fmt.Errorf("%w: report on %T", ErrUnsupported, s)
	}

	held, err := s.TotalAssets(ctx)
	if err != nil {
		return fmt.Errorf("read strategy assets: %w", err)
	}
	if err := reporter.Report(ctx, evt.Gain, evt.Loss); err != nil {
		return err
	}

	if c.metrics != nil && held > 0 {
		if evt.Gain > 0 {
			c.metrics.StrategyReportsBps.WithLabelValues("gain").Observe(float64(evt.Gain) * 10_000 / float64(held))
		}
		if evt.Loss > 0 {
			c.metrics.StrategyReportsBps.WithLabelValues("loss").Observe(float64(evt.Loss) * 10_000 / float64(held))
		}
	}
	res.Assets = max(evt.Gain, evt.Loss)
	return nil
}

func (c *Processor) handleStrategyWork(ctx context.Context, evt *event.StrategyWork, res *Result) error {
	s, err := c.strategy(evt.Strategy)
	if err != nil {
		return err
	}
	worker, ok := s.(Worker)
	if !ok {
		return fmt.Errorf("%w: work on %T", ErrUnsupported, s)
	}

	borrowed, err := worker.Work(ctx)
	if err != nil {
		return err
	}
	res.Assets = borrowed
	c.recordMoved("borrow", borrowed)
	return nil
}

// strategy returns the vault's strategy when it is the one named.
func (c *Processor) strategy(id uuid.UUID) (vault.Strategy, error) {
	s := c.vault.Strategy()
	if s == nil || s.ID() != id {
		return nil, fmt.Errorf("%w: %s", ErrUnknownStrategy, id)
	}
	return s, nil
}

func (c *Processor) recordMoved(op string, amount uint64) {
	if c.metrics != nil && amount > 0 {
		c.metrics.VaultAssetsMoved.WithLabelValues(op).Add(float64(amount))
	}
}
