package core

import (
	"errors"

	"github.com/LeoVS09/simple-yield-farm/internal/ledger"
	"github.com/LeoVS09/simple-yield-farm/internal/strategy"
	"github.com/LeoVS09/simple-yield-farm/internal/vault"
)

var (
	ErrUnknownEvent     = errors.New("unknown event type")
	ErrUnknownStrategy  = errors.New("command names an unregistered strategy")
	ErrUnsupported      = errors.New("strategy does not support this command")
	ErrInvalidCommand   = errors.New("invalid command")
	ErrReplayDivergence = errors.New("replay diverged from the event log")
	ErrStopped          = errors.New("processor stopped")
)

var reasons = []struct {
	err    error
	reason string
}{
	{ErrSequenceGap, "sequence_gap"},
	{ErrOutOfOrder, "out_of_order"},
	{ErrUnknownEvent, "unknown_event"},
	{ErrUnknownStrategy, "unknown_strategy"},
	{ErrUnsupported, "unsupported"},
	{ErrInvalidCommand, "invalid_command"},
	{vault.ErrZeroShares, "zero_shares"},
	{vault.ErrZeroAssets, "zero_assets"},
	{vault.ErrInsufficientShares, "insufficient_shares"},
	{vault.ErrInsufficientLiquidity, "insufficient_liquidity"},
	{vault.ErrExcessiveLoss, "excessive_loss"},
	{vault.ErrUnauthorizedBorrow, "unauthorized"},
	{vault.ErrInvalidAmount, "invalid_amount"},
	{vault.ErrInsolventPool, "insolvent_pool"},
	{vault.ErrStrategyMisreport, "strategy_misreport"},
	{vault.ErrOverflow, "overflow"},
	{ledger.ErrInsufficientBalance, "insufficient_balance"},
	{ledger.ErrAmountOutOfRange, "amount_out_of_range"},
	{strategy.ErrAmbiguousReport, "ambiguous_report"},
	{strategy.ErrLossExceedsHoldings, "loss_exceeds_holdings"},
	{strategy.ErrRemoteStrategyFailed, "remote_strategy"},
}

// RejectionReason maps an error to a metric label.
func RejectionReason(err error) string {
	for _, r := range reasons {
		if errors.Is(err, r.err) {
			return r.reason
		}
	}
	return "error"
}
