package vault

import (
	"errors"

	fpmath "github.com/LeoVS09/simple-yield-farm/internal/math"
)

var (
	ErrZeroShares            = errors.New("operation results in zero shares")
	ErrZeroAssets            = errors.New("operation results in zero assets")
	ErrInsufficientShares    = errors.New("insufficient shares")
	ErrInsufficientLiquidity = errors.New("insufficient liquidity")
	ErrExcessiveLoss         = errors.New("realized loss exceeds tolerance")
	ErrUnauthorizedBorrow    = errors.New("caller is not the registered strategy")
	ErrInvalidAmount         = errors.New("invalid amount")
	ErrInsolventPool         = errors.New("pool has shares but no assets")
	ErrReentrant             = errors.New("re-entrant vault call")
	ErrStrategyMisreport     = errors.New("strategy misreported withdrawal")
	ErrInvalidConfig         = errors.New("invalid vault config")

	ErrOverflow = fpmath.ErrOverflow
)
