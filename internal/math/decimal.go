package math

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

var ErrTooPrecise = errors.New("amount has more decimals than the token supports")

// DecimalConfig defines the fixed-point precision of a token.
type DecimalConfig struct {
	Decimals int32 // Number of decimal places
}

var (
	// Standard configs
	USDTConfig  = DecimalConfig{Decimals: 6}
	EtherConfig = DecimalConfig{Decimals: 18}
)

// Decimal converts a fixed-point amount into a decimal value.
func (c DecimalConfig) Decimal(amount uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(amount), -c.Decimals)
}

// Format renders a fixed-point amount, e.g. 1_500_000 with 6 decimals -> "1.5".
func (c DecimalConfig) Format(amount uint64) string {
	return c.Decimal(amount).String()
}

// Parse converts a human amount ("8", "0.0008") into fixed-point units.
func (c DecimalConfig) Parse(s string) (uint64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", s, err)
	}
	if d.IsNegative() {
		return 0, fmt.Errorf("parse amount %q: negative", s)
	}

	scaled := d.Shift(c.Decimals)
	if !scaled.Equal(scaled.Truncate(0)) {
		return 0, fmt.Errorf("parse amount %q: %w", s, ErrTooPrecise)
	}

	units := scaled.BigInt()
	if !units.IsUint64() {
		return 0, fmt.Errorf("parse amount %q: %w", s, ErrOverflow)
	}
	return units.Uint64(), nil
}

// PricePerShare returns assets per one whole share as a decimal, 1 for an empty pool.
func (c DecimalConfig) PricePerShare(totalAssets, totalSupply uint64) decimal.Decimal {
	if totalSupply == 0 {
		return decimal.NewFromInt(1)
	}
	return c.Decimal(totalAssets).Div(c.Decimal(totalSupply))
}
