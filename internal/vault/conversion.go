package vault

import (
	fpmath "github.com/LeoVS09/simple-yield-farm/internal/math"
)

// Pool is the pair of quantities every conversion depends on, captured
// once per operation.
type Pool struct {
	TotalAssets uint64
	TotalShares uint64
}

// Insolvent reports shares outstanding with nothing backing them.
func (p Pool) Insolvent() bool {
	return p.TotalShares > 0 && p.TotalAssets == 0
}

// SharesForAssets converts at the pool rate; 1:1 on an empty pool.
func (p Pool) SharesForAssets(assets uint64, mode fpmath.RoundingMode) (uint64, error) {
	if p.TotalShares == 0 {
		return assets, nil
	}
	if p.TotalAssets == 0 {
		return 0, ErrInsolventPool
	}
	return fpmath.MulDiv(assets, p.TotalShares, p.TotalAssets, mode)
}

// AssetsForShares converts at the pool rate; 1:1 on an empty pool.
func (p Pool) AssetsForShares(shares uint64, mode fpmath.RoundingMode) (uint64, error) {
	if p.TotalShares == 0 {
		return shares, nil
	}
	return fpmath.MulDiv(shares, p.TotalAssets, p.TotalShares, mode)
}
