package math

import (
	"errors"
	"math/big"
	"sync"
)

// MaxBps is 100% expressed in basis points.
const MaxBps = 10_000

var (
	ErrDivisionByZero = errors.New("division by zero")
	ErrOverflow       = errors.New("result overflows uint64")
)

type RoundingMode int

const (
	RoundDown RoundingMode = iota // truncate toward zero
	RoundUp                       // ceil when the remainder is non-zero
)

func (m RoundingMode) String() string {
	switch m {
	case RoundDown:
		return "down"
	case RoundUp:
		return "up"
	default:
		return "unknown"
	}
}

// Int128 is a pooled big.Int for intermediate calculations
var int128Pool = &sync.Pool{
	New: func() interface{} {
		return new(big.Int)
	},
}

func getInt128() *big.Int {
	return int128Pool.Get().(*big.Int)
}

func putInt128(v *big.Int) {
	v.SetInt64(0) // Clear before returning to pool
	int128Pool.Put(v)
}

// MulDiv computes a * b / c with the product held in a 128-bit-safe
// intermediate, so a*b never overflows before the division.
func MulDiv(a, b, c uint64, mode RoundingMode) (uint64, error) {
	if c == 0 {
		return 0, ErrDivisionByZero
	}

	product := getInt128()
	denom := getInt128()
	quotient := getInt128()
	remainder := getInt128()
	defer func() {
		putInt128(product)
		putInt128(denom)
		putInt128(quotient)
		putInt128(remainder)
	}()

	product.SetUint64(a)
	product.Mul(product, denom.SetUint64(b))
	denom.SetUint64(c)

	quotient.QuoRem(product, denom, remainder)

	if mode == RoundUp && remainder.Sign() != 0 {
		quotient.Add(quotient, big.NewInt(1))
	}

	if !quotient.IsUint64() {
		return 0, ErrOverflow
	}
	return quotient.Uint64(), nil
}

// ExceedsBps reports whether part > maxBps/10000 of whole, i.e.
// part*10000 > maxBps*whole, without overflowing.
func ExceedsBps(part, whole uint64, maxBps uint32) bool {
	lhs := getInt128()
	rhs := getInt128()
	defer putInt128(lhs)
	defer putInt128(rhs)

	lhs.SetUint64(part)
	lhs.Mul(lhs, big.NewInt(MaxBps))

	rhs.SetUint64(whole)
	rhs.Mul(rhs, big.NewInt(int64(maxBps)))

	return lhs.Cmp(rhs) > 0
}

// BpsOf returns amount * bps / 10000 rounded down.
func BpsOf(amount uint64, bps uint32) uint64 {
	// bps <= MaxBps keeps the result <= amount; larger values are capped.
	if bps >= MaxBps {
		return amount
	}
	v, _ := MulDiv(amount, uint64(bps), MaxBps, RoundDown)
	return v
}

// AddUint64 adds with an overflow check.
func AddUint64(a, b uint64) (uint64, error) {
	sum := a + b
	if sum < a {
		return 0, ErrOverflow
	}
	return sum, nil
}

// SubSat returns a - b, or 0 when b > a.
func SubSat(a, b uint64) uint64 {
	if b > a {
		return 0
	}
	return a - b
}
