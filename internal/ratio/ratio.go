// Package ratio implements the fixed-point price ratio and the single
// rounding policy used by every pool computation.
//
// Amounts are whole token base units carried as shopspring/decimal values.
// Every division in the engine goes through MulDiv, which floors, so a pool
// can only ever under-pay and the residue ("dust") stays in the pool.
//
// The price ratio is asset0-per-asset1 value expressed as
//
//	priceRatioShifted = price0 * 2^31 / price1
package ratio

import (
	"errors"

	"github.com/shopspring/decimal"
)

// Shift is the number of fractional bits in a shifted price ratio.
const Shift = 31

// BasisPoints is the denominator for every bps-denominated parameter.
const BasisPoints = 10_000

var (
	// ErrInvalidPrice is returned when a feed answer is not strictly positive.
	ErrInvalidPrice = errors.New("ratio: price must be positive")

	// ErrInvalidAmount is returned for negative or fractional base-unit amounts.
	ErrInvalidAmount = errors.New("ratio: amount must be a non-negative whole number")

	// Scale is 2^Shift as a decimal.
	Scale = decimal.NewFromInt(1 << Shift)

	bps = decimal.NewFromInt(BasisPoints)
)

// MulDiv returns floor(a * b / c). A zero divisor yields zero so that
// proportional shares of an empty total are empty rather than a panic.
func MulDiv(a, b, c decimal.Decimal) decimal.Decimal {
	if c.IsZero() {
		return decimal.Zero
	}
	n := a.Mul(b)
	q, r := n.QuoRem(c, 0)
	if !r.IsZero() && n.Sign() != c.Sign() {
		// QuoRem truncates toward zero; floor needs one more step down.
		q = q.Sub(decimal.NewFromInt(1))
	}
	return q
}

// FromPrices builds a shifted ratio from two feed answers sharing the
// same decimals.
func FromPrices(price0, price1 decimal.Decimal) (decimal.Decimal, error) {
	if !price0.IsPositive() || !price1.IsPositive() {
		return decimal.Zero, ErrInvalidPrice
	}
	r := MulDiv(price0, Scale, price1)
	if !r.IsPositive() {
		return decimal.Zero, ErrInvalidPrice
	}
	return r, nil
}

// Amount1For returns the amount of asset1 matching amount0 at ratio r.
func Amount1For(amount0, r decimal.Decimal) decimal.Decimal {
	return MulDiv(amount0, Scale, r)
}

// Amount0For returns the amount of asset0 matching amount1 at ratio r.
func Amount0For(amount1, r decimal.Decimal) decimal.Decimal {
	return MulDiv(amount1, r, Scale)
}

// Match normalizes an offered pair against ratio r and returns the largest
// pair (m0, m1) with m0 <= amount0, m1 <= amount1 that respects the ratio.
// Either both sides are positive or both are zero. Whatever is not matched
// is left to the caller.
func Match(amount0, amount1, r decimal.Decimal) (m0, m1 decimal.Decimal) {
	if !r.IsPositive() || !amount0.IsPositive() || !amount1.IsPositive() {
		return decimal.Zero, decimal.Zero
	}
	need1 := Amount1For(amount0, r)
	if need1.LessThanOrEqual(amount1) {
		if !need1.IsPositive() {
			// Too small to pair with a single base unit of asset1.
			return decimal.Zero, decimal.Zero
		}
		return amount0, need1
	}
	m0 = Amount0For(amount1, r)
	if m0.GreaterThan(amount0) {
		m0 = amount0
	}
	if !m0.IsPositive() {
		return decimal.Zero, decimal.Zero
	}
	return m0, amount1
}

// Bps returns floor(amount * points / 10000).
func Bps(amount decimal.Decimal, points int64) decimal.Decimal {
	return MulDiv(amount, decimal.NewFromInt(points), bps)
}

// Share returns floor(total * part / whole): the holder of part out of whole
// is owed this much of total.
func Share(total, part, whole decimal.Decimal) decimal.Decimal {
	if !part.IsPositive() || !whole.IsPositive() {
		return decimal.Zero
	}
	if part.GreaterThan(whole) {
		part = whole
	}
	return MulDiv(total, part, whole)
}

// ValidateAmount rejects negative and fractional amounts.
func ValidateAmount(amount decimal.Decimal) error {
	if amount.IsNegative() || !amount.Equal(amount.Truncate(0)) {
		return ErrInvalidAmount
	}
	return nil
}
