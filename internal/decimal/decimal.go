// Package decimal provides the fixed-point helpers the engine core needs on
// top of shopspring/decimal: explicit rounding modes at symbol boundaries and
// the handful of clamp/compare helpers the balance reservation and matching
// engine code share.
package decimal

import (
	"github.com/shopspring/decimal"
)

// Decimal is the arbitrary-precision fixed-point type used for every
// monetary value in the engine. Intermediate arithmetic never rounds;
// rounding is applied only at symbol boundaries via RoundingMode.
type Decimal = decimal.Decimal

// Zero is the additive identity, re-exported for callers that only import
// this package.
var Zero = decimal.Zero

// New, NewFromFloat and NewFromInt re-export the shopspring constructors so
// callers never need to import shopspring/decimal directly.
var (
	New           = decimal.New
	NewFromFloat  = decimal.NewFromFloat
	NewFromInt    = decimal.NewFromInt
	NewFromString = decimal.NewFromString
)

// RoundingMode is one of {ToNearest, Floor, Ceiling}, applied explicitly at
// market boundaries.
type RoundingMode int

const (
	ToNearest RoundingMode = iota
	Floor
	Ceiling
)

// RoundWithPrecision rounds d to the given number of fractional digits
// using the requested mode. precision is the number of decimal places
// (e.g. 8 for a 1e-8 tick).
func RoundWithPrecision(d Decimal, precision int32, mode RoundingMode) Decimal {
	switch mode {
	case Floor:
		return roundFloor(d, precision)
	case Ceiling:
		return roundCeiling(d, precision)
	default:
		return d.Round(precision)
	}
}

// roundFloor rounds toward negative infinity: Truncate alone rounds toward
// zero, which is wrong for negative values (e.g. -1.231 truncates to -1.23,
// but the floor at 2 places is -1.24).
func roundFloor(d Decimal, precision int32) Decimal {
	truncated := d.Truncate(precision)
	if truncated.Equal(d) {
		return truncated
	}
	if d.IsNegative() {
		step := decimal.New(1, -precision)
		return truncated.Sub(step)
	}
	return truncated
}

func roundCeiling(d Decimal, precision int32) Decimal {
	truncated := d.Truncate(precision)
	if truncated.Equal(d) {
		return truncated
	}
	step := decimal.New(1, -precision)
	if d.IsNegative() {
		return truncated
	}
	return truncated.Add(step)
}

// IsNegativeBeyond reports whether d is negative by more than margin (used
// to distinguish real negatives from rounding noise at the symbol margin).
func IsNegativeBeyond(d Decimal, margin Decimal) bool {
	return d.LessThan(margin.Neg())
}

// Abs returns the absolute value of d.
func Abs(d Decimal) Decimal {
	return d.Abs()
}

// Max returns the greater of a and b.
func Max(a, b Decimal) Decimal {
	if a.GreaterThan(b) {
		return a
	}
	return b
}

// Min returns the lesser of a and b.
func Min(a, b Decimal) Decimal {
	if a.LessThan(b) {
		return a
	}
	return b
}

// ClampNonNegative returns d if it is >= 0, else zero.
func ClampNonNegative(d Decimal) Decimal {
	return Max(d, Zero)
}
