package models

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// Limits applied to amounts accepted from callers.
const (
	MaxAmountScale = 8
	// maxCoefficientBits caps the digits of an unnormalized amount so the
	// checks below stay cheap.
	maxCoefficientBits = 128
)

// MaxAmount is the largest amount a single transaction may carry.
var MaxAmount = decimal.New(1, 15)

var (
	ErrAmountNotPositive = errors.New("amount must be a positive number")
	ErrAmountTooLarge    = fmt.Errorf("amount must be at most %s", MaxAmount.String())
	ErrAmountTooPrecise  = fmt.Errorf("amount must have at most %d decimal places", MaxAmountScale)
)

// ValidateAmount checks that a is positive, at most MaxAmount and carries
// no more than MaxAmountScale decimal places. It never rescales a, so
// values such as 1e5000000 are rejected without expanding them.
func ValidateAmount(a decimal.Decimal) error {
	if !a.IsPositive() {
		return ErrAmountNotPositive
	}
	coef := a.Coefficient()
	if coef.BitLen() > maxCoefficientBits {
		return ErrAmountTooPrecise
	}

	// Trailing zeros of the coefficient do not add precision.
	exp := a.Exponent()
	ten := big.NewInt(10)
	rem := new(big.Int)
	for exp < -MaxAmountScale {
		q, r := new(big.Int).QuoRem(coef, ten, rem)
		if r.Sign() != 0 {
			return ErrAmountTooPrecise
		}
		coef = q
		exp++
	}

	// coef >= 1, so an exponent above 15 is already past the ceiling.
	if exp > 15 {
		return ErrAmountTooLarge
	}
	if a.GreaterThan(MaxAmount) {
		return ErrAmountTooLarge
	}
	return nil
}
