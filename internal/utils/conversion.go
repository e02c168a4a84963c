/*
This file contains the fixed point helpers shared by the valuation and accounting code,
plus the float conversion used for metrics.
*/

package utils

import (
	"errors"
	"fmt"
	"math"
	"math/big"

	sdkmath "cosmossdk.io/math"
)

// Error definitions for zero-tolerance error handling
var (
	ErrInvalidPrecision = errors.New("precision is invalid")
	ErrAmountNil        = errors.New("amount is nil")
	ErrAmountNegative   = errors.New("amount is negative")
	ErrNotFinite        = errors.New("value is not finite")
	ErrDivisionByZero   = errors.New("division by zero")
)

// maxPrecision bounds the decimals accepted by the helpers below.
const maxPrecision = 36

// Pow10 returns 10^exp as an SDK Int.
func Pow10(exp uint8) sdkmath.Int {
	return sdkmath.NewIntFromBigInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(exp)), nil))
}

// MulDiv computes floor(x * y / denom) with an unbounded intermediate product.
func MulDiv(x, y, denom sdkmath.Int) (sdkmath.Int, error) {
	if denom.IsZero() {
		return sdkmath.ZeroInt(), ErrDivisionByZero
	}
	product := new(big.Int).Mul(x.BigInt(), y.BigInt())
	return sdkmath.NewIntFromBigInt(product.Quo(product, denom.BigInt())), nil
}

// ApplyRate returns amount * rate / scale, floored. Fees and percentages all go through here.
func ApplyRate(amount sdkmath.Int, rate, scale uint64) sdkmath.Int {
	if scale == 0 {
		return sdkmath.ZeroInt()
	}
	out, _ := MulDiv(amount, sdkmath.NewIntFromUint64(rate), sdkmath.NewIntFromUint64(scale))
	return out
}

// MaxInt returns the larger of a and b.
func MaxInt(a, b sdkmath.Int) sdkmath.Int {
	if a.GT(b) {
		return a
	}
	return b
}

// SDKIntToFloat64 converts an SDK Int to float64 with proper precision handling
func SDKIntToFloat64(amount sdkmath.Int, precision int) (float64, error) {
	if precision < 0 || precision > maxPrecision {
		return 0, fmt.Errorf("%w: %d (must be between 0 and %d)", ErrInvalidPrecision, precision, maxPrecision)
	}
	if amount.IsNil() {
		return 0, ErrAmountNil
	}
	if amount.IsNegative() {
		return 0, ErrAmountNegative
	}

	result := new(big.Float).Quo(new(big.Float).SetInt(amount.BigInt()), new(big.Float).SetInt(Pow10(uint8(precision)).BigInt()))
	resultFloat, _ := result.Float64()

	if math.IsNaN(resultFloat) || math.IsInf(resultFloat, 0) {
		return 0, fmt.Errorf("%w: result is %f", ErrNotFinite, resultFloat)
	}

	return resultFloat, nil
}
