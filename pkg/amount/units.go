// Package amount converts between human readable token amounts and integer base units.
// Amounts are never represented as floating point values.
package amount

import (
	"math"
	"math/big"
	"strings"

	"github.com/holiman/uint256"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

const (
	// DefaultDecimals is the number of decimals used by native EVM assets
	DefaultDecimals = 18

	// MaxDecimals is the largest decimals value whose unit still fits in 256 bits
	MaxDecimals = 77

	// BpsDenominator is the number of basis points in 100%
	BpsDenominator = 10000
)

var bpsDenominator = big.NewInt(BpsDenominator)

// FitsUint256 reports whether v is a non-negative integer representable in 256 bits
func FitsUint256(v *big.Int) bool {
	if v == nil || v.Sign() < 0 {
		return false
	}
	_, overflow := uint256.FromBig(v)
	return !overflow
}

// ParseUnits converts a decimal string such as "0.1" into base units with the given decimals.
// It fails rather than rounding when the value carries more precision than decimals allows.
func ParseUnits(value string, decimals int32) (*big.Int, error) {
	if decimals < 0 || decimals > MaxDecimals {
		return nil, errors.Errorf("decimals out of range: %d", decimals)
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, errors.New("empty amount")
	}

	d, err := decimal.NewFromString(value)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid amount %q", value)
	}
	if d.IsNegative() {
		return nil, errors.Errorf("amount must not be negative: %s", value)
	}

	shifted := d.Shift(decimals)
	if !shifted.Equal(shifted.Truncate(0)) {
		return nil, errors.Errorf("amount %s has more than %d decimal places", value, decimals)
	}

	units := shifted.BigInt()
	if !FitsUint256(units) {
		return nil, errors.Errorf("amount %s does not fit in 256 bits", value)
	}
	return units, nil
}

// ParseBaseUnits parses an integer amount that is already expressed in base units
func ParseBaseUnits(value string) (*big.Int, error) {
	value = strings.TrimSpace(value)
	units, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return nil, errors.Errorf("invalid base unit amount: %q", value)
	}
	if !FitsUint256(units) {
		return nil, errors.Errorf("base unit amount %s must be non-negative and fit in 256 bits", value)
	}
	return units, nil
}

// FormatUnits renders base units as a decimal string with the given decimals
func FormatUnits(units *big.Int, decimals int32) string {
	if units == nil {
		return "0"
	}
	return decimal.NewFromBigInt(units, -decimals).String()
}

// ParseSlippage converts a percentage string such as "0.5" or "5" into basis points.
// Values must lie within [0, 100] and resolve to a whole number of basis points.
func ParseSlippage(percent string) (uint32, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(percent))
	if err != nil {
		return 0, errors.Wrapf(err, "invalid slippage %q", percent)
	}
	if d.IsNegative() || d.GreaterThan(decimal.NewFromInt(100)) {
		return 0, errors.Errorf("slippage must be between 0 and 100 percent, got %s", percent)
	}

	bps := d.Shift(2)
	if !bps.Equal(bps.Truncate(0)) {
		return 0, errors.Errorf("slippage %s is finer than one basis point", percent)
	}
	return uint32(bps.IntPart()), nil
}

// PercentToBps converts a whole percentage into basis points, saturating at math.MaxUint32.
// Out of range results are left for validation to reject.
func PercentToBps(percent uint32) uint32 {
	bps := uint64(percent) * 100
	if bps > math.MaxUint32 {
		return math.MaxUint32
	}
	return uint32(bps)
}

// MinAmountOut applies a slippage tolerance to a quoted output amount, rounding down.
func MinAmountOut(quote *big.Int, slippageBps uint32) (*big.Int, error) {
	if quote == nil || quote.Sign() < 0 {
		return nil, errors.New("quote must be a non-negative amount")
	}
	if slippageBps > BpsDenominator {
		return nil, errors.Errorf("slippage %d bps exceeds %d", slippageBps, BpsDenominator)
	}

	keep := big.NewInt(int64(BpsDenominator - slippageBps))
	floor := new(big.Int).Mul(quote, keep)
	return floor.Quo(floor, bpsDenominator), nil
}
