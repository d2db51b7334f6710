package domain

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// Money converts a stored float amount into an exact decimal.
func Money(amount float64) decimal.Decimal {
	return decimal.NewFromFloat(amount)
}

func LineTotal(price float64, qty int) decimal.Decimal {
	return Money(price).Mul(decimal.NewFromInt(int64(qty)))
}

// MinorUnits converts an amount to integer minor units, rounding to nearest
// (half away from zero) rather than truncating.
func MinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(hundred).Round(0).IntPart()
}
