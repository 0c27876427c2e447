package models

import (
	"github.com/shopspring/decimal"
)

// MoneyPrecision is the number of fraction digits kept for monetary values
const MoneyPrecision int32 = 2

// Exponent window accepted before any arithmetic. Rescaling a decimal costs
// 10^|exponent|, so values outside it are rejected unexamined.
const (
	minMoneyExponent int32 = -18
	maxMoneyExponent int32 = 10
)

// MaxMoney is the largest amount the stores can hold, NUMERIC(12,2)
var MaxMoney = decimal.RequireFromString("9999999999.99")

// Money parses a decimal string and rounds it to MoneyPrecision.
// It panics on malformed input and is meant for literals in seeds and tests.
func Money(s string) decimal.Decimal {
	return decimal.RequireFromString(s).Round(MoneyPrecision)
}

// MoneyFromInt returns a whole-unit monetary value
func MoneyFromInt(units int64) decimal.Decimal {
	return decimal.NewFromInt(units)
}

// InMoneyRange reports whether d is a magnitude the stores can hold.
// It never rescales d, so it is safe on untrusted input.
func InMoneyRange(d decimal.Decimal) bool {
	exp := d.Exponent()
	if exp < minMoneyExponent || exp > maxMoneyExponent {
		return false
	}
	return d.Abs().LessThanOrEqual(MaxMoney)
}

// IsValidMoney reports whether d is in range and carries no more than
// MoneyPrecision fraction digits
func IsValidMoney(d decimal.Decimal) bool {
	return InMoneyRange(d) && d.Equal(d.Round(MoneyPrecision))
}
