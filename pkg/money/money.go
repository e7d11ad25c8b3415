// Package money holds minor-unit currency helpers.
package money

import (
	"strings"

	"github.com/shopspring/decimal"
)

const USD = "USD"

var hundred = decimal.NewFromInt(100)

// RateTable maps a currency code to USD per unit.
type RateTable map[string]decimal.Decimal

// NormalizeCode upper-cases the code and defaults empty to USD.
func NormalizeCode(code string) string {
	c := strings.ToUpper(strings.TrimSpace(code))
	if c == "" {
		return USD
	}
	return c
}

// ToUSDCents converts an amount in minor units to USD minor units.
// The second result is false when no conversion was applied: USD input,
// non-positive amounts, or an unknown/invalid rate. In that case the
// amount is returned unchanged.
func ToUSDCents(amountCents int64, currency string, rates RateTable) (int64, bool) {
	code := NormalizeCode(currency)
	if code == USD || amountCents <= 0 {
		return amountCents, false
	}
	rate, ok := rates[code]
	if !ok || !rate.IsPositive() {
		return amountCents, false
	}
	usd := decimal.NewFromInt(amountCents).Mul(rate).Round(0)
	return usd.IntPart(), true
}

// CentsToDollars converts minor units to a two-place dollar amount.
func CentsToDollars(cents int64) float64 {
	f, _ := decimal.New(cents, -2).Float64()
	return f
}

// DollarsToCents rounds a dollar amount to whole cents.
func DollarsToCents(dollars float64) int64 {
	return decimal.NewFromFloat(dollars).Mul(hundred).Round(0).IntPart()
}

// Round rounds half away from zero to the given number of places.
func Round(x float64, places int32) float64 {
	f, _ := decimal.NewFromFloat(x).Round(places).Float64()
	return f
}
