package domain

import (
	"github.com/shopspring/decimal"
)

// Quantities live in two scaled-integer domains: "currency value" (native
// token units) and "value" (internal settlement units), related through a
// rate scaled by 10^rate_decimal. Derived amounts round down on the input
// side and up on the output side; currency amounts additionally snap down
// to a multiple of the currency's div before the paired value is derived.

// CurrencyFromValue converts internal value units into currency units:
// currency = value * rate / 10^rateDecimal.
func CurrencyFromValue(value, rate decimal.Decimal, rateDecimal int32, typ OrderType) (decimal.Decimal, error) {
	if rate.IsZero() {
		return decimal.Zero, ErrZeroRate
	}
	raw := value.Mul(rate).Shift(-rateDecimal)
	return roundByType(raw, typ), nil
}

// ValueFromCurrency converts currency units into internal value units:
// value = currencyValue / rate * 10^rateDecimal.
func ValueFromCurrency(currencyValue, rate decimal.Decimal, rateDecimal int32, typ OrderType) (decimal.Decimal, error) {
	if rate.IsZero() {
		return decimal.Zero, ErrZeroRate
	}
	raw := currencyValue.Shift(rateDecimal).Div(rate)
	return roundByType(raw, typ), nil
}

// SnapToDiv rounds a currency amount down to the nearest multiple of div.
func SnapToDiv(currencyValue, div decimal.Decimal) decimal.Decimal {
	if div.Sign() <= 0 {
		return currencyValue.Floor()
	}
	return currencyValue.Div(div).Floor().Mul(div)
}

// MeanRate returns the arithmetic mean of the given rates, zero for none.
func MeanRate(rates []decimal.Decimal) decimal.Decimal {
	if len(rates) == 0 {
		return decimal.Zero
	}
	sum := decimal.Zero
	for _, r := range rates {
		sum = sum.Add(r)
	}
	return sum.Div(decimal.NewFromInt(int64(len(rates))))
}

// roundByType floors derived amounts for the input side and ceils them for
// the output side.
func roundByType(raw decimal.Decimal, typ OrderType) decimal.Decimal {
	if typ == OrderTypeOutput {
		return raw.Ceil()
	}
	return raw.Floor()
}
