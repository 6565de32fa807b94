package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestValueFromCurrencyFloorsOnInput(t *testing.T) {
	// 500000 currency units at rate 98.00 scaled by 10^2
	value, err := ValueFromCurrency(dec("500000"), dec("9800"), 2, OrderTypeInput)
	require.NoError(t, err)
	assert.True(t, dec("5102").Equal(value), "got %s", value)
}

func TestValueFromCurrencyCeilsOnOutput(t *testing.T) {
	value, err := ValueFromCurrency(dec("500000"), dec("9800"), 2, OrderTypeOutput)
	require.NoError(t, err)
	assert.True(t, dec("5103").Equal(value), "got %s", value)
}

func TestCurrencyFromValueRoundTrip(t *testing.T) {
	value, err := ValueFromCurrency(dec("500000"), dec("9800"), 2, OrderTypeInput)
	require.NoError(t, err)
	cv, err := CurrencyFromValue(value, dec("9800"), 2, OrderTypeInput)
	require.NoError(t, err)
	// floor rounding loses at most one rate unit of currency
	assert.True(t, cv.LessThanOrEqual(dec("500000")))
	assert.True(t, cv.GreaterThan(dec("499900")), "got %s", cv)
}

func TestCurrencyFromValueZeroRate(t *testing.T) {
	_, err := CurrencyFromValue(dec("100"), decimal.Zero, 2, OrderTypeInput)
	assert.ErrorIs(t, err, ErrZeroRate)
	_, err = ValueFromCurrency(dec("100"), decimal.Zero, 2, OrderTypeInput)
	assert.ErrorIs(t, err, ErrZeroRate)
}

func TestSnapToDiv(t *testing.T) {
	assert.True(t, dec("400").Equal(SnapToDiv(dec("499"), dec("100"))))
	assert.True(t, dec("500").Equal(SnapToDiv(dec("500"), dec("100"))))
	assert.True(t, decimal.Zero.Equal(SnapToDiv(dec("99"), dec("100"))))
}

func TestMeanRate(t *testing.T) {
	mean := MeanRate([]decimal.Decimal{dec("100"), dec("200"), dec("300")})
	assert.True(t, dec("200").Equal(mean), "got %s", mean)
	assert.True(t, MeanRate(nil).IsZero())
}
