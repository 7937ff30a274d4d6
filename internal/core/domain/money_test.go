package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMoney(t *testing.T) {
	m, err := NewMoney("10.50", "USDT")
	require.NoError(t, err)
	assert.Equal(t, "USDT", m.Currency)
	assert.True(t, m.Amount.Equal(decimal.RequireFromString("10.50")))

	_, err = NewMoney("not-a-number", "USDT")
	assert.Error(t, err)
}

func TestCurrencyExponent(t *testing.T) {
	tests := []struct {
		currency string
		want     int32
	}{
		{"BTC", 8},
		{"ETH", 8},
		{"USDT", 6},
		{"USDC", 6},
		{"JPY", 0},
		{"USD", 2},
		{"XYZ", 2}, // unknown codes default to 2
	}
	for _, tt := range tests {
		t.Run(tt.currency, func(t *testing.T) {
			assert.Equal(t, tt.want, CurrencyExponent(tt.currency))
		})
	}
}

func TestMoney_AddSub(t *testing.T) {
	a := MustMoney("10.5", "USDT")
	b := MustMoney("2.25", "USDT")

	sum, err := a.Add(b)
	require.NoError(t, err)
	assert.True(t, sum.Amount.Equal(decimal.RequireFromString("12.75")))

	diff, err := a.Sub(b)
	require.NoError(t, err)
	assert.True(t, diff.Amount.Equal(decimal.RequireFromString("8.25")))
}

func TestMoney_CurrencyMismatch(t *testing.T) {
	a := MustMoney("1", "BTC")
	b := MustMoney("1", "ETH")

	_, err := a.Add(b)
	assert.ErrorIs(t, err, ErrCurrencyMismatch)

	_, err = a.Sub(b)
	assert.ErrorIs(t, err, ErrCurrencyMismatch)

	assert.Panics(t, func() { a.Cmp(b) })
}

func TestMoney_Convert(t *testing.T) {
	// 0.5 BTC at 60000 USDT/BTC = 30000 USDT
	btc := MustMoney("0.5", "BTC")
	got := btc.Convert(decimal.RequireFromString("60000"), "USDT")
	assert.Equal(t, "USDT", got.Currency)
	assert.True(t, got.Amount.Equal(decimal.RequireFromString("30000")))

	// Result rounds to the target currency's exponent.
	eth := MustMoney("1", "ETH")
	got = eth.Convert(decimal.RequireFromString("3000.12345678901"), "USDT")
	assert.True(t, got.Amount.Equal(decimal.RequireFromString("3000.123457")), got.Amount.String())
}

func TestMoney_MinUnit(t *testing.T) {
	assert.True(t, MustMoney("0", "USD").MinUnit().Amount.Equal(decimal.RequireFromString("0.01")))
	assert.True(t, MustMoney("0", "BTC").MinUnit().Amount.Equal(decimal.RequireFromString("0.00000001")))
	assert.True(t, MustMoney("0", "JPY").MinUnit().Amount.Equal(decimal.RequireFromString("1")))
}

func TestMoney_Predicates(t *testing.T) {
	assert.True(t, ZeroMoney("USDT").IsZero())
	assert.True(t, MustMoney("0.000001", "USDT").IsPositive())
	assert.True(t, MustMoney("-1", "USDT").IsNegative())
	assert.True(t, MustMoney("1", "USDT").Neg().IsNegative())
}

func TestMoney_String(t *testing.T) {
	assert.Equal(t, "1.50000000 BTC", MustMoney("1.5", "BTC").String())
	assert.Equal(t, "10.00 USD", MustMoney("10", "USD").String())
}
