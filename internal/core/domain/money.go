package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// currencyExponents maps currency codes to the number of decimal places of
// their smallest unit. Unlisted codes default to defaultExponent.
var currencyExponents = map[string]int32{
	"BTC":  8,
	"ETH":  8,
	"SOL":  8,
	"USDT": 6,
	"USDC": 6,
	"JPY":  0,
}

const defaultExponent int32 = 2

// CurrencyExponent returns the decimal precision of a currency.
func CurrencyExponent(currency string) int32 {
	if exp, ok := currencyExponents[currency]; ok {
		return exp
	}
	return defaultExponent
}

// Money is a fixed-precision amount tagged with a currency code.
// All ledger arithmetic goes through this type; floats never touch balances.
type Money struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

// NewMoney parses a decimal string into a Money value.
func NewMoney(value string, currency string) (Money, error) {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return Money{}, fmt.Errorf("parse amount %q: %w", value, err)
	}
	return Money{Amount: d, Currency: currency}, nil
}

// MustMoney parses a decimal string and panics on failure. Test helper and
// constant construction only.
func MustMoney(value string, currency string) Money {
	m, err := NewMoney(value, currency)
	if err != nil {
		panic(err)
	}
	return m
}

// ZeroMoney returns a zero amount in the given currency.
func ZeroMoney(currency string) Money {
	return Money{Amount: decimal.Zero, Currency: currency}
}

// ErrCurrencyMismatch is returned when arithmetic mixes currencies.
var ErrCurrencyMismatch = fmt.Errorf("currency mismatch")

func (m Money) check(other Money) error {
	if m.Currency != other.Currency {
		return fmt.Errorf("%w: %s vs %s", ErrCurrencyMismatch, m.Currency, other.Currency)
	}
	return nil
}

// Add returns m + other. The currencies must match.
func (m Money) Add(other Money) (Money, error) {
	if err := m.check(other); err != nil {
		return Money{}, err
	}
	return Money{Amount: m.Amount.Add(other.Amount), Currency: m.Currency}, nil
}

// Sub returns m - other. The currencies must match.
func (m Money) Sub(other Money) (Money, error) {
	if err := m.check(other); err != nil {
		return Money{}, err
	}
	return Money{Amount: m.Amount.Sub(other.Amount), Currency: m.Currency}, nil
}

// Mul scales the amount by a dimensionless factor.
func (m Money) Mul(factor decimal.Decimal) Money {
	return Money{Amount: m.Amount.Mul(factor), Currency: m.Currency}
}

// Convert applies an exchange rate and retags the result with toCurrency,
// rounded to the target currency's exponent.
func (m Money) Convert(rate decimal.Decimal, toCurrency string) Money {
	return Money{
		Amount:   m.Amount.Mul(rate).Round(CurrencyExponent(toCurrency)),
		Currency: toCurrency,
	}
}

// Round returns the amount rounded to the currency's exponent.
func (m Money) Round() Money {
	return Money{Amount: m.Amount.Round(CurrencyExponent(m.Currency)), Currency: m.Currency}
}

// MinUnit returns one smallest unit of the currency (e.g. 0.01 USD).
func (m Money) MinUnit() Money {
	return Money{
		Amount:   decimal.New(1, -CurrencyExponent(m.Currency)),
		Currency: m.Currency,
	}
}

// Cmp compares amounts: -1 if m < other, 0 if equal, 1 if m > other.
// Comparing different currencies is a programming error; Cmp panics the same
// way decimal division by zero would.
func (m Money) Cmp(other Money) int {
	if m.Currency != other.Currency {
		panic(fmt.Sprintf("money: comparing %s with %s", m.Currency, other.Currency))
	}
	return m.Amount.Cmp(other.Amount)
}

// IsZero reports whether the amount is exactly zero.
func (m Money) IsZero() bool { return m.Amount.IsZero() }

// IsPositive reports whether the amount is strictly greater than zero.
func (m Money) IsPositive() bool { return m.Amount.IsPositive() }

// IsNegative reports whether the amount is strictly less than zero.
func (m Money) IsNegative() bool { return m.Amount.IsNegative() }

// Neg returns the negated amount.
func (m Money) Neg() Money {
	return Money{Amount: m.Amount.Neg(), Currency: m.Currency}
}

func (m Money) String() string {
	return m.Amount.StringFixed(CurrencyExponent(m.Currency)) + " " + m.Currency
}
