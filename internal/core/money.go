// Package core holds the ledger's value types: currencies, money amounts,
// pools and transactions, and the rule that applies a transaction to a pool.
package core

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// Money is an amount tied to a currency. The amount is always rounded to the
// currency precision.
type Money struct {
	Amount   decimal.Decimal
	Currency Currency
}

// Round rounds amount to the currency precision, half to even.
func Round(amount decimal.Decimal, c Currency) decimal.Decimal {
	return amount.RoundBank(c.Precision)
}

func NewMoney(amount decimal.Decimal, c Currency) Money {
	return Money{Amount: Round(amount, c), Currency: c}
}

func NewMoneyFromFloat(amount float64, c Currency) Money {
	return NewMoney(decimal.NewFromFloat(amount), c)
}

// Add returns m+other. Both amounts must share a currency.
func (m Money) Add(other Money) (Money, error) {
	if !m.Currency.Equal(other.Currency) {
		return Money{}, fmt.Errorf("add %s to %s: %w", other.Currency, m.Currency, ErrCurrencyMismatch)
	}
	return NewMoney(m.Amount.Add(other.Amount), m.Currency), nil
}

func (m Money) Neg() Money {
	return NewMoney(m.Amount.Neg(), m.Currency)
}

func (m Money) Abs() Money {
	return NewMoney(m.Amount.Abs(), m.Currency)
}

func (m Money) IsZero() bool {
	return m.Amount.IsZero()
}

func (m Money) IsNegative() bool {
	return m.Amount.IsNegative()
}

// Equal reports whether both amount and currency match.
func (m Money) Equal(other Money) bool {
	return m.Currency.Equal(other.Currency) && m.Amount.Equal(other.Amount)
}

// Float64 is for reporting only; balances stay decimal.
func (m Money) Float64() float64 {
	return m.Amount.InexactFloat64()
}

// Text returns the amount with exactly Precision fraction digits.
func (m Money) Text() string {
	return m.Amount.StringFixed(m.Currency.Precision)
}

func (m Money) String() string {
	return m.Text() + " " + m.Currency.Code
}

type moneyJSON struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency Currency        `json:"currency"`
}

func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Amount   string   `json:"amount"`
		Currency Currency `json:"currency"`
	}{Amount: m.Text(), Currency: m.Currency})
}

// UnmarshalJSON accepts the amount either as a JSON string or number.
func (m *Money) UnmarshalJSON(data []byte) error {
	var raw moneyJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.Currency.IsZero() {
		return fmt.Errorf("missing currency: %w", ErrValidation)
	}
	*m = NewMoney(raw.Amount, raw.Currency)
	return nil
}

// ParseAmount parses a signed decimal string. Both dot (12.34) and comma
// (12,34) are accepted as decimal separator; a leading sign is optional.
//
// Examples:
//
//	ParseAmount("12.34")  -> 12.34
//	ParseAmount("-12,5")  -> -12.5
//	ParseAmount("1.2.3")  -> error
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	body := strings.TrimLeft(s, "+-")
	if len(s)-len(body) > 1 || body == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	parts := strings.Split(body, ".")
	if len(parts) > 2 {
		return decimal.Zero, ErrInvalidAmount
	}
	for _, p := range parts {
		for _, r := range p {
			if !unicode.IsDigit(r) {
				return decimal.Zero, ErrInvalidAmount
			}
		}
	}
	d, err := decimal.NewFromString(strings.TrimPrefix(s, "+"))
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}
