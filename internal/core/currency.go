package core

import (
	"encoding/json"
	"fmt"
	"strings"

	money "github.com/Rhymond/go-money"
)

// Currency is an ISO 4217 currency. Two currencies are equal when their
// codes are equal.
type Currency struct {
	Code        string
	NumericCode string
	Precision   int32
}

// ParseCurrency looks a code up in the ISO 4217 table. The code is
// case-insensitive and canonicalized to uppercase.
func ParseCurrency(code string) (Currency, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) != 3 {
		return Currency{}, fmt.Errorf("%q: %w", code, ErrUnknownCurrency)
	}
	c := money.GetCurrency(code)
	if c == nil {
		return Currency{}, fmt.Errorf("%q: %w", code, ErrUnknownCurrency)
	}
	return Currency{
		Code:        c.Code,
		NumericCode: c.NumericCode,
		Precision:   int32(c.Fraction),
	}, nil
}

// MustParseCurrency is ParseCurrency for constants known to be valid.
func MustParseCurrency(code string) Currency {
	c, err := ParseCurrency(code)
	if err != nil {
		panic(err)
	}
	return c
}

// Equal compares by code only.
func (c Currency) Equal(other Currency) bool {
	return c.Code == other.Code
}

func (c Currency) IsZero() bool {
	return c.Code == ""
}

func (c Currency) String() string {
	return c.Code
}

// MarshalJSON encodes the currency as its code.
func (c Currency) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.Code)
}

// UnmarshalJSON accepts a currency code and resolves it against the table.
func (c *Currency) UnmarshalJSON(data []byte) error {
	var code string
	if err := json.Unmarshal(data, &code); err != nil {
		return fmt.Errorf("currency must be a string code: %w", ErrValidation)
	}
	parsed, err := ParseCurrency(code)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
