package core

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMoneyRounds(t *testing.T) {
	cases := []struct {
		amount   string
		currency string
		want     string
	}{
		{"14.3", "EUR", "14.30"},
		{"3.14152", "USD", "3.14"},
		{"3.14152", "VND", "3"},
		{"2.675", "USD", "2.68"},
		{"0.125", "EUR", "0.12"},
		{"-0.135", "EUR", "-0.14"},
		{"1.0005", "BHD", "1.000"},
	}
	for _, tc := range cases {
		t.Run(tc.amount+" "+tc.currency, func(t *testing.T) {
			m := NewMoney(decimal.RequireFromString(tc.amount), MustParseCurrency(tc.currency))
			assert.Equal(t, tc.want, m.Text())
		})
	}
}

func TestRoundIsIdempotent(t *testing.T) {
	for _, code := range []string{"USD", "VND", "BHD", "CLF"} {
		c := MustParseCurrency(code)
		for _, s := range []string{"1.23456789", "-7.5", "0.005", "123456.789012", "-0.0000001"} {
			once := Round(decimal.RequireFromString(s), c)
			twice := Round(once, c)
			assert.True(t, once.Equal(twice), "%s %s", s, code)

			text := NewMoney(decimal.RequireFromString(s), c).Text()
			if c.Precision == 0 {
				assert.NotContains(t, text, ".")
			} else {
				parts := strings.Split(text, ".")
				require.Len(t, parts, 2)
				assert.Len(t, parts[1], int(c.Precision), "%s %s", s, code)
			}
		}
	}
}

func TestMoneyAdd(t *testing.T) {
	usd := MustParseCurrency("usd")
	a := NewMoney(decimal.RequireFromString("10.10"), usd)
	b := NewMoney(decimal.RequireFromString("-0.15"), usd)

	sum, err := a.Add(b)
	require.NoError(t, err)
	assert.Equal(t, "9.95", sum.Text())

	_, err = a.Add(NewMoney(decimal.NewFromInt(1), MustParseCurrency("EUR")))
	assert.ErrorIs(t, err, ErrCurrencyMismatch)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestMoneyJSON(t *testing.T) {
	m := NewMoney(decimal.RequireFromString("14.3"), MustParseCurrency("EUR"))
	data, err := json.Marshal(m)
	require.NoError(t, err)
	assert.JSONEq(t, `{"amount":"14.30","currency":"EUR"}`, string(data))

	var decoded Money
	require.NoError(t, json.Unmarshal([]byte(`{"amount": 3.14152, "currency": "usd"}`), &decoded))
	assert.Equal(t, "3.14 USD", decoded.String())

	err = json.Unmarshal([]byte(`{"amount": "1", "currency": "XXQ"}`), &decoded)
	assert.ErrorIs(t, err, ErrUnknownCurrency)

	err = json.Unmarshal([]byte(`{"amount": "1"}`), &decoded)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"1", "1", true},
		{"1.23", "1.23", true},
		{"1,23", "1.23", true},
		{" -2.50 ", "-2.5", true},
		{"+7", "7", true},
		{"0", "0", true},
		{"--1", "", false},
		{"abc", "", false},
		{"1.2.3", "", false},
		{"", "", false},
		{"-", "", false},
	}
	for _, tc := range cases {
		got, err := ParseAmount(tc.in)
		if !tc.ok {
			assert.ErrorIs(t, err, ErrInvalidAmount, "%q", tc.in)
			continue
		}
		require.NoError(t, err, "%q", tc.in)
		assert.True(t, got.Equal(decimal.RequireFromString(tc.want)), "%q: got %s", tc.in, got)
	}
}
