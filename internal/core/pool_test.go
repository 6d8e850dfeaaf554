package core

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func usdEurPool() Pool {
	return Pool{
		ID:          "p1",
		DisplayName: "wallet",
		Balance: []Money{
			NewMoney(decimal.RequireFromString("300.00"), MustParseCurrency("USD")),
			NewMoney(decimal.RequireFromString("12.50"), MustParseCurrency("EUR")),
		},
		IsVisible: true,
	}
}

func TestPoolValidate(t *testing.T) {
	p := usdEurPool()
	require.NoError(t, p.Validate())

	dup := usdEurPool()
	dup.Balance = append(dup.Balance, NewMoney(decimal.NewFromInt(1), MustParseCurrency("usd")))
	assert.ErrorIs(t, dup.Validate(), ErrDuplicateCurrency)

	noName := usdEurPool()
	noName.DisplayName = "  "
	assert.ErrorIs(t, noName.Validate(), ErrEmptyDisplayName)

	empty := usdEurPool()
	empty.Balance = nil
	assert.ErrorIs(t, empty.Validate(), ErrEmptyBalance)
}

func TestApplyTransaction(t *testing.T) {
	p := usdEurPool()
	now := time.Date(2024, 9, 1, 12, 0, 0, 0, time.UTC)
	tx := Transaction{
		PoolID: p.ID,
		Sum:    NewMoney(decimal.RequireFromString("-2.255"), MustParseCurrency("EUR")),
	}

	idx, line, err := ApplyTransaction(&p, tx, now)
	require.NoError(t, err)
	assert.Equal(t, 1, idx)
	assert.Equal(t, "10.24 EUR", line.String())
	assert.Equal(t, line, p.Balance[1])
	require.NotNil(t, p.LastUpdated)
	assert.Equal(t, now, *p.LastUpdated)
	assert.Equal(t, "300.00", p.Balance[0].Text())
}

func TestApplyTransactionUnknownCurrency(t *testing.T) {
	p := usdEurPool()
	tx := Transaction{Sum: NewMoney(decimal.NewFromInt(5), MustParseCurrency("AMD"))}

	_, _, err := ApplyTransaction(&p, tx, time.Now())
	assert.ErrorIs(t, err, ErrCurrencyNotInPool)
	assert.Nil(t, p.LastUpdated)
}

func TestApplyThenInverseIsNoOp(t *testing.T) {
	amounts := []string{"0.01", "-0.015", "123.456", "-99999.995", "7", "0.333333"}
	for _, a := range amounts {
		for _, code := range []string{"USD", "EUR"} {
			p := usdEurPool()
			before := append([]Money(nil), p.Balance...)
			tx := Transaction{Sum: NewMoney(decimal.RequireFromString(a), MustParseCurrency(code))}

			_, _, err := ApplyTransaction(&p, tx, time.Now())
			require.NoError(t, err)
			_, _, err = ApplyTransaction(&p, tx.Inverted(), time.Now())
			require.NoError(t, err)

			for i := range before {
				assert.True(t, before[i].Equal(p.Balance[i]), "%s %s: %s != %s", a, code, before[i], p.Balance[i])
			}
		}
	}
}

func TestPoolCloneIsDeep(t *testing.T) {
	color := "#ff0000"
	p := usdEurPool()
	p.DisplayColor = &color

	c := p.Clone()
	c.Balance[0] = NewMoney(decimal.Zero, MustParseCurrency("USD"))
	*c.DisplayColor = "#000000"

	assert.Equal(t, "300.00", p.Balance[0].Text())
	assert.Equal(t, "#ff0000", *p.DisplayColor)
}

func TestPoolAttributesUpdate(t *testing.T) {
	p := usdEurPool()
	name := "savings"
	hidden := false
	u := PoolAttributesUpdate{DisplayName: &name, IsVisible: &hidden}
	require.NoError(t, u.Validate())
	u.Apply(&p)

	assert.Equal(t, "savings", p.DisplayName)
	assert.False(t, p.IsVisible)
	assert.Nil(t, p.DisplayColor)

	blank := ""
	assert.ErrorIs(t, PoolAttributesUpdate{DisplayName: &blank}.Validate(), ErrValidation)
	assert.True(t, PoolAttributesUpdate{}.IsEmpty())
}
