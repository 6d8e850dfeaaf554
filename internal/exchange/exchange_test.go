package exchange

import (
	"context"
	"errors"
	"math"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"moneypools/internal/core"
	"moneypools/internal/exchange/static"
)

var (
	usd = core.MustParseCurrency("USD")
	eur = core.MustParseCurrency("EUR")
	amd = core.MustParseCurrency("AMD")
	vnd = core.MustParseCurrency("VND")
)

func money(s string, c core.Currency) core.Money {
	return core.NewMoney(decimal.RequireFromString(s), c)
}

func failingSource(err error) Source {
	return SourceFunc(func(context.Context, core.Currency, core.Currency) (float64, error) {
		return 0, err
	})
}

func TestConvertSameCurrencySkipsLookup(t *testing.T) {
	var calls int32
	src := SourceFunc(func(context.Context, core.Currency, core.Currency) (float64, error) {
		atomic.AddInt32(&calls, 1)
		return 2, nil
	})

	got, err := Convert(context.Background(), money("10.00", usd), usd, src)
	require.NoError(t, err)
	assert.Equal(t, "10.00 USD", got.String())
	assert.Zero(t, atomic.LoadInt32(&calls))
}

func TestConvertRoundsToTarget(t *testing.T) {
	src := static.New(map[string]float64{"USD/VND": 25432.57, "USD/EUR": 0.9137})

	got, err := Convert(context.Background(), money("3.14", usd), vnd, src)
	require.NoError(t, err)
	assert.Equal(t, "79858 VND", got.String())

	got, err = Convert(context.Background(), money("10.00", usd), eur, src)
	require.NoError(t, err)
	assert.Equal(t, "9.14 EUR", got.String())
}

func TestConvertRateUnavailable(t *testing.T) {
	_, err := Convert(context.Background(), money("1", usd), eur, failingSource(errors.New("timeout")))
	assert.ErrorIs(t, err, core.ErrRateUnavailable)
	assert.ErrorContains(t, err, "timeout")

	_, err = Convert(context.Background(), money("1", usd), eur, SourceFunc(func(context.Context, core.Currency, core.Currency) (float64, error) {
		return math.NaN(), nil
	}))
	assert.ErrorIs(t, err, core.ErrRateUnavailable)
}

func TestCoerceToPool(t *testing.T) {
	pool := core.Pool{ID: "p", DisplayName: "cash", Balance: []core.Money{money("0", usd), money("0", eur)}}
	src := static.New(map[string]float64{"AMD/USD": 0.0025, "AMD/EUR": 0.0023})

	input := core.Transaction{PoolID: "p", Sum: money("4000", amd), Tags: []string{"trip"}}
	out, err := CoerceToPool(context.Background(), input, pool, src)
	require.NoError(t, err)

	assert.Equal(t, "10.00 USD", out.Sum.String())
	require.NotNil(t, out.OriginalCurrency)
	assert.Equal(t, "AMD", out.OriginalCurrency.Code)
	assert.Equal(t, "4000.00 AMD", input.Sum.String())
	assert.Nil(t, input.OriginalCurrency)

	same, err := CoerceToPool(context.Background(), core.Transaction{Sum: money("5", eur)}, pool, failingSource(errors.New("unused")))
	require.NoError(t, err)
	assert.Equal(t, "5.00 EUR", same.Sum.String())
	assert.Nil(t, same.OriginalCurrency)

	_, err = CoerceToPool(context.Background(), input, pool, failingSource(errors.New("down")))
	assert.ErrorIs(t, err, core.ErrRateUnavailable)
}

func TestCachedSource(t *testing.T) {
	var calls int32
	src := SourceFunc(func(context.Context, core.Currency, core.Currency) (float64, error) {
		atomic.AddInt32(&calls, 1)
		return 0.5, nil
	})
	cached := NewCached(src, 10, time.Minute)

	for i := 0; i < 3; i++ {
		rate, err := cached.GetRate(context.Background(), usd, eur)
		require.NoError(t, err)
		assert.Equal(t, 0.5, rate)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.Zero(t, cached.Rates().CleanExpired())
}

func TestPrefetch(t *testing.T) {
	src := static.New(map[string]float64{"USD/EUR": 0.9, "AMD/EUR": 0.0023})
	table, err := Prefetch(context.Background(), src, eur, []core.Currency{usd, amd, eur, usd}, 2)
	require.NoError(t, err)

	v, err := table.ToTarget(100, usd)
	require.NoError(t, err)
	assert.InDelta(t, 90, v, 1e-9)

	v, err = table.ToTarget(100, eur)
	require.NoError(t, err)
	assert.Equal(t, 100.0, v)

	_, err = table.ToTarget(1, vnd)
	assert.ErrorIs(t, err, core.ErrRateUnavailable)

	_, err = Prefetch(context.Background(), src, eur, []core.Currency{vnd}, 0)
	assert.ErrorIs(t, err, core.ErrRateUnavailable)
}
