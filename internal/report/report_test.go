package report

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"moneypools/internal/core"
	"moneypools/internal/exchange/static"
	"moneypools/internal/ledger/memory"
)

const owner = "alice"

var (
	usd = core.MustParseCurrency("USD")
	eur = core.MustParseCurrency("EUR")
)

func day(d int) time.Time {
	return time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, d)
}

func money(s string, c core.Currency) core.Money {
	return core.NewMoney(decimal.RequireFromString(s), c)
}

func seed(t *testing.T, store *memory.Store, balance []core.Money, txs ...core.Transaction) core.Pool {
	t.Helper()
	ctx := context.Background()
	p, err := store.AddPool(ctx, owner, core.Pool{DisplayName: "debit", Balance: balance, IsVisible: true})
	require.NoError(t, err)
	for _, tx := range txs {
		tx.PoolID = p.ID
		_, err := store.AddTransaction(ctx, owner, tx)
		require.NoError(t, err)
	}
	return p
}

func tx(amount string, c core.Currency, d int, tags ...string) core.Transaction {
	return core.Transaction{Sum: money(amount, c), Timestamp: day(d), Tags: tags}
}

func newEngine(store Store, config Config) *Engine {
	return NewEngine(store, static.Identity(), config, nil).WithClock(func() time.Time { return day(30) })
}

func TestBuild_DebitScenario(t *testing.T) {
	store := memory.New()
	seed(t, store, []core.Money{money("300", usd)},
		tx("-100", usd, 1),
		tx("-50", usd, 5),
		tx("-10", usd, 6),
		tx("-50", usd, 12),
		tx("150", usd, 8),
		tx("1000", usd, 16),
	)

	rep, err := newEngine(store, DefaultConfig()).Build(context.Background(), owner, Request{
		Start:    day(0),
		End:      day(14),
		Points:   3,
		Currency: eur,
	})
	require.NoError(t, err)
	require.Len(t, rep.Snapshots, 3)

	var balances, totals []string
	for _, s := range rep.Snapshots {
		require.Len(t, s.Pools, 1)
		balances = append(balances, s.Pools[0].Pool.Balance[0].String())
		totals = append(totals, s.Total.String())
	}
	assert.Equal(t, []string{"240.00 USD", "140.00 USD", "300.00 USD"}, balances)
	assert.Equal(t, []string{"240.00 EUR", "140.00 EUR", "300.00 EUR"}, totals)

	assert.True(t, rep.Snapshots[0].Timestamp.Equal(day(14)))
	assert.True(t, rep.Snapshots[1].Timestamp.Equal(day(7)))
	assert.True(t, rep.Snapshots[2].Timestamp.Equal(day(0)))

	assert.Equal(t, "210.00 EUR", rep.Spent.String())
	assert.Equal(t, "150.00 EUR", rep.Made.String())

	require.Len(t, rep.Snapshots[0].TagTotals, 1)
	assert.Nil(t, rep.Snapshots[0].TagTotals[0].Tag)
	assert.Equal(t, "100.00 EUR", rep.Snapshots[0].TagTotals[0].Net.String())
	require.Len(t, rep.Snapshots[1].TagTotals, 1)
	assert.Equal(t, "-160.00 EUR", rep.Snapshots[1].TagTotals[0].Net.String())
	assert.Empty(t, rep.Snapshots[2].TagTotals)

	require.Len(t, rep.TagTotals, 1)
	assert.Equal(t, "-60.00 EUR", rep.TagTotals[0].Net.String())
}

func TestBuild_DefaultEndIsNow(t *testing.T) {
	store := memory.New()
	seed(t, store, []core.Money{money("300", usd)}, tx("-100", usd, 1))

	rep, err := newEngine(store, DefaultConfig()).Build(context.Background(), owner, Request{Start: day(0), Points: 2, Currency: usd})
	require.NoError(t, err)
	assert.True(t, rep.End.Equal(day(30)))
	assert.Equal(t, "200.00 USD", rep.Snapshots[0].Total.String())
	assert.Equal(t, "300.00 USD", rep.Snapshots[1].Total.String())
}

func TestBuild_NoTransactions(t *testing.T) {
	store := memory.New()
	seed(t, store, []core.Money{money("42.10", usd), money("7", eur)})

	rep, err := newEngine(store, DefaultConfig()).Build(context.Background(), owner, Request{Start: day(0), End: day(10), Points: 5, Currency: eur})
	require.NoError(t, err)
	require.Len(t, rep.Snapshots, 5)
	for _, s := range rep.Snapshots {
		assert.Equal(t, "42.10 USD", s.Pools[0].Pool.Balance[0].String())
		assert.Equal(t, "7.00 EUR", s.Pools[0].Pool.Balance[1].String())
		assert.Empty(t, s.TagTotals)
	}
	assert.True(t, rep.Spent.IsZero())
	assert.True(t, rep.Made.IsZero())
}

func TestBuild_MultiTagTotals(t *testing.T) {
	store := memory.New()
	seed(t, store, []core.Money{money("100", usd)},
		tx("-10", usd, 2, "a", "b"),
		tx("5", usd, 3),
		tx("-1", usd, 4, "b"),
	)

	rep, err := newEngine(store, DefaultConfig()).Build(context.Background(), owner, Request{Start: day(0), End: day(10), Points: 2, Currency: usd})
	require.NoError(t, err)

	got := map[string]string{}
	var order []string
	for _, tt := range rep.TagTotals {
		name := "<untagged>"
		if tt.Tag != nil {
			name = *tt.Tag
		}
		got[name] = tt.Net.String()
		order = append(order, name)
	}
	assert.Equal(t, map[string]string{"a": "-10.00 USD", "b": "-11.00 USD", "<untagged>": "5.00 USD"}, got)
	assert.Equal(t, []string{"b", "a", "<untagged>"}, order)
	assert.Equal(t, "11.00 USD", rep.Spent.String())
	assert.Equal(t, "5.00 USD", rep.Made.String())
}

func TestBuild_Fractions(t *testing.T) {
	store := memory.New()
	seed(t, store, []core.Money{money("100", usd), money("50", eur)})
	_, err := store.AddPool(context.Background(), owner, core.Pool{DisplayName: "empty", Balance: []core.Money{money("0", usd), money("0", eur)}})
	require.NoError(t, err)

	rates := static.New(map[string]float64{"USD/EUR": 0.5})
	engine := NewEngine(store, rates, DefaultConfig(), nil)
	rep, err := engine.Build(context.Background(), owner, Request{Start: day(0), End: day(10), Points: 2, Currency: eur})
	require.NoError(t, err)

	snap := rep.Snapshots[0]
	require.Len(t, snap.Pools, 2)
	assert.Equal(t, "100.00 EUR", snap.Pools[0].Total.String())
	assert.InDelta(t, 0.5, snap.Pools[0].Fractions[0].Fraction, 1e-9)
	assert.InDelta(t, 0.5, snap.Pools[0].Fractions[1].Fraction, 1e-9)

	assert.True(t, snap.Pools[1].Total.IsZero())
	assert.InDelta(t, 0.5, snap.Pools[1].Fractions[0].Fraction, 1e-9)
	assert.InDelta(t, 0.5, snap.Pools[1].Fractions[1].Fraction, 1e-9)
	assert.Equal(t, "100.00 EUR", snap.Total.String())
}

func TestBuild_Errors(t *testing.T) {
	store := memory.New()
	seed(t, store, []core.Money{money("100", usd)},
		tx("-1", usd, 1), tx("-1", usd, 2), tx("-1", usd, 3))
	ctx := context.Background()

	engine := newEngine(store, Config{MaxTransactions: 2})
	_, err := engine.Build(ctx, owner, Request{Start: day(0), End: day(10), Points: 2, Currency: usd})
	assert.ErrorIs(t, err, core.ErrTooManyTransactions)

	engine = newEngine(store, DefaultConfig())
	for name, req := range map[string]Request{
		"one point":     {Start: day(0), End: day(10), Points: 1, Currency: usd},
		"start at end":  {Start: day(10), End: day(10), Points: 2, Currency: usd},
		"no currency":   {Start: day(0), End: day(10), Points: 2},
		"too many bins": {Start: day(0), End: day(10), Points: 5000, Currency: usd},
	} {
		_, err := engine.Build(ctx, owner, req)
		assert.ErrorIs(t, err, core.ErrValidation, name)
	}

	noRates := NewEngine(store, static.New(nil), DefaultConfig(), nil)
	_, err = noRates.Build(ctx, owner, Request{Start: day(0), End: day(10), Points: 2, Currency: eur})
	assert.ErrorIs(t, err, core.ErrRateUnavailable)
}

func TestBoundaries(t *testing.T) {
	b := Boundaries(day(0), day(14), 3)
	require.Len(t, b, 3)
	assert.True(t, b[0].Equal(day(14)))
	assert.True(t, b[1].Equal(day(7)))
	assert.True(t, b[2].Equal(day(0)))

	b = Boundaries(day(0), day(1), 2)
	assert.Equal(t, []time.Time{day(1), day(0)}, b)
}

func TestWalk_TransactionOnBoundary(t *testing.T) {
	pools := []core.Pool{{ID: "p", DisplayName: "p", Balance: []core.Money{money("10", usd)}}}
	window := []core.Transaction{
		{ID: "t2", PoolID: "p", Sum: money("3", usd), Timestamp: day(5)},
		{ID: "t1", PoolID: "p", Sum: money("2", usd), Timestamp: day(0)},
	}
	states, subsets, err := walk(pools, window, Boundaries(day(0), day(10), 3))
	require.NoError(t, err)
	require.Len(t, states, 3)
	assert.Equal(t, "10.00 USD", states[0][0].Balance[0].String())
	assert.Equal(t, "7.00 USD", states[1][0].Balance[0].String())
	assert.Equal(t, "5.00 USD", states[2][0].Balance[0].String())
	require.Len(t, subsets[0], 1)
	assert.Equal(t, "t2", subsets[0][0].ID)
	require.Len(t, subsets[1], 1)
	assert.Equal(t, "t1", subsets[1][0].ID)
	assert.Empty(t, subsets[2])
	assert.Equal(t, "5.00 USD", pools[0].Balance[0].String())
}
