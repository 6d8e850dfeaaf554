// Package ledgertest holds behaviour tests shared by every ledger.Store
// implementation.
package ledgertest

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"moneypools/internal/core"
	"moneypools/internal/ledger"
)

// Factory returns a fresh, empty store.
type Factory func(t *testing.T) ledger.Store

var (
	usd = core.MustParseCurrency("USD")
	eur = core.MustParseCurrency("EUR")
)

func money(s string, c core.Currency) core.Money {
	return core.NewMoney(decimal.RequireFromString(s), c)
}

func day(d int) time.Time {
	return time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, d)
}

// Run executes the shared suite against stores produced by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("pools are owner scoped", func(t *testing.T) { testPoolsOwnerScoped(t, newStore(t)) })
	t.Run("add transaction applies to pool", func(t *testing.T) { testAddTransaction(t, newStore(t)) })
	t.Run("failed add leaves no trace", func(t *testing.T) { testAddTransactionFailure(t, newStore(t)) })
	t.Run("delete restores balance", func(t *testing.T) { testDeleteTransaction(t, newStore(t)) })
	t.Run("update transaction", func(t *testing.T) { testUpdateTransaction(t, newStore(t)) })
	t.Run("filter order and paging", func(t *testing.T) { testLoadTransactions(t, newStore(t)) })
	t.Run("set pool attributes", func(t *testing.T) { testSetPoolAttributes(t, newStore(t)) })
}

func addPool(t *testing.T, s ledger.Store, owner, name string, balance ...core.Money) core.Pool {
	t.Helper()
	p, err := s.AddPool(context.Background(), owner, core.Pool{DisplayName: name, Balance: balance, IsVisible: true})
	require.NoError(t, err)
	require.NotEmpty(t, p.ID)
	return p
}

func addTx(t *testing.T, s ledger.Store, owner string, tx core.Transaction) core.Transaction {
	t.Helper()
	stored, err := s.AddTransaction(context.Background(), owner, tx)
	require.NoError(t, err)
	require.NotEmpty(t, stored.ID)
	return stored
}

func testPoolsOwnerScoped(t *testing.T, s ledger.Store) {
	ctx := context.Background()
	a := addPool(t, s, "alice", "wallet", money("10", usd), money("5", eur))
	addPool(t, s, "bob", "bank", money("1", usd))

	pools, err := s.LoadPools(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, pools, 1)
	assert.Equal(t, "wallet", pools[0].DisplayName)
	assert.Equal(t, []string{"10.00 USD", "5.00 EUR"}, []string{pools[0].Balance[0].String(), pools[0].Balance[1].String()})

	_, found, err := s.LoadPool(ctx, "bob", a.ID)
	require.NoError(t, err)
	assert.False(t, found)

	empty, err := s.LoadPools(ctx, "carol")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func testAddTransaction(t *testing.T, s ledger.Store) {
	ctx := context.Background()
	p := addPool(t, s, "alice", "wallet", money("300", usd), money("0", eur))
	original := usd
	rate := 12.5

	stored := addTx(t, s, "alice", core.Transaction{
		PoolID:                    p.ID,
		Sum:                       money("-10.25", eur),
		Description:               "coffee",
		Timestamp:                 day(1),
		OriginalCurrency:          &original,
		AmountInReportingCurrency: &rate,
		Tags:                      []string{"food", "daily"},
	})

	got, found, err := s.LoadPool(ctx, "alice", p.ID)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "300.00 USD", got.Balance[0].String())
	assert.Equal(t, "-10.25 EUR", got.Balance[1].String())
	require.NotNil(t, got.LastUpdated)

	loaded, err := s.LoadTransactions(ctx, "alice", core.TransactionFilter{TransactionIDs: []string{stored.ID}}, core.LatestFirst, 0, 0)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	tx := loaded[0]
	assert.Equal(t, "-10.25 EUR", tx.Sum.String())
	assert.Equal(t, "coffee", tx.Description)
	assert.True(t, tx.Timestamp.Equal(day(1)))
	require.NotNil(t, tx.OriginalCurrency)
	assert.Equal(t, "USD", tx.OriginalCurrency.Code)
	require.NotNil(t, tx.AmountInReportingCurrency)
	assert.Equal(t, 12.5, *tx.AmountInReportingCurrency)
	assert.ElementsMatch(t, []string{"food", "daily"}, tx.Tags)
}

func testAddTransactionFailure(t *testing.T, s ledger.Store) {
	ctx := context.Background()
	p := addPool(t, s, "alice", "wallet", money("300", usd))

	_, err := s.AddTransaction(ctx, "alice", core.Transaction{PoolID: p.ID, Sum: money("1", eur), Timestamp: day(1)})
	assert.ErrorIs(t, err, core.ErrCurrencyNotInPool)

	_, err = s.AddTransaction(ctx, "alice", core.Transaction{PoolID: "missing", Sum: money("1", usd), Timestamp: day(1)})
	assert.ErrorIs(t, err, core.ErrPoolNotFound)

	_, err = s.AddTransaction(ctx, "bob", core.Transaction{PoolID: p.ID, Sum: money("1", usd), Timestamp: day(1)})
	assert.ErrorIs(t, err, core.ErrPoolNotFound)

	all, err := s.LoadTransactions(ctx, "alice", core.TransactionFilter{}, core.LatestFirst, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, all)

	got, _, err := s.LoadPool(ctx, "alice", p.ID)
	require.NoError(t, err)
	assert.Equal(t, "300.00 USD", got.Balance[0].String())
}

func testDeleteTransaction(t *testing.T, s ledger.Store) {
	ctx := context.Background()
	p := addPool(t, s, "alice", "wallet", money("300", usd))
	stored := addTx(t, s, "alice", core.Transaction{PoolID: p.ID, Sum: money("-0.015", usd), Timestamp: day(2)})

	ok, err := s.DeleteTransaction(ctx, "bob", stored.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.DeleteTransaction(ctx, "alice", stored.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	got, _, err := s.LoadPool(ctx, "alice", p.ID)
	require.NoError(t, err)
	assert.Equal(t, "300.00 USD", got.Balance[0].String())

	ok, err = s.DeleteTransaction(ctx, "alice", stored.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func testUpdateTransaction(t *testing.T, s ledger.Store) {
	ctx := context.Background()
	p := addPool(t, s, "alice", "wallet", money("300", usd))
	stored := addTx(t, s, "alice", core.Transaction{PoolID: p.ID, Sum: money("-5", usd), Description: "old", Timestamp: day(2), Tags: []string{"x"}})

	desc := "new"
	ts := day(3)
	tags := []string{"a", "b"}
	ok, err := s.UpdateTransaction(ctx, "alice", stored.ID, core.TransactionUpdate{Description: &desc, Timestamp: &ts, Tags: &tags})
	require.NoError(t, err)
	assert.True(t, ok)

	loaded, err := s.LoadTransactions(ctx, "alice", core.TransactionFilter{}, core.LatestFirst, 0, 0)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, "new", loaded[0].Description)
	assert.True(t, loaded[0].Timestamp.Equal(day(3)))
	assert.ElementsMatch(t, []string{"a", "b"}, loaded[0].Tags)
	assert.Equal(t, "-5.00 USD", loaded[0].Sum.String())

	ok, err = s.UpdateTransaction(ctx, "alice", "missing", core.TransactionUpdate{Description: &desc})
	require.NoError(t, err)
	assert.False(t, ok)
}

func testLoadTransactions(t *testing.T, s ledger.Store) {
	ctx := context.Background()
	p1 := addPool(t, s, "alice", "wallet", money("0", usd))
	p2 := addPool(t, s, "alice", "bank", money("0", usd))

	a := addTx(t, s, "alice", core.Transaction{PoolID: p1.ID, Sum: money("-5", usd), Timestamp: day(1), Tags: []string{"x"}})
	b := addTx(t, s, "alice", core.Transaction{PoolID: p1.ID, Sum: money("20", usd), Timestamp: day(2)})
	c := addTx(t, s, "alice", core.Transaction{PoolID: p2.ID, Sum: money("-50", usd), Timestamp: day(3), IsDiffuse: true})
	d := addTx(t, s, "alice", core.Transaction{PoolID: p2.ID, Sum: money("3", usd), Timestamp: day(4), Tags: []string{"y"}})

	ids := func(ts []core.Transaction) []string {
		out := make([]string, len(ts))
		for i, t := range ts {
			out[i] = t.ID
		}
		return out
	}
	load := func(f core.TransactionFilter, order core.TransactionOrder, offset, count int) []string {
		ts, err := s.LoadTransactions(ctx, "alice", f, order, offset, count)
		require.NoError(t, err)
		return ids(ts)
	}
	from, to, after := day(2), day(3), day(2)
	diffuse, notDiffuse := true, false

	assert.Equal(t, []string{d.ID, c.ID, b.ID, a.ID}, load(core.TransactionFilter{}, core.LatestFirst, 0, 0))
	assert.Equal(t, []string{a.ID, b.ID, c.ID, d.ID}, load(core.TransactionFilter{}, core.OldestFirst, 0, 0))
	assert.Equal(t, []string{b.ID, d.ID, a.ID, c.ID}, load(core.TransactionFilter{}, core.LargestFirst, 0, 0))
	assert.Equal(t, []string{c.ID, a.ID, d.ID, b.ID}, load(core.TransactionFilter{}, core.LargestNegativeFirst, 0, 0))
	assert.Equal(t, []string{c.ID, b.ID}, load(core.TransactionFilter{}, core.LatestFirst, 1, 2))
	assert.Empty(t, load(core.TransactionFilter{}, core.LatestFirst, 10, 2))
	assert.Equal(t, []string{c.ID, b.ID}, load(core.TransactionFilter{MinTimestamp: &from, MaxTimestamp: &to}, core.LatestFirst, 0, 0))
	assert.Equal(t, []string{d.ID, c.ID}, load(core.TransactionFilter{After: &after}, core.LatestFirst, 0, 0))
	assert.Equal(t, []string{b.ID, a.ID}, load(core.TransactionFilter{PoolIDs: []string{p1.ID}}, core.LatestFirst, 0, 0))
	assert.Equal(t, []string{c.ID, b.ID}, load(core.TransactionFilter{UntaggedOnly: true}, core.LatestFirst, 0, 0))
	assert.Equal(t, []string{c.ID}, load(core.TransactionFilter{IsDiffuse: &diffuse}, core.LatestFirst, 0, 0))
	assert.Equal(t, []string{d.ID, b.ID, a.ID}, load(core.TransactionFilter{IsDiffuse: &notDiffuse}, core.LatestFirst, 0, 0))
	assert.Equal(t, []string{d.ID, a.ID}, load(core.TransactionFilter{TransactionIDs: []string{a.ID, d.ID}}, core.LatestFirst, 0, 0))
	assert.Empty(t, load(core.TransactionFilter{PoolIDs: []string{}}, core.LatestFirst, 0, 0))
}

func testSetPoolAttributes(t *testing.T, s ledger.Store) {
	ctx := context.Background()
	p := addPool(t, s, "alice", "wallet", money("1", usd))

	name := "cash"
	hidden := false
	color := "#00ff00"
	ok, err := s.SetPoolAttributes(ctx, "alice", p.ID, core.PoolAttributesUpdate{DisplayName: &name, IsVisible: &hidden, DisplayColor: &color})
	require.NoError(t, err)
	assert.True(t, ok)

	got, _, err := s.LoadPool(ctx, "alice", p.ID)
	require.NoError(t, err)
	assert.Equal(t, "cash", got.DisplayName)
	assert.False(t, got.IsVisible)
	require.NotNil(t, got.DisplayColor)
	assert.Equal(t, "#00ff00", *got.DisplayColor)
	assert.Equal(t, "1.00 USD", got.Balance[0].String())

	ok, err = s.SetPoolAttributes(ctx, "bob", p.ID, core.PoolAttributesUpdate{DisplayName: &name})
	require.NoError(t, err)
	assert.False(t, ok)
}
