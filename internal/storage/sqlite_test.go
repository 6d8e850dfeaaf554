package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"moneypools/internal/core"
	"moneypools/internal/ledger"
	"moneypools/internal/ledger/ledgertest"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteStore(t *testing.T) {
	ledgertest.Run(t, func(t *testing.T) ledger.Store { return newTestStore(t) })
}

func TestSQLiteStore_ReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "ledger.db")
	usd := core.MustParseCurrency("USD")

	s, err := NewSQLiteStore(path)
	require.NoError(t, err)
	p, err := s.AddPool(ctx, "alice", core.Pool{DisplayName: "wallet", Balance: []core.Money{core.NewMoney(decimal.NewFromInt(10), usd)}})
	require.NoError(t, err)
	_, err = s.AddTransaction(ctx, "alice", core.Transaction{PoolID: p.ID, Sum: core.NewMoney(decimal.RequireFromString("-2.5"), usd), Timestamp: time.Now()})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	reopened, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer reopened.Close()

	got, found, err := reopened.LoadPool(ctx, "alice", p.ID)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "7.50 USD", got.Balance[0].String())
}

func TestSQLiteStore_ExecTxRollsBack(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	usd := core.MustParseCurrency("USD")
	p, err := s.AddPool(ctx, "alice", core.Pool{DisplayName: "wallet", Balance: []core.Money{core.NewMoney(decimal.NewFromInt(10), usd)}})
	require.NoError(t, err)

	err = s.ExecTx(ctx, func(q *queries) error {
		line := core.NewMoney(decimal.NewFromInt(99), usd)
		if err := q.updateBalanceLine(ctx, p.ID, 0, line, time.Now()); err != nil {
			return err
		}
		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)

	got, _, err := s.LoadPool(ctx, "alice", p.ID)
	require.NoError(t, err)
	assert.Equal(t, "10.00 USD", got.Balance[0].String())
}

func TestFilterClause(t *testing.T) {
	ts := time.Unix(100, 0)
	diffuse := true

	where, args, empty := filterClause("alice", core.TransactionFilter{
		MinTimestamp: &ts,
		PoolIDs:      []string{"a", "b"},
		UntaggedOnly: true,
		IsDiffuse:    &diffuse,
	})
	assert.False(t, empty)
	assert.Contains(t, where, "t.pool_id IN (?, ?)")
	assert.Contains(t, where, "NOT EXISTS")
	assert.Equal(t, []any{"alice", ts.UnixNano(), "a", "b", 1}, args)

	_, _, empty = filterClause("alice", core.TransactionFilter{TransactionIDs: []string{}})
	assert.True(t, empty)
}

func TestMigrations_UpDownUp(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schema.db")

	v, err := MigrateUp(path)
	require.NoError(t, err)
	assert.Equal(t, uint(1), v)

	v, err = MigrateUp(path)
	require.NoError(t, err, "re-running applied migrations is a no-op")
	assert.Equal(t, uint(1), v)

	s, err := NewSQLiteStore(path)
	require.NoError(t, err)
	_, err = s.AddPool(context.Background(), "alice", core.Pool{
		DisplayName: "wallet",
		Balance:     []core.Money{core.NewMoney(decimal.Zero, core.MustParseCurrency("USD"))},
	})
	require.NoError(t, err)
	pools, err := s.LoadPools(context.Background(), "alice")
	require.NoError(t, err)
	require.Len(t, pools, 1)
	require.NoError(t, s.Close())

	require.NoError(t, MigrateDown(path))
	_, err = MigrateUp(path)
	require.NoError(t, err)

	s, err = NewSQLiteStore(path)
	require.NoError(t, err)
	defer s.Close()
	pools, err = s.LoadPools(context.Background(), "alice")
	require.NoError(t, err)
	assert.Empty(t, pools)
}
