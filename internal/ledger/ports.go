// Package ledger defines the storage ports the ledger services depend on.
package ledger

import (
	"context"

	"moneypools/internal/core"
)

// Ports for ledger storage adapters. Every call is scoped to one owner;
// adapters never return data belonging to another owner.
type (
	PoolStore interface {
		LoadPools(ctx context.Context, owner string) ([]core.Pool, error)
		// LoadPool reports false when the pool does not exist.
		LoadPool(ctx context.Context, owner, id string) (core.Pool, bool, error)
		// AddPool assigns the pool an id and stores it.
		AddPool(ctx context.Context, owner string, p core.Pool) (core.Pool, error)
		SetPoolAttributes(ctx context.Context, owner, id string, u core.PoolAttributesUpdate) (bool, error)
	}

	TransactionStore interface {
		// AddTransaction assigns an id, stores t and applies it to its pool
		// in one atomic write. t.Sum must already be in one of the pool's
		// currencies.
		AddTransaction(ctx context.Context, owner string, t core.Transaction) (core.Transaction, error)
		// LoadTransactions returns matching transactions in order. A count
		// of zero or less means no limit.
		LoadTransactions(ctx context.Context, owner string, f core.TransactionFilter, order core.TransactionOrder, offset, count int) ([]core.Transaction, error)
		// DeleteTransaction removes the transaction and applies its inverse
		// to the owning pool in one atomic write. It reports false when the
		// transaction does not exist.
		DeleteTransaction(ctx context.Context, owner, id string) (bool, error)
		UpdateTransaction(ctx context.Context, owner, id string, u core.TransactionUpdate) (bool, error)
	}

	Store interface {
		PoolStore
		TransactionStore
		Close() error
	}
)

// Page applies offset and count to an already ordered slice.
func Page(ts []core.Transaction, offset, count int) []core.Transaction {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(ts) {
		return []core.Transaction{}
	}
	ts = ts[offset:]
	if count > 0 && count < len(ts) {
		ts = ts[:count]
	}
	return ts
}
