// Package storage is the SQLite implementation of the ledger store.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"moneypools/internal/core"
	"moneypools/internal/ledger"

	_ "modernc.org/sqlite"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

var _ ledger.Store = (*SQLiteStore)(nil)

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	if _, err := MigrateUp(dbPath); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	dsn := dbPath + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_txlock=immediate"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &SQLiteStore{db: db, now: time.Now}, nil
}

// WithClock replaces the time source used for pool LastUpdated stamps.
func (s *SQLiteStore) WithClock(now func() time.Time) *SQLiteStore {
	s.now = now
	return s
}

func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// ExecTx runs fn inside one database transaction, committing only when fn
// returns nil.
func (s *SQLiteStore) ExecTx(ctx context.Context, fn func(q *queries) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err := fn(&queries{db: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback failed: %v)", err, rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (s *SQLiteStore) q() *queries {
	return &queries{db: s.db}
}

func (s *SQLiteStore) LoadPools(ctx context.Context, owner string) ([]core.Pool, error) {
	return s.q().loadPools(ctx, owner, "")
}

func (s *SQLiteStore) LoadPool(ctx context.Context, owner, id string) (core.Pool, bool, error) {
	pools, err := s.q().loadPools(ctx, owner, id)
	if err != nil {
		return core.Pool{}, false, err
	}
	if len(pools) == 0 {
		return core.Pool{}, false, nil
	}
	return pools[0], true, nil
}

func (s *SQLiteStore) AddPool(ctx context.Context, owner string, p core.Pool) (core.Pool, error) {
	if err := p.Validate(); err != nil {
		return core.Pool{}, err
	}
	stored := p.Clone()
	stored.ID = uuid.NewString()

	err := s.ExecTx(ctx, func(q *queries) error {
		if err := q.insertPool(ctx, owner, stored, s.now()); err != nil {
			return err
		}
		for i, line := range stored.Balance {
			if err := q.insertBalanceLine(ctx, stored.ID, i, line); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return core.Pool{}, fmt.Errorf("add pool: %w", err)
	}
	return stored, nil
}

func (s *SQLiteStore) SetPoolAttributes(ctx context.Context, owner, id string, u core.PoolAttributesUpdate) (bool, error) {
	var found bool
	err := s.ExecTx(ctx, func(q *queries) error {
		pools, err := q.loadPools(ctx, owner, id)
		if err != nil || len(pools) == 0 {
			return err
		}
		found = true
		pool := pools[0]
		u.Apply(&pool)
		return q.updatePoolAttributes(ctx, pool)
	})
	if err != nil {
		return false, fmt.Errorf("set pool attributes: %w", err)
	}
	return found, nil
}

// AddTransaction inserts t and rewrites the one balance line it touches in
// a single SQL transaction.
func (s *SQLiteStore) AddTransaction(ctx context.Context, owner string, t core.Transaction) (core.Transaction, error) {
	stored := t.Clone()
	stored.ID = uuid.NewString()
	stored.Tags = core.NormalizeTags(stored.Tags)

	err := s.ExecTx(ctx, func(q *queries) error {
		pools, err := q.loadPools(ctx, owner, t.PoolID)
		if err != nil {
			return err
		}
		if len(pools) == 0 {
			return fmt.Errorf("%s: %w", t.PoolID, core.ErrPoolNotFound)
		}
		pool := pools[0]
		now := s.now()
		idx, line, err := core.ApplyTransaction(&pool, stored, now)
		if err != nil {
			return err
		}
		if err := q.updateBalanceLine(ctx, pool.ID, idx, line, now); err != nil {
			return err
		}
		return q.insertTransaction(ctx, owner, stored)
	})
	if err != nil {
		return core.Transaction{}, fmt.Errorf("add transaction: %w", err)
	}
	return stored, nil
}

func (s *SQLiteStore) LoadTransactions(ctx context.Context, owner string, f core.TransactionFilter, order core.TransactionOrder, offset, count int) ([]core.Transaction, error) {
	ts, err := s.q().loadTransactions(ctx, owner, f, order, offset, count)
	if err != nil {
		return nil, fmt.Errorf("load transactions: %w", err)
	}
	return ts, nil
}

// DeleteTransaction removes the row and applies the inverse amount to the
// owning pool in a single SQL transaction.
func (s *SQLiteStore) DeleteTransaction(ctx context.Context, owner, id string) (bool, error) {
	var found bool
	err := s.ExecTx(ctx, func(q *queries) error {
		t, ok, err := q.getTransaction(ctx, owner, id)
		if err != nil || !ok {
			return err
		}
		found = true
		pools, err := q.loadPools(ctx, owner, t.PoolID)
		if err != nil {
			return err
		}
		if len(pools) == 0 {
			return fmt.Errorf("transaction %s references missing pool %s: %w", id, t.PoolID, core.ErrPoolNotFound)
		}
		pool := pools[0]
		now := s.now()
		idx, line, err := core.ApplyTransaction(&pool, t.Inverted(), now)
		if err != nil {
			return err
		}
		if err := q.updateBalanceLine(ctx, pool.ID, idx, line, now); err != nil {
			return err
		}
		return q.deleteTransaction(ctx, owner, id)
	})
	if err != nil {
		return false, fmt.Errorf("delete transaction: %w", err)
	}
	return found, nil
}

func (s *SQLiteStore) UpdateTransaction(ctx context.Context, owner, id string, u core.TransactionUpdate) (bool, error) {
	var found bool
	err := s.ExecTx(ctx, func(q *queries) error {
		t, ok, err := q.getTransaction(ctx, owner, id)
		if err != nil || !ok {
			return err
		}
		found = true
		u.Apply(&t)
		if err := q.updateTransactionFields(ctx, t); err != nil {
			return err
		}
		if u.Tags != nil {
			return q.replaceTags(ctx, t.ID, t.Tags)
		}
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("update transaction: %w", err)
	}
	return found, nil
}

func nullableString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullableTime(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixNano(), Valid: true}
}
