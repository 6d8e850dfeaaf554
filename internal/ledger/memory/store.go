// Package memory is an in-process ledger store. Each owner's data is guarded
// by its own lock.
package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"moneypools/internal/core"
	"moneypools/internal/ledger"
)

type ownerData struct {
	mu           sync.Mutex
	pools        []core.Pool
	transactions []core.Transaction
}

type Store struct {
	mu     sync.Mutex
	owners map[string]*ownerData
	now    func() time.Time
}

var _ ledger.Store = (*Store)(nil)

func New() *Store {
	return &Store{owners: make(map[string]*ownerData), now: time.Now}
}

// WithClock replaces the time source used for pool LastUpdated stamps.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

// SeedFile is the layout of the optional seed document read by NewFromFile.
type SeedFile struct {
	Owners map[string][]core.Pool `json:"owners"`
}

// NewFromFile seeds a store from base/seed_pools.json when it exists.
func NewFromFile(base string) (*Store, error) {
	s := New()
	data, err := os.ReadFile(filepath.Join(base, "seed_pools.json"))
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	var seed SeedFile
	if err := json.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("decode seed file: %w", err)
	}
	for owner, pools := range seed.Owners {
		for _, p := range pools {
			if _, err := s.AddPool(context.Background(), owner, p); err != nil {
				return nil, fmt.Errorf("seed pool %q: %w", p.DisplayName, err)
			}
		}
	}
	return s, nil
}

// owner returns owner's data, creating it on first write.
func (s *Store) owner(owner string) *ownerData {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.owners[owner]
	if !ok {
		d = &ownerData{}
		s.owners[owner] = d
	}
	return d
}

// lookup returns owner's data without registering unknown owners.
func (s *Store) lookup(owner string) (*ownerData, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.owners[owner]
	return d, ok
}

func (d *ownerData) poolIndex(id string) int {
	for i := range d.pools {
		if d.pools[i].ID == id {
			return i
		}
	}
	return -1
}

func (d *ownerData) transactionIndex(id string) int {
	for i := range d.transactions {
		if d.transactions[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) LoadPools(_ context.Context, owner string) ([]core.Pool, error) {
	d, ok := s.lookup(owner)
	if !ok {
		return []core.Pool{}, nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return core.ClonePools(d.pools), nil
}

func (s *Store) LoadPool(_ context.Context, owner, id string) (core.Pool, bool, error) {
	d, ok := s.lookup(owner)
	if !ok {
		return core.Pool{}, false, nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if i := d.poolIndex(id); i >= 0 {
		return d.pools[i].Clone(), true, nil
	}
	return core.Pool{}, false, nil
}

func (s *Store) AddPool(_ context.Context, owner string, p core.Pool) (core.Pool, error) {
	if err := p.Validate(); err != nil {
		return core.Pool{}, err
	}
	stored := p.Clone()
	stored.ID = uuid.NewString()

	d := s.owner(owner)
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pools = append(d.pools, stored)
	return stored.Clone(), nil
}

func (s *Store) SetPoolAttributes(_ context.Context, owner, id string, u core.PoolAttributesUpdate) (bool, error) {
	d, ok := s.lookup(owner)
	if !ok {
		return false, nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	i := d.poolIndex(id)
	if i < 0 {
		return false, nil
	}
	u.Apply(&d.pools[i])
	return true, nil
}

// AddTransaction applies t to a copy of its pool and commits both only when
// every step succeeded.
func (s *Store) AddTransaction(_ context.Context, owner string, t core.Transaction) (core.Transaction, error) {
	d, ok := s.lookup(owner)
	if !ok {
		return core.Transaction{}, fmt.Errorf("%s: %w", t.PoolID, core.ErrPoolNotFound)
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	i := d.poolIndex(t.PoolID)
	if i < 0 {
		return core.Transaction{}, fmt.Errorf("%s: %w", t.PoolID, core.ErrPoolNotFound)
	}
	pool := d.pools[i].Clone()
	if _, _, err := core.ApplyTransaction(&pool, t, s.now()); err != nil {
		return core.Transaction{}, err
	}

	stored := t.Clone()
	stored.ID = uuid.NewString()
	stored.Tags = core.NormalizeTags(stored.Tags)
	d.pools[i] = pool
	d.transactions = append(d.transactions, stored)
	return stored.Clone(), nil
}

func (s *Store) LoadTransactions(_ context.Context, owner string, f core.TransactionFilter, order core.TransactionOrder, offset, count int) ([]core.Transaction, error) {
	d, ok := s.lookup(owner)
	if !ok {
		return []core.Transaction{}, nil
	}
	d.mu.Lock()
	matched := make([]core.Transaction, 0)
	for _, t := range d.transactions {
		if f.Matches(t) {
			matched = append(matched, t.Clone())
		}
	}
	d.mu.Unlock()

	core.SortTransactions(matched, order)
	return ledger.Page(matched, offset, count), nil
}

func (s *Store) DeleteTransaction(_ context.Context, owner, id string) (bool, error) {
	d, ok := s.lookup(owner)
	if !ok {
		return false, nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	ti := d.transactionIndex(id)
	if ti < 0 {
		return false, nil
	}
	t := d.transactions[ti]
	pi := d.poolIndex(t.PoolID)
	if pi < 0 {
		return false, fmt.Errorf("transaction %s references missing pool %s: %w", id, t.PoolID, core.ErrPoolNotFound)
	}
	pool := d.pools[pi].Clone()
	if _, _, err := core.ApplyTransaction(&pool, t.Inverted(), s.now()); err != nil {
		return false, err
	}

	d.pools[pi] = pool
	d.transactions = append(d.transactions[:ti], d.transactions[ti+1:]...)
	return true, nil
}

func (s *Store) UpdateTransaction(_ context.Context, owner, id string, u core.TransactionUpdate) (bool, error) {
	d, ok := s.lookup(owner)
	if !ok {
		return false, nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	i := d.transactionIndex(id)
	if i < 0 {
		return false, nil
	}
	u.Apply(&d.transactions[i])
	return true, nil
}

func (s *Store) Close() error {
	return nil
}
