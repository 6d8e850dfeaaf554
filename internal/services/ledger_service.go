package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"moneypools/internal/amqp"
	"moneypools/internal/core"
	"moneypools/internal/exchange"
	"moneypools/internal/ledger"
	"moneypools/internal/log"
)

// EventPublisher receives ledger events. Implemented by *amqp.Client.
type EventPublisher interface {
	PublishLedgerEvent(ctx context.Context, event amqp.LedgerEvent) error
}

// LedgerService applies ledger operations on top of a store and a rate source.
type LedgerService struct {
	store     ledger.Store
	rates     exchange.Source
	reporting core.Currency
	events    EventPublisher
	logger    *log.Logger
	now       func() time.Time
}

type Option func(*LedgerService)

func WithEvents(p EventPublisher) Option {
	return func(s *LedgerService) { s.events = p }
}

func WithLogger(l *log.Logger) Option {
	return func(s *LedgerService) { s.logger = l.WithComponent(log.ComponentLedger) }
}

func WithClock(now func() time.Time) Option {
	return func(s *LedgerService) { s.now = now }
}

func NewLedgerService(store ledger.Store, rates exchange.Source, reporting core.Currency, opts ...Option) *LedgerService {
	s := &LedgerService{
		store:     store,
		rates:     rates,
		reporting: reporting,
		logger:    log.Discard(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *LedgerService) ReportingCurrency() core.Currency {
	return s.reporting
}

func (s *LedgerService) CreatePool(ctx context.Context, owner string, p core.Pool) (core.Pool, error) {
	p.DisplayName = strings.TrimSpace(p.DisplayName)
	if err := p.Validate(); err != nil {
		return core.Pool{}, err
	}
	p.LastUpdated = nil
	created, err := s.store.AddPool(ctx, owner, p)
	if err != nil {
		return core.Pool{}, fmt.Errorf("create pool: %w", err)
	}
	s.logger.InfoContext(ctx, "Pool created",
		log.FieldOwner, owner,
		log.FieldPoolID, created.ID,
		log.FieldCount, len(created.Balance))
	return created, nil
}

func (s *LedgerService) ListPools(ctx context.Context, owner string) ([]core.Pool, error) {
	pools, err := s.store.LoadPools(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("list pools: %w", err)
	}
	return pools, nil
}

func (s *LedgerService) GetPool(ctx context.Context, owner, id string) (core.Pool, error) {
	pool, found, err := s.store.LoadPool(ctx, owner, id)
	if err != nil {
		return core.Pool{}, fmt.Errorf("load pool: %w", err)
	}
	if !found {
		return core.Pool{}, fmt.Errorf("%s: %w", id, core.ErrPoolNotFound)
	}
	return pool, nil
}

func (s *LedgerService) SetPoolAttributes(ctx context.Context, owner, id string, u core.PoolAttributesUpdate) (core.Pool, error) {
	if u.IsEmpty() {
		return core.Pool{}, fmt.Errorf("nothing to update: %w", core.ErrValidation)
	}
	if err := u.Validate(); err != nil {
		return core.Pool{}, err
	}
	found, err := s.store.SetPoolAttributes(ctx, owner, id, u)
	if err != nil {
		return core.Pool{}, err
	}
	if !found {
		return core.Pool{}, fmt.Errorf("%s: %w", id, core.ErrPoolNotFound)
	}
	return s.GetPool(ctx, owner, id)
}

// AddTransaction coerces t into its pool's currencies, stamps the reporting
// currency amount and stores it. A missing timestamp defaults to now.
func (s *LedgerService) AddTransaction(ctx context.Context, owner string, t core.Transaction) (core.Transaction, error) {
	if err := t.Validate(); err != nil {
		return core.Transaction{}, err
	}
	if t.Timestamp.IsZero() {
		t.Timestamp = s.now()
	}
	t.Timestamp = t.Timestamp.UTC()
	t.Tags = core.NormalizeTags(t.Tags)

	pool, err := s.GetPool(ctx, owner, t.PoolID)
	if err != nil {
		return core.Transaction{}, err
	}

	coerced, err := exchange.CoerceToPool(ctx, t, pool, s.rates)
	if err != nil {
		return core.Transaction{}, err
	}
	coerced.AmountInReportingCurrency, err = s.reportingAmount(ctx, coerced.Sum)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("reporting amount: %w", err)
	}

	stored, err := s.store.AddTransaction(ctx, owner, coerced)
	if err != nil {
		return core.Transaction{}, err
	}

	s.logger.InfoContext(ctx, "Transaction added", log.NewFields().
		WithOwner(owner).
		WithTransaction(stored.ID, stored.PoolID, stored.Sum.Text(), stored.Sum.Currency.Code).
		ToSlice()...)
	s.publish(ctx, transactionEvent(amqp.EventTransactionAdded, owner, stored))
	return stored, nil
}

// reportingAmount converts sum into the reporting currency, rounded to its
// precision.
func (s *LedgerService) reportingAmount(ctx context.Context, sum core.Money) (*float64, error) {
	v, err := exchange.ConvertFloat(ctx, sum.Float64(), sum.Currency, s.reporting, s.rates)
	if err != nil {
		return nil, err
	}
	rounded := core.NewMoneyFromFloat(v, s.reporting).Float64()
	return &rounded, nil
}

func (s *LedgerService) DeleteTransaction(ctx context.Context, owner, id string) (bool, error) {
	t, found, err := s.findTransaction(ctx, owner, id)
	if err != nil || !found {
		return false, err
	}
	deleted, err := s.store.DeleteTransaction(ctx, owner, id)
	if err != nil {
		return false, err
	}
	if deleted {
		s.logger.InfoContext(ctx, "Transaction deleted",
			log.FieldOwner, owner,
			log.FieldTransactionID, id,
			log.FieldPoolID, t.PoolID)
		s.publish(ctx, transactionEvent(amqp.EventTransactionDeleted, owner, t))
	}
	return deleted, nil
}

func (s *LedgerService) UpdateTransaction(ctx context.Context, owner, id string, u core.TransactionUpdate) (core.Transaction, error) {
	if u.IsEmpty() {
		return core.Transaction{}, fmt.Errorf("nothing to update: %w", core.ErrValidation)
	}
	if err := u.Validate(); err != nil {
		return core.Transaction{}, err
	}
	found, err := s.store.UpdateTransaction(ctx, owner, id, u)
	if err != nil {
		return core.Transaction{}, err
	}
	if !found {
		return core.Transaction{}, fmt.Errorf("%s: %w", id, core.ErrTransactionNotFound)
	}
	t, _, err := s.findTransaction(ctx, owner, id)
	return t, err
}

func (s *LedgerService) ListTransactions(ctx context.Context, owner string, f core.TransactionFilter, order core.TransactionOrder, offset, count int) ([]core.Transaction, error) {
	if offset < 0 || count < 0 {
		return nil, fmt.Errorf("negative offset or count: %w", core.ErrValidation)
	}
	ts, err := s.store.LoadTransactions(ctx, owner, f, order, offset, count)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return ts, nil
}

func (s *LedgerService) findTransaction(ctx context.Context, owner, id string) (core.Transaction, bool, error) {
	ts, err := s.store.LoadTransactions(ctx, owner, core.TransactionFilter{TransactionIDs: []string{id}}, core.LatestFirst, 0, 1)
	if err != nil {
		return core.Transaction{}, false, fmt.Errorf("load transaction: %w", err)
	}
	if len(ts) == 0 {
		return core.Transaction{}, false, nil
	}
	return ts[0], true, nil
}

func (s *LedgerService) publish(ctx context.Context, event *amqp.LedgerEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishLedgerEvent(ctx, *event); err != nil {
		s.logger.WarnContext(ctx, "Failed to publish ledger event",
			"type", event.Type,
			log.FieldOwner, event.Owner,
			log.FieldError, err)
	}
}

func transactionEvent(typ amqp.EventType, owner string, t core.Transaction) *amqp.LedgerEvent {
	e := amqp.NewLedgerEvent(typ, owner)
	e.TransactionID = t.ID
	e.PoolID = t.PoolID
	e.Amount = t.Sum.Text()
	e.Currency = t.Sum.Currency.Code
	return e
}
