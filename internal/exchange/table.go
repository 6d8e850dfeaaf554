package exchange

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"moneypools/internal/core"
)

// Table is a fixed snapshot of rates into one target currency.
type Table struct {
	target core.Currency
	rates  map[string]float64
}

// Prefetch resolves the rate from every currency in from into target,
// querying src concurrently with at most limit requests in flight.
func Prefetch(ctx context.Context, src Source, target core.Currency, from []core.Currency, limit int) (*Table, error) {
	t := &Table{target: target, rates: map[string]float64{target.Code: 1}}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	seen := map[string]struct{}{target.Code: {}}
	for _, c := range from {
		if _, dup := seen[c.Code]; dup {
			continue
		}
		seen[c.Code] = struct{}{}
		g.Go(func() error {
			rate, err := Rate(gctx, src, c, target)
			if err != nil {
				return err
			}
			mu.Lock()
			t.rates[c.Code] = rate
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return t, nil
}

// GetRate serves only pairs into the table's target currency.
func (t *Table) GetRate(_ context.Context, base, target core.Currency) (float64, error) {
	if !target.Equal(t.target) {
		return 0, fmt.Errorf("table holds rates into %s, not %s: %w", t.target, target, core.ErrRateUnavailable)
	}
	rate, ok := t.rates[base.Code]
	if !ok {
		return 0, fmt.Errorf("no prefetched rate for %s: %w", base, core.ErrRateUnavailable)
	}
	return rate, nil
}

// ToTarget converts amount in c into the table's target currency.
func (t *Table) ToTarget(amount float64, c core.Currency) (float64, error) {
	rate, err := t.GetRate(context.Background(), c, t.target)
	if err != nil {
		return 0, err
	}
	return amount * rate, nil
}
