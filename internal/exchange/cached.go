package exchange

import (
	"context"
	"time"

	"moneypools/internal/cache"
	"moneypools/internal/core"
)

type pair struct {
	base, target string
}

// Cached memoizes rates of an underlying source for a TTL.
type Cached struct {
	source Source
	rates  *cache.LRUCache[pair, float64]
}

func NewCached(source Source, size int, ttl time.Duration) *Cached {
	return &Cached{
		source: source,
		rates:  cache.NewLRUCache[pair, float64](size, ttl),
	}
}

func (c *Cached) GetRate(ctx context.Context, base, target core.Currency) (float64, error) {
	key := pair{base.Code, target.Code}
	if rate, ok := c.rates.Get(key); ok {
		return rate, nil
	}
	rate, err := Rate(ctx, c.source, base, target)
	if err != nil {
		return 0, err
	}
	c.rates.Set(key, rate)
	return rate, nil
}

// Rates exposes the underlying cache so it can be registered with a
// cache.Manager.
func (c *Cached) Rates() cache.Cleaner {
	return c.rates
}
