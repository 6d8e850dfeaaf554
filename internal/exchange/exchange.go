// Package exchange converts money between currencies using a rate source.
package exchange

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"moneypools/internal/core"
)

// Source produces the rate that converts one unit of base into target.
// Implementations may be remote and slow; they own any retry policy.
type Source interface {
	GetRate(ctx context.Context, base, target core.Currency) (float64, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context, base, target core.Currency) (float64, error)

func (f SourceFunc) GetRate(ctx context.Context, base, target core.Currency) (float64, error) {
	return f(ctx, base, target)
}

// Rate fetches base->target from src and checks it is usable. Failures are
// reported as core.ErrRateUnavailable.
func Rate(ctx context.Context, src Source, base, target core.Currency) (float64, error) {
	if base.Equal(target) {
		return 1, nil
	}
	rate, err := src.GetRate(ctx, base, target)
	if err != nil {
		if errors.Is(err, core.ErrRateUnavailable) {
			return 0, fmt.Errorf("rate %s/%s: %w", base, target, err)
		}
		return 0, fmt.Errorf("rate %s/%s: %w: %w", base, target, core.ErrRateUnavailable, err)
	}
	if rate <= 0 || math.IsNaN(rate) || math.IsInf(rate, 0) {
		return 0, fmt.Errorf("rate %s/%s is %v: %w", base, target, rate, core.ErrRateUnavailable)
	}
	return rate, nil
}

// Convert returns sum expressed in target, rounded to target precision. A
// sum already in target is returned unchanged without consulting src.
func Convert(ctx context.Context, sum core.Money, target core.Currency, src Source) (core.Money, error) {
	if sum.Currency.Equal(target) {
		return sum, nil
	}
	rate, err := Rate(ctx, src, sum.Currency, target)
	if err != nil {
		return core.Money{}, err
	}
	return core.NewMoney(sum.Amount.Mul(decimal.NewFromFloat(rate)), target), nil
}

// ConvertFloat is the unrounded float path used for report aggregates.
func ConvertFloat(ctx context.Context, amount float64, from, to core.Currency, src Source) (float64, error) {
	if from.Equal(to) {
		return amount, nil
	}
	rate, err := Rate(ctx, src, from, to)
	if err != nil {
		return 0, err
	}
	return amount * rate, nil
}

// CoerceToPool returns t with its sum expressed in one of pool's currencies.
// When t's currency is not held by the pool, the sum is converted to the
// pool's first balance currency and OriginalCurrency records the input
// currency. t itself is never modified.
func CoerceToPool(ctx context.Context, t core.Transaction, pool core.Pool, src Source) (core.Transaction, error) {
	out := t.Clone()
	if pool.HasCurrency(t.Sum.Currency) {
		return out, nil
	}
	if len(pool.Balance) == 0 {
		return core.Transaction{}, fmt.Errorf("pool %s: %w", pool.ID, core.ErrEmptyBalance)
	}

	converted, err := Convert(ctx, t.Sum, pool.Balance[0].Currency, src)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("coerce to pool %s: %w", pool.ID, err)
	}
	original := t.Sum.Currency
	out.OriginalCurrency = &original
	out.Sum = converted
	return out, nil
}
