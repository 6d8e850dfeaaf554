package core

import (
	"fmt"
	"strings"
	"time"
)

// Pool is a named account holding one balance line per currency.
type Pool struct {
	ID           string     `json:"id"`
	DisplayName  string     `json:"display_name"`
	Balance      []Money    `json:"balance"`
	IsVisible    bool       `json:"is_visible"`
	DisplayColor *string    `json:"display_color,omitempty"`
	LastUpdated  *time.Time `json:"last_updated,omitempty"`
}

func (p Pool) Validate() error {
	if strings.TrimSpace(p.DisplayName) == "" {
		return ErrEmptyDisplayName
	}
	if len(p.Balance) == 0 {
		return ErrEmptyBalance
	}
	seen := make(map[string]struct{}, len(p.Balance))
	for _, line := range p.Balance {
		if line.Currency.IsZero() {
			return fmt.Errorf("balance line without currency: %w", ErrValidation)
		}
		if _, dup := seen[line.Currency.Code]; dup {
			return fmt.Errorf("%s: %w", line.Currency, ErrDuplicateCurrency)
		}
		seen[line.Currency.Code] = struct{}{}
	}
	return nil
}

// LineIndex returns the balance line holding c, or -1.
func (p Pool) LineIndex(c Currency) int {
	for i, line := range p.Balance {
		if line.Currency.Equal(c) {
			return i
		}
	}
	return -1
}

func (p Pool) HasCurrency(c Currency) bool {
	return p.LineIndex(c) >= 0
}

// Currencies lists the balance currencies in line order.
func (p Pool) Currencies() []Currency {
	out := make([]Currency, len(p.Balance))
	for i, line := range p.Balance {
		out[i] = line.Currency
	}
	return out
}

// Clone returns a deep copy.
func (p Pool) Clone() Pool {
	c := p
	c.Balance = append([]Money(nil), p.Balance...)
	if p.DisplayColor != nil {
		color := *p.DisplayColor
		c.DisplayColor = &color
	}
	if p.LastUpdated != nil {
		ts := *p.LastUpdated
		c.LastUpdated = &ts
	}
	return c
}

// ClonePools deep-copies a pool list.
func ClonePools(pools []Pool) []Pool {
	out := make([]Pool, len(pools))
	for i, p := range pools {
		out[i] = p.Clone()
	}
	return out
}

// ApplyTransaction adds t's sum to the matching balance line of pool and
// bumps LastUpdated to now. It returns the index of the changed line and its
// new value. The transaction currency must already be one of the pool's
// currencies; see exchange.CoerceToPool.
func ApplyTransaction(pool *Pool, t Transaction, now time.Time) (int, Money, error) {
	idx := pool.LineIndex(t.Sum.Currency)
	if idx < 0 {
		return -1, Money{}, fmt.Errorf("pool %s has no %s line: %w", pool.ID, t.Sum.Currency, ErrCurrencyNotInPool)
	}
	updated, err := pool.Balance[idx].Add(t.Sum)
	if err != nil {
		return -1, Money{}, err
	}
	pool.Balance[idx] = updated
	ts := now
	pool.LastUpdated = &ts
	return idx, updated, nil
}

// PoolAttributesUpdate is a partial update of a pool's presentation fields.
// Nil fields are left unchanged.
type PoolAttributesUpdate struct {
	DisplayName  *string `json:"display_name,omitempty"`
	IsVisible    *bool   `json:"is_visible,omitempty"`
	DisplayColor *string `json:"display_color,omitempty"`
}

func (u PoolAttributesUpdate) IsEmpty() bool {
	return u.DisplayName == nil && u.IsVisible == nil && u.DisplayColor == nil
}

func (u PoolAttributesUpdate) Validate() error {
	if u.DisplayName != nil && strings.TrimSpace(*u.DisplayName) == "" {
		return ErrEmptyDisplayName
	}
	return nil
}

// Apply writes the non-nil fields into p.
func (u PoolAttributesUpdate) Apply(p *Pool) {
	if u.DisplayName != nil {
		p.DisplayName = *u.DisplayName
	}
	if u.IsVisible != nil {
		p.IsVisible = *u.IsVisible
	}
	if u.DisplayColor != nil {
		color := *u.DisplayColor
		p.DisplayColor = &color
	}
}
