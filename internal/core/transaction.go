package core

import (
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"
)

const maxDescriptionLength = 500

// Transaction is a signed amount applied to one pool. Sum is always in one of
// the pool's currencies; OriginalCurrency records the entered currency when a
// conversion happened before storage.
type Transaction struct {
	ID                        string    `json:"id"`
	Sum                       Money     `json:"sum"`
	PoolID                    string    `json:"pool_id"`
	Description               string    `json:"description"`
	Timestamp                 time.Time `json:"timestamp"`
	IsDiffuse                 bool      `json:"is_diffuse"`
	OriginalCurrency          *Currency `json:"original_currency,omitempty"`
	AmountInReportingCurrency *float64  `json:"amount_in_reporting_currency,omitempty"`
	Tags                      []string  `json:"tags"`
}

func (t Transaction) Validate() error {
	if t.Sum.Currency.IsZero() {
		return fmt.Errorf("missing currency: %w", ErrValidation)
	}
	if strings.TrimSpace(t.PoolID) == "" {
		return fmt.Errorf("missing pool id: %w", ErrValidation)
	}
	if len(t.Description) > maxDescriptionLength {
		return ErrDescriptionTooLong
	}
	return nil
}

// Inverted returns a copy of t with the amount negated.
func (t Transaction) Inverted() Transaction {
	inv := t.Clone()
	inv.Sum = t.Sum.Neg()
	return inv
}

// Clone returns a deep copy.
func (t Transaction) Clone() Transaction {
	c := t
	c.Tags = slices.Clone(t.Tags)
	if t.OriginalCurrency != nil {
		oc := *t.OriginalCurrency
		c.OriginalCurrency = &oc
	}
	if t.AmountInReportingCurrency != nil {
		v := *t.AmountInReportingCurrency
		c.AmountInReportingCurrency = &v
	}
	return c
}

// NormalizeTags trims tags, drops empty ones and duplicates, keeping order.
func NormalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out
}

// TransactionUpdate is the narrow mutable surface of a stored transaction.
type TransactionUpdate struct {
	Description *string    `json:"description,omitempty"`
	Timestamp   *time.Time `json:"timestamp,omitempty"`
	Tags        *[]string  `json:"tags,omitempty"`
	// Set by maintenance jobs only; never decoded from requests.
	AmountInReportingCurrency *float64 `json:"-"`
}

func (u TransactionUpdate) IsEmpty() bool {
	return u.Description == nil && u.Timestamp == nil && u.Tags == nil && u.AmountInReportingCurrency == nil
}

func (u TransactionUpdate) Validate() error {
	if u.Description != nil && len(*u.Description) > maxDescriptionLength {
		return ErrDescriptionTooLong
	}
	if u.Timestamp != nil && u.Timestamp.IsZero() {
		return fmt.Errorf("zero timestamp: %w", ErrValidation)
	}
	return nil
}

// Apply writes the non-nil fields into t.
func (u TransactionUpdate) Apply(t *Transaction) {
	if u.Description != nil {
		t.Description = *u.Description
	}
	if u.Timestamp != nil {
		t.Timestamp = u.Timestamp.UTC()
	}
	if u.Tags != nil {
		t.Tags = NormalizeTags(*u.Tags)
	}
	if u.AmountInReportingCurrency != nil {
		v := *u.AmountInReportingCurrency
		t.AmountInReportingCurrency = &v
	}
}

// TransactionFilter selects stored transactions. Zero fields do not filter.
type TransactionFilter struct {
	// MinTimestamp and MaxTimestamp are inclusive bounds.
	MinTimestamp *time.Time
	MaxTimestamp *time.Time
	// After is an exclusive lower bound.
	After          *time.Time
	PoolIDs        []string
	TransactionIDs []string
	UntaggedOnly   bool
	IsDiffuse      *bool
}

func (f TransactionFilter) Matches(t Transaction) bool {
	if f.MinTimestamp != nil && t.Timestamp.Before(*f.MinTimestamp) {
		return false
	}
	if f.MaxTimestamp != nil && t.Timestamp.After(*f.MaxTimestamp) {
		return false
	}
	if f.After != nil && !t.Timestamp.After(*f.After) {
		return false
	}
	if f.PoolIDs != nil && !slices.Contains(f.PoolIDs, t.PoolID) {
		return false
	}
	if f.TransactionIDs != nil && !slices.Contains(f.TransactionIDs, t.ID) {
		return false
	}
	if f.UntaggedOnly && len(t.Tags) > 0 {
		return false
	}
	if f.IsDiffuse != nil && t.IsDiffuse != *f.IsDiffuse {
		return false
	}
	return true
}

type TransactionOrder string

const (
	LatestFirst          TransactionOrder = "latest_first"
	OldestFirst          TransactionOrder = "oldest_first"
	LargestFirst         TransactionOrder = "largest_first"
	LargestNegativeFirst TransactionOrder = "largest_negative_first"
)

func ParseTransactionOrder(s string) (TransactionOrder, error) {
	switch o := TransactionOrder(strings.ToLower(strings.TrimSpace(s))); o {
	case "":
		return LatestFirst, nil
	case LatestFirst, OldestFirst, LargestFirst, LargestNegativeFirst:
		return o, nil
	default:
		return "", fmt.Errorf("unknown order %q: %w", s, ErrValidation)
	}
}

// SortTransactions orders ts in place. Ties fall back to latest first, then id.
func SortTransactions(ts []Transaction, order TransactionOrder) {
	latest := func(a, b Transaction) bool {
		if !a.Timestamp.Equal(b.Timestamp) {
			return a.Timestamp.After(b.Timestamp)
		}
		return a.ID < b.ID
	}
	var less func(a, b Transaction) bool
	switch order {
	case OldestFirst:
		less = func(a, b Transaction) bool {
			if !a.Timestamp.Equal(b.Timestamp) {
				return a.Timestamp.Before(b.Timestamp)
			}
			return a.ID < b.ID
		}
	case LargestFirst:
		less = func(a, b Transaction) bool {
			if c := a.Sum.Amount.Cmp(b.Sum.Amount); c != 0 {
				return c > 0
			}
			return latest(a, b)
		}
	case LargestNegativeFirst:
		less = func(a, b Transaction) bool {
			if c := a.Sum.Amount.Cmp(b.Sum.Amount); c != 0 {
				return c < 0
			}
			return latest(a, b)
		}
	default:
		less = latest
	}
	sort.SliceStable(ts, func(i, j int) bool { return less(ts[i], ts[j]) })
}
