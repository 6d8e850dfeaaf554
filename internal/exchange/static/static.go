// Package static serves exchange rates from a fixed in-memory table.
package static

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"moneypools/internal/core"
)

// Source holds rates keyed by "BASE/TARGET". The reverse pair is derived
// when only one direction is known.
type Source struct {
	mu       sync.RWMutex
	rates    map[string]float64
	identity bool
}

func New(rates map[string]float64) *Source {
	s := &Source{rates: make(map[string]float64, len(rates))}
	for k, v := range rates {
		s.rates[strings.ToUpper(k)] = v
	}
	return s
}

// Identity returns a source answering 1.0 for every pair. It is meant for
// local runs and tests where no real rates are wanted.
func Identity() *Source {
	return &Source{rates: map[string]float64{}, identity: true}
}

// Set adds or replaces a rate.
func (s *Source) Set(base, target string, rate float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rates[key(base, target)] = rate
}

func (s *Source) GetRate(_ context.Context, base, target core.Currency) (float64, error) {
	if base.Equal(target) || s.identity {
		return 1, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if rate, ok := s.rates[key(base.Code, target.Code)]; ok {
		return rate, nil
	}
	if rate, ok := s.rates[key(target.Code, base.Code)]; ok && rate != 0 {
		return 1 / rate, nil
	}
	return 0, fmt.Errorf("no static rate for %s/%s: %w", base, target, core.ErrRateUnavailable)
}

func key(base, target string) string {
	return strings.ToUpper(base) + "/" + strings.ToUpper(target)
}

// ParseRates reads "USD/EUR=0.92,EUR/GBP=0.85" into a rate map.
func ParseRates(s string) (map[string]float64, error) {
	rates := make(map[string]float64)
	for _, entry := range strings.Split(s, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		pairText, rateText, ok := strings.Cut(entry, "=")
		if !ok {
			return nil, fmt.Errorf("rate entry %q: expected BASE/TARGET=RATE", entry)
		}
		base, target, ok := strings.Cut(strings.TrimSpace(pairText), "/")
		if !ok {
			return nil, fmt.Errorf("rate entry %q: expected BASE/TARGET", entry)
		}
		if _, err := core.ParseCurrency(base); err != nil {
			return nil, fmt.Errorf("rate entry %q: %w", entry, err)
		}
		if _, err := core.ParseCurrency(target); err != nil {
			return nil, fmt.Errorf("rate entry %q: %w", entry, err)
		}
		rate, err := strconv.ParseFloat(strings.TrimSpace(rateText), 64)
		if err != nil || rate <= 0 {
			return nil, fmt.Errorf("rate entry %q: invalid rate", entry)
		}
		rates[key(base, target)] = rate
	}
	return rates, nil
}
