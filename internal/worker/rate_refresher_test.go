package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"moneypools/internal/core"
)

type fakeRefresher struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]bool
}

func (f *fakeRefresher) Refresh(_ context.Context, base core.Currency) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, base.Code)
	if f.fail[base.Code] {
		return 0, errors.New("api down")
	}
	return 160, nil
}

func (f *fakeRefresher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func TestDefaultRateRefresherConfig(t *testing.T) {
	config := DefaultRateRefresherConfig()
	if config.Interval != 6*time.Hour {
		t.Errorf("expected Interval 6h, got %v", config.Interval)
	}
	if len(config.Bases) != 1 || config.Bases[0].Code != "EUR" {
		t.Errorf("expected Bases [EUR], got %v", config.Bases)
	}
}

func TestRateRefresher_RefreshAll(t *testing.T) {
	src := &fakeRefresher{fail: map[string]bool{"USD": true}}
	r := NewRateRefresher(src, RateRefresherConfig{
		Interval: time.Hour,
		Bases:    []core.Currency{core.MustParseCurrency("EUR"), core.MustParseCurrency("USD")},
	}, nil)

	if failed := r.RefreshAll(context.Background()); failed != 1 {
		t.Errorf("expected 1 failed base, got %d", failed)
	}
	if src.count() != 2 {
		t.Errorf("expected 2 refresh calls, got %d", src.count())
	}
}

func TestRateRefresher_Lifecycle(t *testing.T) {
	src := &fakeRefresher{}
	config := DefaultRateRefresherConfig()
	config.Interval = 20 * time.Millisecond
	r := NewRateRefresher(src, config, nil)

	if r.IsRunning() {
		t.Error("refresher should not be running initially")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := r.Start(ctx); err != nil {
		t.Fatalf("first start should succeed: %v", err)
	}
	if err := r.Start(ctx); err == nil {
		t.Error("second start should fail")
	}

	deadline := time.Now().Add(2 * time.Second)
	for src.count() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if src.count() < 2 {
		t.Errorf("expected at least 2 refresh rounds, got %d", src.count())
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), time.Second)
	defer stopCancel()
	if err := r.Stop(stopCtx); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if r.IsRunning() {
		t.Error("refresher should not be running after stop")
	}
	if err := r.Stop(stopCtx); err != nil {
		t.Errorf("second stop should be a no-op, got %v", err)
	}
}

func TestRateRefresher_RejectsZeroInterval(t *testing.T) {
	r := NewRateRefresher(&fakeRefresher{}, RateRefresherConfig{}, nil)
	if err := r.Start(context.Background()); err == nil {
		t.Error("start with zero interval should fail")
	}
	if r.IsRunning() {
		t.Error("refresher should not be running")
	}
}
