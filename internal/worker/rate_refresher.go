package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"moneypools/internal/core"
	"moneypools/internal/log"
)

// Refresher reloads the rate table for one base currency. Implemented by
// remote.Source.
type Refresher interface {
	Refresh(ctx context.Context, base core.Currency) (int, error)
}

type RateRefresherConfig struct {
	// Interval between refresh rounds (default: 6h)
	Interval time.Duration

	// Bases are refreshed in order each round.
	Bases []core.Currency
}

func DefaultRateRefresherConfig() RateRefresherConfig {
	return RateRefresherConfig{
		Interval: 6 * time.Hour,
		Bases:    []core.Currency{core.MustParseCurrency("EUR")},
	}
}

// RateRefresher keeps the remote rate cache warm so request paths rarely
// block on the rates API.
type RateRefresher struct {
	source Refresher
	config RateRefresherConfig
	logger *log.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewRateRefresher(source Refresher, config RateRefresherConfig, logger *log.Logger) *RateRefresher {
	if logger == nil {
		logger = log.Discard()
	}
	return &RateRefresher{
		source: source,
		config: config,
		logger: logger.WithComponent(log.ComponentWorker),
	}
}

// Start begins the refresh loop. Returns an error if already running.
func (r *RateRefresher) Start(ctx context.Context) error {
	if r.config.Interval <= 0 {
		return fmt.Errorf("refresh interval must be positive, got %v", r.config.Interval)
	}

	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("rate refresher is already running")
	}
	r.running = true
	r.stopCh = make(chan struct{})
	r.doneCh = make(chan struct{})
	r.mu.Unlock()

	go r.runLoop(ctx)

	r.logger.InfoContext(ctx, "Rate refresher started",
		"interval", r.config.Interval,
		log.FieldCount, len(r.config.Bases))
	return nil
}

// Stop signals the loop and waits for the current round to finish.
func (r *RateRefresher) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	r.mu.Unlock()

	close(r.stopCh)

	select {
	case <-r.doneCh:
		r.logger.InfoContext(ctx, "Rate refresher stopped gracefully")
	case <-ctx.Done():
		r.logger.WarnContext(ctx, "Rate refresher stop timed out")
		return ctx.Err()
	}

	r.mu.Lock()
	r.running = false
	r.mu.Unlock()
	return nil
}

func (r *RateRefresher) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

func (r *RateRefresher) runLoop(ctx context.Context) {
	defer close(r.doneCh)

	ticker := time.NewTicker(r.config.Interval)
	defer ticker.Stop()

	r.RefreshAll(ctx)

	for {
		select {
		case <-r.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.RefreshAll(ctx)
		}
	}
}

// RefreshAll runs one round over every configured base and returns the
// number of bases that failed.
func (r *RateRefresher) RefreshAll(ctx context.Context) int {
	failed := 0
	for _, base := range r.config.Bases {
		if ctx.Err() != nil {
			return failed
		}
		n, err := r.source.Refresh(ctx, base)
		if err != nil {
			failed++
			r.logger.WarnContext(ctx, "Rate refresh failed",
				log.FieldOperation, log.OpRefresh,
				log.FieldBaseCurrency, base.Code,
				log.FieldError, err,
				log.FieldErrorType, log.ErrorTypeRateUnavailable)
			continue
		}
		r.logger.InfoContext(ctx, "Rates refreshed",
			log.FieldOperation, log.OpRefresh,
			log.FieldBaseCurrency, base.Code,
			log.FieldCount, n)
	}
	return failed
}
