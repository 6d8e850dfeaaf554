package cli

import (
	"context"
	"errors"
	"fmt"

	"moneypools/internal/amqp"
	"moneypools/internal/backend"
	"moneypools/internal/cache"
	"moneypools/internal/config"
	"moneypools/internal/core"
	"moneypools/internal/ledger"
	"moneypools/internal/log"
	"moneypools/internal/report"
	"moneypools/internal/services"
)

// App holds the dependencies shared by the binaries.
type App struct {
	Config  *config.Config
	Logger  *log.Logger
	Store   ledger.Store
	Rates   *backend.RatesResult
	Events  *amqp.Client
	Ledger  *services.LedgerService
	Reports *report.Engine
	Caches  *cache.Manager

	closers []func() error
}

// NewApp builds the store, rate source, optional event client and services
// from cfg. When connectEvents is false no broker connection is attempted.
func NewApp(ctx context.Context, cfg *config.Config, logger *log.Logger, connectEvents bool) (*App, error) {
	reporting, err := core.ParseCurrency(cfg.ReportingCurrency)
	if err != nil {
		return nil, fmt.Errorf("reporting currency: %w", err)
	}

	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, err
	}
	res, err := backend.NewFactory(logger).CreateBackend(ctx, bcfg)
	if err != nil {
		return nil, err
	}
	app := &App{Config: cfg, Logger: logger, Store: res.Store}
	if res.Cleanup != nil {
		app.closers = append(app.closers, res.Cleanup)
	}

	app.Rates, err = backend.NewRateSource(cfg, logger)
	if err != nil {
		_ = app.Close()
		return nil, err
	}
	app.Caches = cache.NewManager(logger)
	app.Caches.Register(app.Rates.Cached.Rates())
	app.Caches.StartCleanup(cfg.RatesCacheTTL)
	app.closers = append(app.closers, func() error {
		app.Caches.Stop()
		return nil
	})

	opts := []services.Option{services.WithLogger(logger)}
	if connectEvents {
		if app.Events = backend.NewEventClient(ctx, cfg, logger); app.Events != nil {
			opts = append(opts, services.WithEvents(app.Events))
			app.closers = append(app.closers, app.Events.Close)
		}
	}

	app.Ledger = services.NewLedgerService(app.Store, app.Rates.Source, reporting, opts...)
	app.Reports = report.NewEngine(app.Store, app.Rates.Source, report.Config{
		MaxTransactions: cfg.ReportMaxTransactions,
	}, logger)
	return app, nil
}

// Ready reports whether the store answers queries.
func (a *App) Ready(ctx context.Context) error {
	_, err := a.Store.LoadPools(ctx, "readiness-probe")
	return err
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
