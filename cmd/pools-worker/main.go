package main

import (
	"context"
	"errors"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"moneypools/internal/amqp"
	"moneypools/internal/backend"
	"moneypools/internal/cli"
	"moneypools/internal/core"
	"moneypools/internal/log"
	"moneypools/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	cfg, logger := cli.LoadAndValidateConfig()
	logger = logger.WithComponent(log.ComponentWorker)
	logger.Info("Starting pools-worker")

	// The worker consumes events itself; it does not publish through the
	// ledger service.
	app, err := cli.NewApp(context.Background(), cfg, logger, false)
	if err != nil {
		logger.Error("Failed to initialize application", log.FieldError, err)
		os.Exit(1)
	}
	defer app.Close()

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, nil)
	g, gctx := errgroup.WithContext(ctx)
	tasks := 0

	if app.Rates.Remote != nil {
		bases := make([]core.Currency, 0, len(cfg.RatesRefreshBases))
		for _, code := range cfg.RatesRefreshBases {
			bases = append(bases, core.MustParseCurrency(code))
		}
		refresher := worker.NewRateRefresher(app.Rates.Remote, worker.RateRefresherConfig{
			Interval: cfg.RatesRefreshInterval,
			Bases:    bases,
		}, logger)
		if err := refresher.Start(gctx); err != nil {
			logger.Error("Failed to start rate refresher", log.FieldError, err)
			os.Exit(1)
		}
		tasks++
		g.Go(func() error {
			<-gctx.Done()
			stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return refresher.Stop(stopCtx)
		})
	} else {
		logger.Info("Rate refresher disabled, rates backend is not remote")
	}

	if cfg.AMQPURL != "" {
		if cfg.DataBackend == string(backend.MemoryBackend) {
			logger.Warn("Reconciler reads a private in-memory store; use the sqlite backend to share data with the server")
		}
		client, err := amqp.NewClient(gctx, cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", log.FieldError, err)
			os.Exit(1)
		}
		defer client.Close()
		reconciler := worker.NewReconciler(app.Store, logger)
		tasks++
		g.Go(func() error {
			err := client.Consume(gctx, reconciler.HandleEvent)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	} else {
		logger.Info("Reconciliation consumer disabled, no AMQP_URL provided")
	}

	if tasks == 0 {
		logger.Warn("Nothing to do: configure RATES_BACKEND=remote or AMQP_URL")
		return
	}

	err = g.Wait()
	if ctx.Err() == nil {
		logger.Error("Worker stopped unexpectedly", log.FieldError, err)
		_ = app.Close()
		os.Exit(1)
	}
	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker stopped")
}
