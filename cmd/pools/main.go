package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"moneypools/internal/cli"
	apphttp "moneypools/internal/http"
	"moneypools/internal/log"
	"moneypools/internal/middleware/auth"
)

func main() {
	cli.LoadEnvFile()
	cfg, logger := cli.LoadAndValidateConfig()

	app, err := cli.NewApp(context.Background(), cfg, logger, true)
	if err != nil {
		logger.Error("Failed to initialize application", log.FieldError, err)
		os.Exit(1)
	}

	authn, err := auth.New(auth.Config{
		Mode:   auth.Mode(cfg.AuthMode),
		Secret: cfg.AuthSecret,
		Tokens: cfg.AuthTokens,
	})
	if err != nil {
		logger.Error("Failed to initialize auth", log.FieldError, err)
		_ = app.Close()
		os.Exit(1)
	}

	srv := apphttp.NewServer(apphttp.Options{
		Addr:    ":" + cfg.Port,
		Ledger:  app.Ledger,
		Reports: app.Reports,
		Auth:    authn,
		Logger:  logger,
		Ready:   app.Ready,
	})

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(shutdownCtx context.Context) {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
		if err := app.Close(); err != nil {
			logger.Error("Failed to release resources", log.FieldError, err)
		}
	})

	logger.Info("Starting pools server",
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"rates", cfg.RatesBackend,
		"auth", cfg.AuthMode,
		"events", app.Events != nil)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		_ = app.Close()
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
