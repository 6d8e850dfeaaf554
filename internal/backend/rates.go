package backend

import (
	"fmt"
	"strings"

	"moneypools/internal/config"
	"moneypools/internal/exchange"
	"moneypools/internal/exchange/remote"
	"moneypools/internal/exchange/static"
	"moneypools/internal/log"
)

const rateCacheSize = 1024

// RatesResult holds the rate source used by the services. Remote is set only
// for the remote backend so the worker can refresh it.
type RatesResult struct {
	Source exchange.Source
	Cached *exchange.Cached
	Remote *remote.Source
}

// NewRateSource builds the configured rate source wrapped in a TTL cache.
func NewRateSource(cfg *config.Config, logger *log.Logger) (*RatesResult, error) {
	if logger == nil {
		logger = log.Discard()
	}
	logger = logger.WithComponent(log.ComponentBackend)

	var (
		base exchange.Source
		rs   *remote.Source
	)
	switch strings.ToLower(cfg.RatesBackend) {
	case "static":
		if strings.TrimSpace(cfg.RatesStatic) == "" {
			base = static.Identity()
			logger.Warn("No static rates configured, using identity rates")
			break
		}
		table, err := static.ParseRates(cfg.RatesStatic)
		if err != nil {
			return nil, fmt.Errorf("parse RATES_STATIC: %w", err)
		}
		base = static.New(table)
		logger.Info("Initialized static rates", "pairs", len(table))
	case "remote":
		rcfg := remote.DefaultConfig()
		rcfg.APIURL = cfg.RatesAPIURL
		rcfg.CacheFile = cfg.RatesCacheFile()
		rcfg.MaxAge = cfg.RatesMaxAge
		var err error
		rs, err = remote.New(rcfg, nil, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize remote rates: %w", err)
		}
		base = rs
		logger.Info("Initialized remote rates", "api_url", cfg.RatesAPIURL, "cache_file", rcfg.CacheFile)
	default:
		return nil, fmt.Errorf("unsupported rates backend: %s", cfg.RatesBackend)
	}

	cached := exchange.NewCached(base, rateCacheSize, cfg.RatesCacheTTL)
	return &RatesResult{Source: cached, Cached: cached, Remote: rs}, nil
}
