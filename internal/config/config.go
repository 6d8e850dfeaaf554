package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"moneypools/internal/core"
	"moneypools/internal/log"
)

type Config struct {
	// HTTP Server
	Port string

	// Backend selection
	DataBackend  string
	SQLiteDBPath string
	// SeedDir holds seed_pools.json for the memory backend.
	SeedDir string

	// AMQP, disabled when AMQPURL is empty
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Exchange rates
	RatesBackend         string
	RatesAPIURL          string
	RatesCacheDir        string
	RatesStatic          string
	RatesMaxAge          time.Duration
	RatesCacheTTL        time.Duration
	RatesRefreshInterval time.Duration
	RatesRefreshBases    []string

	// Reporting
	ReportingCurrency     string
	ReportMaxTransactions int

	// Auth
	AuthMode   string
	AuthSecret string
	// AuthTokens maps bearer token to owner.
	AuthTokens map[string]string

	// Logging
	LogLevel  string
	LogFormat string
}

func Load() *Config {
	cfg := &Config{
		Port: getEnv("PORT", "8081"),

		DataBackend:  getEnv("DATA_BACKEND", "memory"),
		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/pools.db"),
		SeedDir:      getEnv("SEED_DIR", ""),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "moneypools"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "ledger_reconciliation"),

		RatesBackend:         getEnv("RATES_BACKEND", "static"),
		RatesAPIURL:          getEnv("RATES_API_URL", ""),
		RatesCacheDir:        getEnv("RATES_CACHE_DIR", "./data/rates"),
		RatesStatic:          getEnv("RATES_STATIC", ""),
		RatesMaxAge:          getEnvDuration("RATES_MAX_AGE", 72*time.Hour),
		RatesCacheTTL:        getEnvDuration("RATES_CACHE_TTL", 10*time.Minute),
		RatesRefreshInterval: getEnvDuration("RATES_REFRESH_INTERVAL", 6*time.Hour),
		RatesRefreshBases:    getEnvList("RATES_REFRESH_BASES", []string{"EUR"}),

		ReportingCurrency:     strings.ToUpper(getEnv("REPORTING_CURRENCY", "EUR")),
		ReportMaxTransactions: getEnvInt("REPORT_MAX_TRANSACTIONS", 10000),

		AuthMode:   getEnv("AUTH_MODE", "none"),
		AuthSecret: getEnv("AUTH_SECRET", ""),
		AuthTokens: getEnvMap("AUTH_TOKENS"),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),
	}

	return cfg
}

// RatesCacheFile is the JSON file the remote rate source persists to.
func (c *Config) RatesCacheFile() string {
	return filepath.Join(c.RatesCacheDir, "exchange_rates.json")
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	validBackends := []string{"memory", "sqlite"}
	if !slices.Contains(validBackends, c.DataBackend) {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}

	if c.DataBackend == "sqlite" {
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
		} else {
			dir := filepath.Dir(c.SQLiteDBPath)
			if dir != "." && dir != "" {
				if _, err := os.Stat(dir); os.IsNotExist(err) {
					if err := os.MkdirAll(dir, 0755); err != nil {
						errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
					}
				}
			}
		}
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	switch c.RatesBackend {
	case "static":
	case "remote":
		if c.RatesAPIURL == "" {
			errors = append(errors, "RATES_API_URL is required when using remote rates")
		} else if u, err := url.Parse(c.RatesAPIURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			errors = append(errors, fmt.Sprintf("invalid rates API URL '%s': must be http or https", c.RatesAPIURL))
		}
		if c.RatesCacheDir == "" {
			errors = append(errors, "RATES_CACHE_DIR cannot be empty when using remote rates")
		}
	default:
		errors = append(errors, fmt.Sprintf("invalid rates backend '%s': must be one of [static remote]", c.RatesBackend))
	}

	if c.RatesMaxAge < time.Minute {
		errors = append(errors, fmt.Sprintf("invalid rates max age %v: must be at least 1 minute", c.RatesMaxAge))
	}
	if c.RatesRefreshInterval < time.Minute {
		errors = append(errors, fmt.Sprintf("invalid rates refresh interval %v: must be at least 1 minute", c.RatesRefreshInterval))
	}
	for _, base := range c.RatesRefreshBases {
		if _, err := core.ParseCurrency(base); err != nil {
			errors = append(errors, fmt.Sprintf("invalid refresh base currency '%s'", base))
		}
	}

	if _, err := core.ParseCurrency(c.ReportingCurrency); err != nil {
		errors = append(errors, fmt.Sprintf("invalid reporting currency '%s'", c.ReportingCurrency))
	}
	if c.ReportMaxTransactions < 1 {
		errors = append(errors, fmt.Sprintf("invalid report max transactions %d: must be at least 1", c.ReportMaxTransactions))
	}

	switch c.AuthMode {
	case "none":
	case "secret":
		if c.AuthSecret == "" {
			errors = append(errors, "AUTH_SECRET is required when AUTH_MODE is secret")
		}
	case "token":
		if len(c.AuthTokens) == 0 {
			errors = append(errors, "AUTH_TOKENS is required when AUTH_MODE is token")
		}
	default:
		errors = append(errors, fmt.Sprintf("invalid auth mode '%s': must be one of [none secret token]", c.AuthMode))
	}

	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		errors = append(errors, fmt.Sprintf("invalid log level '%s'", c.LogLevel))
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		errors = append(errors, fmt.Sprintf("invalid log format '%s': must be text or json", c.LogFormat))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvList splits a comma separated value, dropping blanks.
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, strings.ToUpper(part))
		}
	}
	return out
}

// getEnvMap parses "k1=v1,k2=v2". Malformed pairs are skipped.
func getEnvMap(key string) map[string]string {
	out := make(map[string]string)
	for _, pair := range strings.Split(os.Getenv(key), ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok || k == "" || v == "" {
			continue
		}
		out[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return out
}
