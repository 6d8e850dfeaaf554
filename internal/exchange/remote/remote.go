// Package remote fetches exchange rates from an HTTP rates API and keeps
// them in a JSON file cache.
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"moneypools/internal/core"
	"moneypools/internal/log"
)

// Config holds the remote source settings.
type Config struct {
	// APIURL is the endpoint prefix; rates for BASE are read from APIURL/BASE.
	APIURL string
	// CacheFile is where fetched rates are persisted. Empty disables the file.
	CacheFile string
	// MaxAge is how old a cached rate may be before a refetch is attempted.
	MaxAge     time.Duration
	MaxRetries uint64
	Timeout    time.Duration
}

func DefaultConfig() Config {
	return Config{
		MaxAge:     72 * time.Hour,
		MaxRetries: 3,
		Timeout:    10 * time.Second,
	}
}

// Rate is one cached conversion rate.
type Rate struct {
	Base      string    `json:"base"`
	Target    string    `json:"target"`
	Rate      float64   `json:"rate"`
	UpdatedOn time.Time `json:"updated_on"`
}

type apiResponse struct {
	Result             string             `json:"result"`
	BaseCode           string             `json:"base_code"`
	Rates              map[string]float64 `json:"rates"`
	TimeLastUpdateUnix int64              `json:"time_last_update_unix"`
}

type pairKey struct {
	base, target string
}

// Source is a rate source backed by the remote API. A stale rate is still
// served when a refresh fails.
type Source struct {
	cfg    Config
	client *http.Client
	logger *log.Logger
	now    func() time.Time

	mu    sync.RWMutex
	rates map[pairKey]Rate

	fetchMu sync.Mutex
}

// New creates the source and loads the cache file if one exists.
func New(cfg Config, client *http.Client, logger *log.Logger) (*Source, error) {
	if strings.TrimSpace(cfg.APIURL) == "" {
		return nil, errors.New("rates API URL is required")
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = DefaultConfig().MaxAge
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	s := &Source{
		cfg:    cfg,
		client: client,
		logger: logger.WithComponent(log.ComponentExchange),
		now:    time.Now,
		rates:  make(map[pairKey]Rate),
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Source) GetRate(ctx context.Context, base, target core.Currency) (float64, error) {
	cached, ok := s.cached(base.Code, target.Code)
	if ok && s.now().Sub(cached.UpdatedOn) <= s.cfg.MaxAge {
		return cached.Rate, nil
	}

	if _, err := s.Refresh(ctx, base); err != nil {
		s.logger.WarnContext(ctx, "Failed to refresh exchange rates",
			log.FieldBaseCurrency, base.Code,
			log.FieldError, err,
			"stale_available", ok)
	}

	cached, ok = s.cached(base.Code, target.Code)
	if !ok {
		return 0, fmt.Errorf("no rate for %s/%s: %w", base, target, core.ErrRateUnavailable)
	}
	return cached.Rate, nil
}

func (s *Source) cached(base, target string) (Rate, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rates[pairKey{base, target}]
	return r, ok
}

// Refresh fetches all rates from base and merges them into the cache,
// keeping the newest rate per pair. It returns the number of rates fetched.
func (s *Source) Refresh(ctx context.Context, base core.Currency) (int, error) {
	s.fetchMu.Lock()
	defer s.fetchMu.Unlock()

	resp, err := s.fetch(ctx, base.Code)
	if err != nil {
		return 0, err
	}

	updatedOn := time.Unix(resp.TimeLastUpdateUnix, 0).UTC()
	fetched := make([]Rate, 0, len(resp.Rates))
	skipped := 0
	for code, rate := range resp.Rates {
		target, err := core.ParseCurrency(code)
		if err != nil || rate <= 0 {
			skipped++
			continue
		}
		fetched = append(fetched, Rate{Base: resp.BaseCode, Target: target.Code, Rate: rate, UpdatedOn: updatedOn})
	}

	s.mu.Lock()
	for _, r := range fetched {
		k := pairKey{r.Base, r.Target}
		if old, ok := s.rates[k]; !ok || !old.UpdatedOn.After(r.UpdatedOn) {
			s.rates[k] = r
		}
	}
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "Exchange rates refreshed",
		log.FieldBaseCurrency, resp.BaseCode,
		log.FieldCount, len(fetched),
		"skipped", skipped)

	if err := s.save(); err != nil {
		s.logger.WarnContext(ctx, "Failed to save exchange rate cache", log.FieldError, err)
	}
	return len(fetched), nil
}

func (s *Source) fetch(ctx context.Context, base string) (apiResponse, error) {
	url := strings.TrimRight(s.cfg.APIURL, "/") + "/" + strings.ToUpper(base)

	operation := func() (apiResponse, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return apiResponse{}, backoff.Permanent(err)
		}
		req.Header.Set("Accept", "application/json")

		res, err := s.client.Do(req)
		if err != nil {
			return apiResponse{}, fmt.Errorf("request rates: %w", err)
		}
		defer res.Body.Close()

		switch res.StatusCode {
		case http.StatusOK:
		case http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return apiResponse{}, fmt.Errorf("rates API returned %d", res.StatusCode)
		default:
			return apiResponse{}, backoff.Permanent(fmt.Errorf("rates API returned %d", res.StatusCode))
		}

		body, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
		if err != nil {
			return apiResponse{}, fmt.Errorf("read rates response: %w", err)
		}
		var parsed apiResponse
		if err := json.Unmarshal(body, &parsed); err != nil {
			return apiResponse{}, backoff.Permanent(fmt.Errorf("decode rates response: %w", err))
		}
		if parsed.Result != "success" {
			return apiResponse{}, backoff.Permanent(fmt.Errorf("rates API result %q", parsed.Result))
		}
		if _, err := core.ParseCurrency(parsed.BaseCode); err != nil {
			return apiResponse{}, backoff.Permanent(fmt.Errorf("rates API base: %w", err))
		}
		parsed.BaseCode = strings.ToUpper(parsed.BaseCode)
		return parsed, nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), s.cfg.MaxRetries), ctx)
	resp, err := backoff.RetryNotifyWithData[apiResponse](operation, policy, func(err error, wait time.Duration) {
		s.logger.DebugContext(ctx, "Retrying rates request", log.FieldError, err, "wait", wait)
	})
	if err != nil {
		return apiResponse{}, fmt.Errorf("fetch rates for %s: %w", base, err)
	}
	return resp, nil
}

func (s *Source) load() error {
	if s.cfg.CacheFile == "" {
		return nil
	}
	data, err := os.ReadFile(s.cfg.CacheFile)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read rate cache: %w", err)
	}
	var stored []Rate
	if err := json.Unmarshal(data, &stored); err != nil {
		return fmt.Errorf("decode rate cache %s: %w", s.cfg.CacheFile, err)
	}
	for _, r := range stored {
		k := pairKey{r.Base, r.Target}
		if old, ok := s.rates[k]; !ok || r.UpdatedOn.After(old.UpdatedOn) {
			s.rates[k] = r
		}
	}
	return nil
}

// save writes the cache through a temporary file so readers never see a
// partial document.
func (s *Source) save() error {
	if s.cfg.CacheFile == "" {
		return nil
	}
	s.mu.RLock()
	stored := make([]Rate, 0, len(s.rates))
	for _, r := range s.rates {
		stored = append(stored, r)
	}
	s.mu.RUnlock()
	sort.Slice(stored, func(i, j int) bool {
		if stored[i].Base != stored[j].Base {
			return stored[i].Base < stored[j].Base
		}
		return stored[i].Target < stored[j].Target
	})

	data, err := json.MarshalIndent(stored, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.cfg.CacheFile), 0o755); err != nil {
		return fmt.Errorf("create cache directory: %w", err)
	}
	tmp := s.cfg.CacheFile + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.cfg.CacheFile)
}
