package remote

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"moneypools/internal/core"
	"moneypools/internal/log"
)

var (
	usd = core.MustParseCurrency("USD")
	eur = core.MustParseCurrency("EUR")
	amd = core.MustParseCurrency("AMD")
)

func ratesServer(t *testing.T, updated time.Time, failFirst int) (*httptest.Server, *int32) {
	t.Helper()
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if int(n) <= failFirst {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		if r.URL.Path != "/USD" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"result":"success","base_code":"USD","time_last_update_unix":%d,
			"rates":{"USD":1,"EUR":0.9,"AMD":390.5,"XXQ":3}}`, updated.Unix())
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func newSource(t *testing.T, url, cacheFile string) *Source {
	t.Helper()
	cfg := DefaultConfig()
	cfg.APIURL = url
	cfg.CacheFile = cacheFile
	cfg.MaxRetries = 2
	s, err := New(cfg, nil, log.Discard())
	require.NoError(t, err)
	return s
}

func TestGetRateFetchesAndCaches(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	srv, calls := ratesServer(t, now, 0)
	cacheFile := filepath.Join(t.TempDir(), "rates.json")
	s := newSource(t, srv.URL, cacheFile)

	rate, err := s.GetRate(context.Background(), usd, eur)
	require.NoError(t, err)
	assert.Equal(t, 0.9, rate)

	rate, err = s.GetRate(context.Background(), usd, amd)
	require.NoError(t, err)
	assert.Equal(t, 390.5, rate)
	assert.Equal(t, int32(1), atomic.LoadInt32(calls))

	reloaded := newSource(t, "http://127.0.0.1:1", cacheFile)
	rate, err = reloaded.GetRate(context.Background(), usd, eur)
	require.NoError(t, err)
	assert.Equal(t, 0.9, rate)
}

func TestGetRateRetriesTransientFailures(t *testing.T) {
	srv, calls := ratesServer(t, time.Now(), 1)
	s := newSource(t, srv.URL, "")

	rate, err := s.GetRate(context.Background(), usd, eur)
	require.NoError(t, err)
	assert.Equal(t, 0.9, rate)
	assert.Equal(t, int32(2), atomic.LoadInt32(calls))
}

func TestGetRateServesStaleOnFailure(t *testing.T) {
	old := time.Now().Add(-10 * 24 * time.Hour)
	srv, _ := ratesServer(t, old, 0)
	cacheFile := filepath.Join(t.TempDir(), "rates.json")
	s := newSource(t, srv.URL, cacheFile)
	_, err := s.Refresh(context.Background(), usd)
	require.NoError(t, err)

	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer broken.Close()

	stale := newSource(t, broken.URL, cacheFile)
	rate, err := stale.GetRate(context.Background(), usd, eur)
	require.NoError(t, err)
	assert.Equal(t, 0.9, rate)

	_, err = stale.GetRate(context.Background(), eur, usd)
	assert.ErrorIs(t, err, core.ErrRateUnavailable)
}

func TestRefreshRejectsUnsuccessfulResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"result":"error","base_code":"USD","rates":{}}`)
	}))
	defer srv.Close()
	s := newSource(t, srv.URL, "")

	_, err := s.Refresh(context.Background(), usd)
	assert.ErrorContains(t, err, `rates API result "error"`)
}

func TestNewRequiresURL(t *testing.T) {
	_, err := New(DefaultConfig(), nil, log.Discard())
	assert.Error(t, err)
}
