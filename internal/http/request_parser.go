// This file implements parsing and validation of JSON bodies and query
// parameters shared by the handlers.

package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"moneypools/internal/core"
)

const (
	maxBodyBytes      = 1 << 20
	defaultPageSize   = 100
	maxPageSize       = 1000
	defaultReportSize = 10
)

// decodeJSON reads exactly one JSON value into v. Unknown fields and
// trailing data are rejected. Errors wrap core.ErrValidation.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, core.ErrValidation) {
			return err
		}
		return fmt.Errorf("invalid request body: %v: %w", err, core.ErrValidation)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("request body must contain a single JSON object: %w", core.ErrValidation)
	}
	return nil
}

// parseTime accepts RFC 3339 timestamps and plain YYYY-MM-DD dates (UTC
// midnight).
func parseTime(name, value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse(time.DateOnly, value); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("%s: invalid time %q: %w", name, value, core.ErrValidation)
}

func optionalTime(query url.Values, name string) (*time.Time, error) {
	v := query.Get(name)
	if strings.TrimSpace(v) == "" {
		return nil, nil
	}
	t, err := parseTime(name, v)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func intParam(query url.Values, name string, def int) (int, error) {
	v := strings.TrimSpace(query.Get(name))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q: %w", name, v, core.ErrValidation)
	}
	return n, nil
}

func boolParam(query url.Values, name string) (*bool, error) {
	v := strings.TrimSpace(query.Get(name))
	if v == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return nil, fmt.Errorf("%s: invalid boolean %q: %w", name, v, core.ErrValidation)
	}
	return &b, nil
}

// TransactionQuery is the parsed form of GET /transactions.
type TransactionQuery struct {
	Filter core.TransactionFilter
	Order  core.TransactionOrder
	Offset int
	Count  int
}

// ParseTransactionQuery reads from, to, pool_id (repeatable), untagged,
// diffuse, order, offset and count.
func ParseTransactionQuery(query url.Values) (TransactionQuery, error) {
	var q TransactionQuery
	var err error

	if q.Filter.MinTimestamp, err = optionalTime(query, "from"); err != nil {
		return q, err
	}
	if q.Filter.MaxTimestamp, err = optionalTime(query, "to"); err != nil {
		return q, err
	}
	if ids := query["pool_id"]; len(ids) > 0 {
		q.Filter.PoolIDs = ids
	}
	untagged, err := boolParam(query, "untagged")
	if err != nil {
		return q, err
	}
	q.Filter.UntaggedOnly = untagged != nil && *untagged
	if q.Filter.IsDiffuse, err = boolParam(query, "diffuse"); err != nil {
		return q, err
	}
	if q.Order, err = core.ParseTransactionOrder(query.Get("order")); err != nil {
		return q, err
	}
	if q.Offset, err = intParam(query, "offset", 0); err != nil {
		return q, err
	}
	if q.Count, err = intParam(query, "count", defaultPageSize); err != nil {
		return q, err
	}
	if q.Offset < 0 {
		return q, fmt.Errorf("offset must not be negative: %w", core.ErrValidation)
	}
	if q.Count < 1 || q.Count > maxPageSize {
		return q, fmt.Errorf("count must be between 1 and %d: %w", maxPageSize, core.ErrValidation)
	}
	return q, nil
}
