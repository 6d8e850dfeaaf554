package log

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerTagsComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: slog.LevelDebug, Format: "json", Output: &buf}).WithComponent(ComponentLedger)

	logger.Info("transaction added", FieldPoolID, "p1")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "ledger", entry[FieldComponent])
	assert.Equal(t, "p1", entry[FieldPoolID])
	assert.Equal(t, "transaction added", entry["msg"])
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"":      slog.LevelInfo,
		"WARN":  slog.LevelWarn,
		"error": slog.LevelError,
	}
	for in, want := range cases {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseLevel("verbose")
	assert.Error(t, err)
}

func TestLogFields(t *testing.T) {
	fields := NewFields().
		WithOwner("alice").
		WithTransaction("t1", "p1", "-10.00", "USD").
		WithError(errors.New("boom")).
		WithError(nil)

	assert.Equal(t, "boom", fields[FieldError])
	assert.Len(t, fields.ToSlice(), 2*len(fields))
}
