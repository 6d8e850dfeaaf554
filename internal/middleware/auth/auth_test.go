package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	_, err := New(Config{Mode: ModeSecret})
	assert.Error(t, err)
	_, err = New(Config{Mode: ModeToken})
	assert.Error(t, err)
	_, err = New(Config{Mode: "oauth"})
	assert.Error(t, err)
	_, err = New(Config{Mode: ModeNone})
	assert.NoError(t, err)
}

func TestOwner(t *testing.T) {
	none, err := New(Config{Mode: ModeNone})
	require.NoError(t, err)
	secret, err := New(Config{Mode: ModeSecret, Secret: "s3cr3t"})
	require.NoError(t, err)
	token, err := New(Config{Mode: ModeToken, Tokens: map[string]string{"tok-a": "alice", "tok-b": "bob"}})
	require.NoError(t, err)

	tests := []struct {
		name      string
		auth      *Authenticator
		header    string
		value     string
		wantOwner string
		wantOK    bool
	}{
		{"none always passes", none, "", "", NoAuthOwner, true},
		{"secret matches", secret, SecretHeader, "s3cr3t", SecretHeaderOwner, true},
		{"secret wrong", secret, SecretHeader, "guess", "", false},
		{"secret missing", secret, "", "", "", false},
		{"token alice", token, "Authorization", "Bearer tok-a", "alice", true},
		{"token bob lowercase scheme", token, "Authorization", "bearer tok-b", "bob", true},
		{"token unknown", token, "Authorization", "Bearer nope", "", false},
		{"token wrong scheme", token, "Authorization", "Basic tok-a", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/pools", nil)
			if tt.header != "" {
				r.Header.Set(tt.header, tt.value)
			}
			owner, ok := tt.auth.Owner(r)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantOwner, owner)
		})
	}
}

func TestMiddleware(t *testing.T) {
	a, err := New(Config{Mode: ModeToken, Tokens: map[string]string{"tok": "alice"}})
	require.NoError(t, err)

	var owner string
	h := a.Middleware(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		owner = OwnerFrom(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Empty(t, owner)

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer tok")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "alice", owner)
}
