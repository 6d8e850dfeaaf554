// Package auth resolves the owner of an HTTP request. Every ledger call is
// scoped to the resolved owner.
package auth

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"
)

type Mode string

const (
	ModeNone   Mode = "none"
	ModeSecret Mode = "secret"
	ModeToken  Mode = "token"
)

// Fixed owners for the modes without per-user identity.
const (
	NoAuthOwner       = "no-auth"
	SecretHeaderOwner = "secret-header-auth"
	SecretHeader      = "secret"
)

type ownerKey struct{}

type Config struct {
	Mode   Mode
	Secret string
	// Tokens maps bearer token to owner.
	Tokens map[string]string
}

type Authenticator struct {
	config Config
}

func New(config Config) (*Authenticator, error) {
	switch config.Mode {
	case ModeNone:
	case ModeSecret:
		if config.Secret == "" {
			return nil, fmt.Errorf("secret auth requires a secret")
		}
	case ModeToken:
		if len(config.Tokens) == 0 {
			return nil, fmt.Errorf("token auth requires at least one token")
		}
	default:
		return nil, fmt.Errorf("unknown auth mode %q", config.Mode)
	}
	return &Authenticator{config: config}, nil
}

// Owner resolves the owner of r, reporting false when the request is not
// authorized.
func (a *Authenticator) Owner(r *http.Request) (string, bool) {
	switch a.config.Mode {
	case ModeNone:
		return NoAuthOwner, true
	case ModeSecret:
		if equal(r.Header.Get(SecretHeader), a.config.Secret) {
			return SecretHeaderOwner, true
		}
	case ModeToken:
		scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") {
			return "", false
		}
		token = strings.TrimSpace(token)
		for known, owner := range a.config.Tokens {
			if equal(token, known) {
				return owner, true
			}
		}
	}
	return "", false
}

// Middleware stores the owner in the request context and calls onDenied for
// unauthorized requests.
func (a *Authenticator) Middleware(onDenied func(http.ResponseWriter, *http.Request)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			owner, ok := a.Owner(r)
			if !ok {
				if onDenied != nil {
					onDenied(w, r)
				} else {
					http.Error(w, "Missing or invalid auth header", http.StatusForbidden)
				}
				return
			}
			next.ServeHTTP(w, r.WithContext(WithOwner(r.Context(), owner)))
		})
	}
}

func WithOwner(ctx context.Context, owner string) context.Context {
	return context.WithValue(ctx, ownerKey{}, owner)
}

// OwnerFrom returns the owner stored by Middleware, or "".
func OwnerFrom(ctx context.Context) string {
	owner, _ := ctx.Value(ownerKey{}).(string)
	return owner
}

func equal(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
