// Package handlers contains HTTP handler interfaces and implementations.
package handlers

import (
	"crypto/subtle"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// MODERATION AUTH
// Every moderation route (verify, edit, delete, backfill, import) sits
// behind a shared API key. Keys come from configuration at startup; there
// is no runtime key management.
// ══════════════════════════════════════════════════════════════════════════════

// APIKeyAuth authenticates moderation requests by API key.
type APIKeyAuth struct {
	headerName string
	keys       []string
}

// NewAPIKeyAuth creates an authenticator. Empty keys are dropped; an
// authenticator with no keys rejects everything.
func NewAPIKeyAuth(headerName string, keys []string) *APIKeyAuth {
	a := &APIKeyAuth{headerName: headerName}
	for _, key := range keys {
		if key != "" {
			a.keys = append(a.keys, key)
		}
	}
	return a
}

// IsValid reports whether the presented key matches a configured one.
// Comparison is constant-time per key.
func (a *APIKeyAuth) IsValid(key string) bool {
	for _, k := range a.keys {
		if len(k) == len(key) && subtle.ConstantTimeCompare([]byte(k), []byte(key)) == 1 {
			return true
		}
	}
	return false
}

// Middleware rejects requests without a valid key. The key is read from
// the configured header, falling back to a Bearer token.
func (a *APIKeyAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(a.headerName)
		if key == "" {
			if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
				key = strings.TrimPrefix(auth, "Bearer ")
			}
		}

		if key == "" {
			http.Error(w, `{"error":"missing_api_key","message":"API key is required"}`,
				http.StatusUnauthorized)
			return
		}
		if !a.IsValid(key) {
			http.Error(w, `{"error":"invalid_api_key","message":"Invalid API key"}`,
				http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// CACHE HEADERS
// Board reads are the hot path and cache briefly at the HTTP layer on top
// of the Redis board cache; health endpoints must never cache, or load
// balancers act on stale state.
// ══════════════════════════════════════════════════════════════════════════════

// CacheControlMiddleware marks GET responses cacheable for maxAge.
// Non-GET methods always get no-store.
func CacheControlMiddleware(maxAge time.Duration, private bool) func(http.Handler) http.Handler {
	directive := "public"
	if private {
		directive = "private"
	}
	value := directive + ", max-age=" + strconv.Itoa(int(maxAge.Seconds()))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodGet {
				w.Header().Set("Cache-Control", value)
			} else {
				w.Header().Set("Cache-Control", "no-store")
			}
			next.ServeHTTP(w, r)
		})
	}
}

// NoCacheMiddleware forbids caching entirely.
func NoCacheMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, max-age=0")
		w.Header().Set("Pragma", "no-cache")
		w.Header().Set("Expires", "0")
		next.ServeHTTP(w, r)
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// HARDENING
// ══════════════════════════════════════════════════════════════════════════════

// SecurityHeadersMiddleware sets the standard lockdown headers for a
// JSON-only API.
func SecurityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		next.ServeHTTP(w, r)
	})
}

// RequestSizeLimitMiddleware caps request bodies. Submissions and edits
// are small JSON documents; anything larger is rejected before decoding.
func RequestSizeLimitMiddleware(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > maxBytes {
				http.Error(w, `{"error":"payload_too_large","message":"Request body too large"}`,
					http.StatusRequestEntityTooLarge)
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// CHAINING
// ══════════════════════════════════════════════════════════════════════════════

// MiddlewareFunc wraps an http.Handler.
type MiddlewareFunc func(http.Handler) http.Handler

// Chain composes middleware left to right: the first listed runs first.
func Chain(middlewares ...MiddlewareFunc) MiddlewareFunc {
	return func(final http.Handler) http.Handler {
		for i := len(middlewares) - 1; i >= 0; i-- {
			final = middlewares[i](final)
		}
		return final
	}
}

// ChainHandler composes middleware around a final handler.
func ChainHandler(handler http.Handler, middlewares ...MiddlewareFunc) http.Handler {
	return Chain(middlewares...)(handler)
}
