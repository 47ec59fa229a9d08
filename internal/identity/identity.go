// Package identity resolves the authenticated username that scopes
// every portfolio operation. The trading core never sees requests for
// unresolved users; the middleware here rejects them before the
// handlers run. Real session plumbing (cookies, OTP verification)
// lives upstream in the web tier.
package identity

import (
	"context"
	"net/http"
	"strings"
)

// userHeader carries the resolved username set by the upstream web
// tier after session validation.
const userHeader = "X-Velasa-User"

type contextKey struct{}

// Resolver supplies the authenticated username for a request.
type Resolver interface {
	// CurrentUsername returns the username and true when the request is
	// authenticated.
	CurrentUsername(r *http.Request) (string, bool)
}

// HeaderResolver trusts the upstream-set user header. Suitable behind
// a reverse proxy that strips client-supplied copies of the header.
type HeaderResolver struct{}

func (HeaderResolver) CurrentUsername(r *http.Request) (string, bool) {
	username := strings.TrimSpace(r.Header.Get(userHeader))
	return username, username != ""
}

// Middleware rejects unauthenticated requests and stores the resolved
// username in the request context.
func Middleware(resolver Resolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			username, ok := resolver.CurrentUsername(r)
			if !ok {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte(`{"error":"authentication required"}`))
				return
			}
			ctx := context.WithValue(r.Context(), contextKey{}, username)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// FromContext returns the username stored by Middleware.
func FromContext(ctx context.Context) (string, bool) {
	username, ok := ctx.Value(contextKey{}).(string)
	return username, ok
}
