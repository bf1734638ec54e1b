// Package middleware provides the control plane's authentication
// extractors. It is a deliberately narrower descendant of the precedence-
// chain middleware pattern used elsewhere in this codebase's lineage: where
// that pattern resolves PAT, session JWT, OIDC JWT, API key, and a dev-mode
// tenant header in sequence, this system has exactly one bearer type (the
// session token) and two roles, so the chain collapses to "bearer header,
// else cookie" with no fallback tiers.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/vibeforge/controlplane/internal/authctx"
	"github.com/vibeforge/controlplane/internal/httpserver"
	"github.com/vibeforge/controlplane/internal/token"
)

// SessionVerifier resolves a raw bearer token to the authenticated identity,
// applying session-row liveness, user-active, and sliding-refresh rules.
// Implemented by pkg/session.Service; declared here to avoid an import cycle.
type SessionVerifier interface {
	VerifySession(ctx context.Context, rawToken string) (*authctx.Identity, error)
}

// Auth builds middleware that resolves the caller's identity from the
// Authorization header or the auth_token cookie and stores it in the
// request context. It does not itself reject unauthenticated requests —
// that's RequireAuth's job — so public routes can still observe an
// optional identity if present.
func Auth(verifier SessionVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := bearerToken(r)
			if raw == "" {
				if cookie, err := r.Cookie(token.CookieName); err == nil {
					raw = cookie.Value
				}
			}

			if raw == "" {
				next.ServeHTTP(w, r)
				return
			}

			id, err := verifier.VerifySession(r.Context(), raw)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}

			ctx := authctx.NewContext(r.Context(), id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAuth rejects requests with no resolved identity. Mount Auth first.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if authctx.FromContext(r.Context()) == nil {
			httpserver.Fail(w, http.StatusUnauthorized, "authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAdmin rejects requests from non-admin identities. Mount after
// Auth and RequireAuth.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := authctx.FromContext(r.Context())
		if id == nil {
			httpserver.Fail(w, http.StatusUnauthorized, "authentication required")
			return
		}
		if !id.IsAdmin() {
			httpserver.Fail(w, http.StatusForbidden, "admin role required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if h == "" {
		return ""
	}
	const prefix = "Bearer "
	if len(h) > len(prefix) && strings.EqualFold(h[:len(prefix)], prefix) {
		return strings.TrimSpace(h[len(prefix):])
	}
	return ""
}
