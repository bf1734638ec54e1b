package proxy

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/vibeforge/controlplane/internal/token"
)

func TestBearerOrCookiePrefersAuthorizationHeader(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer abc123")
	r.AddCookie(&http.Cookie{Name: token.CookieName, Value: "cookie-token"})

	if got := bearerOrCookie(r); got != "abc123" {
		t.Errorf("bearerOrCookie() = %q, want %q", got, "abc123")
	}
}

func TestBearerOrCookieFallsBackToCookie(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.AddCookie(&http.Cookie{Name: token.CookieName, Value: "cookie-token"})

	if got := bearerOrCookie(r); got != "cookie-token" {
		t.Errorf("bearerOrCookie() = %q, want %q", got, "cookie-token")
	}
}

func TestBearerOrCookieEmptyWhenNeitherPresent(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)

	if got := bearerOrCookie(r); got != "" {
		t.Errorf("bearerOrCookie() = %q, want empty string", got)
	}
}
