package token

import (
	"net/http/httptest"
	"testing"
	"time"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestIssueValidateRoundTrip(t *testing.T) {
	m, err := NewManager(testSecret)
	if err != nil {
		t.Fatalf("NewManager() error: %v", err)
	}

	claims := Claims{Subject: "user-1", Username: "alice", Role: "admin"}
	signed, err := m.Issue(claims, time.Hour)
	if err != nil {
		t.Fatalf("Issue() error: %v", err)
	}

	got, err := m.Validate(signed)
	if err != nil {
		t.Fatalf("Validate() error: %v", err)
	}
	if got.Subject != claims.Subject || got.Username != claims.Username || got.Role != claims.Role {
		t.Errorf("Validate() = %+v, want %+v", got, claims)
	}
}

func TestValidateRejectsExpiredToken(t *testing.T) {
	m, _ := NewManager(testSecret)

	signed, err := m.Issue(Claims{Subject: "user-1"}, -time.Minute)
	if err != nil {
		t.Fatalf("Issue() error: %v", err)
	}

	if _, err := m.Validate(signed); err == nil {
		t.Error("Validate() should reject an expired token")
	}
}

func TestValidateRejectsWrongKey(t *testing.T) {
	m1, _ := NewManager(testSecret)
	m2, _ := NewManager("fedcba9876543210fedcba9876543210")

	signed, _ := m1.Issue(Claims{Subject: "user-1"}, time.Hour)
	if _, err := m2.Validate(signed); err == nil {
		t.Error("Validate() should reject a token signed with a different key")
	}
}

func TestNewManagerRejectsShortSecret(t *testing.T) {
	if _, err := NewManager("too-short"); err == nil {
		t.Error("NewManager() should reject a secret under 32 bytes")
	}
}

func TestIssueCookieSetsHttpOnlyCookie(t *testing.T) {
	m, _ := NewManager(testSecret)
	rec := httptest.NewRecorder()

	if err := m.IssueCookie(rec, Claims{Subject: "user-1"}, time.Hour); err != nil {
		t.Fatalf("IssueCookie() error: %v", err)
	}

	resp := rec.Result()
	cookies := resp.Cookies()
	if len(cookies) != 1 {
		t.Fatalf("expected 1 cookie, got %d", len(cookies))
	}
	if cookies[0].Name != CookieName {
		t.Errorf("cookie name = %q, want %q", cookies[0].Name, CookieName)
	}
	if !cookies[0].HttpOnly {
		t.Error("cookie should be HttpOnly")
	}
}

func TestClearCookieExpiresImmediately(t *testing.T) {
	m, _ := NewManager(testSecret)
	rec := httptest.NewRecorder()

	m.ClearCookie(rec)

	resp := rec.Result()
	cookies := resp.Cookies()
	if len(cookies) != 1 || cookies[0].MaxAge >= 0 {
		t.Error("ClearCookie() should set MaxAge < 0")
	}
}
