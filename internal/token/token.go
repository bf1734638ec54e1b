// Package token issues and validates the signed access tokens handed out at
// login. A token proves who signed in and when, but it is not itself the
// source of truth for whether a session is still alive: that lives in the
// session table behind pkg/session, which tracks expiry, sliding refresh,
// and revocation. This package only knows how to mint and verify the HMAC
// signature and the claims it wraps.
package token

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
)

// CookieName is the cookie the control plane issues on login and expects on
// authenticated requests when a bearer token isn't supplied instead.
const CookieName = "auth_token"

const issuer = "controlplane"

// Claims are the claims embedded in a signed access token.
type Claims struct {
	Subject  string `json:"sub"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

// Manager issues and validates self-signed HS256 tokens.
type Manager struct {
	signingKey []byte
}

// NewManager creates a token manager. The secret must be at least 32 bytes.
func NewManager(secret string) (*Manager, error) {
	if len(secret) < 32 {
		return nil, fmt.Errorf("token secret must be at least 32 bytes, got %d", len(secret))
	}
	return &Manager{signingKey: []byte(secret)}, nil
}

// Issue creates a signed token for claims, valid for ttl.
func (m *Manager) Issue(claims Claims, ttl time.Duration) (string, error) {
	signer, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.HS256, Key: m.signingKey},
		(&jose.SignerOptions{}).WithType("JWT"),
	)
	if err != nil {
		return "", fmt.Errorf("creating signer: %w", err)
	}

	now := time.Now()
	registered := jwt.Claims{
		Subject:   claims.Subject,
		IssuedAt:  jwt.NewNumericDate(now),
		Expiry:    jwt.NewNumericDate(now.Add(ttl)),
		NotBefore: jwt.NewNumericDate(now),
		Issuer:    issuer,
	}

	signed, err := jwt.Signed(signer).Claims(registered).Claims(claims).Serialize()
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

// Validate verifies the token's signature and expiry and returns its claims.
func (m *Manager) Validate(raw string) (*Claims, error) {
	tok, err := jwt.ParseSigned(raw, []jose.SignatureAlgorithm{jose.HS256})
	if err != nil {
		return nil, fmt.Errorf("parsing token: %w", err)
	}

	var registered jwt.Claims
	var custom Claims
	if err := tok.Claims(m.signingKey, &registered, &custom); err != nil {
		return nil, fmt.Errorf("verifying token: %w", err)
	}

	if err := registered.ValidateWithLeeway(jwt.Expected{
		Issuer: issuer,
		Time:   time.Now(),
	}, 5*time.Second); err != nil {
		return nil, fmt.Errorf("validating claims: %w", err)
	}

	return &custom, nil
}

// IssueCookie signs a token and sets it as an HttpOnly cookie.
func (m *Manager) IssueCookie(w http.ResponseWriter, claims Claims, ttl time.Duration) error {
	signed, err := m.Issue(claims, ttl)
	if err != nil {
		return err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    signed,
		Path:     "/",
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(ttl.Seconds()),
	})
	return nil
}

// ClearCookie removes the auth cookie.
func (m *Manager) ClearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}
