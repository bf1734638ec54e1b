// Package session implements the server-side half of the control plane's
// hybrid auth model: a signed token (internal/token) proves who signed in
// and when, but liveness, revocation, and sliding-refresh all live here in
// the session row, grounded on original_source's db/models/user_session.rs
// and services/user_manager.rs verify_session.
package session

import (
	"time"

	"github.com/google/uuid"
)

// Session is a live server-side record of an issued token.
type Session struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	TokenHash string // SHA-256 hex of the raw signed token
	ExpiresAt time.Time
	CreatedAt time.Time
	IPAddress *string
	UserAgent *string
}

// IsExpired reports whether the session has passed its expiry at the given time.
func (s Session) IsExpired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// NeedsRefresh reports whether the session has less than threshold remaining.
func (s Session) NeedsRefresh(now time.Time, threshold time.Duration) bool {
	return s.ExpiresAt.Sub(now) < threshold
}
