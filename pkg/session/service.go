package session

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/vibeforge/controlplane/internal/apperr"
	"github.com/vibeforge/controlplane/internal/authctx"
	"github.com/vibeforge/controlplane/internal/token"
)

// UserSummary is the minimal user projection the session service needs to
// build an Identity and to enforce the is_active invariant, supplied by
// pkg/user.Store to avoid a package import cycle.
type UserSummary struct {
	ID       uuid.UUID
	Username string
	Role     string
	IsActive bool
}

// UserLookup resolves a user by ID for session verification.
type UserLookup interface {
	GetActiveSummary(ctx context.Context, id uuid.UUID) (UserSummary, error)
}

// Clock is an injectable time source, overridden in tests.
type Clock func() time.Time

// Service issues and verifies sessions atop a signed token.
type Service struct {
	store              *Store
	tokens             *token.Manager
	users              UserLookup
	now                Clock
	ttl                time.Duration
	refreshThreshold   time.Duration
	maxSessionsPerUser int32
}

// Config configures a session Service.
type Config struct {
	TTL                time.Duration
	RefreshThreshold   time.Duration
	MaxSessionsPerUser int32
}

// NewService creates a session Service.
func NewService(store *Store, tokens *token.Manager, users UserLookup, cfg Config) *Service {
	return &Service{
		store:              store,
		tokens:             tokens,
		users:              users,
		now:                time.Now,
		ttl:                cfg.TTL,
		refreshThreshold:   cfg.RefreshThreshold,
		maxSessionsPerUser: cfg.MaxSessionsPerUser,
	}
}

// WithClock overrides the service's time source, for tests.
func (s *Service) WithClock(clock Clock) *Service {
	s.now = clock
	return s
}

// HashToken returns the SHA-256 hex digest stored as Session.TokenHash.
func HashToken(raw string) string {
	h := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(h[:])
}

// Issued is the result of creating a new session: a signed token for the
// client plus the server-side row it was backed by.
type Issued struct {
	Token   string
	Session Session
}

// Create signs a fresh token for user and records its session row, pruning
// the oldest session if the user is already at MaxSessionsPerUser.
func (s *Service) Create(ctx context.Context, u UserSummary, ipAddress, userAgent *string) (Issued, error) {
	signed, err := s.tokens.Issue(token.Claims{
		Subject:  u.ID.String(),
		Username: u.Username,
		Role:     u.Role,
	}, s.ttl)
	if err != nil {
		return Issued{}, apperr.Internal("signing session token", err)
	}

	now := s.now()
	row, err := s.store.Create(ctx, CreateParams{
		UserID:    u.ID,
		TokenHash: HashToken(signed),
		ExpiresAt: now.Add(s.ttl),
		IPAddress: ipAddress,
		UserAgent: userAgent,
	})
	if err != nil {
		return Issued{}, apperr.Internal("creating session", err)
	}

	if s.maxSessionsPerUser > 0 {
		if err := s.store.LimitUserSessions(ctx, u.ID, s.maxSessionsPerUser); err != nil {
			return Issued{}, apperr.Internal("pruning old sessions", err)
		}
	}

	return Issued{Token: signed, Session: row}, nil
}

// VerifySession implements the five-step contract: verify signature and
// expiry, look up the session row, require the user active, slide the
// expiry forward if within the refresh window, and return an Identity.
func (s *Service) VerifySession(ctx context.Context, rawToken string) (*authctx.Identity, error) {
	claims, err := s.tokens.Validate(rawToken)
	if err != nil {
		return nil, apperr.Unauthorized("invalid or expired token")
	}

	tokenHash := HashToken(rawToken)
	row, err := s.store.GetByTokenHash(ctx, tokenHash)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.Unauthorized("session not found")
		}
		return nil, apperr.Internal("looking up session", err)
	}

	now := s.now()
	if row.IsExpired(now) {
		return nil, apperr.Unauthorized("session expired")
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, apperr.Unauthorized("malformed token subject")
	}

	u, err := s.users.GetActiveSummary(ctx, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.Unauthorized("user not found")
		}
		return nil, apperr.Internal("looking up user", err)
	}
	if !u.IsActive {
		return nil, apperr.Unauthorized("user is deactivated")
	}

	if row.NeedsRefresh(now, s.refreshThreshold) {
		if err := s.store.Extend(ctx, row.ID, now.Add(s.ttl)); err != nil {
			return nil, apperr.Internal("refreshing session", err)
		}
	}

	return &authctx.Identity{UserID: u.ID, Username: u.Username, Role: u.Role}, nil
}

// Logout deletes the session backing rawToken.
func (s *Service) Logout(ctx context.Context, rawToken string) error {
	if err := s.store.DeleteByTokenHash(ctx, HashToken(rawToken)); err != nil {
		return apperr.Internal("deleting session", err)
	}
	return nil
}

// LogoutAll deletes every session for a user (password change, deactivation, deletion).
func (s *Service) LogoutAll(ctx context.Context, userID uuid.UUID) error {
	if err := s.store.DeleteAllByUser(ctx, userID); err != nil {
		return apperr.Internal("deleting user sessions", err)
	}
	return nil
}

// CleanupExpired sweeps all expired sessions and returns the count removed.
// Intended to be called periodically from worker mode.
func (s *Service) CleanupExpired(ctx context.Context) (int64, error) {
	n, err := s.store.CleanupExpired(ctx, s.now())
	if err != nil {
		return 0, apperr.Internal("cleaning up expired sessions", err)
	}
	return n, nil
}
