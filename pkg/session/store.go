package session

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const sessionColumns = `id, user_id, token_hash, expires_at, created_at, ip_address, user_agent`

// Store provides database operations for sessions.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a session Store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func scanSession(row pgx.Row) (Session, error) {
	var s Session
	err := row.Scan(&s.ID, &s.UserID, &s.TokenHash, &s.ExpiresAt, &s.CreatedAt, &s.IPAddress, &s.UserAgent)
	return s, err
}

func scanSessions(rows pgx.Rows) ([]Session, error) {
	defer rows.Close()
	var out []Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning session row: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating session rows: %w", err)
	}
	return out, nil
}

// CreateParams holds parameters for creating a session.
type CreateParams struct {
	UserID    uuid.UUID
	TokenHash string
	ExpiresAt time.Time
	IPAddress *string
	UserAgent *string
}

// Create inserts a new session row.
func (s *Store) Create(ctx context.Context, p CreateParams) (Session, error) {
	query := `INSERT INTO user_sessions (user_id, token_hash, expires_at, ip_address, user_agent)
	VALUES ($1, $2, $3, $4, $5)
	RETURNING ` + sessionColumns
	row := s.pool.QueryRow(ctx, query, p.UserID, p.TokenHash, p.ExpiresAt, p.IPAddress, p.UserAgent)
	return scanSession(row)
}

// GetByTokenHash returns the session matching a token hash, regardless of expiry.
func (s *Store) GetByTokenHash(ctx context.Context, tokenHash string) (Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM user_sessions WHERE token_hash = $1`
	row := s.pool.QueryRow(ctx, query, tokenHash)
	return scanSession(row)
}

// ListByUser returns all sessions for a user, most recent first.
func (s *Store) ListByUser(ctx context.Context, userID uuid.UUID) ([]Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM user_sessions WHERE user_id = $1 ORDER BY created_at DESC`
	rows, err := s.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	return scanSessions(rows)
}

// Extend updates a session's expiry (sliding refresh).
func (s *Store) Extend(ctx context.Context, id uuid.UUID, expiresAt time.Time) error {
	tag, err := s.pool.Exec(ctx, `UPDATE user_sessions SET expires_at = $2 WHERE id = $1`, id, expiresAt)
	if err != nil {
		return fmt.Errorf("extending session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// DeleteByTokenHash removes a session by token hash (logout).
func (s *Store) DeleteByTokenHash(ctx context.Context, tokenHash string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM user_sessions WHERE token_hash = $1`, tokenHash)
	if err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	return nil
}

// DeleteAllByUser removes every session for a user (password change, deactivation, deletion).
func (s *Store) DeleteAllByUser(ctx context.Context, userID uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM user_sessions WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("deleting user sessions: %w", err)
	}
	return nil
}

// CleanupExpired deletes every session past its expiry and returns the count removed.
func (s *Store) CleanupExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM user_sessions WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("cleaning up expired sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}

// CountByUser returns the number of live sessions for a user.
func (s *Store) CountByUser(ctx context.Context, userID uuid.UUID) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `SELECT count(*) FROM user_sessions WHERE user_id = $1`, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting sessions: %w", err)
	}
	return count, nil
}

// LimitUserSessions deletes the oldest sessions for a user beyond maxSessions,
// keeping the most recently created maxSessions rows.
func (s *Store) LimitUserSessions(ctx context.Context, userID uuid.UUID, maxSessions int32) error {
	query := `DELETE FROM user_sessions WHERE id IN (
		SELECT id FROM user_sessions WHERE user_id = $1
		ORDER BY created_at DESC OFFSET $2
	)`
	_, err := s.pool.Exec(ctx, query, userID, maxSessions)
	if err != nil {
		return fmt.Errorf("limiting user sessions: %w", err)
	}
	return nil
}
