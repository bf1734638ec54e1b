package user

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vibeforge/controlplane/pkg/session"
)

const userColumns = `id, username, email, password_hash, display_name, role, current_instance_id, is_active, created_at, updated_at, last_login_at`

// Store provides database operations for users.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a user Store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func scanUser(row pgx.Row) (User, error) {
	var u User
	err := row.Scan(
		&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.DisplayName, &u.Role,
		&u.CurrentInstanceID, &u.IsActive, &u.CreatedAt, &u.UpdatedAt, &u.LastLoginAt,
	)
	return u, err
}

func scanUsers(rows pgx.Rows) ([]User, error) {
	defer rows.Close()
	var out []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning user row: %w", err)
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating user rows: %w", err)
	}
	return out, nil
}

// Get returns a single user by ID.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUser(s.pool.QueryRow(ctx, query, id))
}

// GetByUsername returns a single user by username.
func (s *Store) GetByUsername(ctx context.Context, username string) (User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE username = $1`
	return scanUser(s.pool.QueryRow(ctx, query, username))
}

// GetActiveSummary satisfies session.UserLookup.
func (s *Store) GetActiveSummary(ctx context.Context, id uuid.UUID) (session.UserSummary, error) {
	var sum session.UserSummary
	err := s.pool.QueryRow(ctx,
		`SELECT id, username, role, is_active FROM users WHERE id = $1`, id,
	).Scan(&sum.ID, &sum.Username, &sum.Role, &sum.IsActive)
	return sum, err
}

// List returns every user ordered by username.
func (s *Store) List(ctx context.Context) ([]User, error) {
	query := `SELECT ` + userColumns + ` FROM users ORDER BY username`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	return scanUsers(rows)
}

// ExistsByUsername reports whether a username is already taken.
func (s *Store) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM users WHERE username = $1)`, username,
	).Scan(&exists)
	return exists, err
}

// ExistsByEmail reports whether an email is already taken.
func (s *Store) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM users WHERE email = $1)`, email,
	).Scan(&exists)
	return exists, err
}

// CreateParams holds the fields needed to create a user.
type CreateParams struct {
	Username     string
	Email        *string
	PasswordHash string
	DisplayName  *string
	Role         string
}

// Create inserts a new user.
func (s *Store) Create(ctx context.Context, p CreateParams) (User, error) {
	query := `INSERT INTO users (username, email, password_hash, display_name, role)
	VALUES ($1, $2, $3, $4, $5)
	RETURNING ` + userColumns
	row := s.pool.QueryRow(ctx, query, p.Username, p.Email, p.PasswordHash, p.DisplayName, p.Role)
	return scanUser(row)
}

// UpdateParams holds the editable profile fields for admin updates.
type UpdateParams struct {
	Email       *string
	DisplayName *string
	Role        string
}

// Update updates a user's profile fields and returns the updated row.
func (s *Store) Update(ctx context.Context, id uuid.UUID, p UpdateParams) (User, error) {
	query := `UPDATE users
	SET email = $2, display_name = $3, role = $4, updated_at = now()
	WHERE id = $1
	RETURNING ` + userColumns
	row := s.pool.QueryRow(ctx, query, id, p.Email, p.DisplayName, p.Role)
	return scanUser(row)
}

// UpdatePassword sets a new password hash.
func (s *Store) UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE users SET password_hash = $2, updated_at = now() WHERE id = $1`, id, passwordHash)
	if err != nil {
		return fmt.Errorf("updating password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// UpdateCurrentInstance sets or clears a user's current_instance_id.
func (s *Store) UpdateCurrentInstance(ctx context.Context, id uuid.UUID, instanceID *uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE users SET current_instance_id = $2, updated_at = now() WHERE id = $1`, id, instanceID)
	if err != nil {
		return fmt.Errorf("updating current instance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// UpdateLastLogin stamps last_login_at to now.
func (s *Store) UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := s.pool.Exec(ctx, `UPDATE users SET last_login_at = $2 WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("updating last login: %w", err)
	}
	return nil
}

// SetActive activates or deactivates a user.
func (s *Store) SetActive(ctx context.Context, id uuid.UUID, isActive bool) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE users SET is_active = $2, updated_at = now() WHERE id = $1`, id, isActive)
	if err != nil {
		return fmt.Errorf("setting user active state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// Delete removes a user. Assignments and sessions cascade via foreign keys.
func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
