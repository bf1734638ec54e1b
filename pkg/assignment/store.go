package assignment

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const assignmentColumns = `id, user_id, instance_id, assigned_by, assigned_at`

// Store provides database operations for user↔instance assignments.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates an assignment Store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func scanAssignment(row pgx.Row) (Assignment, error) {
	var a Assignment
	err := row.Scan(&a.ID, &a.UserID, &a.InstanceID, &a.AssignedBy, &a.AssignedAt)
	return a, err
}

func scanAssignments(rows pgx.Rows) ([]Assignment, error) {
	defer rows.Close()
	var out []Assignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning assignment row: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating assignment rows: %w", err)
	}
	return out, nil
}

// Exists reports whether (userID, instanceID) is an assigned pair.
func (s *Store) Exists(ctx context.Context, userID, instanceID uuid.UUID) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM user_instance_assignments WHERE user_id = $1 AND instance_id = $2)`,
		userID, instanceID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking assignment: %w", err)
	}
	return exists, nil
}

// Create inserts a new assignment. Callers should check Exists first for
// idempotent assignment semantics.
func (s *Store) Create(ctx context.Context, userID, instanceID uuid.UUID, assignedBy *uuid.UUID) (Assignment, error) {
	query := `INSERT INTO user_instance_assignments (user_id, instance_id, assigned_by)
	VALUES ($1, $2, $3)
	RETURNING ` + assignmentColumns
	row := s.pool.QueryRow(ctx, query, userID, instanceID, assignedBy)
	return scanAssignment(row)
}

// Delete removes an assignment by (userID, instanceID).
func (s *Store) Delete(ctx context.Context, userID, instanceID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM user_instance_assignments WHERE user_id = $1 AND instance_id = $2`,
		userID, instanceID)
	if err != nil {
		return fmt.Errorf("deleting assignment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// ListByUser returns every instance a user is assigned to.
func (s *Store) ListByUser(ctx context.Context, userID uuid.UUID) ([]Assignment, error) {
	query := `SELECT ` + assignmentColumns + ` FROM user_instance_assignments WHERE user_id = $1 ORDER BY assigned_at`
	rows, err := s.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("listing assignments by user: %w", err)
	}
	return scanAssignments(rows)
}

// ListByInstance returns every user assigned to an instance.
func (s *Store) ListByInstance(ctx context.Context, instanceID uuid.UUID) ([]Assignment, error) {
	query := `SELECT ` + assignmentColumns + ` FROM user_instance_assignments WHERE instance_id = $1 ORDER BY assigned_at`
	rows, err := s.pool.Query(ctx, query, instanceID)
	if err != nil {
		return nil, fmt.Errorf("listing assignments by instance: %w", err)
	}
	return scanAssignments(rows)
}

// CountByInstance returns the number of users assigned to an instance, used
// to enforce instance.max_users.
func (s *Store) CountByInstance(ctx context.Context, instanceID uuid.UUID) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM user_instance_assignments WHERE instance_id = $1`, instanceID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting assignments: %w", err)
	}
	return count, nil
}

// FirstRemaining returns the most recently assigned remaining instance for a
// user, used for current_instance_id fallback selection (deterministic:
// first by assigned_at desc).
func (s *Store) FirstRemaining(ctx context.Context, userID uuid.UUID) (*uuid.UUID, error) {
	var instanceID uuid.UUID
	err := s.pool.QueryRow(ctx,
		`SELECT instance_id FROM user_instance_assignments WHERE user_id = $1 ORDER BY assigned_at DESC LIMIT 1`,
		userID,
	).Scan(&instanceID)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("finding fallback assignment: %w", err)
	}
	return &instanceID, nil
}
