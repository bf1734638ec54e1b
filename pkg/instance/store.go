package instance

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vibeforge/controlplane/internal/apperr"
)

const instanceColumns = `id, name, description, port, data_dir, status, auto_start, max_users,
	created_at, updated_at, last_health_check, health_status, last_error, last_error_at`

// Store provides database operations for instances.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates an instance Store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func scanInstance(row pgx.Row) (Instance, error) {
	var i Instance
	err := row.Scan(
		&i.ID, &i.Name, &i.Description, &i.Port, &i.DataDir, &i.Status, &i.AutoStart, &i.MaxUsers,
		&i.CreatedAt, &i.UpdatedAt, &i.LastHealthCheck, &i.HealthStatus, &i.LastError, &i.LastErrorAt,
	)
	return i, err
}

func scanInstances(rows pgx.Rows) ([]Instance, error) {
	defer rows.Close()
	var out []Instance
	for rows.Next() {
		i, err := scanInstance(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning instance row: %w", err)
		}
		out = append(out, i)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating instance rows: %w", err)
	}
	return out, nil
}

// Get returns a single instance by ID.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (Instance, error) {
	query := `SELECT ` + instanceColumns + ` FROM instances WHERE id = $1`
	return scanInstance(s.pool.QueryRow(ctx, query, id))
}

// List returns every instance ordered by creation time, most recent first.
func (s *Store) List(ctx context.Context) ([]Instance, error) {
	query := `SELECT ` + instanceColumns + ` FROM instances ORDER BY created_at DESC`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing instances: %w", err)
	}
	return scanInstances(rows)
}

// ListRunning returns every instance whose DB status is "running", used by
// crash recovery on control-plane startup.
func (s *Store) ListRunning(ctx context.Context) ([]Instance, error) {
	query := `SELECT ` + instanceColumns + ` FROM instances WHERE status = $1 ORDER BY created_at`
	rows, err := s.pool.Query(ctx, query, StatusRunning)
	if err != nil {
		return nil, fmt.Errorf("listing running instances: %w", err)
	}
	return scanInstances(rows)
}

// DataDir returns an instance's data directory path, satisfying
// agentconfig.InstanceLookup.
func (s *Store) DataDir(ctx context.Context, id uuid.UUID) (string, error) {
	var dataDir string
	err := s.pool.QueryRow(ctx, `SELECT data_dir FROM instances WHERE id = $1`, id).Scan(&dataDir)
	return dataDir, err
}

// GetMaxUsers satisfies assignment.InstanceLookup.
func (s *Store) GetMaxUsers(ctx context.Context, id uuid.UUID) (*int32, error) {
	var maxUsers *int32
	err := s.pool.QueryRow(ctx, `SELECT max_users FROM instances WHERE id = $1`, id).Scan(&maxUsers)
	return maxUsers, err
}

// CreateParams holds the fields needed to create an instance. Port and
// DataDir are assigned by Create itself.
type CreateParams struct {
	Name        string
	Description *string
	AutoStart   bool
	MaxUsers    *int32
}

// Create allocates the smallest unused port in [portBase, portMax] and
// inserts the instance row in one transaction, so port allocation and
// instance creation race together under the port column's uniqueness
// constraint rather than a separate reservation step.
func (s *Store) Create(ctx context.Context, p CreateParams, portBase, portMax int, dataDir string) (Instance, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Instance{}, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	rows, err := tx.Query(ctx,
		`SELECT port FROM instances WHERE port >= $1 AND port <= $2 ORDER BY port FOR UPDATE`,
		portBase, portMax)
	if err != nil {
		return Instance{}, fmt.Errorf("locking port range: %w", err)
	}
	used := make(map[int]struct{})
	for rows.Next() {
		var p int
		if err := rows.Scan(&p); err != nil {
			rows.Close()
			return Instance{}, fmt.Errorf("scanning used port: %w", err)
		}
		used[p] = struct{}{}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return Instance{}, fmt.Errorf("iterating used ports: %w", err)
	}

	port := -1
	for candidate := portBase; candidate <= portMax; candidate++ {
		if _, taken := used[candidate]; !taken {
			port = candidate
			break
		}
	}
	if port == -1 {
		return Instance{}, apperr.NoAvailablePort()
	}

	query := `INSERT INTO instances (name, description, port, data_dir, status, auto_start, max_users, health_status)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	RETURNING ` + instanceColumns
	row := tx.QueryRow(ctx, query, p.Name, p.Description, port, dataDir, StatusStopped, p.AutoStart, p.MaxUsers, HealthUnknown)
	inst, err := scanInstance(row)
	if err != nil {
		return Instance{}, fmt.Errorf("inserting instance: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return Instance{}, fmt.Errorf("committing transaction: %w", err)
	}
	return inst, nil
}

// Update updates editable fields and returns the updated row.
func (s *Store) Update(ctx context.Context, id uuid.UUID, name string, description *string, autoStart bool, maxUsers *int32) (Instance, error) {
	query := `UPDATE instances
	SET name = $2, description = $3, auto_start = $4, max_users = $5, updated_at = now()
	WHERE id = $1
	RETURNING ` + instanceColumns
	row := s.pool.QueryRow(ctx, query, id, name, description, autoStart, maxUsers)
	return scanInstance(row)
}

// UpdateStatus sets status, optionally recording or clearing last_error.
func (s *Store) UpdateStatus(ctx context.Context, id uuid.UUID, status Status, lastError *string) error {
	var query string
	var args []any
	if lastError != nil {
		query = `UPDATE instances SET status = $2, last_error = $3, last_error_at = now(), updated_at = now() WHERE id = $1`
		args = []any{id, status, *lastError}
	} else {
		query = `UPDATE instances SET status = $2, last_error = NULL, last_error_at = NULL, updated_at = now() WHERE id = $1`
		args = []any{id, status}
	}
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("updating instance status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// UpdateHealth records a health probe result.
func (s *Store) UpdateHealth(ctx context.Context, id uuid.UUID, health HealthStatus, at time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE instances SET health_status = $2, last_health_check = $3, updated_at = now() WHERE id = $1`,
		id, health, at)
	if err != nil {
		return fmt.Errorf("updating instance health: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// Delete removes an instance row.
func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM instances WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting instance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
