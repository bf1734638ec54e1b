package usagestats

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vibeforge/controlplane/pkg/agentconfig"
)

const bucketColumns = `id, instance_id, agent_type, date, request_count, token_count, error_count`

// Store provides database operations for usage-stats buckets.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a usagestats Store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func scanBucket(row pgx.Row) (Bucket, error) {
	var b Bucket
	err := row.Scan(&b.ID, &b.InstanceID, &b.AgentType, &b.Date, &b.RequestCount, &b.TokenCount, &b.ErrorCount)
	return b, err
}

func scanBuckets(rows pgx.Rows) ([]Bucket, error) {
	defer rows.Close()
	var out []Bucket
	for rows.Next() {
		b, err := scanBucket(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning usage stats row: %w", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating usage stats rows: %w", err)
	}
	return out, nil
}

// IncrementRequest upserts the (instance_id, agent_type, date) bucket,
// adding 1 to request_count, tokenCount to token_count, and 1 to
// error_count when isError, then returns the updated row.
func (s *Store) IncrementRequest(ctx context.Context, instanceID uuid.UUID, agentType agentconfig.AgentType, date string, tokenCount int64, isError bool) (Bucket, error) {
	var errInc int64
	if isError {
		errInc = 1
	}

	query := `INSERT INTO instance_usage_stats (instance_id, agent_type, date, request_count, token_count, error_count)
	VALUES ($1, $2, $3, 1, $4, $5)
	ON CONFLICT (instance_id, agent_type, date) DO UPDATE SET
		request_count = instance_usage_stats.request_count + 1,
		token_count = instance_usage_stats.token_count + EXCLUDED.token_count,
		error_count = instance_usage_stats.error_count + EXCLUDED.error_count
	RETURNING ` + bucketColumns
	row := s.pool.QueryRow(ctx, query, instanceID, agentType, date, tokenCount, errInc)
	return scanBucket(row)
}

// ListByInstance returns every bucket for an instance, most recent date first.
func (s *Store) ListByInstance(ctx context.Context, instanceID uuid.UUID) ([]Bucket, error) {
	query := `SELECT ` + bucketColumns + ` FROM instance_usage_stats WHERE instance_id = $1 ORDER BY date DESC, agent_type`
	rows, err := s.pool.Query(ctx, query, instanceID)
	if err != nil {
		return nil, fmt.Errorf("listing usage stats: %w", err)
	}
	return scanBuckets(rows)
}

// ListByInstanceDateRange returns buckets for an instance within [startDate, endDate].
func (s *Store) ListByInstanceDateRange(ctx context.Context, instanceID uuid.UUID, startDate, endDate string) ([]Bucket, error) {
	query := `SELECT ` + bucketColumns + ` FROM instance_usage_stats
	WHERE instance_id = $1 AND date >= $2 AND date <= $3
	ORDER BY date DESC, agent_type`
	rows, err := s.pool.Query(ctx, query, instanceID, startDate, endDate)
	if err != nil {
		return nil, fmt.Errorf("listing usage stats by date range: %w", err)
	}
	return scanBuckets(rows)
}

// Summarize aggregates an instance's buckets by agent type, optionally
// restricted to [startDate, endDate] (empty strings mean unbounded).
func (s *Store) Summarize(ctx context.Context, instanceID uuid.UUID, startDate, endDate string) ([]AgentSummary, error) {
	query := `SELECT agent_type, SUM(request_count), SUM(token_count), SUM(error_count)
	FROM instance_usage_stats
	WHERE instance_id = $1`
	args := []any{instanceID}
	if startDate != "" {
		args = append(args, startDate)
		query += fmt.Sprintf(" AND date >= $%d", len(args))
	}
	if endDate != "" {
		args = append(args, endDate)
		query += fmt.Sprintf(" AND date <= $%d", len(args))
	}
	query += " GROUP BY agent_type ORDER BY agent_type"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("summarizing usage stats: %w", err)
	}
	defer rows.Close()

	var out []AgentSummary
	for rows.Next() {
		var a AgentSummary
		if err := rows.Scan(&a.AgentType, &a.RequestCount, &a.TokenCount, &a.ErrorCount); err != nil {
			return nil, fmt.Errorf("scanning usage stats summary row: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating usage stats summary rows: %w", err)
	}
	return out, nil
}

// DeleteByInstance removes every bucket belonging to an instance, used when
// the instance itself is deleted.
func (s *Store) DeleteByInstance(ctx context.Context, instanceID uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM instance_usage_stats WHERE instance_id = $1`, instanceID)
	if err != nil {
		return fmt.Errorf("deleting usage stats: %w", err)
	}
	return nil
}

// DeleteBeforeDate removes buckets older than a retention cutoff.
func (s *Store) DeleteBeforeDate(ctx context.Context, beforeDate string) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM instance_usage_stats WHERE date < $1`, beforeDate)
	if err != nil {
		return 0, fmt.Errorf("pruning usage stats: %w", err)
	}
	return tag.RowsAffected(), nil
}
