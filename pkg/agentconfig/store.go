package agentconfig

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const configColumns = `id, instance_id, agent_type, is_enabled, api_key_ciphertext, config_json, rate_limit_rpm, created_at, updated_at`

// Store provides database operations for instance AI-agent configs.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates an agentconfig Store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func scanConfig(row pgx.Row) (Config, error) {
	var c Config
	err := row.Scan(
		&c.ID, &c.InstanceID, &c.AgentType, &c.IsEnabled, &c.APIKeyCipher, &c.ConfigJSON, &c.RateLimitRPM,
		&c.CreatedAt, &c.UpdatedAt,
	)
	return c, err
}

func scanConfigs(rows pgx.Rows) ([]Config, error) {
	defer rows.Close()
	var out []Config
	for rows.Next() {
		c, err := scanConfig(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning agent config row: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating agent config rows: %w", err)
	}
	return out, nil
}

// Get returns a single instance's config for one agent type.
func (s *Store) Get(ctx context.Context, instanceID uuid.UUID, agentType AgentType) (Config, error) {
	query := `SELECT ` + configColumns + ` FROM instance_ai_agents WHERE instance_id = $1 AND agent_type = $2`
	return scanConfig(s.pool.QueryRow(ctx, query, instanceID, agentType))
}

// ListByInstance returns every agent config for an instance, ordered by agent_type.
func (s *Store) ListByInstance(ctx context.Context, instanceID uuid.UUID) ([]Config, error) {
	query := `SELECT ` + configColumns + ` FROM instance_ai_agents WHERE instance_id = $1 ORDER BY agent_type`
	rows, err := s.pool.Query(ctx, query, instanceID)
	if err != nil {
		return nil, fmt.Errorf("listing agent configs: %w", err)
	}
	return scanConfigs(rows)
}

// ListEnabledByInstance returns only the enabled agent configs for an
// instance, used to assemble a workspace process's environment.
func (s *Store) ListEnabledByInstance(ctx context.Context, instanceID uuid.UUID) ([]Config, error) {
	query := `SELECT ` + configColumns + ` FROM instance_ai_agents WHERE instance_id = $1 AND is_enabled = true ORDER BY agent_type`
	rows, err := s.pool.Query(ctx, query, instanceID)
	if err != nil {
		return nil, fmt.Errorf("listing enabled agent configs: %w", err)
	}
	return scanConfigs(rows)
}

// UpsertParams holds the fields for creating or updating an agent config.
// A nil APIKeyCipher or ConfigJSON leaves the existing stored value
// untouched, matching the original's COALESCE-on-conflict semantics.
type UpsertParams struct {
	InstanceID   uuid.UUID
	AgentType    AgentType
	IsEnabled    bool
	APIKeyCipher *string
	ConfigJSON   *string
	RateLimitRPM *int32
}

// Upsert creates or updates the (instance_id, agent_type) row.
func (s *Store) Upsert(ctx context.Context, p UpsertParams) (Config, error) {
	query := `INSERT INTO instance_ai_agents (instance_id, agent_type, is_enabled, api_key_ciphertext, config_json, rate_limit_rpm)
	VALUES ($1, $2, $3, $4, $5, $6)
	ON CONFLICT (instance_id, agent_type) DO UPDATE SET
		is_enabled = EXCLUDED.is_enabled,
		api_key_ciphertext = COALESCE(EXCLUDED.api_key_ciphertext, instance_ai_agents.api_key_ciphertext),
		config_json = COALESCE(EXCLUDED.config_json, instance_ai_agents.config_json),
		rate_limit_rpm = COALESCE(EXCLUDED.rate_limit_rpm, instance_ai_agents.rate_limit_rpm),
		updated_at = now()
	RETURNING ` + configColumns
	row := s.pool.QueryRow(ctx, query, p.InstanceID, p.AgentType, p.IsEnabled, p.APIKeyCipher, p.ConfigJSON, p.RateLimitRPM)
	return scanConfig(row)
}

// SetEnabled toggles is_enabled without touching other fields.
func (s *Store) SetEnabled(ctx context.Context, instanceID uuid.UUID, agentType AgentType, enabled bool) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE instance_ai_agents SET is_enabled = $3, updated_at = now() WHERE instance_id = $1 AND agent_type = $2`,
		instanceID, agentType, enabled)
	if err != nil {
		return fmt.Errorf("setting agent enabled state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// Delete removes an instance's config for one agent type.
func (s *Store) Delete(ctx context.Context, instanceID uuid.UUID, agentType AgentType) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM instance_ai_agents WHERE instance_id = $1 AND agent_type = $2`, instanceID, agentType)
	if err != nil {
		return fmt.Errorf("deleting agent config: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
