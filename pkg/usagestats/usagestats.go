// Package usagestats tracks per-instance, per-agent daily request/token/error
// counters. Grounded on original_source's db/models/instance_usage_stats.rs.
package usagestats

import (
	"github.com/google/uuid"

	"github.com/vibeforge/controlplane/pkg/agentconfig"
)

// Bucket is one (instance, agent_type, date) counter row.
type Bucket struct {
	ID           uuid.UUID
	InstanceID   uuid.UUID
	AgentType    agentconfig.AgentType
	Date         string // YYYY-MM-DD
	RequestCount int64
	TokenCount   int64
	ErrorCount   int64
}

// IncrementRequest is the payload external agents post to record one
// completed request against a bucket.
type IncrementRequest struct {
	TokenCount int64 `json:"token_count"`
	IsError    bool  `json:"is_error"`
}

// AgentSummary aggregates a date range's counters for one agent type.
type AgentSummary struct {
	AgentType    agentconfig.AgentType `json:"agent_type"`
	RequestCount int64                 `json:"request_count"`
	TokenCount   int64                 `json:"token_count"`
	ErrorCount   int64                 `json:"error_count"`
}

// InstanceSummary aggregates a date range's counters across all agent types
// for one instance.
type InstanceSummary struct {
	InstanceID    uuid.UUID      `json:"instance_id"`
	TotalRequests int64          `json:"total_requests"`
	TotalTokens   int64          `json:"total_tokens"`
	TotalErrors   int64          `json:"total_errors"`
	StatsByAgent  []AgentSummary `json:"stats_by_agent"`
}
