package usagestats

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/vibeforge/controlplane/internal/telemetry"
	"github.com/vibeforge/controlplane/pkg/agentconfig"
)

// Service implements usage-counter increments and summaries.
type Service struct {
	store *Store
}

// NewService creates a usagestats Service.
func NewService(store *Store) *Service {
	return &Service{store: store}
}

// Record increments the bucket for (instanceID, agentType, date).
func (s *Service) Record(ctx context.Context, instanceID uuid.UUID, agentType agentconfig.AgentType, date string, req IncrementRequest) (Bucket, error) {
	if _, err := agentconfig.ParseAgentType(string(agentType)); err != nil {
		return Bucket{}, err
	}
	b, err := s.store.IncrementRequest(ctx, instanceID, agentType, date, req.TokenCount, req.IsError)
	if err != nil {
		return Bucket{}, fmt.Errorf("recording usage: %w", err)
	}
	telemetry.UsageRequestsTotal.WithLabelValues(instanceID.String(), string(agentType)).Set(float64(b.RequestCount))
	return b, nil
}

// List returns every bucket for an instance, optionally restricted to a date range.
func (s *Service) List(ctx context.Context, instanceID uuid.UUID, startDate, endDate string) ([]Bucket, error) {
	if startDate == "" && endDate == "" {
		return s.store.ListByInstance(ctx, instanceID)
	}
	return s.store.ListByInstanceDateRange(ctx, instanceID, startDate, endDate)
}

// Summary aggregates an instance's usage across agent types for the given
// date range (empty bounds mean unbounded).
func (s *Service) Summary(ctx context.Context, instanceID uuid.UUID, startDate, endDate string) (InstanceSummary, error) {
	byAgent, err := s.store.Summarize(ctx, instanceID, startDate, endDate)
	if err != nil {
		return InstanceSummary{}, err
	}

	summary := InstanceSummary{InstanceID: instanceID, StatsByAgent: byAgent}
	for _, a := range byAgent {
		summary.TotalRequests += a.RequestCount
		summary.TotalTokens += a.TokenCount
		summary.TotalErrors += a.ErrorCount
	}
	return summary, nil
}
