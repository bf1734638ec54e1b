package assignment

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/vibeforge/controlplane/internal/apperr"
)

// InstanceLookup resolves instance max_users for the assignment cap check,
// supplied by pkg/instance.Store to avoid an import cycle.
type InstanceLookup interface {
	GetMaxUsers(ctx context.Context, instanceID uuid.UUID) (*int32, error)
}

// Service encapsulates assignment business rules.
type Service struct {
	store     *Store
	instances InstanceLookup
}

// NewService creates an assignment Service.
func NewService(store *Store, instances InstanceLookup) *Service {
	return &Service{store: store, instances: instances}
}

// IsAssigned reports whether userID may use instanceID.
func (s *Service) IsAssigned(ctx context.Context, userID, instanceID uuid.UUID) (bool, error) {
	ok, err := s.store.Exists(ctx, userID, instanceID)
	if err != nil {
		return false, apperr.Internal("checking assignment", err)
	}
	return ok, nil
}

// Assign grants userID access to instanceID. Idempotent: re-assigning an
// already-assigned pair is a no-op. Enforces instance.max_users when set.
func (s *Service) Assign(ctx context.Context, userID, instanceID uuid.UUID, assignedBy *uuid.UUID) (Assignment, bool, error) {
	exists, err := s.store.Exists(ctx, userID, instanceID)
	if err != nil {
		return Assignment{}, false, apperr.Internal("checking assignment", err)
	}
	if exists {
		return Assignment{}, false, nil
	}

	maxUsers, err := s.instances.GetMaxUsers(ctx, instanceID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Assignment{}, false, apperr.NotFound("instance not found")
		}
		return Assignment{}, false, apperr.Internal("loading instance", err)
	}
	if maxUsers != nil {
		count, err := s.store.CountByInstance(ctx, instanceID)
		if err != nil {
			return Assignment{}, false, apperr.Internal("counting assignments", err)
		}
		if int32(count) >= *maxUsers {
			return Assignment{}, false, apperr.Conflict("instance has reached its user limit")
		}
	}

	a, err := s.store.Create(ctx, userID, instanceID, assignedBy)
	if err != nil {
		return Assignment{}, false, apperr.Internal("creating assignment", err)
	}
	return a, true, nil
}

// Unassign removes an assignment. It returns the fallback instance ID that
// should replace user.current_instance_id if the removed instance was the
// user's current one, or nil if no fallback is warranted.
func (s *Service) Unassign(ctx context.Context, userID, instanceID uuid.UUID, currentInstanceID *uuid.UUID) (*uuid.UUID, error) {
	if err := s.store.Delete(ctx, userID, instanceID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("assignment not found")
		}
		return nil, apperr.Internal("deleting assignment", err)
	}

	if currentInstanceID == nil || *currentInstanceID != instanceID {
		return nil, nil
	}

	fallback, err := s.store.FirstRemaining(ctx, userID)
	if err != nil {
		return nil, apperr.Internal("finding fallback instance", err)
	}
	return fallback, nil
}

// ListByUser returns a user's assignments, ordered by assigned_at.
func (s *Service) ListByUser(ctx context.Context, userID uuid.UUID) ([]Assignment, error) {
	rows, err := s.store.ListByUser(ctx, userID)
	if err != nil {
		return nil, apperr.Internal("listing assignments", err)
	}
	return rows, nil
}

// ListByInstance returns the assignments for an instance.
func (s *Service) ListByInstance(ctx context.Context, instanceID uuid.UUID) ([]Assignment, error) {
	rows, err := s.store.ListByInstance(ctx, instanceID)
	if err != nil {
		return nil, apperr.Internal("listing assignments", err)
	}
	return rows, nil
}
