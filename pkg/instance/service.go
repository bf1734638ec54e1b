package instance

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/vibeforge/controlplane/internal/apperr"
	"github.com/vibeforge/controlplane/pkg/user"
)

// AssignmentLookup is the subset of pkg/assignment's Store this package
// depends on, declared here to avoid an import cycle.
type AssignmentLookup interface {
	CountByInstance(ctx context.Context, instanceID uuid.UUID) (int, error)
}

// dataSubdirs are scaffolded under an instance's data directory on create,
// mirroring the layout the workspace binary and agent-config materializer
// expect.
var dataSubdirs = []string{
	"db",
	"config",
	"worktrees",
	"logs",
	"ai-agents/claude-code",
	"ai-agents/codex-cli",
	"ai-agents/gemini-cli",
	"ai-agents/opencode",
}

// Service implements instance CRUD and delegates lifecycle operations to a
// Supervisor.
type Service struct {
	store       *Store
	supervisor  *Supervisor
	assignments AssignmentLookup
	dataRoot    string
	portBase    int
	portMax     int
}

// NewService creates an instance Service.
func NewService(store *Store, supervisor *Supervisor, assignments AssignmentLookup, dataRoot string, portBase, portMax int) *Service {
	return &Service{
		store:       store,
		supervisor:  supervisor,
		assignments: assignments,
		dataRoot:    dataRoot,
		portBase:    portBase,
		portMax:     portMax,
	}
}

// toInfo enriches an Instance with its live assignment count.
func (s *Service) toInfo(ctx context.Context, inst Instance) (Info, error) {
	count, err := s.assignments.CountByInstance(ctx, inst.ID)
	if err != nil {
		return Info{}, fmt.Errorf("counting instance assignments: %w", err)
	}
	return inst.ToInfo(count), nil
}

// Create allocates a port and inserts the instance row in one transaction,
// then scaffolds the data directory. The data directory is created only after
// the row commits, so a failed scaffold can be rolled back by deleting the
// orphaned row without leaving an allocated port behind.
func (s *Service) Create(ctx context.Context, req CreateRequest) (Info, error) {
	id := uuid.New()
	dataDir := filepath.Join(s.dataRoot, id.String())

	inst, err := s.store.Create(ctx, CreateParams{
		Name:        req.Name,
		Description: req.Description,
		AutoStart:   req.AutoStart,
		MaxUsers:    req.MaxUsers,
	}, s.portBase, s.portMax, dataDir)
	if err != nil {
		return Info{}, err
	}

	if err := scaffoldDataDir(dataDir); err != nil {
		_ = s.store.Delete(ctx, inst.ID)
		return Info{}, apperr.Internal("creating instance data directory", err)
	}

	return s.toInfo(ctx, inst)
}

func scaffoldDataDir(dataDir string) error {
	for _, sub := range dataSubdirs {
		if err := os.MkdirAll(filepath.Join(dataDir, sub), 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", sub, err)
		}
	}
	return nil
}

// Get returns a single instance.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Info, error) {
	inst, err := s.store.Get(ctx, id)
	if err != nil {
		return Info{}, notFoundOrErr(err)
	}
	return s.toInfo(ctx, inst)
}

// List returns every instance.
func (s *Service) List(ctx context.Context) ([]Info, error) {
	instances, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Info, 0, len(instances))
	for _, inst := range instances {
		info, err := s.toInfo(ctx, inst)
		if err != nil {
			return nil, err
		}
		out = append(out, info)
	}
	return out, nil
}

// Update edits an instance's mutable fields.
func (s *Service) Update(ctx context.Context, id uuid.UUID, req UpdateRequest) (Info, error) {
	inst, err := s.store.Get(ctx, id)
	if err != nil {
		return Info{}, notFoundOrErr(err)
	}

	name := inst.Name
	if req.Name != nil {
		name = *req.Name
	}
	description := inst.Description
	if req.Description != nil {
		description = req.Description
	}
	autoStart := inst.AutoStart
	if req.AutoStart != nil {
		autoStart = *req.AutoStart
	}
	maxUsers := inst.MaxUsers
	if req.MaxUsers != nil {
		maxUsers = req.MaxUsers
	}

	updated, err := s.store.Update(ctx, id, name, description, autoStart, maxUsers)
	if err != nil {
		return Info{}, notFoundOrErr(err)
	}
	return s.toInfo(ctx, updated)
}

// Delete removes an instance. The instance must be stopped and have no
// remaining user assignments; its data directory is removed from disk.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	inst, err := s.store.Get(ctx, id)
	if err != nil {
		return notFoundOrErr(err)
	}
	if inst.Status != StatusStopped {
		return apperr.Conflict("instance must be stopped before it can be deleted")
	}
	count, err := s.assignments.CountByInstance(ctx, id)
	if err != nil {
		return fmt.Errorf("counting instance assignments: %w", err)
	}
	if count > 0 {
		return apperr.Conflict(fmt.Sprintf("instance still has %d assigned users, unassign them first", count))
	}

	if err := os.RemoveAll(inst.DataDir); err != nil {
		return apperr.Internal("removing instance data directory", err)
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return notFoundOrErr(err)
	}
	return nil
}

// Start, Stop, and Restart delegate to the Supervisor, then return the
// refreshed Info. CheckHealth delegates and returns the probed status.

func (s *Service) Start(ctx context.Context, id uuid.UUID) (Info, error) {
	if err := s.supervisor.Start(ctx, id); err != nil {
		return Info{}, err
	}
	return s.Get(ctx, id)
}

func (s *Service) Stop(ctx context.Context, id uuid.UUID) (Info, error) {
	if err := s.supervisor.Stop(ctx, id); err != nil {
		return Info{}, err
	}
	return s.Get(ctx, id)
}

func (s *Service) Restart(ctx context.Context, id uuid.UUID) (Info, error) {
	if err := s.supervisor.Restart(ctx, id); err != nil {
		return Info{}, err
	}
	return s.Get(ctx, id)
}

func (s *Service) CheckHealth(ctx context.Context, id uuid.UUID) (HealthStatus, error) {
	return s.supervisor.HealthCheck(ctx, id)
}

// GetSummary satisfies user.InstanceLookup.
func (s *Service) GetSummary(ctx context.Context, id uuid.UUID) (user.InstanceSummary, error) {
	inst, err := s.store.Get(ctx, id)
	if err != nil {
		return user.InstanceSummary{}, notFoundOrErr(err)
	}
	count, err := s.assignments.CountByInstance(ctx, id)
	if err != nil {
		return user.InstanceSummary{}, fmt.Errorf("counting instance assignments: %w", err)
	}
	return user.InstanceSummary{ID: inst.ID, Name: inst.Name, UserCount: count}, nil
}

// GetDetails satisfies user.InstanceLookup.
func (s *Service) GetDetails(ctx context.Context, id uuid.UUID) (user.InstanceDetails, error) {
	info, err := s.Get(ctx, id)
	if err != nil {
		return user.InstanceDetails{}, err
	}
	return user.InstanceDetails{
		ID:              info.ID,
		Name:            info.Name,
		Description:     info.Description,
		Port:            info.Port,
		Status:          string(info.Status),
		HealthStatus:    string(info.HealthStatus),
		AutoStart:       info.AutoStart,
		MaxUsers:        info.MaxUsers,
		UserCount:       info.UserCount,
		CreatedAt:       info.CreatedAt,
		LastHealthCheck: info.LastHealthCheck,
		LastError:       info.LastError,
		LastErrorAt:     info.LastErrorAt,
	}, nil
}

// ProbeHealth satisfies user.InstanceLookup: it runs a live health check
// rather than returning the last-recorded status.
func (s *Service) ProbeHealth(ctx context.Context, id uuid.UUID) (string, error) {
	health, err := s.CheckHealth(ctx, id)
	return string(health), err
}

// GetMaxUsers satisfies assignment.InstanceLookup.
func (s *Service) GetMaxUsers(ctx context.Context, id uuid.UUID) (*int32, error) {
	maxUsers, err := s.store.GetMaxUsers(ctx, id)
	if err != nil {
		return nil, notFoundOrErr(err)
	}
	return maxUsers, nil
}

func notFoundOrErr(err error) error {
	if err == pgx.ErrNoRows {
		return apperr.NotFound("instance not found")
	}
	return fmt.Errorf("querying instance: %w", err)
}
