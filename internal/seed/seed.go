// Package seed implements the seed-admin mode: an idempotent bootstrap that
// ensures one admin user exists so an operator can log in on a fresh
// deployment.
package seed

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vibeforge/controlplane/internal/apperr"
	"github.com/vibeforge/controlplane/pkg/assignment"
	"github.com/vibeforge/controlplane/pkg/instance"
	"github.com/vibeforge/controlplane/pkg/session"
	"github.com/vibeforge/controlplane/pkg/user"
)

// instanceLookup adapts instance.Store and assignment.Store to satisfy
// user.InstanceLookup for the seed-admin path. CreateUser never resolves
// instance details or health on this path, so GetDetails/ProbeHealth are
// never actually called; they exist only to satisfy the interface.
type instanceLookup struct {
	instances   *instance.Store
	assignments *assignment.Store
}

func (l instanceLookup) GetSummary(ctx context.Context, id uuid.UUID) (user.InstanceSummary, error) {
	inst, err := l.instances.Get(ctx, id)
	if err != nil {
		return user.InstanceSummary{}, err
	}
	count, err := l.assignments.CountByInstance(ctx, id)
	if err != nil {
		return user.InstanceSummary{}, err
	}
	return user.InstanceSummary{ID: inst.ID, Name: inst.Name, UserCount: count}, nil
}

func (l instanceLookup) GetDetails(ctx context.Context, id uuid.UUID) (user.InstanceDetails, error) {
	return user.InstanceDetails{}, apperr.Internal("instance details unavailable during seeding", nil)
}

func (l instanceLookup) ProbeHealth(ctx context.Context, id uuid.UUID) (string, error) {
	return "", apperr.Internal("health checks unavailable during seeding", nil)
}

// Run creates the admin user named by username/password if it does not
// already exist. Run is safe to invoke repeatedly: an existing username is
// treated as success, not an error.
func Run(ctx context.Context, pool *pgxpool.Pool, username, password string, logger *slog.Logger) error {
	if password == "" {
		return fmt.Errorf("SEED_ADMIN_PASSWORD must be set")
	}

	userStore := user.NewStore(pool)
	instanceStore := instance.NewStore(pool)
	assignmentStore := assignment.NewStore(pool)

	// session.Service and assignment.Service are required by user.NewService's
	// signature but unused on this path; instanceStore satisfies
	// assignment.InstanceLookup directly, and instanceLookup above adapts it
	// (plus assignmentStore) to user.InstanceLookup.
	sessions := session.NewService(session.NewStore(pool), nil, userStore, session.Config{})
	assignments := assignment.NewService(assignmentStore, instanceStore)
	users := user.NewService(userStore, sessions, assignments, instanceLookup{instances: instanceStore, assignments: assignmentStore})

	adminRole := user.RoleAdmin
	_, err := users.CreateUser(ctx, user.CreateUserRequest{
		Username: username,
		Password: password,
		Role:     &adminRole,
	})
	if err != nil {
		if e, ok := apperr.As(err); ok && e.Kind == apperr.KindConflict {
			logger.Info("seed-admin: admin user already exists, skipping", "username", username)
			return nil
		}
		return fmt.Errorf("creating admin user: %w", err)
	}

	logger.Info("seed-admin: created admin user", "username", username)
	return nil
}
