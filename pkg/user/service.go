package user

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/vibeforge/controlplane/internal/apperr"
	"github.com/vibeforge/controlplane/internal/passwordhash"
	"github.com/vibeforge/controlplane/pkg/assignment"
	"github.com/vibeforge/controlplane/pkg/session"
)

// InstanceSummary is the minimal instance projection the user service needs
// to enrich login/me/switch-instance responses, supplied by pkg/instance to
// avoid an import cycle.
type InstanceSummary struct {
	ID        uuid.UUID
	Name      string
	UserCount int
}

// InstanceDetails is the full instance projection for GET
// /my-instances/current, supplied by pkg/instance.Service to avoid an
// import cycle.
type InstanceDetails struct {
	ID              uuid.UUID
	Name            string
	Description     *string
	Port            int
	Status          string
	HealthStatus    string
	AutoStart       bool
	MaxUsers        *int32
	UserCount       int
	CreatedAt       time.Time
	LastHealthCheck *time.Time
	LastError       *string
	LastErrorAt     *time.Time
}

// InstanceLookup resolves instance summaries and, for the caller's current
// instance, full details and a live health probe.
type InstanceLookup interface {
	GetSummary(ctx context.Context, id uuid.UUID) (InstanceSummary, error)
	GetDetails(ctx context.Context, id uuid.UUID) (InstanceDetails, error)
	ProbeHealth(ctx context.Context, id uuid.UUID) (string, error)
}

// Service implements registration, authentication, and account/assignment
// management.
type Service struct {
	store       *Store
	sessions    *session.Service
	assignments *assignment.Service
	instances   InstanceLookup
}

// NewService creates a user Service.
func NewService(store *Store, sessions *session.Service, assignments *assignment.Service, instances InstanceLookup) *Service {
	return &Service{store: store, sessions: sessions, assignments: assignments, instances: instances}
}

func (s *Service) create(ctx context.Context, username, password string, email, displayName *string, role string) (Info, error) {
	taken, err := s.store.ExistsByUsername(ctx, username)
	if err != nil {
		return Info{}, apperr.Internal("checking username", err)
	}
	if taken {
		return Info{}, apperr.Conflict("username already taken")
	}
	if email != nil {
		taken, err := s.store.ExistsByEmail(ctx, *email)
		if err != nil {
			return Info{}, apperr.Internal("checking email", err)
		}
		if taken {
			return Info{}, apperr.Conflict("email already in use")
		}
	}

	hash, err := passwordhash.Hash(password)
	if err != nil {
		return Info{}, apperr.Internal("hashing password", err)
	}

	u, err := s.store.Create(ctx, CreateParams{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		DisplayName:  displayName,
		Role:         role,
	})
	if err != nil {
		return Info{}, apperr.Internal("creating user", err)
	}
	return u.ToInfo(), nil
}

// Register creates a new account with role "user", for POST /auth/register.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (Info, error) {
	return s.create(ctx, req.Username, req.Password, req.Email, req.DisplayName, RoleUser)
}

// CreateUser creates a user with an admin-chosen role, for POST /users.
func (s *Service) CreateUser(ctx context.Context, req CreateUserRequest) (Info, error) {
	role := RoleUser
	if req.Role != nil {
		role = *req.Role
	}
	return s.create(ctx, req.Username, req.Password, req.Email, req.DisplayName, role)
}

// LoginResult is the response for a successful login.
type LoginResult struct {
	Token             string
	User              Info
	Instances         []InstanceSummary
	CurrentInstanceID *uuid.UUID
}

// Login verifies credentials, issues a session, and resolves the caller's
// assigned instances and current instance (defaulting to the first
// assignment when none is set yet).
func (s *Service) Login(ctx context.Context, req LoginRequest, ipAddress, userAgent *string) (LoginResult, error) {
	u, err := s.store.GetByUsername(ctx, req.Username)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return LoginResult{}, apperr.Unauthorized("invalid username or password")
		}
		return LoginResult{}, apperr.Internal("looking up user", err)
	}
	if !u.IsActive {
		return LoginResult{}, apperr.Forbidden("account is deactivated")
	}

	ok, err := passwordhash.Verify(req.Password, u.PasswordHash)
	if err != nil {
		return LoginResult{}, apperr.Internal("verifying password", err)
	}
	if !ok {
		return LoginResult{}, apperr.Unauthorized("invalid username or password")
	}

	issued, err := s.sessions.Create(ctx, session.UserSummary{ID: u.ID, Username: u.Username, Role: u.Role, IsActive: u.IsActive}, ipAddress, userAgent)
	if err != nil {
		return LoginResult{}, err
	}

	if err := s.store.UpdateLastLogin(ctx, u.ID, issued.Session.CreatedAt); err != nil {
		return LoginResult{}, apperr.Internal("updating last login", err)
	}

	instances, err := s.assignedInstances(ctx, u.ID)
	if err != nil {
		return LoginResult{}, err
	}

	current := u.CurrentInstanceID
	if current == nil && len(instances) > 0 {
		current = &instances[0].ID
		if err := s.store.UpdateCurrentInstance(ctx, u.ID, current); err != nil {
			return LoginResult{}, apperr.Internal("setting initial current instance", err)
		}
	}

	return LoginResult{
		Token:             issued.Token,
		User:              u.ToInfo(),
		Instances:         instances,
		CurrentInstanceID: current,
	}, nil
}

// Logout invalidates the session backing rawToken.
func (s *Service) Logout(ctx context.Context, rawToken string) error {
	return s.sessions.Logout(ctx, rawToken)
}

// CurrentInstanceID returns the caller's current_instance_id, for the
// reverse proxy's routing decision. Satisfies proxy.UserLookup.
func (s *Service) CurrentInstanceID(ctx context.Context, userID uuid.UUID) (*uuid.UUID, error) {
	u, err := s.store.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("user not found")
		}
		return nil, apperr.Internal("looking up user", err)
	}
	return u.CurrentInstanceID, nil
}

// CurrentInstanceDetails returns the full projection of the caller's
// current instance, for GET /my-instances/current.
func (s *Service) CurrentInstanceDetails(ctx context.Context, userID uuid.UUID) (InstanceDetails, error) {
	current, err := s.CurrentInstanceID(ctx, userID)
	if err != nil {
		return InstanceDetails{}, err
	}
	if current == nil {
		return InstanceDetails{}, apperr.NotFound("no current instance set")
	}
	details, err := s.instances.GetDetails(ctx, *current)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return InstanceDetails{}, apperr.NotFound("instance not found")
		}
		return InstanceDetails{}, apperr.Internal("loading instance", err)
	}
	return details, nil
}

// CurrentInstanceHealth probes the caller's current instance, for GET
// /my-instances/current/health.
func (s *Service) CurrentInstanceHealth(ctx context.Context, userID uuid.UUID) (string, error) {
	current, err := s.CurrentInstanceID(ctx, userID)
	if err != nil {
		return "", err
	}
	if current == nil {
		return "", apperr.NotFound("no current instance set")
	}
	health, err := s.instances.ProbeHealth(ctx, *current)
	if err != nil {
		return "", apperr.Internal("checking instance health", err)
	}
	return health, nil
}

// GetCurrentUser returns the caller's profile and assigned instances, for
// GET /auth/me.
func (s *Service) GetCurrentUser(ctx context.Context, userID uuid.UUID) (Info, []InstanceSummary, error) {
	u, err := s.store.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Info{}, nil, apperr.NotFound("user not found")
		}
		return Info{}, nil, apperr.Internal("looking up user", err)
	}
	instances, err := s.assignedInstances(ctx, userID)
	if err != nil {
		return Info{}, nil, err
	}
	return u.ToInfo(), instances, nil
}

// ChangePassword verifies the old password and purges all sessions on success.
func (s *Service) ChangePassword(ctx context.Context, userID uuid.UUID, req ChangePasswordRequest) error {
	u, err := s.store.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperr.NotFound("user not found")
		}
		return apperr.Internal("looking up user", err)
	}

	ok, err := passwordhash.Verify(req.OldPassword, u.PasswordHash)
	if err != nil {
		return apperr.Internal("verifying password", err)
	}
	if !ok {
		return apperr.Unauthorized("old password is incorrect")
	}

	hash, err := passwordhash.Hash(req.NewPassword)
	if err != nil {
		return apperr.Internal("hashing password", err)
	}
	if err := s.store.UpdatePassword(ctx, userID, hash); err != nil {
		return apperr.Internal("updating password", err)
	}
	return s.sessions.LogoutAll(ctx, userID)
}

// SwitchInstance sets the caller's current instance, requiring an existing
// assignment.
func (s *Service) SwitchInstance(ctx context.Context, userID, instanceID uuid.UUID) (InstanceSummary, error) {
	assigned, err := s.assignments.IsAssigned(ctx, userID, instanceID)
	if err != nil {
		return InstanceSummary{}, err
	}
	if !assigned {
		return InstanceSummary{}, apperr.Forbidden("not assigned to this instance")
	}

	summary, err := s.instances.GetSummary(ctx, instanceID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return InstanceSummary{}, apperr.NotFound("instance not found")
		}
		return InstanceSummary{}, apperr.Internal("loading instance", err)
	}

	if err := s.store.UpdateCurrentInstance(ctx, userID, &instanceID); err != nil {
		return InstanceSummary{}, apperr.Internal("updating current instance", err)
	}
	return summary, nil
}

// MyInstances returns the caller's assigned instances and current instance,
// for GET /my-instances.
func (s *Service) MyInstances(ctx context.Context, userID uuid.UUID) ([]InstanceSummary, *uuid.UUID, error) {
	u, err := s.store.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, apperr.NotFound("user not found")
		}
		return nil, nil, apperr.Internal("looking up user", err)
	}
	instances, err := s.assignedInstances(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	return instances, u.CurrentInstanceID, nil
}

func (s *Service) assignedInstances(ctx context.Context, userID uuid.UUID) ([]InstanceSummary, error) {
	assignments, err := s.assignments.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]InstanceSummary, 0, len(assignments))
	for _, a := range assignments {
		summary, err := s.instances.GetSummary(ctx, a.InstanceID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				continue
			}
			return nil, apperr.Internal("loading instance", err)
		}
		out = append(out, summary)
	}
	return out, nil
}

// ==================== Admin operations ====================

// List returns every user, for GET /users.
func (s *Service) List(ctx context.Context) ([]Info, error) {
	users, err := s.store.List(ctx)
	if err != nil {
		return nil, apperr.Internal("listing users", err)
	}
	out := make([]Info, 0, len(users))
	for _, u := range users {
		out = append(out, u.ToInfo())
	}
	return out, nil
}

// Get returns a single user by ID, for GET /users/{id}.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Info, error) {
	u, err := s.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Info{}, apperr.NotFound("user not found")
		}
		return Info{}, apperr.Internal("looking up user", err)
	}
	return u.ToInfo(), nil
}

// UpdateUser updates an admin-editable profile, for PUT /users/{id}.
func (s *Service) UpdateUser(ctx context.Context, id uuid.UUID, req UpdateUserRequest) (Info, error) {
	existing, err := s.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Info{}, apperr.NotFound("user not found")
		}
		return Info{}, apperr.Internal("looking up user", err)
	}

	email := existing.Email
	if req.Email != nil {
		email = req.Email
	}
	displayName := existing.DisplayName
	if req.DisplayName != nil {
		displayName = req.DisplayName
	}
	role := existing.Role
	if req.Role != nil {
		role = *req.Role
	}

	u, err := s.store.Update(ctx, id, UpdateParams{Email: email, DisplayName: displayName, Role: role})
	if err != nil {
		return Info{}, apperr.Internal("updating user", err)
	}
	return u.ToInfo(), nil
}

// SetActive activates or deactivates a user, purging sessions on deactivation.
func (s *Service) SetActive(ctx context.Context, id uuid.UUID, isActive bool) error {
	if err := s.store.SetActive(ctx, id, isActive); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperr.NotFound("user not found")
		}
		return apperr.Internal("setting active state", err)
	}
	if !isActive {
		return s.sessions.LogoutAll(ctx, id)
	}
	return nil
}

// SetPassword resets a user's password as an admin action, purging sessions.
func (s *Service) SetPassword(ctx context.Context, id uuid.UUID, newPassword string) error {
	hash, err := passwordhash.Hash(newPassword)
	if err != nil {
		return apperr.Internal("hashing password", err)
	}
	if err := s.store.UpdatePassword(ctx, id, hash); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperr.NotFound("user not found")
		}
		return apperr.Internal("updating password", err)
	}
	return s.sessions.LogoutAll(ctx, id)
}

// DeleteUser removes a user and purges their sessions (assignments cascade
// via foreign key).
func (s *Service) DeleteUser(ctx context.Context, id uuid.UUID) error {
	if err := s.sessions.LogoutAll(ctx, id); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperr.NotFound("user not found")
		}
		return apperr.Internal("deleting user", err)
	}
	return nil
}

// ListUserInstances returns the instances a user is assigned to, for admin
// GET /users/{id}/instances.
func (s *Service) ListUserInstances(ctx context.Context, userID uuid.UUID) ([]InstanceSummary, error) {
	return s.assignedInstances(ctx, userID)
}

// AssignInstances grants userID access to each instance, setting
// current_instance_id if it was unset.
func (s *Service) AssignInstances(ctx context.Context, adminID, userID uuid.UUID, instanceIDs []uuid.UUID) error {
	u, err := s.store.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperr.NotFound("user not found")
		}
		return apperr.Internal("looking up user", err)
	}

	for _, instanceID := range instanceIDs {
		if _, _, err := s.assignments.Assign(ctx, userID, instanceID, &adminID); err != nil {
			return err
		}
		if u.CurrentInstanceID == nil {
			if err := s.store.UpdateCurrentInstance(ctx, userID, &instanceID); err != nil {
				return apperr.Internal("setting initial current instance", err)
			}
			u.CurrentInstanceID = &instanceID
		}
	}
	return nil
}

// UnassignInstance revokes userID's access to instanceID, reconciling
// current_instance_id to the fallback assignment (or null) if needed.
func (s *Service) UnassignInstance(ctx context.Context, userID, instanceID uuid.UUID) error {
	u, err := s.store.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperr.NotFound("user not found")
		}
		return apperr.Internal("looking up user", err)
	}

	fallback, err := s.assignments.Unassign(ctx, userID, instanceID, u.CurrentInstanceID)
	if err != nil {
		return err
	}
	if u.CurrentInstanceID != nil && *u.CurrentInstanceID == instanceID {
		if err := s.store.UpdateCurrentInstance(ctx, userID, fallback); err != nil {
			return apperr.Internal("reconciling current instance", err)
		}
	}
	return nil
}
