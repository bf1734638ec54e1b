// Package user implements registration, login, and admin account/assignment
// operations, grounded on original_source's services/user_manager.rs and
// db/models/user.rs.
package user

import (
	"time"

	"github.com/google/uuid"
)

// Roles recognized by the control plane.
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// User is an account in the control plane.
type User struct {
	ID                uuid.UUID
	Username          string
	Email             *string
	PasswordHash      string
	DisplayName       *string
	Role              string
	CurrentInstanceID *uuid.UUID
	IsActive          bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
	LastLoginAt       *time.Time
}

// Info is the User DTO returned over the wire, omitting PasswordHash.
type Info struct {
	ID                uuid.UUID  `json:"id"`
	Username          string     `json:"username"`
	Email             *string    `json:"email,omitempty"`
	DisplayName       *string    `json:"display_name,omitempty"`
	Role              string     `json:"role"`
	CurrentInstanceID *uuid.UUID `json:"current_instance_id,omitempty"`
	IsActive          bool       `json:"is_active"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
	LastLoginAt       *time.Time `json:"last_login_at,omitempty"`
}

// ToInfo projects a User to its wire DTO.
func (u User) ToInfo() Info {
	return Info{
		ID:                u.ID,
		Username:          u.Username,
		Email:             u.Email,
		DisplayName:       u.DisplayName,
		Role:              u.Role,
		CurrentInstanceID: u.CurrentInstanceID,
		IsActive:          u.IsActive,
		CreatedAt:         u.CreatedAt,
		UpdatedAt:         u.UpdatedAt,
		LastLoginAt:       u.LastLoginAt,
	}
}

// RegisterRequest is the payload for POST /auth/register.
type RegisterRequest struct {
	Username    string  `json:"username" validate:"required,min=3"`
	Password    string  `json:"password" validate:"required,min=6"`
	Email       *string `json:"email,omitempty" validate:"omitempty,email"`
	DisplayName *string `json:"display_name,omitempty"`
}

// LoginRequest is the payload for POST /auth/login.
type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// ChangePasswordRequest is the payload for PUT /auth/password.
type ChangePasswordRequest struct {
	OldPassword string `json:"old_password" validate:"required"`
	NewPassword string `json:"new_password" validate:"required,min=6"`
}

// CreateUserRequest is the payload for admin POST /users.
type CreateUserRequest struct {
	Username    string  `json:"username" validate:"required,min=3"`
	Password    string  `json:"password" validate:"required,min=6"`
	Email       *string `json:"email,omitempty" validate:"omitempty,email"`
	DisplayName *string `json:"display_name,omitempty"`
	Role        *string `json:"role,omitempty" validate:"omitempty,oneof=admin user"`
}

// UpdateUserRequest is the payload for admin PUT /users/{id}.
type UpdateUserRequest struct {
	Email       *string `json:"email,omitempty" validate:"omitempty,email"`
	DisplayName *string `json:"display_name,omitempty"`
	Role        *string `json:"role,omitempty" validate:"omitempty,oneof=admin user"`
}

// SetActiveRequest is the payload for PUT /users/{id}/activate.
type SetActiveRequest struct {
	IsActive bool `json:"is_active"`
}

// SetPasswordRequest is the payload for admin PUT /users/{id}/password.
type SetPasswordRequest struct {
	NewPassword string `json:"new_password" validate:"required,min=6"`
}

// AssignInstancesRequest is the payload for POST /users/{id}/instances.
type AssignInstancesRequest struct {
	InstanceIDs []uuid.UUID `json:"instance_ids" validate:"required,min=1"`
}

// SwitchInstanceRequest is the payload for PUT /my-instances/current.
type SwitchInstanceRequest struct {
	InstanceID uuid.UUID `json:"instance_id" validate:"required"`
}
