// Package instance supervises workspace child processes: CRUD over
// instance records, port allocation, data-directory scaffolding, and the
// start/stop/health state machine. Grounded on original_source's
// services/instance_manager.rs and db/models/vibe_instance.rs.
package instance

import (
	"time"

	"github.com/google/uuid"
)

// Status is the instance lifecycle state.
type Status string

const (
	StatusStopped  Status = "stopped"
	StatusStarting Status = "starting"
	StatusRunning  Status = "running"
	StatusStopping Status = "stopping"
	StatusError    Status = "error"
)

// HealthStatus is the last-observed health probe result.
type HealthStatus string

const (
	HealthUnknown   HealthStatus = "unknown"
	HealthHealthy   HealthStatus = "healthy"
	HealthUnhealthy HealthStatus = "unhealthy"
)

// Instance is a supervised workspace child process.
type Instance struct {
	ID              uuid.UUID
	Name            string
	Description     *string
	Port            int
	DataDir         string
	Status          Status
	AutoStart       bool
	MaxUsers        *int32
	CreatedAt       time.Time
	UpdatedAt       time.Time
	LastHealthCheck *time.Time
	HealthStatus    HealthStatus
	LastError       *string
	LastErrorAt     *time.Time
}

// Info is the Instance DTO returned over the wire, enriched with the
// current assignment count.
type Info struct {
	ID              uuid.UUID    `json:"id"`
	Name            string       `json:"name"`
	Description     *string      `json:"description,omitempty"`
	Port            int          `json:"port"`
	Status          Status       `json:"status"`
	HealthStatus    HealthStatus `json:"health_status"`
	AutoStart       bool         `json:"auto_start"`
	MaxUsers        *int32       `json:"max_users,omitempty"`
	UserCount       int          `json:"user_count"`
	CreatedAt       time.Time    `json:"created_at"`
	LastHealthCheck *time.Time   `json:"last_health_check,omitempty"`
	LastError       *string      `json:"last_error,omitempty"`
	LastErrorAt     *time.Time   `json:"last_error_at,omitempty"`
}

// ToInfo projects an Instance to its wire DTO given its current user count.
func (i Instance) ToInfo(userCount int) Info {
	return Info{
		ID:              i.ID,
		Name:            i.Name,
		Description:     i.Description,
		Port:            i.Port,
		Status:          i.Status,
		HealthStatus:    i.HealthStatus,
		AutoStart:       i.AutoStart,
		MaxUsers:        i.MaxUsers,
		UserCount:       userCount,
		CreatedAt:       i.CreatedAt,
		LastHealthCheck: i.LastHealthCheck,
		LastError:       i.LastError,
		LastErrorAt:     i.LastErrorAt,
	}
}

// CreateRequest is the payload for POST /instances.
type CreateRequest struct {
	Name        string  `json:"name" validate:"required,min=1"`
	Description *string `json:"description,omitempty"`
	AutoStart   bool    `json:"auto_start,omitempty"`
	MaxUsers    *int32  `json:"max_users,omitempty" validate:"omitempty,min=1"`
}

// UpdateRequest is the payload for PUT /instances/{id}.
type UpdateRequest struct {
	Name        *string `json:"name,omitempty" validate:"omitempty,min=1"`
	Description *string `json:"description,omitempty"`
	AutoStart   *bool   `json:"auto_start,omitempty"`
	MaxUsers    *int32  `json:"max_users,omitempty" validate:"omitempty,min=1"`
}
