// Package assignment manages the user↔instance assignment relation and the
// "current instance" fallback selection described in original_source's
// db/models/user_instance_assignment.rs and user_manager.rs.
package assignment

import (
	"time"

	"github.com/google/uuid"
)

// Assignment grants a user access to an instance.
type Assignment struct {
	ID         uuid.UUID
	UserID     uuid.UUID
	InstanceID uuid.UUID
	AssignedBy *uuid.UUID
	AssignedAt time.Time
}

// Info is the Assignment DTO enriched with display fields for admin listings.
type Info struct {
	Assignment
	Username        string `json:"username"`
	UserDisplayName string `json:"user_display_name,omitempty"`
	InstanceName    string `json:"instance_name"`
}
