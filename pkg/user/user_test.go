package user

import (
	"testing"

	"github.com/google/uuid"
)

func TestToInfoOmitsPasswordHash(t *testing.T) {
	email := "a@example.com"
	u := User{
		ID:           uuid.New(),
		Username:     "alice",
		Email:        &email,
		PasswordHash: "$2a$10$notarealhash",
		Role:         RoleUser,
		IsActive:     true,
	}

	info := u.ToInfo()

	if info.Username != u.Username || info.Role != u.Role || info.IsActive != u.IsActive {
		t.Error("ToInfo() did not carry over the source user's fields")
	}
	if info.Email == nil || *info.Email != email {
		t.Error("ToInfo() should carry over Email")
	}
}
