package instance

import (
	"testing"

	"github.com/google/uuid"
)

func TestToInfoCarriesUserCount(t *testing.T) {
	inst := Instance{
		ID:     uuid.New(),
		Name:   "team-alpha",
		Port:   8100,
		Status: StatusRunning,
	}

	info := inst.ToInfo(3)

	if info.UserCount != 3 {
		t.Errorf("UserCount = %d, want 3", info.UserCount)
	}
	if info.Name != inst.Name || info.Port != inst.Port || info.Status != inst.Status {
		t.Error("ToInfo() did not carry over the source instance's fields")
	}
}
