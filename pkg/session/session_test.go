package session

import (
	"testing"
	"time"
)

func TestIsExpired(t *testing.T) {
	now := time.Now()
	s := Session{ExpiresAt: now.Add(time.Hour)}

	if s.IsExpired(now) {
		t.Error("IsExpired() = true for a session an hour from expiry")
	}
	if !s.IsExpired(now.Add(2 * time.Hour)) {
		t.Error("IsExpired() = false for a session an hour past expiry")
	}
}

func TestNeedsRefresh(t *testing.T) {
	now := time.Now()
	s := Session{ExpiresAt: now.Add(10 * time.Minute)}

	if !s.NeedsRefresh(now, 30*time.Minute) {
		t.Error("NeedsRefresh() = false when remaining time is under the threshold")
	}
	if s.NeedsRefresh(now, 5*time.Minute) {
		t.Error("NeedsRefresh() = true when remaining time exceeds the threshold")
	}
}

func TestHashTokenIsDeterministic(t *testing.T) {
	a := HashToken("some-signed-token")
	b := HashToken("some-signed-token")
	if a != b {
		t.Error("HashToken() should be deterministic for the same input")
	}
	if a == HashToken("a-different-token") {
		t.Error("HashToken() should differ for different inputs")
	}
}
