package passwordhash

import "testing"

func TestHashVerifyRoundTrip(t *testing.T) {
	encoded, err := Hash("correct-horse-battery-staple")
	if err != nil {
		t.Fatalf("Hash() error: %v", err)
	}

	ok, err := Verify("correct-horse-battery-staple", encoded)
	if err != nil {
		t.Fatalf("Verify() error: %v", err)
	}
	if !ok {
		t.Error("Verify() = false for correct password, want true")
	}
}

func TestVerifyRejectsWrongPassword(t *testing.T) {
	encoded, _ := Hash("correct-horse-battery-staple")

	ok, err := Verify("wrong-password", encoded)
	if err != nil {
		t.Fatalf("Verify() error: %v", err)
	}
	if ok {
		t.Error("Verify() = true for wrong password, want false")
	}
}

func TestHashIsSalted(t *testing.T) {
	a, _ := Hash("same-password")
	b, _ := Hash("same-password")
	if a == b {
		t.Error("Hash() produced identical output for identical input twice; salt should differ")
	}
}

func TestVerifyRejectsMalformedHash(t *testing.T) {
	if _, err := Verify("password", "not-a-phc-string"); err == nil {
		t.Error("Verify() should reject a malformed hash")
	}
}
