package crypto

import "testing"

func testCipher(t *testing.T) *Cipher {
	t.Helper()
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error: %v", err)
	}
	c, err := NewCipher(key)
	if err != nil {
		t.Fatalf("NewCipher() error: %v", err)
	}
	return c
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	c := testCipher(t)

	plaintext := "sk-ant-REDACTED"
	blob, err := c.Encrypt(plaintext)
	if err != nil {
		t.Fatalf("Encrypt() error: %v", err)
	}
	if blob == plaintext {
		t.Fatal("Encrypt() returned plaintext unchanged")
	}

	got, err := c.Decrypt(blob)
	if err != nil {
		t.Fatalf("Decrypt() error: %v", err)
	}
	if got != plaintext {
		t.Errorf("Decrypt() = %q, want %q", got, plaintext)
	}
}

func TestEncryptIsNonDeterministic(t *testing.T) {
	c := testCipher(t)

	a, _ := c.Encrypt("same-value")
	b, _ := c.Encrypt("same-value")
	if a == b {
		t.Error("Encrypt() produced identical blobs for identical plaintext; nonce should differ")
	}
}

func TestDecryptRejectsShortBlob(t *testing.T) {
	c := testCipher(t)

	if _, err := c.Decrypt("dG9vc2hvcnQ="); err == nil {
		t.Error("Decrypt() should reject a blob shorter than nonce+tag")
	}
}

func TestDecryptRejectsTamperedBlob(t *testing.T) {
	c := testCipher(t)

	blob, _ := c.Encrypt("tamper-me")
	tampered := blob[:len(blob)-4] + "AAAA"

	if _, err := c.Decrypt(tampered); err == nil {
		t.Error("Decrypt() should reject a tampered blob")
	}
}

func TestNewCipherRejectsWrongKeySize(t *testing.T) {
	if _, err := NewCipher("dG9vc2hvcnQ="); err == nil {
		t.Error("NewCipher() should reject a key that isn't 32 bytes")
	}
}
