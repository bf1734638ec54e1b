// Package crypto provides AES-256-GCM encryption for AI-agent API keys at
// rest. It wraps crypto/aes and crypto/cipher directly rather than reaching
// for a third-party envelope-encryption library the rest of the stack
// doesn't otherwise need.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"

	"github.com/vibeforge/controlplane/internal/apperr"
)

const (
	keySize   = 32 // AES-256
	nonceSize = 12 // GCM standard nonce size
	tagSize   = 16 // GCM authentication tag
)

// Cipher encrypts and decrypts API keys and other secrets with a single
// 256-bit key, read once at startup from CONFIG_ENCRYPTION_KEY.
type Cipher struct {
	gcm cipher.AEAD
}

// NewCipher builds a Cipher from a base64-encoded 32-byte key.
func NewCipher(base64Key string) (*Cipher, error) {
	key, err := base64.StdEncoding.DecodeString(base64Key)
	if err != nil {
		return nil, fmt.Errorf("decoding encryption key: %w", err)
	}
	if len(key) != keySize {
		return nil, fmt.Errorf("encryption key must be %d bytes, got %d", keySize, len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("creating aes cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("creating gcm: %w", err)
	}
	return &Cipher{gcm: gcm}, nil
}

// GenerateKey returns a new random base64-encoded 32-byte key, suitable for
// CONFIG_ENCRYPTION_KEY.
func GenerateKey() (string, error) {
	key := make([]byte, keySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return "", fmt.Errorf("generating key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(key), nil
}

// Encrypt returns base64(nonce || ciphertext || tag).
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generating nonce: %w", err)
	}
	sealed := c.gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt. Blobs shorter than nonce+tag are rejected.
func (c *Cipher) Decrypt(blob string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return "", apperr.BadRequest("malformed encrypted blob")
	}
	if len(raw) < nonceSize+tagSize {
		return "", apperr.BadRequest("encrypted blob too short")
	}

	nonce, ciphertext := raw[:nonceSize], raw[nonceSize:]
	plaintext, err := c.gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", apperr.Internal("decrypting blob", err)
	}
	return string(plaintext), nil
}
