// Package vault encrypts remote-platform secrets for at-rest storage and
// hashes bearer API keys for lookup without storing them.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"

	"github.com/tjfontaine/workflow-copilot/internal/domain"
)

const (
	// KeySize is the AES-256 key length.
	KeySize = 32

	// ivSize matches the stored record format: a 16-byte IV, 32 hex chars.
	ivSize = 16

	// tagSize is the GCM authentication tag length.
	tagSize = 16
)

// Vault holds the fixed symmetric key used for all secret encryption.
type Vault struct {
	aead cipher.AEAD
}

// New creates a vault from a raw 32-byte key.
func New(key []byte) (*Vault, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("vault key must be exactly %d bytes, got %d", KeySize, len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cipher: %w", err)
	}

	// The stored record format carries a 16-byte IV, so the AEAD is built
	// with a matching nonce size rather than GCM's 12-byte default.
	aead, err := cipher.NewGCMWithNonceSize(block, ivSize)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize GCM: %w", err)
	}

	return &Vault{aead: aead}, nil
}

// NewFromHex creates a vault from a 64-char hex-encoded key.
func NewFromHex(hexKey string) (*Vault, error) {
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("vault key is not valid hex: %w", err)
	}
	return New(key)
}

// DeriveKey derives a 32-byte vault key from a passphrase and salt using
// argon2id. Used when the deployment supplies a passphrase instead of a raw
// hex key.
func DeriveKey(passphrase, salt []byte) []byte {
	return argon2.IDKey(passphrase, salt, 1, 64*1024, 4, KeySize)
}

// Encrypt encrypts plaintext under a fresh random IV and returns the record
// as ivHex:authTagHex:ciphertextHex. The IV is never reused; two calls with
// the same plaintext produce different records.
func (v *Vault) Encrypt(plaintext string) (string, error) {
	iv := make([]byte, ivSize)
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("failed to generate IV: %w", err)
	}

	// Seal appends the auth tag to the ciphertext; the record stores them
	// as separate fields.
	sealed := v.aead.Seal(nil, iv, []byte(plaintext), nil)
	ciphertext := sealed[:len(sealed)-tagSize]
	tag := sealed[len(sealed)-tagSize:]

	return fmt.Sprintf("%s:%s:%s",
		hex.EncodeToString(iv),
		hex.EncodeToString(tag),
		hex.EncodeToString(ciphertext)), nil
}

// Decrypt reverses Encrypt. It fails with a malformed-record error when the
// record does not split into three hex fields, and with an authentication
// failure when the tag does not verify. Neither failure is retryable.
func (v *Vault) Decrypt(record string) (string, error) {
	parts := strings.Split(record, ":")
	if len(parts) != 3 {
		return "", domain.ErrMalformedRecord(fmt.Sprintf("expected 3 fields, got %d", len(parts)))
	}

	iv, err := hex.DecodeString(parts[0])
	if err != nil {
		return "", domain.ErrMalformedRecord("IV is not valid hex")
	}
	if len(iv) != ivSize {
		return "", domain.ErrMalformedRecord(fmt.Sprintf("IV must be %d bytes, got %d", ivSize, len(iv)))
	}
	tag, err := hex.DecodeString(parts[1])
	if err != nil {
		return "", domain.ErrMalformedRecord("auth tag is not valid hex")
	}
	ciphertext, err := hex.DecodeString(parts[2])
	if err != nil {
		return "", domain.ErrMalformedRecord("ciphertext is not valid hex")
	}

	plaintext, err := v.aead.Open(nil, iv, append(ciphertext, tag...), nil)
	if err != nil {
		return "", domain.ErrAuthenticationFailure("auth tag verification failed")
	}

	return string(plaintext), nil
}

// Hash returns the SHA-256 hex digest of value. One-way; used to look up
// bearer API keys without persisting them.
func Hash(value string) string {
	digest := sha256.Sum256([]byte(value))
	return hex.EncodeToString(digest[:])
}
