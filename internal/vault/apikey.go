package vault

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// keyPrefix is the fixed textual prefix of every issued API key.
const keyPrefix = "wcp"

// displayPrefixLen is how much of the plaintext key is kept for display.
const displayPrefixLen = 12

// APIKey is a freshly generated bearer key. Plaintext is returned exactly
// once and never persisted; Digest and DisplayPrefix are the stored fields.
type APIKey struct {
	Plaintext     string
	Digest        string
	DisplayPrefix string
}

// GenerateAPIKey creates a new API key: the fixed prefix plus 32
// securely-random bytes hex-encoded.
func GenerateAPIKey() (APIKey, error) {
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return APIKey{}, fmt.Errorf("failed to generate key material: %w", err)
	}

	plaintext := fmt.Sprintf("%s_%s", keyPrefix, hex.EncodeToString(secret))
	return APIKey{
		Plaintext:     plaintext,
		Digest:        Hash(plaintext),
		DisplayPrefix: plaintext[:displayPrefixLen],
	}, nil
}
