// Package auth validates bearer API keys against stored digests.
package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/tjfontaine/workflow-copilot/internal/domain"
	"github.com/tjfontaine/workflow-copilot/internal/vault"
)

// Principal identifies the authenticated key owner.
type Principal struct {
	OwnerID string
	KeyName string
}

// Key is one configured API key: the sha256 digest of the plaintext and the
// owner it belongs to. Plaintext keys are never stored.
type Key struct {
	Digest  string
	OwnerID string
	Name    string
}

// Authenticator resolves API keys to principals.
type Authenticator struct {
	keys map[string]Principal // digest -> principal
}

// New creates an authenticator from the configured key set.
func New(keys []Key) *Authenticator {
	a := &Authenticator{keys: make(map[string]Principal, len(keys))}
	for _, key := range keys {
		a.keys[key.Digest] = Principal{OwnerID: key.OwnerID, KeyName: key.Name}
	}
	return a
}

// Validate hashes the presented key and looks up its principal.
func (a *Authenticator) Validate(apiKey string) (Principal, error) {
	digest := vault.Hash(apiKey)

	principal, ok := a.keys[digest]
	if !ok {
		return Principal{}, domain.ErrUnauthorized("invalid API key")
	}

	// Constant-time confirmation to avoid timing side channels on the map hit.
	for stored, p := range a.keys {
		if subtle.ConstantTimeCompare([]byte(digest), []byte(stored)) == 1 {
			return p, nil
		}
	}

	return principal, nil
}

// ExtractAPIKey pulls the bearer key from the Authorization header.
func ExtractAPIKey(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", domain.ErrUnauthorized("missing Authorization header")
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", domain.ErrUnauthorized("Authorization header must be a bearer key")
	}

	return parts[1], nil
}
