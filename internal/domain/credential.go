package domain

import "time"

// CredentialStatus tracks whether a stored credential has been verified
// against its instance.
type CredentialStatus string

const (
	CredentialPending  CredentialStatus = "pending"
	CredentialVerified CredentialStatus = "verified"
	CredentialFailed   CredentialStatus = "failed"
)

// Credential is a user's stored access secret for one remote automation
// platform instance. EncryptedSecret is opaque outside the vault.
type Credential struct {
	ID              string           `json:"id"`
	OwnerID         string           `json:"owner_id"`
	InstanceURL     string           `json:"instance_url"`
	EncryptedSecret string           `json:"-"`
	Status          CredentialStatus `json:"status"`
	LastVerifiedAt  *time.Time       `json:"last_verified_at,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
}
