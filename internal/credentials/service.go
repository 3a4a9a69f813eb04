// Package credentials handles registration and verification of remote
// platform credentials. The orchestration core only reads credentials;
// every mutation lives here.
package credentials

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tjfontaine/workflow-copilot/internal/domain"
	"github.com/tjfontaine/workflow-copilot/internal/n8n"
	"github.com/tjfontaine/workflow-copilot/internal/storage"
	"github.com/tjfontaine/workflow-copilot/internal/vault"
)

// Service registers, verifies and deletes credentials.
type Service struct {
	store  storage.CredentialStore
	vault  *vault.Vault
	logger *slog.Logger

	// clientOpts lets tests point the health check at a local server.
	clientOpts []n8n.ClientOption
}

// New creates a credential service.
func New(store storage.CredentialStore, v *vault.Vault, logger *slog.Logger, opts ...n8n.ClientOption) *Service {
	return &Service{store: store, vault: v, logger: logger, clientOpts: opts}
}

// Register encrypts the instance secret and stores the credential in the
// pending state. The plaintext secret is never persisted.
func (s *Service) Register(ctx context.Context, ownerID, instanceURL, secret string) (*domain.Credential, error) {
	if instanceURL == "" || secret == "" {
		return nil, domain.ErrInvalidRequest("instance_url and secret are required")
	}

	encrypted, err := s.vault.Encrypt(secret)
	if err != nil {
		return nil, err
	}

	cred := &domain.Credential{
		ID:              uuid.New().String(),
		OwnerID:         ownerID,
		InstanceURL:     instanceURL,
		EncryptedSecret: encrypted,
		Status:          domain.CredentialPending,
	}
	if err := s.store.CreateCredential(ctx, cred); err != nil {
		return nil, err
	}

	return cred, nil
}

// Verify runs a health check against the instance and flips the credential
// to verified or failed, stamping the attempt time either way.
func (s *Service) Verify(ctx context.Context, id, ownerID string) (*domain.Credential, error) {
	cred, err := s.store.GetCredential(ctx, id)
	if err != nil {
		return nil, err
	}
	if cred.OwnerID != ownerID {
		return nil, domain.ErrUnauthorized("credential belongs to another user")
	}

	client, err := n8n.FromEncrypted(s.vault, cred.InstanceURL, cred.EncryptedSecret, s.clientOpts...)
	if err != nil {
		return nil, err
	}

	status := domain.CredentialFailed
	if client.HealthCheck(ctx) {
		status = domain.CredentialVerified
	}
	now := time.Now()
	if err := s.store.UpdateCredentialStatus(ctx, cred.ID, status, &now); err != nil {
		return nil, err
	}

	s.logger.Info("credential verified",
		slog.String("credential_id", cred.ID),
		slog.String("status", string(status)))

	cred.Status = status
	cred.LastVerifiedAt = &now
	return cred, nil
}

// Delete removes a credential owned by the caller.
func (s *Service) Delete(ctx context.Context, id, ownerID string) error {
	return s.store.DeleteCredential(ctx, id, ownerID)
}
