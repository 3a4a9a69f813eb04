package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/tjfontaine/workflow-copilot/internal/domain"
)

func (s *Store) CreateCredential(ctx context.Context, cred *domain.Credential) error {
	cred.CreatedAt = time.Now()
	if cred.Status == "" {
		cred.Status = domain.CredentialPending
	}

	query := `INSERT INTO credentials (id, owner_id, instance_url, encrypted_secret, status, last_verified_at, created_at)
	          VALUES (?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		cred.ID, cred.OwnerID, cred.InstanceURL, cred.EncryptedSecret,
		cred.Status, cred.LastVerifiedAt, cred.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create credential: %w", err)
	}

	return nil
}

func (s *Store) GetCredential(ctx context.Context, id string) (*domain.Credential, error) {
	query := `SELECT id, owner_id, instance_url, encrypted_secret, status, last_verified_at, created_at
	          FROM credentials WHERE id = ?`

	return s.scanCredential(s.db.QueryRowContext(ctx, query, id), id)
}

func (s *Store) FirstVerified(ctx context.Context, ownerID string) (*domain.Credential, error) {
	query := `SELECT id, owner_id, instance_url, encrypted_secret, status, last_verified_at, created_at
	          FROM credentials WHERE owner_id = ? AND status = ?
	          ORDER BY created_at ASC LIMIT 1`

	return s.scanCredential(s.db.QueryRowContext(ctx, query, ownerID, domain.CredentialVerified), "for owner "+ownerID)
}

func (s *Store) scanCredential(row *sql.Row, id string) (*domain.Credential, error) {
	var cred domain.Credential
	var verifiedAt sql.NullTime

	err := row.Scan(&cred.ID, &cred.OwnerID, &cred.InstanceURL, &cred.EncryptedSecret,
		&cred.Status, &verifiedAt, &cred.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound("credential", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get credential: %w", err)
	}
	if verifiedAt.Valid {
		cred.LastVerifiedAt = &verifiedAt.Time
	}

	return &cred, nil
}

func (s *Store) UpdateCredentialStatus(ctx context.Context, id string, status domain.CredentialStatus, verifiedAt *time.Time) error {
	query := `UPDATE credentials SET status = ?, last_verified_at = ? WHERE id = ?`

	result, err := s.db.ExecContext(ctx, query, status, verifiedAt, id)
	if err != nil {
		return fmt.Errorf("failed to update credential status: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return domain.ErrNotFound("credential", id)
	}

	return nil
}

func (s *Store) DeleteCredential(ctx context.Context, id, ownerID string) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM credentials WHERE id = ? AND owner_id = ?`, id, ownerID)
	if err != nil {
		return fmt.Errorf("failed to delete credential: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return domain.ErrNotFound("credential", id)
	}

	return nil
}
