package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/tjfontaine/workflow-copilot/internal/domain"
)

// CreateVersion assigns version.VersionNumber as max(existing)+1 for the
// (workflow, instance) pair and inserts the snapshot, both inside one
// transaction. A unique index on the triple backstops the computation; on a
// conflict the numbering is recomputed once.
func (s *Store) CreateVersion(ctx context.Context, version *domain.WorkflowVersion) error {
	err := s.insertVersion(ctx, version)
	if err != nil && isUniqueViolation(err) {
		err = s.insertVersion(ctx, version)
	}
	return err
}

func (s *Store) insertVersion(ctx context.Context, version *domain.WorkflowVersion) error {
	workflowData, err := json.Marshal(version.WorkflowData)
	if err != nil {
		return fmt.Errorf("failed to marshal workflow data: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var current int
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version_number), 0) FROM workflow_versions WHERE workflow_id = ? AND instance_id = ?`,
		version.WorkflowID, version.InstanceID).Scan(&current)
	if err != nil {
		return fmt.Errorf("failed to read current version number: %w", err)
	}

	version.VersionNumber = current + 1
	version.CreatedAt = time.Now()

	query := `INSERT INTO workflow_versions (id, workflow_id, instance_id, owner_id, version_number,
	                                         workflow_data, change_description, created_by_ai, plan_id, created_at)
	          VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = tx.ExecContext(ctx, query,
		version.ID, version.WorkflowID, version.InstanceID, version.OwnerID, version.VersionNumber,
		string(workflowData), version.ChangeDescription, version.CreatedByAI,
		nullable(version.PlanID), version.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert workflow version: %w", err)
	}

	return tx.Commit()
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func (s *Store) ListVersions(ctx context.Context, workflowID, instanceID string) ([]*domain.WorkflowVersion, error) {
	query := `SELECT id, workflow_id, instance_id, owner_id, version_number,
	                 workflow_data, change_description, created_by_ai, plan_id, created_at
	          FROM workflow_versions
	          WHERE workflow_id = ? AND instance_id = ?
	          ORDER BY version_number DESC`

	rows, err := s.db.QueryContext(ctx, query, workflowID, instanceID)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflow versions: %w", err)
	}
	defer rows.Close()

	var versions []*domain.WorkflowVersion
	for rows.Next() {
		var version domain.WorkflowVersion
		var workflowData string
		var planID *string

		if err := rows.Scan(&version.ID, &version.WorkflowID, &version.InstanceID, &version.OwnerID,
			&version.VersionNumber, &workflowData, &version.ChangeDescription,
			&version.CreatedByAI, &planID, &version.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan workflow version: %w", err)
		}
		if err := json.Unmarshal([]byte(workflowData), &version.WorkflowData); err != nil {
			return nil, fmt.Errorf("failed to unmarshal workflow data: %w", err)
		}
		if planID != nil {
			version.PlanID = *planID
		}
		versions = append(versions, &version)
	}

	return versions, rows.Err()
}
