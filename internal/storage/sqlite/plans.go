package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tjfontaine/workflow-copilot/internal/domain"
)

func (s *Store) CreatePlan(ctx context.Context, plan *domain.WorkflowPlan) error {
	plan.CreatedAt = time.Now()
	plan.UpdatedAt = plan.CreatedAt
	if plan.Status == "" {
		plan.Status = domain.PlanPending
	}

	planData, err := json.Marshal(plan.PlanData)
	if err != nil {
		return fmt.Errorf("failed to marshal plan data: %w", err)
	}
	modified, err := json.Marshal(plan.ModifiedWorkflow)
	if err != nil {
		return fmt.Errorf("failed to marshal modified workflow: %w", err)
	}
	var original any
	if plan.OriginalWorkflow != nil {
		encoded, err := json.Marshal(plan.OriginalWorkflow)
		if err != nil {
			return fmt.Errorf("failed to marshal original workflow: %w", err)
		}
		original = string(encoded)
	}

	query := `INSERT INTO plans (id, conversation_id, status, plan_data, original_workflow, modified_workflow, created_at, updated_at)
	          VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = s.db.ExecContext(ctx, query,
		plan.ID, plan.ConversationID, plan.Status, string(planData),
		original, string(modified), plan.CreatedAt, plan.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create plan: %w", err)
	}

	return nil
}

func (s *Store) GetPlan(ctx context.Context, id string) (*domain.WorkflowPlan, error) {
	query := `SELECT id, conversation_id, status, plan_data, original_workflow, modified_workflow,
	                 test_results, error_message, applied_at, created_at, updated_at
	          FROM plans WHERE id = ?`

	var plan domain.WorkflowPlan
	var planData, modified string
	var original, testResults, errorMessage sql.NullString
	var appliedAt sql.NullTime

	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&plan.ID, &plan.ConversationID, &plan.Status, &planData, &original, &modified,
		&testResults, &errorMessage, &appliedAt, &plan.CreatedAt, &plan.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound("plan", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get plan: %w", err)
	}

	if err := json.Unmarshal([]byte(planData), &plan.PlanData); err != nil {
		return nil, fmt.Errorf("failed to unmarshal plan data: %w", err)
	}
	if err := json.Unmarshal([]byte(modified), &plan.ModifiedWorkflow); err != nil {
		return nil, fmt.Errorf("failed to unmarshal modified workflow: %w", err)
	}
	if original.Valid {
		if err := json.Unmarshal([]byte(original.String), &plan.OriginalWorkflow); err != nil {
			return nil, fmt.Errorf("failed to unmarshal original workflow: %w", err)
		}
	}
	if testResults.Valid {
		plan.TestResults = json.RawMessage(testResults.String)
	}
	if errorMessage.Valid {
		plan.ErrorMessage = errorMessage.String
	}
	if appliedAt.Valid {
		plan.AppliedAt = &appliedAt.Time
	}

	return &plan, nil
}

// TransitionPlan is a conditional status move: only a plan currently in the
// from state is updated, so of two racing callers exactly one wins.
func (s *Store) TransitionPlan(ctx context.Context, id string, from, to domain.PlanStatus) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE plans SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		to, time.Now(), id, from)
	if err != nil {
		return fmt.Errorf("failed to transition plan: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return s.planTransitionConflict(ctx, id)
	}

	return nil
}

// RejectPlan moves any non-terminal plan to rejected.
func (s *Store) RejectPlan(ctx context.Context, id, reason string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE plans SET status = ?, error_message = ?, updated_at = ? WHERE id = ? AND status IN (?, ?)`,
		domain.PlanRejected, reason, time.Now(), id, domain.PlanPending, domain.PlanApproved)
	if err != nil {
		return fmt.Errorf("failed to reject plan: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return s.planTransitionConflict(ctx, id)
	}

	return nil
}

// planTransitionConflict distinguishes a missing plan from one in the wrong
// state after a conditional update matched no rows.
func (s *Store) planTransitionConflict(ctx context.Context, id string) error {
	var status domain.PlanStatus
	err := s.db.QueryRowContext(ctx, `SELECT status FROM plans WHERE id = ?`, id).Scan(&status)
	if err == sql.ErrNoRows {
		return domain.ErrNotFound("plan", id)
	}
	if err != nil {
		return fmt.Errorf("failed to read plan status: %w", err)
	}
	return domain.ErrPlanNotPending(id, status)
}

func (s *Store) MarkPlanApplied(ctx context.Context, id string, appliedAt time.Time) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE plans SET status = ?, applied_at = ?, updated_at = ? WHERE id = ? AND status = ?`,
		domain.PlanApplied, appliedAt, time.Now(), id, domain.PlanApproved)
	if err != nil {
		return fmt.Errorf("failed to mark plan applied: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return s.planTransitionConflict(ctx, id)
	}

	return nil
}

func (s *Store) MarkPlanFailed(ctx context.Context, id, errorMessage string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE plans SET status = ?, error_message = ?, updated_at = ? WHERE id = ? AND status = ?`,
		domain.PlanFailed, errorMessage, time.Now(), id, domain.PlanApproved)
	if err != nil {
		return fmt.Errorf("failed to mark plan failed: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return s.planTransitionConflict(ctx, id)
	}

	return nil
}

// SetTestResults records the raw remote execution result. Deliberately not
// status-conditional: test results are informational and may be written in
// any plan state.
func (s *Store) SetTestResults(ctx context.Context, id string, results json.RawMessage) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE plans SET test_results = ?, updated_at = ? WHERE id = ?`,
		string(results), time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to set test results: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return domain.ErrNotFound("plan", id)
	}

	return nil
}
