// Package planner owns the plan state machine: pending -> approved ->
// {applied | failed}, pending -> rejected. It is the only writer of plan
// status and workflow versions.
package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tjfontaine/workflow-copilot/internal/diff"
	"github.com/tjfontaine/workflow-copilot/internal/domain"
	"github.com/tjfontaine/workflow-copilot/internal/storage"
)

// PlatformClient is the slice of the platform client the manager needs to
// apply and test plans.
type PlatformClient interface {
	UpdateWorkflow(ctx context.Context, id string, update *domain.WorkflowUpdate) (*domain.Workflow, error)
	ExecuteWorkflow(ctx context.Context, id string, input map[string]any) (*domain.Execution, error)
}

// ClientFactory builds a platform client from a stored credential,
// decrypting its secret eagerly.
type ClientFactory func(cred *domain.Credential) (PlatformClient, error)

// Manager is the plan lifecycle manager.
type Manager struct {
	store   storage.Store
	clients ClientFactory
	logger  *slog.Logger
}

// New creates a manager.
func New(store storage.Store, clients ClientFactory, logger *slog.Logger) *Manager {
	return &Manager{store: store, clients: clients, logger: logger}
}

// loadOwned loads a plan and its conversation, enforcing ownership before
// any network call.
func (m *Manager) loadOwned(ctx context.Context, planID, userID string) (*domain.WorkflowPlan, *domain.Conversation, error) {
	plan, err := m.store.GetPlan(ctx, planID)
	if err != nil {
		return nil, nil, err
	}
	conv, err := m.store.GetConversation(ctx, plan.ConversationID)
	if err != nil {
		return nil, nil, err
	}
	if conv.OwnerID != userID {
		return nil, nil, domain.ErrUnauthorized("plan belongs to another user")
	}
	return plan, conv, nil
}

// Approve applies a pending plan to the live remote workflow and records a
// new version on success.
//
// The pending->approved move is a conditional transition: of two concurrent
// approvals exactly one wins, the other observes the plan already
// non-pending. Multiple pending plans per conversation may exist and race
// for the same workflow; that is deliberate (first approval wins).
func (m *Manager) Approve(ctx context.Context, planID, userID string) (*domain.WorkflowPlan, error) {
	plan, conv, err := m.loadOwned(ctx, planID, userID)
	if err != nil {
		return nil, err
	}
	if conv.WorkflowID == "" {
		return nil, domain.ErrNoTargetWorkflow(conv.ID)
	}

	// Approved is set before the remote call so a crash mid-apply is
	// observable.
	if err := m.store.TransitionPlan(ctx, planID, domain.PlanPending, domain.PlanApproved); err != nil {
		return nil, err
	}

	cred, err := m.store.GetCredential(ctx, conv.InstanceID)
	if err != nil {
		return nil, m.fail(ctx, planID, err)
	}
	client, err := m.clients(cred)
	if err != nil {
		return nil, m.fail(ctx, planID, err)
	}

	// The apply must outlive caller cancellation: interrupting the remote
	// write mid-flight would leave the workflow in an unknown state with no
	// local record.
	applyCtx := context.WithoutCancel(ctx)

	update := &domain.WorkflowUpdate{
		Name:        plan.ModifiedWorkflow.Name,
		Nodes:       plan.ModifiedWorkflow.Nodes,
		Connections: plan.ModifiedWorkflow.Connections,
	}
	applied, err := client.UpdateWorkflow(applyCtx, conv.WorkflowID, update)
	if err != nil {
		// A transport failure leaves the plan approved: the remote may have
		// partially applied and replace is not safely idempotent, so an
		// operator has to inspect before anything retries.
		if domain.KindOf(err, domain.ErrorKindTransport) {
			m.logger.Error("apply outcome unknown, plan left approved",
				slog.String("plan_id", planID),
				slog.String("workflow_id", conv.WorkflowID),
				slog.String("error", err.Error()))
			return nil, err
		}
		return nil, m.fail(applyCtx, planID, err)
	}

	// The version snapshot is the remote system's returned representation,
	// not the locally proposed one, so normalization drift stays visible.
	version := &domain.WorkflowVersion{
		ID:                uuid.New().String(),
		WorkflowID:        conv.WorkflowID,
		InstanceID:        conv.InstanceID,
		OwnerID:           conv.OwnerID,
		WorkflowData:      applied,
		ChangeDescription: changeDescription(plan),
		CreatedByAI:       true,
		PlanID:            plan.ID,
	}
	if err := m.store.CreateVersion(applyCtx, version); err != nil {
		return nil, m.fail(applyCtx, planID, err)
	}

	if err := m.store.MarkPlanApplied(applyCtx, planID, time.Now()); err != nil {
		return nil, err
	}

	m.logger.Info("plan applied",
		slog.String("plan_id", planID),
		slog.String("workflow_id", conv.WorkflowID),
		slog.Int("version", version.VersionNumber))

	return m.store.GetPlan(ctx, planID)
}

// fail records the terminal failed state with the error message and returns
// the original error. A recorded failure, not a silent swallow.
func (m *Manager) fail(ctx context.Context, planID string, cause error) error {
	if err := m.store.MarkPlanFailed(ctx, planID, cause.Error()); err != nil {
		m.logger.Error("failed to record plan failure",
			slog.String("plan_id", planID),
			slog.String("error", err.Error()))
	}
	return cause
}

// Reject marks a non-terminal plan rejected and records the reason as a
// system message. No remote call is made.
func (m *Manager) Reject(ctx context.Context, planID, userID, reason string) (*domain.WorkflowPlan, error) {
	plan, conv, err := m.loadOwned(ctx, planID, userID)
	if err != nil {
		return nil, err
	}

	if err := m.store.RejectPlan(ctx, planID, reason); err != nil {
		return nil, err
	}

	content := "Plan rejected."
	if reason != "" {
		content = "Plan rejected: " + reason
	}
	msg := &domain.Message{
		ID:             uuid.New().String(),
		ConversationID: conv.ID,
		Role:           domain.RoleSystem,
		Content:        content,
		Metadata:       &domain.MessageMetadata{RejectionOfPlan: plan.ID},
	}
	if err := m.store.AddMessage(ctx, msg); err != nil {
		return nil, err
	}

	return m.store.GetPlan(ctx, planID)
}

// Test executes the live remote workflow with the given input and stores the
// raw result on the plan. There is no sandboxing capability: this runs the
// real workflow. It never changes plan status and may be called in any
// state, any number of times.
func (m *Manager) Test(ctx context.Context, planID, userID string, testData map[string]any) (json.RawMessage, error) {
	plan, conv, err := m.loadOwned(ctx, planID, userID)
	if err != nil {
		return nil, err
	}
	if conv.WorkflowID == "" {
		return nil, domain.ErrNoTargetWorkflow(conv.ID)
	}

	cred, err := m.store.GetCredential(ctx, conv.InstanceID)
	if err != nil {
		return nil, err
	}
	client, err := m.clients(cred)
	if err != nil {
		return nil, err
	}

	execution, err := client.ExecuteWorkflow(ctx, conv.WorkflowID, testData)
	if err != nil {
		return nil, err
	}

	results, err := json.Marshal(execution)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal execution result: %w", err)
	}
	if err := m.store.SetTestResults(ctx, plan.ID, results); err != nil {
		return nil, err
	}

	return results, nil
}

// History lists the version trail for a workflow, newest first, restricted
// to the caller's own versions.
func (m *Manager) History(ctx context.Context, workflowID, instanceID, userID string) ([]*domain.WorkflowVersion, error) {
	if instanceID == "" {
		cred, err := m.store.FirstVerified(ctx, userID)
		if err != nil {
			return nil, err
		}
		instanceID = cred.ID
	}

	versions, err := m.store.ListVersions(ctx, workflowID, instanceID)
	if err != nil {
		return nil, err
	}

	owned := versions[:0]
	for _, v := range versions {
		if v.OwnerID == userID {
			owned = append(owned, v)
		}
	}
	return owned, nil
}

func changeDescription(plan *domain.WorkflowPlan) string {
	summary := diff.Workflows(plan.OriginalWorkflow, plan.ModifiedWorkflow)
	description := ""
	if plan.PlanData != nil {
		description = plan.PlanData.Description
	}
	if description == "" {
		return summary.String()
	}
	return fmt.Sprintf("%s (%s)", description, summary)
}
