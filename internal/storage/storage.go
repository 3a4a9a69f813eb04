// Package storage defines the persistence interfaces consumed by the
// conversation engine and the plan lifecycle manager.
package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/tjfontaine/workflow-copilot/internal/domain"
)

// ListOptions bounds list queries.
type ListOptions struct {
	Limit  int
	Offset int
}

// ConversationStore persists conversations and their append-only messages.
type ConversationStore interface {
	CreateConversation(ctx context.Context, conv *domain.Conversation) error
	// GetConversation loads a conversation with its full ordered message
	// history.
	GetConversation(ctx context.Context, id string) (*domain.Conversation, error)
	ListConversations(ctx context.Context, ownerID string, opts ListOptions) ([]*domain.Conversation, error)
	AddMessage(ctx context.Context, msg *domain.Message) error
}

// CredentialStore persists encrypted platform credentials. The orchestration
// core reads them; only registration/verification flows mutate them.
type CredentialStore interface {
	CreateCredential(ctx context.Context, cred *domain.Credential) error
	GetCredential(ctx context.Context, id string) (*domain.Credential, error)
	// FirstVerified returns the owner's oldest verified credential: the
	// documented fallback when no explicit instance id is supplied.
	FirstVerified(ctx context.Context, ownerID string) (*domain.Credential, error)
	UpdateCredentialStatus(ctx context.Context, id string, status domain.CredentialStatus, verifiedAt *time.Time) error
	DeleteCredential(ctx context.Context, id, ownerID string) error
}

// PlanStore persists workflow plans. Status moves only through the
// conditional transitions below; everything else is append-only.
type PlanStore interface {
	CreatePlan(ctx context.Context, plan *domain.WorkflowPlan) error
	GetPlan(ctx context.Context, id string) (*domain.WorkflowPlan, error)
	// TransitionPlan moves a plan from exactly the given source status.
	// It fails with a plan-not-pending error when the plan is in any other
	// state, so concurrent callers race for a single winner.
	TransitionPlan(ctx context.Context, id string, from, to domain.PlanStatus) error
	// RejectPlan marks any non-terminal plan rejected, recording the reason.
	RejectPlan(ctx context.Context, id, reason string) error
	MarkPlanApplied(ctx context.Context, id string, appliedAt time.Time) error
	MarkPlanFailed(ctx context.Context, id, errorMessage string) error
	SetTestResults(ctx context.Context, id string, results json.RawMessage) error
}

// VersionStore is the append-only audit substrate. CreateVersion assigns the
// next per-(workflowID, instanceID) version number under the same critical
// section as the write, so concurrent applies never share a number.
type VersionStore interface {
	CreateVersion(ctx context.Context, version *domain.WorkflowVersion) error
	ListVersions(ctx context.Context, workflowID, instanceID string) ([]*domain.WorkflowVersion, error)
}

// Store bundles every persistence concern behind one handle.
type Store interface {
	ConversationStore
	CredentialStore
	PlanStore
	VersionStore
	Close() error
}
