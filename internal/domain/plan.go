package domain

import (
	"encoding/json"
	"time"
)

// PlanStatus is the state of a workflow plan. Transitions:
// pending -> approved -> {applied | failed}, pending -> rejected.
// applied, rejected and failed are terminal.
type PlanStatus string

const (
	PlanPending  PlanStatus = "pending"
	PlanApproved PlanStatus = "approved"
	PlanRejected PlanStatus = "rejected"
	PlanApplied  PlanStatus = "applied"
	PlanFailed   PlanStatus = "failed"
)

// Terminal reports whether no further status transition is allowed.
func (s PlanStatus) Terminal() bool {
	return s == PlanApplied || s == PlanRejected || s == PlanFailed
}

// WorkflowPlan is a proposed, not-yet-applied change to a remote workflow.
// It carries both the snapshot the proposal was based on and the full
// proposed snapshot, so apply is a whole replacement, never a merge.
type WorkflowPlan struct {
	ID               string          `json:"id"`
	ConversationID   string          `json:"conversation_id"`
	Status           PlanStatus      `json:"status"`
	PlanData         *PlanProposal   `json:"plan_data"`
	OriginalWorkflow *Workflow       `json:"original_workflow,omitempty"`
	ModifiedWorkflow *Workflow       `json:"modified_workflow"`
	TestResults      json.RawMessage `json:"test_results,omitempty"`
	ErrorMessage     string          `json:"error_message,omitempty"`
	AppliedAt        *time.Time      `json:"applied_at,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// ToolCall is a structured invocation emitted by the LLM provider.
type ToolCall struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

// PlanProposal is the validated input of a generate_workflow_plan tool call.
type PlanProposal struct {
	Description string      `json:"description"`
	Nodes       []Node      `json:"nodes"`
	Connections Connections `json:"connections,omitempty"`
}

// ParsedToolCall is the result of dispatching a raw provider tool call.
// Exactly one of Proposal or Unrecognized is set: plan proposals get a
// validated structure, anything else is advisory and passes through.
type ParsedToolCall struct {
	Call         ToolCall
	Proposal     *PlanProposal
	Unrecognized bool
}

// ToolGenerateWorkflowPlan is the only tool call acted on by the plan
// lifecycle path.
const ToolGenerateWorkflowPlan = "generate_workflow_plan"

// ParseToolCall validates a raw tool call into its tagged form.
func ParseToolCall(call ToolCall) (ParsedToolCall, error) {
	if call.Name != ToolGenerateWorkflowPlan {
		return ParsedToolCall{Call: call, Unrecognized: true}, nil
	}

	var proposal PlanProposal
	if err := json.Unmarshal(call.Input, &proposal); err != nil {
		return ParsedToolCall{}, ErrInvalidRequest("malformed " + ToolGenerateWorkflowPlan + " input: " + err.Error())
	}
	if proposal.Description == "" {
		return ParsedToolCall{}, ErrInvalidRequest(ToolGenerateWorkflowPlan + " requires a description")
	}
	if proposal.Nodes == nil {
		return ParsedToolCall{}, ErrInvalidRequest(ToolGenerateWorkflowPlan + " requires a nodes array")
	}
	return ParsedToolCall{Call: call, Proposal: &proposal}, nil
}
