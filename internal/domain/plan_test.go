package domain

import (
	"encoding/json"
	"testing"
)

func TestParseToolCall(t *testing.T) {
	call := ToolCall{
		ID:   "tc-1",
		Name: ToolGenerateWorkflowPlan,
		Input: json.RawMessage(`{
			"description": "add an error handler",
			"nodes": [{"name": "Error Handler", "type": "n8n-nodes-base.errorTrigger"}]
		}`),
	}

	parsed, err := ParseToolCall(call)
	if err != nil {
		t.Fatalf("ParseToolCall() error = %v", err)
	}
	if parsed.Unrecognized {
		t.Fatal("plan call flagged unrecognized")
	}
	if parsed.Proposal == nil || parsed.Proposal.Description != "add an error handler" {
		t.Errorf("Proposal = %+v", parsed.Proposal)
	}
	if len(parsed.Proposal.Nodes) != 1 || parsed.Proposal.Nodes[0].Name != "Error Handler" {
		t.Errorf("Nodes = %+v", parsed.Proposal.Nodes)
	}
}

func TestParseToolCallUnrecognized(t *testing.T) {
	parsed, err := ParseToolCall(ToolCall{ID: "tc-1", Name: "list_workflows", Input: json.RawMessage(`{}`)})
	if err != nil {
		t.Fatalf("ParseToolCall() error = %v", err)
	}
	if !parsed.Unrecognized || parsed.Proposal != nil {
		t.Errorf("parsed = %+v, want unrecognized with no proposal", parsed)
	}
}

func TestParseToolCallValidation(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"not json", `not json`},
		{"missing description", `{"nodes": []}`},
		{"missing nodes", `{"description": "x"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseToolCall(ToolCall{
				Name:  ToolGenerateWorkflowPlan,
				Input: json.RawMessage(tt.input),
			})
			if !KindOf(err, ErrorKindInvalidRequest) {
				t.Errorf("ParseToolCall() error = %v, want invalid_request", err)
			}
		})
	}

	// An explicitly empty nodes array is a valid proposal: remove everything.
	parsed, err := ParseToolCall(ToolCall{
		Name:  ToolGenerateWorkflowPlan,
		Input: json.RawMessage(`{"description": "clear the workflow", "nodes": []}`),
	})
	if err != nil {
		t.Fatalf("ParseToolCall() error = %v", err)
	}
	if parsed.Proposal == nil || len(parsed.Proposal.Nodes) != 0 {
		t.Errorf("Proposal = %+v", parsed.Proposal)
	}
}

func TestPlanStatusTerminal(t *testing.T) {
	terminal := map[PlanStatus]bool{
		PlanPending:  false,
		PlanApproved: false,
		PlanRejected: true,
		PlanApplied:  true,
		PlanFailed:   true,
	}
	for status, want := range terminal {
		if status.Terminal() != want {
			t.Errorf("%s.Terminal() = %v, want %v", status, status.Terminal(), want)
		}
	}
}
