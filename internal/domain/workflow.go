package domain

import (
	"encoding/json"
	"time"
)

// Node is a single node in a remote workflow graph. Parameters are kept
// opaque; the copilot never interprets node internals, it only moves whole
// nodes around.
type Node struct {
	ID          string         `json:"id,omitempty"`
	Name        string         `json:"name"`
	Type        string         `json:"type"`
	TypeVersion float64        `json:"typeVersion,omitempty"`
	Position    []float64      `json:"position,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
	Credentials map[string]any `json:"credentials,omitempty"`
}

// Connections maps a source node name to its outgoing connection groups.
// The remote platform owns this shape; it round-trips untouched.
type Connections map[string]any

// Workflow is the remote platform's full representation of a workflow.
type Workflow struct {
	ID          string         `json:"id,omitempty"`
	Name        string         `json:"name"`
	Active      bool           `json:"active"`
	Nodes       []Node         `json:"nodes"`
	Connections Connections    `json:"connections"`
	Settings    map[string]any `json:"settings,omitempty"`
	Tags        []string       `json:"tags,omitempty"`
	UpdatedAt   string         `json:"updatedAt,omitempty"`
}

// WorkflowUpdate is the mutable subset pushed on apply. The remote PATCH
// replaces exactly these fields.
type WorkflowUpdate struct {
	Name        string      `json:"name,omitempty"`
	Nodes       []Node      `json:"nodes,omitempty"`
	Connections Connections `json:"connections,omitempty"`
}

// Execution is one remote run of a workflow.
type Execution struct {
	ID         string          `json:"id"`
	WorkflowID string          `json:"workflowId"`
	Status     string          `json:"status"`
	StartedAt  *time.Time      `json:"startedAt,omitempty"`
	StoppedAt  *time.Time      `json:"stoppedAt,omitempty"`
	Data       json.RawMessage `json:"data,omitempty"`
}

// WorkflowVersion is an immutable numbered snapshot of a workflow, written
// only on successful plan application. VersionNumber is strictly increasing
// per (WorkflowID, InstanceID), starting at 1.
type WorkflowVersion struct {
	ID                string    `json:"id"`
	WorkflowID        string    `json:"workflow_id"`
	InstanceID        string    `json:"instance_id"`
	OwnerID           string    `json:"owner_id"`
	VersionNumber     int       `json:"version_number"`
	WorkflowData      *Workflow `json:"workflow_data"`
	ChangeDescription string    `json:"change_description"`
	CreatedByAI       bool      `json:"created_by_ai"`
	PlanID            string    `json:"plan_id,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}
