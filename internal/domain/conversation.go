package domain

import "time"

// Role identifies the author of a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// ConversationStatus tracks whether a conversation is still open.
type ConversationStatus string

const (
	ConversationActive   ConversationStatus = "active"
	ConversationArchived ConversationStatus = "archived"
)

// Conversation owns an ordered sequence of messages and any plans proposed
// within it. WorkflowID is the optional target workflow the user is editing.
type Conversation struct {
	ID         string             `json:"id"`
	OwnerID    string             `json:"owner_id"`
	InstanceID string             `json:"instance_id"`
	WorkflowID string             `json:"workflow_id,omitempty"`
	Title      string             `json:"title"`
	Status     ConversationStatus `json:"status"`
	CreatedAt  time.Time          `json:"created_at"`
	UpdatedAt  time.Time          `json:"updated_at"`

	Messages []Message `json:"messages,omitempty"`
}

// MessageMetadata carries the provider's raw tool-call records and stop
// reason for auditing, plus a prompt-size estimate.
type MessageMetadata struct {
	ToolCalls       []ToolCall `json:"tool_calls,omitempty"`
	StopReason      string     `json:"stop_reason,omitempty"`
	EstimatedTokens int        `json:"estimated_tokens,omitempty"`
	RejectionOfPlan string     `json:"rejection_of_plan,omitempty"`
}

// Message is one entry in a conversation. Append-only; never edited or
// deleted by the core.
type Message struct {
	ID             string           `json:"id"`
	ConversationID string           `json:"conversation_id"`
	Role           Role             `json:"role"`
	Content        string           `json:"content"`
	Metadata       *MessageMetadata `json:"metadata,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
}
