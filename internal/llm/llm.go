// Package llm defines the provider-neutral interface the conversation
// engine uses to talk to a language-model provider.
package llm

import (
	"context"

	"github.com/tjfontaine/workflow-copilot/internal/domain"
)

// Message is one turn of provider-visible history.
type Message struct {
	Role    domain.Role
	Content string
}

// Tool describes a tool the model may invoke.
type Tool struct {
	Name        string
	Description string
	InputSchema any
}

// Request is a message-list-plus-system-prompt completion request carrying a
// fixed tool schema.
type Request struct {
	System    string
	Messages  []Message
	Tools     []Tool
	MaxTokens int
}

// Response carries the provider's free text plus zero or more structured
// tool invocations.
type Response struct {
	Content    string
	ToolCalls  []domain.ToolCall
	StopReason string
}

// Provider is a synchronous LLM completion backend.
type Provider interface {
	Name() string
	Complete(ctx context.Context, req *Request) (*Response, error)
}
