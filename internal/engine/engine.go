// Package engine turns natural-language requests into structured workflow
// plans. It holds conversation history, grounds the prompt in the current
// remote workflow snapshot, and extracts at most one plan proposal per turn.
//
// Plans are never applied here. Creation and application are strictly
// separated so a provider hallucination cannot mutate a live workflow
// without a human approval step.
package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/tiktoken-go/tokenizer"

	"github.com/tjfontaine/workflow-copilot/internal/domain"
	"github.com/tjfontaine/workflow-copilot/internal/llm"
	"github.com/tjfontaine/workflow-copilot/internal/storage"
)

// WorkflowFetcher is the slice of the platform client the engine needs to
// ground prompts.
type WorkflowFetcher interface {
	GetWorkflow(ctx context.Context, id string) (*domain.Workflow, error)
	ListWorkflows(ctx context.Context) ([]domain.Workflow, error)
}

// ClientFactory builds a platform client from a stored credential. The
// factory decrypts the credential secret, so it is fallible I/O-adjacent
// work, not a pure function.
type ClientFactory func(cred *domain.Credential) (WorkflowFetcher, error)

// Engine is the conversation engine.
type Engine struct {
	store    storage.Store
	provider llm.Provider
	clients  ClientFactory
	logger   *slog.Logger
	codec    tokenizer.Codec
}

// New creates an engine. provider may be nil when no LLM credential is
// configured; SendMessage then fails fast.
func New(store storage.Store, provider llm.Provider, clients ClientFactory, logger *slog.Logger) *Engine {
	// Token estimates are best-effort; a missing encoding just disables them.
	codec, err := tokenizer.Get(tokenizer.Cl100kBase)
	if err != nil {
		codec = nil
	}

	return &Engine{
		store:    store,
		provider: provider,
		clients:  clients,
		logger:   logger,
		codec:    codec,
	}
}

// CreateConversation starts a new conversation bound to a credential.
// Precedence for the instance: an explicit instanceID wins; otherwise the
// owner's first verified credential is used.
func (e *Engine) CreateConversation(ctx context.Context, ownerID, instanceID, workflowID, title string) (*domain.Conversation, error) {
	var cred *domain.Credential
	var err error
	if instanceID != "" {
		cred, err = e.store.GetCredential(ctx, instanceID)
	} else {
		cred, err = e.store.FirstVerified(ctx, ownerID)
	}
	if err != nil {
		return nil, err
	}
	if cred.OwnerID != ownerID {
		return nil, domain.ErrUnauthorized("credential belongs to another user")
	}

	if title == "" {
		title = "New conversation"
	}

	conv := &domain.Conversation{
		ID:         uuid.New().String(),
		OwnerID:    ownerID,
		InstanceID: cred.ID,
		WorkflowID: workflowID,
		Title:      title,
		Status:     domain.ConversationActive,
	}
	if err := e.store.CreateConversation(ctx, conv); err != nil {
		return nil, err
	}

	return conv, nil
}

// GetConversation loads a conversation with its message history, enforcing
// ownership.
func (e *Engine) GetConversation(ctx context.Context, conversationID, userID string) (*domain.Conversation, error) {
	conv, err := e.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv.OwnerID != userID {
		return nil, domain.ErrUnauthorized("conversation belongs to another user")
	}
	return conv, nil
}

// ListConversations lists the user's conversations, newest first.
func (e *Engine) ListConversations(ctx context.Context, userID string, opts storage.ListOptions) ([]*domain.Conversation, error) {
	return e.store.ListConversations(ctx, userID, opts)
}

// SendResult is the outcome of one SendMessage turn.
type SendResult struct {
	MessageID string               `json:"message_id"`
	Content   string               `json:"content"`
	Plan      *domain.WorkflowPlan `json:"plan,omitempty"`
	ToolCalls []domain.ToolCall    `json:"tool_calls,omitempty"`
}

// planConfirmation is appended to the assistant text whenever a plan was
// created, so the user always sees the approval requirement.
const planConfirmation = "\n\nI've prepared a plan with these changes. Review it and approve to apply, or reject it."

// SendMessage runs one conversation turn: persist the user message, call the
// provider with the full history and tool schema, and create at most one
// pending plan from the provider's generate_workflow_plan tool call.
func (e *Engine) SendMessage(ctx context.Context, conversationID, userID, text string) (*SendResult, error) {
	if text == "" {
		return nil, domain.ErrInvalidRequest("message text is required")
	}

	conv, err := e.GetConversation(ctx, conversationID, userID)
	if err != nil {
		return nil, err
	}

	// The user message is persisted before any network call, so history is
	// never lost on provider failure.
	userMsg := &domain.Message{
		ID:             uuid.New().String(),
		ConversationID: conv.ID,
		Role:           domain.RoleUser,
		Content:        text,
	}
	if err := e.store.AddMessage(ctx, userMsg); err != nil {
		return nil, err
	}
	conv.Messages = append(conv.Messages, *userMsg)

	// Fetch the target workflow snapshot to ground the prompt. Failures are
	// non-fatal; the prompt just omits workflow context.
	var snapshot *domain.Workflow
	if conv.WorkflowID != "" {
		snapshot = e.fetchSnapshot(ctx, conv)
	}

	if e.provider == nil {
		return nil, domain.ErrProviderNotConfigured()
	}

	req := &llm.Request{
		System: systemPrompt(snapshot),
		Tools:  toolSchema(),
	}
	for _, msg := range conv.Messages {
		if msg.Role == domain.RoleSystem {
			continue
		}
		req.Messages = append(req.Messages, llm.Message{Role: msg.Role, Content: msg.Content})
	}

	resp, err := e.provider.Complete(ctx, req)
	if err != nil {
		return nil, err
	}

	content := resp.Content
	plan, err := e.createPlanFromToolCalls(ctx, conv, snapshot, resp.ToolCalls)
	if err != nil {
		return nil, err
	}
	if plan != nil {
		content += planConfirmation
	}

	assistantMsg := &domain.Message{
		ID:             uuid.New().String(),
		ConversationID: conv.ID,
		Role:           domain.RoleAssistant,
		Content:        content,
		Metadata: &domain.MessageMetadata{
			ToolCalls:       resp.ToolCalls,
			StopReason:      resp.StopReason,
			EstimatedTokens: e.estimateTokens(req),
		},
	}
	if err := e.store.AddMessage(ctx, assistantMsg); err != nil {
		return nil, err
	}

	return &SendResult{
		MessageID: assistantMsg.ID,
		Content:   content,
		Plan:      plan,
		ToolCalls: resp.ToolCalls,
	}, nil
}

func (e *Engine) fetchSnapshot(ctx context.Context, conv *domain.Conversation) *domain.Workflow {
	cred, err := e.store.GetCredential(ctx, conv.InstanceID)
	if err != nil {
		e.logger.Warn("workflow context unavailable",
			slog.String("conversation_id", conv.ID),
			slog.String("error", err.Error()))
		return nil
	}
	client, err := e.clients(cred)
	if err != nil {
		e.logger.Warn("workflow context unavailable",
			slog.String("conversation_id", conv.ID),
			slog.String("error", err.Error()))
		return nil
	}
	snapshot, err := client.GetWorkflow(ctx, conv.WorkflowID)
	if err != nil {
		e.logger.Warn("workflow context unavailable",
			slog.String("conversation_id", conv.ID),
			slog.String("workflow_id", conv.WorkflowID),
			slog.String("error", err.Error()))
		return nil
	}
	return snapshot
}

// createPlanFromToolCalls creates one pending plan for the first
// generate_workflow_plan call. Other tool calls are advisory and pass
// through unacted.
func (e *Engine) createPlanFromToolCalls(ctx context.Context, conv *domain.Conversation, snapshot *domain.Workflow, calls []domain.ToolCall) (*domain.WorkflowPlan, error) {
	for _, call := range calls {
		parsed, err := domain.ParseToolCall(call)
		if err != nil {
			return nil, err
		}
		if parsed.Unrecognized {
			continue
		}

		modified := modifiedSnapshot(conv.WorkflowID, snapshot, parsed.Proposal)
		plan := &domain.WorkflowPlan{
			ID:               uuid.New().String(),
			ConversationID:   conv.ID,
			Status:           domain.PlanPending,
			PlanData:         parsed.Proposal,
			OriginalWorkflow: snapshot,
			ModifiedWorkflow: modified,
		}
		if err := e.store.CreatePlan(ctx, plan); err != nil {
			return nil, err
		}
		return plan, nil
	}
	return nil, nil
}

// modifiedSnapshot builds the full proposed snapshot: the original with
// nodes replaced by the proposal's, and connections replaced by the
// proposal's or else kept.
func modifiedSnapshot(workflowID string, original *domain.Workflow, proposal *domain.PlanProposal) *domain.Workflow {
	var modified domain.Workflow
	if original != nil {
		modified = *original
	} else {
		modified.ID = workflowID
	}
	modified.Nodes = proposal.Nodes
	if proposal.Connections != nil {
		modified.Connections = proposal.Connections
	}
	return &modified
}

func (e *Engine) estimateTokens(req *llm.Request) int {
	if e.codec == nil {
		return 0
	}
	total := countTokens(e.codec, req.System)
	for _, msg := range req.Messages {
		total += countTokens(e.codec, msg.Content)
	}
	return total
}

func countTokens(codec tokenizer.Codec, text string) int {
	if text == "" {
		return 0
	}
	ids, _, err := codec.Encode(text)
	if err != nil {
		return 0
	}
	return len(ids)
}

// systemPrompt embeds the capability description, the current workflow
// context, and the house rules. The assistant must never assert it applied
// changes; every change requires explicit approval.
func systemPrompt(snapshot *domain.Workflow) string {
	workflowContext := "No workflow selected."
	if snapshot != nil {
		state := "inactive"
		if snapshot.Active {
			state = "active"
		}
		workflowContext = fmt.Sprintf("Current workflow: %q (id %s, %d nodes, %s).",
			snapshot.Name, snapshot.ID, len(snapshot.Nodes), state)
	}

	return `You are a workflow automation copilot. You help users modify workflows on their automation platform by proposing structured change plans.

` + workflowContext + `

Rules:
- To propose a change, call generate_workflow_plan with the complete modified node list. Always include every existing node you are not changing.
- Never claim that you applied, deployed, or activated a change. Plans take effect only after the user explicitly approves them.
- Use the read-only tools to explore workflows before proposing changes.
- If the request is ambiguous, ask instead of guessing.`
}

// toolSchema is the fixed tool set sent with every completion. Only
// generate_workflow_plan is acted on; the rest are read-only exploration.
func toolSchema() []llm.Tool {
	return []llm.Tool{
		{
			Name:        domain.ToolGenerateWorkflowPlan,
			Description: "Propose a structured change to the current workflow. The plan is shown to the user for approval; it is never applied directly.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"description": map[string]any{
						"type":        "string",
						"description": "Human-readable summary of the proposed change.",
					},
					"nodes": map[string]any{
						"type":        "array",
						"description": "The complete replacement node list for the workflow.",
						"items":       map[string]any{"type": "object"},
					},
					"connections": map[string]any{
						"type":        "object",
						"description": "Optional replacement connection map; omit to keep the current connections.",
					},
				},
				"required": []string{"description", "nodes"},
			},
		},
		{
			Name:        "list_workflows",
			Description: "List the workflows available on the user's instance.",
			InputSchema: map[string]any{"type": "object", "properties": map[string]any{}},
		},
		{
			Name:        "get_workflow",
			Description: "Fetch the full definition of one workflow by id.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"workflow_id": map[string]any{"type": "string"},
				},
				"required": []string{"workflow_id"},
			},
		},
	}
}
