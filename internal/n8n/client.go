// Package n8n is a thin, stateless client for the remote workflow
// automation platform's REST API.
package n8n

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tjfontaine/workflow-copilot/internal/domain"
	"github.com/tjfontaine/workflow-copilot/internal/vault"
)

const (
	// apiPrefix is the versioned path prefix of the public API.
	apiPrefix = "/api/v1"

	// secretHeader carries the instance API key on every request.
	secretHeader = "X-N8N-API-KEY"

	// DefaultTimeout bounds every remote call unless the caller overrides it.
	DefaultTimeout = 30 * time.Second

	// defaultExecutionLimit applies when ListExecutions is called with
	// limit <= 0.
	defaultExecutionLimit = 20
)

// ClientOption configures the client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.timeout = timeout
	}
}

// Client issues synchronous requests against one platform instance. It holds
// no state beyond its base URL and secret; no operation retries.
type Client struct {
	baseURL    string
	secret     string
	httpClient *http.Client
	timeout    time.Duration
}

// New creates a client from a base URL and a plaintext instance secret.
func New(baseURL, secret string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		secret:     secret,
		httpClient: http.DefaultClient,
		timeout:    DefaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FromEncrypted creates a client by decrypting the stored secret eagerly.
// A vault decryption failure aborts construction.
func FromEncrypted(v *vault.Vault, baseURL, encryptedSecret string, opts ...ClientOption) (*Client, error) {
	secret, err := v.Decrypt(encryptedSecret)
	if err != nil {
		return nil, err
	}
	return New(baseURL, secret, opts...), nil
}

// workflowList is the platform's list envelope.
type workflowList struct {
	Data []domain.Workflow `json:"data"`
}

// executionList is the platform's execution list envelope.
type executionList struct {
	Data []domain.Execution `json:"data"`
}

// ListWorkflows returns all workflows on the instance.
func (c *Client) ListWorkflows(ctx context.Context) ([]domain.Workflow, error) {
	var result workflowList
	if err := c.do(ctx, http.MethodGet, "/workflows", nil, &result); err != nil {
		return nil, err
	}
	return result.Data, nil
}

// GetWorkflow fetches one workflow by id.
func (c *Client) GetWorkflow(ctx context.Context, id string) (*domain.Workflow, error) {
	var result domain.Workflow
	if err := c.do(ctx, http.MethodGet, "/workflows/"+url.PathEscape(id), nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// CreateWorkflow creates a new workflow. Not idempotent.
func (c *Client) CreateWorkflow(ctx context.Context, wf *domain.Workflow) (*domain.Workflow, error) {
	var result domain.Workflow
	if err := c.do(ctx, http.MethodPost, "/workflows", wf, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// UpdateWorkflow replaces the mutable fields of a workflow. Not idempotent
// against partial remote application; callers must not invoke it twice for
// one logical change.
func (c *Client) UpdateWorkflow(ctx context.Context, id string, update *domain.WorkflowUpdate) (*domain.Workflow, error) {
	var result domain.Workflow
	if err := c.do(ctx, http.MethodPatch, "/workflows/"+url.PathEscape(id), update, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// DeleteWorkflow removes a workflow.
func (c *Client) DeleteWorkflow(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/workflows/"+url.PathEscape(id), nil, nil)
}

// ActivateWorkflow turns a workflow on.
func (c *Client) ActivateWorkflow(ctx context.Context, id string) (*domain.Workflow, error) {
	var result domain.Workflow
	if err := c.do(ctx, http.MethodPost, "/workflows/"+url.PathEscape(id)+"/activate", nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// DeactivateWorkflow turns a workflow off.
func (c *Client) DeactivateWorkflow(ctx context.Context, id string) (*domain.Workflow, error) {
	var result domain.Workflow
	if err := c.do(ctx, http.MethodPost, "/workflows/"+url.PathEscape(id)+"/deactivate", nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ListExecutions returns recent executions, optionally filtered by workflow.
func (c *Client) ListExecutions(ctx context.Context, workflowID string, limit int) ([]domain.Execution, error) {
	if limit <= 0 {
		limit = defaultExecutionLimit
	}
	query := url.Values{"limit": []string{strconv.Itoa(limit)}}
	if workflowID != "" {
		query.Set("workflowId", workflowID)
	}

	var result executionList
	if err := c.do(ctx, http.MethodGet, "/executions?"+query.Encode(), nil, &result); err != nil {
		return nil, err
	}
	return result.Data, nil
}

// GetExecution fetches one execution by id.
func (c *Client) GetExecution(ctx context.Context, id string) (*domain.Execution, error) {
	var result domain.Execution
	if err := c.do(ctx, http.MethodGet, "/executions/"+url.PathEscape(id), nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ExecuteWorkflow starts a new remote run with an optional input payload.
// Each call starts a fresh run; never retried.
func (c *Client) ExecuteWorkflow(ctx context.Context, id string, input map[string]any) (*domain.Execution, error) {
	var body any
	if input != nil {
		body = map[string]any{"data": input}
	}

	var result domain.Execution
	if err := c.do(ctx, http.MethodPost, "/workflows/"+url.PathEscape(id)+"/run", body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// HealthCheck reports whether a lightweight list call succeeds. Used to flip
// credential status after registration.
func (c *Client) HealthCheck(ctx context.Context) bool {
	_, err := c.ListWorkflows(ctx)
	return err == nil
}

func (c *Client) do(ctx context.Context, method, path string, body, result any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+apiPrefix+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set(secretHeader, c.secret)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.ErrTransport(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.ErrTransport(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return domain.ErrUpstream(resp.StatusCode, string(respBody))
	}

	if result == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, result); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return nil
}
