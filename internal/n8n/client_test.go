package n8n

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/tjfontaine/workflow-copilot/internal/domain"
	"github.com/tjfontaine/workflow-copilot/internal/vault"
)

// recordingServer captures the last request and serves canned JSON.
type recordingServer struct {
	*httptest.Server
	lastMethod string
	lastPath   string
	lastQuery  string
	lastHeader http.Header
	lastBody   []byte
}

func newRecordingServer(t *testing.T, status int, response string) *recordingServer {
	t.Helper()
	rs := &recordingServer{}
	rs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rs.lastMethod = r.Method
		rs.lastPath = r.URL.Path
		rs.lastQuery = r.URL.RawQuery
		rs.lastHeader = r.Header.Clone()
		rs.lastBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(status)
		w.Write([]byte(response))
	}))
	t.Cleanup(rs.Close)
	return rs
}

func TestListWorkflows(t *testing.T) {
	srv := newRecordingServer(t, http.StatusOK,
		`{"data":[{"id":"wf-1","name":"Daily Sync"},{"id":"wf-2","name":"Alerts"}]}`)
	client := New(srv.URL, "instance-secret")

	workflows, err := client.ListWorkflows(context.Background())
	if err != nil {
		t.Fatalf("ListWorkflows() error = %v", err)
	}

	if srv.lastMethod != http.MethodGet || srv.lastPath != "/api/v1/workflows" {
		t.Errorf("request = %s %s, want GET /api/v1/workflows", srv.lastMethod, srv.lastPath)
	}
	if got := srv.lastHeader.Get("X-N8N-API-KEY"); got != "instance-secret" {
		t.Errorf("X-N8N-API-KEY = %q, want %q", got, "instance-secret")
	}
	if len(workflows) != 2 || workflows[0].ID != "wf-1" || workflows[1].Name != "Alerts" {
		t.Errorf("ListWorkflows() = %+v, want 2 workflows from envelope", workflows)
	}
}

func TestGetWorkflow(t *testing.T) {
	srv := newRecordingServer(t, http.StatusOK, `{"id":"wf-1","name":"Daily Sync","active":true}`)
	client := New(srv.URL, "secret")

	wf, err := client.GetWorkflow(context.Background(), "wf-1")
	if err != nil {
		t.Fatalf("GetWorkflow() error = %v", err)
	}
	if srv.lastPath != "/api/v1/workflows/wf-1" {
		t.Errorf("path = %s, want /api/v1/workflows/wf-1", srv.lastPath)
	}
	if wf.ID != "wf-1" || !wf.Active {
		t.Errorf("GetWorkflow() = %+v", wf)
	}
}

func TestUpdateWorkflow(t *testing.T) {
	srv := newRecordingServer(t, http.StatusOK, `{"id":"wf-1","name":"Renamed"}`)
	client := New(srv.URL, "secret")

	update := &domain.WorkflowUpdate{Name: "Renamed"}
	wf, err := client.UpdateWorkflow(context.Background(), "wf-1", update)
	if err != nil {
		t.Fatalf("UpdateWorkflow() error = %v", err)
	}

	if srv.lastMethod != http.MethodPatch || srv.lastPath != "/api/v1/workflows/wf-1" {
		t.Errorf("request = %s %s, want PATCH /api/v1/workflows/wf-1", srv.lastMethod, srv.lastPath)
	}
	if ct := srv.lastHeader.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
	var sent map[string]any
	if err := json.Unmarshal(srv.lastBody, &sent); err != nil {
		t.Fatalf("request body is not JSON: %v", err)
	}
	if sent["name"] != "Renamed" {
		t.Errorf("sent name = %v, want Renamed", sent["name"])
	}
	if wf.Name != "Renamed" {
		t.Errorf("UpdateWorkflow() returned name %q, want Renamed", wf.Name)
	}
}

func TestExecuteWorkflow(t *testing.T) {
	srv := newRecordingServer(t, http.StatusOK, `{"id":"exec-1","status":"success"}`)
	client := New(srv.URL, "secret")

	exec, err := client.ExecuteWorkflow(context.Background(), "wf-1", map[string]any{"city": "Berlin"})
	if err != nil {
		t.Fatalf("ExecuteWorkflow() error = %v", err)
	}

	if srv.lastMethod != http.MethodPost || srv.lastPath != "/api/v1/workflows/wf-1/run" {
		t.Errorf("request = %s %s, want POST /api/v1/workflows/wf-1/run", srv.lastMethod, srv.lastPath)
	}
	var sent map[string]any
	if err := json.Unmarshal(srv.lastBody, &sent); err != nil {
		t.Fatalf("request body is not JSON: %v", err)
	}
	data, ok := sent["data"].(map[string]any)
	if !ok || data["city"] != "Berlin" {
		t.Errorf("sent body = %s, want input wrapped under data", srv.lastBody)
	}
	if exec.ID != "exec-1" {
		t.Errorf("ExecuteWorkflow() = %+v", exec)
	}
}

func TestListExecutionsQuery(t *testing.T) {
	srv := newRecordingServer(t, http.StatusOK, `{"data":[]}`)
	client := New(srv.URL, "secret")

	if _, err := client.ListExecutions(context.Background(), "wf-1", 0); err != nil {
		t.Fatalf("ListExecutions() error = %v", err)
	}
	if srv.lastQuery != "limit=20&workflowId=wf-1" {
		t.Errorf("query = %q, want limit=20&workflowId=wf-1", srv.lastQuery)
	}

	if _, err := client.ListExecutions(context.Background(), "", 5); err != nil {
		t.Fatalf("ListExecutions() error = %v", err)
	}
	if srv.lastQuery != "limit=5" {
		t.Errorf("query = %q, want limit=5", srv.lastQuery)
	}
}

func TestUpstreamError(t *testing.T) {
	srv := newRecordingServer(t, http.StatusNotFound, `{"message":"workflow not found"}`)
	client := New(srv.URL, "secret")

	_, err := client.GetWorkflow(context.Background(), "missing")
	if !domain.KindOf(err, domain.ErrorKindUpstream) {
		t.Fatalf("GetWorkflow() error = %v, want upstream", err)
	}

	var coreErr *domain.Error
	if !errors.As(err, &coreErr) {
		t.Fatalf("error %v is not a core error", err)
	}
	if coreErr.StatusCode != http.StatusNotFound {
		t.Errorf("StatusCode = %d, want 404", coreErr.StatusCode)
	}
	if coreErr.Body != `{"message":"workflow not found"}` {
		t.Errorf("Body = %q, want raw upstream body", coreErr.Body)
	}
}

func TestTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused from here on
	client := New(srv.URL, "secret")

	_, err := client.ListWorkflows(context.Background())
	if !domain.KindOf(err, domain.ErrorKindTransport) {
		t.Fatalf("ListWorkflows() error = %v, want transport", err)
	}
}

func TestHealthCheck(t *testing.T) {
	healthy := newRecordingServer(t, http.StatusOK, `{"data":[]}`)
	if !New(healthy.URL, "secret").HealthCheck(context.Background()) {
		t.Error("HealthCheck() = false against healthy instance")
	}

	unauthorized := newRecordingServer(t, http.StatusUnauthorized, `{"message":"unauthorized"}`)
	if New(unauthorized.URL, "bad-secret").HealthCheck(context.Background()) {
		t.Error("HealthCheck() = true against rejecting instance")
	}
}

func TestFromEncrypted(t *testing.T) {
	v, err := vault.New(bytes.Repeat([]byte{0x01}, vault.KeySize))
	if err != nil {
		t.Fatalf("vault.New() error = %v", err)
	}
	record, err := v.Encrypt("the-real-secret")
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}

	srv := newRecordingServer(t, http.StatusOK, `{"data":[]}`)
	client, err := FromEncrypted(v, srv.URL, record)
	if err != nil {
		t.Fatalf("FromEncrypted() error = %v", err)
	}

	if _, err := client.ListWorkflows(context.Background()); err != nil {
		t.Fatalf("ListWorkflows() error = %v", err)
	}
	if got := srv.lastHeader.Get("X-N8N-API-KEY"); got != "the-real-secret" {
		t.Errorf("X-N8N-API-KEY = %q, want decrypted secret", got)
	}

	// Construction fails eagerly on a bad record.
	if _, err := FromEncrypted(v, srv.URL, "not:a:record"); err == nil {
		t.Fatal("FromEncrypted() with invalid record expected error, got nil")
	}
}

func TestBaseURLTrailingSlash(t *testing.T) {
	srv := newRecordingServer(t, http.StatusOK, `{"data":[]}`)
	client := New(srv.URL+"/", "secret")

	if _, err := client.ListWorkflows(context.Background()); err != nil {
		t.Fatalf("ListWorkflows() error = %v", err)
	}
	if srv.lastPath != "/api/v1/workflows" {
		t.Errorf("path = %q, want /api/v1/workflows", srv.lastPath)
	}
}
