// Package api exposes the orchestration core over HTTP. Handlers stay thin:
// decode, delegate, encode.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tjfontaine/workflow-copilot/internal/credentials"
	"github.com/tjfontaine/workflow-copilot/internal/domain"
	"github.com/tjfontaine/workflow-copilot/internal/engine"
	"github.com/tjfontaine/workflow-copilot/internal/planner"
	"github.com/tjfontaine/workflow-copilot/internal/server"
	"github.com/tjfontaine/workflow-copilot/internal/storage"
)

// Handler wires the core services to routes.
type Handler struct {
	engine      *engine.Engine
	planner     *planner.Manager
	credentials *credentials.Service
	logger      *slog.Logger
}

// New creates a handler.
func New(e *engine.Engine, p *planner.Manager, c *credentials.Service, logger *slog.Logger) *Handler {
	return &Handler{engine: e, planner: p, credentials: c, logger: logger}
}

// Register mounts all routes on the router.
func (h *Handler) Register(r *chi.Mux) {
	r.Get("/healthz", h.handleHealth)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/credentials", h.handleRegisterCredential)
		r.Post("/credentials/{id}/verify", h.handleVerifyCredential)
		r.Delete("/credentials/{id}", h.handleDeleteCredential)

		r.Post("/conversations", h.handleCreateConversation)
		r.Get("/conversations", h.handleListConversations)
		r.Get("/conversations/{id}", h.handleGetConversation)
		r.Post("/conversations/{id}/messages", h.handleSendMessage)

		r.Post("/plans/{id}/approve", h.handleApprovePlan)
		r.Post("/plans/{id}/reject", h.handleRejectPlan)
		r.Post("/plans/{id}/test", h.handleTestPlan)

		r.Get("/workflows/{id}/history", h.handleWorkflowHistory)
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleRegisterCredential(w http.ResponseWriter, r *http.Request) {
	var req struct {
		InstanceURL string `json:"instance_url"`
		Secret      string `json:"secret"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, domain.ErrInvalidRequest("invalid JSON body"))
		return
	}

	cred, err := h.credentials.Register(r.Context(), ownerID(r), req.InstanceURL, req.Secret)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, cred)
}

func (h *Handler) handleVerifyCredential(w http.ResponseWriter, r *http.Request) {
	cred, err := h.credentials.Verify(r.Context(), chi.URLParam(r, "id"), ownerID(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cred)
}

func (h *Handler) handleDeleteCredential(w http.ResponseWriter, r *http.Request) {
	if err := h.credentials.Delete(r.Context(), chi.URLParam(r, "id"), ownerID(r)); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleCreateConversation(w http.ResponseWriter, r *http.Request) {
	var req struct {
		InstanceID string `json:"instance_id"`
		WorkflowID string `json:"workflow_id"`
		Title      string `json:"title"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, domain.ErrInvalidRequest("invalid JSON body"))
		return
	}

	conv, err := h.engine.CreateConversation(r.Context(), ownerID(r), req.InstanceID, req.WorkflowID, req.Title)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, conv)
}

func (h *Handler) handleListConversations(w http.ResponseWriter, r *http.Request) {
	convs, err := h.engine.ListConversations(r.Context(), ownerID(r), storage.ListOptions{})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"conversations": convs})
}

func (h *Handler) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	conv, err := h.engine.GetConversation(r.Context(), chi.URLParam(r, "id"), ownerID(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

func (h *Handler) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, domain.ErrInvalidRequest("invalid JSON body"))
		return
	}

	result, err := h.engine.SendMessage(r.Context(), chi.URLParam(r, "id"), ownerID(r), req.Text)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) handleApprovePlan(w http.ResponseWriter, r *http.Request) {
	plan, err := h.planner.Approve(r.Context(), chi.URLParam(r, "id"), ownerID(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

func (h *Handler) handleRejectPlan(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Reason string `json:"reason"`
	}
	// An empty body is a bare rejection.
	_ = json.NewDecoder(r.Body).Decode(&req)

	plan, err := h.planner.Reject(r.Context(), chi.URLParam(r, "id"), ownerID(r), req.Reason)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

func (h *Handler) handleTestPlan(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Data map[string]any `json:"data"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)

	results, err := h.planner.Test(r.Context(), chi.URLParam(r, "id"), ownerID(r), req.Data)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": json.RawMessage(results)})
}

func (h *Handler) handleWorkflowHistory(w http.ResponseWriter, r *http.Request) {
	versions, err := h.planner.History(r.Context(),
		chi.URLParam(r, "id"), r.URL.Query().Get("instance_id"), ownerID(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"versions": versions})
}

// ownerID returns the authenticated principal's owner id. Auth middleware
// guarantees presence on every /v1 route.
func ownerID(r *http.Request) string {
	principal, _ := server.PrincipalFromContext(r.Context())
	return principal.OwnerID
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	var coreErr *domain.Error
	if errors.As(err, &coreErr) {
		status = coreErr.HTTPStatusCode()
	}

	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			slog.String("request_id", server.GetRequestID(r.Context())),
			slog.String("error", err.Error()))
	}

	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
