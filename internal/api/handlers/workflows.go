package handlers

import (
	"context"
	"errors"
	"iter"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/bargom/hivemind/internal/api/types"
	"github.com/bargom/hivemind/internal/auth"
	"github.com/bargom/hivemind/internal/workflow/repository"
)

// WorkflowReader is the read side of the state repository.
type WorkflowReader interface {
	GetWorkflowState(ctx context.Context, id string) (*repository.WorkflowInstance, error)
	ListInstances(ctx context.Context, f repository.Filter) ([]*repository.WorkflowInstance, error)
	ReadSteps(ctx context.Context, id string) iter.Seq2[repository.StepEvent, error]
}

// WorkflowHandler serves workflow instances and their journals.
type WorkflowHandler struct {
	repo   WorkflowReader
	logger *slog.Logger
}

// NewWorkflowHandler creates a handler over repo.
func NewWorkflowHandler(repo WorkflowReader, logger *slog.Logger) *WorkflowHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WorkflowHandler{repo: repo, logger: logger.With("component", "workflow_api")}
}

// Routes mounts the handler under /workflows.
func (h *WorkflowHandler) Routes(r chi.Router) {
	r.Route("/workflows", func(r chi.Router) {
		r.Get("/", h.List)
		r.Get("/{id}", h.Get)
		r.Get("/{id}/steps", h.Steps)
	})
}

// List handles GET /workflows?community_id=&status=&limit=&offset=.
func (h *WorkflowHandler) List(w http.ResponseWriter, r *http.Request) {
	communityID := r.URL.Query().Get("community_id")
	status := repository.Status(r.URL.Query().Get("status"))
	if status != "" && !status.Valid() {
		respondError(w, http.StatusBadRequest, "unknown status")
		return
	}

	if p := auth.PrincipalFromContext(r.Context()); p != nil && !p.HasRole(auth.AdminRole) {
		if communityID == "" {
			respondError(w, http.StatusBadRequest, "community_id is required")
			return
		}
		if !p.CanAccess(communityID) {
			respondError(w, http.StatusForbidden, "insufficient permissions")
			return
		}
	}

	limit, offset := paginationParams(r)
	instances, err := h.repo.ListInstances(r.Context(), repository.Filter{
		CommunityID: communityID,
		Status:      status,
		Limit:       limit,
		Offset:      offset,
	})
	if err != nil {
		h.storageError(w, r, err)
		return
	}

	summaries := make([]types.WorkflowSummary, 0, len(instances))
	for _, inst := range instances {
		summaries = append(summaries, types.SummaryFromInstance(inst))
	}
	respondJSON(w, http.StatusOK, types.NewListResponse(summaries, limit, offset))
}

// Get handles GET /workflows/{id} and returns the full instance.
func (h *WorkflowHandler) Get(w http.ResponseWriter, r *http.Request) {
	inst, ok := h.load(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, inst)
}

// Steps handles GET /workflows/{id}/steps.
func (h *WorkflowHandler) Steps(w http.ResponseWriter, r *http.Request) {
	inst, ok := h.load(w, r)
	if !ok {
		return
	}

	steps := make([]repository.StepEvent, 0, inst.StepCount)
	for ev, err := range h.repo.ReadSteps(r.Context(), inst.ID) {
		if err != nil {
			h.storageError(w, r, err)
			return
		}
		steps = append(steps, ev)
	}
	respondJSON(w, http.StatusOK, types.StepsResponse{WorkflowID: inst.ID, Steps: steps})
}

// load fetches the instance named in the path. Instances outside the
// caller's communities are reported as missing.
func (h *WorkflowHandler) load(w http.ResponseWriter, r *http.Request) (*repository.WorkflowInstance, bool) {
	inst, err := h.repo.GetWorkflowState(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.storageError(w, r, err)
		return nil, false
	}
	if p := auth.PrincipalFromContext(r.Context()); p != nil && !p.CanAccess(inst.CommunityID) {
		respondError(w, http.StatusNotFound, "workflow not found")
		return nil, false
	}
	return inst, true
}

func (h *WorkflowHandler) storageError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, repository.ErrInstanceNotFound):
		respondError(w, http.StatusNotFound, "workflow not found")
	case errors.Is(err, repository.ErrStorageTimeout):
		respondError(w, http.StatusGatewayTimeout, "storage timeout")
	case repository.IsRetryable(err):
		respondError(w, http.StatusServiceUnavailable, "storage unavailable")
	default:
		h.logger.ErrorContext(r.Context(), "workflow request failed", "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}
