// Package http provides the HTTP handlers and routing of the remote plan store.
package http

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/atinyakov/learnpath/internal/middleware"
	"github.com/atinyakov/learnpath/internal/models"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// PlanService defines the plan and completion operations required by the
// PlanHandler. callerID is the authenticated owner.
type PlanService interface {
	ListPlans(ctx context.Context, callerID, ownerID string) ([]models.Plan, error)
	CreatePlan(ctx context.Context, callerID string, tier models.Tier, p *models.Plan) (*models.Plan, error)
	UpdatePlan(ctx context.Context, callerID string, p *models.Plan) (*models.Plan, error)
	DeletePlan(ctx context.Context, callerID, id string) error
	Completions(ctx context.Context, callerID, ownerID string) ([]models.CompletionRecord, error)
	UpsertCompletion(ctx context.Context, callerID string, rec models.CompletionRecord) (models.CompletionRecord, error)
}

// PlanHandler serves the authenticated plan and completion endpoints.
type PlanHandler struct {
	PlanService PlanService
	Logger      *zap.Logger
}

// List handles GET /api/plans?owner=.
func (h *PlanHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	plans, err := h.PlanService.ListPlans(ctx, middleware.GetOwnerIDFromContext(ctx), r.URL.Query().Get("owner"))
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, plans)
}

// Create handles POST /api/plans and answers 201 with the stored plan.
func (h *PlanHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var p models.Plan
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	created, err := h.PlanService.CreatePlan(ctx, middleware.GetOwnerIDFromContext(ctx), middleware.GetTierFromContext(ctx), &p)
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// Update handles PUT /api/plans/{id}.
func (h *PlanHandler) Update(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	var p models.Plan
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	if p.ID != "" && p.ID != id {
		writeError(w, h.Logger, &models.ValidationError{Field: "id", Reason: "does not match the request path"})
		return
	}
	p.ID = id

	updated, err := h.PlanService.UpdatePlan(ctx, middleware.GetOwnerIDFromContext(ctx), &p)
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// Delete handles DELETE /api/plans/{id} and answers 204.
func (h *PlanHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.PlanService.DeletePlan(ctx, middleware.GetOwnerIDFromContext(ctx), chi.URLParam(r, "id")); err != nil {
		writeError(w, h.Logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Completions handles GET /api/completions?owner=.
func (h *PlanHandler) Completions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	records, err := h.PlanService.Completions(ctx, middleware.GetOwnerIDFromContext(ctx), r.URL.Query().Get("owner"))
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

// UpsertCompletion handles PUT /api/completions.
func (h *PlanHandler) UpsertCompletion(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var rec models.CompletionRecord
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	stored, err := h.PlanService.UpsertCompletion(ctx, middleware.GetOwnerIDFromContext(ctx), rec)
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, stored)
}
