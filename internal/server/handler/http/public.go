package http

import (
	"context"
	"net/http"

	"github.com/atinyakov/learnpath/internal/models"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// PublicService resolves share tokens for anonymous readers.
type PublicService interface {
	PublicPlan(ctx context.Context, token string) (*models.Plan, error)
}

// PublicHandler serves shared plans without authentication.
type PublicHandler struct {
	PublicService PublicService
	Logger        *zap.Logger
}

// Get handles GET /api/public/{token}. Expired and private plans answer 404
// exactly like unknown tokens.
func (h *PublicHandler) Get(w http.ResponseWriter, r *http.Request) {
	p, err := h.PublicService.PublicPlan(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}
