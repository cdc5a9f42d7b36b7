package http

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/atinyakov/learnpath/internal/middleware"
	"github.com/atinyakov/learnpath/internal/models"
	"go.uber.org/zap"
)

// UpgradeService confirms paid orders for the authenticated caller.
type UpgradeService interface {
	Upgrade(ctx context.Context, callerID, receipt string) (string, error)
}

// UpgradeHandler serves the tier upgrade endpoint.
type UpgradeHandler struct {
	UpgradeService UpgradeService
	Logger         *zap.Logger
}

// Upgrade handles POST /api/upgrade and answers with a PRO bearer token.
func (h *UpgradeHandler) Upgrade(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req models.UpgradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	ownerID := middleware.GetOwnerIDFromContext(ctx)
	token, err := h.UpgradeService.Upgrade(ctx, ownerID, req.OrderID)
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}
	h.Logger.Info("owner upgraded", zap.String("owner_id", ownerID))
	writeJSON(w, http.StatusOK, models.UpgradeResponse{Token: token})
}
