package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/atinyakov/learnpath/internal/models"
	"go.uber.org/zap"
)

// writeJSON encodes v with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps service errors onto HTTP statuses:
// validation 422, not found 404, forbidden and quota 403, anything else 500.
func writeError(w http.ResponseWriter, log *zap.Logger, err error) {
	var (
		quotaErr *models.QuotaExceededError
		valErr   *models.ValidationError
	)
	switch {
	case errors.As(err, &quotaErr):
		writeJSON(w, http.StatusForbidden, models.ErrorBody{Message: quotaErr.Error(), Tier: quotaErr.Tier, Limit: quotaErr.Limit})
	case errors.As(err, &valErr):
		writeJSON(w, http.StatusUnprocessableEntity, models.ErrorBody{Message: valErr.Error(), Field: valErr.Field})
	case errors.Is(err, models.ErrValidation):
		writeJSON(w, http.StatusUnprocessableEntity, models.ErrorBody{Message: err.Error()})
	case errors.Is(err, models.ErrNotFound):
		writeJSON(w, http.StatusNotFound, models.ErrorBody{Message: "not found"})
	case errors.Is(err, models.ErrForbidden):
		writeJSON(w, http.StatusForbidden, models.ErrorBody{Message: "forbidden"})
	default:
		if log != nil {
			log.Error("request failed", zap.Error(err))
		}
		writeJSON(w, http.StatusInternalServerError, models.ErrorBody{Message: "internal error"})
	}
}
