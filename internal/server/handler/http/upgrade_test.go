package http_test

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/atinyakov/learnpath/internal/middleware"
	"github.com/atinyakov/learnpath/internal/models"
	handler "github.com/atinyakov/learnpath/internal/server/handler/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeUpgradeService struct {
	callerID string
	receipt  string
	token    string
	err      error
}

func (f *fakeUpgradeService) Upgrade(_ context.Context, callerID, receipt string) (string, error) {
	f.callerID, f.receipt = callerID, receipt
	return f.token, f.err
}

func newUpgradeServer(upgrades *fakeUpgradeService) http.Handler {
	return handler.NewRouter(
		&handler.PlanHandler{PlanService: &fakePlanService{}, Logger: zap.NewNop()},
		&handler.PublicHandler{PublicService: &fakePublicService{}, Logger: zap.NewNop()},
		&handler.UpgradeHandler{UpgradeService: upgrades, Logger: zap.NewNop()},
		secret,
		middleware.NewRateLimiter(2),
		zap.NewNop(),
	)
}

func TestUpgrade(t *testing.T) {
	svc := &fakeUpgradeService{token: "pro-token"}
	rec := do(t, newUpgradeServer(svc), http.MethodPost, "/api/upgrade", "alice", models.TierFree,
		models.UpgradeRequest{OrderID: "receipt"})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "alice", svc.callerID)
	assert.Equal(t, "receipt", svc.receipt)

	var got models.UpgradeResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.Equal(t, "pro-token", got.Token)
}

func TestUpgrade_ErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"bad receipt", &models.ValidationError{Field: "order_id", Reason: "receipt is not valid"}, http.StatusUnprocessableEntity},
		{"someone else's order", models.ErrForbidden, http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &fakeUpgradeService{err: tc.err}
			rec := do(t, newUpgradeServer(svc), http.MethodPost, "/api/upgrade", "alice", models.TierFree,
				models.UpgradeRequest{OrderID: "receipt"})
			assert.Equal(t, tc.want, rec.Code)
		})
	}
}

func TestUpgrade_RequiresAuth(t *testing.T) {
	svc := &fakeUpgradeService{}
	rec := do(t, newUpgradeServer(svc), http.MethodPost, "/api/upgrade", "", "", models.UpgradeRequest{OrderID: "receipt"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, svc.callerID)
}
