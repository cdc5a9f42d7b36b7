package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/atinyakov/learnpath/internal/authtoken"
	"github.com/atinyakov/learnpath/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

// dummyHandler is a placeholder that records if it was called and the context it received.
type dummyHandler struct {
	called bool
	ctx    context.Context
}

func (d *dummyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	d.called = true
	d.ctx = r.Context()
	w.WriteHeader(http.StatusOK)
}

func TestBearerAuth_MissingToken(t *testing.T) {
	dummy := &dummyHandler{}
	h := BearerAuth(testSecret)(dummy)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/plans", nil)
	h.ServeHTTP(rec, req)

	assert.False(t, dummy.called)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestBearerAuth_InvalidToken(t *testing.T) {
	other, err := authtoken.Issue("another-secret", "alice", models.TierFree, time.Hour)
	require.NoError(t, err)

	for name, header := range map[string]string{
		"garbage":      "Bearer not-a-jwt",
		"wrong secret": "Bearer " + other,
		"basic scheme": "Basic YWxpY2U6cHc=",
	} {
		t.Run(name, func(t *testing.T) {
			dummy := &dummyHandler{}
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/api/plans", nil)
			req.Header.Set("Authorization", header)

			BearerAuth(testSecret)(dummy).ServeHTTP(rec, req)

			assert.False(t, dummy.called)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}
}

func TestBearerAuth_ValidToken(t *testing.T) {
	token, err := authtoken.Issue(testSecret, "alice", models.TierPro, time.Hour)
	require.NoError(t, err)

	dummy := &dummyHandler{}
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/plans", nil)
	req.Header.Set("Authorization", "Bearer "+token)

	BearerAuth(testSecret)(dummy).ServeHTTP(rec, req)

	require.True(t, dummy.called)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "alice", GetOwnerIDFromContext(dummy.ctx))
	assert.Equal(t, models.TierPro, GetTierFromContext(dummy.ctx))
}

func TestContextGetters_Empty(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, "", GetOwnerIDFromContext(ctx))
	assert.Equal(t, models.TierFree, GetTierFromContext(ctx))
}
