// Package syncadapter defines the remote persistence capability used by the
// client engine and provides an HTTP implementation plus an in-memory double.
//
// Adapters never retry. Every failure is one of *models.NetworkError,
// *models.ValidationError, models.ErrNotFound, *models.QuotaExceededError or
// *models.RemoteError.
package syncadapter

import (
	"context"

	"github.com/atinyakov/learnpath/internal/models"
)

// Adapter is the remote CRUD surface of plans and completion records.
type Adapter interface {
	// FetchOwnerPlans returns the owner's non-template plans.
	FetchOwnerPlans(ctx context.Context, ownerID string) ([]models.Plan, error)
	// FetchPublicPlan returns the accessible plan shared under token.
	FetchPublicPlan(ctx context.Context, token string) (*models.Plan, error)
	// CreatePlan stores plan and returns the canonical copy. The remote may
	// substitute its own plan id.
	CreatePlan(ctx context.Context, plan *models.Plan) (*models.Plan, error)
	// UpdatePlan replaces a stored plan.
	UpdatePlan(ctx context.Context, plan *models.Plan) error
	// DeletePlan removes a plan with its steps, resources and completions.
	DeletePlan(ctx context.Context, id string) error
	// FetchCompletion returns the owner's completion records.
	FetchCompletion(ctx context.Context, ownerID string) ([]models.CompletionRecord, error)
	// UpsertCompletion stores a completion record.
	UpsertCompletion(ctx context.Context, rec models.CompletionRecord) error
}

// Upgrader exchanges a payment receipt for a bearer token of the PRO tier.
type Upgrader interface {
	ConfirmUpgrade(ctx context.Context, orderID string) (string, error)
}

var (
	_ Adapter  = (*HTTPAdapter)(nil)
	_ Adapter  = (*Memory)(nil)
	_ Upgrader = (*HTTPAdapter)(nil)
	_ Upgrader = (*Memory)(nil)
)
