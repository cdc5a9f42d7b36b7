package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/atinyakov/learnpath/internal/authtoken"
	"github.com/atinyakov/learnpath/internal/models"
)

// TierStore records confirmed subscription tiers.
type TierStore interface {
	SetOwnerTier(ctx context.Context, ownerID string, tier models.Tier) error
}

// UpgradeService confirms paid orders and moves their owners to PRO.
type UpgradeService struct {
	store         TierStore
	paymentSecret string
	tokenSecret   string
	tokenTTL      time.Duration
}

// NewUpgradeService verifies receipts with paymentSecret and signs the
// replacement bearer tokens with tokenSecret.
func NewUpgradeService(store TierStore, paymentSecret, tokenSecret string, tokenTTL time.Duration) *UpgradeService {
	return &UpgradeService{
		store:         store,
		paymentSecret: paymentSecret,
		tokenSecret:   tokenSecret,
		tokenTTL:      tokenTTL,
	}
}

// Upgrade confirms the receipt for callerID, records the PRO tier and returns
// a bearer token carrying it.
func (s *UpgradeService) Upgrade(ctx context.Context, callerID, receipt string) (string, error) {
	if s.paymentSecret == "" {
		return "", &models.ValidationError{Field: "order_id", Reason: "payments are not configured"}
	}
	if receipt == "" {
		return "", &models.ValidationError{Field: "order_id", Reason: "must not be empty"}
	}
	r, err := authtoken.ParseReceipt(s.paymentSecret, receipt)
	if errors.Is(err, authtoken.ErrInvalidToken) {
		return "", &models.ValidationError{Field: "order_id", Reason: "receipt is not valid"}
	}
	if err != nil {
		return "", err
	}
	if r.OwnerID != callerID {
		return "", models.ErrForbidden
	}

	if err := s.store.SetOwnerTier(ctx, callerID, models.TierPro); err != nil {
		return "", err
	}
	token, err := authtoken.Issue(s.tokenSecret, callerID, models.TierPro, s.tokenTTL)
	if err != nil {
		return "", fmt.Errorf("issue token: %w", err)
	}
	return token, nil
}
