// Package service provides the business logic of the remote plan store:
// ownership, template immutability, validation and the server-side quota,
// delegating persistence to a repository interface.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/atinyakov/learnpath/internal/models"
	"github.com/atinyakov/learnpath/internal/quota"
	"github.com/google/uuid"
)

// PlanRepository defines the persistence operations needed by the PlanService.
type PlanRepository interface {
	// GetPlansByOwner returns the owner's non-template plans.
	GetPlansByOwner(ctx context.Context, ownerID string) ([]models.Plan, error)
	// GetPlanByID fetches one plan or models.ErrNotFound.
	GetPlanByID(ctx context.Context, id string) (*models.Plan, error)
	// GetPlanByShareToken fetches a published plan or template by its token.
	GetPlanByShareToken(ctx context.Context, token string) (*models.Plan, error)
	// CountOwnerPlans counts the owner's non-template plans.
	CountOwnerPlans(ctx context.Context, ownerID string) (int, error)
	// CreatePlan stores a new plan with its steps and resources.
	CreatePlan(ctx context.Context, p *models.Plan) error
	// UpdatePlan rewrites a plan and replaces its steps.
	UpdatePlan(ctx context.Context, p *models.Plan) error
	// DeletePlan removes a plan and everything attached to it.
	DeletePlan(ctx context.Context, id string) error
	// GetCompletions returns the owner's completion records.
	GetCompletions(ctx context.Context, ownerID string) ([]models.CompletionRecord, error)
	// UpsertCompletion stores a completion record.
	UpsertCompletion(ctx context.Context, rec models.CompletionRecord) error
	// GetOwnerTier returns the tier recorded for the owner, or "" when none is.
	GetOwnerTier(ctx context.Context, ownerID string) (models.Tier, error)
	// SetOwnerTier records the owner's tier.
	SetOwnerTier(ctx context.Context, ownerID string, tier models.Tier) error
}

// PlanService implements plan and completion operations on behalf of an
// authenticated caller.
type PlanService struct {
	repo     PlanRepository
	policy   quota.Policy
	shareTTL time.Duration
	now      func() time.Time
	newID    func() string
}

// NewPlanService constructs a PlanService enforcing policy on creates. Share
// links of user plans are kept within shareTTL of the write that publishes them.
func NewPlanService(repo PlanRepository, policy quota.Policy, shareTTL time.Duration) *PlanService {
	return &PlanService{
		repo:     repo,
		policy:   policy,
		shareTTL: shareTTL,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// ListPlans returns the plans of ownerID. Callers may only list their own plans.
func (s *PlanService) ListPlans(ctx context.Context, callerID, ownerID string) ([]models.Plan, error) {
	if ownerID == "" {
		ownerID = callerID
	}
	if ownerID != callerID {
		return nil, models.ErrForbidden
	}
	return s.repo.GetPlansByOwner(ctx, ownerID)
}

// CreatePlan stores p for the caller. Client-chosen ids are kept; missing ones
// are generated. The stored plan is returned.
func (s *PlanService) CreatePlan(ctx context.Context, callerID string, tier models.Tier, p *models.Plan) (*models.Plan, error) {
	if p.IsTemplate {
		return nil, models.ErrForbidden
	}
	if p.OwnerID != "" && p.OwnerID != callerID {
		return nil, models.ErrForbidden
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}

	tier, err := s.effectiveTier(ctx, callerID, tier)
	if err != nil {
		return nil, err
	}
	owned, err := s.repo.CountOwnerPlans(ctx, callerID)
	if err != nil {
		return nil, err
	}
	if err := s.policy.Check(tier, owned); err != nil {
		return nil, err
	}

	out := p.Clone()
	out.OwnerID = callerID
	if out.Visibility == "" {
		out.Visibility = models.VisibilityPrivate
	}
	if out.CreatedAt.IsZero() {
		out.CreatedAt = s.now().UTC()
	}
	s.boundShareExpiry(out)
	out.FillIDs(s.newID)
	out.RenumberSteps()

	if err := s.repo.CreatePlan(ctx, out); err != nil {
		return nil, fmt.Errorf("create plan: %w", err)
	}
	return out, nil
}

// UpdatePlan replaces the caller's plan with p. Owner, creation time and the
// template flag are taken from the stored plan.
func (s *PlanService) UpdatePlan(ctx context.Context, callerID string, p *models.Plan) (*models.Plan, error) {
	existing, err := s.owned(ctx, callerID, p.ID)
	if err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}

	out := p.Clone()
	out.OwnerID = existing.OwnerID
	out.CreatedAt = existing.CreatedAt
	out.IsTemplate = false
	if out.Visibility == "" {
		out.Visibility = models.VisibilityPrivate
	}
	s.boundShareExpiry(out)
	out.FillIDs(s.newID)
	out.RenumberSteps()

	if err := s.repo.UpdatePlan(ctx, out); err != nil {
		return nil, fmt.Errorf("update plan: %w", err)
	}
	return out, nil
}

// DeletePlan removes the caller's plan.
func (s *PlanService) DeletePlan(ctx context.Context, callerID, id string) error {
	if _, err := s.owned(ctx, callerID, id); err != nil {
		return err
	}
	return s.repo.DeletePlan(ctx, id)
}

// PublicPlan resolves a share token. Private, expired and unknown plans are
// all reported as models.ErrNotFound.
func (s *PlanService) PublicPlan(ctx context.Context, token string) (*models.Plan, error) {
	p, err := s.repo.GetPlanByShareToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if !p.IsAccessible(s.now()) {
		return nil, models.ErrNotFound
	}
	return p, nil
}

// Completions returns the completion records of ownerID.
func (s *PlanService) Completions(ctx context.Context, callerID, ownerID string) ([]models.CompletionRecord, error) {
	if ownerID == "" {
		ownerID = callerID
	}
	if ownerID != callerID {
		return nil, models.ErrForbidden
	}
	return s.repo.GetCompletions(ctx, ownerID)
}

// UpsertCompletion stores rec for the caller.
func (s *PlanService) UpsertCompletion(ctx context.Context, callerID string, rec models.CompletionRecord) (models.CompletionRecord, error) {
	if rec.StepID == "" {
		return rec, &models.ValidationError{Field: "step_id", Reason: "must not be empty"}
	}
	if rec.OwnerID == "" {
		rec.OwnerID = callerID
	}
	if rec.OwnerID != callerID {
		return rec, models.ErrForbidden
	}
	if rec.ID == "" {
		rec.ID = s.newID()
	}
	if err := s.repo.UpsertCompletion(ctx, rec); err != nil {
		return rec, err
	}
	return rec, nil
}

// effectiveTier upgrades the token's tier to PRO when the owner has a
// confirmed upgrade on record. Tokens issued before the upgrade still carry FREE.
func (s *PlanService) effectiveTier(ctx context.Context, callerID string, claimed models.Tier) (models.Tier, error) {
	if claimed == models.TierPro {
		return claimed, nil
	}
	stored, err := s.repo.GetOwnerTier(ctx, callerID)
	if err != nil {
		return "", err
	}
	if stored == models.TierPro {
		return stored, nil
	}
	return claimed, nil
}

// boundShareExpiry caps the share link of a published user plan at now+shareTTL.
// A missing expiry gets the full TTL.
func (s *PlanService) boundShareExpiry(p *models.Plan) {
	if !p.IsPublic() || p.ShareToken == "" || s.shareTTL <= 0 {
		return
	}
	limit := s.now().Add(s.shareTTL).UTC()
	if p.ShareExpiry == nil || p.ShareExpiry.After(limit) {
		p.ShareExpiry = &limit
	}
}

// owned loads plan id and checks that callerID may mutate it.
func (s *PlanService) owned(ctx context.Context, callerID, id string) (*models.Plan, error) {
	existing, err := s.repo.GetPlanByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing.IsTemplate || existing.OwnerID != callerID {
		return nil, models.ErrForbidden
	}
	return existing, nil
}
