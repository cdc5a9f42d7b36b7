// Package quota enforces the per-tier limit on how many plans an owner may create.
package quota

import (
	"github.com/atinyakov/learnpath/internal/models"
)

const (
	// DefaultFreeLimit is the FREE tier plan cap.
	DefaultFreeLimit = 3
	// DefaultProLimit is the PRO tier plan cap.
	DefaultProLimit = 25
)

// Policy validates plan creation against the caller's tier.
type Policy struct {
	// FreeLimit is the number of plans a FREE owner may hold.
	FreeLimit int
	// ProLimit is the number of plans a PRO owner may hold.
	ProLimit int
}

// NewPolicy builds a Policy, falling back to the defaults for non-positive limits.
func NewPolicy(freeLimit, proLimit int) Policy {
	if freeLimit <= 0 {
		freeLimit = DefaultFreeLimit
	}
	if proLimit <= 0 {
		proLimit = DefaultProLimit
	}
	return Policy{FreeLimit: freeLimit, ProLimit: proLimit}
}

// Limit returns the plan cap for tier. Unknown tiers get the FREE cap.
func (p Policy) Limit(tier models.Tier) int {
	if tier == models.TierPro {
		return p.ProLimit
	}
	return p.FreeLimit
}

// Check returns a *models.QuotaExceededError when an owner of the given tier who
// already holds owned non-template plans may not create another one.
func (p Policy) Check(tier models.Tier, owned int) error {
	if !models.ValidTier(tier) {
		tier = models.TierFree
	}
	limit := p.Limit(tier)
	if owned >= limit {
		return &models.QuotaExceededError{Tier: tier, Limit: limit}
	}
	return nil
}
