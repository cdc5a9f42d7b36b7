// Package models defines the core data structures for learning plans, their steps,
// attached resources and per-owner completion records.
package models

import (
	"strconv"
	"strings"
	"time"
)

// Visibility controls whether a plan can be reached through its share token.
type Visibility string

const (
	// VisibilityPrivate hides the plan from everyone but its owner.
	VisibilityPrivate Visibility = "private"
	// VisibilityPublic exposes the plan through its share token.
	VisibilityPublic Visibility = "public"
)

// ResourceKind identifies the medium of a learning resource.
type ResourceKind string

const (
	// ResourceVideo is a video resource.
	ResourceVideo ResourceKind = "video"
	// ResourceArticle is a written resource.
	ResourceArticle ResourceKind = "article"
)

// Tier is the subscription level of an owner.
type Tier string

const (
	// TierFree is the default tier with the tighter plan quota.
	TierFree Tier = "FREE"
	// TierPro is the paid tier.
	TierPro Tier = "PRO"
)

// TemplateOwnerID owns every built-in template plan.
const TemplateOwnerID = "system"

// Plan is a learning roadmap, either a built-in template or user-owned.
type Plan struct {
	// ID is the unique identifier of the plan.
	ID string `json:"id" yaml:"id"`
	// Title is the human-readable name of the plan.
	Title string `json:"title" yaml:"title"`
	// Description summarises what the plan covers.
	Description string `json:"description" yaml:"description"`
	// Visibility is either private or public.
	Visibility Visibility `json:"visibility" yaml:"visibility"`
	// ShareToken grants public read access; empty when the plan is private.
	ShareToken string `json:"share_token,omitempty" yaml:"share_token,omitempty"`
	// ShareExpiry bounds the lifetime of ShareToken; nil means no expiry.
	ShareExpiry *time.Time `json:"share_expiry,omitempty" yaml:"-"`
	// OwnerID identifies the owner of the plan.
	OwnerID string `json:"owner_id" yaml:"-"`
	// CreatedAt is the creation timestamp.
	CreatedAt time.Time `json:"created_at" yaml:"-"`
	// IsTemplate marks built-in plans.
	IsTemplate bool `json:"is_template" yaml:"-"`
	// Category is an optional tag.
	Category string `json:"category,omitempty" yaml:"category,omitempty"`
	// Steps are the ordered milestones of the plan.
	Steps []Step `json:"steps" yaml:"steps"`
}

// Step is an ordered milestone within a plan.
type Step struct {
	// ID is the unique identifier of the step.
	ID string `json:"id" yaml:"id"`
	// PlanID references the owning plan.
	PlanID string `json:"plan_id" yaml:"-"`
	// Title names the step.
	Title string `json:"title" yaml:"title"`
	// Description explains what the step entails.
	Description string `json:"description" yaml:"description"`
	// Order is the 1-based position of the step inside its plan.
	Order int `json:"order" yaml:"-"`
	// Resources are the links attached to the step.
	Resources []Resource `json:"resources" yaml:"resources"`
}

// Resource is a link attached to a step.
type Resource struct {
	// ID is the unique identifier of the resource.
	ID string `json:"id" yaml:"id"`
	// StepID references the owning step.
	StepID string `json:"step_id" yaml:"-"`
	// Title names the resource.
	Title string `json:"title" yaml:"title"`
	// URL points at the resource.
	URL string `json:"url" yaml:"url"`
	// Kind is either video or article.
	Kind ResourceKind `json:"kind" yaml:"kind"`
}

// CompletionRecord is a per-owner, per-step completion flag.
type CompletionRecord struct {
	// ID is the unique identifier of the record.
	ID string `json:"id"`
	// OwnerID identifies the owner who completed the step.
	OwnerID string `json:"owner_id"`
	// StepID references the completed step.
	StepID string `json:"step_id"`
	// Completed reports whether the step is done.
	Completed bool `json:"completed"`
}

// Clone returns a deep copy of the plan.
func (p *Plan) Clone() *Plan {
	if p == nil {
		return nil
	}
	out := *p
	if p.ShareExpiry != nil {
		exp := *p.ShareExpiry
		out.ShareExpiry = &exp
	}
	if p.Steps != nil {
		out.Steps = make([]Step, len(p.Steps))
		for i, s := range p.Steps {
			out.Steps[i] = s
			if s.Resources != nil {
				out.Steps[i].Resources = append([]Resource(nil), s.Resources...)
			}
		}
	}
	return &out
}

// RenumberSteps rewrites step orders to 1..N following slice order and points every
// step and resource back at its parent.
func (p *Plan) RenumberSteps() {
	for i := range p.Steps {
		p.Steps[i].Order = i + 1
		p.Steps[i].PlanID = p.ID
		for j := range p.Steps[i].Resources {
			p.Steps[i].Resources[j].StepID = p.Steps[i].ID
		}
	}
}

// FillIDs assigns ids from newID to the plan, its steps and their resources
// wherever one is missing.
func (p *Plan) FillIDs(newID func() string) {
	if p.ID == "" {
		p.ID = newID()
	}
	for i := range p.Steps {
		if p.Steps[i].ID == "" {
			p.Steps[i].ID = newID()
		}
		for j := range p.Steps[i].Resources {
			if p.Steps[i].Resources[j].ID == "" {
				p.Steps[i].Resources[j].ID = newID()
			}
		}
	}
}

// StepIDs lists the ids of the plan's steps in order.
func (p *Plan) StepIDs() []string {
	ids := make([]string, 0, len(p.Steps))
	for _, s := range p.Steps {
		ids = append(ids, s.ID)
	}
	return ids
}

// IsPublic reports whether the plan is published.
func (p *Plan) IsPublic() bool {
	return p.Visibility == VisibilityPublic
}

// IsAccessible reports whether the plan can be read through its share token at now.
func (p *Plan) IsAccessible(now time.Time) bool {
	if p == nil || !p.IsPublic() || p.ShareToken == "" {
		return false
	}
	return p.ShareExpiry == nil || p.ShareExpiry.After(now)
}

// Validate checks user-supplied fields before any mutation is attempted.
func (p *Plan) Validate() error {
	if strings.TrimSpace(p.Title) == "" {
		return &ValidationError{Field: "title", Reason: "must not be empty"}
	}
	switch p.Visibility {
	case "", VisibilityPrivate:
		if p.ShareToken != "" {
			return &ValidationError{Field: "share_token", Reason: "private plans cannot carry a share token"}
		}
	case VisibilityPublic:
		if p.ShareToken == "" {
			return &ValidationError{Field: "share_token", Reason: "public plans need a share token"}
		}
	default:
		return &ValidationError{Field: "visibility", Reason: "unknown visibility " + string(p.Visibility)}
	}
	for i, s := range p.Steps {
		if strings.TrimSpace(s.Title) == "" {
			return &ValidationError{Field: "steps", Reason: "step " + strconv.Itoa(i+1) + " has an empty title"}
		}
		for _, r := range s.Resources {
			if r.Kind != ResourceVideo && r.Kind != ResourceArticle {
				return &ValidationError{Field: "resources", Reason: "unknown resource kind " + string(r.Kind)}
			}
			if strings.TrimSpace(r.URL) == "" {
				return &ValidationError{Field: "resources", Reason: "resource " + r.Title + " has no url"}
			}
		}
	}
	return nil
}

// ValidTier reports whether t is a known subscription tier.
func ValidTier(t Tier) bool {
	return t == TierFree || t == TierPro
}
