// Package templates provides the built-in catalog of template plans shared by the
// client (for browsing and share-token fallback) and the server (for seeding).
package templates

import (
	_ "embed"
	"fmt"
	"time"

	"github.com/atinyakov/learnpath/internal/models"
	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var builtin []byte

// templateEpoch is the CreatedAt stamped on every built-in template.
var templateEpoch = time.Date(2023, 10, 26, 0, 0, 0, 0, time.UTC)

// Catalog is an immutable list of template plans.
type Catalog struct {
	plans   []models.Plan
	byID    map[string]int
	byToken map[string]int
}

// Default returns the catalog compiled into the binary.
func Default() *Catalog {
	c, err := Parse(builtin)
	if err != nil {
		panic(fmt.Sprintf("templates: built-in catalog is invalid: %v", err))
	}
	return c
}

// Parse decodes a YAML list of plans and normalises them into templates.
func Parse(data []byte) (*Catalog, error) {
	var plans []models.Plan
	if err := yaml.Unmarshal(data, &plans); err != nil {
		return nil, fmt.Errorf("templates: decode: %w", err)
	}

	c := &Catalog{
		plans:   make([]models.Plan, 0, len(plans)),
		byID:    make(map[string]int, len(plans)),
		byToken: make(map[string]int, len(plans)),
	}
	for _, p := range plans {
		if p.ID == "" {
			return nil, fmt.Errorf("templates: plan %q has no id", p.Title)
		}
		if _, dup := c.byID[p.ID]; dup {
			return nil, fmt.Errorf("templates: duplicate id %q", p.ID)
		}
		p.IsTemplate = true
		p.OwnerID = models.TemplateOwnerID
		p.CreatedAt = templateEpoch
		p.ShareExpiry = nil
		if p.ShareToken != "" {
			p.Visibility = models.VisibilityPublic
		} else {
			p.Visibility = models.VisibilityPrivate
		}
		p.RenumberSteps()
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("templates: %s: %w", p.ID, err)
		}

		c.byID[p.ID] = len(c.plans)
		if p.ShareToken != "" {
			if _, dup := c.byToken[p.ShareToken]; dup {
				return nil, fmt.Errorf("templates: duplicate share token %q", p.ShareToken)
			}
			c.byToken[p.ShareToken] = len(c.plans)
		}
		c.plans = append(c.plans, p)
	}
	return c, nil
}

// All returns deep copies of every template.
func (c *Catalog) All() []models.Plan {
	out := make([]models.Plan, 0, len(c.plans))
	for i := range c.plans {
		out = append(out, *c.plans[i].Clone())
	}
	return out
}

// ByID returns a copy of the template with the given id.
func (c *Catalog) ByID(id string) (*models.Plan, bool) {
	i, ok := c.byID[id]
	if !ok {
		return nil, false
	}
	return c.plans[i].Clone(), true
}

// ByShareToken returns a copy of the template published under token.
func (c *Catalog) ByShareToken(token string) (*models.Plan, bool) {
	i, ok := c.byToken[token]
	if !ok {
		return nil, false
	}
	return c.plans[i].Clone(), true
}

// Len reports the number of templates.
func (c *Catalog) Len() int {
	return len(c.plans)
}
