// Package progress derives completion percentages from the session cache.
package progress

import (
	"math"

	"github.com/atinyakov/learnpath/internal/models"
)

// Source is the read side of the store the calculator needs.
type Source interface {
	Get(id string) (*models.Plan, bool)
	Completion(stepID string) (models.CompletionRecord, bool)
}

// Calculator computes progress on every call; nothing is cached.
type Calculator struct {
	src Source
}

// NewCalculator returns a Calculator reading from src.
func NewCalculator(src Source) *Calculator {
	return &Calculator{src: src}
}

// Progress returns 100 * completed / total over the steps of plan planID,
// in [0, 100]. Unknown plans and plans without steps report 0.
func (c *Calculator) Progress(planID string) float64 {
	p, ok := c.src.Get(planID)
	if !ok || len(p.Steps) == 0 {
		return 0
	}
	done := 0
	for _, s := range p.Steps {
		if rec, ok := c.src.Completion(s.ID); ok && rec.Completed {
			done++
		}
	}
	return 100 * float64(done) / float64(len(p.Steps))
}

// Percent rounds a progress value for display.
func Percent(v float64) int {
	return int(math.Round(v))
}
