package progress

import (
	"testing"

	"github.com/atinyakov/learnpath/internal/client/store"
	"github.com/atinyakov/learnpath/internal/models"
	"github.com/stretchr/testify/assert"
)

func setup() (*store.Store, *Calculator) {
	s := store.New(nil, nil, nil)
	s.Put(&models.Plan{ID: "p", Steps: []models.Step{{ID: "a"}, {ID: "b"}, {ID: "c"}}})
	s.Put(&models.Plan{ID: "empty"})
	return s, NewCalculator(s)
}

func TestProgress_OneOfThree(t *testing.T) {
	s, c := setup()
	s.PutCompletion(models.CompletionRecord{StepID: "a", Completed: true})

	got := c.Progress("p")
	assert.InDelta(t, 100.0/3.0, got, 1e-9)
	assert.Equal(t, 33, Percent(got))
}

func TestProgress_Bounds(t *testing.T) {
	s, c := setup()

	assert.Zero(t, c.Progress("p"))
	assert.Zero(t, c.Progress("empty"))
	assert.Zero(t, c.Progress("missing"))

	for _, id := range []string{"a", "b", "c"} {
		s.PutCompletion(models.CompletionRecord{StepID: id, Completed: true})
	}
	assert.Equal(t, 100.0, c.Progress("p"))
}

func TestProgress_RecomputedAfterMutation(t *testing.T) {
	s, c := setup()
	s.PutCompletion(models.CompletionRecord{StepID: "a", Completed: true})
	s.PutCompletion(models.CompletionRecord{StepID: "b", Completed: false})
	assert.InDelta(t, 33.33, c.Progress("p"), 0.01)

	s.RemoveCompletion("a")
	assert.Zero(t, c.Progress("p"))

	// completions of steps outside the plan never count
	s.PutCompletion(models.CompletionRecord{StepID: "zzz", Completed: true})
	assert.Zero(t, c.Progress("p"))
}

func TestPercent(t *testing.T) {
	assert.Equal(t, 67, Percent(200.0/3.0))
	assert.Equal(t, 0, Percent(0))
	assert.Equal(t, 100, Percent(100))
}
