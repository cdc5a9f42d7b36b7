package syncadapter

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/atinyakov/learnpath/internal/models"
	"github.com/google/uuid"
)

// Op names an Adapter method for failure injection and call recording.
type Op string

const (
	OpFetchOwnerPlans  Op = "FetchOwnerPlans"
	OpFetchPublicPlan  Op = "FetchPublicPlan"
	OpCreatePlan       Op = "CreatePlan"
	OpUpdatePlan       Op = "UpdatePlan"
	OpDeletePlan       Op = "DeletePlan"
	OpFetchCompletion  Op = "FetchCompletion"
	OpUpsertCompletion Op = "UpsertCompletion"
	OpConfirmUpgrade   Op = "ConfirmUpgrade"
)

// Call is one recorded adapter invocation.
type Call struct {
	Op Op
	// Arg is the owner id, token or plan id the call addressed.
	Arg string
}

// Memory is an in-memory Adapter that behaves like the remote store. It is
// safe for concurrent use.
type Memory struct {
	mu          sync.Mutex
	plans       map[string]*models.Plan
	completions map[string]models.CompletionRecord
	failures    map[Op][]error
	calls       []Call
	gate        <-chan struct{}
	now         func() time.Time

	// IgnoreClientIDs makes CreatePlan replace the plan id with its own.
	IgnoreClientIDs bool
	// UpgradeToken answers ConfirmUpgrade. When nil every order is accepted
	// and no token is returned.
	UpgradeToken func(orderID string) (string, error)
}

// NewMemory returns an empty Memory adapter.
func NewMemory() *Memory {
	return &Memory{
		plans:       make(map[string]*models.Plan),
		completions: make(map[string]models.CompletionRecord),
		failures:    make(map[Op][]error),
		now:         time.Now,
	}
}

// Seed stores plans as if they had been created earlier.
func (m *Memory) Seed(plans ...models.Plan) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range plans {
		m.plans[plans[i].ID] = plans[i].Clone()
	}
}

// SeedCompletions stores completion records.
func (m *Memory) SeedCompletions(records ...models.CompletionRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range records {
		m.completions[completionKey(rec.OwnerID, rec.StepID)] = rec
	}
}

// FailNext makes the next call of op fail with err. Calls queue up in order.
func (m *Memory) FailNext(op Op, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[op] = append(m.failures[op], err)
}

// Gate holds every subsequent call until a value is received from ch, ch is
// closed or the call's context is done. A nil ch removes the gate.
func (m *Memory) Gate(ch <-chan struct{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gate = ch
}

// Calls returns the recorded calls in order.
func (m *Memory) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Call(nil), m.calls...)
}

// CallCount counts recorded calls of op.
func (m *Memory) CallCount(op Op) int {
	n := 0
	for _, c := range m.Calls() {
		if c.Op == op {
			n++
		}
	}
	return n
}

// Plan returns a copy of the stored plan.
func (m *Memory) Plan(id string) (*models.Plan, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.plans[id]
	if !ok {
		return nil, false
	}
	return p.Clone(), true
}

// Completion returns the stored record of (ownerID, stepID).
func (m *Memory) Completion(ownerID, stepID string) (models.CompletionRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.completions[completionKey(ownerID, stepID)]
	return rec, ok
}

// enter records the call, waits for the gate and pops an injected failure.
func (m *Memory) enter(ctx context.Context, op Op, arg string) error {
	m.mu.Lock()
	m.calls = append(m.calls, Call{Op: op, Arg: arg})
	gate := m.gate
	m.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return &models.NetworkError{Op: string(op), Err: ctx.Err()}
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if queued := m.failures[op]; len(queued) > 0 {
		m.failures[op] = queued[1:]
		return queued[0]
	}
	return nil
}

func (m *Memory) FetchOwnerPlans(ctx context.Context, ownerID string) ([]models.Plan, error) {
	if err := m.enter(ctx, OpFetchOwnerPlans, ownerID); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	out := []models.Plan{}
	for _, p := range m.plans {
		if p.OwnerID == ownerID && !p.IsTemplate {
			out = append(out, *p.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) FetchPublicPlan(ctx context.Context, token string) (*models.Plan, error) {
	if err := m.enter(ctx, OpFetchPublicPlan, token); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, p := range m.plans {
		if p.ShareToken == token && p.IsAccessible(m.now()) {
			return p.Clone(), nil
		}
	}
	return nil, fmt.Errorf("%s: %w", OpFetchPublicPlan, models.ErrNotFound)
}

func (m *Memory) CreatePlan(ctx context.Context, plan *models.Plan) (*models.Plan, error) {
	if err := m.enter(ctx, OpCreatePlan, plan.ID); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	p := plan.Clone()
	if m.IgnoreClientIDs {
		p.ID = "srv-" + uuid.NewString()
		p.RenumberSteps()
	}
	if _, exists := m.plans[p.ID]; exists {
		return nil, &models.RemoteError{Op: string(OpCreatePlan), Status: http.StatusConflict, Message: "duplicate id"}
	}
	m.plans[p.ID] = p
	return p.Clone(), nil
}

func (m *Memory) UpdatePlan(ctx context.Context, plan *models.Plan) error {
	if err := m.enter(ctx, OpUpdatePlan, plan.ID); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.plans[plan.ID]; !ok {
		return fmt.Errorf("%s: %w", OpUpdatePlan, models.ErrNotFound)
	}
	m.plans[plan.ID] = plan.Clone()
	return nil
}

func (m *Memory) DeletePlan(ctx context.Context, id string) error {
	if err := m.enter(ctx, OpDeletePlan, id); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.plans[id]
	if !ok {
		return fmt.Errorf("%s: %w", OpDeletePlan, models.ErrNotFound)
	}
	steps := make(map[string]bool, len(p.Steps))
	for _, s := range p.Steps {
		steps[s.ID] = true
	}
	for k, rec := range m.completions {
		if steps[rec.StepID] {
			delete(m.completions, k)
		}
	}
	delete(m.plans, id)
	return nil
}

func (m *Memory) FetchCompletion(ctx context.Context, ownerID string) ([]models.CompletionRecord, error) {
	if err := m.enter(ctx, OpFetchCompletion, ownerID); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	out := []models.CompletionRecord{}
	for _, rec := range m.completions {
		if rec.OwnerID == ownerID {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StepID < out[j].StepID })
	return out, nil
}

func (m *Memory) UpsertCompletion(ctx context.Context, rec models.CompletionRecord) error {
	if err := m.enter(ctx, OpUpsertCompletion, rec.StepID); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	key := completionKey(rec.OwnerID, rec.StepID)
	if existing, ok := m.completions[key]; ok {
		rec.ID = existing.ID
	}
	m.completions[key] = rec
	return nil
}

func completionKey(ownerID, stepID string) string {
	return ownerID + "\x00" + stepID
}

func (m *Memory) ConfirmUpgrade(ctx context.Context, orderID string) (string, error) {
	if err := m.enter(ctx, OpConfirmUpgrade, orderID); err != nil {
		return "", err
	}
	if m.UpgradeToken == nil {
		return "", nil
	}
	return m.UpgradeToken(orderID)
}
