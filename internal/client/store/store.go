// Package store holds the client's in-session copy of plans, steps, resources
// and completion records.
//
// All reads return deep copies. Mutations are applied under a single mutex and
// published to subscribers after the mutex is released.
package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/atinyakov/learnpath/internal/models"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrStaleLoad is returned by a Load that was overtaken by a newer one.
var ErrStaleLoad = errors.New("store: load superseded by a newer load")

// EventKind tells subscribers what changed.
type EventKind int

const (
	PlanPut EventKind = iota + 1
	PlanRemoved
	CompletionPut
	CompletionRemoved
	Loaded
)

func (k EventKind) String() string {
	switch k {
	case PlanPut:
		return "plan_put"
	case PlanRemoved:
		return "plan_removed"
	case CompletionPut:
		return "completion_put"
	case CompletionRemoved:
		return "completion_removed"
	case Loaded:
		return "loaded"
	default:
		return "unknown"
	}
}

// Event describes one store change.
type Event struct {
	Kind EventKind
	// PlanID is set for plan events.
	PlanID string
	// StepID is set for completion events.
	StepID string
}

// TemplateSource lists the built-in templates.
type TemplateSource interface {
	All() []models.Plan
}

// Fetcher is the part of the remote adapter a load needs.
type Fetcher interface {
	FetchOwnerPlans(ctx context.Context, ownerID string) ([]models.Plan, error)
	FetchCompletion(ctx context.Context, ownerID string) ([]models.CompletionRecord, error)
}

// Store is the session cache.
type Store struct {
	mu          sync.Mutex
	plans       map[string]*models.Plan
	completions map[string]models.CompletionRecord
	ownerID     string
	generation  uint64

	listenersMu  sync.Mutex
	listeners    map[int]func(Event)
	nextListener int

	templates TemplateSource
	remote    Fetcher
	log       *zap.Logger
}

// New returns an empty store. Call Load to populate it.
func New(templates TemplateSource, remote Fetcher, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{
		plans:       make(map[string]*models.Plan),
		completions: make(map[string]models.CompletionRecord),
		listeners:   make(map[int]func(Event)),
		templates:   templates,
		remote:      remote,
		log:         log,
	}
}

// Load replaces the store contents with the templates plus the plans and
// completion records of ownerID. An empty ownerID loads templates only.
//
// Owner plans and completions are fetched concurrently. A load whose ctx is
// done by the time the fetch returns, or that was overtaken by a later Load,
// leaves the store untouched and returns ctx.Err() or ErrStaleLoad.
func (s *Store) Load(ctx context.Context, ownerID string) error {
	s.mu.Lock()
	s.generation++
	gen := s.generation
	s.mu.Unlock()

	var (
		plans   []models.Plan
		records []models.CompletionRecord
	)
	if ownerID != "" {
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			var err error
			plans, err = s.remote.FetchOwnerPlans(gctx, ownerID)
			return err
		})
		g.Go(func() error {
			var err error
			records, err = s.remote.FetchCompletion(gctx, ownerID)
			return err
		})
		if err := g.Wait(); err != nil {
			return fmt.Errorf("load %s: %w", ownerID, err)
		}
	}
	if err := ctx.Err(); err != nil {
		s.log.Debug("discarding cancelled load", zap.String("owner", ownerID))
		return err
	}

	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		s.log.Debug("discarding stale load", zap.String("owner", ownerID))
		return ErrStaleLoad
	}
	s.plans = make(map[string]*models.Plan, len(plans))
	if s.templates != nil {
		for _, t := range s.templates.All() {
			s.plans[t.ID] = t.Clone()
		}
	}
	for i := range plans {
		s.plans[plans[i].ID] = plans[i].Clone()
	}
	s.completions = make(map[string]models.CompletionRecord, len(records))
	for _, rec := range records {
		s.completions[rec.StepID] = rec
	}
	s.ownerID = ownerID
	s.mu.Unlock()

	s.log.Info("store loaded",
		zap.String("owner", ownerID),
		zap.Int("plans", len(plans)),
		zap.Int("completions", len(records)))
	s.emit(Event{Kind: Loaded})
	return nil
}

// OwnerID returns the owner of the last applied load.
func (s *Store) OwnerID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ownerID
}

// Get returns a copy of plan id.
func (s *Store) Get(id string) (*models.Plan, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.plans[id]
	if !ok {
		return nil, false
	}
	return p.Clone(), true
}

// List returns copies of the plans matching pred (all plans when pred is nil),
// newest first with ties broken by id.
func (s *Store) List(pred func(*models.Plan) bool) []models.Plan {
	s.mu.Lock()
	out := make([]models.Plan, 0, len(s.plans))
	for _, p := range s.plans {
		if pred == nil || pred(p) {
			out = append(out, *p.Clone())
		}
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Put inserts or replaces a plan.
func (s *Store) Put(p *models.Plan) {
	s.mu.Lock()
	s.plans[p.ID] = p.Clone()
	s.mu.Unlock()
	s.emit(Event{Kind: PlanPut, PlanID: p.ID})
}

// Remove deletes plan id together with the completion records of its steps and
// returns what was removed. The plan is nil when id was unknown.
func (s *Store) Remove(id string) (*models.Plan, []models.CompletionRecord) {
	s.mu.Lock()
	p, ok := s.plans[id]
	if !ok {
		s.mu.Unlock()
		return nil, nil
	}
	delete(s.plans, id)

	var removed []models.CompletionRecord
	for _, stepID := range p.StepIDs() {
		if rec, ok := s.completions[stepID]; ok {
			removed = append(removed, rec)
			delete(s.completions, stepID)
		}
	}
	s.mu.Unlock()

	s.emit(Event{Kind: PlanRemoved, PlanID: id})
	for _, rec := range removed {
		s.emit(Event{Kind: CompletionRemoved, StepID: rec.StepID})
	}
	return p, removed
}

// Rekey moves the plan stored under oldID to p.ID and replaces it with p.
func (s *Store) Rekey(oldID string, p *models.Plan) {
	s.mu.Lock()
	delete(s.plans, oldID)
	s.plans[p.ID] = p.Clone()
	s.mu.Unlock()

	if oldID != p.ID {
		s.emit(Event{Kind: PlanRemoved, PlanID: oldID})
	}
	s.emit(Event{Kind: PlanPut, PlanID: p.ID})
}

// FindByShareToken returns the plan carrying token, accessible or not.
func (s *Store) FindByShareToken(token string) (*models.Plan, bool) {
	if token == "" {
		return nil, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.plans {
		if p.ShareToken == token {
			return p.Clone(), true
		}
	}
	return nil, false
}

// FindStep returns the plan containing stepID.
func (s *Store) FindStep(stepID string) (*models.Plan, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.plans {
		for _, st := range p.Steps {
			if st.ID == stepID {
				return p.Clone(), true
			}
		}
	}
	return nil, false
}

// OwnedCount counts the non-template plans of ownerID.
func (s *Store) OwnedCount(ownerID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, p := range s.plans {
		if !p.IsTemplate && p.OwnerID == ownerID {
			n++
		}
	}
	return n
}

// Completion returns the record for stepID.
func (s *Store) Completion(stepID string) (models.CompletionRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.completions[stepID]
	return rec, ok
}

// Completions returns every record ordered by step id.
func (s *Store) Completions() []models.CompletionRecord {
	s.mu.Lock()
	out := make([]models.CompletionRecord, 0, len(s.completions))
	for _, rec := range s.completions {
		out = append(out, rec)
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].StepID < out[j].StepID })
	return out
}

// PutCompletion inserts or replaces the record of rec.StepID.
func (s *Store) PutCompletion(rec models.CompletionRecord) {
	s.mu.Lock()
	s.completions[rec.StepID] = rec
	s.mu.Unlock()
	s.emit(Event{Kind: CompletionPut, StepID: rec.StepID})
}

// RemoveCompletion deletes the record of stepID.
func (s *Store) RemoveCompletion(stepID string) {
	s.mu.Lock()
	_, ok := s.completions[stepID]
	delete(s.completions, stepID)
	s.mu.Unlock()
	if ok {
		s.emit(Event{Kind: CompletionRemoved, StepID: stepID})
	}
}

// Subscribe registers fn for every subsequent change and returns a function
// that removes it. fn runs on the mutating goroutine after the store lock is
// released, so it may read the store.
func (s *Store) Subscribe(fn func(Event)) (unsubscribe func()) {
	s.listenersMu.Lock()
	id := s.nextListener
	s.nextListener++
	s.listeners[id] = fn
	s.listenersMu.Unlock()

	return func() {
		s.listenersMu.Lock()
		delete(s.listeners, id)
		s.listenersMu.Unlock()
	}
}

func (s *Store) emit(ev Event) {
	s.listenersMu.Lock()
	fns := make([]func(Event), 0, len(s.listeners))
	for id := 0; id < s.nextListener; id++ {
		if fn, ok := s.listeners[id]; ok {
			fns = append(fns, fn)
		}
	}
	s.listenersMu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}
