// Package pipeline applies plan and completion mutations to the session cache
// first and confirms them with the remote store afterwards, rolling the cache
// back when the remote call fails.
//
// Mutations addressing the same plan are serialized: a second mutation waits
// until the first is confirmed or rolled back before touching the cache.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/atinyakov/learnpath/internal/client/draft"
	"github.com/atinyakov/learnpath/internal/client/session"
	"github.com/atinyakov/learnpath/internal/models"
	"github.com/atinyakov/learnpath/internal/quota"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrEmptyDraft is returned by CreateFromDraft when the generator produced nothing.
var ErrEmptyDraft = errors.New("no draft was generated")

// State is the lifecycle position of a mutation.
type State int

const (
	// Pending means the cache already shows the change.
	Pending State = iota + 1
	// Confirmed means the remote store acknowledged the change.
	Confirmed
	// RolledBack means the remote call failed and the cache was restored.
	RolledBack
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Confirmed:
		return "confirmed"
	case RolledBack:
		return "rolled_back"
	default:
		return "unknown"
	}
}

// Kind names a mutation.
type Kind string

const (
	KindCreate     Kind = "create"
	KindUpdate     Kind = "update"
	KindVisibility Kind = "visibility"
	KindDelete     Kind = "delete"
	KindCompletion Kind = "completion"
)

// Event reports a state transition of one mutation.
type Event struct {
	// ID numbers the mutation within the pipeline.
	ID uint64
	Kind Kind
	// EntityID is the plan id, or the step id for completions.
	EntityID string
	State    State
	// Err is set on RolledBack.
	Err error
}

// Edit describes an UpdatePlan change. Nil fields are left as they are; a
// non-nil Steps replaces the whole step list.
type Edit struct {
	Title       *string
	Description *string
	Category    *string
	Steps       []models.Step
}

// Store is the session cache the pipeline mutates.
type Store interface {
	OwnerID() string
	Get(id string) (*models.Plan, bool)
	Put(p *models.Plan)
	Remove(id string) (*models.Plan, []models.CompletionRecord)
	Rekey(oldID string, p *models.Plan)
	FindStep(stepID string) (*models.Plan, bool)
	OwnedCount(ownerID string) int
	Completion(stepID string) (models.CompletionRecord, bool)
	PutCompletion(rec models.CompletionRecord)
	RemoveCompletion(stepID string)
}

// Remote is the write side of the sync adapter.
type Remote interface {
	CreatePlan(ctx context.Context, plan *models.Plan) (*models.Plan, error)
	UpdatePlan(ctx context.Context, plan *models.Plan) error
	DeletePlan(ctx context.Context, id string) error
	UpsertCompletion(ctx context.Context, rec models.CompletionRecord) error
}

// Sharer mints and revokes share links.
type Sharer interface {
	Mint(p *models.Plan)
	Revoke(p *models.Plan)
	IsAccessible(p *models.Plan) bool
}

// Identity supplies the current session.
type Identity interface {
	Current() (session.Session, bool)
}

// Templates looks up built-in templates.
type Templates interface {
	ByID(id string) (*models.Plan, bool)
}

// Options configures a Pipeline. Zero values select the defaults.
type Options struct {
	Quota quota.Policy
	// AllowGuestPlans lets guest sessions keep local-only plans.
	AllowGuestPlans bool
	Logger          *zap.Logger
	// Observer receives every state transition.
	Observer func(Event)
	// NewID and Now replace the id source and clock in tests.
	NewID func() string
	Now   func() time.Time
}

// Pipeline runs optimistic mutations.
type Pipeline struct {
	store     Store
	remote    Remote
	sharer    Sharer
	identity  Identity
	templates Templates

	quota       quota.Policy
	allowGuests bool
	log         *zap.Logger
	observer    func(Event)
	newID       func() string
	now         func() time.Time

	locks   *keyLocks
	seq     atomic.Uint64
	aliasMu sync.RWMutex
	aliases map[string]string
}

// New wires a Pipeline.
func New(store Store, remote Remote, sharer Sharer, identity Identity, templates Templates, opts Options) *Pipeline {
	p := &Pipeline{
		store:       store,
		remote:      remote,
		sharer:      sharer,
		identity:    identity,
		templates:   templates,
		quota:       opts.Quota,
		allowGuests: opts.AllowGuestPlans,
		log:         opts.Logger,
		observer:    opts.Observer,
		newID:       opts.NewID,
		now:         opts.Now,
		locks:       newKeyLocks(),
		aliases:     make(map[string]string),
	}
	if p.quota.FreeLimit <= 0 || p.quota.ProLimit <= 0 {
		p.quota = quota.NewPolicy(p.quota.FreeLimit, p.quota.ProLimit)
	}
	if p.log == nil {
		p.log = zap.NewNop()
	}
	if p.newID == nil {
		p.newID = uuid.NewString
	}
	if p.now == nil {
		p.now = time.Now
	}
	return p
}

// Canonical returns the id the remote store issued for a plan created under
// the local id, or id itself.
func (p *Pipeline) Canonical(id string) string {
	p.aliasMu.RLock()
	defer p.aliasMu.RUnlock()
	if c, ok := p.aliases[id]; ok {
		return c
	}
	return id
}

// CreatePlan validates draft, checks the quota and adds the plan to the cache
// under fresh client ids before sending it to the remote store. The returned
// plan carries the canonical id.
func (p *Pipeline) CreatePlan(ctx context.Context, input *models.Plan) (*models.Plan, error) {
	sess, err := p.session(true)
	if err != nil {
		return nil, err
	}

	plan := input.Clone()
	plan.ID = ""
	for i := range plan.Steps {
		plan.Steps[i].ID = ""
		for j := range plan.Steps[i].Resources {
			plan.Steps[i].Resources[j].ID = ""
		}
	}
	plan.FillIDs(p.newID)
	plan.RenumberSteps()
	plan.OwnerID = sess.OwnerID
	plan.IsTemplate = false
	plan.CreatedAt = p.now().UTC()
	plan.Visibility = models.VisibilityPrivate
	plan.ShareToken = ""
	plan.ShareExpiry = nil
	if err := plan.Validate(); err != nil {
		return nil, err
	}

	ownerKey := "owner:" + sess.OwnerID
	if err := p.locks.lock(ctx, ownerKey); err != nil {
		return nil, err
	}
	tier := sess.Tier
	if sess.Guest {
		tier = models.TierFree
	}
	if err := p.quota.Check(tier, p.store.OwnedCount(sess.OwnerID)); err != nil {
		p.locks.unlock(ownerKey)
		return nil, err
	}
	planKey := planLockKey(plan.ID)
	if err := p.locks.lock(ctx, planKey); err != nil {
		p.locks.unlock(ownerKey)
		return nil, err
	}
	defer p.locks.unlock(planKey)

	m := p.begin(KindCreate, plan.ID)
	loadedFor := p.store.OwnerID()
	p.store.Put(plan)
	// the plan is counted from here on
	p.locks.unlock(ownerKey)

	if sess.Guest {
		p.confirm(m)
		return plan.Clone(), nil
	}

	created, err := p.remote.CreatePlan(context.WithoutCancel(ctx), plan)
	if err != nil {
		if p.live(loadedFor) {
			p.store.Remove(plan.ID)
		}
		p.rollback(m, err)
		return nil, err
	}
	if created == nil {
		created = plan
	}
	if p.live(loadedFor) {
		if created.ID != plan.ID {
			p.aliasMu.Lock()
			p.aliases[plan.ID] = created.ID
			p.aliasMu.Unlock()
			p.log.Info("remote issued a new plan id", zap.String("local", plan.ID), zap.String("remote", created.ID))
			p.store.Rekey(plan.ID, created)
		} else {
			p.store.Put(created)
		}
	}
	p.confirm(m)
	return created.Clone(), nil
}

// CreateFromDraft asks gen for a plan on topic and creates it.
func (p *Pipeline) CreateFromDraft(ctx context.Context, gen draft.Generator, topic string) (*models.Plan, error) {
	if _, err := p.session(true); err != nil {
		return nil, err
	}
	d, err := gen.GenerateDraft(ctx, topic)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, ErrEmptyDraft
	}
	return p.CreatePlan(ctx, d.ToPlan())
}

// CopyTemplate creates a personal plan from template templateID.
func (p *Pipeline) CopyTemplate(ctx context.Context, templateID string) (*models.Plan, error) {
	tmpl, ok := p.templates.ByID(templateID)
	if !ok {
		return nil, fmt.Errorf("template %s: %w", templateID, models.ErrNotFound)
	}
	return p.CreatePlan(ctx, tmpl)
}

// UpdatePlan applies edit to plan id. Step orders are recomputed and steps
// without an id get a fresh one.
func (p *Pipeline) UpdatePlan(ctx context.Context, id string, edit Edit) (*models.Plan, error) {
	sess, err := p.session(true)
	if err != nil {
		return nil, err
	}
	id, unlock, err := p.lockPlan(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	prior, err := p.owned(sess, id)
	if err != nil {
		return nil, err
	}
	next := prior.Clone()
	if edit.Title != nil {
		next.Title = strings.TrimSpace(*edit.Title)
	}
	if edit.Description != nil {
		next.Description = *edit.Description
	}
	if edit.Category != nil {
		next.Category = *edit.Category
	}
	if edit.Steps != nil {
		next.Steps = (&models.Plan{Steps: edit.Steps}).Clone().Steps
		next.FillIDs(p.newID)
	}
	next.RenumberSteps()
	if err := next.Validate(); err != nil {
		return nil, err
	}

	if err := p.apply(ctx, KindUpdate, sess, prior, next); err != nil {
		return nil, err
	}
	return next.Clone(), nil
}

// SetVisibility publishes plan id under a fresh share link or makes it
// private. Publishing a plan whose link is still accessible changes nothing;
// an expired link is replaced.
func (p *Pipeline) SetVisibility(ctx context.Context, id string, public bool) (*models.Plan, error) {
	sess, err := p.session(false)
	if err != nil {
		return nil, err
	}
	id, unlock, err := p.lockPlan(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	prior, err := p.owned(sess, id)
	if err != nil {
		return nil, err
	}
	next := prior.Clone()
	switch {
	case public && p.sharer.IsAccessible(prior):
		return prior, nil
	case public:
		p.sharer.Mint(next)
	case !prior.IsPublic() && prior.ShareToken == "":
		return prior, nil
	default:
		p.sharer.Revoke(next)
	}

	if err := p.apply(ctx, KindVisibility, sess, prior, next); err != nil {
		return nil, err
	}
	return next.Clone(), nil
}

// DeletePlan removes plan id and the completion records of its steps.
func (p *Pipeline) DeletePlan(ctx context.Context, id string) error {
	sess, err := p.session(true)
	if err != nil {
		return err
	}
	id, unlock, err := p.lockPlan(ctx, id)
	if err != nil {
		return err
	}
	defer unlock()

	if _, err := p.owned(sess, id); err != nil {
		return err
	}

	m := p.begin(KindDelete, id)
	loadedFor := p.store.OwnerID()
	removed, completions := p.store.Remove(id)
	if sess.Guest {
		p.confirm(m)
		return nil
	}

	if err := p.remote.DeletePlan(context.WithoutCancel(ctx), id); err != nil {
		if p.live(loadedFor) && removed != nil {
			p.store.Put(removed)
			for _, rec := range completions {
				p.store.PutCompletion(rec)
			}
		}
		p.rollback(m, err)
		return err
	}
	// A refresh that landed while the delete was in flight may have put it back.
	if p.live(loadedFor) {
		p.store.Remove(id)
	}
	p.confirm(m)
	return nil
}

// ToggleCompletion flips the completion flag of stepID for the signed-in
// owner. A step without a record becomes completed.
func (p *Pipeline) ToggleCompletion(ctx context.Context, stepID string) (models.CompletionRecord, error) {
	sess, err := p.session(true)
	if err != nil {
		return models.CompletionRecord{}, err
	}
	plan, ok := p.store.FindStep(stepID)
	if !ok {
		return models.CompletionRecord{}, fmt.Errorf("step %s: %w", stepID, models.ErrNotFound)
	}
	_, unlock, err := p.lockPlan(ctx, plan.ID)
	if err != nil {
		return models.CompletionRecord{}, err
	}
	defer unlock()

	// the plan may have changed while we waited
	plan, ok = p.store.FindStep(stepID)
	if !ok {
		return models.CompletionRecord{}, fmt.Errorf("step %s: %w", stepID, models.ErrNotFound)
	}
	if !plan.IsTemplate && plan.OwnerID != sess.OwnerID {
		return models.CompletionRecord{}, models.ErrForbidden
	}

	prior, had := p.store.Completion(stepID)
	next := models.CompletionRecord{ID: p.newID(), OwnerID: sess.OwnerID, StepID: stepID, Completed: true}
	if had {
		next = prior
		next.Completed = !prior.Completed
	}

	m := p.begin(KindCompletion, stepID)
	loadedFor := p.store.OwnerID()
	p.store.PutCompletion(next)
	if sess.Guest {
		p.confirm(m)
		return next, nil
	}

	if err := p.remote.UpsertCompletion(context.WithoutCancel(ctx), next); err != nil {
		if p.live(loadedFor) {
			if had {
				p.store.PutCompletion(prior)
			} else {
				p.store.RemoveCompletion(stepID)
			}
		}
		p.rollback(m, err)
		return models.CompletionRecord{}, err
	}
	p.confirm(m)
	return next, nil
}

// apply puts next in the cache, sends it to the remote store and restores
// prior if that fails.
func (p *Pipeline) apply(ctx context.Context, kind Kind, sess session.Session, prior, next *models.Plan) error {
	m := p.begin(kind, next.ID)
	loadedFor := p.store.OwnerID()
	p.store.Put(next)
	if sess.Guest {
		p.confirm(m)
		return nil
	}

	if err := p.remote.UpdatePlan(context.WithoutCancel(ctx), next); err != nil {
		if p.live(loadedFor) {
			p.store.Put(prior)
		}
		p.rollback(m, err)
		return err
	}
	p.confirm(m)
	return nil
}

// session returns the current session. Guests pass only when guestOK is set
// and guest plans are enabled.
func (p *Pipeline) session(guestOK bool) (session.Session, error) {
	sess, ok := p.identity.Current()
	if !ok || sess.OwnerID == "" {
		return session.Session{}, models.ErrNotAuthenticated
	}
	if sess.Guest && (!guestOK || !p.allowGuests) {
		return session.Session{}, models.ErrNotAuthenticated
	}
	return sess, nil
}

// owned returns the cached plan id if sess may modify it.
func (p *Pipeline) owned(sess session.Session, id string) (*models.Plan, error) {
	plan, ok := p.store.Get(id)
	if !ok {
		return nil, fmt.Errorf("plan %s: %w", id, models.ErrNotFound)
	}
	if plan.IsTemplate || plan.OwnerID != sess.OwnerID {
		return nil, models.ErrForbidden
	}
	return plan, nil
}

// lockPlan locks the canonical id of plan id. An alias recorded while the
// caller waited moves it on to the canonical key.
func (p *Pipeline) lockPlan(ctx context.Context, id string) (string, func(), error) {
	for {
		canonical := p.Canonical(id)
		key := planLockKey(canonical)
		if err := p.locks.lock(ctx, key); err != nil {
			return "", nil, err
		}
		if p.Canonical(id) == canonical {
			return canonical, func() { p.locks.unlock(key) }, nil
		}
		p.locks.unlock(key)
	}
}

// live reports whether the cache still holds the session a mutation started in.
func (p *Pipeline) live(loadedFor string) bool {
	if p.store.OwnerID() != loadedFor {
		p.log.Debug("cache reloaded for another owner, result dropped")
		return false
	}
	return true
}

func planLockKey(id string) string { return "plan:" + id }

func (p *Pipeline) begin(kind Kind, entityID string) Event {
	ev := Event{ID: p.seq.Add(1), Kind: kind, EntityID: entityID, State: Pending}
	p.report(ev)
	return ev
}

func (p *Pipeline) confirm(ev Event) {
	ev.State = Confirmed
	p.report(ev)
}

func (p *Pipeline) rollback(ev Event, err error) {
	ev.State = RolledBack
	ev.Err = err
	p.report(ev)
}

func (p *Pipeline) report(ev Event) {
	fields := []zap.Field{
		zap.Uint64("mutation", ev.ID),
		zap.String("kind", string(ev.Kind)),
		zap.String("entity", ev.EntityID),
		zap.Stringer("state", ev.State),
	}
	switch ev.State {
	case RolledBack:
		p.log.Warn("mutation rolled back", append(fields, zap.Error(ev.Err))...)
	case Confirmed:
		p.log.Info("mutation confirmed", fields...)
	default:
		p.log.Debug("mutation pending", fields...)
	}
	if p.observer != nil {
		p.observer(ev)
	}
}
