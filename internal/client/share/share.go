// Package share mints, revokes and resolves public share links.
package share

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/atinyakov/learnpath/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// DefaultTTL bounds the lifetime of a user plan's share link.
	DefaultTTL = time.Hour
	// DefaultLookupTimeout bounds a remote share lookup.
	DefaultLookupTimeout = 10 * time.Second
)

// LocalLookup finds a plan by share token in the session cache.
type LocalLookup interface {
	FindByShareToken(token string) (*models.Plan, bool)
}

// TemplateLookup finds a built-in template by share token.
type TemplateLookup interface {
	ByShareToken(token string) (*models.Plan, bool)
}

// RemoteLookup fetches a published plan from the remote store.
type RemoteLookup interface {
	FetchPublicPlan(ctx context.Context, token string) (*models.Plan, error)
}

// Options configures a Manager. Zero values select the defaults.
type Options struct {
	TTL           time.Duration
	LookupTimeout time.Duration
	Logger        *zap.Logger
	// Now and NewToken replace the clock and token source in tests.
	Now      func() time.Time
	NewToken func() string
}

// Manager owns the share-link lifecycle.
type Manager struct {
	local     LocalLookup
	templates TemplateLookup
	remote    RemoteLookup
	ttl       time.Duration
	timeout   time.Duration
	log       *zap.Logger
	now       func() time.Time
	newToken  func() string
}

// NewManager builds a Manager resolving tokens through local, then templates,
// then remote.
func NewManager(local LocalLookup, templates TemplateLookup, remote RemoteLookup, opts Options) *Manager {
	m := &Manager{
		local:     local,
		templates: templates,
		remote:    remote,
		ttl:       opts.TTL,
		timeout:   opts.LookupTimeout,
		log:       opts.Logger,
		now:       opts.Now,
		newToken:  opts.NewToken,
	}
	if m.ttl <= 0 {
		m.ttl = DefaultTTL
	}
	if m.timeout <= 0 {
		m.timeout = DefaultLookupTimeout
	}
	if m.log == nil {
		m.log = zap.NewNop()
	}
	if m.now == nil {
		m.now = time.Now
	}
	if m.newToken == nil {
		m.newToken = uuid.NewString
	}
	return m
}

// Mint publishes p under a fresh token. User plans expire after the TTL;
// templates never expire.
func (m *Manager) Mint(p *models.Plan) {
	p.Visibility = models.VisibilityPublic
	p.ShareToken = m.newToken()
	if p.IsTemplate {
		p.ShareExpiry = nil
		return
	}
	exp := m.now().Add(m.ttl).UTC()
	p.ShareExpiry = &exp
}

// Revoke makes p private and drops its token and expiry.
func (m *Manager) Revoke(p *models.Plan) {
	p.Visibility = models.VisibilityPrivate
	p.ShareToken = ""
	p.ShareExpiry = nil
}

// IsAccessible reports whether p can be read through its token right now.
func (m *Manager) IsAccessible(p *models.Plan) bool {
	return p.IsAccessible(m.now())
}

// Resolve looks token up in the session cache, then the template catalog,
// then the remote store; the first match wins. A match that is not
// accessible is reported as models.ErrNotFound, exactly like a miss.
//
// The remote lookup is bounded by the lookup timeout; running out of time
// yields an error matching both models.ErrNotFound and
// models.ErrLookupTimeout. If ctx is done when the remote answers, the answer
// is dropped and ctx.Err() returned.
func (m *Manager) Resolve(ctx context.Context, token string) (*models.Plan, error) {
	if token == "" {
		return nil, models.ErrNotFound
	}

	if m.local != nil {
		if p, ok := m.local.FindByShareToken(token); ok {
			return m.accessible(p, "store")
		}
	}
	if m.templates != nil {
		if p, ok := m.templates.ByShareToken(token); ok {
			return m.accessible(p, "templates")
		}
	}
	if m.remote == nil {
		return nil, models.ErrNotFound
	}

	lookupCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	p, err := m.remote.FetchPublicPlan(lookupCtx, token)
	if ctxErr := ctx.Err(); ctxErr != nil {
		m.log.Debug("dropping share lookup of a cancelled caller", zap.Error(ctxErr))
		return nil, ctxErr
	}
	if errors.Is(lookupCtx.Err(), context.DeadlineExceeded) {
		m.log.Warn("share lookup timed out", zap.Duration("timeout", m.timeout))
		return nil, fmt.Errorf("resolve share link: %w", errors.Join(models.ErrNotFound, models.ErrLookupTimeout))
	}
	if err != nil {
		return nil, err
	}
	return m.accessible(p, "remote")
}

func (m *Manager) accessible(p *models.Plan, source string) (*models.Plan, error) {
	if !m.IsAccessible(p) {
		m.log.Debug("share link not accessible", zap.String("source", source), zap.String("plan", p.ID))
		return nil, models.ErrNotFound
	}
	return p, nil
}
