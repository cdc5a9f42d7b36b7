// Package app is the composition root of the client. It builds every engine
// component once and reloads the cache whenever the session changes.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/atinyakov/learnpath/internal/client/draft"
	"github.com/atinyakov/learnpath/internal/client/pipeline"
	"github.com/atinyakov/learnpath/internal/client/progress"
	"github.com/atinyakov/learnpath/internal/client/session"
	"github.com/atinyakov/learnpath/internal/client/share"
	"github.com/atinyakov/learnpath/internal/client/store"
	"github.com/atinyakov/learnpath/internal/client/syncadapter"
	"github.com/atinyakov/learnpath/internal/config"
	"github.com/atinyakov/learnpath/internal/templates"
	"go.uber.org/zap"
)

// App holds the wired client engine.
type App struct {
	Templates *templates.Catalog
	Remote    syncadapter.Adapter
	Session   *session.Manager
	Store     *store.Store
	Share     *share.Manager
	Pipeline  *pipeline.Pipeline
	Progress  *progress.Calculator
	// Generator is nil when no OpenAI key is configured.
	Generator draft.Generator
	// Payments is nil when the remote cannot confirm upgrades.
	Payments session.UpgradeConfirmer

	ctx         context.Context
	log         *zap.Logger
	unsubscribe func()

	mu      sync.Mutex
	loadErr error
}

// New wires the client. A nil remote selects the HTTP adapter against
// cfg.ServerURL.
func New(ctx context.Context, cfg *config.Options, remote syncadapter.Adapter, log *zap.Logger) (*App, error) {
	if log == nil {
		log = zap.NewNop()
	}
	a := &App{
		Templates: templates.Default(),
		Session:   session.NewManager(log.Named("session")),
		ctx:       ctx,
		log:       log,
	}

	if remote == nil {
		client, err := syncadapter.NewHTTPClient(cfg.CAFile, cfg.RequestTimeout.Duration)
		if err != nil {
			return nil, err
		}
		remote = syncadapter.NewHTTPAdapter(client, cfg.ServerURL, a.Session.Token)
	}
	a.Remote = remote
	if upgrader, ok := remote.(syncadapter.Upgrader); ok {
		a.Payments = upgrader
	}

	a.Store = store.New(a.Templates, remote, log.Named("store"))
	a.Share = share.NewManager(a.Store, a.Templates, remote, share.Options{
		TTL:           cfg.ShareTTL.Duration,
		LookupTimeout: cfg.LookupTimeout.Duration,
		Logger:        log.Named("share"),
	})
	a.Pipeline = pipeline.New(a.Store, remote, a.Share, a.Session, a.Templates, pipeline.Options{
		Quota:           cfg.QuotaPolicy(),
		AllowGuestPlans: cfg.AllowGuestPlans,
		Logger:          log.Named("pipeline"),
	})
	a.Progress = progress.NewCalculator(a.Store)

	if cfg.OpenAIKey != "" {
		gen, err := draft.NewOpenAIGenerator(cfg.OpenAIKey, cfg.OpenAIModel)
		if err != nil {
			return nil, err
		}
		a.Generator = gen
	}

	a.unsubscribe = a.Session.OnChange(a.onSessionChange)
	return a, nil
}

// Close detaches the session listener.
func (a *App) Close() {
	a.unsubscribe()
}

// Owner returns the owner whose plans the cache should hold: the signed-in
// owner, or "" for guests and signed-out sessions.
func (a *App) Owner() string {
	s, ok := a.Session.Current()
	if !ok || s.Guest {
		return ""
	}
	return s.OwnerID
}

// Reload refetches the current owner's plans.
func (a *App) Reload(ctx context.Context) error {
	return a.Store.Load(ctx, a.Owner())
}

// SignIn signs in with token and returns the error of the load it triggered.
func (a *App) SignIn(token string) error {
	if err := a.Session.SignInToken(token); err != nil {
		return err
	}
	return a.LoadErr()
}

// SignInGuest starts a guest session showing the templates.
func (a *App) SignInGuest() error {
	a.Session.SignInGuest()
	return a.LoadErr()
}

// Upgrade confirms the paid order and returns the upgraded session.
func (a *App) Upgrade(ctx context.Context, orderID string) (session.Session, error) {
	if a.Payments == nil {
		return session.Session{}, errors.New("the remote store does not accept upgrades")
	}
	if err := a.Session.Upgrade(ctx, a.Payments, orderID); err != nil {
		return session.Session{}, err
	}
	s, _ := a.Session.Current()
	return s, a.LoadErr()
}

// LoadErr returns the error of the last session-triggered load.
func (a *App) LoadErr() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.loadErr
}

// RequireGenerator returns the draft generator or an error naming the
// missing configuration.
func (a *App) RequireGenerator() (draft.Generator, error) {
	if a.Generator == nil {
		return nil, errors.New("AI drafts need an OpenAI key (OPENAI_API_KEY)")
	}
	return a.Generator, nil
}

func (a *App) onSessionChange(s session.Session, signedIn bool) {
	owner := ""
	if signedIn && !s.Guest {
		owner = s.OwnerID
	}
	err := a.Store.Load(a.ctx, owner)
	if errors.Is(err, store.ErrStaleLoad) {
		err = nil
	}
	if err != nil {
		a.log.Error("failed to load plans", zap.String("owner", owner), zap.Error(err))
		err = fmt.Errorf("load plans: %w", err)
	}
	a.mu.Lock()
	a.loadErr = err
	a.mu.Unlock()
}
