// Package session tracks who is signed in on the client and notifies
// listeners when that changes.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/atinyakov/learnpath/internal/authtoken"
	"github.com/atinyakov/learnpath/internal/models"
	"go.uber.org/zap"
)

// GuestOwnerID owns the local-only plans of a guest session.
const GuestOwnerID = "guest"

// Session is the identity of the current user.
type Session struct {
	// OwnerID identifies the signed-in owner; GuestOwnerID for guests.
	OwnerID string
	// Tier is the subscription tier used by the quota.
	Tier models.Tier
	// Token is the bearer token sent to the remote store. Empty for guests.
	Token string
	// Guest marks an anonymous session.
	Guest bool
}

// UpgradeConfirmer confirms a paid order with the payment provider and
// returns the bearer token that carries the new tier. An empty token keeps
// the current one.
type UpgradeConfirmer interface {
	ConfirmUpgrade(ctx context.Context, orderID string) (string, error)
}

// Listener observes session changes. signedIn is false after SignOut.
type Listener func(s Session, signedIn bool)

// Manager holds the current session.
type Manager struct {
	mu        sync.RWMutex
	current   *Session
	listeners map[int]Listener
	nextID    int
	log       *zap.Logger
}

// NewManager returns a Manager with nobody signed in.
func NewManager(log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{listeners: make(map[int]Listener), log: log}
}

// FromToken derives a session from a bearer token without verifying its
// signature. The remote store verifies it on every call.
func FromToken(token string) (Session, error) {
	id, err := authtoken.ParseUnverified(token)
	if err != nil {
		return Session{}, err
	}
	return Session{OwnerID: id.OwnerID, Tier: id.Tier, Token: token}, nil
}

// Current returns the active session and whether anyone is signed in.
func (m *Manager) Current() (Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current == nil {
		return Session{}, false
	}
	return *m.current, true
}

// Token returns the bearer token of the current session, or "".
func (m *Manager) Token() string {
	s, _ := m.Current()
	return s.Token
}

// SignIn replaces the current session with s.
func (m *Manager) SignIn(s Session) error {
	if s.OwnerID == "" {
		return errors.New("session: owner id is required")
	}
	if !models.ValidTier(s.Tier) {
		s.Tier = models.TierFree
	}
	m.set(&s)
	m.log.Info("signed in", zap.String("owner", s.OwnerID), zap.String("tier", string(s.Tier)))
	return nil
}

// SignInToken signs in with the identity carried by token.
func (m *Manager) SignInToken(token string) error {
	s, err := FromToken(token)
	if err != nil {
		return fmt.Errorf("session: %w", err)
	}
	return m.SignIn(s)
}

// SignInGuest starts an anonymous FREE session.
func (m *Manager) SignInGuest() {
	m.set(&Session{OwnerID: GuestOwnerID, Tier: models.TierFree, Guest: true})
	m.log.Info("signed in as guest")
}

// SignOut clears the session.
func (m *Manager) SignOut() {
	m.set(nil)
	m.log.Info("signed out")
}

// OnChange registers fn and returns a function that removes it.
func (m *Manager) OnChange(fn Listener) func() {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.listeners, id)
		m.mu.Unlock()
	}
}

// Upgrade confirms orderID with confirmer and, on success, moves the signed-in
// owner from FREE to PRO and adopts the token the confirmer returned. The new
// tier applies to the next plan creation.
func (m *Manager) Upgrade(ctx context.Context, confirmer UpgradeConfirmer, orderID string) error {
	s, ok := m.Current()
	if !ok || s.Guest {
		return models.ErrNotAuthenticated
	}
	if s.Tier == models.TierPro {
		return nil
	}

	token, err := confirmer.ConfirmUpgrade(ctx, orderID)
	if err != nil {
		return fmt.Errorf("confirm upgrade: %w", err)
	}
	if token != "" {
		issued, err := FromToken(token)
		if err != nil {
			return fmt.Errorf("confirm upgrade: %w", err)
		}
		if issued.OwnerID != s.OwnerID || issued.Tier != models.TierPro {
			return fmt.Errorf("confirm upgrade: token is for %s (%s)", issued.OwnerID, issued.Tier)
		}
	}

	m.mu.Lock()
	if m.current == nil || m.current.OwnerID != s.OwnerID {
		m.mu.Unlock()
		return models.ErrNotAuthenticated
	}
	m.current.Tier = models.TierPro
	if token != "" {
		m.current.Token = token
	}
	upgraded := *m.current
	listeners := m.snapshot()
	m.mu.Unlock()

	m.log.Info("upgraded", zap.String("owner", upgraded.OwnerID))
	for _, fn := range listeners {
		fn(upgraded, true)
	}
	return nil
}

func (m *Manager) set(s *Session) {
	m.mu.Lock()
	m.current = s
	listeners := m.snapshot()
	m.mu.Unlock()

	var current Session
	if s != nil {
		current = *s
	}
	for _, fn := range listeners {
		fn(current, s != nil)
	}
}

// snapshot copies the listeners in registration order. Called with mu held.
func (m *Manager) snapshot() []Listener {
	out := make([]Listener, 0, len(m.listeners))
	for id := 0; id < m.nextID; id++ {
		if fn, ok := m.listeners[id]; ok {
			out = append(out, fn)
		}
	}
	return out
}
