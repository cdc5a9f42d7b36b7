// Package storage keeps the client's sign-in state between runs and holds
// the helpers of the interactive shell.
package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Credentials is what the client remembers between runs.
type Credentials struct {
	// Token is the bearer token of a signed-in owner.
	Token string `json:"token,omitempty"`
	// Guest marks a remembered guest session.
	Guest bool `json:"guest,omitempty"`
}

// LocalStorage persists Credentials as JSON at Path.
type LocalStorage struct {
	Path string
	mu   sync.Mutex
	cred Credentials
}

// DefaultPath returns ~/.learnpath/session.json.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, ".learnpath", "session.json"), nil
}

// NewLocalStorage returns a storage backed by path.
func NewLocalStorage(path string) *LocalStorage {
	return &LocalStorage{Path: path}
}

// Load reads the file. A missing file leaves empty credentials.
func (ls *LocalStorage) Load() error {
	ls.mu.Lock()
	defer ls.mu.Unlock()

	f, err := os.Open(ls.Path)
	if err != nil {
		if os.IsNotExist(err) {
			ls.cred = Credentials{}
			return nil
		}
		return err
	}
	defer f.Close()

	var cred Credentials
	if err := json.NewDecoder(f).Decode(&cred); err != nil {
		return fmt.Errorf("decode %s: %w", ls.Path, err)
	}
	ls.cred = cred
	return nil
}

// Save writes the file readable by the current user only.
func (ls *LocalStorage) Save() error {
	ls.mu.Lock()
	defer ls.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(ls.Path), 0o700); err != nil {
		return err
	}
	f, err := os.OpenFile(ls.Path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()
	return json.NewEncoder(f).Encode(ls.cred)
}

// Get returns the current credentials.
func (ls *LocalStorage) Get() Credentials {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	return ls.cred
}

// SetToken remembers a signed-in owner.
func (ls *LocalStorage) SetToken(token string) {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	ls.cred = Credentials{Token: token}
}

// SetGuest remembers a guest session.
func (ls *LocalStorage) SetGuest() {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	ls.cred = Credentials{Guest: true}
}

// Clear forgets everything.
func (ls *LocalStorage) Clear() {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	ls.cred = Credentials{}
}
