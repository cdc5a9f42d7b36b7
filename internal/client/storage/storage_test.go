package storage

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_FileNotExist(t *testing.T) {
	ls := NewLocalStorage(filepath.Join(t.TempDir(), "session.json"))
	if err := ls.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got := ls.Get(); got != (Credentials{}) {
		t.Errorf("expected empty credentials, got %+v", got)
	}
}

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "session.json")
	ls := NewLocalStorage(path)
	ls.SetToken("tok")
	if err := ls.Save(); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("expected mode 0600, got %o", perm)
	}

	again := NewLocalStorage(path)
	if err := again.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got := again.Get(); got.Token != "tok" || got.Guest {
		t.Errorf("unexpected credentials: %+v", got)
	}
}

func TestSetGuestAndClear(t *testing.T) {
	ls := NewLocalStorage(filepath.Join(t.TempDir(), "session.json"))
	ls.SetToken("tok")
	ls.SetGuest()
	if got := ls.Get(); got.Token != "" || !got.Guest {
		t.Errorf("guest should replace token, got %+v", got)
	}
	ls.Clear()
	if got := ls.Get(); got != (Credentials{}) {
		t.Errorf("expected cleared credentials, got %+v", got)
	}
}

func TestLoad_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := NewLocalStorage(path).Load(); err == nil {
		t.Error("expected decode error")
	}
}
