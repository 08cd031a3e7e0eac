package store

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/indexador/sessionkit/core"
)

func sampleRecord() *core.CredentialRecord {
	return &core.CredentialRecord{
		Credential: core.Credential{
			Token:        "tok-1",
			RefreshToken: "refresh-1",
			IssuedAt:     time.Now().Truncate(time.Second),
			ExpiresAt:    time.Now().Add(time.Hour).Truncate(time.Second),
			Claims:       map[string]any{"user_id": "uid-1", "email": "ada@example.com"},
		},
		Profile: []byte(`{"displayName":"Ada"}`),
	}
}

// Requirement: the memory store round-trips records, reports a typed miss
// when empty, and counts its operations.
func TestMemory(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	if _, err := m.Load(ctx); !errors.Is(err, core.ErrCredentialMissing) {
		t.Fatalf("Load() on empty store = %v, want ErrCredentialMissing", err)
	}

	rec := sampleRecord()
	if err := m.Save(ctx, rec); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	back, err := m.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if back.Credential.Token != rec.Credential.Token {
		t.Errorf("token = %q, want %q", back.Credential.Token, rec.Credential.Token)
	}

	if err := m.Clear(ctx); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	if _, err := m.Load(ctx); !errors.Is(err, core.ErrCredentialMissing) {
		t.Errorf("Load() after clear = %v, want ErrCredentialMissing", err)
	}

	stats := m.Stats()
	if stats.Saves != 1 || stats.Clears != 1 || stats.Loads != 3 || stats.Misses != 2 {
		t.Errorf("stats = %+v, want saves=1 clears=1 loads=3 misses=2", stats)
	}
}

// Requirement: the file store persists across instances, writes with owner-only
// permissions, and clearing is idempotent.
func TestFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "credential.json")

	f, err := NewFile(FileConfig{Path: path})
	if err != nil {
		t.Fatalf("NewFile() error = %v", err)
	}

	if _, err := f.Load(ctx); !errors.Is(err, core.ErrCredentialMissing) {
		t.Fatalf("Load() before save = %v, want ErrCredentialMissing", err)
	}

	rec := sampleRecord()
	if err := f.Save(ctx, rec); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat credential file: %v", err)
	}
	if got := info.Mode().Perm(); got != 0o600 {
		t.Errorf("file mode = %o, want 600", got)
	}

	// A fresh instance sees the persisted record, as hydration would.
	again, err := NewFile(FileConfig{Path: path})
	if err != nil {
		t.Fatalf("NewFile() error = %v", err)
	}
	back, err := again.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if back.Credential.RefreshToken != rec.Credential.RefreshToken {
		t.Errorf("refresh token = %q, want %q", back.Credential.RefreshToken, rec.Credential.RefreshToken)
	}
	if string(back.Profile) != string(rec.Profile) {
		t.Errorf("profile = %s, want %s", back.Profile, rec.Profile)
	}

	if err := f.Clear(ctx); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	if err := f.Clear(ctx); err != nil {
		t.Fatalf("second Clear() error = %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("credential file should be removed")
	}
}

// Requirement: with a passphrase the file is sealed at rest, unreadable
// without the passphrase or with the wrong one.
func TestFile_Sealed(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "credential.sealed")

	f, err := NewFile(FileConfig{Path: path, Passphrase: "hunter2"})
	if err != nil {
		t.Fatalf("NewFile() error = %v", err)
	}
	rec := sampleRecord()
	if err := f.Save(ctx, rec); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sealed file: %v", err)
	}
	if bytes.Contains(raw, []byte(rec.Credential.Token)) || bytes.Contains(raw, []byte(rec.Credential.RefreshToken)) {
		t.Error("sealed file must not contain plaintext secrets")
	}

	wrong, _ := NewFile(FileConfig{Path: path, Passphrase: "wrong"})
	if _, err := wrong.Load(ctx); err == nil {
		t.Error("Load() with wrong passphrase should fail")
	}

	right, _ := NewFile(FileConfig{Path: path, Passphrase: "hunter2"})
	back, err := right.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if back.Credential.Token != rec.Credential.Token {
		t.Errorf("token = %q, want %q", back.Credential.Token, rec.Credential.Token)
	}
}

func TestNewFile_Validation(t *testing.T) {
	if _, err := NewFile(FileConfig{}); !errors.Is(err, ErrPathRequired) {
		t.Errorf("NewFile() without path = %v, want ErrPathRequired", err)
	}
}
