package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/indexador/sessionkit/core"
	"github.com/indexador/sessionkit/pkg/crypto"
)

// FileConfig configures the durable file store.
type FileConfig struct {
	// Path of the credential file. The parent directory must exist.
	Path string

	// Passphrase seals the file at rest. Empty disables sealing; only do
	// that for throwaway environments.
	Passphrase string
}

// File persists the credential record as a single document written with an
// atomic rename, so the three entries are never observed partially written.
// With a passphrase set, the document is sealed (argon2id + XChaCha20).
type File struct {
	path       string
	passphrase string
	mu         sync.Mutex
}

var _ core.CredentialStore = (*File)(nil)

var ErrPathRequired = errors.New("file store path is required")

func NewFile(config FileConfig) (*File, error) {
	if config.Path == "" {
		return nil, ErrPathRequired
	}
	return &File{path: config.Path, passphrase: config.Passphrase}, nil
}

func (f *File) Save(ctx context.Context, rec *core.CredentialRecord) error {
	entries, err := core.EncodeEntries(rec)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("failed to encode credential file: %w", err)
	}
	if f.passphrase != "" {
		payload, err = crypto.Seal(f.passphrase, payload)
		if err != nil {
			return fmt.Errorf("failed to seal credential file: %w", err)
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".credential-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write credential file: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to set credential file mode: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace credential file: %w", err)
	}
	return nil
}

func (f *File) Load(ctx context.Context) (*core.CredentialRecord, error) {
	f.mu.Lock()
	payload, err := os.ReadFile(f.path)
	f.mu.Unlock()
	if err != nil {
		if os.IsNotExist(err) {
			return nil, core.ErrCredentialMissing
		}
		return nil, fmt.Errorf("failed to read credential file: %w", err)
	}

	if f.passphrase != "" {
		payload, err = crypto.Open(f.passphrase, payload)
		if err != nil {
			return nil, fmt.Errorf("failed to unseal credential file: %w", err)
		}
	}

	entries := map[string]string{}
	if err := json.Unmarshal(payload, &entries); err != nil {
		return nil, fmt.Errorf("failed to decode credential file: %w", err)
	}
	return core.DecodeEntries(entries)
}

func (f *File) Clear(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove credential file: %w", err)
	}
	return nil
}
