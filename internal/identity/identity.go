// Package identity persists the stable per-profile client id the
// authority uses to deduplicate sessions. The id is immutable for the
// profile's lifetime; the transport-assigned socket id is not ours to
// store.
package identity

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
)

// Identity is what survives restarts.
type Identity struct {
	ClientID   string `json:"client_id"`
	PlayerName string `json:"player_name,omitempty"`
}

// Store is a scoped key-value persistence surface.
type Store interface {
	Load() (Identity, error)
	Save(Identity) error
}

// Ensure loads the stored identity, minting a client id on first use.
func Ensure(s Store) (Identity, error) {
	id, err := s.Load()
	if err != nil {
		return Identity{}, err
	}
	if id.ClientID != "" {
		return id, nil
	}
	id.ClientID = uuid.NewString()
	if err := s.Save(id); err != nil {
		return Identity{}, err
	}
	return id, nil
}

// FileStore keeps the identity as a small JSON file.
type FileStore struct {
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (f *FileStore) Load() (Identity, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return Identity{}, nil
	}
	if err != nil {
		return Identity{}, fmt.Errorf("read identity: %w", err)
	}
	var id Identity
	if err := json.Unmarshal(data, &id); err != nil {
		// A corrupt file is recoverable: mint a fresh identity.
		return Identity{}, nil
	}
	return id, nil
}

func (f *FileStore) Save(id Identity) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return fmt.Errorf("identity dir: %w", err)
	}
	data, err := json.MarshalIndent(id, "", "  ")
	if err != nil {
		return fmt.Errorf("encode identity: %w", err)
	}
	if err := os.WriteFile(f.path, data, 0o600); err != nil {
		return fmt.Errorf("write identity: %w", err)
	}
	return nil
}

// MemoryStore is the ephemeral variant, mirroring a cleared browser
// session.
type MemoryStore struct {
	mu sync.Mutex
	id Identity
}

func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

func (m *MemoryStore) Load() (Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.id, nil
}

func (m *MemoryStore) Save(id Identity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.id = id
	return nil
}
