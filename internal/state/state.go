// Package state persists the client identity and last intended consent so a
// restarted process picks up where it left off.
package state

import (
	"context"
	"fmt"
	"sync"

	"github.com/example/skinscan/internal/apiclient"
)

// Snapshot is everything the client keeps between runs.
type Snapshot struct {
	DeviceToken string             `json:"device_token,omitempty"`
	SessionID   string             `json:"session_id,omitempty"`
	AccessToken string             `json:"access_token,omitempty"`
	Consent     *apiclient.Consent `json:"consent,omitempty"`
}

// ClearSession drops the session identity but keeps the device token.
func (s *Snapshot) ClearSession() {
	s.SessionID = ""
	s.AccessToken = ""
	s.Consent = nil
}

// Store loads and atomically updates the persisted snapshot.
type Store interface {
	Load(ctx context.Context) (Snapshot, error)
	Update(ctx context.Context, fn func(*Snapshot)) error
}

// MemoryStore keeps the snapshot in process memory.
type MemoryStore struct {
	mu   sync.Mutex
	snap Snapshot
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Load returns a copy of the snapshot.
func (m *MemoryStore) Load(ctx context.Context) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return copySnapshot(m.snap), nil
}

// Update applies fn to the snapshot.
func (m *MemoryStore) Update(ctx context.Context, fn func(*Snapshot)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	next := copySnapshot(m.snap)
	fn(&next)
	m.snap = next
	return nil
}

func copySnapshot(s Snapshot) Snapshot {
	if s.Consent != nil {
		c := *s.Consent
		s.Consent = &c
	}
	return s
}

// Backend names accepted by New.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendRedis  = "redis"
)

// Options selects and configures a backend.
type Options struct {
	Backend string
	Path    string
	KV      KV
	Key     string
}

// New builds the configured store.
func New(opts Options) (Store, error) {
	switch opts.Backend {
	case BackendMemory:
		return NewMemoryStore(), nil
	case BackendFile, "":
		return NewFileStore(opts.Path), nil
	case BackendRedis:
		if opts.KV == nil {
			return nil, fmt.Errorf("state: redis backend needs a client")
		}
		return NewRedisStore(opts.KV, opts.Key), nil
	default:
		return nil, fmt.Errorf("state: unknown backend %q", opts.Backend)
	}
}
