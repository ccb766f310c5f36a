package state

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memoryEntry struct {
	stage     Stage
	data      []byte
	expiresAt time.Time
}

// MemoryStore keeps authentication state in process memory. Suspension
// cannot survive a restart with it, so it is meant for tests and single
// instance development setups; deployments use the file store.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	ttl     time.Duration

	now func() time.Time
}

// NewMemoryStore creates an in-memory state store with the given TTL
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Save stores a serialized snapshot of st under a fresh token
func (m *MemoryStore) Save(ctx context.Context, st *AuthState, stage Stage) (string, error) {
	data, err := json.Marshal(st)
	if err != nil {
		return "", fmt.Errorf("failed to serialize state: %w", err)
	}

	token := uuid.NewString()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[token] = memoryEntry{
		stage:     stage,
		data:      data,
		expiresAt: m.now().Add(m.ttl),
	}
	return token, nil
}

// Load retrieves the state saved under token, verifying the stage tag
func (m *MemoryStore) Load(ctx context.Context, token string, expected Stage) (*AuthState, error) {
	m.mu.RLock()
	entry, ok := m.entries[token]
	m.mu.RUnlock()

	if !ok {
		return nil, &Error{Kind: KindNotFound, Token: token}
	}
	if m.now().After(entry.expiresAt) {
		return nil, &Error{Kind: KindExpired, Token: token}
	}
	if entry.stage != expected {
		return nil, &Error{Kind: KindStageMismatch, Token: token}
	}

	var st AuthState
	if err := json.Unmarshal(entry.data, &st); err != nil {
		return nil, fmt.Errorf("failed to deserialize state: %w", err)
	}
	return &st, nil
}

// Delete removes the state saved under token. Deleting an unknown token is
// not an error.
func (m *MemoryStore) Delete(ctx context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, token)
	return nil
}
