package state

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// fileEnvelope is the on-disk wrapper around a serialized AuthState
type fileEnvelope struct {
	Stage     Stage      `json:"stage"`
	ExpiresAt time.Time  `json:"expires_at"`
	State     *AuthState `json:"state"`
}

// FileStore persists authentication state as one JSON file per token under a
// spool directory. State survives process restarts, so a suspended flow can
// resume across a deploy boundary. Concurrent loads of the same token both
// succeed; a save writes through a temp file so no partial write is ever
// visible.
type FileStore struct {
	dir string
	ttl time.Duration

	now func() time.Time
}

// NewFileStore creates a file-backed state store rooted at dir
func NewFileStore(dir string, ttl time.Duration) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}
	return &FileStore{dir: dir, ttl: ttl, now: time.Now}, nil
}

// Save serializes st under a fresh token and writes it to disk
func (f *FileStore) Save(ctx context.Context, st *AuthState, stage Stage) (string, error) {
	token := uuid.NewString()

	data, err := json.Marshal(fileEnvelope{
		Stage:     stage,
		ExpiresAt: f.now().Add(f.ttl),
		State:     st,
	})
	if err != nil {
		return "", fmt.Errorf("failed to serialize state: %w", err)
	}

	path := f.path(token)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return "", fmt.Errorf("failed to write state: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return "", fmt.Errorf("failed to write state: %w", err)
	}
	return token, nil
}

// Load reads the state saved under token, verifying the stage tag and TTL
func (f *FileStore) Load(ctx context.Context, token string, expected Stage) (*AuthState, error) {
	// Tokens are uuids; anything else is either a forgery or a path
	// traversal attempt and is treated as unknown.
	if _, err := uuid.Parse(token); err != nil {
		return nil, &Error{Kind: KindNotFound, Token: token}
	}

	data, err := os.ReadFile(f.path(token))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &Error{Kind: KindNotFound, Token: token}
		}
		return nil, fmt.Errorf("failed to read state: %w", err)
	}

	var env fileEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to deserialize state: %w", err)
	}

	if f.now().After(env.ExpiresAt) {
		// Abandoned flows only need store-level expiry; remove eagerly
		_ = os.Remove(f.path(token))
		return nil, &Error{Kind: KindExpired, Token: token}
	}
	if env.Stage != expected {
		return nil, &Error{Kind: KindStageMismatch, Token: token}
	}
	return env.State, nil
}

// Delete removes the state saved under token
func (f *FileStore) Delete(ctx context.Context, token string) error {
	if _, err := uuid.Parse(token); err != nil {
		return nil
	}
	err := os.Remove(f.path(token))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete state: %w", err)
	}
	return nil
}

func (f *FileStore) path(token string) string {
	return filepath.Join(f.dir, token+".json")
}
