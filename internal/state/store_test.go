package state

import (
	"context"
	"testing"
	"time"
)

const (
	stageLogin  = Stage("core:login")
	stageResume = Stage("filters:resume")
)

func sampleState() *AuthState {
	return &AuthState{
		SourceID: "corp-ldap",
		Cursor:   2,
		Attributes: map[string][]string{
			"mail":   {"alice@example.com"},
			"groups": {"staff", "admins"},
		},
		ReturnURL:    "https://app.example.com/after",
		ExceptionURL: "https://sso.example.com/auth/error",
		Scratch:      map[string]string{"directory": "waiting"},
	}
}

// stores lets every conformance test run against both backends
func stores(t *testing.T, ttl time.Duration) map[string]Store {
	t.Helper()
	fs, err := NewFileStore(t.TempDir(), ttl)
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}
	return map[string]Store{
		"memory": NewMemoryStore(ttl),
		"file":   fs,
	}
}

func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()

	for name, store := range stores(t, time.Minute) {
		t.Run(name, func(t *testing.T) {
			original := sampleState()
			token, err := store.Save(ctx, original, stageLogin)
			if err != nil {
				t.Fatalf("Save() error = %v", err)
			}
			if token == "" {
				t.Fatal("Save() returned empty token")
			}

			loaded, err := store.Load(ctx, token, stageLogin)
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}

			if loaded.SourceID != original.SourceID {
				t.Errorf("SourceID = %s, want %s", loaded.SourceID, original.SourceID)
			}
			if loaded.Cursor != original.Cursor {
				t.Errorf("Cursor = %d, want %d", loaded.Cursor, original.Cursor)
			}
			if got := loaded.Attributes["groups"]; len(got) != 2 || got[0] != "staff" || got[1] != "admins" {
				t.Errorf("groups = %v, want [staff admins] in order", got)
			}
			if loaded.Scratch["directory"] != "waiting" {
				t.Errorf("Scratch = %v, want directory=waiting", loaded.Scratch)
			}

			// Loads are idempotent reads
			if _, err := store.Load(ctx, token, stageLogin); err != nil {
				t.Errorf("second Load() error = %v", err)
			}
		})
	}
}

func TestStoreStageMismatch(t *testing.T) {
	ctx := context.Background()

	for name, store := range stores(t, time.Minute) {
		t.Run(name, func(t *testing.T) {
			token, err := store.Save(ctx, sampleState(), stageLogin)
			if err != nil {
				t.Fatalf("Save() error = %v", err)
			}

			_, err = store.Load(ctx, token, stageResume)
			if !IsKind(err, KindStageMismatch) {
				t.Errorf("Load() wrong stage error = %v, want StageMismatch", err)
			}

			// The right stage still works afterwards
			if _, err := store.Load(ctx, token, stageLogin); err != nil {
				t.Errorf("Load() correct stage error = %v", err)
			}
		})
	}
}

func TestStoreNotFound(t *testing.T) {
	ctx := context.Background()

	for name, store := range stores(t, time.Minute) {
		t.Run(name, func(t *testing.T) {
			_, err := store.Load(ctx, "7d168a2f-4a83-4b4f-9d3e-000000000000", stageLogin)
			if !IsKind(err, KindNotFound) {
				t.Errorf("Load() unknown token error = %v, want NotFound", err)
			}
		})
	}
}

func TestStoreDelete(t *testing.T) {
	ctx := context.Background()

	for name, store := range stores(t, time.Minute) {
		t.Run(name, func(t *testing.T) {
			token, err := store.Save(ctx, sampleState(), stageLogin)
			if err != nil {
				t.Fatalf("Save() error = %v", err)
			}

			if err := store.Delete(ctx, token); err != nil {
				t.Fatalf("Delete() error = %v", err)
			}
			if _, err := store.Load(ctx, token, stageLogin); !IsKind(err, KindNotFound) {
				t.Errorf("Load() after delete error = %v, want NotFound", err)
			}

			// Deleting twice is fine
			if err := store.Delete(ctx, token); err != nil {
				t.Errorf("second Delete() error = %v", err)
			}
		})
	}
}

func TestMemoryStoreExpiry(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(time.Minute)

	base := time.Now()
	store.now = func() time.Time { return base }

	token, err := store.Save(ctx, sampleState(), stageLogin)
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	store.now = func() time.Time { return base.Add(2 * time.Minute) }

	_, err = store.Load(ctx, token, stageLogin)
	if !IsKind(err, KindExpired) {
		t.Errorf("Load() past TTL error = %v, want Expired", err)
	}
}

func TestFileStoreExpiry(t *testing.T) {
	ctx := context.Background()
	store, err := NewFileStore(t.TempDir(), time.Minute)
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}

	base := time.Now()
	store.now = func() time.Time { return base }

	token, err := store.Save(ctx, sampleState(), stageLogin)
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	store.now = func() time.Time { return base.Add(2 * time.Minute) }

	_, err = store.Load(ctx, token, stageLogin)
	if !IsKind(err, KindExpired) {
		t.Errorf("Load() past TTL error = %v, want Expired", err)
	}

	// Expired entries are removed eagerly; a later load sees NotFound
	store.now = func() time.Time { return base }
	_, err = store.Load(ctx, token, stageLogin)
	if !IsKind(err, KindNotFound) {
		t.Errorf("Load() after eager removal error = %v, want NotFound", err)
	}
}

func TestFileStoreRejectsNonTokenNames(t *testing.T) {
	ctx := context.Background()
	store, err := NewFileStore(t.TempDir(), time.Minute)
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}

	for _, token := range []string{"../../etc/passwd", "not-a-uuid", ""} {
		if _, err := store.Load(ctx, token, stageLogin); !IsKind(err, KindNotFound) {
			t.Errorf("Load(%q) error = %v, want NotFound", token, err)
		}
		if err := store.Delete(ctx, token); err != nil {
			t.Errorf("Delete(%q) error = %v, want nil", token, err)
		}
	}
}

func TestClone(t *testing.T) {
	original := sampleState()
	original.Exception = &FlowException{Code: "AuthnFailed", Message: "upstream said no"}
	original.Logout = &LogoutReplay{Issuer: "https://idp.example.com", NameID: "alice"}

	clone := Clone(original)

	clone.Attributes["groups"][0] = "changed"
	clone.Scratch["directory"] = "changed"
	clone.Exception.Code = "changed"
	clone.Logout.NameID = "changed"

	if original.Attributes["groups"][0] != "staff" {
		t.Error("Clone() shares attribute value slices")
	}
	if original.Scratch["directory"] != "waiting" {
		t.Error("Clone() shares scratch map")
	}
	if original.Exception.Code != "AuthnFailed" {
		t.Error("Clone() shares exception")
	}
	if original.Logout.NameID != "alice" {
		t.Error("Clone() shares logout replay")
	}

	if Clone(nil) != nil {
		t.Error("Clone(nil) should be nil")
	}
}
