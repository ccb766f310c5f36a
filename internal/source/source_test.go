package source

import (
	"testing"

	"github.com/davidcohan/identity-broker/internal/config"
)

func TestNewRegistry(t *testing.T) {
	cfg := &config.Config{
		Sources: []config.AuthSourceConfig{
			{
				Name:    "local",
				Type:    "password",
				Enabled: true,
				Users:   []config.User{{Username: "alice", Password: "x"}},
			},
			{
				Name:    "disabled-source",
				Type:    "password",
				Enabled: false,
				Users:   []config.User{{Username: "bob", Password: "y"}},
			},
			{
				Name:    "weird",
				Type:    "carrier-pigeon",
				Enabled: true,
			},
			{
				// Initialization failure: no users configured
				Name:    "empty",
				Type:    "password",
				Enabled: true,
			},
		},
	}

	registry := NewRegistry(testDeps(t, cfg))

	if _, err := registry.Lookup("local"); err != nil {
		t.Errorf("Lookup(local) error = %v", err)
	}

	// Disabled, unknown-type and failed sources are skipped, not fatal
	for _, name := range []string{"disabled-source", "weird", "empty"} {
		if _, err := registry.Lookup(name); !config.IsKind(err, config.KindMissingAuthsource) {
			t.Errorf("Lookup(%s) error = %v, want MissingAuthsource", name, err)
		}
	}
}

func TestLookupTyped(t *testing.T) {
	cfg := &config.Config{
		Sources: []config.AuthSourceConfig{{
			Name:    "local",
			Type:    "password",
			Enabled: true,
			Users:   []config.User{{Username: "alice", Password: "x"}},
		}},
	}
	registry := NewRegistry(testDeps(t, cfg))

	if _, err := registry.LookupTyped("local", "password"); err != nil {
		t.Errorf("LookupTyped(local, password) error = %v", err)
	}
	if _, err := registry.LookupTyped("local", "saml"); !config.IsKind(err, config.KindWrongAuthsourceType) {
		t.Errorf("LookupTyped(local, saml) error = %v, want WrongAuthsourceType", err)
	}
	if _, err := registry.LookupTyped("ghost", "saml"); !config.IsKind(err, config.KindMissingAuthsource) {
		t.Errorf("LookupTyped(ghost, saml) error = %v, want MissingAuthsource", err)
	}
}
