package source

import (
	"testing"

	"github.com/davidcohan/identity-broker/internal/config"
)

func TestStringValues(t *testing.T) {
	tests := []struct {
		name  string
		claim interface{}
		want  []string
	}{
		{"json array", []interface{}{"admin", "staff"}, []string{"admin", "staff"}},
		{"string slice", []string{"admin"}, []string{"admin"}},
		{"scalar", "admin", []string{"admin"}},
		{"mixed array drops non-strings", []interface{}{"admin", 42}, []string{"admin"}},
		{"nil", nil, nil},
		{"number", 42, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := stringValues(tt.claim)
			if len(got) != len(tt.want) {
				t.Fatalf("stringValues() = %v, want %v", got, tt.want)
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Fatalf("stringValues() = %v, want %v", got, tt.want)
				}
			}
		})
	}
}

func TestNewOIDCSourceValidation(t *testing.T) {
	cfg := config.AuthSourceConfig{
		Name:   "corp-oidc",
		Type:   "oidc",
		Config: map[string]string{"issuer": "https://issuer.example.com"},
	}
	_, err := NewOIDCSource(cfg, Deps{})
	if !config.IsKind(err, config.KindMissingOption) {
		t.Errorf("NewOIDCSource() error = %v, want MissingOption", err)
	}
}
