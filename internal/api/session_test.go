package api

import (
	"strings"
	"testing"
	"time"

	"github.com/davidcohan/identity-broker/internal/config"
	"github.com/davidcohan/identity-broker/internal/source"
)

func testIdentity() *source.Identity {
	return &source.Identity{
		Username:   "alice",
		Source:     "local",
		Attributes: map[string][]string{"roles": {"admin", "staff"}},
	}
}

func TestSessionRoundTrip(t *testing.T) {
	svc := NewSessionService(config.SessionConfig{JWTSecret: "secret", TokenExpiry: time.Hour})

	token, expiresAt, err := svc.GenerateToken(testIdentity())
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}
	if time.Until(expiresAt) < 59*time.Minute {
		t.Errorf("expiresAt = %v, want about an hour out", expiresAt)
	}

	claims, err := svc.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken() error = %v", err)
	}
	if claims.Username != "alice" || claims.Source != "local" {
		t.Errorf("claims = %s/%s", claims.Username, claims.Source)
	}
	if got := claims.Attributes["roles"]; len(got) != 2 || got[0] != "admin" || got[1] != "staff" {
		t.Errorf("roles = %v, want ordered [admin staff]", got)
	}
}

func TestSessionExpiredToken(t *testing.T) {
	svc := NewSessionService(config.SessionConfig{JWTSecret: "secret", TokenExpiry: -time.Minute})

	token, _, err := svc.GenerateToken(testIdentity())
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}
	if _, err := svc.ValidateToken(token); err == nil {
		t.Error("ValidateToken() on expired token should fail")
	}
}

func TestSessionWrongSecret(t *testing.T) {
	svc := NewSessionService(config.SessionConfig{JWTSecret: "secret", TokenExpiry: time.Hour})
	other := NewSessionService(config.SessionConfig{JWTSecret: "different", TokenExpiry: time.Hour})

	token, _, err := svc.GenerateToken(testIdentity())
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}
	if _, err := other.ValidateToken(token); err == nil {
		t.Error("ValidateToken() with the wrong secret should fail")
	}
}

func TestSessionTamperedToken(t *testing.T) {
	svc := NewSessionService(config.SessionConfig{JWTSecret: "secret", TokenExpiry: time.Hour})

	token, _, err := svc.GenerateToken(testIdentity())
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}

	parts := strings.Split(token, ".")
	tampered := parts[0] + "." + parts[1] + "x." + parts[2]
	if _, err := svc.ValidateToken(tampered); err == nil {
		t.Error("ValidateToken() on tampered token should fail")
	}
}
