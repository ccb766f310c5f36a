package source

import (
	"context"
	"crypto/subtle"
	"fmt"

	"github.com/davidcohan/identity-broker/internal/config"
	"github.com/davidcohan/identity-broker/internal/pipeline"
	"github.com/davidcohan/identity-broker/internal/state"
)

// PasswordSource authenticates against the user list in its own
// configuration. Credential checks are synchronous; failures surface as
// login codes from the catalog, never as raw errors.
type PasswordSource struct {
	name  string
	users []config.User
	deps  Deps
}

// NewPasswordSource creates a password source
func NewPasswordSource(cfg config.AuthSourceConfig, deps Deps) (*PasswordSource, error) {
	if len(cfg.Users) == 0 {
		return nil, fmt.Errorf("password source %q has no users configured", cfg.Name)
	}
	return &PasswordSource{name: cfg.Name, users: cfg.Users, deps: deps}, nil
}

// Name returns the source name
func (s *PasswordSource) Name() string { return s.name }

// Type returns the source type
func (s *PasswordSource) Type() string { return "password" }

// BeginAuth saves fresh flow state and redirects to the login form
func (s *PasswordSource) BeginAuth(ctx context.Context, returnTo string) (*BeginResult, error) {
	st := newFlowState(s.name, returnTo, s.deps.BaseURL)
	token, err := s.deps.Store.Save(ctx, st, StageLogin)
	if err != nil {
		return nil, fmt.Errorf("failed to save flow state: %w", err)
	}
	loginURL := state.AppendToken(s.deps.BaseURL+"/auth/login", token)
	return &BeginResult{RedirectURL: loginURL + "&source=" + s.name}, nil
}

// HandleLogin validates a login form submission against the configured
// users and, on success, drives the pipeline. A wrong password yields a
// LoginError carrying the entered username so the re-rendered form can
// retain it.
func (s *PasswordSource) HandleLogin(ctx context.Context, token, username, password string) (*pipeline.Outcome, *state.AuthState, error) {
	st, err := s.deps.Store.Load(ctx, token, StageLogin)
	if err != nil {
		return nil, nil, err
	}

	user, ok := s.checkCredentials(username, password)
	if !ok {
		return nil, st, &LoginError{
			Code:   CodeInvalidCredentials,
			Params: map[string]string{"username": username},
		}
	}

	pc := pipeline.FromState(st)
	pc.Identity = user.Username
	pc.Attributes["username"] = []string{user.Username}
	if user.Email != "" {
		pc.Attributes["email"] = []string{user.Email}
	}
	if len(user.Roles) > 0 {
		pc.Attributes["roles"] = append([]string(nil), user.Roles...)
	}

	out, err := s.deps.Runner.Run(ctx, pc, st)
	if err != nil {
		return nil, st, err
	}
	return out, st, nil
}

// Finalize builds the session identity from the completed context
func (s *PasswordSource) Finalize(ctx context.Context, pc *pipeline.Context) (*Identity, error) {
	return &Identity{
		Username:   pc.Identity,
		Source:     s.name,
		Attributes: pc.Attributes,
	}, nil
}

// checkCredentials compares in constant time regardless of which user, if
// any, matched. Unknown users and wrong passwords are indistinguishable to
// the caller.
func (s *PasswordSource) checkCredentials(username, password string) (*config.User, bool) {
	var found *config.User
	for i := range s.users {
		u := &s.users[i]
		nameOK := subtle.ConstantTimeCompare([]byte(u.Username), []byte(username)) == 1
		passOK := subtle.ConstantTimeCompare([]byte(u.Password), []byte(password)) == 1
		if nameOK && passOK {
			found = u
		}
	}
	return found, found != nil
}
