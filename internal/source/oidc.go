package source

import (
	"context"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/davidcohan/identity-broker/internal/config"
	"github.com/davidcohan/identity-broker/internal/pipeline"
	"github.com/davidcohan/identity-broker/internal/state"
)

// OIDCSource authenticates through an OpenID Connect provider using the
// authorization code flow. The state token doubles as the OAuth2 state
// parameter, so the callback resumes the exact flow that began it.
type OIDCSource struct {
	name          string
	oauth2Config  oauth2.Config
	verifier      *oidc.IDTokenVerifier
	usernameClaim string
	rolesClaim    string
	deps          Deps
}

// NewOIDCSource creates an OIDC source. Provider discovery happens here, so
// an unreachable issuer fails initialization rather than the first login.
func NewOIDCSource(cfg config.AuthSourceConfig, deps Deps) (*OIDCSource, error) {
	if err := config.RequireOptions(cfg.Config, "issuer", "client_id", "client_secret"); err != nil {
		return nil, err
	}

	provider, err := oidc.NewProvider(context.Background(), cfg.Config["issuer"])
	if err != nil {
		return nil, fmt.Errorf("failed to discover OIDC provider: %w", err)
	}

	redirectURL := cfg.Config["redirect_url"]
	if redirectURL == "" {
		redirectURL = deps.BaseURL + "/auth/oidc/" + cfg.Name + "/callback"
	}

	s := &OIDCSource{
		name: cfg.Name,
		oauth2Config: oauth2.Config{
			ClientID:     cfg.Config["client_id"],
			ClientSecret: cfg.Config["client_secret"],
			RedirectURL:  redirectURL,
			Endpoint:     provider.Endpoint(),
			Scopes:       []string{oidc.ScopeOpenID, "profile", "email"},
		},
		verifier:      provider.Verifier(&oidc.Config{ClientID: cfg.Config["client_id"]}),
		usernameClaim: cfg.Config["username_claim"],
		rolesClaim:    cfg.Config["roles_claim"],
		deps:          deps,
	}
	if s.usernameClaim == "" {
		s.usernameClaim = "preferred_username"
	}
	if s.rolesClaim == "" {
		s.rolesClaim = "roles"
	}

	return s, nil
}

// Name returns the source name
func (s *OIDCSource) Name() string { return s.name }

// Type returns the source type
func (s *OIDCSource) Type() string { return "oidc" }

// BeginAuth saves flow state and redirects to the authorization endpoint
func (s *OIDCSource) BeginAuth(ctx context.Context, returnTo string) (*BeginResult, error) {
	st := newFlowState(s.name, returnTo, s.deps.BaseURL)
	token, err := s.deps.Store.Save(ctx, st, StageOIDCSent)
	if err != nil {
		return nil, fmt.Errorf("failed to save flow state: %w", err)
	}
	return &BeginResult{RedirectURL: s.oauth2Config.AuthCodeURL(token)}, nil
}

// HandleCallback exchanges the authorization code, verifies the ID token,
// and drives the pipeline over the extracted claims.
func (s *OIDCSource) HandleCallback(ctx context.Context, token, code string) (*pipeline.Outcome, *state.AuthState, error) {
	st, err := s.deps.Store.Load(ctx, token, StageOIDCSent)
	if err != nil {
		return nil, nil, err
	}

	oauth2Token, err := s.oauth2Config.Exchange(ctx, code)
	if err != nil {
		return nil, st, fmt.Errorf("failed to exchange code: %w", err)
	}

	rawIDToken, _ := oauth2Token.Extra("id_token").(string)
	if rawIDToken == "" {
		return nil, st, fmt.Errorf("no id_token in token response")
	}

	idToken, err := s.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, st, fmt.Errorf("failed to verify ID token: %w", err)
	}

	var claims map[string]interface{}
	if err := idToken.Claims(&claims); err != nil {
		return nil, st, fmt.Errorf("failed to parse claims: %w", err)
	}

	username, _ := claims[s.usernameClaim].(string)
	if username == "" {
		username, _ = claims["sub"].(string)
	}

	pc := pipeline.FromState(st)
	pc.Identity = username
	pc.Attributes["username"] = []string{username}
	if email, _ := claims["email"].(string); email != "" {
		pc.Attributes["email"] = []string{email}
	}
	if roles := stringValues(claims[s.rolesClaim]); len(roles) > 0 {
		pc.Attributes["roles"] = roles
	}

	out, err := s.deps.Runner.Run(ctx, pc, st)
	if err != nil {
		return nil, st, err
	}
	return out, st, nil
}

// Finalize builds the session identity from the completed context
func (s *OIDCSource) Finalize(ctx context.Context, pc *pipeline.Context) (*Identity, error) {
	return &Identity{
		Username:   pc.Identity,
		Source:     s.name,
		Attributes: pc.Attributes,
	}, nil
}

// stringValues flattens a claim that may be a string or a list of strings
func stringValues(claim interface{}) []string {
	switch v := claim.(type) {
	case []interface{}:
		var out []string
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case []string:
		return v
	case string:
		return []string{v}
	}
	return nil
}
