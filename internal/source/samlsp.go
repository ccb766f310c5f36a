package source

import (
	"context"
	"fmt"
	"strings"

	"github.com/davidcohan/identity-broker/internal/config"
	"github.com/davidcohan/identity-broker/internal/pipeline"
	"github.com/davidcohan/identity-broker/internal/saml"
	"github.com/davidcohan/identity-broker/internal/state"
)

// SAMLSource is the federated service-provider source: it redirects the
// browser to an external identity provider and later consumes the response
// through the SAML response processor.
type SAMLSource struct {
	name        string
	spEntityID  string
	acsURL      string
	idpEntityID string
	trusted     []string
	processor   *saml.Processor
	deps        Deps
}

// NewSAMLSource creates a SAML service-provider source
func NewSAMLSource(cfg config.AuthSourceConfig, deps Deps) (*SAMLSource, error) {
	if err := config.RequireOptions(cfg.Config, "sp_entity_id", "idp_entity_id"); err != nil {
		return nil, err
	}

	s := &SAMLSource{
		name:        cfg.Name,
		spEntityID:  cfg.Config["sp_entity_id"],
		acsURL:      cfg.Config["acs_url"],
		idpEntityID: cfg.Config["idp_entity_id"],
		processor:   saml.NewProcessor(deps.Metadata),
		deps:        deps,
	}
	if s.acsURL == "" {
		s.acsURL = deps.BaseURL + "/auth/saml/" + s.name + "/acs"
	}

	// The allow-list defaults to the configured IdP; additional trusted
	// issuers may be listed explicitly.
	s.trusted = []string{s.idpEntityID}
	for _, issuer := range strings.Split(cfg.Config["trusted_issuers"], ",") {
		if issuer = strings.TrimSpace(issuer); issuer != "" && issuer != s.idpEntityID {
			s.trusted = append(s.trusted, issuer)
		}
	}

	return s, nil
}

// Name returns the source name
func (s *SAMLSource) Name() string { return s.name }

// Type returns the source type
func (s *SAMLSource) Type() string { return "saml" }

// BeginAuth saves flow state under the sp-sent stage and redirects to the
// identity provider with the state token as RelayState.
func (s *SAMLSource) BeginAuth(ctx context.Context, returnTo string) (*BeginResult, error) {
	st := newFlowState(s.name, returnTo, s.deps.BaseURL)
	token, err := s.deps.Store.Save(ctx, st, StageSPSent)
	if err != nil {
		return nil, fmt.Errorf("failed to save flow state: %w", err)
	}

	idp, err := s.deps.Metadata.Resolve(saml.SetRemoteIdP, s.idpEntityID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve identity provider: %w", err)
	}

	redirectURL, err := saml.BuildRedirectRequest(idp, s.spEntityID, s.acsURL, token)
	if err != nil {
		return nil, err
	}
	return &BeginResult{RedirectURL: redirectURL}, nil
}

// HandleResponse consumes the inbound response at the assertion consumer
// endpoint. The token must load under the same stage BeginAuth saved it
// with; anything else is a replayed or confused flow and fails before any
// message content is trusted.
func (s *SAMLSource) HandleResponse(ctx context.Context, token string, rawResponse []byte) (*pipeline.Outcome, *state.AuthState, error) {
	st, err := s.deps.Store.Load(ctx, token, StageSPSent)
	if err != nil {
		return nil, nil, err
	}

	info, err := s.processor.Process(rawResponse, saml.ServiceDescriptor{
		EntityID:       s.spEntityID,
		MetadataSet:    saml.SetRemoteIdP,
		TrustedIssuers: s.trusted,
	})
	if err != nil {
		return nil, st, err
	}

	// Keep what a later logout needs to address the upstream session
	st.Logout = &state.LogoutReplay{
		Issuer:       info.Issuer,
		NameID:       info.NameID,
		SessionIndex: info.SessionIndex,
	}

	pc := pipeline.FromState(st)
	pc.Identity = info.NameID
	for name, values := range info.Attributes {
		pc.Attributes[name] = append([]string(nil), values...)
	}

	out, err := s.deps.Runner.Run(ctx, pc, st)
	if err != nil {
		return nil, st, err
	}
	return out, st, nil
}

// Finalize builds the session identity from the completed context
func (s *SAMLSource) Finalize(ctx context.Context, pc *pipeline.Context) (*Identity, error) {
	if pc.Identity == "" {
		return nil, fmt.Errorf("completed flow carries no identity")
	}
	return &Identity{
		Username:   pc.Identity,
		Source:     s.name,
		Attributes: pc.Attributes,
	}, nil
}
