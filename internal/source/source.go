// Package source implements the pluggable authentication backends. A source
// begins a flow, authenticates the user by its own means, runs the owning
// pipeline over the resulting attributes, and finalizes the session once the
// pipeline completes.
package source

import (
	"context"
	"log"

	"github.com/davidcohan/identity-broker/internal/config"
	"github.com/davidcohan/identity-broker/internal/pipeline"
	"github.com/davidcohan/identity-broker/internal/saml"
	"github.com/davidcohan/identity-broker/internal/state"
)

// Stages for the resumption points sources save state under
const (
	// StageLogin tags state awaiting a login form submission
	StageLogin = state.Stage("core:login")
	// StageSPSent tags state awaiting the identity provider's response
	StageSPSent = state.Stage("saml:sp-sent")
	// StageOIDCSent tags state awaiting the authorization code callback
	StageOIDCSent = state.Stage("oidc:sent")
)

// Identity is the finalized result of a completed flow
type Identity struct {
	Username   string
	Source     string
	Attributes map[string][]string
}

// BeginResult is the outcome of starting a flow: where to send the browser
type BeginResult struct {
	RedirectURL string
}

// Source is the contract every authentication backend implements. The
// method-specific credential handlers (login form, assertion consumer,
// code callback) live on the concrete types; the HTTP layer dispatches to
// them by source type.
type Source interface {
	Name() string
	Type() string

	// BeginAuth starts a flow and returns the redirect that continues it.
	// State is saved under a stage owned by the source before control
	// leaves the process.
	BeginAuth(ctx context.Context, returnTo string) (*BeginResult, error)

	// Finalize turns a completed pipeline context into the identity handed
	// to the relying application. Called exactly once per flow, after the
	// pipeline reports completion.
	Finalize(ctx context.Context, pc *pipeline.Context) (*Identity, error)
}

// Deps carries the collaborators a source needs
type Deps struct {
	Config   *config.Config
	Store    state.Store
	Runner   *pipeline.Runner
	Metadata saml.MetadataResolver
	BaseURL  string
}

// Registry holds the configured, initialized sources
type Registry struct {
	sources map[string]Source
}

// NewRegistry initializes every enabled source from configuration. An
// individual source failing to initialize is logged and skipped so one
// unreachable provider does not take the broker down.
func NewRegistry(deps Deps) *Registry {
	r := &Registry{sources: make(map[string]Source)}

	for _, srcCfg := range deps.Config.Sources {
		if !srcCfg.Enabled {
			continue
		}

		var src Source
		var err error

		switch srcCfg.Type {
		case "password":
			src, err = NewPasswordSource(srcCfg, deps)
		case "ldap":
			src, err = NewLDAPSource(srcCfg, deps)
		case "saml":
			src, err = NewSAMLSource(srcCfg, deps)
		case "oidc":
			src, err = NewOIDCSource(srcCfg, deps)
		default:
			log.Printf("⚠️  Warning: unknown source type %q (name: %s) - skipping", srcCfg.Type, srcCfg.Name)
			continue
		}

		if err != nil {
			log.Printf("⚠️  Warning: failed to initialize %s source %q: %v - skipping", srcCfg.Type, srcCfg.Name, err)
			continue
		}

		r.sources[srcCfg.Name] = src
		log.Printf("✅ Initialized %s source: %s", srcCfg.Type, srcCfg.Name)
	}

	if len(r.sources) == 0 {
		log.Println("⚠️  Warning: no authentication sources successfully initialized")
	}

	return r
}

// Lookup returns the source configured under name
func (r *Registry) Lookup(name string) (Source, error) {
	src, ok := r.sources[name]
	if !ok {
		return nil, &config.Error{Kind: config.KindMissingAuthsource, Subject: name}
	}
	return src, nil
}

// LookupTyped returns the source under name, verifying its type
func (r *Registry) LookupTyped(name, sourceType string) (Source, error) {
	src, err := r.Lookup(name)
	if err != nil {
		return nil, err
	}
	if src.Type() != sourceType {
		return nil, &config.Error{Kind: config.KindWrongAuthsourceType, Subject: name, Detail: src.Type()}
	}
	return src, nil
}

// newFlowState builds the initial state for a source's flow, registering the
// return and exception continuations up front.
func newFlowState(sourceID, returnTo, baseURL string) *state.AuthState {
	return &state.AuthState{
		SourceID:     sourceID,
		ReturnURL:    returnTo,
		ExceptionURL: baseURL + "/auth/error",
	}
}
