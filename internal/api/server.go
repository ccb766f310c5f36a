package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/davidcohan/identity-broker/internal/audit"
	"github.com/davidcohan/identity-broker/internal/config"
	"github.com/davidcohan/identity-broker/internal/directory"
	"github.com/davidcohan/identity-broker/internal/pipeline"
	"github.com/davidcohan/identity-broker/internal/saml"
	"github.com/davidcohan/identity-broker/internal/source"
	"github.com/davidcohan/identity-broker/internal/state"
)

// Server is the HTTP face of the broker: it owns the routing and transport
// concerns and hands everything else to the sources, the pipeline runner,
// and the state store.
type Server struct {
	config     *config.Config
	router     *mux.Router
	httpServer *http.Server
	store      state.Store
	sources    *source.Registry
	runner     *pipeline.Runner
	sessions   *SessionService
	audit      *audit.Logger
}

// NewServer wires the broker together from configuration
func NewServer(cfg *config.Config) (*Server, error) {
	store, err := newStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create state store: %w", err)
	}

	metadata, err := buildMetadata(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load trust material: %w", err)
	}

	registry := pipeline.NewRegistry()
	pipeline.RegisterBuiltins(registry)
	registry.Register("directory", func(options map[string]string) (pipeline.Filter, error) {
		return directory.New(options, cfg)
	})

	runner := &pipeline.Runner{
		Store:    store,
		Registry: registry,
		Specs: func(sourceID string) ([]config.FilterSpec, error) {
			src, err := cfg.Source(sourceID)
			if err != nil {
				return nil, err
			}
			return src.Filters, nil
		},
	}

	s := &Server{
		config: cfg,
		router: mux.NewRouter(),
		store:  store,
		sources: source.NewRegistry(source.Deps{
			Config:   cfg,
			Store:    store,
			Runner:   runner,
			Metadata: metadata,
			BaseURL:  cfg.Server.BaseURL,
		}),
		runner:   runner,
		sessions: NewSessionService(cfg.Session),
		audit:    audit.NewLogger(cfg.Logging.AuditLogPath),
	}

	s.setupRoutes()
	return s, nil
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	// Flow endpoints (public): every multi-step flow re-enters through one
	// of these with its opaque state token
	s.router.HandleFunc("/auth/start", s.handleBeginAuth).Methods("GET")
	s.router.HandleFunc("/auth/login", s.handleLoginForm).Methods("GET")
	s.router.HandleFunc("/auth/login", s.handleLogin).Methods("POST")
	s.router.HandleFunc("/auth/saml/{source}/acs", s.handleSAMLResponse).Methods("POST")
	s.router.HandleFunc("/auth/oidc/{source}/callback", s.handleOIDCCallback).Methods("GET")
	s.router.HandleFunc("/auth/resume", s.handleResume).Methods("GET")
	s.router.HandleFunc("/auth/error", s.handleFlowError).Methods("GET")

	s.router.HandleFunc("/api/health", s.handleHealth).Methods("GET")

	// Protected routes (require a session token)
	api := s.router.PathPrefix("/api").Subrouter()
	api.Use(s.authMiddleware)
	api.HandleFunc("/session", s.handleSession).Methods("GET")
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Server.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = s.audit.Close()
	return s.httpServer.Shutdown(ctx)
}

// handleHealth returns server health status
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// newStore builds the configured state store backend
func newStore(cfg *config.Config) (state.Store, error) {
	switch cfg.State.Type {
	case "memory":
		return state.NewMemoryStore(cfg.State.TTL), nil
	case "file", "":
		return state.NewFileStore(cfg.State.Path, cfg.State.TTL)
	default:
		return nil, fmt.Errorf("unknown state store type %q", cfg.State.Type)
	}
}

// buildMetadata registers the trust material named by the SAML source
// configurations. Metadata file parsing stays outside the core; sources
// point at PEM certificates and endpoint URLs directly.
func buildMetadata(cfg *config.Config) (saml.MetadataResolver, error) {
	resolver := saml.NewStaticResolver()

	for _, srcCfg := range cfg.Sources {
		if srcCfg.Type != "saml" || !srcCfg.Enabled {
			continue
		}

		tm := &saml.TrustMaterial{
			EntityID: srcCfg.Config["idp_entity_id"],
			SSOURL:   srcCfg.Config["idp_sso_url"],
			SLOURL:   srcCfg.Config["idp_slo_url"],
		}
		if certPath := srcCfg.Config["idp_certificate"]; certPath != "" {
			certs, err := saml.LoadCertificate(certPath)
			if err != nil {
				return nil, fmt.Errorf("source %q: %w", srcCfg.Name, err)
			}
			tm.Certificates = certs
		}
		resolver.Register(saml.SetRemoteIdP, tm)
	}

	return resolver, nil
}
