package source

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/go-ldap/ldap/v3"

	"github.com/davidcohan/identity-broker/internal/config"
	"github.com/davidcohan/identity-broker/internal/pipeline"
	"github.com/davidcohan/identity-broker/internal/state"
)

// LDAPSource authenticates a login form submission by binding to a
// directory as the user. Its connection settings double as the base layer
// the directory filter inherits when it references this source by name.
type LDAPSource struct {
	name         string
	servers      []string
	bindDN       string
	bindPassword string
	userBaseDN   string
	userFilter   string
	groupBaseDN  string
	groupFilter  string
	timeout      time.Duration
	useTLS       bool
	skipVerify   bool
	deps         Deps
}

// NewLDAPSource creates an LDAP source from its configuration
func NewLDAPSource(cfg config.AuthSourceConfig, deps Deps) (*LDAPSource, error) {
	if err := config.RequireOptions(cfg.Config, "servers", "bind_dn", "bind_password", "user_base_dn"); err != nil {
		return nil, err
	}

	s := &LDAPSource{
		name:         cfg.Name,
		bindDN:       cfg.Config["bind_dn"],
		bindPassword: cfg.Config["bind_password"],
		userBaseDN:   cfg.Config["user_base_dn"],
		userFilter:   cfg.Config["user_filter"],
		groupBaseDN:  cfg.Config["group_base_dn"],
		groupFilter:  cfg.Config["group_filter"],
		timeout:      10 * time.Second,
		useTLS:       cfg.Config["use_tls"] == "true",
		skipVerify:   cfg.Config["skip_tls_verify"] == "true",
		deps:         deps,
	}

	for _, server := range strings.Split(cfg.Config["servers"], ",") {
		if server = strings.TrimSpace(server); server != "" {
			s.servers = append(s.servers, server)
		}
	}
	if s.userFilter == "" {
		s.userFilter = "(uid=%s)"
	}
	if s.groupFilter == "" {
		s.groupFilter = "(member=%s)"
	}
	if raw := cfg.Config["timeout"]; raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid timeout %q: %w", raw, err)
		}
		s.timeout = d
	}

	return s, nil
}

// Name returns the source name
func (s *LDAPSource) Name() string { return s.name }

// Type returns the source type
func (s *LDAPSource) Type() string { return "ldap" }

// BeginAuth saves fresh flow state and redirects to the login form
func (s *LDAPSource) BeginAuth(ctx context.Context, returnTo string) (*BeginResult, error) {
	st := newFlowState(s.name, returnTo, s.deps.BaseURL)
	token, err := s.deps.Store.Save(ctx, st, StageLogin)
	if err != nil {
		return nil, fmt.Errorf("failed to save flow state: %w", err)
	}
	loginURL := state.AppendToken(s.deps.BaseURL+"/auth/login", token)
	return &BeginResult{RedirectURL: loginURL + "&source=" + s.name}, nil
}

// HandleLogin authenticates against the directory and drives the pipeline
func (s *LDAPSource) HandleLogin(ctx context.Context, token, username, password string) (*pipeline.Outcome, *state.AuthState, error) {
	st, err := s.deps.Store.Load(ctx, token, StageLogin)
	if err != nil {
		return nil, nil, err
	}

	attrs, err := s.authenticate(username, password)
	if err != nil {
		return nil, st, err
	}

	pc := pipeline.FromState(st)
	pc.Identity = username
	for name, values := range attrs {
		pc.Attributes[name] = values
	}

	out, err := s.deps.Runner.Run(ctx, pc, st)
	if err != nil {
		return nil, st, err
	}
	return out, st, nil
}

// Finalize builds the session identity from the completed context
func (s *LDAPSource) Finalize(ctx context.Context, pc *pipeline.Context) (*Identity, error) {
	return &Identity{
		Username:   pc.Identity,
		Source:     s.name,
		Attributes: pc.Attributes,
	}, nil
}

// authenticate searches for the user with the service account, binds as the
// user to verify the password, then collects group memberships.
func (s *LDAPSource) authenticate(username, password string) (map[string][]string, error) {
	conn, err := s.connect()
	if err != nil {
		return nil, err
	}
	defer func() { _ = conn.Close() }()

	searchFilter := fmt.Sprintf(s.userFilter, ldap.EscapeFilter(username))
	result, err := conn.Search(ldap.NewSearchRequest(
		s.userBaseDN,
		ldap.ScopeWholeSubtree,
		ldap.NeverDerefAliases,
		0,
		0,
		false,
		searchFilter,
		[]string{"dn", "cn", "mail", "uid"},
		nil,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to search directory: %w", err)
	}

	if len(result.Entries) != 1 {
		return nil, &LoginError{
			Code:   CodeInvalidCredentials,
			Params: map[string]string{"username": username},
		}
	}

	entry := result.Entries[0]

	if err := conn.Bind(entry.DN, password); err != nil {
		return nil, &LoginError{
			Code:   CodeInvalidCredentials,
			Params: map[string]string{"username": username},
		}
	}

	attrs := map[string][]string{
		"username": {username},
		"dn":       {entry.DN},
	}
	if mail := entry.GetAttributeValues("mail"); len(mail) > 0 {
		attrs["email"] = mail
	}

	if s.groupBaseDN != "" {
		// Bind back as the service account before searching groups
		if err := conn.Bind(s.bindDN, s.bindPassword); err != nil {
			return nil, fmt.Errorf("failed to rebind as service account: %w", err)
		}

		groupFilter := fmt.Sprintf(s.groupFilter, ldap.EscapeFilter(entry.DN))
		groupResult, err := conn.Search(ldap.NewSearchRequest(
			s.groupBaseDN,
			ldap.ScopeWholeSubtree,
			ldap.NeverDerefAliases,
			0,
			0,
			false,
			groupFilter,
			[]string{"cn"},
			nil,
		))
		if err == nil {
			var groups []string
			for _, g := range groupResult.Entries {
				if name := g.GetAttributeValue("cn"); name != "" {
					groups = append(groups, name)
				}
			}
			if len(groups) > 0 {
				attrs["groups"] = groups
			}
		}
	}

	return attrs, nil
}

// connect tries the configured servers in order, returning the first that
// accepts the service bind
func (s *LDAPSource) connect() (*ldap.Conn, error) {
	var lastErr error
	for _, server := range s.servers {
		opts := []ldap.DialOpt{
			ldap.DialWithDialer(&net.Dialer{Timeout: s.timeout}),
		}
		if s.useTLS {
			opts = append(opts, ldap.DialWithTLSConfig(&tls.Config{InsecureSkipVerify: s.skipVerify}))
		}

		conn, err := ldap.DialURL(server, opts...)
		if err != nil {
			lastErr = err
			continue
		}
		conn.SetTimeout(s.timeout)

		if err := conn.Bind(s.bindDN, s.bindPassword); err != nil {
			_ = conn.Close()
			lastErr = err
			continue
		}
		return conn, nil
	}

	detail := "no servers configured"
	if lastErr != nil {
		detail = lastErr.Error()
	}
	return nil, &config.Error{Kind: config.KindUnbindable, Detail: detail}
}
