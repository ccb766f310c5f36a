// Package directory implements the directory-lookup processing filter: it
// enriches an authenticated identity with group memberships and extra
// attributes from an LDAP directory.
package directory

import (
	"context"
	"crypto/tls"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-ldap/ldap/v3"

	"github.com/davidcohan/identity-broker/internal/config"
	"github.com/davidcohan/identity-broker/internal/pipeline"
)

const defaultTimeout = 10 * time.Second

// Filter looks up the authenticated user in a directory and merges group
// memberships and configured attributes into the processing context. The
// connection is request-scoped: established lazily on first use, tried
// across the configured servers in order, and released when the step ends.
type Filter struct {
	servers      []string
	bindDN       string
	bindPassword string
	userBaseDN   string
	searchAttr   string
	groupBaseDN  string
	groupFilter  string
	targetAttr   string
	extraAttrs   []string
	timeout      time.Duration
	useTLS       bool
	skipVerify   bool

	options map[string]string // retained for per-server overrides
	dialer  Dialer
}

// New builds the filter from its options, merged over the connection
// settings of the referenced ldap authentication source when one is named.
// Locally specified options win key by key; required keys are validated once
// after the merge. No connection is made here.
func New(options map[string]string, cfg *config.Config) (pipeline.Filter, error) {
	if ref := options["authsource"]; ref != "" {
		src, err := cfg.SourceOfType(ref, "ldap")
		if err != nil {
			return nil, err
		}
		options = config.MergeOptions(src.Config, options)
	}

	if err := config.RequireOptions(options, "servers", "user_base_dn", "bind_dn", "bind_password"); err != nil {
		return nil, err
	}

	f := &Filter{
		bindDN:       options["bind_dn"],
		bindPassword: options["bind_password"],
		userBaseDN:   options["user_base_dn"],
		searchAttr:   options["search_attribute"],
		groupBaseDN:  options["group_base_dn"],
		groupFilter:  options["group_filter"],
		targetAttr:   options["target_attribute"],
		timeout:      defaultTimeout,
		useTLS:       options["use_tls"] == "true",
		skipVerify:   options["skip_tls_verify"] == "true",
		options:      options,
		dialer:       ldapDialer{},
	}

	for _, server := range strings.Split(options["servers"], ",") {
		if server = strings.TrimSpace(server); server != "" {
			f.servers = append(f.servers, server)
		}
	}
	if f.searchAttr == "" {
		f.searchAttr = "uid"
	}
	if f.groupFilter == "" {
		f.groupFilter = "(member=%s)"
	}
	if f.targetAttr == "" {
		f.targetAttr = "groups"
	}
	if raw := options["timeout"]; raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid timeout %q: %w", raw, err)
		}
		f.timeout = d
	}
	for _, attr := range strings.Split(options["attributes"], ",") {
		if attr = strings.TrimSpace(attr); attr != "" {
			f.extraAttrs = append(f.extraAttrs, attr)
		}
	}

	return f, nil
}

// Process enriches the context with the user's directory attributes. The
// identity must already be resolved by the owning source.
func (f *Filter) Process(ctx context.Context, pc *pipeline.Context) (*pipeline.Result, error) {
	username := pc.Identity
	if username == "" {
		return nil, fmt.Errorf("no identity to look up")
	}

	conn, err := f.connect()
	if err != nil {
		return nil, err
	}
	defer func() { _ = conn.Close() }()

	entry, err := f.findUser(conn, username)
	if err != nil {
		return nil, err
	}

	for _, attr := range f.extraAttrs {
		if values := entry.GetAttributeValues(attr); len(values) > 0 {
			pc.Attributes[attr] = values
		}
	}

	if f.groupBaseDN != "" {
		groups, err := f.findGroups(conn, entry.DN)
		if err != nil {
			return nil, err
		}
		pc.Attributes[f.targetAttr] = groups
	}

	return pipeline.Completed(), nil
}

// connect tries the configured servers in order and returns the first that
// accepts the service bind. Exhausting the list without a successful bind
// fails the filter; directory failures are never retried past that.
func (f *Filter) connect() (Conn, error) {
	var lastErr error
	for i, server := range f.servers {
		timeout := f.timeout
		// Per-server settings win over the filter-level defaults when present
		if raw := f.serverOption(i, "timeout"); raw != "" {
			if d, err := time.ParseDuration(raw); err == nil {
				timeout = d
			}
		}

		var tlsConfig *tls.Config
		if f.useTLS {
			tlsConfig = &tls.Config{InsecureSkipVerify: f.skipVerify}
		}

		conn, err := f.dialer.Dial(server, timeout, tlsConfig)
		if err != nil {
			lastErr = err
			continue
		}

		bindDN := f.bindDN
		if v := f.serverOption(i, "bind_dn"); v != "" {
			bindDN = v
		}
		bindPassword := f.bindPassword
		if v := f.serverOption(i, "bind_password"); v != "" {
			bindPassword = v
		}

		if err := conn.Bind(bindDN, bindPassword); err != nil {
			_ = conn.Close()
			lastErr = err
			continue
		}
		return conn, nil
	}

	detail := "no servers configured"
	if lastErr != nil {
		// Bind errors name servers and DNs, never credentials
		detail = lastErr.Error()
	}
	return nil, &config.Error{Kind: config.KindUnbindable, Detail: detail}
}

// serverOption reads a per-server override like "server.0.timeout"
func (f *Filter) serverOption(index int, key string) string {
	return f.options["server."+strconv.Itoa(index)+"."+key]
}

func (f *Filter) findUser(conn Conn, username string) (*ldap.Entry, error) {
	searchFilter := fmt.Sprintf("(%s=%s)", f.searchAttr, ldap.EscapeFilter(username))
	attrs := append([]string{"dn"}, f.extraAttrs...)

	result, err := conn.Search(ldap.NewSearchRequest(
		f.userBaseDN,
		ldap.ScopeWholeSubtree,
		ldap.NeverDerefAliases,
		0,
		0,
		false,
		searchFilter,
		attrs,
		nil,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to search directory: %w", err)
	}

	if len(result.Entries) == 0 {
		return nil, fmt.Errorf("user %q not found in directory", username)
	}
	if len(result.Entries) > 1 {
		return nil, fmt.Errorf("user %q matches %d directory entries", username, len(result.Entries))
	}
	return result.Entries[0], nil
}

func (f *Filter) findGroups(conn Conn, userDN string) ([]string, error) {
	searchFilter := fmt.Sprintf(f.groupFilter, ldap.EscapeFilter(userDN))

	result, err := conn.Search(ldap.NewSearchRequest(
		f.groupBaseDN,
		ldap.ScopeWholeSubtree,
		ldap.NeverDerefAliases,
		0,
		0,
		false,
		searchFilter,
		[]string{"cn"},
		nil,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to search groups: %w", err)
	}

	var groups []string
	for _, entry := range result.Entries {
		if name := entry.GetAttributeValue("cn"); name != "" {
			groups = append(groups, name)
		}
	}
	return groups, nil
}
