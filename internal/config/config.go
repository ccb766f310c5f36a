package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the main configuration structure
type Config struct {
	Server  ServerConfig       `yaml:"server"`
	Session SessionConfig      `yaml:"session"`
	State   StateConfig        `yaml:"state"`
	Sources []AuthSourceConfig `yaml:"sources"`
	Logging LoggingConfig      `yaml:"logging"`
}

// ServerConfig contains server settings
type ServerConfig struct {
	Port    int    `yaml:"port"`
	BaseURL string `yaml:"base_url"`
}

// SessionConfig contains settings for the session tokens handed to the
// relying application after a flow completes
type SessionConfig struct {
	JWTSecret   string        `yaml:"jwt_secret"`
	TokenExpiry time.Duration `yaml:"token_expiry"`
}

// StateConfig contains settings for the authentication state store
type StateConfig struct {
	Type string        `yaml:"type"` // file or memory
	Path string        `yaml:"path"` // for file store
	TTL  time.Duration `yaml:"ttl"`
}

// AuthSourceConfig describes one configured authentication source and the
// processing filters that run after it succeeds
type AuthSourceConfig struct {
	Name    string            `yaml:"name"`
	Type    string            `yaml:"type"` // password, ldap, saml, oidc
	Enabled bool              `yaml:"enabled"`
	Config  map[string]string `yaml:"config,omitempty"`
	Users   []User            `yaml:"users,omitempty"` // for password sources
	Filters []FilterSpec      `yaml:"filters,omitempty"`
}

// FilterSpec names a processing filter type and its configuration.
// Filters run strictly in the configured order.
type FilterSpec struct {
	Type   string            `yaml:"type"`
	Config map[string]string `yaml:"config,omitempty"`
}

// User represents a user account for password sources
type User struct {
	Username string   `yaml:"username"`
	Password string   `yaml:"password"` // In production, use hashed passwords
	Email    string   `yaml:"email,omitempty"`
	Roles    []string `yaml:"roles,omitempty"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	AuditLogPath string `yaml:"audit_log_path"`
	LogLevel     string `yaml:"log_level"`
}

// LoadConfig loads configuration from a YAML file
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Set defaults
	if config.Server.Port == 0 {
		config.Server.Port = 8080
	}
	if config.Server.BaseURL == "" {
		config.Server.BaseURL = fmt.Sprintf("http://localhost:%d", config.Server.Port)
	}
	if config.Session.TokenExpiry == 0 {
		config.Session.TokenExpiry = 8 * time.Hour
	}
	if config.State.Type == "" {
		config.State.Type = "file"
	}
	if config.State.Path == "" {
		config.State.Path = "authstate"
	}
	if config.State.TTL == 0 {
		config.State.TTL = 30 * time.Minute
	}
	if config.Logging.LogLevel == "" {
		config.Logging.LogLevel = "info"
	}
	if config.Logging.AuditLogPath == "" {
		config.Logging.AuditLogPath = "audit.log"
	}

	return &config, nil
}

// Source returns the authentication source configured under name
func (c *Config) Source(name string) (*AuthSourceConfig, error) {
	for i := range c.Sources {
		if c.Sources[i].Name == name {
			return &c.Sources[i], nil
		}
	}
	return nil, &Error{Kind: KindMissingAuthsource, Subject: name}
}

// SourceOfType returns the source configured under name, verifying its type.
// A filter referencing a source of the wrong type is a deployment error.
func (c *Config) SourceOfType(name, sourceType string) (*AuthSourceConfig, error) {
	src, err := c.Source(name)
	if err != nil {
		return nil, err
	}
	if src.Type != sourceType {
		return nil, &Error{Kind: KindWrongAuthsourceType, Subject: name, Detail: src.Type}
	}
	return src, nil
}
