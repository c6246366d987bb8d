// Package config provides console configuration loaded from environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/morezero/endpoint-console/pkg/commsutil"
)

const logPrefix = "config:LoadConfig"

// Snapshot source kinds.
const (
	SourceFile     = "file"
	SourceHTTP     = "http"
	SourceComms    = "comms"
	SourcePostgres = "postgres"
)

// Config holds endpoint-console configuration.
type Config struct {
	// COMMS is optional; empty COMMS_URL disables the NATS API and event publishing.
	COMMSURL  string `envconfig:"COMMS_URL"`
	COMMSName string `envconfig:"SERVICE_NAME" default:"endpoint-console"`

	// Empty subjects fall back to the commsutil defaults.
	ConsoleSubject         string `envconfig:"CONSOLE_SUBJECT"`
	InvocationEventSubject string `envconfig:"INVOCATION_EVENT_SUBJECT"`

	// Snapshot
	SnapshotSource  string        `envconfig:"SNAPSHOT_SOURCE" default:"file"`
	SnapshotFile    string        `envconfig:"SNAPSHOT_FILE" default:"config/endpoints.json"`
	SnapshotURL     string        `envconfig:"SNAPSHOT_URL"`
	SnapshotSubject string        `envconfig:"SNAPSHOT_SUBJECT"`
	SnapshotTimeout time.Duration `envconfig:"SNAPSHOT_TIMEOUT" default:"10s"`

	// Timeouts
	InvokeTimeout      time.Duration `envconfig:"INVOKE_TIMEOUT" default:"30s"`
	RequestTimeout     time.Duration `envconfig:"REQUEST_TIMEOUT" default:"25s"`
	HealthCheckTimeout time.Duration `envconfig:"HEALTH_CHECK_TIMEOUT" default:"5s"`

	// Auth
	AuthType          string `envconfig:"AUTH_TYPE" default:"none"`
	AuthToken         string `envconfig:"AUTH_TOKEN"`
	Auth0Domain       string `envconfig:"AUTH0_DOMAIN"`
	Auth0ClientID     string `envconfig:"AUTH0_CLIENT_ID"`
	Auth0ClientSecret string `envconfig:"AUTH0_CLIENT_SECRET"`
	Auth0Audience     string `envconfig:"AUTH0_AUDIENCE"`

	// Database
	DatabaseURL   string `envconfig:"DATABASE_URL"`
	MigrationPath string `envconfig:"MIGRATION_PATH" default:"migrations"`

	// HTTP (CONSOLE_HTTP_ADDR preferred, e.g. "0.0.0.0:8080")
	HTTPAddr string `envconfig:"CONSOLE_HTTP_ADDR"`
	HTTPPort int    `envconfig:"HTTP_PORT" default:"8080"`

	// Logging
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() (*Config, error) {
	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return nil, err
	}
	c.SnapshotSource = strings.ToLower(strings.TrimSpace(c.SnapshotSource))
	c.AuthType = strings.ToLower(strings.TrimSpace(c.AuthType))
	c.ConsoleSubject = orDefault(c.ConsoleSubject, commsutil.SubjectConsole)
	c.InvocationEventSubject = orDefault(c.InvocationEventSubject, commsutil.SubjectInvocationEvent)
	c.SnapshotSubject = orDefault(c.SnapshotSubject, commsutil.SubjectSnapshot)
	return &c, nil
}

func orDefault(v, def string) string {
	if v = strings.TrimSpace(v); v != "" {
		return v
	}
	return def
}

// ListenAddr is the HTTP listen address.
func (c *Config) ListenAddr() string {
	if c.HTTPAddr != "" {
		return c.HTTPAddr
	}
	return fmt.Sprintf(":%d", c.HTTPPort)
}

// Validate checks that the snapshot source, auth and timeouts are usable.
func (c *Config) Validate() error {
	if err := c.ValidateSnapshot(); err != nil {
		return err
	}
	if err := c.ValidateAuth(); err != nil {
		return err
	}
	if c.InvokeTimeout <= 0 {
		return fmt.Errorf("%s - INVOKE_TIMEOUT must be positive", logPrefix)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("%s - REQUEST_TIMEOUT must be positive", logPrefix)
	}
	if c.HealthCheckTimeout <= 0 {
		return fmt.Errorf("%s - HEALTH_CHECK_TIMEOUT must be positive", logPrefix)
	}
	return nil
}

// ValidateSnapshot checks the snapshot source has what it needs.
func (c *Config) ValidateSnapshot() error {
	switch c.SnapshotSource {
	case SourceFile:
	case SourceHTTP:
		if c.SnapshotURL == "" {
			return fmt.Errorf("%s - SNAPSHOT_URL is required when SNAPSHOT_SOURCE=http", logPrefix)
		}
	case SourceComms:
		if c.COMMSURL == "" {
			return fmt.Errorf("%s - COMMS_URL is required when SNAPSHOT_SOURCE=comms", logPrefix)
		}
	case SourcePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("%s - DATABASE_URL is required when SNAPSHOT_SOURCE=postgres", logPrefix)
		}
	default:
		return fmt.Errorf("%s - unknown SNAPSHOT_SOURCE %q (want file, http, comms or postgres)", logPrefix, c.SnapshotSource)
	}
	if c.SnapshotTimeout <= 0 {
		return fmt.Errorf("%s - SNAPSHOT_TIMEOUT must be positive", logPrefix)
	}
	return nil
}

// ValidateAuth checks the auth provider settings.
func (c *Config) ValidateAuth() error {
	switch c.AuthType {
	case "", "none":
		return nil
	case "static":
		if c.AuthToken == "" {
			return fmt.Errorf("%s - AUTH_TOKEN is required when AUTH_TYPE=static", logPrefix)
		}
	case "auth0":
		if c.Auth0Domain == "" || c.Auth0ClientID == "" || c.Auth0ClientSecret == "" {
			return fmt.Errorf("%s - AUTH0_DOMAIN, AUTH0_CLIENT_ID and AUTH0_CLIENT_SECRET are required when AUTH_TYPE=auth0", logPrefix)
		}
	default:
		return fmt.Errorf("%s - unknown AUTH_TYPE %q", logPrefix, c.AuthType)
	}
	return nil
}

// ValidateForDB checks required config when running DB-dependent commands (migrate, clear, seed).
func (c *Config) ValidateForDB() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("%s - DATABASE_URL is required", logPrefix)
	}
	return nil
}
