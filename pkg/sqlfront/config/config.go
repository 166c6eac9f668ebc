// Package config loads the sqlfront configuration file.
package config

import (
	"io"
	"log/slog"
	"strings"

	"github.com/t1000ln/sqlcipher-front/pkg/sqlfront/database"
	"github.com/t1000ln/sqlcipher-front/pkg/sqlfront/gateway"
	"github.com/t1000ln/sqlcipher-front/pkg/sqlfront/history"
	"github.com/t1000ln/sqlcipher-front/pkg/sqlfront/keystore"
	"github.com/t1000ln/sqlcipher-front/pkg/sqlfront/notes"
)

// Environment variables read by the CLI.
const (
	// EnvKey supplies the decryption key for one-shot commands.
	EnvKey = "SQLFRONT_KEY"
	// EnvVaultPassword unlocks the vault keystore without a prompt.
	EnvVaultPassword = "SQLFRONT_VAULT_PASSWORD"
	// EnvGatewayToken is the conventional reference for gateway.auth_token.
	EnvGatewayToken = "SQLFRONT_GATEWAY_TOKEN"
)

// Config is the root configuration.
type Config struct {
	Database database.Config `yaml:"database"`
	Gateway  gateway.Config  `yaml:"gateway"`
	Logging  LoggingConfig   `yaml:"logging"`
	History  history.Config  `yaml:"history"`
	Notes    notes.Config    `yaml:"notes"`
	Keystore keystore.Config `yaml:"keystore"`
}

// LoggingConfig configures the slog handler.
type LoggingConfig struct {
	// Level is debug, info, warn or error (default: info)
	Level string `yaml:"level"`

	// Format is text or json (default: text)
	Format string `yaml:"format"`
}

// DefaultConfig returns the configuration used when no file is found.
func DefaultConfig() *Config {
	return &Config{
		Database: database.DefaultConfig(),
		Gateway:  gateway.DefaultConfig(),
		Logging:  LoggingConfig{Level: "info", Format: "text"},
		History:  history.Config{MaxEntries: history.DefaultMaxEntries},
		Keystore: keystore.Config{Backend: keystore.BackendKeyring},
	}
}

// Effective returns a copy with defaults filled in for every section.
func (c *Config) Effective() *Config {
	out := *c
	out.Database = c.Database.Effective()
	out.Gateway = c.Gateway.Effective()
	out.Keystore = c.Keystore.Effective()
	if out.Logging.Level == "" {
		out.Logging.Level = "info"
	}
	if out.Logging.Format == "" {
		out.Logging.Format = "text"
	}
	if out.History.MaxEntries <= 0 {
		out.History.MaxEntries = history.DefaultMaxEntries
	}
	return &out
}

// SlogLevel maps Level to a slog level. Unknown values mean info.
func (l LoggingConfig) SlogLevel() slog.Level {
	switch strings.ToLower(strings.TrimSpace(l.Level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger builds a logger writing to w. verbose forces debug level.
func (l LoggingConfig) NewLogger(w io.Writer, verbose bool) *slog.Logger {
	level := l.SlogLevel()
	if verbose {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if l.Format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}
