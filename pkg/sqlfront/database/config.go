package database

import (
	"time"
)

// KeyPolicy decides what happens when a cached handle is requested with a
// different decryption key than the one it was opened with.
type KeyPolicy string

const (
	// KeyPolicyStrict rejects a differing non-empty key with ErrKeyMismatch.
	KeyPolicyStrict KeyPolicy = "strict"
	// KeyPolicyFirstWins ignores the new key and returns the cached handle.
	KeyPolicyFirstWins KeyPolicy = "first-wins"
)

// Config holds registry and per-connection settings.
type Config struct {
	// MaxRowLimit caps row reads and read statements (default: 10000)
	MaxRowLimit int `yaml:"max_row_limit"`

	// DefaultRowLimit is used by callers that do not pass a limit (default: 100)
	DefaultRowLimit int `yaml:"default_row_limit"`

	// BusyTimeout in milliseconds (default: 5000)
	BusyTimeout int `yaml:"busy_timeout"`

	// ForeignKeys enables foreign key enforcement on each connection
	ForeignKeys bool `yaml:"foreign_keys"`

	// JournalMode is applied only when set. Empty leaves the file untouched.
	JournalMode string `yaml:"journal_mode"`

	// MaxOpenConns bounds the pool of each handle (default: 4)
	MaxOpenConns int `yaml:"max_open_conns"`

	// KeyPolicy for key mismatch on cache hit (default: strict)
	KeyPolicy KeyPolicy `yaml:"key_policy"`

	// IdleTimeout evicts handles unused for this long. Zero disables eviction.
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// JanitorSchedule is the cron spec for idle eviction (default: "@every 5m")
	JanitorSchedule string `yaml:"janitor_schedule"`
}

// DefaultConfig returns the default registry configuration.
func DefaultConfig() Config {
	return Config{
		MaxRowLimit:     10000,
		DefaultRowLimit: 100,
		BusyTimeout:     5000,
		ForeignKeys:     true,
		MaxOpenConns:    4,
		KeyPolicy:       KeyPolicyStrict,
		IdleTimeout:     30 * time.Minute,
		JanitorSchedule: "@every 5m",
	}
}

// Effective returns a copy with default values filled in for zero fields.
func (c Config) Effective() Config {
	out := c
	def := DefaultConfig()

	if out.MaxRowLimit <= 0 {
		out.MaxRowLimit = def.MaxRowLimit
	}
	if out.DefaultRowLimit <= 0 {
		out.DefaultRowLimit = def.DefaultRowLimit
	}
	if out.DefaultRowLimit > out.MaxRowLimit {
		out.DefaultRowLimit = out.MaxRowLimit
	}
	if out.BusyTimeout == 0 {
		out.BusyTimeout = def.BusyTimeout
	}
	if out.MaxOpenConns <= 0 {
		out.MaxOpenConns = def.MaxOpenConns
	}
	if out.KeyPolicy == "" {
		out.KeyPolicy = def.KeyPolicy
	}
	if out.JanitorSchedule == "" {
		out.JanitorSchedule = def.JanitorSchedule
	}

	return out
}
