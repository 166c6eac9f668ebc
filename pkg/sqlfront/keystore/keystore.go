// Package keystore remembers decryption keys for database files so the
// history list can reopen encrypted files without asking again.
//
// Keys live either in the operating system's keyring (Linux: Secret
// Service, macOS: Keychain, Windows: Credential Manager) or in a local
// vault file encrypted with AES-256-GCM under an Argon2id-derived key.
package keystore

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/t1000ln/sqlcipher-front/pkg/sqlfront/fsutil"
)

var (
	// ErrNotFound is returned when no key is stored for a database path.
	ErrNotFound = errors.New("no key stored for database")
	// ErrLocked is returned by vault operations before Unlock or Create.
	ErrLocked = errors.New("vault is locked")
	// ErrDisabled is returned by the nop store on Set.
	ErrDisabled = errors.New("keystore disabled")
)

// Store saves decryption keys by database path.
type Store interface {
	Get(path string) (string, error)
	Set(path, key string) error
	Delete(path string) error
	Name() string
}

// Backend selects a Store implementation.
type Backend string

const (
	BackendKeyring Backend = "keyring"
	BackendVault   Backend = "vault"
	BackendNone    Backend = "none"
)

// Config configures the keystore.
type Config struct {
	// Backend is keyring, vault, or none (default: keyring)
	Backend Backend `yaml:"backend"`

	// VaultPath is the vault file (default: <config-dir>/keys.vault)
	VaultPath string `yaml:"vault_path"`
}

// Effective returns a copy with defaults filled in.
func (c Config) Effective() Config {
	out := c
	if out.Backend == "" {
		out.Backend = BackendKeyring
	}
	if out.VaultPath == "" {
		out.VaultPath = filepath.Join(fsutil.ConfigDir(), "keys.vault")
	}
	return out
}

// New returns the configured store. The vault backend needs password; it
// creates the vault file on first use and unlocks it otherwise.
func New(cfg Config, password string) (Store, error) {
	cfg = cfg.Effective()

	switch cfg.Backend {
	case BackendKeyring:
		return NewKeyringStore(""), nil
	case BackendVault:
		if password == "" {
			return nil, fmt.Errorf("vault %s: %w", cfg.VaultPath, ErrLocked)
		}
		return OpenVault(cfg.VaultPath, password)
	case BackendNone:
		return NopStore{}, nil
	default:
		return nil, fmt.Errorf("unsupported keystore backend: %s", cfg.Backend)
	}
}

// NopStore stores nothing.
type NopStore struct{}

func (NopStore) Get(string) (string, error) { return "", ErrNotFound }
func (NopStore) Set(string, string) error   { return ErrDisabled }
func (NopStore) Delete(string) error        { return nil }
func (NopStore) Name() string               { return string(BackendNone) }
