package keystore

import (
	"errors"

	"github.com/zalando/go-keyring"
)

// DefaultService is the keyring service name entries are stored under.
const DefaultService = "sqlfront"

// KeyringStore keeps keys in the OS keyring, one entry per database path.
type KeyringStore struct {
	service string
}

// NewKeyringStore creates a store for service ("" means DefaultService).
func NewKeyringStore(service string) *KeyringStore {
	if service == "" {
		service = DefaultService
	}
	return &KeyringStore{service: service}
}

// Get returns the key stored for path.
func (s *KeyringStore) Get(path string) (string, error) {
	val, err := keyring.Get(s.service, path)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return val, nil
}

// Set stores key for path, replacing any previous key.
func (s *KeyringStore) Set(path, key string) error {
	return keyring.Set(s.service, path, key)
}

// Delete removes the key for path. A missing entry is not an error.
func (s *KeyringStore) Delete(path string) error {
	if err := keyring.Delete(s.service, path); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return err
	}
	return nil
}

func (s *KeyringStore) Name() string { return string(BackendKeyring) }

// Available checks if the OS keyring is accessible with a write+delete cycle.
func (s *KeyringStore) Available() bool {
	const probe = "__sqlfront_probe__"
	if err := keyring.Set(s.service, probe, "ok"); err != nil {
		return false
	}
	_ = keyring.Delete(s.service, probe)
	return true
}
