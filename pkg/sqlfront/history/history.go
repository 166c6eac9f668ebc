// Package history keeps the list of recently opened database files.
//
// Entries record only whether a file needed a key; the key itself is kept
// by the keystore.
package history

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/t1000ln/sqlcipher-front/pkg/sqlfront/fsutil"
)

// DefaultMaxEntries caps the list when no limit is configured.
const DefaultMaxEntries = 20

// Entry is one recently opened file.
type Entry struct {
	Name      string    `yaml:"name" json:"name"`
	Path      string    `yaml:"path" json:"path"`
	Encrypted bool      `yaml:"encrypted,omitempty" json:"encrypted"`
	OpenedAt  time.Time `yaml:"opened_at" json:"opened_at"`
}

type fileFormat struct {
	Entries []Entry `yaml:"entries"`
}

// Config configures the history store.
type Config struct {
	// Path of the history file (default: <config-dir>/history.yaml)
	Path string `yaml:"path"`

	// MaxEntries caps the list (default: 20)
	MaxEntries int `yaml:"max_entries"`
}

// Store reads and writes the history file. Each call reads the file fresh,
// so several processes can share it.
type Store struct {
	path       string
	maxEntries int
	now        func() time.Time

	mu sync.Mutex
}

// New creates a store from cfg.
func New(cfg Config) *Store {
	path := cfg.Path
	if path == "" {
		path = filepath.Join(fsutil.ConfigDir(), "history.yaml")
	}
	max := cfg.MaxEntries
	if max <= 0 {
		max = DefaultMaxEntries
	}
	return &Store{path: path, maxEntries: max, now: time.Now}
}

// Path returns the history file location.
func (s *Store) Path() string {
	return s.path
}

// List returns the entries, newest first. A missing file is an empty list.
func (s *Store) List() ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

// Add records path at the top of the list. An existing entry for the same
// path moves to the top instead of being duplicated.
func (s *Store) Add(name, path string, encrypted bool) error {
	if path == "" {
		return errors.New("history path required")
	}
	if name == "" {
		name = filepath.Base(path)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.load()
	if err != nil {
		return err
	}

	out := make([]Entry, 0, len(entries)+1)
	out = append(out, Entry{Name: name, Path: path, Encrypted: encrypted, OpenedAt: s.now().UTC()})
	for _, e := range entries {
		if e.Path != path {
			out = append(out, e)
		}
	}
	if len(out) > s.maxEntries {
		out = out[:s.maxEntries]
	}

	return s.save(out)
}

// Remove deletes the entry at index and returns its path. An index out of
// range removes nothing and returns "".
func (s *Store) Remove(index int) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.load()
	if err != nil {
		return "", err
	}
	if index < 0 || index >= len(entries) {
		return "", nil
	}

	removed := entries[index].Path
	entries = append(entries[:index], entries[index+1:]...)
	if err := s.save(entries); err != nil {
		return "", err
	}
	return removed, nil
}

// Clear deletes the history file.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("clear history: %w", err)
	}
	return nil
}

func (s *Store) load() ([]Entry, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}

	var f fileFormat
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse history %s: %w", s.path, err)
	}
	return f.Entries, nil
}

func (s *Store) save(entries []Entry) error {
	data, err := yaml.Marshal(&fileFormat{Entries: entries})
	if err != nil {
		return fmt.Errorf("marshal history: %w", err)
	}
	return fsutil.WriteFileAtomic(s.path, data, 0o600)
}
