// Package notes persists a single scratch pad of SQL between sessions.
package notes

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/t1000ln/sqlcipher-front/pkg/sqlfront/fsutil"
)

// Config configures the notes store.
type Config struct {
	// Path of the notes file (default: <config-dir>/notes.sql)
	Path string `yaml:"path"`
}

// Store reads and writes the notes file.
type Store struct {
	path string
	mu   sync.Mutex
}

// New creates a store from cfg.
func New(cfg Config) *Store {
	path := cfg.Path
	if path == "" {
		path = filepath.Join(fsutil.ConfigDir(), "notes.sql")
	}
	return &Store{path: path}
}

// Path returns the notes file location.
func (s *Store) Path() string {
	return s.path
}

// Load returns the saved notes, or "" when nothing was saved yet.
func (s *Store) Load() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read notes: %w", err)
	}
	return string(data), nil
}

// Save replaces the notes with text.
func (s *Store) Save(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := fsutil.WriteFileAtomic(s.path, []byte(text), 0o600); err != nil {
		return fmt.Errorf("save notes: %w", err)
	}
	return nil
}
