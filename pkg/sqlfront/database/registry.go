package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/t1000ln/sqlcipher-front/pkg/sqlfront/database/backends"
)

// openFunc opens a database file. Tests swap it to count opens.
type openFunc func(ctx context.Context, config backends.SQLiteConfig) (*backends.SQLiteBackend, error)

// Registry caches one Handle per canonical database path. Opening and
// closing happen outside the lock, so a slow open never blocks callers
// working on other files.
type Registry struct {
	// handles stores every open session by canonical path
	handles map[string]*Handle

	config Config

	// logger for registry operations
	logger *slog.Logger

	// mu protects handles only
	mu sync.Mutex

	open openFunc
	now  func() time.Time
}

// NewRegistry creates an empty registry.
func NewRegistry(config Config, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		handles: make(map[string]*Handle),
		config:  config.Effective(),
		logger:  logger.With("component", "registry"),
		open:    backends.OpenSQLite,
		now:     time.Now,
	}
}

// Config returns the effective configuration.
func (r *Registry) Config() Config {
	return r.config
}

// CanonicalPath resolves path to the absolute, cleaned form used as the
// registry key. Symlinks are resolved when the target exists.
func CanonicalPath(path string) (string, error) {
	if path == "" {
		return "", errors.New("database path required")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve path: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}
	return filepath.Clean(abs), nil
}

// Acquire returns the handle for path, opening the file on first use.
// A cache hit with an empty key reuses the handle. A cache hit with a
// different non-empty key fails with ErrKeyMismatch under the strict policy.
func (r *Registry) Acquire(ctx context.Context, path, key string) (*Handle, error) {
	canon, err := CanonicalPath(path)
	if err != nil {
		return nil, &ConnectionError{Path: path, Err: err}
	}

	r.mu.Lock()
	h, ok := r.handles[canon]
	r.mu.Unlock()
	if ok {
		return r.reuse(h, key)
	}

	backend, err := r.open(ctx, backends.SQLiteConfig{
		Path:         canon,
		Key:          key,
		JournalMode:  r.config.JournalMode,
		BusyTimeout:  r.config.BusyTimeout,
		ForeignKeys:  r.config.ForeignKeys,
		MaxOpenConns: r.config.MaxOpenConns,
	})
	if err != nil {
		r.logger.Warn("open failed", "path", canon, "encrypted", key != "", "error", err)
		return nil, &ConnectionError{Path: canon, Err: err}
	}

	created := newHandle(canon, key, backend, r.now())

	r.mu.Lock()
	if existing, ok := r.handles[canon]; ok {
		r.mu.Unlock()
		// Another caller opened the same file first; theirs wins.
		if err := backend.Close(); err != nil {
			r.logger.Debug("close duplicate session", "path", canon, "error", err)
		}
		return r.reuse(existing, key)
	}
	r.handles[canon] = created
	r.mu.Unlock()

	r.logger.Info("database opened",
		"path", canon,
		"encrypted", key != "",
		"driver", backends.DriverType(),
	)

	return created, nil
}

func (r *Registry) reuse(h *Handle, key string) (*Handle, error) {
	if key != "" && !h.matchesKey(key) {
		if r.config.KeyPolicy != KeyPolicyFirstWins {
			return nil, &ConnectionError{Path: h.Path, Err: ErrKeyMismatch}
		}
		r.logger.Debug("key differs from cached handle, reusing", "path", h.Path)
	}
	h.Touch(r.now())
	return h, nil
}

// Get returns the open handle for path without opening anything.
func (r *Registry) Get(path string) (*Handle, bool) {
	canon, err := CanonicalPath(path)
	if err != nil {
		return nil, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	h, ok := r.handles[canon]
	return h, ok
}

// Release closes and forgets the handle for path. Releasing a path that
// is not open is a no-op.
func (r *Registry) Release(path string) error {
	canon, err := CanonicalPath(path)
	if err != nil {
		return nil
	}

	r.mu.Lock()
	h, ok := r.handles[canon]
	if ok {
		delete(r.handles, canon)
	}
	r.mu.Unlock()

	if !ok {
		return nil
	}

	if err := h.DB.Close(); err != nil {
		return fmt.Errorf("close %s: %w", canon, err)
	}
	r.logger.Info("database released", "path", canon)
	return nil
}

// List returns a snapshot of the open handles sorted by path.
func (r *Registry) List() []HandleInfo {
	r.mu.Lock()
	out := make([]HandleInfo, 0, len(r.handles))
	for _, h := range r.handles {
		out = append(out, h.Info())
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// Len returns the number of open handles.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handles)
}

// Status returns the health status of every open handle keyed by path.
func (r *Registry) Status(ctx context.Context) map[string]HealthStatus {
	handles := r.snapshot()

	status := make(map[string]HealthStatus, len(handles))
	for _, h := range handles {
		status[h.Path] = h.status(ctx)
	}
	return status
}

// EvictIdle closes every handle unused for longer than maxIdle and returns
// the evicted paths.
func (r *Registry) EvictIdle(maxIdle time.Duration) []string {
	if maxIdle <= 0 {
		return nil
	}
	cutoff := r.now().Add(-maxIdle)

	var victims []*Handle
	r.mu.Lock()
	for path, h := range r.handles {
		if h.LastUsed().Before(cutoff) {
			victims = append(victims, h)
			delete(r.handles, path)
		}
	}
	r.mu.Unlock()

	paths := make([]string, 0, len(victims))
	for _, h := range victims {
		if err := h.DB.Close(); err != nil {
			r.logger.Warn("close idle handle", "path", h.Path, "error", err)
		}
		paths = append(paths, h.Path)
	}
	sort.Strings(paths)

	if len(paths) > 0 {
		r.logger.Info("idle handles evicted", "count", len(paths))
	}
	return paths
}

// Close closes all open handles.
func (r *Registry) Close() error {
	handles := r.drain()

	var errs []error
	for _, h := range handles {
		if err := h.DB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", h.Path, err))
		}
		r.logger.Debug("database closed", "path", h.Path)
	}

	return errors.Join(errs...)
}

func (r *Registry) snapshot() []*Handle {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*Handle, 0, len(r.handles))
	for _, h := range r.handles {
		out = append(out, h)
	}
	return out
}

func (r *Registry) drain() []*Handle {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*Handle, 0, len(r.handles))
	for _, h := range r.handles {
		out = append(out, h)
	}
	r.handles = make(map[string]*Handle)
	return out
}
