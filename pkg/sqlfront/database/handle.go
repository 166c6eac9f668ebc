package database

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"database/sql"
	"sync/atomic"
	"time"

	"github.com/t1000ln/sqlcipher-front/pkg/sqlfront/database/backends"
)

// Handle is one open session on a database file. It is shared by every
// caller that acquires the same canonical path until it is released.
type Handle struct {
	// Path is the canonical absolute path the handle is keyed by.
	Path string

	// DB is the connection pool. It is safe for concurrent use.
	DB *sql.DB

	// Health checker
	Health *backends.SQLiteHealthChecker

	OpenedAt time.Time

	encrypted bool
	keyDigest [sha256.Size]byte
	lastUsed  atomic.Int64
}

func newHandle(path, key string, backend *backends.SQLiteBackend, now time.Time) *Handle {
	h := &Handle{
		Path:      path,
		DB:        backend.DB,
		Health:    backend.Health,
		OpenedAt:  now,
		encrypted: key != "",
		keyDigest: sha256.Sum256([]byte(key)),
	}
	h.lastUsed.Store(now.UnixNano())
	return h
}

// Encrypted reports whether the handle was opened with a key.
func (h *Handle) Encrypted() bool {
	return h.encrypted
}

// LastUsed returns the last time the handle was acquired or touched.
func (h *Handle) LastUsed() time.Time {
	return time.Unix(0, h.lastUsed.Load())
}

// Touch marks the handle as used at t.
func (h *Handle) Touch(t time.Time) {
	h.lastUsed.Store(t.UnixNano())
}

// matchesKey compares key digests in constant time.
func (h *Handle) matchesKey(key string) bool {
	digest := sha256.Sum256([]byte(key))
	return subtle.ConstantTimeCompare(h.keyDigest[:], digest[:]) == 1
}

// Info returns a snapshot of the handle for listings.
func (h *Handle) Info() HandleInfo {
	return HandleInfo{
		Path:      h.Path,
		Encrypted: h.encrypted,
		OpenedAt:  h.OpenedAt,
		LastUsed:  h.LastUsed(),
	}
}

// HandleInfo describes an open handle without exposing the pool.
type HandleInfo struct {
	Path      string    `json:"path"`
	Encrypted bool      `json:"encrypted"`
	OpenedAt  time.Time `json:"opened_at"`
	LastUsed  time.Time `json:"last_used"`
}

// HealthStatus represents the health of one open handle.
type HealthStatus struct {
	Path          string        `json:"path"`
	Healthy       bool          `json:"healthy"`
	Latency       time.Duration `json:"latency_ns"`
	Version       string        `json:"version,omitempty"`
	CipherVersion string        `json:"cipher_version,omitempty"`
	OpenConns     int           `json:"open_connections"`
	InUse         int           `json:"in_use"`
	Idle          int           `json:"idle"`
	Error         string        `json:"error,omitempty"`
}

func (h *Handle) status(ctx context.Context) HealthStatus {
	out := HealthStatus{Path: h.Path}
	if h.Health == nil {
		out.Error = "health checker not available"
		return out
	}

	start := time.Now()
	if err := h.Health.Ping(ctx); err != nil {
		out.Error = err.Error()
		return out
	}
	out.Latency = time.Since(start)

	st, err := h.Health.Status(ctx)
	if err != nil {
		out.Error = err.Error()
		return out
	}

	out.Healthy = true
	out.Version = st.Version
	out.CipherVersion = st.CipherVersion
	out.OpenConns = st.Stats.OpenConnections
	out.InUse = st.Stats.InUse
	out.Idle = st.Stats.Idle
	return out
}
