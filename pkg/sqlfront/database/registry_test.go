package database

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/t1000ln/sqlcipher-front/pkg/sqlfront/database/backends"
)

func createDB(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	backend, err := backends.OpenSQLite(context.Background(), backends.SQLiteConfig{Path: path, Create: true})
	if err != nil {
		t.Fatalf("create %s: %v", name, err)
	}
	if _, err := backend.DB.Exec("CREATE TABLE t (id INTEGER PRIMARY KEY, name TEXT)"); err != nil {
		t.Fatalf("create table: %v", err)
	}
	backend.Close()
	return path
}

// keylessOpener drops the key so key policy can be tested on plain builds.
func keylessOpener(opens *atomic.Int32) openFunc {
	return func(ctx context.Context, cfg backends.SQLiteConfig) (*backends.SQLiteBackend, error) {
		if opens != nil {
			opens.Add(1)
		}
		cfg.Key = ""
		return backends.OpenSQLite(ctx, cfg)
	}
}

func TestRegistry_AcquireCaches(t *testing.T) {
	dir := t.TempDir()
	path := createDB(t, dir, "test.db")

	reg := NewRegistry(DefaultConfig(), nil)
	defer reg.Close()

	first, err := reg.Acquire(context.Background(), path, "")
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	// Same file through a non-canonical spelling.
	second, err := reg.Acquire(context.Background(), filepath.Join(dir, ".", "sub", "..", "test.db"), "")
	if err != nil {
		t.Fatalf("second Acquire failed: %v", err)
	}

	if first != second {
		t.Error("expected the cached handle to be reused")
	}
	if reg.Len() != 1 {
		t.Errorf("expected 1 handle, got %d", reg.Len())
	}
}

func TestRegistry_AcquireMissingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "missing.db")

	reg := NewRegistry(DefaultConfig(), nil)
	defer reg.Close()

	_, err := reg.Acquire(context.Background(), path, "")
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if !errors.Is(err, ErrConnection) {
		t.Errorf("expected ErrConnection, got %v", err)
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected os.ErrNotExist in chain, got %v", err)
	}
	if _, statErr := os.Stat(path); !os.IsNotExist(statErr) {
		t.Error("missing file must not be created")
	}
	if reg.Len() != 0 {
		t.Errorf("failed open must not be cached, got %d handles", reg.Len())
	}
}

func TestRegistry_KeyPolicy(t *testing.T) {
	tests := []struct {
		name    string
		policy  KeyPolicy
		second  string
		wantErr error
	}{
		{"strict same key", KeyPolicyStrict, "alpha", nil},
		{"strict empty key reuses", KeyPolicyStrict, "", nil},
		{"strict different key", KeyPolicyStrict, "beta", ErrKeyMismatch},
		{"first-wins different key", KeyPolicyFirstWins, "beta", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := createDB(t, t.TempDir(), "test.db")

			cfg := DefaultConfig()
			cfg.KeyPolicy = tt.policy
			reg := NewRegistry(cfg, nil)
			reg.open = keylessOpener(nil)
			defer reg.Close()

			first, err := reg.Acquire(context.Background(), path, "alpha")
			if err != nil {
				t.Fatalf("first Acquire failed: %v", err)
			}
			if !first.Encrypted() {
				t.Error("handle opened with a key should report encrypted")
			}

			second, err := reg.Acquire(context.Background(), path, tt.second)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				if !errors.Is(err, ErrConnection) {
					t.Errorf("key mismatch should be a connection error, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("second Acquire failed: %v", err)
			}
			if first != second {
				t.Error("expected the cached handle")
			}
		})
	}
}

func TestRegistry_Release(t *testing.T) {
	path := createDB(t, t.TempDir(), "test.db")

	reg := NewRegistry(DefaultConfig(), nil)
	defer reg.Close()

	first, err := reg.Acquire(context.Background(), path, "")
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	if err := reg.Release(path); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if _, ok := reg.Get(path); ok {
		t.Error("handle should be gone after Release")
	}
	if err := first.DB.Ping(); err == nil {
		t.Error("released pool should be closed")
	}

	// Releasing again, or releasing something never opened, is a no-op.
	if err := reg.Release(path); err != nil {
		t.Errorf("second Release failed: %v", err)
	}
	if err := reg.Release(filepath.Join(t.TempDir(), "never.db")); err != nil {
		t.Errorf("Release of unknown path failed: %v", err)
	}

	again, err := reg.Acquire(context.Background(), path, "")
	if err != nil {
		t.Fatalf("re-Acquire failed: %v", err)
	}
	if again == first {
		t.Error("expected a fresh handle after Release")
	}
}

func TestRegistry_ConcurrentAcquire(t *testing.T) {
	path := createDB(t, t.TempDir(), "test.db")

	var opens atomic.Int32
	reg := NewRegistry(DefaultConfig(), nil)
	reg.open = keylessOpener(&opens)
	defer reg.Close()

	const workers = 16
	handles := make([]*Handle, workers)
	errs := make([]error, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			handles[i], errs[i] = reg.Acquire(context.Background(), path, "")
		}(i)
	}
	wg.Wait()

	for i := 0; i < workers; i++ {
		if errs[i] != nil {
			t.Fatalf("worker %d: %v", i, errs[i])
		}
		if handles[i] != handles[0] {
			t.Fatalf("worker %d got a different handle", i)
		}
	}
	if reg.Len() != 1 {
		t.Errorf("expected 1 handle, got %d", reg.Len())
	}
	if opens.Load() < 1 {
		t.Error("expected at least one open")
	}
}

func TestRegistry_ListAndStatus(t *testing.T) {
	dir := t.TempDir()
	a := createDB(t, dir, "a.db")
	b := createDB(t, dir, "b.db")

	reg := NewRegistry(DefaultConfig(), nil)
	defer reg.Close()

	for _, p := range []string{b, a} {
		if _, err := reg.Acquire(context.Background(), p, ""); err != nil {
			t.Fatalf("Acquire %s: %v", p, err)
		}
	}

	list := reg.List()
	if len(list) != 2 {
		t.Fatalf("expected 2 handles, got %d", len(list))
	}
	if filepath.Base(list[0].Path) != "a.db" || filepath.Base(list[1].Path) != "b.db" {
		t.Errorf("expected sorted paths, got %s, %s", list[0].Path, list[1].Path)
	}

	status := reg.Status(context.Background())
	if len(status) != 2 {
		t.Fatalf("expected 2 status entries, got %d", len(status))
	}
	for path, st := range status {
		if !st.Healthy {
			t.Errorf("%s unhealthy: %s", path, st.Error)
		}
		if st.Version == "" {
			t.Errorf("%s: missing sqlite version", path)
		}
	}
}

func TestRegistry_EvictIdle(t *testing.T) {
	dir := t.TempDir()
	stale := createDB(t, dir, "stale.db")
	fresh := createDB(t, dir, "fresh.db")

	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	reg := NewRegistry(DefaultConfig(), nil)
	reg.now = func() time.Time { return now }
	defer reg.Close()

	if _, err := reg.Acquire(context.Background(), stale, ""); err != nil {
		t.Fatal(err)
	}
	now = now.Add(time.Hour)
	if _, err := reg.Acquire(context.Background(), fresh, ""); err != nil {
		t.Fatal(err)
	}

	evicted := reg.EvictIdle(30 * time.Minute)
	if len(evicted) != 1 || filepath.Base(evicted[0]) != "stale.db" {
		t.Fatalf("expected stale.db evicted, got %v", evicted)
	}
	if _, ok := reg.Get(fresh); !ok {
		t.Error("fresh handle should survive")
	}
	if got := reg.EvictIdle(0); got != nil {
		t.Errorf("zero timeout must not evict, got %v", got)
	}
}

func TestJanitor_Sweep(t *testing.T) {
	path := createDB(t, t.TempDir(), "test.db")

	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	cfg := DefaultConfig()
	cfg.IdleTimeout = time.Minute
	reg := NewRegistry(cfg, nil)
	reg.now = func() time.Time { return now }
	defer reg.Close()

	if _, err := reg.Acquire(context.Background(), path, ""); err != nil {
		t.Fatal(err)
	}

	janitor := NewJanitor(reg, nil)
	if err := janitor.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer janitor.Stop(context.Background())

	if got := janitor.Sweep(); len(got) != 0 {
		t.Errorf("nothing is idle yet, evicted %v", got)
	}

	now = now.Add(2 * time.Minute)
	if got := janitor.Sweep(); len(got) != 1 {
		t.Errorf("expected one eviction, got %v", got)
	}
}

func TestJanitor_InvalidSchedule(t *testing.T) {
	cfg := DefaultConfig()
	cfg.JanitorSchedule = "every now and then"
	janitor := NewJanitor(NewRegistry(cfg, nil), nil)

	if err := janitor.Start(); err == nil {
		janitor.Stop(context.Background())
		t.Fatal("expected error for invalid schedule")
	}
}

func TestConfig_Effective(t *testing.T) {
	cfg := Config{MaxRowLimit: 50, DefaultRowLimit: 500}.Effective()

	if cfg.DefaultRowLimit != 50 {
		t.Errorf("default limit should be clamped to max, got %d", cfg.DefaultRowLimit)
	}
	if cfg.KeyPolicy != KeyPolicyStrict {
		t.Errorf("expected strict policy, got %s", cfg.KeyPolicy)
	}
	if cfg.BusyTimeout != 5000 {
		t.Errorf("expected busy timeout 5000, got %d", cfg.BusyTimeout)
	}
}

func TestErrors_Is(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		target error
	}{
		{"connection", &ConnectionError{Path: "x", Err: ErrKeyMismatch}, ErrConnection},
		{"connection cause", &ConnectionError{Path: "x", Err: ErrKeyMismatch}, ErrKeyMismatch},
		{"cipher alias", &ConnectionError{Path: "x", Err: backends.ErrCipherUnsupported}, ErrCipherUnsupported},
		{"not found", &NotFoundError{Name: "t"}, ErrNotFound},
		{"query", &QueryError{Err: ErrInvalidLimit}, ErrQuery},
		{"query cause", &QueryError{Err: ErrInvalidLimit}, ErrInvalidLimit},
		{"transaction", &TransactionError{Phase: "commit", Err: ErrCommitFailed}, ErrTransaction},
		{"transaction cause", &TransactionError{Phase: "commit", Err: ErrCommitFailed}, ErrCommitFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !errors.Is(tt.err, tt.target) {
				t.Errorf("errors.Is(%v, %v) = false", tt.err, tt.target)
			}
		})
	}

	if errors.Is(&QueryError{Err: errors.New("x")}, ErrTransaction) {
		t.Error("query error must not match ErrTransaction")
	}

	txErr := &TransactionError{Phase: "insert", Err: errors.New("boom"), RollbackErr: errors.New("disk")}
	if !txErr.StateUndefined() {
		t.Error("failed rollback should leave state undefined")
	}
}
