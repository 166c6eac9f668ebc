package backends

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func createPlainDB(t *testing.T, path string) {
	t.Helper()
	db, err := sql.Open(DriverName(), FileURI(path, true))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()
	if _, err := db.Exec("CREATE TABLE t (id INTEGER PRIMARY KEY, name TEXT)"); err != nil {
		t.Fatalf("create table: %v", err)
	}
}

func TestOpenSQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	createPlainDB(t, path)

	backend, err := OpenSQLite(context.Background(), SQLiteConfig{
		Path:        path,
		BusyTimeout: 5000,
		ForeignKeys: true,
	})
	if err != nil {
		t.Fatalf("OpenSQLite failed: %v", err)
	}
	defer backend.Close()

	if backend.DB == nil {
		t.Fatal("DB is nil")
	}

	var fk int
	if err := backend.DB.QueryRow("PRAGMA foreign_keys").Scan(&fk); err != nil {
		t.Fatalf("read foreign_keys: %v", err)
	}
	if fk != 1 {
		t.Errorf("expected foreign_keys=1, got %d", fk)
	}
}

func TestOpenSQLite_MissingFileNotCreated(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.db")

	_, err := OpenSQLite(context.Background(), SQLiteConfig{Path: path})
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected os.ErrNotExist, got %v", err)
	}
	if _, statErr := os.Stat(path); !os.IsNotExist(statErr) {
		t.Error("opening a missing file must not create it")
	}
}

func TestOpenSQLite_CreateAllowed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "new.db")

	backend, err := OpenSQLite(context.Background(), SQLiteConfig{Path: path, Create: true})
	if err != nil {
		t.Fatalf("OpenSQLite with Create failed: %v", err)
	}
	backend.Close()

	if _, err := os.Stat(path); err != nil {
		t.Errorf("expected file to exist: %v", err)
	}
}

func TestOpenSQLite_NotADatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "garbage.db")
	garbage := make([]byte, 4096)
	for i := range garbage {
		garbage[i] = byte(i * 7)
	}
	if err := os.WriteFile(path, garbage, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	_, err := OpenSQLite(context.Background(), SQLiteConfig{Path: path})
	if err == nil {
		t.Fatal("expected error for non-database file")
	}
}

func TestOpenSQLite_KeyOnPlainBuild(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	backend, err := OpenSQLite(context.Background(), SQLiteConfig{Path: path, Key: "secret", Create: true})
	if errors.Is(err, ErrCipherUnsupported) {
		return
	}
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer backend.Close()

	status, err := backend.Health.Status(context.Background())
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if status.CipherVersion == "" {
		t.Error("key accepted without a cipher-capable engine")
	}
}

func TestSQLiteBackend_Health(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	createPlainDB(t, path)

	backend, err := OpenSQLite(context.Background(), SQLiteConfig{Path: path})
	if err != nil {
		t.Fatalf("OpenSQLite failed: %v", err)
	}
	defer backend.Close()

	if err := backend.Health.Ping(context.Background()); err != nil {
		t.Fatalf("Ping failed: %v", err)
	}

	status, err := backend.Health.Status(context.Background())
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if status.Version == "" {
		t.Error("expected sqlite version")
	}
}

func TestLooksEncrypted(t *testing.T) {
	dir := t.TempDir()

	plain := filepath.Join(dir, "plain.db")
	createPlainDB(t, plain)

	empty := filepath.Join(dir, "empty.db")
	if err := os.WriteFile(empty, nil, 0o600); err != nil {
		t.Fatal(err)
	}

	random := filepath.Join(dir, "random.db")
	if err := os.WriteFile(random, []byte("0123456789abcdefghijklmnop"), 0o600); err != nil {
		t.Fatal(err)
	}

	short := filepath.Join(dir, "short.db")
	if err := os.WriteFile(short, []byte("xyz"), 0o600); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		path string
		want bool
	}{
		{"plain", plain, false},
		{"empty", empty, false},
		{"random", random, true},
		{"short", short, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := LooksEncrypted(tt.path)
			if err != nil {
				t.Fatalf("LooksEncrypted: %v", err)
			}
			if got != tt.want {
				t.Errorf("LooksEncrypted(%s) = %v, want %v", tt.name, got, tt.want)
			}
		})
	}

	if _, err := LooksEncrypted(filepath.Join(dir, "nope.db")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestFileURI(t *testing.T) {
	tests := []struct {
		path   string
		create bool
		want   string
	}{
		{"/tmp/a.db", false, "file:/tmp/a.db?mode=rw"},
		{"/tmp/a.db", true, "file:/tmp/a.db?mode=rwc"},
		{"/tmp/what?.db", false, "file:/tmp/what%3f.db?mode=rw"},
		{"/tmp/50%#1.db", false, "file:/tmp/50%25%231.db?mode=rw"},
	}
	for _, tt := range tests {
		if got := FileURI(tt.path, tt.create); got != tt.want {
			t.Errorf("FileURI(%q, %v) = %q, want %q", tt.path, tt.create, got, tt.want)
		}
	}
}

func TestQuoting(t *testing.T) {
	if got := QuoteIdent(`my "table"`); got != `"my ""table"""` {
		t.Errorf("QuoteIdent = %s", got)
	}
	if got := QuoteLiteral("it's"); got != `'it''s'` {
		t.Errorf("QuoteLiteral = %s", got)
	}
}

func TestConnectPragmas_KeyFirst(t *testing.T) {
	pragmas := connectPragmas(SQLiteConfig{Key: "k", BusyTimeout: 100, ForeignKeys: true, JournalMode: "WAL"})
	if len(pragmas) != 4 {
		t.Fatalf("expected 4 pragmas, got %d", len(pragmas))
	}
	if pragmas[0].name != "key" {
		t.Errorf("key must be applied first, got %s", pragmas[0].name)
	}

	pragmas = connectPragmas(SQLiteConfig{BusyTimeout: 100})
	for _, p := range pragmas {
		if p.name == "key" || p.name == "journal_mode" {
			t.Errorf("unexpected pragma %s", p.name)
		}
	}
}
