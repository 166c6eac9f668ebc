// Package backends opens SQLite and SQLCipher database files for the
// workbench. The driver is chosen at build time:
//
//   - Default (CGO): github.com/mattn/go-sqlite3. Build with
//     -tags "libsqlite3" against a SQLCipher library to open encrypted files.
//   - Pure Go (-tags purego_sqlite): modernc.org/sqlite. Encrypted files are
//     rejected with ErrCipherUnsupported.
package backends

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ErrCipherUnsupported is returned when a key is supplied but the linked
// SQLite library has no SQLCipher support and would silently ignore it.
var ErrCipherUnsupported = errors.New("sqlite build does not support encryption")

// plainHeader is the magic string at the start of every unencrypted SQLite file.
var plainHeader = []byte("SQLite format 3\x00")

// SQLiteBackend wraps an open database file.
type SQLiteBackend struct {
	DB     *sql.DB
	Config SQLiteConfig

	// Health checker
	Health *SQLiteHealthChecker
}

// SQLiteConfig holds the settings for one database file.
type SQLiteConfig struct {
	Path string

	// Key is the SQLCipher passphrase. Empty opens the file unencrypted.
	Key string

	// Create allows a missing file to be created. The workbench never sets it.
	Create bool

	JournalMode  string
	BusyTimeout  int
	ForeignKeys  bool
	MaxOpenConns int
}

// DriverName returns the database/sql driver name in use.
func DriverName() string {
	return driverName
}

// DriverType returns "cgo" for mattn/go-sqlite3 and "purego" for modernc.org/sqlite.
func DriverType() string {
	return driverType
}

// DriverPackage returns the import path of the underlying driver.
func DriverPackage() string {
	return driverPackage
}

// OpenSQLite opens an existing SQLite database file with the given configuration.
// The key, when present, is applied on every pooled connection before any
// other statement runs.
func OpenSQLite(ctx context.Context, config SQLiteConfig) (*SQLiteBackend, error) {
	if config.Path == "" {
		return nil, errors.New("database path required")
	}
	if config.BusyTimeout == 0 {
		config.BusyTimeout = 5000
	}

	if !config.Create {
		info, err := os.Stat(config.Path)
		if err != nil {
			return nil, fmt.Errorf("stat database file: %w", err)
		}
		if info.IsDir() {
			return nil, fmt.Errorf("%s is a directory", config.Path)
		}
	}

	conn, err := newConnector(DriverName(), FileURI(config.Path, config.Create), connectPragmas(config))
	if err != nil {
		return nil, err
	}

	db := sql.OpenDB(conn)
	if config.MaxOpenConns > 0 {
		db.SetMaxOpenConns(config.MaxOpenConns)
		db.SetMaxIdleConns(config.MaxOpenConns)
	}

	if config.Key != "" {
		if err := checkCipher(ctx, db); err != nil {
			db.Close()
			return nil, err
		}
	}

	// Touching sqlite_master is what surfaces a wrong key or a file that is
	// not a database at all.
	var count int
	if err := db.QueryRowContext(ctx, "SELECT count(*) FROM sqlite_master").Scan(&count); err != nil {
		db.Close()
		return nil, fmt.Errorf("verify database: %w", err)
	}

	return &SQLiteBackend{
		DB:     db,
		Config: config,
		Health: NewSQLiteHealthChecker(db),
	}, nil
}

// Close closes the database connection.
func (b *SQLiteBackend) Close() error {
	return b.DB.Close()
}

// connectPragmas lists the per-connection statements, key first.
func connectPragmas(config SQLiteConfig) []pragma {
	var out []pragma
	if config.Key != "" {
		out = append(out, pragma{name: "key", stmt: "PRAGMA key = " + QuoteLiteral(config.Key)})
	}
	out = append(out, pragma{name: "busy_timeout", stmt: fmt.Sprintf("PRAGMA busy_timeout = %d", config.BusyTimeout)})
	if config.ForeignKeys {
		out = append(out, pragma{name: "foreign_keys", stmt: "PRAGMA foreign_keys = ON"})
	}
	if config.JournalMode != "" {
		out = append(out, pragma{name: "journal_mode", stmt: "PRAGMA journal_mode = " + QuoteLiteral(config.JournalMode)})
	}
	return out
}

func checkCipher(ctx context.Context, db *sql.DB) error {
	var version string
	err := db.QueryRowContext(ctx, "PRAGMA cipher_version").Scan(&version)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && version == "") {
		return ErrCipherUnsupported
	}
	if err != nil {
		return fmt.Errorf("query cipher version: %w", err)
	}
	return nil
}

// FileURI builds a SQLite URI filename. mode=rw refuses to create a missing
// file; mode=rwc allows it.
func FileURI(path string, create bool) string {
	p := filepath.ToSlash(path)
	p = strings.NewReplacer("%", "%25", "?", "%3f", "#", "%23").Replace(p)
	if filepath.VolumeName(path) != "" && !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	mode := "rw"
	if create {
		mode = "rwc"
	}
	return "file:" + p + "?mode=" + mode
}

// QuoteLiteral renders s as a single-quoted SQL string literal.
func QuoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// QuoteIdent renders s as a double-quoted SQL identifier.
func QuoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// LooksEncrypted reports whether the file at path lacks the plain SQLite
// header. Empty files count as plain databases.
func LooksEncrypted(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()

	header := make([]byte, len(plainHeader))
	n, err := io.ReadFull(f, header)
	if err != nil {
		if n == 0 && (errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)) {
			return false, nil
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return true, nil
		}
		return false, err
	}
	return !bytes.Equal(header, plainHeader), nil
}

// SQLiteHealthChecker monitors SQLite database health.
type SQLiteHealthChecker struct {
	db *sql.DB
}

// NewSQLiteHealthChecker creates a new health checker.
func NewSQLiteHealthChecker(db *sql.DB) *SQLiteHealthChecker {
	return &SQLiteHealthChecker{db: db}
}

// Ping checks database connectivity.
func (h *SQLiteHealthChecker) Ping(ctx context.Context) error {
	return h.db.PingContext(ctx)
}

// Status describes the engine and pool behind one handle.
type Status struct {
	Version       string
	CipherVersion string
	Stats         sql.DBStats
}

// Status returns detailed health status.
func (h *SQLiteHealthChecker) Status(ctx context.Context) (Status, error) {
	st := Status{Stats: h.db.Stats()}

	if err := h.db.QueryRowContext(ctx, "SELECT sqlite_version()").Scan(&st.Version); err != nil {
		return st, err
	}

	// cipher_version yields no row on plain SQLite builds.
	var cipher sql.NullString
	if err := h.db.QueryRowContext(ctx, "PRAGMA cipher_version").Scan(&cipher); err == nil {
		st.CipherVersion = cipher.String
	}

	return st, nil
}
