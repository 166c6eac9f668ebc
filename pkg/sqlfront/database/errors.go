package database

import (
	"errors"
	"fmt"

	"github.com/t1000ln/sqlcipher-front/pkg/sqlfront/database/backends"
)

// Sentinel errors for the four failure categories. Typed errors below match
// them through errors.Is.
var (
	// ErrConnection indicates an open/auth failure: missing file, bad key, or unrecognized format.
	ErrConnection = errors.New("connection error")
	// ErrNotFound indicates an unknown table, view, or other schema object.
	ErrNotFound = errors.New("not found")
	// ErrQuery indicates a malformed or failing statement.
	ErrQuery = errors.New("query error")
	// ErrTransaction indicates a failed batch edit.
	ErrTransaction = errors.New("transaction error")
)

// Causes carried inside the typed errors.
var (
	// ErrKeyMismatch is returned on a cache hit whose key differs from the key the handle was opened with.
	ErrKeyMismatch = errors.New("decryption key does not match the open connection")
	// ErrCipherUnsupported is returned when a key is supplied but the linked SQLite has no SQLCipher.
	ErrCipherUnsupported = backends.ErrCipherUnsupported
	// ErrInvalidLimit is returned for a non-positive row limit.
	ErrInvalidLimit = errors.New("row limit must be a positive integer")
	// ErrInvalidRowID is returned for a row identifier that is not a base-10 integer.
	ErrInvalidRowID = errors.New("invalid row identifier")
	// ErrCommitFailed is returned when the commit call itself fails.
	ErrCommitFailed = errors.New("commit failed")
)

// ConnectionError reports a failure to open or reuse a session for Path.
type ConnectionError struct {
	Path string
	Err  error
}

func (e *ConnectionError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("open %s: connection error", e.Path)
	}
	return fmt.Sprintf("open %s: %v", e.Path, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

func (e *ConnectionError) Is(target error) bool { return target == ErrConnection }

// NotFoundError reports a schema object that does not exist.
type NotFoundError struct {
	Kind string // "object", "table", ...
	Name string
}

func (e *NotFoundError) Error() string {
	kind := e.Kind
	if kind == "" {
		kind = "object"
	}
	return fmt.Sprintf("%s not found: %s", kind, e.Name)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// QueryError wraps an engine failure together with the statement that caused it.
type QueryError struct {
	Statement string
	Err       error
}

func (e *QueryError) Error() string {
	if e.Statement == "" {
		return fmt.Sprintf("query failed: %v", e.Err)
	}
	return fmt.Sprintf("query failed: %v [statement: %s]", e.Err, e.Statement)
}

func (e *QueryError) Unwrap() error { return e.Err }

func (e *QueryError) Is(target error) bool { return target == ErrQuery }

// TransactionError reports a failed batch edit. Phase is one of
// "validate", "begin", "delete", "update", "insert", or "commit".
//
// When RollbackErr is set the rollback itself failed and the table's state
// must be treated as undefined until re-read.
type TransactionError struct {
	Table       string
	Phase       string
	Statement   string
	Err         error
	RollbackErr error
}

func (e *TransactionError) Error() string {
	msg := fmt.Sprintf("edit %s: %s phase: %v", e.Table, e.Phase, e.Err)
	if e.Statement != "" {
		msg += fmt.Sprintf(" [statement: %s]", e.Statement)
	}
	if e.RollbackErr != nil {
		msg += fmt.Sprintf(" (rollback failed: %v)", e.RollbackErr)
	}
	return msg
}

func (e *TransactionError) Unwrap() error { return e.Err }

func (e *TransactionError) Is(target error) bool { return target == ErrTransaction }

// StateUndefined reports whether the rollback failed after the original error.
func (e *TransactionError) StateUndefined() bool { return e.RollbackErr != nil }
