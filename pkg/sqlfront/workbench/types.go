// Package workbench inspects, reads, queries, and edits an open SQLite
// database. The free functions work on any DB; Workbench ties them to a
// database.Registry and exposes path-addressed operations that never hand
// a connection to the caller.
package workbench

import (
	"context"
	"database/sql"
	"strings"
	"time"
)

// DB is the subset of *sql.DB the workbench needs.
type DB interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

// ObjectKind is the sqlite_master type of a schema object.
type ObjectKind string

const (
	ObjectTable   ObjectKind = "table"
	ObjectView    ObjectKind = "view"
	ObjectIndex   ObjectKind = "index"
	ObjectTrigger ObjectKind = "trigger"
)

// ObjectDescriptor is one row of the system catalog.
type ObjectDescriptor struct {
	Kind      ObjectKind `json:"kind"`
	Name      string     `json:"name"`
	TableName string     `json:"table_name"`
	SQL       string     `json:"sql"`
}

// Catalog lists table and view names. A nil slice means there are none
// of that kind.
type Catalog struct {
	Tables []string `json:"table_names,omitempty"`
	Views  []string `json:"view_names,omitempty"`
}

// Column describes one column of a table or view in physical order.
type Column struct {
	Name         string  `json:"name"`
	DeclaredType string  `json:"data_type"`
	NotNull      bool    `json:"not_null"`
	Default      *string `json:"default,omitempty"`
	PrimaryKey   int     `json:"primary_key"`
}

// Row maps column names to nil, int64, float64, string, or []byte.
type Row map[string]any

// RowIDField names the synthetic row identifier column in table reads.
// The name cannot collide with SQLite's own rowid aliases.
const RowIDField = "__rowid__"

// TableData is a bounded page of rows from one table or view.
type TableData struct {
	Columns []Column `json:"cols"`
	Rows    []Row    `json:"rows"`

	// HasRowID is false for views and WITHOUT ROWID tables.
	HasRowID bool `json:"has_rowid"`

	// Limit is the row limit actually applied.
	Limit int `json:"limit"`

	// Truncated is set when the requested limit exceeded the configured maximum.
	Truncated bool `json:"truncated,omitempty"`
}

// StatementKind is the lexical classification of a raw statement.
type StatementKind string

const (
	KindRead  StatementKind = "read"
	KindWrite StatementKind = "write"
)

// RowSet is the result of a read statement.
type RowSet struct {
	Columns   []string `json:"columns"`
	Rows      []Row    `json:"rows"`
	Truncated bool     `json:"truncated,omitempty"`
}

// MutationSummary is the result of a write statement.
type MutationSummary struct {
	RowsAffected int64 `json:"rows_affected"`
	LastInsertID int64 `json:"last_insert_id"`
}

// StatementResult holds exactly one of RowSet or Mutation, matching Kind.
type StatementResult struct {
	Kind     StatementKind    `json:"kind"`
	RowSet   *RowSet          `json:"row_set,omitempty"`
	Mutation *MutationSummary `json:"mutation,omitempty"`
}

// EditRequest is one atomic batch of row changes against Table.
//
// Row identifiers are base-10 integers as strings. Updates map a row
// identifier to the columns to set on that row.
type EditRequest struct {
	Table   string                    `json:"table"`
	Key     string                    `json:"key,omitempty"`
	Deletes []string                  `json:"deletes,omitempty"`
	Updates map[string]map[string]any `json:"updates,omitempty"`
	Inserts []map[string]any          `json:"inserts,omitempty"`
}

// Empty reports whether the request changes nothing.
func (r EditRequest) Empty() bool {
	return len(r.Deletes) == 0 && len(r.Updates) == 0 && len(r.Inserts) == 0
}

// EditResult counts the rows touched by a committed batch.
type EditResult struct {
	Deleted  int64 `json:"deleted"`
	Updated  int64 `json:"updated"`
	Inserted int64 `json:"inserted"`
}

// OpenResult is what opening a database reports.
type OpenResult struct {
	Path string `json:"db_path"`
	Catalog
}

// timeLayout renders driver-parsed DATE/DATETIME values back to text.
const timeLayout = "2006-01-02 15:04:05.999999999-07:00"

// coercedType reports whether a declared column type makes a driver return
// time.Time or bool instead of the stored value.
func coercedType(decl string) bool {
	d := strings.ToUpper(decl)
	return strings.Contains(d, "DATE") || strings.Contains(d, "TIME") || strings.Contains(d, "BOOL")
}

// normalize maps a scanned driver value onto the five SQLite storage classes.
func normalize(v any) any {
	switch x := v.(type) {
	case nil, int64, float64, string:
		return x
	case []byte:
		return x
	case bool:
		if x {
			return int64(1)
		}
		return int64(0)
	case time.Time:
		return x.Format(timeLayout)
	case int:
		return int64(x)
	case int32:
		return int64(x)
	case float32:
		return float64(x)
	default:
		return x
	}
}
