package workbench

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/t1000ln/sqlcipher-front/pkg/sqlfront/database"
)

// readPrefixes start every statement that returns rows.
var readPrefixes = []string{"select", "pragma", "explain"}

// Classify decides how a raw statement is executed by looking only at its
// leading keyword. Statements that start with a comment or a WITH clause
// are classified as writes even when they only read; run those through a
// SELECT instead.
func Classify(stmt string) StatementKind {
	s := strings.ToLower(strings.TrimSpace(stmt))
	for _, p := range readPrefixes {
		if strings.HasPrefix(s, p) {
			return KindRead
		}
	}
	return KindWrite
}

// Execute runs a raw statement. Reads return at most maxRows rows
// (maxRows <= 0 means no cap); writes return the engine's mutation summary.
func Execute(ctx context.Context, db DB, stmt string, maxRows int) (*StatementResult, error) {
	text := strings.TrimSpace(stmt)
	if text == "" {
		return nil, &database.QueryError{Err: errors.New("empty statement")}
	}

	if Classify(text) == KindRead {
		rs, err := query(ctx, db, text, maxRows)
		if err != nil {
			return nil, err
		}
		return &StatementResult{Kind: KindRead, RowSet: rs}, nil
	}

	ms, err := exec(ctx, db, text)
	if err != nil {
		return nil, err
	}
	return &StatementResult{Kind: KindWrite, Mutation: ms}, nil
}

func query(ctx context.Context, db DB, text string, maxRows int) (*RowSet, error) {
	rows, err := db.QueryContext(ctx, text)
	if err != nil {
		return nil, &database.QueryError{Statement: text, Err: err}
	}

	// Drivers convert DATE and BOOLEAN declared columns to Go values that
	// no longer say how the cell was stored. SELECTs that hit one are run
	// again through a wrapper that strips the declared types.
	var names []string
	if strings.HasPrefix(strings.ToLower(text), "select") {
		names = coercedColumns(rows)
	}
	if names != nil {
		rows.Close()
		rows, err = db.QueryContext(ctx, uncoercedQuery(text, len(names)))
		if err != nil {
			names = nil
			rows, err = db.QueryContext(ctx, text)
			if err != nil {
				return nil, &database.QueryError{Statement: text, Err: err}
			}
		}
	}
	defer rows.Close()

	columns, results, more, err := scanNamed(rows, names, maxRows)
	if err != nil {
		return nil, &database.QueryError{Statement: text, Err: err}
	}
	return &RowSet{Columns: columns, Rows: results, Truncated: more}, nil
}

func exec(ctx context.Context, db DB, text string) (*MutationSummary, error) {
	result, err := db.ExecContext(ctx, text)
	if err != nil {
		return nil, &database.QueryError{Statement: text, Err: err}
	}

	// The statement already ran; both drivers always report these.
	affected, _ := result.RowsAffected()
	lastID, _ := result.LastInsertId()

	return &MutationSummary{RowsAffected: affected, LastInsertID: lastID}, nil
}

// coercedColumns returns the result column names when any column has a
// declared type the driver converts, and nil otherwise.
func coercedColumns(rows *sql.Rows) []string {
	types, err := rows.ColumnTypes()
	if err != nil {
		return nil
	}
	for _, ct := range types {
		if coercedType(ct.DatabaseTypeName()) {
			names, err := rows.Columns()
			if err != nil {
				return nil
			}
			return names
		}
	}
	return nil
}

// uncoercedQuery wraps a SELECT so each of its n result columns passes
// through unary plus. The CTE column list renames them positionally, which
// also keeps duplicate names apart.
func uncoercedQuery(text string, n int) string {
	inner := strings.TrimRight(text, "; \t\r\n")
	cols := make([]string, n)
	outs := make([]string, n)
	for i := range n {
		cols[i] = fmt.Sprintf("c%d", i)
		outs[i] = "+" + cols[i]
	}
	return "WITH q(" + strings.Join(cols, ", ") + ") AS (" + inner + ") SELECT " + strings.Join(outs, ", ") + " FROM q"
}
