package workbench

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/t1000ln/sqlcipher-front/pkg/sqlfront/database"
	"github.com/t1000ln/sqlcipher-front/pkg/sqlfront/database/backends"
)

var quoteIdent = backends.QuoteIdent

// Columns returns the column metadata of a table or view in physical order.
func Columns(ctx context.Context, db DB, name string) ([]Column, error) {
	obj, err := lookupObject(ctx, db, name)
	if err != nil {
		return nil, err
	}
	if err := requireRelation(obj); err != nil {
		return nil, err
	}
	return tableInfo(ctx, db, obj.Name)
}

func tableInfo(ctx context.Context, db DB, name string) ([]Column, error) {
	query := "PRAGMA table_info(" + quoteIdent(name) + ")"
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, &database.QueryError{Statement: query, Err: err}
	}
	defer rows.Close()

	var cols []Column
	for rows.Next() {
		var (
			cid      int
			col      Column
			ctype    sql.NullString
			notNull  int
			defValue sql.NullString
		)
		if err := rows.Scan(&cid, &col.Name, &ctype, &notNull, &defValue, &col.PrimaryKey); err != nil {
			return nil, &database.QueryError{Statement: query, Err: fmt.Errorf("scan column: %w", err)}
		}
		col.DeclaredType = ctype.String
		col.NotNull = notNull != 0
		if defValue.Valid {
			d := defValue.String
			col.Default = &d
		}
		cols = append(cols, col)
	}
	if err := rows.Err(); err != nil {
		return nil, &database.QueryError{Statement: query, Err: err}
	}
	return cols, nil
}

// ReadRows returns up to limit rows of a table or view. Table rows carry
// their rowid under RowIDField. A limit above maxLimit is clamped and the
// result is marked truncated; maxLimit <= 0 means no cap.
func ReadRows(ctx context.Context, db DB, name string, limit, maxLimit int) (*TableData, error) {
	if limit <= 0 {
		return nil, &database.QueryError{Err: fmt.Errorf("%w: got %d reading %q", database.ErrInvalidLimit, limit, name)}
	}

	obj, err := lookupObject(ctx, db, name)
	if err != nil {
		return nil, err
	}
	if err := requireRelation(obj); err != nil {
		return nil, err
	}

	cols, err := tableInfo(ctx, db, obj.Name)
	if err != nil {
		return nil, err
	}

	rowID := rowIDColumn(ctx, db, obj, cols)
	data := &TableData{
		Columns:  cols,
		HasRowID: rowID != "",
		Limit:    limit,
	}
	if maxLimit > 0 && limit > maxLimit {
		data.Limit = maxLimit
		data.Truncated = true
	}

	query := "SELECT " + selectList(cols, rowID) + " FROM " + quoteIdent(obj.Name) + " LIMIT ?"

	rows, err := db.QueryContext(ctx, query, data.Limit)
	if err != nil {
		return nil, &database.QueryError{Statement: query, Err: err}
	}
	defer rows.Close()

	_, data.Rows, _, err = scanRows(rows, data.Limit)
	if err != nil {
		return nil, &database.QueryError{Statement: query, Err: err}
	}
	return data, nil
}

// selectList projects every column through unary plus. Value and storage
// class are unchanged, but the result has no declared type, so drivers keep
// DATE or BOOLEAN columns as stored instead of converting them.
func selectList(cols []Column, rowID string) string {
	items := make([]string, 0, len(cols)+1)
	if rowID != "" {
		items = append(items, rowID+" AS "+quoteIdent(RowIDField))
	}
	for _, c := range cols {
		q := quoteIdent(c.Name)
		items = append(items, "+"+q+" AS "+q)
	}
	if len(items) == 0 {
		return "*"
	}
	return strings.Join(items, ", ")
}

func requireRelation(obj *ObjectDescriptor) error {
	if obj.Kind == ObjectTable || obj.Kind == ObjectView {
		return nil
	}
	return &database.QueryError{Err: fmt.Errorf("%s %q is not a table or view", obj.Kind, obj.Name)}
}

// scanRows reads at most max rows (max <= 0 reads all) and reports whether
// more were available.
func scanRows(rows *sql.Rows, max int) ([]string, []Row, bool, error) {
	return scanNamed(rows, nil, max)
}

// scanNamed is scanRows with the result columns renamed to names, which
// must match them in number. A nil names keeps the driver's names.
func scanNamed(rows *sql.Rows, names []string, max int) ([]string, []Row, bool, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, nil, false, fmt.Errorf("get columns: %w", err)
	}
	if names != nil {
		if len(names) != len(columns) {
			return nil, nil, false, fmt.Errorf("expected %d columns, got %d", len(names), len(columns))
		}
		columns = names
	}

	results := []Row{}
	more := false
	for rows.Next() {
		if max > 0 && len(results) >= max {
			more = true
			break
		}

		values := make([]any, len(columns))
		valuePtrs := make([]any, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}

		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, nil, false, fmt.Errorf("scan row: %w", err)
		}

		row := make(Row, len(columns))
		for i, col := range columns {
			row[col] = normalize(values[i])
		}
		results = append(results, row)
	}

	if err := rows.Err(); err != nil {
		return nil, nil, false, fmt.Errorf("rows error: %w", err)
	}

	return columns, results, more, nil
}
