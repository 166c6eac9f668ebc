package workbench

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/t1000ln/sqlcipher-front/pkg/sqlfront/database"
)

const catalogQuery = "SELECT type, name, tbl_name, sql FROM sqlite_master ORDER BY name"

// Objects returns every schema object in the catalog, ordered by name.
func Objects(ctx context.Context, db DB) ([]ObjectDescriptor, error) {
	rows, err := db.QueryContext(ctx, catalogQuery)
	if err != nil {
		return nil, &database.QueryError{Statement: catalogQuery, Err: err}
	}
	defer rows.Close()

	var out []ObjectDescriptor
	for rows.Next() {
		obj, err := scanObject(rows)
		if err != nil {
			return nil, &database.QueryError{Statement: catalogQuery, Err: err}
		}
		out = append(out, obj)
	}
	if err := rows.Err(); err != nil {
		return nil, &database.QueryError{Statement: catalogQuery, Err: err}
	}
	return out, nil
}

// ListObjects partitions the catalog into table and view names.
func ListObjects(ctx context.Context, db DB) (*Catalog, error) {
	objects, err := Objects(ctx, db)
	if err != nil {
		return nil, err
	}

	cat := &Catalog{}
	for _, obj := range objects {
		switch obj.Kind {
		case ObjectTable:
			cat.Tables = append(cat.Tables, obj.Name)
		case ObjectView:
			cat.Views = append(cat.Views, obj.Name)
		}
	}
	return cat, nil
}

// ObjectDefinition returns the CREATE statement of the named object.
// Objects the engine creates implicitly, such as autoindexes, have none
// and yield "".
func ObjectDefinition(ctx context.Context, db DB, name string) (string, error) {
	obj, err := lookupObject(ctx, db, name)
	if err != nil {
		return "", err
	}
	return obj.SQL, nil
}

const lookupQuery = "SELECT type, name, tbl_name, sql FROM sqlite_master WHERE name = ? COLLATE NOCASE"

// lookupObject finds one catalog entry. Names compare case-insensitively,
// as they do in SQL.
func lookupObject(ctx context.Context, db DB, name string) (*ObjectDescriptor, error) {
	if name == "" {
		return nil, &database.NotFoundError{Name: name}
	}

	rows, err := db.QueryContext(ctx, lookupQuery, name)
	if err != nil {
		return nil, &database.QueryError{Statement: lookupQuery, Err: err}
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, &database.QueryError{Statement: lookupQuery, Err: err}
		}
		return nil, &database.NotFoundError{Name: name}
	}

	obj, err := scanObject(rows)
	if err != nil {
		return nil, &database.QueryError{Statement: lookupQuery, Err: err}
	}
	return &obj, nil
}

func scanObject(rows *sql.Rows) (ObjectDescriptor, error) {
	var (
		kind, name, table string
		ddl               sql.NullString
	)
	if err := rows.Scan(&kind, &name, &table, &ddl); err != nil {
		return ObjectDescriptor{}, fmt.Errorf("scan catalog row: %w", err)
	}
	return ObjectDescriptor{
		Kind:      ObjectKind(kind),
		Name:      name,
		TableName: table,
		SQL:       ddl.String,
	}, nil
}

// rowIDAliases are the names SQLite accepts for the row identifier. A
// column declared with one of these names hides that alias.
var rowIDAliases = []string{"rowid", "_rowid_", "oid"}

// rowIDColumn returns the name that addresses the rowid of obj, or "" when
// its rows carry none that can be reached. Views and WITHOUT ROWID tables
// have none, and neither does a table whose columns shadow every alias.
func rowIDColumn(ctx context.Context, db DB, obj *ObjectDescriptor, cols []Column) string {
	if obj.Kind != ObjectTable {
		return ""
	}
	alias := unshadowedAlias(cols)
	if alias == "" {
		return ""
	}

	withoutRowID, err := tableListWithoutRowID(ctx, db, obj.Name)
	if err == nil {
		if withoutRowID {
			return ""
		}
		return alias
	}

	// PRAGMA table_list needs SQLite 3.37. Older engines get a probe query.
	probe := "SELECT " + alias + " FROM " + quoteIdent(obj.Name) + " LIMIT 0"
	rows, err := db.QueryContext(ctx, probe)
	if err != nil {
		return ""
	}
	rows.Close()
	return alias
}

func unshadowedAlias(cols []Column) string {
	for _, alias := range rowIDAliases {
		if !slices.ContainsFunc(cols, func(c Column) bool { return strings.EqualFold(c.Name, alias) }) {
			return alias
		}
	}
	return ""
}

var errNoTableListRow = errors.New("no table_list row")

func tableListWithoutRowID(ctx context.Context, db DB, name string) (bool, error) {
	rows, err := db.QueryContext(ctx, "PRAGMA table_list("+quoteIdent(name)+")")
	if err != nil {
		return false, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			schema, tname, kind string
			ncol, wr, strict    int
		)
		if err := rows.Scan(&schema, &tname, &kind, &ncol, &wr, &strict); err != nil {
			return false, err
		}
		if schema == "main" {
			return wr != 0, nil
		}
	}
	if err := rows.Err(); err != nil {
		return false, err
	}
	return false, errNoTableListRow
}
