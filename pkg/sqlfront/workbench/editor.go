package workbench

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/t1000ln/sqlcipher-front/pkg/sqlfront/database"
)

// Edit phases, in execution order.
const (
	PhaseValidate = "validate"
	PhaseBegin    = "begin"
	PhaseDelete   = "delete"
	PhaseUpdate   = "update"
	PhaseInsert   = "insert"
	PhaseCommit   = "commit"
)

// maxDeleteParams bounds the rowids bound into one DELETE. Older SQLite
// builds cap host parameters at 999.
const maxDeleteParams = 500

type editStmt struct {
	phase string
	query string
	args  []any
}

// ApplyEdits runs deletes, then updates, then inserts against req.Table in
// one transaction. Every statement is built and every value checked before
// the transaction begins. The first failing statement rolls everything
// back; the caller sees the table exactly as it was, unless the returned
// TransactionError reports StateUndefined.
func ApplyEdits(ctx context.Context, db DB, req EditRequest) (*EditResult, error) {
	if req.Empty() {
		return &EditResult{}, nil
	}

	obj, err := lookupObject(ctx, db, req.Table)
	if err != nil {
		return nil, err
	}
	if obj.Kind != ObjectTable {
		return nil, &database.TransactionError{
			Table: req.Table,
			Phase: PhaseValidate,
			Err:   fmt.Errorf("%s %q is not a table", obj.Kind, obj.Name),
		}
	}

	var rowID string
	if len(req.Deletes) > 0 || len(req.Updates) > 0 {
		cols, err := tableInfo(ctx, db, obj.Name)
		if err != nil {
			return nil, err
		}
		if rowID = rowIDColumn(ctx, db, obj, cols); rowID == "" {
			return nil, &database.TransactionError{
				Table: obj.Name,
				Phase: PhaseValidate,
				Err:   fmt.Errorf("table %q has no addressable rowid", obj.Name),
			}
		}
	}

	stmts, err := planEdits(obj.Name, rowID, req)
	if err != nil {
		return nil, err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, &database.TransactionError{Table: obj.Name, Phase: PhaseBegin, Err: err}
	}

	result := &EditResult{}
	for _, s := range stmts {
		res, err := tx.ExecContext(ctx, s.query, s.args...)
		if err != nil {
			txErr := &database.TransactionError{
				Table:     obj.Name,
				Phase:     s.phase,
				Statement: s.query,
				Err:       err,
			}
			// ErrTxDone means database/sql already rolled back on ctx cancel.
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				txErr.RollbackErr = rbErr
			}
			return nil, txErr
		}

		n, _ := res.RowsAffected()
		switch s.phase {
		case PhaseDelete:
			result.Deleted += n
		case PhaseUpdate:
			result.Updated += n
		case PhaseInsert:
			result.Inserted += n
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, &database.TransactionError{
			Table: obj.Name,
			Phase: PhaseCommit,
			Err:   fmt.Errorf("%w: %w", database.ErrCommitFailed, err),
		}
	}

	return result, nil
}

// planEdits turns a request into statements. Row identifiers and values
// are bound; only the table and column names are written into the text.
// rowID is the alias that reaches the table's rowid.
func planEdits(table, rowID string, req EditRequest) ([]editStmt, error) {
	invalid := func(phase string, err error) error {
		return &database.TransactionError{Table: table, Phase: phase, Err: err}
	}
	qt := quoteIdent(table)

	var stmts []editStmt

	ids, err := parseRowIDs(req.Deletes)
	if err != nil {
		return nil, invalid(PhaseDelete, err)
	}
	for start := 0; start < len(ids); start += maxDeleteParams {
		end := min(start+maxDeleteParams, len(ids))
		chunk := ids[start:end]

		args := make([]any, len(chunk))
		for i, id := range chunk {
			args[i] = id
		}
		stmts = append(stmts, editStmt{
			phase: PhaseDelete,
			query: "DELETE FROM " + qt + " WHERE " + rowID + " IN (" + placeholders(len(chunk)) + ")",
			args:  args,
		})
	}

	updateIDs := make([]string, 0, len(req.Updates))
	for id := range req.Updates {
		updateIDs = append(updateIDs, id)
	}
	parsed, err := parseRowIDs(updateIDs)
	if err != nil {
		return nil, invalid(PhaseUpdate, err)
	}
	byID := make(map[int64]map[string]any, len(parsed))
	for i, id := range parsed {
		if _, dup := byID[id]; dup {
			return nil, invalid(PhaseUpdate, fmt.Errorf("%w: row %d listed twice", database.ErrInvalidRowID, id))
		}
		byID[id] = req.Updates[updateIDs[i]]
	}
	sort.Slice(parsed, func(i, j int) bool { return parsed[i] < parsed[j] })

	for _, id := range parsed {
		cols := sortedKeys(byID[id])
		if len(cols) == 0 {
			continue
		}

		sets := make([]string, len(cols))
		args := make([]any, 0, len(cols)+1)
		for i, col := range cols {
			v, err := bindValue(byID[id][col])
			if err != nil {
				return nil, invalid(PhaseUpdate, fmt.Errorf("row %d column %q: %w", id, col, err))
			}
			sets[i] = quoteIdent(col) + " = ?"
			args = append(args, v)
		}
		args = append(args, id)

		stmts = append(stmts, editStmt{
			phase: PhaseUpdate,
			query: "UPDATE " + qt + " SET " + strings.Join(sets, ", ") + " WHERE " + rowID + " = ?",
			args:  args,
		})
	}

	for n, row := range req.Inserts {
		cols := sortedKeys(row)
		if len(cols) == 0 {
			stmts = append(stmts, editStmt{phase: PhaseInsert, query: "INSERT INTO " + qt + " DEFAULT VALUES"})
			continue
		}

		names := make([]string, len(cols))
		args := make([]any, len(cols))
		for i, col := range cols {
			v, err := bindValue(row[col])
			if err != nil {
				return nil, invalid(PhaseInsert, fmt.Errorf("insert %d column %q: %w", n, col, err))
			}
			names[i] = quoteIdent(col)
			args[i] = v
		}

		stmts = append(stmts, editStmt{
			phase: PhaseInsert,
			query: "INSERT INTO " + qt + " (" + strings.Join(names, ", ") + ") VALUES (" + placeholders(len(cols)) + ")",
			args:  args,
		})
	}

	return stmts, nil
}

// parseRowIDs converts row identifier strings to integers, rejecting
// anything that is not a base-10 int64.
func parseRowIDs(ids []string) ([]int64, error) {
	out := make([]int64, len(ids))
	for i, s := range ids {
		id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", database.ErrInvalidRowID, s)
		}
		out[i] = id
	}
	return out, nil
}

// bindValue converts a decoded value into something both drivers bind as
// one of SQLite's storage classes.
func bindValue(v any) (any, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case bool:
		if x {
			return int64(1), nil
		}
		return int64(0), nil
	case int:
		return int64(x), nil
	case int8:
		return int64(x), nil
	case int16:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case int64:
		return x, nil
	case uint:
		return uintValue(uint64(x))
	case uint8:
		return int64(x), nil
	case uint16:
		return int64(x), nil
	case uint32:
		return int64(x), nil
	case uint64:
		return uintValue(x)
	case float32:
		return float64(x), nil
	case float64:
		return x, nil
	case string:
		return x, nil
	case []byte:
		return x, nil
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i, nil
		}
		f, err := x.Float64()
		if err != nil {
			return nil, fmt.Errorf("invalid number %q", x.String())
		}
		return f, nil
	default:
		return nil, fmt.Errorf("unsupported value type %T", v)
	}
}

func uintValue(u uint64) (any, error) {
	if u > math.MaxInt64 {
		return nil, fmt.Errorf("integer %d overflows int64", u)
	}
	return int64(u), nil
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
