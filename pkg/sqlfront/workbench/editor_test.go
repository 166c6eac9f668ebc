package workbench

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"strconv"
	"strings"
	"testing"

	"github.com/t1000ln/sqlcipher-front/pkg/sqlfront/database"
)

// snapshot reads every items row ordered by id.
func snapshot(t *testing.T, wb *Workbench, path string) []Row {
	t.Helper()
	res, err := wb.RunStatement(context.Background(), path, "SELECT * FROM items ORDER BY id", "")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	return res.RowSet.Rows
}

func rowByID(rows []Row, id int64) Row {
	for _, r := range rows {
		if r["id"] == id {
			return r
		}
	}
	return nil
}

func TestWorkbench_EditRows(t *testing.T) {
	wb, path := newFixture(t, database.DefaultConfig())
	ctx := context.Background()
	before := snapshot(t, wb, path)

	res, err := wb.EditRows(ctx, path, EditRequest{
		Table:   "items",
		Deletes: []string{"5", "6"},
		Updates: map[string]map[string]any{"7": {"name": "x"}},
		Inserts: []map[string]any{{"name": "y"}},
	})
	if err != nil {
		t.Fatalf("EditRows failed: %v", err)
	}
	if res.Deleted != 2 || res.Updated != 1 || res.Inserted != 1 {
		t.Errorf("unexpected counts: %+v", res)
	}

	after := snapshot(t, wb, path)
	if len(after) != len(before)-1 {
		t.Errorf("expected %d rows, got %d", len(before)-1, len(after))
	}
	if rowByID(after, 5) != nil || rowByID(after, 6) != nil {
		t.Error("rows 5 and 6 should be deleted")
	}
	if r := rowByID(after, 7); r == nil || r["name"] != "x" {
		t.Errorf("row 7 = %v", r)
	}

	var ys int
	for _, r := range after {
		if r["name"] == "y" {
			ys++
		}
	}
	if ys != 1 {
		t.Errorf("expected exactly one new row named y, got %d", ys)
	}
}

func TestWorkbench_EditRowsAtomicOnFailure(t *testing.T) {
	wb, path := newFixture(t, database.DefaultConfig())
	before := snapshot(t, wb, path)

	_, err := wb.EditRows(context.Background(), path, EditRequest{
		Table:   "items",
		Deletes: []string{"5", "6"},
		Updates: map[string]map[string]any{"7": {"name": "x"}},
		// n1 already exists and name is UNIQUE.
		Inserts: []map[string]any{{"name": "y"}, {"name": "n1"}},
	})
	if !errors.Is(err, database.ErrTransaction) {
		t.Fatalf("expected ErrTransaction, got %v", err)
	}

	var txErr *database.TransactionError
	if !errors.As(err, &txErr) {
		t.Fatalf("expected TransactionError, got %T", err)
	}
	if txErr.Phase != PhaseInsert {
		t.Errorf("expected insert phase, got %s", txErr.Phase)
	}
	if txErr.StateUndefined() {
		t.Errorf("rollback should have succeeded: %v", txErr.RollbackErr)
	}
	if !strings.Contains(txErr.Statement, "INSERT INTO") {
		t.Errorf("statement not reported: %q", txErr.Statement)
	}

	if after := snapshot(t, wb, path); !reflect.DeepEqual(before, after) {
		t.Error("table changed after a failed edit")
	}
}

func TestWorkbench_EditRowsCommitFailure(t *testing.T) {
	wb, path := newScriptFixture(t, `
CREATE TABLE parent (id INTEGER PRIMARY KEY);
CREATE TABLE child (id INTEGER PRIMARY KEY, parent_id INTEGER REFERENCES parent(id) DEFERRABLE INITIALLY DEFERRED);
INSERT INTO parent (id) VALUES (1);
`)
	ctx := context.Background()

	countChildren := func() int {
		t.Helper()
		res, err := wb.RunStatement(ctx, path, "SELECT count(*) AS n FROM child", "")
		if err != nil {
			t.Fatalf("count: %v", err)
		}
		return int(res.RowSet.Rows[0]["n"].(int64))
	}

	// The orphan insert succeeds; the deferred key check fails at COMMIT.
	_, err := wb.EditRows(ctx, path, EditRequest{
		Table:   "child",
		Inserts: []map[string]any{{"parent_id": 99}},
	})
	if !errors.Is(err, database.ErrCommitFailed) {
		t.Fatalf("expected ErrCommitFailed, got %v", err)
	}
	var txErr *database.TransactionError
	if !errors.As(err, &txErr) || txErr.Phase != PhaseCommit {
		t.Fatalf("expected commit-phase TransactionError, got %v", err)
	}
	if n := countChildren(); n != 0 {
		t.Errorf("expected no rows after failed commit, got %d", n)
	}

	res, err := wb.EditRows(ctx, path, EditRequest{
		Table:   "child",
		Inserts: []map[string]any{{"parent_id": 1}},
	})
	if err != nil {
		t.Fatalf("follow-up edit failed: %v", err)
	}
	if res.Inserted != 1 || countChildren() != 1 {
		t.Errorf("follow-up edit: %+v, rows = %d", res, countChildren())
	}
}

func TestWorkbench_EditRowsValidation(t *testing.T) {
	wb, path := newFixture(t, database.DefaultConfig())
	ctx := context.Background()

	tests := []struct {
		name string
		req  EditRequest
		want error
	}{
		{
			name: "injection in delete id",
			req:  EditRequest{Table: "items", Deletes: []string{"1) OR (1=1"}},
			want: database.ErrInvalidRowID,
		},
		{
			name: "non-numeric update id",
			req:  EditRequest{Table: "items", Updates: map[string]map[string]any{"abc": {"name": "z"}}},
			want: database.ErrInvalidRowID,
		},
		{
			name: "duplicate update id",
			req: EditRequest{Table: "items", Updates: map[string]map[string]any{
				"3": {"name": "a"}, "03": {"name": "b"},
			}},
			want: database.ErrInvalidRowID,
		},
		{
			name: "unsupported value",
			req:  EditRequest{Table: "items", Inserts: []map[string]any{{"name": struct{}{}}}},
			want: database.ErrTransaction,
		},
		{
			name: "view target",
			req:  EditRequest{Table: "v_items", Inserts: []map[string]any{{"name": "z"}}},
			want: database.ErrTransaction,
		},
		{
			name: "without rowid delete",
			req:  EditRequest{Table: "kv", Deletes: []string{"1"}},
			want: database.ErrTransaction,
		},
		{
			name: "unknown table",
			req:  EditRequest{Table: "ghost", Deletes: []string{"1"}},
			want: database.ErrNotFound,
		},
		{
			name: "unknown column",
			req:  EditRequest{Table: "items", Updates: map[string]map[string]any{"1": {"nope": 1}}},
			want: database.ErrTransaction,
		},
	}

	before := snapshot(t, wb, path)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := wb.EditRows(ctx, path, tt.req)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
	if after := snapshot(t, wb, path); !reflect.DeepEqual(before, after) {
		t.Error("rejected edits must not change the table")
	}
}

func TestWorkbench_EditRowsEmptyRequest(t *testing.T) {
	wb, path := newFixture(t, database.DefaultConfig())

	// An empty request never touches the database, not even the table name.
	res, err := wb.EditRows(context.Background(), path, EditRequest{Table: "anything"})
	if err != nil {
		t.Fatalf("empty edit failed: %v", err)
	}
	if *res != (EditResult{}) {
		t.Errorf("expected zero counts, got %+v", res)
	}
}

func TestWorkbench_EditRowsDefaultsAndTypes(t *testing.T) {
	wb, path := newFixture(t, database.DefaultConfig())
	ctx := context.Background()

	var req EditRequest
	dec := json.NewDecoder(strings.NewReader(`{
		"table": "items",
		"inserts": [{}, {"name": "typed", "qty": 3, "price": 2.5, "data": null}],
		"updates": {"2": {}, "1": {"qty": true}}
	}`))
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil {
		t.Fatal(err)
	}

	res, err := wb.EditRows(ctx, path, req)
	if err != nil {
		t.Fatalf("EditRows failed: %v", err)
	}
	if res.Inserted != 2 || res.Updated != 1 {
		t.Errorf("unexpected counts: %+v", res)
	}

	rows := snapshot(t, wb, path)
	if r := rowByID(rows, 1); r["qty"] != int64(1) {
		t.Errorf("bool should store as 1, got %v", r["qty"])
	}

	var typed, defaults Row
	for _, r := range rows {
		switch r["name"] {
		case "typed":
			typed = r
		case nil:
			defaults = r
		}
	}
	if typed == nil || typed["qty"] != int64(3) || typed["price"] != 2.5 {
		t.Errorf("typed row = %v", typed)
	}
	if defaults == nil || defaults["qty"] != int64(0) {
		t.Errorf("default row = %v", defaults)
	}
}

func TestWorkbench_EditRowsBlobAndWithoutRowIDInsert(t *testing.T) {
	wb, path := newFixture(t, database.DefaultConfig())
	ctx := context.Background()

	if _, err := wb.EditRows(ctx, path, EditRequest{
		Table:   "items",
		Updates: map[string]map[string]any{"3": {"data": []byte{0x00, 0xff}}},
	}); err != nil {
		t.Fatalf("blob update failed: %v", err)
	}
	if r := rowByID(snapshot(t, wb, path), 3); !bytes.Equal(r["data"].([]byte), []byte{0x00, 0xff}) {
		t.Errorf("blob = %v", r["data"])
	}

	// Inserts need no rowid.
	if _, err := wb.EditRows(ctx, path, EditRequest{
		Table:   "kv",
		Inserts: []map[string]any{{"k": "a", "v": "1"}},
	}); err != nil {
		t.Fatalf("insert into WITHOUT ROWID table failed: %v", err)
	}
}

func TestWorkbench_EditRowsManyDeletes(t *testing.T) {
	wb, path := newFixture(t, database.DefaultConfig())
	ctx := context.Background()

	if _, err := wb.RunStatement(ctx, path,
		"WITH RECURSIVE s(i) AS (SELECT 100 UNION ALL SELECT i + 1 FROM s WHERE i < 1299) INSERT INTO items (id, name) SELECT i, 'bulk' || i FROM s", ""); err != nil {
		t.Fatalf("bulk insert: %v", err)
	}

	ids := make([]string, 0, 1200)
	for i := 100; i < 1300; i++ {
		ids = append(ids, strconv.Itoa(i))
	}

	res, err := wb.EditRows(ctx, path, EditRequest{Table: "items", Deletes: ids})
	if err != nil {
		t.Fatalf("EditRows failed: %v", err)
	}
	if res.Deleted != 1200 {
		t.Errorf("expected 1200 deleted, got %d", res.Deleted)
	}
	if n := len(snapshot(t, wb, path)); n != 10 {
		t.Errorf("expected 10 rows left, got %d", n)
	}
}

func TestPlanEdits_Statements(t *testing.T) {
	stmts, err := planEdits(`we"ird`, "rowid", EditRequest{
		Deletes: []string{"1", "2"},
		Updates: map[string]map[string]any{
			"10": {"b": 1, "a": 2},
			"9":  {"c": nil},
		},
		Inserts: []map[string]any{{"z": 1, "y": "s"}},
	})
	if err != nil {
		t.Fatal(err)
	}

	want := []string{
		`DELETE FROM "we""ird" WHERE rowid IN (?, ?)`,
		`UPDATE "we""ird" SET "c" = ? WHERE rowid = ?`,
		`UPDATE "we""ird" SET "a" = ?, "b" = ? WHERE rowid = ?`,
		`INSERT INTO "we""ird" ("y", "z") VALUES (?, ?)`,
	}
	if len(stmts) != len(want) {
		t.Fatalf("expected %d statements, got %d", len(want), len(stmts))
	}
	for i, w := range want {
		if stmts[i].query != w {
			t.Errorf("statement %d:\n got %s\nwant %s", i, stmts[i].query, w)
		}
	}
	if !reflect.DeepEqual(stmts[2].args, []any{int64(2), int64(1), int64(10)}) {
		t.Errorf("update args = %v", stmts[2].args)
	}
}

func TestBindValue(t *testing.T) {
	tests := []struct {
		in      any
		want    any
		wantErr bool
	}{
		{nil, nil, false},
		{true, int64(1), false},
		{false, int64(0), false},
		{42, int64(42), false},
		{uint8(7), int64(7), false},
		{uint64(1 << 63), nil, true},
		{float32(1.5), float64(1.5), false},
		{"s", "s", false},
		{json.Number("12"), int64(12), false},
		{json.Number("1.25"), 1.25, false},
		{json.Number("abc"), nil, true},
		{map[string]any{}, nil, true},
	}
	for _, tt := range tests {
		got, err := bindValue(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("bindValue(%v) error = %v", tt.in, err)
			continue
		}
		if !tt.wantErr && !reflect.DeepEqual(got, tt.want) {
			t.Errorf("bindValue(%v) = %#v, want %#v", tt.in, got, tt.want)
		}
	}
}
