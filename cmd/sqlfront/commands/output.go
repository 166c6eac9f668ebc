package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/pterm/pterm"

	"github.com/t1000ln/sqlcipher-front/pkg/sqlfront/workbench"
)

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func heading(out io.Writer, title string) {
	fmt.Fprintln(out, pterm.Bold.Sprint(title))
}

func success(out io.Writer, format string, args ...any) {
	pterm.Success.WithWriter(out).Printfln(format, args...)
}

// formatValue renders a cell the way the shell shows it.
func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		return fmt.Sprintf("<blob %d bytes>", len(x))
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case int64:
		return strconv.FormatInt(x, 10)
	case string:
		return x
	default:
		return fmt.Sprint(x)
	}
}

func renderTable(out io.Writer, header []string, rows []workbench.Row) error {
	data := pterm.TableData{header}
	for _, row := range rows {
		line := make([]string, len(header))
		for i, col := range header {
			line[i] = formatValue(row[col])
		}
		data = append(data, line)
	}
	return pterm.DefaultTable.WithHasHeader().WithWriter(out).WithData(data).Render()
}

func renderCatalog(out io.Writer, res *workbench.OpenResult) {
	heading(out, res.Path)
	renderNames(out, "Tables", res.Tables)
	renderNames(out, "Views", res.Views)
}

func renderNames(out io.Writer, title string, names []string) {
	fmt.Fprintf(out, "%s (%d)\n", title, len(names))
	for _, n := range names {
		fmt.Fprintf(out, "  %s\n", n)
	}
}

func renderTableData(out io.Writer, data *workbench.TableData) error {
	header := make([]string, 0, len(data.Columns)+1)
	if data.HasRowID {
		header = append(header, workbench.RowIDField)
	}
	for _, c := range data.Columns {
		header = append(header, c.Name)
	}

	if err := renderTable(out, header, data.Rows); err != nil {
		return err
	}
	fmt.Fprintf(out, "%d row(s)", len(data.Rows))
	if data.Truncated {
		fmt.Fprintf(out, ", limit clamped to %d", data.Limit)
	}
	fmt.Fprintln(out)
	return nil
}

func renderStatement(out io.Writer, res *workbench.StatementResult) error {
	if res.Kind == workbench.KindWrite {
		success(out, "%d row(s) affected, last insert id %d", res.Mutation.RowsAffected, res.Mutation.LastInsertID)
		return nil
	}

	if len(res.RowSet.Columns) == 0 {
		fmt.Fprintln(out, "(no columns)")
		return nil
	}
	if err := renderTable(out, res.RowSet.Columns, res.RowSet.Rows); err != nil {
		return err
	}
	fmt.Fprintf(out, "%d row(s)", len(res.RowSet.Rows))
	if res.RowSet.Truncated {
		fmt.Fprint(out, ", truncated")
	}
	fmt.Fprintln(out)
	return nil
}

func renderObjects(out io.Writer, objects []workbench.ObjectDescriptor) error {
	data := pterm.TableData{{"kind", "name", "table"}}
	for _, o := range objects {
		data = append(data, []string{string(o.Kind), o.Name, o.TableName})
	}
	return pterm.DefaultTable.WithHasHeader().WithWriter(out).WithData(data).Render()
}

func renderEdit(out io.Writer, table string, res *workbench.EditResult) {
	success(out, "%s: %d deleted, %d updated, %d inserted", table, res.Deleted, res.Updated, res.Inserted)
}
