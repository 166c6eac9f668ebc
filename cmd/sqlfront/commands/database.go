package commands

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
)

// newOpenCmd creates `sqlfront open`.
func newOpenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "open <db>",
		Short: "Open a database and list its tables and views",
		Long: `Open a database file and list its tables and views. The file is
recorded in the history. With --remember the key is saved to the keystore
so later commands can reopen the file without asking.

Examples:
  sqlfront open ./app.db
  sqlfront open ./secure.db --key "$DB_KEY" --remember`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			key, err := a.resolveKey(args[0])
			if err != nil {
				return err
			}
			res, err := a.workbench.Open(cmd.Context(), args[0], key)
			if err != nil {
				return err
			}

			store, _ := cmd.Flags().GetBool("remember")
			a.remember(res.Path, key, store)

			if a.json {
				return printJSON(a.out, res)
			}
			renderCatalog(a.out, res)
			return nil
		},
	}
	cmd.Flags().Bool("remember", false, "store the key in the keystore")
	return cmd
}

// newRowsCmd creates `sqlfront rows`.
func newRowsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rows <db> <table-or-view>",
		Short: "Show columns and rows of a table or view",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			limit, _ := cmd.Flags().GetInt("limit")
			key, err := a.resolveKey(args[0])
			if err != nil {
				return err
			}

			data, err := a.workbench.ListColumnsAndRows(cmd.Context(), args[0], args[1], limit, key)
			if err != nil {
				return err
			}
			if a.json {
				return printJSON(a.out, data)
			}
			return renderTableData(a.out, data)
		},
	}
	cmd.Flags().IntP("limit", "n", 0, "maximum rows (default: database.default_row_limit)")
	return cmd
}

// newExecCmd creates `sqlfront exec`.
func newExecCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "exec <db> <sql>",
		Short: "Run one SQL statement",
		Long: `Run one SQL statement. Statements starting with SELECT, PRAGMA or
EXPLAIN print rows; anything else prints the number of affected rows.
Pass "-" as the statement to read it from stdin.

Examples:
  sqlfront exec ./app.db "SELECT * FROM users WHERE active = 1"
  sqlfront exec ./app.db - < migration.sql`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			stmt := strings.Join(args[1:], " ")
			if stmt == "-" {
				data, err := io.ReadAll(a.in)
				if err != nil {
					return fmt.Errorf("reading statement: %w", err)
				}
				stmt = string(data)
			}

			key, err := a.resolveKey(args[0])
			if err != nil {
				return err
			}
			res, err := a.workbench.RunStatement(cmd.Context(), args[0], stmt, key)
			if err != nil {
				return err
			}
			if a.json {
				return printJSON(a.out, res)
			}
			return renderStatement(a.out, res)
		},
	}
}

// newSchemaCmd creates `sqlfront schema`.
func newSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema <db> [object]",
		Short: "List schema objects or print one CREATE statement",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			key, err := a.resolveKey(args[0])
			if err != nil {
				return err
			}

			if len(args) == 1 {
				objects, err := a.workbench.Objects(cmd.Context(), args[0], key)
				if err != nil {
					return err
				}
				if a.json {
					return printJSON(a.out, objects)
				}
				return renderObjects(a.out, objects)
			}

			sql, err := a.workbench.ObjectDefinition(cmd.Context(), args[0], args[1], key)
			if err != nil {
				return err
			}
			if a.json {
				return printJSON(a.out, map[string]string{"name": args[1], "sql": sql})
			}
			fmt.Fprintln(a.out, sql)
			return nil
		},
	}
}
