package commands

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/t1000ln/sqlcipher-front/pkg/sqlfront/workbench"
)

// editFile is the JSON document accepted by `sqlfront edit`.
type editFile struct {
	Deletes []string                  `json:"deletes"`
	Updates map[string]map[string]any `json:"updates"`
	Inserts []map[string]any          `json:"inserts"`
}

// newEditCmd creates `sqlfront edit`.
func newEditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "edit <db> <table>",
		Short: "Apply deletes, updates and inserts in one transaction",
		Long: `Apply a batch of row edits from a JSON file in one transaction.
Either every change is committed or none is.

The file looks like:
  {
    "deletes": ["5", "6"],
    "updates": {"7": {"name": "x"}},
    "inserts": [{"name": "y"}]
  }

Row identifiers are the __rowid__ values printed by "sqlfront rows".

Examples:
  sqlfront edit ./app.db users --file changes.json
  cat changes.json | sqlfront edit ./app.db users --file - --yes`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			file, _ := cmd.Flags().GetString("file")
			yes, _ := cmd.Flags().GetBool("yes")

			edits, err := readEditFile(file, a.in)
			if err != nil {
				return err
			}
			req := workbench.EditRequest{
				Table:   args[1],
				Deletes: edits.Deletes,
				Updates: edits.Updates,
				Inserts: edits.Inserts,
			}

			if !yes && !req.Empty() {
				if !isTerminal(os.Stdin) {
					return errors.New("refusing to edit without --yes in non-interactive mode")
				}
				ok, err := confirm(fmt.Sprintf("Delete %d, update %d, insert %d row(s) in %s?",
					len(req.Deletes), len(req.Updates), len(req.Inserts), req.Table))
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintln(a.out, "Cancelled.")
					return nil
				}
			}

			req.Key, err = a.resolveKey(args[0])
			if err != nil {
				return err
			}
			res, err := a.workbench.EditRows(cmd.Context(), args[0], req)
			if err != nil {
				return err
			}
			if a.json {
				return printJSON(a.out, res)
			}
			renderEdit(a.out, req.Table, res)
			return nil
		},
	}
	cmd.Flags().StringP("file", "f", "", "JSON file with the edits (\"-\" for stdin)")
	cmd.Flags().BoolP("yes", "y", false, "apply without asking")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

// readEditFile decodes the edit document, keeping numbers as json.Number.
func readEditFile(path string, stdin io.Reader) (*editFile, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("reading edits: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	dec.DisallowUnknownFields()

	var f editFile
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("parsing edits %s: %w", path, err)
	}
	return &f, nil
}
