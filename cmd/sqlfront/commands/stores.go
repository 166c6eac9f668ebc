package commands

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/t1000ln/sqlcipher-front/pkg/sqlfront/config"
	"github.com/t1000ln/sqlcipher-front/pkg/sqlfront/database"
	"github.com/t1000ln/sqlcipher-front/pkg/sqlfront/keystore"
)

// newHistoryCmd creates `sqlfront history`.
func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Manage recently opened databases",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List recently opened databases",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				a, err := newApp(cmd, cmd.ErrOrStderr())
				if err != nil {
					return err
				}
				defer a.Close()

				entries, err := a.history.List()
				if err != nil {
					return err
				}
				if a.json {
					return printJSON(a.out, entries)
				}
				if len(entries) == 0 {
					fmt.Fprintln(a.out, "No history.")
					return nil
				}

				data := pterm.TableData{{"#", "name", "path", "encrypted", "opened"}}
				for i, e := range entries {
					data = append(data, []string{
						strconv.Itoa(i), e.Name, e.Path, strconv.FormatBool(e.Encrypted),
						e.OpenedAt.Local().Format("2006-01-02 15:04"),
					})
				}
				return pterm.DefaultTable.WithHasHeader().WithWriter(a.out).WithData(data).Render()
			},
		},
		&cobra.Command{
			Use:   "remove <index>",
			Short: "Remove one entry and its stored key",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				index, err := strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("invalid index %q", args[0])
				}

				a, err := newApp(cmd, cmd.ErrOrStderr())
				if err != nil {
					return err
				}
				defer a.Close()

				removed, err := a.history.Remove(index)
				if err != nil {
					return err
				}
				if removed == "" {
					fmt.Fprintf(a.out, "No entry at index %d.\n", index)
					return nil
				}
				forgetKey(a, removed)
				success(a.out, "removed %s", removed)
				return nil
			},
		},
		&cobra.Command{
			Use:   "clear",
			Short: "Remove every entry",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				a, err := newApp(cmd, cmd.ErrOrStderr())
				if err != nil {
					return err
				}
				defer a.Close()

				if err := a.history.Clear(); err != nil {
					return err
				}
				success(a.out, "history cleared")
				return nil
			},
		},
	)
	return cmd
}

// forgetKey deletes the stored key for path, if a keystore is configured.
func forgetKey(a *app, path string) {
	if a.cfg.Keystore.Backend == keystore.BackendNone {
		return
	}
	store := a.keystore()
	if store == nil {
		return
	}
	if err := store.Delete(path); err != nil {
		a.logger.Warn("failed to delete stored key", "path", path, "error", err)
	}
}

// newNotesCmd creates `sqlfront notes`.
func newNotesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "notes",
		Short: "Show or replace the saved SQL notes",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "Print the saved notes",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				a, err := newApp(cmd, cmd.ErrOrStderr())
				if err != nil {
					return err
				}
				defer a.Close()

				text, err := a.notes.Load()
				if err != nil {
					return err
				}
				if a.json {
					return printJSON(a.out, map[string]string{"text": text})
				}
				fmt.Fprint(a.out, text)
				return nil
			},
		},
		&cobra.Command{
			Use:   "save [file]",
			Short: "Replace the notes with a file, or stdin",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				a, err := newApp(cmd, cmd.ErrOrStderr())
				if err != nil {
					return err
				}
				defer a.Close()

				var data []byte
				if len(args) == 1 && args[0] != "-" {
					data, err = os.ReadFile(args[0])
				} else {
					data, err = io.ReadAll(a.in)
				}
				if err != nil {
					return fmt.Errorf("reading notes: %w", err)
				}

				if err := a.notes.Save(string(data)); err != nil {
					return err
				}
				success(a.out, "notes saved to %s", a.notes.Path())
				return nil
			},
		},
	)
	return cmd
}

// newKeysCmd creates `sqlfront keys`.
func newKeysCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Manage stored decryption keys",
		Long: `Store or delete the decryption key of a database file in the
configured keystore (OS keyring or encrypted vault file).`,
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "set <db>",
			Short: "Store the key for a database (from --key, $SQLFRONT_KEY or a prompt)",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				a, err := newApp(cmd, cmd.ErrOrStderr())
				if err != nil {
					return err
				}
				defer a.Close()

				path, key, err := keyTarget(a, args[0])
				if err != nil {
					return err
				}
				if key == "" {
					if !isTerminal(os.Stdin) {
						return errors.New("no key given: use --key or $SQLFRONT_KEY")
					}
					if key, err = promptKey(path); err != nil {
						return err
					}
				}

				// Verify before storing so a typo is not remembered.
				if _, err := a.workbench.Open(cmd.Context(), path, key); err != nil {
					return err
				}

				store, err := a.openKeystore()
				if err != nil {
					return err
				}
				if err := store.Set(path, key); err != nil {
					return err
				}
				success(a.out, "key stored in %s for %s", store.Name(), path)
				return nil
			},
		},
		&cobra.Command{
			Use:   "delete <db>",
			Short: "Delete the stored key for a database",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				a, err := newApp(cmd, cmd.ErrOrStderr())
				if err != nil {
					return err
				}
				defer a.Close()

				path, _, err := keyTarget(a, args[0])
				if err != nil {
					return err
				}
				store, err := a.openKeystore()
				if err != nil {
					return err
				}
				if err := store.Delete(path); err != nil {
					return err
				}
				success(a.out, "key deleted for %s", path)
				return nil
			},
		},
	)
	return cmd
}

// keyTarget resolves the canonical path of db and the key given on the
// command line or in the environment.
func keyTarget(a *app, db string) (string, string, error) {
	path, err := database.CanonicalPath(db)
	if err != nil {
		return "", "", err
	}
	key := a.keyFlag
	if key == "" {
		key = os.Getenv(config.EnvKey)
	}
	return path, key, nil
}
