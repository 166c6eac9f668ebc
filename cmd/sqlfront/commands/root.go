// Package commands implements the sqlfront CLI commands using cobra.
package commands

import (
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command with every subcommand registered.
func NewRootCmd(version string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "sqlfront",
		Short: "sqlfront - workbench for SQLite and SQLCipher files",
		Long: `sqlfront opens local SQLite files, encrypted with SQLCipher or not,
lists their tables and views, reads rows, runs statements, and applies
batched row edits in a single transaction.

Examples:
  sqlfront open ./app.db
  sqlfront rows ./app.db users --limit 20
  sqlfront exec ./app.db "UPDATE users SET active = 0 WHERE id = 3"
  sqlfront edit ./app.db users --file changes.json
  sqlfront shell ./secure.db --key "$DB_KEY"
  sqlfront serve --address 127.0.0.1:8087`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		newOpenCmd(),
		newRowsCmd(),
		newExecCmd(),
		newSchemaCmd(),
		newEditCmd(),
		newShellCmd(),
		newServeCmd(),
		newHistoryCmd(),
		newNotesCmd(),
		newKeysCmd(),
	)

	rootCmd.PersistentFlags().StringP("config", "c", "", "path to the configuration file")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringP("key", "k", "", "decryption key (default: $SQLFRONT_KEY, then the keystore)")
	rootCmd.PersistentFlags().Bool("json", false, "print results as JSON")

	return rootCmd
}
