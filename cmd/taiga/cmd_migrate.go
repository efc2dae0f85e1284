package main

import (
	"github.com/spf13/cobra"

	"github.com/taigachain/taiga/internal/migration"
)

var cmdMigrate = &cobra.Command{
	Use:   "migrate [flags]",
	Short: "Migrate a store to the current layout version",
	Long: `
The "migrate" command applies all pending layout migrations to a store that
was written by an older version of taiga.

EXIT STATUS
===========

Exit status is 0 if the command was successful, and non-zero if there was any error.
`,
	DisableAutoGenTag: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return migration.Migrate(cmd.Context(), migrateOptions.Dir)
	},
}

// MigrateOptions bundles all options for the migrate command.
type MigrateOptions struct {
	Dir string
}

var migrateOptions MigrateOptions

func init() {
	cmdRoot.AddCommand(cmdMigrate)

	f := cmdMigrate.Flags()
	f.StringVar(&migrateOptions.Dir, "store", "", "store directory")
	_ = cmdMigrate.MarkFlagRequired("store")
}
