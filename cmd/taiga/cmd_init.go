package main

import (
	"github.com/spf13/cobra"

	"github.com/taigachain/taiga/internal/store"
)

var cmdInit = &cobra.Command{
	Use:   "init",
	Short: "Initialize a new store",
	Long: `
The "init" command initializes a new archive store directory, including the
secret used for permission tokens.

EXIT STATUS
===========

Exit status is 0 if the command was successful, and non-zero if there was any error.
`,
	DisableAutoGenTag: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return store.Init(initOptions.Dir)
	},
}

// InitOptions bundles all options for the init command.
type InitOptions struct {
	Dir string
}

var initOptions InitOptions

func init() {
	cmdRoot.AddCommand(cmdInit)

	f := cmdInit.Flags()
	f.StringVar(&initOptions.Dir, "store", "", "store directory, example: '/var/lib/taiga'")
	_ = cmdInit.MarkFlagRequired("store")
}
