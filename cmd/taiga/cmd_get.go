package main

import (
	"context"
	"os"

	"github.com/ipfs/go-cid"
	"github.com/spf13/cobra"

	"github.com/taigachain/taiga/internal/store"
)

var cmdGet = &cobra.Command{
	Use:   "get [flags] CID",
	Short: "Retrieve a frame by its content identifier",
	Long: `
The "get" command looks the content identifier up in the store's indexes and
writes the frame bytes to stdout or to the file given with --output.

EXIT STATUS
===========

Exit status is 0 if the command was successful, and non-zero if there was any error.
`,
	Args:              cobra.ExactArgs(1),
	DisableAutoGenTag: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runGet(cmd.Context(), getOptions, args[0])
	},
}

// GetOptions bundles all options for the get command.
type GetOptions struct {
	Dir    string
	Output string
}

var getOptions GetOptions

func init() {
	cmdRoot.AddCommand(cmdGet)

	f := cmdGet.Flags()
	f.StringVar(&getOptions.Dir, "store", "", "store directory")
	f.StringVarP(&getOptions.Output, "output", "o", "", "write the frame to `file` instead of stdout")
	_ = cmdGet.MarkFlagRequired("store")
}

func runGet(ctx context.Context, opts GetOptions, arg string) error {
	c, err := cid.Decode(arg)
	if err != nil {
		return err
	}

	s, err := store.Open(ctx, opts.Dir)
	if err != nil {
		return err
	}
	defer s.Close()

	data, err := s.Get(ctx, c)
	if err != nil {
		return err
	}

	if opts.Output != "" {
		return os.WriteFile(opts.Output, data, 0644)
	}
	_, err = os.Stdout.Write(data)
	return err
}
