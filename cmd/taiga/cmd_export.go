package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/taigachain/taiga/internal/store"
)

var cmdExport = &cobra.Command{
	Use:   "export [flags]",
	Short: "Export every frame into a single container",
	Long: `
The "export" command rewrites all frames in the store into one fresh CAR
container, deduplicating content that appears in several archives. With
--compress the output is a zstd stream.

EXIT STATUS
===========

Exit status is 0 if the command was successful, and non-zero if there was any error.
`,
	DisableAutoGenTag: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runExport(cmd.Context(), exportOptions)
	},
}

// ExportOptions bundles all options for the export command.
type ExportOptions struct {
	Dir      string
	Output   string
	Compress bool
}

var exportOptions ExportOptions

func init() {
	cmdRoot.AddCommand(cmdExport)

	f := cmdExport.Flags()
	f.StringVar(&exportOptions.Dir, "store", "", "store directory")
	f.StringVarP(&exportOptions.Output, "output", "o", "", "write the container to `file`")
	f.BoolVar(&exportOptions.Compress, "compress", false, "zstd-compress the output")
	_ = cmdExport.MarkFlagRequired("store")
	_ = cmdExport.MarkFlagRequired("output")
}

func runExport(ctx context.Context, opts ExportOptions) error {
	s, err := store.Open(ctx, opts.Dir)
	if err != nil {
		return err
	}
	defer s.Close()

	out, err := os.Create(opts.Output)
	if err != nil {
		return err
	}

	if err := s.Export(ctx, out, store.ExportOptions{Compress: opts.Compress}); err != nil {
		_ = out.Close()
		_ = os.Remove(opts.Output)
		return err
	}
	return out.Close()
}
