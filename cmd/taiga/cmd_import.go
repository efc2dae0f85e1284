package main

import (
	"context"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/taigachain/taiga/internal/store"
)

var cmdImport = &cobra.Command{
	Use:   "import [flags] FILE ...",
	Short: "Import archive containers into the store",
	Long: `
The "import" command copies one or more CAR containers (plain or zstd
compressed) into the store and builds a persistent index for each, so their
frames become retrievable by content identifier.

EXIT STATUS
===========

Exit status is 0 if the command was successful, and non-zero if there was any error.
`,
	Args:              cobra.MinimumNArgs(1),
	DisableAutoGenTag: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runImport(cmd.Context(), importOptions, args)
	},
}

// ImportOptions bundles all options for the import command.
type ImportOptions struct {
	Dir    string
	Verify bool
	Jobs   int
	Hint   uint64
}

var importOptions ImportOptions

func init() {
	cmdRoot.AddCommand(cmdImport)

	f := cmdImport.Flags()
	f.StringVar(&importOptions.Dir, "store", "", "store directory")
	f.BoolVar(&importOptions.Verify, "verify", false, "recompute each frame's hash during import")
	f.IntVar(&importOptions.Jobs, "jobs", 2, "verify `n` frames concurrently")
	f.Uint64Var(&importOptions.Hint, "entries", 0, "expected number of frames, pre-sizes the index")
	_ = cmdImport.MarkFlagRequired("store")
}

func runImport(ctx context.Context, opts ImportOptions, files []string) error {
	s, err := store.Open(ctx, opts.Dir)
	if err != nil {
		return err
	}
	defer s.Close()

	for _, file := range files {
		a, err := s.ImportCAR(ctx, file, store.ImportOptions{
			Verify:         opts.Verify,
			Jobs:           opts.Jobs,
			EntryCountHint: opts.Hint,
		})
		if err != nil {
			return err
		}
		log.Infof("imported %v as archive %v (%d frames)", file, a.ID.Str(), a.Entries())
	}
	return nil
}
