package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/taigachain/taiga/internal/store"
)

var cmdStat = &cobra.Command{
	Use:   "stat [flags] [ID]",
	Short: "Show store or archive statistics",
	Long: `
The "stat" command prints a summary of the store, or of a single archive and
its index when an archive ID is given.

EXIT STATUS
===========

Exit status is 0 if the command was successful, and non-zero if there was any error.
`,
	Args:              cobra.MaximumNArgs(1),
	DisableAutoGenTag: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStat(cmd.Context(), statOptions, args)
	},
}

// StatOptions bundles all options for the stat command.
type StatOptions struct {
	Dir string
}

var statOptions StatOptions

func init() {
	cmdRoot.AddCommand(cmdStat)

	f := cmdStat.Flags()
	f.StringVar(&statOptions.Dir, "store", "", "store directory")
	_ = cmdStat.MarkFlagRequired("store")
}

func runStat(ctx context.Context, opts StatOptions, args []string) error {
	s, err := store.Open(ctx, opts.Dir)
	if err != nil {
		return err
	}
	defer s.Close()

	if len(args) == 0 {
		fmt.Printf("store:    %v\n", s.Meta().ID)
		fmt.Printf("version:  %d\n", s.Meta().Version)
		fmt.Printf("archives: %d\n", len(s.Archives()))
		for _, a := range s.Archives() {
			fmt.Printf("  %v  %10d bytes  %d frames\n", a.ID.Str(), a.Size, a.Entries())
		}
		return nil
	}

	id, err := store.ParseID(args[0])
	if err != nil {
		return err
	}
	for _, a := range s.Archives() {
		if a.ID != id {
			continue
		}
		idx := a.Index()
		fmt.Printf("archive:          %v\n", a.ID)
		fmt.Printf("size:             %d bytes\n", a.Size)
		fmt.Printf("frames:           %d\n", idx.Len())
		fmt.Printf("index capacity:   %d slots\n", idx.Capacity())
		fmt.Printf("max displacement: %d\n", idx.MaxDisplacement())
		return nil
	}
	return fmt.Errorf("no archive %v in store", id.Str())
}
