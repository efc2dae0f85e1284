package main

import (
	"context"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/taigachain/taiga/internal/store"
)

var cmdVerify = &cobra.Command{
	Use:   "verify [flags] [ID ...]",
	Short: "Verify archives against their indexes and hashes",
	Long: `
The "verify" command re-scans archives front to back, checking that every
section is indexed at its actual offset and that frame bytes match their
content identifiers. Without arguments all archives are verified.

EXIT STATUS
===========

Exit status is 0 if the command was successful, and non-zero if there was any error.
`,
	DisableAutoGenTag: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runVerify(cmd.Context(), verifyOptions, args)
	},
}

// VerifyOptions bundles all options for the verify command.
type VerifyOptions struct {
	Dir  string
	Jobs int
}

var verifyOptions VerifyOptions

func init() {
	cmdRoot.AddCommand(cmdVerify)

	f := cmdVerify.Flags()
	f.StringVar(&verifyOptions.Dir, "store", "", "store directory")
	f.IntVar(&verifyOptions.Jobs, "jobs", 2, "verify `n` frames concurrently")
	_ = cmdVerify.MarkFlagRequired("store")
}

func runVerify(ctx context.Context, opts VerifyOptions, args []string) error {
	s, err := store.Open(ctx, opts.Dir)
	if err != nil {
		return err
	}
	defer s.Close()

	var ids []store.ID
	if len(args) > 0 {
		for _, arg := range args {
			id, err := store.ParseID(arg)
			if err != nil {
				return err
			}
			ids = append(ids, id)
		}
	} else {
		for _, a := range s.Archives() {
			ids = append(ids, a.ID)
		}
	}

	for _, id := range ids {
		if err := s.VerifyArchive(ctx, id, opts.Jobs); err != nil {
			return err
		}
		log.Infof("archive %v ok", id.Str())
	}
	return nil
}
