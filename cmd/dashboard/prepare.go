package main

import (
	"fmt"
	"log"
	"time"

	"github.com/spf13/cobra"

	"effectifs/internal/pipeline"
	"effectifs/internal/progress"
)

func newPrepareCmd(o *rootOptions) *cobra.Command {
	var (
		force    bool
		ifNeeded bool
	)

	cmd := &cobra.Command{
		Use:   "prepare",
		Short: "Download, clean and load the data, then exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := o.loadValid(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("force-reimport") {
				d.Load.ForceReimport = force
			}
			_, cleanup := setupMetrics(d)
			defer cleanup()

			ctx := cmd.Context()
			orch := pipeline.New(d, progress.New(nil))
			if ifNeeded && !d.Load.ForceReimport && !orch.NeedsRun(ctx) {
				fmt.Fprintln(cmd.OutOrStdout(), "[OK] Donnees deja initialisees.")
				return nil
			}

			start := time.Now()
			if err := orch.Prepare(ctx, lineReporter(cmd.OutOrStdout())); err != nil {
				return err
			}
			if o.verbose {
				log.Printf("prepare: completed in %s", time.Since(start).Truncate(time.Millisecond))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force-reimport", false, "empty the table and import the CSV again")
	cmd.Flags().BoolVar(&ifNeeded, "if-needed", false, "exit early when the data is already initialized")
	return cmd
}
