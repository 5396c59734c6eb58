package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"effectifs/internal/labels"
)

var printer = message.NewPrinter(language.English)

func newCleanLabelsCmd(o *rootOptions) *cobra.Command {
	var (
		dryRun bool
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "clean-labels",
		Short: "Shorten long patho_niv1 labels in the store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := o.loadValid(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			store, err := openStore(ctx, d)
			if err != nil {
				return err
			}
			defer store.Close()

			out := cmd.OutOrStdout()
			report := lineReporter(out)
			if asJSON {
				report = nil
			}
			st, err := labels.Normalize(ctx, store, labels.Options{DryRun: dryRun}, report)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(st)
			}
			printer.Fprintf(out, "[INFO] %d pathologies analysees, %d modifiees, %d lignes affectees.\n",
				st.Scanned, st.Changed, st.RowsAffected)
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "compute the changes without writing")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the statistics as JSON")
	return cmd
}

func newVerifyLabelsCmd(o *rootOptions) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "verify-labels",
		Short: "List the stored patho_niv1 labels with their row counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := o.loadValid(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			store, err := openStore(ctx, d)
			if err != nil {
				return err
			}
			defer store.Close()

			infos, err := labels.Verify(ctx, store)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(infos)
			}
			fmt.Fprintln(out, "[INFO] Pathologies actuelles dans la base de donnees :")
			for _, i := range infos {
				mark := "[OK]"
				if i.Long {
					mark = "[!]"
				}
				printer.Fprintf(out, "%s %s (%d car.) - %d lignes\n", mark, i.Label, i.Length, i.Rows)
			}
			fmt.Fprintf(out, "[INFO] %d label(s) long(s) sur %d.\n", labels.CountLong(infos), len(infos))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the labels as JSON")
	return cmd
}
