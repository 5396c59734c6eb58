package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"effectifs/internal/config"
)

func newValidateConfigCmd(o *rootOptions) *cobra.Command {
	var show bool

	cmd := &cobra.Command{
		Use:   "validate-config",
		Short: "Validate the configuration and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := o.load()
			if err != nil {
				return err
			}
			issues := config.Validate(d)
			printIssues(cmd.ErrOrStderr(), issues)
			if config.HasErrors(issues) {
				return errInvalidConfig
			}
			if show {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(d)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Configuration is valid: %s\n", displayPath(o.configPath))
			return nil
		},
	}
	cmd.Flags().BoolVar(&show, "show", false, "print the resolved configuration as JSON")
	return cmd
}

func displayPath(p string) string {
	if p == "" {
		return "(defaults)"
	}
	return p
}
