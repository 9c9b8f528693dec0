package cmd

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var fetchModelCmd = &cobra.Command{
	Use:   "fetch-model",
	Short: "Download the model artifact if it is not present",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := appFromContext(cmd.Context())
		if err != nil {
			return err
		}

		fetcher := newArtifactFetcher(app.cfg, app.logger)
		if err := fetcher.Ensure(cmd.Context()); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "%s %v\n", color.RedString("ERROR"), err)
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s model available at %s\n", color.GreenString("OK"), fetcher.Path())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(fetchModelCmd)
}
