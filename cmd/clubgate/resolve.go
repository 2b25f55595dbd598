package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/varoOP/clubgate/internal/app"
)

var resolveCmd = &cobra.Command{
	Use:   "resolve <url>...",
	Short: "Print the URL a page would load for media references",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		application, err := app.NewApp()
		if err != nil {
			return fmt.Errorf("failed to initialize application: %w", err)
		}
		defer application.Close()

		for _, raw := range args {
			fmt.Fprintln(cmd.OutOrStdout(), application.Resolve(raw))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(resolveCmd)
}
