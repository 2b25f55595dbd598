package main

import (
	"fmt"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/varoOP/clubgate/internal/app"
	"gopkg.in/yaml.v3"
)

var warmCmd = &cobra.Command{
	Use:   "warm",
	Short: "Prefetch public API content and images into the cache",
	Long: `Warm fills the prefetch cache the same way accepting caching does:
1. Fetches every configured public API endpoint and stores the response
2. Collects image URLs from the JSON bodies
3. Stores core assets and every collected image

Failed items are reported but never stop the run.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		application, err := app.NewApp()
		if err != nil {
			return fmt.Errorf("failed to initialize application: %w", err)
		}
		defer application.Close()

		lock := flock.New(application.Config().DBPath + ".warm.lock")
		locked, err := lock.TryLock()
		if err != nil {
			return fmt.Errorf("failed to acquire warm lock: %w", err)
		}
		if !locked {
			return fmt.Errorf("another warm run holds %s", lock.Path())
		}
		defer lock.Unlock()

		summary, err := application.Warm(cmd.Context())
		if err != nil {
			return err
		}

		enc := yaml.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(summary)
	},
}

func init() {
	warmCmd.Flags().Int("concurrency", 0, "maximum simultaneous fetches (0 means unbounded)")
	warmCmd.Flags().Bool("scan-document", false, "also collect images referenced by the home page")

	viper.BindPFlag("warm.concurrency", warmCmd.Flags().Lookup("concurrency"))
	viper.BindPFlag("warm.scan_document", warmCmd.Flags().Lookup("scan-document"))

	rootCmd.AddCommand(warmCmd)
}
