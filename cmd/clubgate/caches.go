package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/varoOP/clubgate/internal/app"
	"gopkg.in/yaml.v3"
)

var cachesCmd = &cobra.Command{
	Use:   "caches",
	Short: "Inspect and maintain stored cache partitions",
}

var cachesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List cache partitions and their entry counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		application, err := app.NewApp()
		if err != nil {
			return fmt.Errorf("failed to initialize application: %w", err)
		}
		defer application.Close()

		infos, err := application.Caches(cmd.Context())
		if err != nil {
			return err
		}

		enc := yaml.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(map[string]any{"caches": infos})
	},
}

var cachesClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every cache partition",
	RunE: func(cmd *cobra.Command, args []string) error {
		application, err := app.NewApp()
		if err != nil {
			return fmt.Errorf("failed to initialize application: %w", err)
		}
		defer application.Close()

		deleted, err := application.ClearCaches(cmd.Context())
		if err != nil {
			return err
		}

		for _, name := range deleted {
			fmt.Fprintln(cmd.OutOrStdout(), "deleted", name)
		}
		return nil
	},
}

var cachesActivateCmd = &cobra.Command{
	Use:   "activate",
	Short: "Install the configured cache version and evict older versions",
	RunE: func(cmd *cobra.Command, args []string) error {
		application, err := app.NewApp()
		if err != nil {
			return fmt.Errorf("failed to initialize application: %w", err)
		}
		defer application.Close()

		deleted, err := application.Activate(cmd.Context())
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "activated %s\n", application.Config().Cache.Version)
		for _, name := range deleted {
			fmt.Fprintln(cmd.OutOrStdout(), "evicted", name)
		}
		return nil
	},
}

func init() {
	cachesCmd.AddCommand(cachesListCmd, cachesClearCmd, cachesActivateCmd)
	rootCmd.AddCommand(cachesCmd)
}
