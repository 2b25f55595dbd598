package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/varoOP/clubgate/internal/app"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the gateway",
	Long: `Serve the site through the gateway. In production, visitors who accepted caching
are handled by the offline worker:
  - page navigations: network first, cached shell when offline
  - images and fonts: cache first
  - public API reads: network first
  - other static files: stale while revalidate`,
	RunE: func(cmd *cobra.Command, args []string) error {
		application, err := app.NewApp()
		if err != nil {
			return fmt.Errorf("failed to initialize application: %w", err)
		}
		defer application.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return application.Serve(ctx)
	},
}

func init() {
	serveCmd.Flags().String("listen", "", "address to listen on (default :8080)")
	serveCmd.Flags().String("backend-url", "", "backend the /proxy routes forward to")

	viper.BindPFlag("listen_addr", serveCmd.Flags().Lookup("listen"))
	viper.BindPFlag("proxy.backend_url", serveCmd.Flags().Lookup("backend-url"))

	rootCmd.AddCommand(serveCmd)
}
