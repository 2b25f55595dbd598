package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/varoOP/clubgate/internal/config"
)

var (
	version = "dev"
	commit  = ""
	date    = ""
	cfgFile string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "clubgate",
	Short: "Offline-capable gateway for the club website",
	Long: `Clubgate serves the club website through an offline worker for visitors who
accepted caching, prefetches public API content and images, applies SEO settings
to pages and forwards API calls to the protected backend.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is .clubgate.yaml, then config.yaml, in $HOME then ./)")
	flags.String("environment", "", "'production' enables the offline worker, 'development' disables it")
	flags.String("log-level", "", "log level (trace, debug, info, warn, error)")
	flags.String("storage", "", "cache storage backend: 'sqlite' or 'memory'")
	flags.String("db-path", "", "path of the SQLite cache database")
	flags.String("site-origin", "", "public origin the site is served from")
	flags.String("upstream-origin", "", "origin the static site is fetched from")

	viper.BindPFlag("environment", flags.Lookup("environment"))
	viper.BindPFlag("log_level", flags.Lookup("log-level"))
	viper.BindPFlag("storage", flags.Lookup("storage"))
	viper.BindPFlag("db_path", flags.Lookup("db-path"))
	viper.BindPFlag("site_origin", flags.Lookup("site-origin"))
	viper.BindPFlag("upstream_origin", flags.Lookup("upstream-origin"))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	// CLUBGATE_CACHE_VERSION maps to cache.version
	viper.SetEnvPrefix("CLUBGATE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	var dirs []string
	if home, err := os.UserHomeDir(); err == nil {
		dirs = append(dirs, home)
	}
	dirs = append(dirs, ".")

	used, err := config.ReadFile(viper.GetViper(), cfgFile, dirs...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if used != "" {
		fmt.Fprintln(os.Stderr, "Using config file:", used)
	}
}
