package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/varoOP/clubgate/internal/apiclient"
	"github.com/varoOP/clubgate/internal/app"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in to the API and store the session token",
	Long: `Log in to the API. Credentials come from --email/--password or
CLUBGATE_AUTH_EMAIL/CLUBGATE_AUTH_PASSWORD.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		creds := apiclient.Credentials{
			Email:    viper.GetString("auth.email"),
			Password: viper.GetString("auth.password"),
		}
		if creds.Email == "" || creds.Password == "" {
			return fmt.Errorf("email and password are required")
		}

		application, err := app.NewApp()
		if err != nil {
			return fmt.Errorf("failed to initialize application: %w", err)
		}
		defer application.Close()

		if err := application.Login(cmd.Context(), creds); err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "logged in to %s as %s\n", application.API().BaseURL(), creds.Email)
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the stored session token",
	RunE: func(cmd *cobra.Command, args []string) error {
		application, err := app.NewApp()
		if err != nil {
			return fmt.Errorf("failed to initialize application: %w", err)
		}
		defer application.Close()

		return application.Logout(cmd.Context())
	},
}

var languageCmd = &cobra.Command{
	Use:   "language <tag>",
	Short: "Set the content language sent with API requests",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		application, err := app.NewApp()
		if err != nil {
			return fmt.Errorf("failed to initialize application: %w", err)
		}
		defer application.Close()

		tag, err := application.SetLanguage(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), "language set to", tag)
		return nil
	},
}

func init() {
	loginCmd.Flags().String("email", "", "account email")
	loginCmd.Flags().String("password", "", "account password")

	viper.BindPFlag("auth.email", loginCmd.Flags().Lookup("email"))
	viper.BindPFlag("auth.password", loginCmd.Flags().Lookup("password"))

	rootCmd.AddCommand(loginCmd, logoutCmd, languageCmd)
}
