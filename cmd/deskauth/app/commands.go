// Package app provides the entry point for the deskauth command-line application.
package app

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/stacklok/deskauth/pkg/logger"
)

var rootCmd = &cobra.Command{
	Use:               "deskauth",
	DisableAutoGenTag: true,
	Short:             "deskauth signs desktop applications in with OAuth 2.0 and PKCE",
	Long: `deskauth runs the native OAuth 2.0 authorization-code flow for desktop
applications that cannot receive a redirect in a browser tab they control.
It binds a loopback listener for the redirect, opens the system browser,
validates the response, and exchanges the authorization code for a
credential, either directly with the identity provider or through a
backend exchange service that holds the client secret.`,
	Run: func(cmd *cobra.Command, _ []string) {
		// If no subcommand is provided, print help
		if err := cmd.Help(); err != nil {
			logger.Errorf("Error displaying help: %v", err)
		}
	},
}

// NewRootCmd creates a new root command for the deskauth CLI.
func NewRootCmd() *cobra.Command {
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug mode")
	if err := viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug")); err != nil {
		logger.Errorf("Error binding debug flag: %v", err)
	}

	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}
