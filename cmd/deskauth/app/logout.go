package app

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stacklok/deskauth/pkg/config"
	"github.com/stacklok/deskauth/pkg/logger"
	"github.com/stacklok/deskauth/pkg/oauth"
	"github.com/stacklok/deskauth/pkg/tokenstore"
)

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Sign out and discard the stored credential",
	Long: `Remove the stored credential. The provider is asked to revoke the
access token on a best-effort basis; revocation failures are logged but
never block the sign-out.`,
	RunE: logoutCmdFunc,
}

func logoutCmdFunc(cmd *cobra.Command, _ []string) error {
	logger.Initialize()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	store := tokenstore.New(config.StateDir())
	credential, err := store.Load()
	if err != nil {
		if errors.Is(err, tokenstore.ErrNotFound) {
			fmt.Println("Not signed in")
			return nil
		}
		return err
	}

	if credential.Token != nil && credential.Token.AccessToken != "" {
		if err := oauth.Revoke(cmd.Context(), cfg.RevokeURL, credential.Token.AccessToken); err != nil {
			logger.Warnf("Could not revoke access token: %v", err)
		}
	}

	if err := store.Clear(); err != nil {
		return err
	}
	fmt.Println("Signed out")
	return nil
}
