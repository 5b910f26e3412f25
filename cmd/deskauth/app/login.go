package app

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/stacklok/deskauth/pkg/config"
	"github.com/stacklok/deskauth/pkg/logger"
	"github.com/stacklok/deskauth/pkg/oauth"
	"github.com/stacklok/deskauth/pkg/tokenstore"
)

var (
	loginSkipBrowser  bool
	loginCallbackPort int
	loginForce        bool
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in through the system browser",
	Long: `Sign in with the configured identity provider. Opens the default
browser for consent, captures the redirect on a loopback listener, and
stores the resulting credential for later use.`,
	RunE: loginCmdFunc,
}

func init() {
	loginCmd.Flags().BoolVar(&loginSkipBrowser, "skip-browser", false,
		"Print the authorization URL instead of opening a browser")
	loginCmd.Flags().IntVar(&loginCallbackPort, "callback-port", 0,
		"Port for the OAuth callback server (0 = auto-select)")
	loginCmd.Flags().BoolVar(&loginForce, "force", false,
		"Sign in again even if a valid credential is already stored")
}

func loginCmdFunc(cmd *cobra.Command, _ []string) error {
	logger.Initialize()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	store := tokenstore.New(config.StateDir())
	if !loginForce {
		if stored, err := store.Load(); err == nil && credentialUsable(stored) {
			fmt.Println("Already signed in (use --force to sign in again)")
			return nil
		}
	}

	flowCfg := cfg.FlowConfig()
	flowCfg.SkipBrowser = loginSkipBrowser
	if loginCallbackPort != 0 {
		flowCfg.CallbackPort = loginCallbackPort
	}

	strategy, err := cfg.BuildStrategy()
	if err != nil {
		return err
	}

	flow, err := oauth.NewFlow(flowCfg, strategy)
	if err != nil {
		return err
	}
	defer flow.Dispose()

	// An interrupt aborts the pending flow cleanly: the listener closes
	// and the port is released before the process exits.
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	credential, err := flow.Start(ctx)
	if err != nil {
		return fmt.Errorf("sign-in failed: %w", err)
	}

	if err := store.Save(credential); err != nil {
		logger.Warnf("Signed in, but could not store the credential: %v", err)
	}

	if credential.Token != nil && credential.Token.Claims != nil {
		if email, ok := credential.Token.Claims["email"].(string); ok && email != "" {
			fmt.Printf("Signed in as %s\n", email)
			return nil
		}
	}
	fmt.Println("Signed in successfully")
	return nil
}

// credentialUsable reports whether a stored credential can still serve
// requests without a fresh sign-in. Custom tokens are opaque, so their
// validity is left to the backend.
func credentialUsable(credential *oauth.Credential) bool {
	if credential == nil {
		return false
	}
	if credential.CustomToken != "" {
		return true
	}
	if credential.Token == nil || credential.Token.AccessToken == "" {
		return false
	}
	return credential.Token.Expiry.IsZero() || time.Now().Before(credential.Token.Expiry)
}
