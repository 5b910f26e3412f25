// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package oauth

import (
	"fmt"
	"net/url"
	"sort"

	"golang.org/x/oauth2"

	"github.com/stacklok/deskauth/pkg/errors"
	"github.com/stacklok/deskauth/pkg/networking"
)

// BuildAuthorizationURL assembles the provider authorization endpoint URL
// with the client id, redirect URI, scopes, PKCE challenge, and CSRF
// state, all percent-encoded. Configuration problems short-circuit here,
// before any network or browser activity.
func BuildAuthorizationURL(cfg *Config, redirectURI, codeChallenge, state string) (string, error) {
	if cfg.ClientID == "" {
		return "", errors.NewConfigurationError(
			"no OAuth client ID is configured; "+
				"set DESKAUTH_CLIENT_ID or add client_id to the config file if it was not baked in at build time, "+
				"or use the backend-proxied sign-in if this platform ships without provider credentials",
			nil)
	}
	if cfg.AuthURL == "" {
		return "", errors.NewConfigurationError("no authorization endpoint is configured", nil)
	}

	if err := validateRedirectURI(redirectURI); err != nil {
		return "", err
	}

	oauth2Config := &oauth2.Config{
		ClientID:    cfg.ClientID,
		RedirectURL: redirectURI,
		Scopes:      cfg.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL: cfg.AuthURL,
		},
	}

	opts := []oauth2.AuthCodeOption{
		oauth2.SetAuthURLParam("code_challenge", codeChallenge),
		oauth2.SetAuthURLParam("code_challenge_method", ChallengeMethodS256),
	}
	// Deterministic ordering keeps the rendered URL stable across runs.
	params := make([]string, 0, len(cfg.OAuthParams))
	for k := range cfg.OAuthParams {
		params = append(params, k)
	}
	sort.Strings(params)
	for _, k := range params {
		opts = append(opts, oauth2.SetAuthURLParam(k, cfg.OAuthParams[k]))
	}

	return oauth2Config.AuthCodeURL(state, opts...), nil
}

// validateRedirectURI enforces the loopback shape required for desktop
// flows: http scheme, localhost host.
func validateRedirectURI(redirectURI string) error {
	parsed, err := url.Parse(redirectURI)
	if err != nil {
		return errors.NewConfigurationError(fmt.Sprintf("redirect URI %q is not parseable", redirectURI), err)
	}
	if parsed.Scheme != "http" || !networking.IsLocalhost(parsed.Host) {
		return errors.NewConfigurationError(
			fmt.Sprintf("redirect URI must be http://localhost:<port> for loopback flows, got %q", redirectURI), nil)
	}
	return nil
}
