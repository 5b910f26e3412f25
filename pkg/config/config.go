// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package config loads the resolved deskauth configuration. The result
// is a plain struct injected into the flow at construction time; nothing
// reads configuration state per call.
package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
	"github.com/spf13/viper"

	"github.com/stacklok/deskauth/pkg/errors"
	"github.com/stacklok/deskauth/pkg/networking"
	"github.com/stacklok/deskauth/pkg/oauth"
)

// Exchange strategy names accepted in configuration.
const (
	StrategyDirect  = "direct"
	StrategyProxied = "proxied"
)

// appName is the directory name used under the XDG config and state homes.
const appName = "deskauth"

// Config is the resolved deskauth configuration.
type Config struct {
	// Strategy selects the token exchange strategy: direct or proxied.
	Strategy string `mapstructure:"strategy"`

	// ClientID is the OAuth client ID (direct strategy).
	ClientID string `mapstructure:"client_id"`

	// ClientSecret is the OAuth client secret (direct strategy).
	ClientSecret string `mapstructure:"client_secret"`

	// AuthURL, TokenURL, and RevokeURL are the provider endpoints.
	AuthURL   string `mapstructure:"auth_url"`
	TokenURL  string `mapstructure:"token_url"`
	RevokeURL string `mapstructure:"revoke_url"`

	// BackendURL is the base URL of the exchange backend (proxied strategy).
	BackendURL string `mapstructure:"backend_url"`

	// Scopes are the OAuth scopes to request.
	Scopes []string `mapstructure:"scopes"`

	// CallbackPort fixes the callback port (0 = auto-select).
	CallbackPort int `mapstructure:"callback_port"`

	// RedirectWait bounds the wait for the browser redirect.
	RedirectWait time.Duration `mapstructure:"redirect_wait"`

	// AllowedAuthHosts is the provider host allow-list for browser launch.
	AllowedAuthHosts []string `mapstructure:"allowed_auth_hosts"`

	// OAuthParams are extra authorization URL parameters.
	OAuthParams map[string]string `mapstructure:"oauth_params"`
}

// Load resolves configuration once, from defaults, an optional YAML file
// under the XDG config home, and DESKAUTH_* environment variables, in
// increasing precedence.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName(appName)
	v.SetConfigType("yaml")
	v.AddConfigPath(filepath.Join(xdg.ConfigHome, appName))
	v.SetEnvPrefix("DESKAUTH")
	v.AutomaticEnv()

	setDefaults(v)
	if err := bindEnv(v); err != nil {
		return nil, errors.NewConfigurationError("failed to bind environment variables", err)
	}

	if err := v.ReadInConfig(); err != nil {
		// A missing file is fine; defaults and env cover it.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, errors.NewConfigurationError("failed to read config file", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.NewConfigurationError("failed to parse configuration", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// setDefaults installs the Google sign-in defaults; a config file or
// environment overrides them for other providers.
func setDefaults(v *viper.Viper) {
	v.SetDefault("strategy", StrategyDirect)
	v.SetDefault("auth_url", "https://accounts.google.com/o/oauth2/v2/auth")
	v.SetDefault("token_url", "https://oauth2.googleapis.com/token")
	v.SetDefault("revoke_url", "https://oauth2.googleapis.com/revoke")
	v.SetDefault("scopes", []string{"openid", "profile", "email"})
	v.SetDefault("allowed_auth_hosts", []string{"accounts.google.com"})
	v.SetDefault("redirect_wait", oauth.DefaultRedirectWait)
	v.SetDefault("oauth_params", map[string]string{
		"access_type": "offline",
		"prompt":      "consent",
	})
}

// bindEnv registers every config key with viper. AutomaticEnv alone does
// not surface DESKAUTH_* variables to Unmarshal for keys that have no
// default, so keys like client_id must be bound explicitly.
func bindEnv(v *viper.Viper) error {
	keys := []string{
		"strategy",
		"client_id",
		"client_secret",
		"auth_url",
		"token_url",
		"revoke_url",
		"backend_url",
		"scopes",
		"callback_port",
		"redirect_wait",
		"allowed_auth_hosts",
	}
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validate() error {
	switch c.Strategy {
	case StrategyDirect, StrategyProxied:
	default:
		return errors.NewConfigurationError(
			fmt.Sprintf("unknown exchange strategy %q; use %q or %q", c.Strategy, StrategyDirect, StrategyProxied), nil)
	}

	if c.Strategy == StrategyProxied {
		if c.BackendURL == "" {
			return errors.NewConfigurationError("the proxied strategy requires backend_url", nil)
		}
		if err := networking.ValidateEndpointURL(c.BackendURL); err != nil {
			return errors.NewConfigurationError("invalid backend_url", err)
		}
	}

	for _, endpoint := range []string{c.AuthURL, c.TokenURL} {
		if endpoint == "" {
			continue
		}
		if err := networking.ValidateEndpointURL(endpoint); err != nil {
			return errors.NewConfigurationError("invalid provider endpoint", err)
		}
	}
	return nil
}

// FlowConfig converts the resolved configuration into the flow's config.
func (c *Config) FlowConfig() *oauth.Config {
	return &oauth.Config{
		ClientID:         c.ClientID,
		ClientSecret:     c.ClientSecret,
		AuthURL:          c.AuthURL,
		TokenURL:         c.TokenURL,
		RevokeURL:        c.RevokeURL,
		Scopes:           c.Scopes,
		CallbackPort:     c.CallbackPort,
		RedirectWait:     c.RedirectWait,
		AllowedAuthHosts: c.AllowedAuthHosts,
		OAuthParams:      c.OAuthParams,
	}
}

// BuildStrategy builds the token exchange strategy selected by configuration.
func (c *Config) BuildStrategy() (oauth.Strategy, error) {
	switch c.Strategy {
	case StrategyProxied:
		return oauth.NewProxiedStrategy(c.BackendURL)
	default:
		return oauth.NewDirectStrategy(c.FlowConfig()), nil
	}
}

// StateDir returns the directory for persisted deskauth state, e.g. the
// credential cache.
func StateDir() string {
	return filepath.Join(xdg.StateHome, appName)
}
