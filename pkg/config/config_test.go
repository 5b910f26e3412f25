// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/deskauth/pkg/oauth"
)

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{
			name: "direct strategy",
			cfg:  Config{Strategy: StrategyDirect},
		},
		{
			name: "proxied strategy with backend",
			cfg:  Config{Strategy: StrategyProxied, BackendURL: "https://backend.example"},
		},
		{
			name: "proxied strategy with localhost backend",
			cfg:  Config{Strategy: StrategyProxied, BackendURL: "http://localhost:8080"},
		},
		{
			name:    "unknown strategy",
			cfg:     Config{Strategy: "peer-to-peer"},
			wantErr: "unknown exchange strategy",
		},
		{
			name:    "proxied strategy without backend",
			cfg:     Config{Strategy: StrategyProxied},
			wantErr: "requires backend_url",
		},
		{
			name:    "proxied strategy with plain HTTP backend",
			cfg:     Config{Strategy: StrategyProxied, BackendURL: "http://backend.example"},
			wantErr: "invalid backend_url",
		},
		{
			name:    "direct strategy with plain HTTP token endpoint",
			cfg:     Config{Strategy: StrategyDirect, TokenURL: "http://provider.example/token"},
			wantErr: "invalid provider endpoint",
		},
		{
			name: "direct strategy with localhost token endpoint",
			cfg:  Config{Strategy: StrategyDirect, TokenURL: "http://localhost:9000/token"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := tt.cfg.validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestLoadDefaults(t *testing.T) { //nolint:paralleltest // mutates process env
	t.Setenv("DESKAUTH_CLIENT_ID", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, StrategyDirect, cfg.Strategy)
	assert.Equal(t, "https://accounts.google.com/o/oauth2/v2/auth", cfg.AuthURL)
	assert.Equal(t, "https://oauth2.googleapis.com/token", cfg.TokenURL)
	assert.Equal(t, "https://oauth2.googleapis.com/revoke", cfg.RevokeURL)
	assert.Equal(t, []string{"openid", "profile", "email"}, cfg.Scopes)
	assert.Equal(t, []string{"accounts.google.com"}, cfg.AllowedAuthHosts)
	assert.Equal(t, oauth.DefaultRedirectWait, cfg.RedirectWait)
	assert.Equal(t, "offline", cfg.OAuthParams["access_type"])
	assert.Equal(t, "consent", cfg.OAuthParams["prompt"])
}

func TestLoadEnvironmentOverrides(t *testing.T) { //nolint:paralleltest // mutates process env
	t.Setenv("DESKAUTH_CLIENT_ID", "env-client")
	t.Setenv("DESKAUTH_AUTH_URL", "https://id.example/authorize")
	t.Setenv("DESKAUTH_TOKEN_URL", "https://id.example/token")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "env-client", cfg.ClientID)
	assert.Equal(t, "https://id.example/authorize", cfg.AuthURL)
	assert.Equal(t, "https://id.example/token", cfg.TokenURL)
}

func TestLoadEnvironmentKeysWithoutDefaults(t *testing.T) { //nolint:paralleltest // mutates process env
	// These keys have no viper default, so they only reach Unmarshal
	// through an explicit env binding.
	t.Setenv("DESKAUTH_CLIENT_ID", "env-client")
	t.Setenv("DESKAUTH_CLIENT_SECRET", "env-secret")
	t.Setenv("DESKAUTH_CALLBACK_PORT", "4242")
	t.Setenv("DESKAUTH_STRATEGY", StrategyProxied)
	t.Setenv("DESKAUTH_BACKEND_URL", "https://backend.example")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "env-client", cfg.ClientID)
	assert.Equal(t, "env-secret", cfg.ClientSecret)
	assert.Equal(t, 4242, cfg.CallbackPort)
	assert.Equal(t, StrategyProxied, cfg.Strategy)
	assert.Equal(t, "https://backend.example", cfg.BackendURL)
}

func TestFlowConfig(t *testing.T) {
	t.Parallel()

	cfg := Config{
		ClientID:         "abc",
		AuthURL:          "https://id.example/authorize",
		TokenURL:         "https://id.example/token",
		Scopes:           []string{"openid"},
		CallbackPort:     4242,
		AllowedAuthHosts: []string{"id.example"},
		OAuthParams:      map[string]string{"prompt": "consent"},
	}

	flowCfg := cfg.FlowConfig()
	assert.Equal(t, "abc", flowCfg.ClientID)
	assert.Equal(t, "https://id.example/authorize", flowCfg.AuthURL)
	assert.Equal(t, 4242, flowCfg.CallbackPort)
	assert.Equal(t, []string{"id.example"}, flowCfg.AllowedAuthHosts)
	assert.Equal(t, "consent", flowCfg.OAuthParams["prompt"])
}

func TestBuildStrategy(t *testing.T) {
	t.Parallel()

	direct, err := (&Config{Strategy: StrategyDirect, ClientID: "abc"}).BuildStrategy()
	require.NoError(t, err)
	assert.IsType(t, &oauth.DirectStrategy{}, direct)

	proxied, err := (&Config{Strategy: StrategyProxied, BackendURL: "https://backend.example"}).BuildStrategy()
	require.NoError(t, err)
	assert.IsType(t, &oauth.ProxiedStrategy{}, proxied)

	_, err = (&Config{Strategy: StrategyProxied, BackendURL: "://bad"}).BuildStrategy()
	assert.Error(t, err)
}

func TestStateDir(t *testing.T) {
	t.Parallel()

	dir := StateDir()
	assert.NotEmpty(t, dir)
	assert.Contains(t, dir, appName)
}
