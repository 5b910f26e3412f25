// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package oauth

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/deskauth/pkg/errors"
)

func testConfig() *Config {
	return &Config{
		ClientID: "test-client",
		AuthURL:  "https://accounts.google.com/o/oauth2/v2/auth",
		TokenURL: "https://oauth2.googleapis.com/token",
		Scopes:   []string{"openid", "profile", "email"},
		OAuthParams: map[string]string{
			"access_type": "offline",
			"prompt":      "consent",
		},
	}
}

func TestBuildAuthorizationURL(t *testing.T) {
	t.Parallel()

	authURL, err := BuildAuthorizationURL(testConfig(), "http://localhost:8666", "challenge123", "state456")
	require.NoError(t, err)

	parsed, err := url.Parse(authURL)
	require.NoError(t, err)
	assert.Equal(t, "accounts.google.com", parsed.Host)

	query := parsed.Query()
	assert.Equal(t, "test-client", query.Get("client_id"))
	assert.Equal(t, "http://localhost:8666", query.Get("redirect_uri"))
	assert.Equal(t, "code", query.Get("response_type"))
	assert.Equal(t, "openid profile email", query.Get("scope"))
	assert.Equal(t, "challenge123", query.Get("code_challenge"))
	assert.Equal(t, "S256", query.Get("code_challenge_method"))
	assert.Equal(t, "state456", query.Get("state"))
	assert.Equal(t, "offline", query.Get("access_type"))
	assert.Equal(t, "consent", query.Get("prompt"))
}

func TestBuildAuthorizationURLEncodesParameters(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Scopes = []string{"https://www.googleapis.com/auth/classroom.courses"}

	authURL, err := BuildAuthorizationURL(cfg, "http://localhost:9000", "c", "s")
	require.NoError(t, err)

	parsed, err := url.Parse(authURL)
	require.NoError(t, err)
	assert.Equal(t, "https://www.googleapis.com/auth/classroom.courses", parsed.Query().Get("scope"))
	assert.NotContains(t, authURL, " ")
}

func TestBuildAuthorizationURLErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		mutate      func(*Config)
		redirectURI string
	}{
		{
			name:        "empty client id",
			mutate:      func(c *Config) { c.ClientID = "" },
			redirectURI: "http://localhost:8666",
		},
		{
			name:        "missing auth endpoint",
			mutate:      func(c *Config) { c.AuthURL = "" },
			redirectURI: "http://localhost:8666",
		},
		{
			name:        "https redirect uri",
			mutate:      func(*Config) {},
			redirectURI: "https://localhost:8666",
		},
		{
			name:        "non-localhost redirect uri",
			mutate:      func(*Config) {},
			redirectURI: "http://example.com:8666",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := testConfig()
			tt.mutate(cfg)

			_, err := BuildAuthorizationURL(cfg, tt.redirectURI, "c", "s")
			require.Error(t, err)
			assert.True(t, errors.IsConfiguration(err), "expected a configuration error, got: %v", err)
		})
	}
}

func TestBuildAuthorizationURLEmptyClientIDMessageIsActionable(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.ClientID = ""

	_, err := BuildAuthorizationURL(cfg, "http://localhost:8666", "c", "s")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DESKAUTH_CLIENT_ID")
}
