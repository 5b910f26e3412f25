// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package oauth

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/url"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"

	"github.com/stacklok/deskauth/pkg/errors"
	"github.com/stacklok/deskauth/pkg/logger"
	"github.com/stacklok/deskauth/pkg/networking"
)

// DefaultExchangeTimeout bounds a single token exchange round-trip.
const DefaultExchangeTimeout = 30 * time.Second

// AuthorizationRequest is the immutable value describing one
// authorization attempt: the provider-bound URL plus the security
// parameters tied to it. Built once per flow session.
type AuthorizationRequest struct {
	// URL is the fully rendered authorization endpoint URL.
	URL string

	// State is the CSRF state round-tripped through the redirect.
	State string

	// CodeVerifier is the PKCE secret proven during exchange.
	CodeVerifier string

	// RedirectURI is the loopback redirect URI the request was built for.
	RedirectURI string
}

// TokenResult contains the tokens returned by a direct provider exchange.
type TokenResult struct {
	AccessToken  string
	RefreshToken string
	IDToken      string
	TokenType    string
	Expiry       time.Time
	Claims       jwt.MapClaims
}

// Credential is the terminal output of a sign-in flow. Direct exchanges
// populate Token; the backend-proxied exchange yields a single opaque
// CustomToken minted by the backend instead of raw provider tokens.
type Credential struct {
	Token       *TokenResult `json:"token,omitempty"`
	CustomToken string       `json:"custom_token,omitempty"`
}

// Strategy is a pluggable token-exchange strategy. Begin produces the
// authorization request for a session (generating security parameters
// locally, or fetching server-minted ones from a backend); Exchange
// turns a validated authorization code into a credential. capturedState
// is the state parameter from the redirect; strategies re-verify it
// against the request even though the orchestrator already has, so a
// bug upstream cannot skip the check.
type Strategy interface {
	Begin(ctx context.Context, redirectURI string) (*AuthorizationRequest, error)
	Exchange(ctx context.Context, code, capturedState string, req *AuthorizationRequest) (*Credential, error)
}

// DirectStrategy exchanges the authorization code straight against the
// provider's token endpoint.
type DirectStrategy struct {
	cfg     *Config
	client  networking.HTTPClient
	timeout time.Duration
}

// NewDirectStrategy creates a strategy talking directly to the provider.
func NewDirectStrategy(cfg *Config) *DirectStrategy {
	return &DirectStrategy{
		cfg:     cfg,
		client:  networking.NewHttpClientBuilder().Build(),
		timeout: DefaultExchangeTimeout,
	}
}

// Begin generates the PKCE pair and CSRF state locally and renders the
// authorization URL.
func (s *DirectStrategy) Begin(_ context.Context, redirectURI string) (*AuthorizationRequest, error) {
	verifier, err := GenerateCodeVerifier()
	if err != nil {
		return nil, errors.NewConfigurationError("failed to generate PKCE parameters", err)
	}
	state, err := GenerateState()
	if err != nil {
		return nil, errors.NewConfigurationError("failed to generate state parameter", err)
	}

	authURL, err := BuildAuthorizationURL(s.cfg, redirectURI, CodeChallenge(verifier), state)
	if err != nil {
		return nil, err
	}

	return &AuthorizationRequest{
		URL:          authURL,
		State:        state,
		CodeVerifier: verifier,
		RedirectURI:  redirectURI,
	}, nil
}

// Exchange posts the authorization code and PKCE verifier to the token
// endpoint and parses the token response. The call is bounded by the
// strategy timeout and cancellable through ctx.
func (s *DirectStrategy) Exchange(ctx context.Context, code, capturedState string, req *AuthorizationRequest) (*Credential, error) {
	if s.cfg.TokenURL == "" {
		return nil, errors.NewConfigurationError("no token endpoint is configured", nil)
	}
	if !StateEqual(capturedState, req.State) {
		return nil, errors.NewSecurityError("state parameter does not match the value sent to the provider", nil)
	}

	oauth2Config := &oauth2.Config{
		ClientID:     s.cfg.ClientID,
		ClientSecret: s.cfg.ClientSecret,
		RedirectURL:  req.RedirectURI,
		Scopes:       s.cfg.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:  s.cfg.AuthURL,
			TokenURL: s.cfg.TokenURL,
			// The token request is form-encoded with the client
			// credentials in the body, not a Basic auth header.
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	ctx = context.WithValue(ctx, oauth2.HTTPClient, s.client)

	token, err := oauth2Config.Exchange(ctx, code,
		oauth2.SetAuthURLParam("code_verifier", req.CodeVerifier))
	if err != nil {
		return nil, classifyExchangeError(err)
	}

	return &Credential{Token: processToken(token)}, nil
}

// classifyExchangeError maps transport and provider failures onto the
// flow error taxonomy so the caller can pick retry vs support messaging.
// Secrets never appear in the resulting messages.
func classifyExchangeError(err error) error {
	var retrieveErr *oauth2.RetrieveError
	if stderrors.As(err, &retrieveErr) {
		status := 0
		if retrieveErr.Response != nil {
			status = retrieveErr.Response.StatusCode
		}
		switch retrieveErr.ErrorCode {
		case "invalid_grant":
			return errors.NewTokenExchangeError(
				"the authorization code expired or was already used; try signing in again", err)
		case "invalid_client", "unauthorized_client":
			return errors.NewTokenExchangeError(
				"the provider rejected the client credentials; contact support", err)
		default:
			return errors.NewTokenExchangeError(
				fmt.Sprintf("token endpoint returned status %d (%s)", status, retrieveErr.ErrorCode), err)
		}
	}

	if stderrors.Is(err, context.DeadlineExceeded) {
		return errors.NewTimeoutError("token exchange timed out; check your connection and try again", err)
	}
	var urlErr *url.Error
	if stderrors.As(err, &urlErr) {
		if urlErr.Timeout() {
			return errors.NewTimeoutError("token exchange timed out; check your connection and try again", err)
		}
		return errors.NewNetworkError("could not reach the token endpoint; check your connection and try again", err)
	}

	return errors.NewTokenExchangeError("token exchange failed", err)
}

// processToken converts an oauth2 token into a TokenResult, extracting
// claims from the ID token when present and falling back to the access
// token for providers that issue JWT access tokens.
func processToken(token *oauth2.Token) *TokenResult {
	result := &TokenResult{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		TokenType:    token.TokenType,
		Expiry:       token.Expiry,
	}

	if idToken, ok := token.Extra("id_token").(string); ok && idToken != "" {
		result.IDToken = idToken
		if claims, err := extractJWTClaims(idToken); err == nil {
			result.Claims = claims
		} else {
			logger.Debugf("Could not extract claims from ID token: %v", err)
		}
	} else if claims, err := extractJWTClaims(token.AccessToken); err == nil {
		result.Claims = claims
	} else {
		logger.Debugf("Could not extract claims from access token (may be opaque): %v", err)
	}

	return result
}

// extractJWTClaims parses a JWT without verification to read its claims.
// Verification is the identity system's job; this is display metadata.
func extractJWTClaims(tokenString string) (jwt.MapClaims, error) {
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())
	token, _, err := parser.ParseUnverified(tokenString, jwt.MapClaims{})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, stderrors.New("failed to extract claims")
	}
	return claims, nil
}
