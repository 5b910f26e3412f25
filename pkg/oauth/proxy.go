// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package oauth

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/stacklok/deskauth/pkg/errors"
	"github.com/stacklok/deskauth/pkg/logger"
	"github.com/stacklok/deskauth/pkg/networking"
)

const (
	// DefaultURLFetchTimeout bounds a single authorization-URL fetch from
	// the backend. A timeout here surfaces as a distinct, user-actionable
	// error instead of an indefinite hang.
	DefaultURLFetchTimeout = 10 * time.Second

	// urlFetchMaxTries includes the initial attempt.
	urlFetchMaxTries = 3

	authURLPath  = "/getOAuthUrl"
	exchangePath = "/exchangeOAuthCode"
	refreshPath  = "/refreshOAuthToken"
)

// ProxiedStrategy performs the token exchange through a backend service
// that holds the client secret. The backend mints the state and PKCE
// verifier, performs the real exchange against the provider, and returns
// a single opaque custom token instead of raw provider tokens.
type ProxiedStrategy struct {
	baseURL string
	client  networking.HTTPClient

	urlFetchTimeout time.Duration
}

// NewProxiedStrategy creates a strategy backed by the exchange service at
// baseURL.
func NewProxiedStrategy(baseURL string) (*ProxiedStrategy, error) {
	baseURL = strings.TrimRight(baseURL, "/")
	if err := networking.ValidateEndpointURL(baseURL); err != nil {
		return nil, errors.NewConfigurationError("invalid backend base URL", err)
	}
	return &ProxiedStrategy{
		baseURL:         baseURL,
		client:          networking.NewHttpClientBuilder().Build(),
		urlFetchTimeout: DefaultURLFetchTimeout,
	}, nil
}

// authURLResponse is the backend's answer to the authorization URL fetch.
type authURLResponse struct {
	AuthURL      string `json:"authUrl"`
	State        string `json:"state"`
	CodeVerifier string `json:"codeVerifier"`
}

// exchangeRequest is the body posted to the backend exchange resource.
type exchangeRequest struct {
	Code         string `json:"code"`
	State        string `json:"state"`
	CodeVerifier string `json:"codeVerifier"`
	RedirectURI  string `json:"redirectUri"`
}

// exchangeResponse carries the backend-minted credential.
type exchangeResponse struct {
	CustomToken string `json:"customToken"`
}

// refreshRequest is the body posted to the optional refresh resource.
type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// Begin fetches a provider-bound authorization URL plus a server-minted
// state and code verifier from the backend. Transient network failures
// are retried with exponential backoff; each attempt is bounded by the
// URL-fetch timeout.
func (s *ProxiedStrategy) Begin(ctx context.Context, redirectURI string) (*AuthorizationRequest, error) {
	fetchURL := fmt.Sprintf("%s%s?redirect_uri=%s", s.baseURL, authURLPath, url.QueryEscape(redirectURI))

	operation := func() (*authURLResponse, error) {
		attemptCtx, cancel := context.WithTimeout(ctx, s.urlFetchTimeout)
		defer cancel()

		req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, fetchURL, nil)
		if err != nil {
			return nil, backoff.Permanent(errors.NewConfigurationError("failed to build authorization URL request", err))
		}
		req.Header.Set("Accept", networking.ContentTypeJSON)

		resp, err := s.client.Do(req)
		if err != nil {
			// Transient; let backoff retry it.
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body := readBodyPreview(resp.Body)
			if resp.StatusCode >= http.StatusInternalServerError {
				// Transient; let backoff retry it.
				return nil, errors.NewNetworkError(
					fmt.Sprintf("backend returned status %d for the authorization URL request", resp.StatusCode), nil)
			}
			return nil, backoff.Permanent(errors.NewConfigurationError(
				fmt.Sprintf("backend returned status %d for the authorization URL request: %s", resp.StatusCode, body), nil))
		}

		var parsed authURLResponse
		if err := json.NewDecoder(io.LimitReader(resp.Body, networking.DefaultMaxResponseSize)).Decode(&parsed); err != nil {
			return nil, backoff.Permanent(errors.NewConfigurationError("backend returned an unparseable authorization URL response", err))
		}
		return &parsed, nil
	}

	parsed, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(urlFetchMaxTries),
		backoff.WithNotify(func(err error, duration time.Duration) {
			logger.Debugf("Retrying authorization URL fetch after %v: %v", duration, err)
		}),
	)
	if err != nil {
		return nil, classifyBackendError("authorization URL fetch", err)
	}

	if parsed.AuthURL == "" || parsed.State == "" || parsed.CodeVerifier == "" {
		return nil, errors.NewConfigurationError("backend returned an incomplete authorization URL response", nil)
	}

	return &AuthorizationRequest{
		URL:          parsed.AuthURL,
		State:        parsed.State,
		CodeVerifier: parsed.CodeVerifier,
		RedirectURI:  redirectURI,
	}, nil
}

// Exchange posts the captured code plus the backend-minted state and
// verifier to the exchange resource. The state from the redirect is
// re-verified against the backend's value even though the backend checks
// it too.
func (s *ProxiedStrategy) Exchange(ctx context.Context, code, capturedState string, req *AuthorizationRequest) (*Credential, error) {
	if !StateEqual(capturedState, req.State) {
		return nil, errors.NewSecurityError("state parameter does not match the value issued by the backend", nil)
	}

	body, err := json.Marshal(exchangeRequest{
		Code:         code,
		State:        req.State,
		CodeVerifier: req.CodeVerifier,
		RedirectURI:  req.RedirectURI,
	})
	if err != nil {
		return nil, errors.NewConfigurationError("failed to encode exchange request", err)
	}

	ctx, cancel := context.WithTimeout(ctx, DefaultExchangeTimeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+exchangePath, bytes.NewReader(body))
	if err != nil {
		return nil, errors.NewConfigurationError("failed to build exchange request", err)
	}
	httpReq.Header.Set("Content-Type", networking.ContentTypeJSON)
	httpReq.Header.Set("Accept", networking.ContentTypeJSON)

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, classifyBackendError("code exchange", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		preview := readBodyPreview(resp.Body)
		if resp.StatusCode >= http.StatusInternalServerError {
			return nil, errors.NewNetworkError(
				fmt.Sprintf("backend exchange failed with status %d; try again later", resp.StatusCode), nil)
		}
		return nil, errors.NewTokenExchangeError(
			fmt.Sprintf("backend rejected the code exchange with status %d: %s", resp.StatusCode, preview), nil)
	}

	var parsed exchangeResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, networking.DefaultMaxResponseSize)).Decode(&parsed); err != nil {
		return nil, errors.NewTokenExchangeError("backend returned an unparseable exchange response", err)
	}
	if parsed.CustomToken == "" {
		return nil, errors.NewTokenExchangeError("backend exchange response carried no credential", nil)
	}

	return &Credential{CustomToken: parsed.CustomToken}, nil
}

// Refresh is a single call-through to the backend refresh resource.
func (s *ProxiedStrategy) Refresh(ctx context.Context, refreshToken string) (*Credential, error) {
	body, err := json.Marshal(refreshRequest{RefreshToken: refreshToken})
	if err != nil {
		return nil, errors.NewConfigurationError("failed to encode refresh request", err)
	}

	ctx, cancel := context.WithTimeout(ctx, DefaultExchangeTimeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+refreshPath, bytes.NewReader(body))
	if err != nil {
		return nil, errors.NewConfigurationError("failed to build refresh request", err)
	}
	httpReq.Header.Set("Content-Type", networking.ContentTypeJSON)

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, classifyBackendError("token refresh", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.NewTokenExchangeError(
			fmt.Sprintf("backend refresh failed with status %d: %s", resp.StatusCode, readBodyPreview(resp.Body)), nil)
	}

	var parsed exchangeResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, networking.DefaultMaxResponseSize)).Decode(&parsed); err != nil {
		return nil, errors.NewTokenExchangeError("backend returned an unparseable refresh response", err)
	}
	return &Credential{CustomToken: parsed.CustomToken}, nil
}

// classifyBackendError maps transport failures onto the error taxonomy.
func classifyBackendError(op string, err error) error {
	// Already classified by the operation itself.
	var flowErr *errors.Error
	if stderrors.As(err, &flowErr) {
		return err
	}

	if stderrors.Is(err, context.DeadlineExceeded) {
		return errors.NewTimeoutError(
			fmt.Sprintf("%s timed out; check your connection and try again", op), err)
	}
	var urlErr *url.Error
	if stderrors.As(err, &urlErr) && urlErr.Timeout() {
		return errors.NewTimeoutError(
			fmt.Sprintf("%s timed out; check your connection and try again", op), err)
	}
	return errors.NewNetworkError(
		fmt.Sprintf("%s failed; check your connection and try again", op), err)
}

// readBodyPreview reads a short prefix of a response body for error
// messages. Never used on bodies that may contain secrets.
func readBodyPreview(r io.Reader) string {
	preview, err := io.ReadAll(io.LimitReader(r, networking.DefaultErrorPreviewSize))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(preview))
}
