// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package oauth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/deskauth/pkg/errors"
)

func newBackend(t *testing.T, handler http.HandlerFunc) *ProxiedStrategy {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	strategy, err := NewProxiedStrategy(server.URL)
	require.NoError(t, err)
	return strategy
}

func TestNewProxiedStrategyRejectsBadBaseURL(t *testing.T) {
	t.Parallel()

	tests := []string{
		"",
		"not-a-url",
		"ftp://backend.example.com",
		"http://backend.example.com", // http only allowed for localhost
	}

	for _, base := range tests {
		_, err := NewProxiedStrategy(base)
		require.Error(t, err, "base URL %q should be rejected", base)
		assert.True(t, errors.IsConfiguration(err))
	}
}

func TestProxiedStrategyBegin(t *testing.T) {
	t.Parallel()

	strategy := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/getOAuthUrl", r.URL.Path)
		assert.Equal(t, "http://localhost:8666", r.URL.Query().Get("redirect_uri"))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"authUrl":      "https://accounts.google.com/o/oauth2/v2/auth?state=server-state",
			"state":        "server-state",
			"codeVerifier": "server-verifier",
		})
	})

	request, err := strategy.Begin(context.Background(), "http://localhost:8666")
	require.NoError(t, err)

	assert.Equal(t, "server-state", request.State)
	assert.Equal(t, "server-verifier", request.CodeVerifier)
	assert.Equal(t, "http://localhost:8666", request.RedirectURI)
	assert.Contains(t, request.URL, "accounts.google.com")
}

func TestProxiedStrategyBeginIncompleteResponse(t *testing.T) {
	t.Parallel()

	strategy := newBackend(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"authUrl": "https://accounts.google.com/auth"})
	})

	_, err := strategy.Begin(context.Background(), "http://localhost:8666")
	require.Error(t, err)
	assert.True(t, errors.IsConfiguration(err))
}

func TestProxiedStrategyBeginBackendErrorIsNotRetried(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	strategy := newBackend(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		http.Error(w, "no such route", http.StatusNotFound)
	})

	_, err := strategy.Begin(context.Background(), "http://localhost:8666")
	require.Error(t, err)
	assert.True(t, errors.IsConfiguration(err))
	assert.Equal(t, int32(1), calls.Load(), "a definitive backend answer must not be retried")
}

func TestProxiedStrategyBeginTimeout(t *testing.T) {
	t.Parallel()

	strategy := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})
	strategy.urlFetchTimeout = 50 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	_, err := strategy.Begin(ctx, "http://localhost:8666")
	require.Error(t, err)
	assert.True(t, errors.IsTimeout(err) || errors.IsNetwork(err),
		"a hung backend must surface as a user-actionable transport error, got: %v", err)
}

func TestProxiedStrategyExchange(t *testing.T) {
	t.Parallel()

	strategy := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/exchangeOAuthCode", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)

		var req exchangeRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "validcode", req.Code)
		assert.Equal(t, "server-state", req.State)
		assert.Equal(t, "server-verifier", req.CodeVerifier)
		assert.Equal(t, "http://localhost:8666", req.RedirectURI)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"customToken": "CT1"})
	})

	request := &AuthorizationRequest{
		State:        "server-state",
		CodeVerifier: "server-verifier",
		RedirectURI:  "http://localhost:8666",
	}

	credential, err := strategy.Exchange(context.Background(), "validcode", "server-state", request)
	require.NoError(t, err)
	assert.Equal(t, "CT1", credential.CustomToken)
	assert.Nil(t, credential.Token, "the proxied strategy never sees raw provider tokens")
}

func TestProxiedStrategyExchangeStateMismatch(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	strategy := newBackend(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusOK)
	})

	request := &AuthorizationRequest{State: "server-state", CodeVerifier: "v", RedirectURI: "http://localhost:8666"}

	_, err := strategy.Exchange(context.Background(), "code", "TAMPERED", request)
	require.Error(t, err)
	assert.True(t, errors.IsSecurity(err))
	assert.Zero(t, calls.Load(), "a state mismatch must never reach the backend")
}

func TestProxiedStrategyExchangeRejected(t *testing.T) {
	t.Parallel()

	strategy := newBackend(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"invalid_grant"}`))
	})

	request := &AuthorizationRequest{State: "S", CodeVerifier: "v", RedirectURI: "http://localhost:8666"}

	_, err := strategy.Exchange(context.Background(), "stale", "S", request)
	require.Error(t, err)
	assert.True(t, errors.IsTokenExchange(err))
	assert.Contains(t, err.Error(), "invalid_grant")
}

func TestProxiedStrategyExchangeBackendDown(t *testing.T) {
	t.Parallel()

	strategy := newBackend(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	})

	request := &AuthorizationRequest{State: "S", CodeVerifier: "v", RedirectURI: "http://localhost:8666"}

	_, err := strategy.Exchange(context.Background(), "code", "S", request)
	require.Error(t, err)
	assert.True(t, errors.IsNetwork(err), "5xx from the backend should read as transient, got: %v", err)
}

func TestProxiedStrategyExchangeEmptyCredential(t *testing.T) {
	t.Parallel()

	strategy := newBackend(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{}`))
	})

	request := &AuthorizationRequest{State: "S", CodeVerifier: "v", RedirectURI: "http://localhost:8666"}

	_, err := strategy.Exchange(context.Background(), "code", "S", request)
	require.Error(t, err)
	assert.True(t, errors.IsTokenExchange(err))
}

func TestProxiedStrategyRefresh(t *testing.T) {
	t.Parallel()

	strategy := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/refreshOAuthToken", r.URL.Path)

		var req refreshRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "RT1", req.RefreshToken)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"customToken": "CT2"})
	})

	credential, err := strategy.Refresh(context.Background(), "RT1")
	require.NoError(t, err)
	assert.Equal(t, "CT2", credential.CustomToken)
}
