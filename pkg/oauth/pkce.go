// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package oauth implements the desktop OAuth 2.0 authorization-code flow
// with PKCE: security parameter generation, the loopback redirect
// listener, browser launch, redirect validation, and token exchange.
package oauth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
)

const (
	// codeVerifierBytes is the number of random bytes in a code verifier.
	// 96 bytes encode to 128 base64url characters, the RFC 7636 maximum.
	codeVerifierBytes = 96

	// stateBytes is the number of random bytes in a CSRF state token.
	stateBytes = 32

	// ChallengeMethodS256 is the PKCE code challenge method sent to the provider.
	ChallengeMethodS256 = "S256"
)

// GenerateCodeVerifier produces a cryptographically random PKCE code
// verifier. The base64url alphabet is a subset of the unreserved URI
// character set, so the result needs no further encoding.
func GenerateCodeVerifier() (string, error) {
	buf := make([]byte, codeVerifierBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate code verifier: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// CodeChallenge derives the S256 code challenge for a verifier:
// SHA-256, then base64url without padding. Deterministic.
func CodeChallenge(verifier string) string {
	hash := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(hash[:])
}

// GenerateState produces a cryptographically random CSRF state token.
func GenerateState() (string, error) {
	buf := make([]byte, stateBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// StateEqual compares two state tokens in constant time.
func StateEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
