// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package oauth

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/stacklok/deskauth/pkg/errors"
	"github.com/stacklok/deskauth/pkg/networking"
)

// OutcomeKind classifies a captured redirect.
type OutcomeKind int

const (
	// OutcomeGranted means the provider returned an authorization code.
	OutcomeGranted OutcomeKind = iota
	// OutcomeDenied means the provider returned an explicit error.
	OutcomeDenied
	// OutcomeMalformed means the redirect carried neither a code nor an error.
	OutcomeMalformed
)

// RedirectOutcome is the parsed result of the browser redirect.
// It is consumed exactly once per flow.
type RedirectOutcome struct {
	Kind             OutcomeKind
	Code             string
	State            string
	ErrorCode        string
	ErrorDescription string
}

// ParseRedirect classifies the query parameters of a captured redirect.
// A redirect with neither a code nor an explicit provider error is
// malformed, never a silent success or nil.
func ParseRedirect(query url.Values) RedirectOutcome {
	if errCode := query.Get("error"); errCode != "" {
		return RedirectOutcome{
			Kind:             OutcomeDenied,
			ErrorCode:        errCode,
			ErrorDescription: query.Get("error_description"),
		}
	}

	if code := query.Get("code"); code != "" {
		return RedirectOutcome{
			Kind:  OutcomeGranted,
			Code:  code,
			State: query.Get("state"),
		}
	}

	return RedirectOutcome{Kind: OutcomeMalformed}
}

// ValidateRedirect checks a parsed redirect against the session's CSRF
// state and returns the authorization code. A state mismatch is a hard
// security failure; the flow must not proceed to token exchange.
func ValidateRedirect(outcome RedirectOutcome, expectedState string) (string, error) {
	switch outcome.Kind {
	case OutcomeDenied:
		msg := outcome.ErrorCode
		if outcome.ErrorDescription != "" {
			msg = fmt.Sprintf("%s: %s", outcome.ErrorCode, outcome.ErrorDescription)
		}
		return "", errors.NewAuthorizationDeniedError(msg, nil)
	case OutcomeMalformed:
		return "", errors.NewMalformedRedirectError("redirect contained neither an authorization code nor an error", nil)
	case OutcomeGranted:
		if !StateEqual(outcome.State, expectedState) {
			return "", errors.NewSecurityError("state parameter does not match the value sent to the provider", nil)
		}
		return outcome.Code, nil
	default:
		return "", errors.NewMalformedRedirectError(fmt.Sprintf("unknown redirect outcome %d", outcome.Kind), nil)
	}
}

// shellMetaChars are the characters that must never appear in a URL
// handed to a subprocess-spawning browser fallback.
const shellMetaChars = ";|`$<>\"'\n\r"

// ValidateLaunchURL decides whether an authorization URL is safe to hand
// to a browser launch fallback that spawns a subprocess. The scheme must
// be https (or http on localhost), the host must be on the provider
// allow-list or localhost, and the rendered URL must contain no shell
// metacharacters.
func ValidateLaunchURL(raw string, allowedHosts []string) error {
	if strings.ContainsAny(raw, shellMetaChars) {
		return errors.NewSecurityError("authorization URL contains shell metacharacters", nil)
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return errors.NewSecurityError("authorization URL is not parseable", err)
	}

	switch parsed.Scheme {
	case "https":
	case "http":
		if !networking.IsLocalhost(parsed.Host) {
			return errors.NewSecurityError(fmt.Sprintf("http authorization URL with non-localhost host %q", parsed.Host), nil)
		}
	default:
		return errors.NewSecurityError(fmt.Sprintf("authorization URL has unsupported scheme %q", parsed.Scheme), nil)
	}

	if networking.IsLocalhost(parsed.Host) {
		return nil
	}
	host := parsed.Hostname()
	for _, allowed := range allowedHosts {
		if strings.EqualFold(host, allowed) {
			return nil
		}
	}
	return errors.NewSecurityError(fmt.Sprintf("authorization URL host %q is not on the provider allow-list", host), nil)
}
