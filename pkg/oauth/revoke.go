// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package oauth

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/stacklok/deskauth/pkg/networking"
)

// revokeTimeout bounds the best-effort revocation call.
const revokeTimeout = 10 * time.Second

// Revoke asks the provider to revoke an access token. Best-effort,
// called on sign-out: callers log a failure and move on, they never
// fail the sign-out over it.
func Revoke(ctx context.Context, revokeURL, accessToken string) error {
	if revokeURL == "" || accessToken == "" {
		return nil
	}
	if err := networking.ValidateEndpointURL(revokeURL); err != nil {
		return fmt.Errorf("invalid revocation endpoint: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, revokeTimeout)
	defer cancel()

	form := url.Values{"token": {accessToken}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, revokeURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to build revocation request: %w", err)
	}
	req.Header.Set("Content-Type", networking.ContentTypeFormURLEncoded)

	client := networking.NewHttpClientBuilder().WithTimeout(revokeTimeout).Build()
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("revocation request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("provider returned status %d for revocation", resp.StatusCode)
	}
	return nil
}
