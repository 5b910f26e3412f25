// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package tokenstore persists the credential produced by a sign-in flow
// so logout can find the token to revoke and a restart does not force a
// fresh browser round-trip.
package tokenstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/stacklok/deskauth/pkg/oauth"
)

const credentialFile = "credential.json"

// ErrNotFound is returned when no credential has been stored.
var ErrNotFound = errors.New("no stored credential")

// Store reads and writes the on-disk credential cache.
type Store struct {
	dir string
}

// New creates a store rooted at dir.
func New(dir string) *Store {
	return &Store{dir: dir}
}

func (s *Store) path() string {
	return filepath.Join(s.dir, credentialFile)
}

// Save writes the credential with owner-only permissions.
func (s *Store) Save(credential *oauth.Credential) error {
	if credential == nil {
		return fmt.Errorf("credential cannot be nil")
	}

	if err := os.MkdirAll(s.dir, 0700); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	data, err := json.Marshal(credential)
	if err != nil {
		return fmt.Errorf("failed to encode credential: %w", err)
	}

	if err := os.WriteFile(s.path(), data, 0600); err != nil {
		return fmt.Errorf("failed to write credential: %w", err)
	}
	return nil
}

// Load reads the stored credential, or ErrNotFound.
func (s *Store) Load() (*oauth.Credential, error) {
	data, err := os.ReadFile(s.path())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read credential: %w", err)
	}

	var credential oauth.Credential
	if err := json.Unmarshal(data, &credential); err != nil {
		return nil, fmt.Errorf("failed to parse stored credential: %w", err)
	}
	return &credential, nil
}

// Clear removes the stored credential. Removing a credential that does
// not exist is a no-op.
func (s *Store) Clear() error {
	if err := os.Remove(s.path()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove credential: %w", err)
	}
	return nil
}
