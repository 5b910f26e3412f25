// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package tokenstore

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/deskauth/pkg/oauth"
)

func TestSaveAndLoadRoundTrip(t *testing.T) {
	t.Parallel()

	store := New(filepath.Join(t.TempDir(), "deskauth"))
	credential := &oauth.Credential{
		Token: &oauth.TokenResult{
			AccessToken:  "AT1",
			RefreshToken: "RT1",
			IDToken:      "IT1",
			TokenType:    "Bearer",
			Expiry:       time.Now().Add(time.Hour).Truncate(time.Second),
		},
	}

	require.NoError(t, store.Save(credential))

	loaded, err := store.Load()
	require.NoError(t, err)
	require.NotNil(t, loaded.Token)
	assert.Equal(t, "AT1", loaded.Token.AccessToken)
	assert.Equal(t, "RT1", loaded.Token.RefreshToken)
	assert.Equal(t, "IT1", loaded.Token.IDToken)
}

func TestSaveCustomTokenCredential(t *testing.T) {
	t.Parallel()

	store := New(t.TempDir())
	require.NoError(t, store.Save(&oauth.Credential{CustomToken: "CT1"}))

	loaded, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, "CT1", loaded.CustomToken)
	assert.Nil(t, loaded.Token)
}

func TestSaveNilCredential(t *testing.T) {
	t.Parallel()

	store := New(t.TempDir())
	assert.Error(t, store.Save(nil))
}

func TestSaveUsesOwnerOnlyPermissions(t *testing.T) {
	t.Parallel()
	if runtime.GOOS == "windows" {
		t.Skip("unix permission bits")
	}

	dir := filepath.Join(t.TempDir(), "state")
	store := New(dir)
	require.NoError(t, store.Save(&oauth.Credential{CustomToken: "CT1"}))

	dirInfo, err := os.Stat(dir)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0700), dirInfo.Mode().Perm())

	fileInfo, err := os.Stat(filepath.Join(dir, credentialFile))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), fileInfo.Mode().Perm())
}

func TestLoadMissingCredential(t *testing.T) {
	t.Parallel()

	store := New(t.TempDir())
	_, err := store.Load()
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLoadCorruptCredential(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, credentialFile), []byte("not json"), 0600))

	_, err := New(dir).Load()
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestClear(t *testing.T) {
	t.Parallel()

	store := New(t.TempDir())
	require.NoError(t, store.Save(&oauth.Credential{CustomToken: "CT1"}))
	require.NoError(t, store.Clear())

	_, err := store.Load()
	assert.ErrorIs(t, err, ErrNotFound)

	// Clearing again is a no-op.
	assert.NoError(t, store.Clear())
}
