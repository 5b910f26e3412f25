// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package oauth

import (
	"fmt"
	"os/exec"
	"runtime"

	"github.com/pkg/browser"

	"github.com/stacklok/deskauth/pkg/errors"
	"github.com/stacklok/deskauth/pkg/logger"
)

// Launcher opens a URL in the user's default browser. It first tries the
// platform's native open facility and then falls back to spawning the
// platform's opener command. URLs must pass the launch-safety check
// before any subprocess is spawned.
type Launcher struct {
	// AllowedHosts is the identity provider host allow-list enforced
	// before subprocess fallbacks.
	AllowedHosts []string

	// openURL and runCommand exist so tests can observe launch attempts
	// without opening a real browser or spawning processes.
	openURL    func(url string) error
	runCommand func(name string, args ...string) error
	goos       string
}

// NewLauncher creates a Launcher restricted to the given provider hosts.
func NewLauncher(allowedHosts []string) *Launcher {
	return &Launcher{
		AllowedHosts: allowedHosts,
		openURL:      browser.OpenURL,
		runCommand: func(name string, args ...string) error {
			return exec.Command(name, args...).Start() // #nosec G204 - command names are fixed per platform; the URL is validated first
		},
		goos: runtime.GOOS,
	}
}

// Open opens the URL in the default browser, trying each strategy in
// order. Individual failures are logged and swallowed so the next
// strategy can run; if every strategy fails the returned launch error
// carries the URL for diagnostics.
func (l *Launcher) Open(rawURL string) error {
	// Validate before anything touches a subprocess. The native open
	// facility gets the same treatment: a malformed authorization URL
	// has no business reaching the browser at all.
	if err := ValidateLaunchURL(rawURL, l.AllowedHosts); err != nil {
		return err
	}

	if err := l.openURL(rawURL); err == nil {
		return nil
	} else {
		logger.Warnf("Default browser open failed, trying platform fallback: %v", err)
	}

	for _, attempt := range l.fallbacks(rawURL) {
		if err := l.runCommand(attempt[0], attempt[1:]...); err == nil {
			return nil
		} else {
			logger.Warnf("Browser fallback %q failed: %v", attempt[0], err)
		}
	}

	return errors.NewLaunchError(fmt.Sprintf("could not open a browser for %s", rawURL), nil)
}

// fallbacks returns the ordered subprocess commands for the host OS.
func (l *Launcher) fallbacks(rawURL string) [][]string {
	switch l.goos {
	case "windows":
		return [][]string{
			{"cmd", "/c", "start", "", rawURL},
			{"rundll32", "url.dll,FileProtocolHandler", rawURL},
		}
	case "darwin":
		return [][]string{{"open", rawURL}}
	default:
		return [][]string{{"xdg-open", rawURL}}
	}
}
