// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package versions provides version information for the deskauth binary.
package versions

import (
	"fmt"
	"runtime"
	"time"
)

const unknownStr = "unknown"

// Version information set by the build system.
var (
	// Version is the current version of deskauth.
	Version = "dev"

	// Commit is the git commit hash of the build.
	Commit = unknownStr

	// BuildDate is the date the binary was built.
	BuildDate = unknownStr
)

// VersionInfo contains the version information of the binary.
type VersionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// GetVersionInfo returns the version information of the binary.
func GetVersionInfo() VersionInfo {
	version := Version
	if version == "dev" {
		// Development builds are identified by their commit.
		if len(Commit) >= 8 {
			version = fmt.Sprintf("build-%s", Commit[:8])
		} else {
			version = fmt.Sprintf("build-%s", Commit)
		}
	}

	buildDate := BuildDate
	if parsed, err := time.Parse(time.RFC3339, buildDate); err == nil {
		buildDate = parsed.UTC().Format("2006-01-02 15:04:05 UTC")
	}

	return VersionInfo{
		Version:   version,
		Commit:    Commit,
		BuildDate: buildDate,
		GoVersion: runtime.Version(),
		Platform:  fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
	}
}
