package common

import "fmt"

// Build metadata, overridden at release time with
// -ldflags "-X github.com/ternarybob/ragserver/internal/common.Version=...".
var (
	Version   = "dev"
	Build     = "unknown"
	GitCommit = "unknown"
)

// GetVersion returns the release version.
func GetVersion() string {
	return Version
}

// GetBuild returns the build timestamp.
func GetBuild() string {
	return Build
}

// GetGitCommit returns the commit the binary was built from.
func GetGitCommit() string {
	return GitCommit
}

// GetFullVersion returns the version with build and commit appended.
func GetFullVersion() string {
	return fmt.Sprintf("%s (build: %s, commit: %s)", Version, Build, GitCommit)
}
