// Package version holds build metadata, set via ldflags at build time.
package version

var (
	// Version is the release tag or "dev" for local builds.
	Version = "dev"

	// Commit is the short git hash.
	Commit = "unknown"
)
