// Package version carries build identification, populated at link time via
// -ldflags.
package version

import "fmt"

var (
	// Version is the current application version
	Version = "dev"
	// GitSHA is the git commit SHA
	GitSHA = "unknown"
	// BuildTime is the build timestamp
	BuildTime = "unknown"
)

// String formats the full build identification line.
func String() string {
	return fmt.Sprintf("starfuse %s (%s, built %s)", Version, GitSHA, BuildTime)
}
