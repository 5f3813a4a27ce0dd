// Package version holds build metadata injected with -ldflags, e.g.
//
//	go build -ldflags "-X github.com/banshee-data/crowd.report/internal/version.Version=v0.3.0"
package version

import "fmt"

var (
	// Version is the release tag of the build.
	Version = "dev"
	// GitSHA is the commit the binary was built from.
	GitSHA = "unknown"
	// BuildTime is the build timestamp.
	BuildTime = "unknown"
)

// String formats the build metadata for the named binary.
func String(binary string) string {
	return fmt.Sprintf("%s %s (git %s, built %s)", binary, Version, GitSHA, BuildTime)
}
