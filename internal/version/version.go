// Package version carries build identification stamped in at link time
// through -ldflags. Local builds report "dev (unknown)".
package version

import "fmt"

var (
	// Version is the release tag, or "dev" for local builds.
	Version = "dev"
	// GitSHA identifies the commit the binary was built from.
	GitSHA = "unknown"
	// BuildTime is the link timestamp.
	BuildTime = "unknown"
)

// String renders the build identity the way the status page shows it.
func String() string {
	return fmt.Sprintf("%s (%s)", Version, GitSHA)
}
