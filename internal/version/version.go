// Package version exposes build metadata stamped in via ldflags.
package version

import "fmt"

//nolint:revive // Overwritten by -ldflags at build time.
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// String renders the full build identity for startup logs.
func String() string {
	return fmt.Sprintf("%s (commit %s, built %s)", Version, Commit, Date)
}
