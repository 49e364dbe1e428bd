package app

import "fmt"

// Build information populated via -ldflags at build time.
var (
	BuildVersion = "0.0.0-dev"
	BuildCommit  = "unknown"
	BuildDate    = "unknown"
)

// VersionString formats the build information for the version command.
func VersionString() string {
	return fmt.Sprintf("medkit %s (commit %s, built %s)", BuildVersion, BuildCommit, BuildDate)
}
