// Package buildinfo carries version metadata injected at link time:
//
//	go build -ldflags "-X github.com/cateringhub/backoffice/internal/buildinfo.Version=1.2.0"
package buildinfo

import "fmt"

var (
	Version   = "dev"
	BuildDate = "unknown"
	Commit    = "none"
)

// String formats the build metadata for the version command.
func String() string {
	return fmt.Sprintf("backoffice %s (commit %s, built %s)", Version, Commit, BuildDate)
}
