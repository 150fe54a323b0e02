// Package utils holds small helpers shared by the strata binaries.
package utils

import "fmt"

// Build metadata, overridden with -ldflags at release time.
var (
	Version   = "dev"
	Sha       = "HEAD"
	Buildtime = "dev"
)

// UserAgent identifies strata CLI requests to the API.
func UserAgent() string {
	return fmt.Sprintf("strata/%s (%s)", Version, Sha)
}
