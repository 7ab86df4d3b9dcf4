package version

import "fmt"

// Set at build time via -ldflags.
var (
	Version  = "dev"
	Revision = "unknown"
)

func Detailed() string {
	return fmt.Sprintf("%s (%s)", Version, Revision)
}
