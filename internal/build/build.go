// Package build holds build-time metadata. The values are overwritten at
// link time via -ldflags.
package build

var (
	// ProjectName is used as the namespace for metrics.
	ProjectName = "cerberus"

	Version = "dev"
	Commit  = ""
	Date    = ""
)
