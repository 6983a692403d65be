// Package version holds build metadata injected via -ldflags at release time.
package version

var (
	// Version is the current ridesim release version.
	Version = "dev"
	// GitSHA is the git commit SHA the binary was built from.
	GitSHA = "unknown"
	// BuildTime is the build timestamp.
	BuildTime = "unknown"
)
