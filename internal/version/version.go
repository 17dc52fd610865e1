// Package version contains version information.
package version

// Version information for whatsrunning, set at build time via ldflags.
var (
	Version   = "dev"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

// GetVersion returns the version string
func GetVersion() string {
	return Version
}

// GetFullVersion returns version with build metadata
func GetFullVersion() string {
	return Version + " (build: " + BuildDate + ", commit: " + GitCommit + ")"
}

// GetAbout returns the text served on the about page.
// An empty override falls back to the build version.
func GetAbout(override string) string {
	v := override
	if v == "" {
		v = Version
	}
	return "Version: " + v
}
