package version

// Set at build time via ldflags
var (
	// Version is the semantic version (e.g., "1.0.0")
	Version = "dev"
	// Commit is the git commit hash
	Commit = "unknown"
	// BuildDate is the build timestamp
	BuildDate = "unknown"
)

// GetVersion returns the version string
func GetVersion() string {
	return Version
}

// GetCommit returns the commit hash
func GetCommit() string {
	return Commit
}

// GetFullVersion returns a formatted version string with the commit
func GetFullVersion() string {
	return Version + " (commit: " + Commit + ", built: " + BuildDate + ")"
}
