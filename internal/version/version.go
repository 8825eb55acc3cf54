package version

// Build information. These variables are set at build time via -ldflags.
var (
	// Version is the semantic version of the adapter library.
	Version = "v0.1.0"

	// Commit is the git commit hash.
	Commit = "unknown"
)

// UserAgent identifies the adapter on outbound IAM and generation requests.
func UserAgent() string {
	return "watsonx-go/" + Version
}

// FullInfo returns complete build information.
func FullInfo() string {
	return "version=" + Version + " commit=" + Commit
}
