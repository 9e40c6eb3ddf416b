// Package version holds the evolog version string. Release builds set it with
// -ldflags "-X evolog/cli/internal/version.Version=v1.0.0"; dev builds may set
// Commit the same way.
package version

// Version is the evolog version.
var Version = "dev"

// Commit is the short git commit hash of a dev build.
var Commit = ""

// String returns "dev (abc1234)" for dev builds with a commit, else Version.
func String() string {
	if Version != "dev" || Commit == "" {
		return Version
	}
	return Version + " (" + Commit + ")"
}

// UserAgent identifies evolog in HTTP requests.
func UserAgent() string {
	return "evolog/" + Version
}
