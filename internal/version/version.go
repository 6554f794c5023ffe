// Package version exposes the build identity stamped in at release time:
//
//	go build -ldflags "-X github.com/videovoice/videovoice/internal/version.Version=1.2.3 \
//	                   -X github.com/videovoice/videovoice/internal/version.Commit=$(git rev-parse HEAD) \
//	                   -X github.com/videovoice/videovoice/internal/version.Date=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
package version

import (
	"fmt"
	"runtime"
)

// Injected via ldflags; the defaults identify a local development build.
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

const appName = "videovoice"

// Info is the version payload served by the version command.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Date      string `json:"date"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// GetInfo collects the build and runtime identity.
func GetInfo() Info {
	return Info{
		Version:   Version,
		Commit:    Commit,
		Date:      Date,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}

// shortCommit trims the SHA to 8 characters for display, empty when the
// build carries no commit.
func shortCommit() string {
	if Commit == "unknown" || len(Commit) < 8 {
		return ""
	}
	return Commit[:8]
}

// String is the long form printed by the version command.
func String() string {
	info := GetInfo()
	if sc := shortCommit(); sc != "" {
		return fmt.Sprintf("%s version %s (commit: %s, built: %s, %s, %s)",
			appName, info.Version, sc, info.Date, info.GoVersion, info.Platform)
	}
	return fmt.Sprintf("%s version %s (%s, %s)", appName, info.Version, info.GoVersion, info.Platform)
}

// Short is the form used for --version output and startup logs.
func Short() string {
	if sc := shortCommit(); sc != "" {
		return fmt.Sprintf("%s %s (%s)", appName, Version, sc)
	}
	return fmt.Sprintf("%s %s", appName, Version)
}

// UserAgent identifies outbound requests to speech and TTS backends.
func UserAgent() string {
	return appName + "/" + Version
}
