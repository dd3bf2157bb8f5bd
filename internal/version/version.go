// Package version carries build metadata injected with -ldflags:
//
//	go build -ldflags "-X github.com/smazurov/vidbuf/internal/version.Version=v0.3.0"
package version

import (
	"fmt"
	"runtime"
)

var (
	// Version is the application version, set via ldflags during build.
	Version = "dev"
	// GitCommit is the git commit hash, set via ldflags during build.
	GitCommit = "unknown"
	// BuildDate is the build timestamp, set via ldflags during build.
	BuildDate = "unknown"
)

// Info contains version and build metadata.
type Info struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// Get returns version and build information.
func Get() Info {
	return Info{
		Version:   Version,
		GitCommit: GitCommit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
		Platform:  fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
	}
}

// String formats the info on one line, e.g.
// "vidbuf dev (commit unknown, built unknown) go1.24.11 linux/arm64".
func (i Info) String() string {
	return fmt.Sprintf("vidbuf %s (commit %s, built %s) %s %s",
		i.Version, i.GitCommit, i.BuildDate, i.GoVersion, i.Platform)
}

// String returns the application version string.
func String() string {
	return Version
}
