// Package version reports which AMRWatch build is running.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"sync"
)

// Set with -ldflags "-X github.com/HerbHall/amrwatch/internal/version.Version=...".
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Build describes the running binary.
type Build struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
	Modified  bool   `json:"modified,omitempty"`
}

var (
	buildOnce sync.Once
	build     Build
)

// Current returns the build description. Commit and date missing from
// ldflags are taken from the VCS stamp the go tool embeds.
func Current() Build {
	buildOnce.Do(func() {
		build = fromBuildInfo(Version, GitCommit, BuildDate, debug.ReadBuildInfo)
	})
	return build
}

func fromBuildInfo(ver, commit, date string, read func() (*debug.BuildInfo, bool)) Build {
	b := Build{Version: ver, GitCommit: commit, BuildDate: date, GoVersion: runtime.Version()}
	info, ok := read()
	if !ok {
		return b
	}
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			if b.GitCommit == "unknown" {
				b.GitCommit = s.Value
			}
		case "vcs.time":
			if b.BuildDate == "unknown" {
				b.BuildDate = s.Value
			}
		case "vcs.modified":
			b.Modified = s.Value == "true"
		}
	}
	return b
}

// Info is the line printed by `amrwatch version`.
func Info() string {
	b := Current()
	commit := b.GitCommit
	if b.Modified {
		commit += "+dirty"
	}
	return fmt.Sprintf("AMRWatch %s (commit: %s, built: %s, go: %s)",
		b.Version, commit, b.BuildDate, b.GoVersion)
}

// Short returns the version alone.
func Short() string {
	return Version
}
