package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"sync"
)

var (
	// Version is the semantic version of the build. It can be overridden via ldflags.
	Version = "0.1.0"
	// Commit is the short git SHA embedded at build time (or "none").
	Commit = "none"
	// BuildTime is the UTC build timestamp embedded at build time.
	BuildTime = "unknown"
)

// shortCommitLength trims VCS revisions to the usual short SHA.
const shortCommitLength = 7

var fillFromBuildInfo = sync.OnceFunc(func() {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}

	for _, s := range info.Settings {
		switch {
		case s.Key == "vcs.revision" && Commit == "none" && s.Value != "":
			Commit = s.Value[:min(len(s.Value), shortCommitLength)]
		case s.Key == "vcs.time" && BuildTime == "unknown" && s.Value != "":
			BuildTime = s.Value
		}
	}
})

// Short returns only the semantic version string.
func Short() string {
	return Version
}

// Full returns a human-readable version string with commit, build time and Go version.
func Full() string {
	fillFromBuildInfo()

	return fmt.Sprintf("version: %s, commit: %s, built at: %s, %s", Version, Commit, BuildTime, runtime.Version())
}

// Fields returns the build metadata as logger key-value pairs.
func Fields() []any {
	fillFromBuildInfo()

	return []any{"version", Version, "commit", Commit}
}
