package version

import (
	"fmt"
	"strings"

	"golang.org/x/mod/semver"
)

// Version is the released version, overridable at build time:
//
//	go build -ldflags "-X github.com/hrygo/dispatchcore/internal/version.Version=v0.3.0"
var Version = "0.0.0-dev"

// DevVersion is reported in dev and demo modes.
var DevVersion = Version

// GitCommit is the commit hash at build time.
var GitCommit = "unknown"

// BuildTime is the build timestamp in RFC3339 format.
var BuildTime = "unknown"

// GetCurrentVersion returns the version reported for the given server mode.
func GetCurrentVersion(mode string) string {
	if mode == "dev" || mode == "demo" {
		return DevVersion
	}
	return Version
}

func canonical(v string) string {
	if strings.HasPrefix(v, "v") {
		return v
	}
	return "v" + v
}

// IsValid reports whether v is a semantic version, with or without the "v" prefix.
func IsValid(v string) bool {
	return semver.IsValid(canonical(v))
}

// IsVersionGreaterOrEqualThan returns true if version is greater than or equal to target.
func IsVersionGreaterOrEqualThan(version, target string) bool {
	return semver.Compare(canonical(version), canonical(target)) > -1
}

// MajorMinor returns "vMAJOR.MINOR" for a valid version, or "" otherwise.
func MajorMinor(v string) string {
	return semver.MajorMinor(canonical(v))
}

// String returns the version with the short commit hash when known.
func String() string {
	if GitCommit == "" || GitCommit == "unknown" {
		return Version
	}
	return fmt.Sprintf("%s-%s", Version, shortCommit())
}

// Info is the build information exposed by the health endpoint.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit,omitempty"`
	BuildTime string `json:"buildTime,omitempty"`
}

// GetInfo returns the build information for the given server mode.
func GetInfo(mode string) Info {
	info := Info{Version: GetCurrentVersion(mode)}
	if GitCommit != "unknown" {
		info.Commit = shortCommit()
	}
	if BuildTime != "unknown" {
		info.BuildTime = BuildTime
	}
	return info
}

func shortCommit() string {
	if len(GitCommit) > 8 {
		return GitCommit[:8]
	}
	return GitCommit
}
