// Package version reports the build version of the transkribera binaries.
package version

import (
	"runtime/debug"
	"strings"
)

// Version is set at release time with
// -ldflags "-X github.com/fmueller/transkribera/internal/version.Version=1.2.3".
var Version = ""

const develVersion = "0.0.0-dev"

type buildInfo struct {
	mainVersion string
	revision    string
	modified    bool
}

// Resolve returns the release version, the module version of a `go install`
// build, or a development version tagged with the VCS revision.
func Resolve() string {
	return resolve(Version, readBuildInfo)
}

func resolve(release string, read func() (buildInfo, bool)) string {
	if release = strings.TrimPrefix(strings.TrimSpace(release), "v"); release != "" {
		return release
	}

	info, ok := read()
	if !ok {
		return develVersion
	}

	if v := strings.TrimPrefix(info.mainVersion, "v"); v != "" && v != "(devel)" {
		return v
	}

	if info.revision == "" {
		return develVersion
	}
	rev := info.revision
	if len(rev) > 7 {
		rev = rev[:7]
	}
	out := develVersion + "+" + rev
	if info.modified {
		out += ".dirty"
	}
	return out
}

func readBuildInfo() (buildInfo, bool) {
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return buildInfo{}, false
	}

	info := buildInfo{mainVersion: bi.Main.Version}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			info.revision = s.Value
		case "vcs.modified":
			info.modified = s.Value == "true"
		}
	}
	return info, true
}
