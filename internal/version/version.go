// Package version reports build information for the cray binary.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Set with -ldflags "-X github.com/tarrence/cray-cli/internal/version.version=..." at release time.
var (
	version   = "dev"
	commitSHA = ""
	buildDate = ""
)

// Info is what `cray version` prints.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit,omitempty"`
	BuildDate string `json:"build_date,omitempty"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// Get collects build information. Development builds fall back to the
// module version and VCS revision recorded by the Go toolchain.
func Get() Info {
	info := Info{
		Version:   version,
		Commit:    commitSHA,
		BuildDate: buildDate,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		if info.Version == "dev" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
			info.Version = bi.Main.Version
		}
		for _, s := range bi.Settings {
			switch {
			case s.Key == "vcs.revision" && info.Commit == "":
				info.Commit = s.Value
			case s.Key == "vcs.time" && info.BuildDate == "":
				info.BuildDate = s.Value
			}
		}
	}
	return info
}

// Version is the one-line form used by --version.
func Version() string {
	i := Get()
	v := i.Version
	if i.Commit != "" {
		v += "+" + shortCommit(i.Commit)
	}
	if i.BuildDate != "" {
		v += " (" + i.BuildDate + ")"
	}
	return v
}

func UserAgent() string {
	return fmt.Sprintf("cray-cli/%s (%s; %s)", Get().Version, runtime.GOOS, runtime.GOARCH)
}

func shortCommit(sha string) string {
	if len(sha) > 12 {
		return sha[:12]
	}
	return sha
}
