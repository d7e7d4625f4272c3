// Package version reports the build of the mevbuilder binary. Values set through -ldflags win over the VCS metadata Go
// embeds at build time.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
	"sync"
	"time"
)

// These variables can be set via ldflags at build time, e.g.
// -ldflags "-X github.com/syafiqeil/mev-builder/version.Version=0.2.0".
var (
	// Version is the semantic version of the build.
	Version = "0.1.0"
	// GitCommit is the git commit hash.
	GitCommit = ""
	// GitCommitTime is the timestamp of the git commit.
	GitCommitTime = ""
	// GitTreeDirty is "true" when the tree had uncommitted changes.
	GitTreeDirty = ""
)

// Info describes a build.
type Info struct {
	Version       string
	GitCommit     string
	GitCommitTime string
	GitTreeDirty  bool
	GoVersion     string
}

var (
	buildInfo     Info
	buildInfoOnce sync.Once
)

// GetInfo returns the build information, reading the embedded VCS settings on first use.
func GetInfo() Info {
	buildInfoOnce.Do(func() {
		buildInfo = Info{
			Version:       Version,
			GitCommit:     GitCommit,
			GitCommitTime: GitCommitTime,
			GitTreeDirty:  GitTreeDirty == "true",
			GoVersion:     runtime.Version(),
		}
		if info, ok := debug.ReadBuildInfo(); ok {
			applyBuildSettings(&buildInfo, info)
		}
	})
	return buildInfo
}

// applyBuildSettings fills the fields that were not set through ldflags from info. A module version other than
// "(devel)" means the binary was installed with `go install` and is preferred over the default version.
func applyBuildSettings(i *Info, info *debug.BuildInfo) {
	if Version == "0.1.0" && info.Main.Version != "" && info.Main.Version != "(devel)" {
		i.Version = strings.TrimPrefix(info.Main.Version, "v")
	}
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			if GitCommit == "" {
				i.GitCommit = setting.Value
			}
		case "vcs.time":
			if GitCommitTime == "" {
				i.GitCommitTime = setting.Value
			}
		case "vcs.modified":
			if GitTreeDirty == "" {
				i.GitTreeDirty = setting.Value == "true"
			}
		}
	}
}

// ShortCommit returns the first 7 characters of the git commit hash.
func (i Info) ShortCommit() string {
	if len(i.GitCommit) >= 7 {
		return i.GitCommit[:7]
	}
	return i.GitCommit
}

// String returns a multi-line description of the build.
func (i Info) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "mevbuilder version %s\n", i.Version)
	if i.GitCommit != "" {
		commit := i.ShortCommit()
		if i.GitTreeDirty {
			commit += "-dirty"
		}
		fmt.Fprintf(&sb, "  Commit:     %s\n", commit)
	}
	if i.GitCommitTime != "" {
		built := i.GitCommitTime
		if t, err := time.Parse(time.RFC3339, i.GitCommitTime); err == nil {
			built = t.Format("2006-01-02 15:04:05 MST")
		}
		fmt.Fprintf(&sb, "  Built:      %s\n", built)
	}
	fmt.Fprintf(&sb, "  Go version: %s\n", i.GoVersion)
	return sb.String()
}

// Short returns a single-line version string suitable for --version output.
func (i Info) Short() string {
	v := i.Version
	if i.GitCommit != "" {
		v += "+" + i.ShortCommit()
		if i.GitTreeDirty {
			v += "-dirty"
		}
	}
	return v
}
