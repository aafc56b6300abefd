// Package version records the module version stamped at build time.
package version

import (
	"fmt"
	"runtime"
)

// Stamped via ldflags, for example:
//
//	-X github.com/maktaba-dev/maktaba/pkg/version.Version=v1.2.0
//
// with matching Commit and Date symbols. Unstamped builds report dev.
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// Short returns the bare version.
func Short() string {
	return Version
}

// String returns the one-line form logged at startup.
func String() string {
	return fmt.Sprintf("maktaba %s (commit %s, built %s, %s %s/%s)",
		Version, Commit, Date, runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

// Info is the structured form for JSON surfaces.
type Info struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Date    string `json:"date"`
	Go      string `json:"go_version"`
	OS      string `json:"os"`
	Arch    string `json:"arch"`
}

// Current reports the build information of the running binary.
func Current() Info {
	return Info{
		Version: Version,
		Commit:  Commit,
		Date:    Date,
		Go:      runtime.Version(),
		OS:      runtime.GOOS,
		Arch:    runtime.GOARCH,
	}
}
