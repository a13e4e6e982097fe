// SPDX-License-Identifier: MIT
//
// Package build exposes the build metadata embedded with -ldflags, for example:
//
//	go build -ldflags "-X github.com/philcrump/limesdr-fft/pkg/build.buildVersion=0.3.0 ..."
//
// Development builds run without the flags; Initialize reports what is missing
// and the defaults below stay in place.
package build

import (
	"errors"
	"fmt"
	"strings"
)

// Info is the build metadata reported by --version and /api/status.
type Info struct {
	Name    string `json:"name"`
	Time    string `json:"time"`
	Commit  string `json:"commit"`
	Version string `json:"version"`
}

// String renders the info in the form used by the CLI version template.
func (i Info) String() string {
	return fmt.Sprintf("%s (commit %s, built %s)", i.Version, i.Commit, i.Time)
}

// ErrMissingFlags is returned by Initialize when one or more ldflags were not set.
var ErrMissingFlags = errors.New("build flags missing")

var (
	buildName    string
	buildTime    string
	buildCommit  string
	buildVersion string
	buildInfo    = Info{
		Name:    "limesdr-fft",
		Time:    "unknown",
		Commit:  "unknown",
		Version: "dev",
	}
)

// Initialize copies every ldflags value that was set into the build info and
// returns ErrMissingFlags naming the ones that were not.
func Initialize() error {
	var missing []string
	set := func(dst *string, val, name string) {
		if val == "" {
			missing = append(missing, name)
			return
		}
		*dst = val
	}
	set(&buildInfo.Name, buildName, "BuildName")
	set(&buildInfo.Time, buildTime, "BuildTime")
	set(&buildInfo.Commit, buildCommit, "BuildCommit")
	set(&buildInfo.Version, buildVersion, "BuildVersion")

	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingFlags, strings.Join(missing, ", "))
	}
	return nil
}

// GetBuildInfo returns the current build information.
func GetBuildInfo() Info {
	return buildInfo
}
