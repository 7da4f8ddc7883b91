// Package build exposes version metadata injected at compile time via
// -ldflags, for example:
//
//	go build -ldflags "-X keytone/internal/build.version=0.3.0 \
//	    -X keytone/internal/build.commit=$(git rev-parse --short HEAD) \
//	    -X keytone/internal/build.date=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
//
// Development builds without ldflags report "dev".
package build

import "fmt"

// Name is the application name used in CLI help and log prefixes.
const Name = "keytone"

var (
	version string
	commit  string
	date    string
)

// Version returns the injected semantic version, or "dev".
func Version() string {
	if version == "" {
		return "dev"
	}
	return version
}

// Summary returns a single-line description of this build.
func Summary() string {
	if version == "" {
		return Name + " dev"
	}
	return fmt.Sprintf("%s %s (%s, built %s)", Name, version, commit, date)
}
