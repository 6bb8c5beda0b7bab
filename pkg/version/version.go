// Package version provides version information for gpkgsql.
//
// The version is embedded from version.txt at compile time.
package version

import (
	_ "embed"
	"strings"
)

//go:embed version.txt
var versionFile string

// Version is the current version of gpkgsql.
var Version = strings.TrimSpace(versionFile)

// String returns the version string.
func String() string {
	return Version
}

// Full returns a full version string with the program name.
func Full() string {
	return "gpkgsql version " + Version
}
