package seqlock

import (
	"fmt"

	"golang.org/x/mod/semver"
)

// Version information for the seqlock package.
const (
	// Version is the current version of the package, in semver form.
	Version = "v0.1.0"

	// VersionMajor is the major version number.
	VersionMajor = 0

	// VersionMinor is the minor version number.
	VersionMinor = 1

	// VersionPatch is the patch version number.
	VersionPatch = 0
)

// Info provides build information about the seqlock package.
type Info struct {
	// Version is the package version string.
	Version string

	// Algorithm is the synchronization scheme used.
	Algorithm string

	// RaceBuild indicates the race detector build, where Read takes the
	// writer mutex instead of copying optimistically.
	RaceBuild bool
}

// GetInfo returns information about the seqlock build.
//
// Example:
//
//	info := seqlock.GetInfo()
//	fmt.Printf("seqlock %s (%s)\n", info.Version, info.Algorithm)
func GetInfo() Info {
	return Info{
		Version:   Version,
		Algorithm: "sequence lock (odd/even counter, mutex-serialized writers)",
		RaceBuild: raceEnabled,
	}
}

// Compatible reports whether this package satisfies a caller that requires
// at least version required. Versions follow semver with a "v" prefix; a
// different major version is incompatible.
//
// Example:
//
//	if err := seqlock.Compatible("v0.1.0"); err != nil {
//	    log.Fatal(err)
//	}
func Compatible(required string) error {
	if !semver.IsValid(required) {
		return fmt.Errorf("seqlock: invalid version %q", required)
	}
	if semver.Major(required) != semver.Major(Version) {
		return fmt.Errorf("seqlock: version %s has major version %s, need %s",
			Version, semver.Major(Version), semver.Major(required))
	}
	if semver.Compare(Version, required) < 0 {
		return fmt.Errorf("seqlock: version %s is older than required %s", Version, required)
	}
	return nil
}
