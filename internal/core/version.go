package core

import (
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
	pep440 "github.com/aquasecurity/go-pep440-version"
)

// Version is a parsed, comparable release version.
//
// The zero Version is the minimum sentinel: it compares equal to every other
// sentinel and below every parsed version.
type Version struct {
	raw    string
	parsed pep440.Version
	valid  bool
}

// ParseVersion parses a raw version value. It never fails: strings and byte
// slices that are neither PEP 440 nor coercible semver, and values of any
// other type, yield the minimum sentinel. So do release segments too large
// for an int64.
func ParseVersion(raw any) Version {
	var s string
	switch v := raw.(type) {
	case string:
		s = v
	case []byte:
		s = decodeBytes(v)
	default:
		return Version{}
	}

	s = strings.TrimSpace(s)
	if s == "" {
		return Version{}
	}

	if v, err := pep440.Parse(s); err == nil {
		return Version{raw: s, parsed: v, valid: true}
	}

	// Not PEP 440, e.g. "2021.1-SNAPSHOT". Keep the numeric core; a
	// prerelease sorts below its release as a development release.
	if sv, err := semver.NewVersion(s); err == nil {
		core := fmt.Sprintf("%d.%d.%d", sv.Major(), sv.Minor(), sv.Patch())
		if sv.Prerelease() != "" {
			core += ".dev0"
		}
		if v, err := pep440.Parse(core); err == nil {
			return Version{raw: s, parsed: v, valid: true}
		}
	}

	return Version{raw: s}
}

// Valid reports whether the version was parsed rather than degraded to the
// minimum sentinel.
func (v Version) Valid() bool {
	return v.valid
}

// Compare returns -1, 0 or 1.
func (v Version) Compare(o Version) int {
	switch {
	case !v.valid && !o.valid:
		return 0
	case !v.valid:
		return -1
	case !o.valid:
		return 1
	}
	c := v.parsed.Compare(o.parsed)
	switch {
	case c < 0:
		return -1
	case c > 0:
		return 1
	}
	return 0
}

// LessThan reports whether v sorts before o.
func (v Version) LessThan(o Version) bool {
	return v.Compare(o) < 0
}

// String returns the version as it was given.
func (v Version) String() string {
	return v.raw
}
