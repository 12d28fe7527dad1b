// Package semver is the single place version strings and version tags are parsed.
//
// It wraps github.com/Masterminds/semver/v3 with the stricter grammar used for
// package tags: exactly three numeric components, an optional leading "v" on
// input, and a mandatory leading "v" on output.
package semver

import (
	"errors"
	"fmt"
	"strings"

	mm "github.com/Masterminds/semver/v3"
)

// ErrInvalidVersion indicates a string is not a three-part semantic version.
var ErrInvalidVersion = errors.New("invalid version")

// Version is a semantic version. The zero value means "no version".
type Version struct {
	v *mm.Version
}

// Family is the compatibility bucket of a version: (0, minor) for 0.x
// releases and (major) otherwise. Minor is always zero when Major > 0.
type Family struct {
	Major uint64
	Minor uint64
}

// String renders the family as "v0.3" or "v2".
func (f Family) String() string {
	if f.Major == 0 {
		return fmt.Sprintf("v0.%d", f.Minor)
	}
	return fmt.Sprintf("v%d", f.Major)
}

// ParseVersion parses "1.2.3" or "v1.2.3". Pre-release and build metadata
// are accepted, partial versions ("1.2") are not.
func ParseVersion(raw string) (Version, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(raw), "v")
	v, err := mm.StrictNewVersion(trimmed)
	if err != nil {
		return Version{}, fmt.Errorf("%w %q: %w", ErrInvalidVersion, raw, err)
	}
	return Version{v: v}, nil
}

// MustParseVersion is ParseVersion for constants and tests.
func MustParseVersion(raw string) Version {
	v, err := ParseVersion(raw)
	if err != nil {
		panic(err)
	}
	return v
}

// IsZero reports whether v holds no version.
func (v Version) IsZero() bool {
	return v.v == nil
}

// String returns the version without the "v" prefix, or "" for the zero value.
func (v Version) String() string {
	if v.v == nil {
		return ""
	}
	return v.v.String()
}

// Tag returns the version with the mandatory "v" prefix.
func (v Version) Tag() string {
	if v.v == nil {
		return ""
	}
	return "v" + v.v.String()
}

// Major returns the major component.
func (v Version) Major() uint64 {
	if v.v == nil {
		return 0
	}
	return v.v.Major()
}

// Minor returns the minor component.
func (v Version) Minor() uint64 {
	if v.v == nil {
		return 0
	}
	return v.v.Minor()
}

// Patch returns the patch component.
func (v Version) Patch() uint64 {
	if v.v == nil {
		return 0
	}
	return v.v.Patch()
}

// Equal reports whether a and b are the same version.
func (v Version) Equal(o Version) bool {
	return Compare(v, o) == 0
}

// FamilyOf returns the compatibility family of v.
func FamilyOf(v Version) Family {
	if v.Major() == 0 {
		return Family{Major: 0, Minor: v.Minor()}
	}
	return Family{Major: v.Major()}
}

// Compare compares a and b, returning:
// -1 if a < b
//
//	0 if a == b
//	1 if a > b
//
// The zero Version sorts before every real version.
func Compare(a, b Version) int {
	if a.v == nil && b.v == nil {
		return 0
	}
	if a.v == nil {
		return -1
	}
	if b.v == nil {
		return 1
	}
	return a.v.Compare(b.v)
}
