// Package semver validates service versions and matches them against ranges.
package semver

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	masterminds "github.com/Masterminds/semver/v3"
)

const logPrefix = "semver:version"

var majorOnlyRegex = regexp.MustCompile(`^v?\d+$`)

// ParseVersion parses a service version such as "1.4.0" or "v2".
func ParseVersion(s string) (*masterminds.Version, error) {
	v, err := masterminds.NewVersion(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("%s - invalid version %q: %w", logPrefix, s, err)
	}
	return v, nil
}

// IsMajorOnly checks if a range is a bare major specifier (e.g. "3" or "v3").
func IsMajorOnly(rangeStr string) bool {
	return majorOnlyRegex.MatchString(strings.TrimSpace(rangeStr))
}

// ValidateRange reports whether rangeStr can be used as a version filter.
func ValidateRange(rangeStr string) error {
	if rangeStr == "" || IsMajorOnly(rangeStr) {
		return nil
	}
	if _, err := masterminds.NewConstraint(rangeStr); err != nil {
		return fmt.Errorf("%s - invalid version range %q: %w", logPrefix, rangeStr, err)
	}
	return nil
}

// SatisfiesRange checks if a version string satisfies a range.
// An empty range matches everything, including unversioned services.
// An unversioned service never matches a non-empty range.
func SatisfiesRange(version, rangeStr string) bool {
	if rangeStr == "" {
		return true
	}
	if version == "" {
		return false
	}
	sv, err := masterminds.NewVersion(version)
	if err != nil {
		return false
	}

	if IsMajorOnly(rangeStr) {
		major, err := masterminds.NewVersion(strings.TrimSpace(rangeStr))
		if err != nil {
			return false
		}
		return sv.Major() == major.Major()
	}

	constraint, err := masterminds.NewConstraint(rangeStr)
	if err != nil {
		return false
	}
	return constraint.Check(sv)
}

// SortDesc sorts version strings highest first. Unparseable strings sort last
// in their original relative order.
func SortDesc(versions []string) {
	sort.SliceStable(versions, func(i, j int) bool {
		vi, errI := masterminds.NewVersion(versions[i])
		vj, errJ := masterminds.NewVersion(versions[j])
		switch {
		case errI != nil:
			return false
		case errJ != nil:
			return true
		default:
			return vi.GreaterThan(vj)
		}
	})
}
