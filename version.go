// version.go: Semantic version parsing and comparison for plugin metadata
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package pluginhost

import (
	"strconv"
	"strings"

	"github.com/agilira/go-errors"
)

// Version represents a semantic version with comparison capabilities.
//
// It supports semantic versioning (semver) with major, minor, and patch
// components plus optional prerelease and build metadata. Versions are used
// for minimum-version dependency checks between plugins.
//
// Example usage:
//
//	v1, _ := ParseVersion("1.2.3-beta.1+build.123")
//	v2, _ := ParseVersion("1.2.4")
//	if v1.Compare(v2) < 0 {
//	    // v1 is older
//	}
type Version struct {
	Major      uint64 `json:"major"`
	Minor      uint64 `json:"minor"`
	Patch      uint64 `json:"patch"`
	Prerelease string `json:"prerelease,omitempty"`
	Build      string `json:"build,omitempty"`
	Original   string `json:"original"`
}

// ParseVersion parses a semantic version string in x.y.z form with optional
// prerelease (-rc.1) and build (+build.5) suffixes on the patch component.
func ParseVersion(versionStr string) (Version, error) {
	if versionStr == "" {
		return Version{}, errors.New(ErrCodeInvalidVersion, "Version string is empty").
			WithSeverity("error")
	}

	parts := strings.Split(versionStr, ".")
	if len(parts) < 3 {
		return Version{}, errors.New(ErrCodeInvalidVersion, "Version must have major.minor.patch components").
			WithContext("version", versionStr).
			WithSeverity("error")
	}

	major, err := parseVersionComponent(parts[0], "major")
	if err != nil {
		return Version{}, err
	}

	minor, err := parseVersionComponent(parts[1], "minor")
	if err != nil {
		return Version{}, err
	}

	// Patch may carry prerelease/build metadata; anything past the third dot
	// belongs to the prerelease identifier (e.g. 1.2.3-beta.1).
	patchPart := strings.Join(parts[2:], ".")
	patch, prerelease, build, err := parsePatchVersion(patchPart)
	if err != nil {
		return Version{}, err
	}

	return Version{
		Major:      major,
		Minor:      minor,
		Patch:      patch,
		Prerelease: prerelease,
		Build:      build,
		Original:   versionStr,
	}, nil
}

// MustParseVersion parses a version and panics on failure. Intended for tests
// and compile-time-known constants.
func MustParseVersion(versionStr string) Version {
	v, err := ParseVersion(versionStr)
	if err != nil {
		panic(err)
	}
	return v
}

// parseVersionComponent parses a single numeric version component.
func parseVersionComponent(component, componentType string) (uint64, error) {
	value, err := strconv.ParseUint(component, 10, 64)
	if err != nil {
		return 0, errors.Wrap(err, ErrCodeInvalidVersion, "Invalid version component").
			WithContext("component_type", componentType).
			WithContext("component_value", component).
			WithSeverity("error")
	}
	return value, nil
}

// parsePatchVersion parses the patch component with possible prerelease/build metadata.
func parsePatchVersion(patchPart string) (uint64, string, string, error) {
	var prerelease, build string

	if idx := strings.Index(patchPart, "-"); idx >= 0 {
		remaining := patchPart[idx+1:]
		patchPart = patchPart[:idx]
		if buildIdx := strings.Index(remaining, "+"); buildIdx >= 0 {
			prerelease = remaining[:buildIdx]
			build = remaining[buildIdx+1:]
		} else {
			prerelease = remaining
		}
	} else if idx := strings.Index(patchPart, "+"); idx >= 0 {
		build = patchPart[idx+1:]
		patchPart = patchPart[:idx]
	}

	patch, err := parseVersionComponent(patchPart, "patch")
	if err != nil {
		return 0, "", "", err
	}
	return patch, prerelease, build, nil
}

// String returns the original version string.
func (v Version) String() string {
	return v.Original
}

// IsZero reports whether the version was never parsed from a real string.
func (v Version) IsZero() bool {
	return v.Original == ""
}

// Compare compares two versions. Returns -1, 0, or 1.
func (v Version) Compare(other Version) int {
	if result := compareComponent(v.Major, other.Major); result != 0 {
		return result
	}
	if result := compareComponent(v.Minor, other.Minor); result != 0 {
		return result
	}
	if result := compareComponent(v.Patch, other.Patch); result != 0 {
		return result
	}
	return v.comparePrerelease(other)
}

// AtLeast reports whether v >= other.
func (v Version) AtLeast(other Version) bool {
	return v.Compare(other) >= 0
}

func compareComponent(a, b uint64) int {
	if a < b {
		return -1
	}
	if a > b {
		return 1
	}
	return 0
}

// comparePrerelease compares prerelease strings per semver: a release ranks
// above any prerelease of the same numeric version, and dot-separated
// identifiers compare numerically when both sides are numeric (so beta.10
// ranks above beta.9).
func (v Version) comparePrerelease(other Version) int {
	if v.Prerelease == "" && other.Prerelease != "" {
		return 1
	}
	if v.Prerelease != "" && other.Prerelease == "" {
		return -1
	}
	if v.Prerelease == other.Prerelease {
		return 0
	}

	a := strings.Split(v.Prerelease, ".")
	b := strings.Split(other.Prerelease, ".")
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] == b[i] {
			continue
		}
		return comparePrereleaseIdentifier(a[i], b[i])
	}

	// Identical prefix: the longer identifier list ranks higher.
	return compareComponent(uint64(len(a)), uint64(len(b)))
}

// comparePrereleaseIdentifier compares one dot-separated identifier pair.
// Numeric identifiers compare as numbers and rank below alphanumeric ones;
// alphanumeric pairs compare in ASCII order.
func comparePrereleaseIdentifier(a, b string) int {
	aNum, aErr := strconv.ParseUint(a, 10, 64)
	bNum, bErr := strconv.ParseUint(b, 10, 64)
	switch {
	case aErr == nil && bErr == nil:
		return compareComponent(aNum, bNum)
	case aErr == nil:
		return -1
	case bErr == nil:
		return 1
	default:
		return strings.Compare(a, b)
	}
}
