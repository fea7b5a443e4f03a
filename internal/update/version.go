package update

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	goversion "github.com/hashicorp/go-version"
)

var versionRegex = regexp.MustCompile(`^v?(\d+)\.(\d+)\.(\d+)(?:-([0-9A-Za-z.-]+))?(?:\+([0-9A-Za-z.-]+))?$`)

// Version represents a semantic version
type Version struct {
	Major      int
	Minor      int
	Patch      int
	Prerelease string
	Metadata   string

	sv *goversion.Version
}

// ParseVersion parses a semantic version string.
// Supports formats like "0.8.2", "v0.8.2", "0.9.0-rc.1", "1.0.0+build.5".
// Only the strict major.minor.patch form is accepted.
func ParseVersion(s string) (*Version, error) {
	s = strings.TrimSpace(s)
	matches := versionRegex.FindStringSubmatch(s)
	if matches == nil {
		return nil, fmt.Errorf("invalid version format: %q", s)
	}

	sv, err := goversion.NewSemver(NormalizeVersion(s))
	if err != nil {
		return nil, fmt.Errorf("invalid version format: %q: %w", s, err)
	}

	major, _ := strconv.Atoi(matches[1])
	minor, _ := strconv.Atoi(matches[2])
	patch, _ := strconv.Atoi(matches[3])

	return &Version{
		Major:      major,
		Minor:      minor,
		Patch:      patch,
		Prerelease: matches[4],
		Metadata:   matches[5],
		sv:         sv,
	}, nil
}

// String returns the string representation without build metadata
func (v *Version) String() string {
	s := fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
	if v.Prerelease != "" {
		s += "-" + v.Prerelease
	}
	return s
}

// Compare compares two versions using semantic version precedence.
// Returns:
//   - 1 if v > other
//   - 0 if v == other
//   - -1 if v < other
//
// A prerelease sorts below its release; build metadata is ignored.
func (v *Version) Compare(other *Version) int {
	if c := v.semver().Core().Compare(other.semver().Core()); c != 0 {
		return c
	}
	return comparePrerelease(v.Prerelease, other.Prerelease)
}

// comparePrerelease orders prerelease tags by semver precedence:
// identifiers are compared left to right, numeric ones numerically and
// below alphanumeric ones, and a tag that is a prefix of another is lower.
func comparePrerelease(a, b string) int {
	switch {
	case a == b:
		return 0
	case a == "":
		return 1
	case b == "":
		return -1
	}

	as, bs := strings.Split(a, "."), strings.Split(b, ".")
	for i := 0; i < len(as) && i < len(bs); i++ {
		if c := compareIdentifier(as[i], bs[i]); c != 0 {
			return c
		}
	}
	switch {
	case len(as) < len(bs):
		return -1
	case len(as) > len(bs):
		return 1
	}
	return 0
}

func compareIdentifier(a, b string) int {
	an, bn := isNumeric(a), isNumeric(b)
	switch {
	case an && bn:
		a, b = strings.TrimLeft(a, "0"), strings.TrimLeft(b, "0")
		if len(a) != len(b) {
			if len(a) < len(b) {
				return -1
			}
			return 1
		}
		return strings.Compare(a, b)
	case an:
		return -1
	case bn:
		return 1
	}
	return strings.Compare(a, b)
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// semver returns the go-version representation, building it for
// Versions constructed as struct literals.
func (v *Version) semver() *goversion.Version {
	if v.sv != nil {
		return v.sv
	}
	sv, err := goversion.NewSemver(v.String())
	if err != nil {
		// Fields of a literal are always valid numbers; only a broken
		// prerelease tag ends up here.
		sv, _ = goversion.NewSemver(fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch))
	}
	return sv
}

// IsGreaterThan returns true if v > other
func (v *Version) IsGreaterThan(other *Version) bool {
	return v.Compare(other) > 0
}

// IsLessThan returns true if v < other
func (v *Version) IsLessThan(other *Version) bool {
	return v.Compare(other) < 0
}

// IsEqual returns true if v == other
func (v *Version) IsEqual(other *Version) bool {
	return v.Compare(other) == 0
}

// CompareVersions compares two version strings
// Returns:
//   - 1 if v1 > v2
//   - 0 if v1 == v2
//   - -1 if v1 < v2
//   - error if either version is invalid
func CompareVersions(v1, v2 string) (int, error) {
	ver1, err := ParseVersion(v1)
	if err != nil {
		return 0, fmt.Errorf("invalid version v1: %w", err)
	}

	ver2, err := ParseVersion(v2)
	if err != nil {
		return 0, fmt.Errorf("invalid version v2: %w", err)
	}

	return ver1.Compare(ver2), nil
}

// IsNewer reports whether latest is strictly greater than current.
// Malformed input on either side yields false: a broken remote payload
// must never trigger an upgrade.
func IsNewer(latest, current string) bool {
	cmp, err := CompareVersions(latest, current)
	if err != nil {
		return false
	}
	return cmp > 0
}

// NormalizeVersion removes the 'v' prefix if present
func NormalizeVersion(s string) string {
	return strings.TrimPrefix(strings.TrimSpace(s), "v")
}
