// Package version implements module versions and version ranges.
//
// Version format: MAJOR[.MINOR[.MICRO[.QUALIFIER]]]
//   - MAJOR, MINOR, MICRO: non-negative integers, missing segments are zero
//   - QUALIFIER: letters, digits, '-' and '_', compared lexicographically
//
// A version without a qualifier sorts before the same version with one.
// The empty string parses to the empty version 0.0.0.
package version

import (
	"cmp"
	"regexp"
	"slices"
	"strconv"
	"strings"
)

var qualifierPattern = regexp.MustCompile(`^[A-Za-z0-9_-]*$`)

// Version is a parsed module version. The zero value is 0.0.0.
type Version struct {
	Major     uint64
	Minor     uint64
	Micro     uint64
	Qualifier string
}

// Empty is the 0.0.0 version.
var Empty = Version{}

// ParseError represents a version parsing error.
type ParseError struct {
	Version string
	Message string
}

func (e *ParseError) Error() string {
	return "bad version " + strconv.Quote(e.Version) + ": " + e.Message
}

// Parse parses a version string.
func Parse(s string) (Version, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Empty, nil
	}

	parts := strings.SplitN(s, ".", 4)
	var v Version
	segs := []*uint64{&v.Major, &v.Minor, &v.Micro}
	for i, part := range parts {
		if i == 3 {
			if !qualifierPattern.MatchString(part) {
				return Version{}, &ParseError{Version: s, Message: "invalid qualifier " + strconv.Quote(part)}
			}
			v.Qualifier = part
			break
		}
		if part == "" {
			return Version{}, &ParseError{Version: s, Message: "empty segment"}
		}
		n, err := strconv.ParseUint(part, 10, 64)
		if err != nil {
			return Version{}, &ParseError{Version: s, Message: "segment " + strconv.Quote(part) + " is not a number"}
		}
		*segs[i] = n
	}
	return v, nil
}

// MustParse is like Parse but panics on error. Intended for tests and
// package-level constants.
func MustParse(s string) Version {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

// String returns the canonical form. The qualifier is omitted when empty.
func (v Version) String() string {
	var b strings.Builder
	b.WriteString(strconv.FormatUint(v.Major, 10))
	b.WriteByte('.')
	b.WriteString(strconv.FormatUint(v.Minor, 10))
	b.WriteByte('.')
	b.WriteString(strconv.FormatUint(v.Micro, 10))
	if v.Qualifier != "" {
		b.WriteByte('.')
		b.WriteString(v.Qualifier)
	}
	return b.String()
}

// IsEmpty reports whether v is 0.0.0 with no qualifier.
func (v Version) IsEmpty() bool {
	return v == Empty
}

// Compare returns -1 if v < o, 0 if v == o, 1 if v > o.
func (v Version) Compare(o Version) int {
	if c := cmp.Compare(v.Major, o.Major); c != 0 {
		return c
	}
	if c := cmp.Compare(v.Minor, o.Minor); c != 0 {
		return c
	}
	if c := cmp.Compare(v.Micro, o.Micro); c != 0 {
		return c
	}
	return strings.Compare(v.Qualifier, o.Qualifier)
}

// Compare compares two version strings. Unparsable versions fall back to
// lexicographic comparison.
func Compare(a, b string) int {
	va, errA := Parse(a)
	vb, errB := Parse(b)
	if errA != nil || errB != nil {
		return strings.Compare(a, b)
	}
	return va.Compare(vb)
}

// Sort sorts versions in ascending order.
func Sort(versions []Version) {
	slices.SortFunc(versions, Version.Compare)
}

// Max returns the higher of two versions.
func Max(a, b Version) Version {
	if a.Compare(b) >= 0 {
		return a
	}
	return b
}

// MarshalText implements encoding.TextMarshaler.
func (v Version) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (v *Version) UnmarshalText(b []byte) error {
	p, err := Parse(string(b))
	if err != nil {
		return err
	}
	*v = p
	return nil
}
