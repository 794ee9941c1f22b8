// Package version provides the version model used by the solver: multi-part
// numeric versions with pre and post release tags, per-package compatibility
// contracts, and version range expressions.
package version

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

const (
	partSep   = "."
	preSep    = "-"
	postSep   = "+"
	tagSetSep = ","

	// minDisplayParts is the minimum number of parts written by String.
	minDisplayParts = 3
)

// Tag is a single named release tag such as "rc.2".
type Tag struct {
	Name string
	Num  uint32
}

// String returns the tag as "name.num".
func (t Tag) String() string {
	return fmt.Sprintf("%s.%d", t.Name, t.Num)
}

// TagSet is an ordered set of release tags. Tags are kept sorted by name and
// names are unique within a set.
type TagSet []Tag

// ParseTagSet parses a comma separated list of "name.num" tags.
//
// Examples:
//   - "rc.1"
//   - "alpha.0,dev.3"
func ParseTagSet(s string) (TagSet, error) {
	if s == "" {
		return nil, nil
	}

	seen := make(map[string]bool)
	var tags TagSet
	for _, raw := range strings.Split(s, tagSetSep) {
		name, num, ok := strings.Cut(raw, partSep)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid release tag %q: must be in the form name.number", raw)
		}
		if !isTagName(name) {
			return nil, fmt.Errorf("invalid release tag name %q: must be alphanumeric", name)
		}
		n, err := strconv.ParseUint(num, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid release tag number %q: %w", num, err)
		}
		if seen[name] {
			return nil, fmt.Errorf("duplicate release tag %q", name)
		}
		seen[name] = true
		tags = append(tags, Tag{Name: name, Num: uint32(n)})
	}

	sort.Slice(tags, func(i, j int) bool { return tags[i].Name < tags[j].Name })
	return tags, nil
}

func isTagName(s string) bool {
	for _, r := range s {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
			return false
		}
	}
	return true
}

// String returns the tags joined by commas.
func (ts TagSet) String() string {
	parts := make([]string, len(ts))
	for i, t := range ts {
		parts[i] = t.String()
	}
	return strings.Join(parts, tagSetSep)
}

// Compare orders two tag sets entry by entry (name, then number) and finally
// by length.
func (ts TagSet) Compare(other TagSet) int {
	for i := 0; i < len(ts) && i < len(other); i++ {
		if c := strings.Compare(ts[i].Name, other[i].Name); c != 0 {
			return c
		}
		if ts[i].Num != other[i].Num {
			if ts[i].Num < other[i].Num {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(ts) < len(other):
		return -1
	case len(ts) > len(other):
		return 1
	}
	return 0
}

// Version is a package version made of any number of numeric parts plus
// optional pre-release and post-release tag sets.
//
// The format is: PARTS[-PRE][+POST]
//
// Examples:
//   - 1.0.0
//   - 2019.2
//   - 1.2.3.4
//   - 1.0.0-rc.1
//   - 3.7.3+patch.2
//   - 1.0.0-alpha.1,dev.4+r.1
type Version struct {
	Parts []uint32 // Numeric parts, kept with the precision they were parsed with
	Pre   TagSet   // Pre-release tags
	Post  TagSet   // Post-release tags
}

// Parse parses a version string.
//
// The empty string parses to the zero version. Parts are not padded, so
// "2019" and "2019.0.0" compare equal but keep different precision.
func Parse(s string) (*Version, error) {
	if s == "" {
		return &Version{}, nil
	}

	rest, post, hasPost := strings.Cut(s, postSep)
	base, pre, hasPre := strings.Cut(rest, preSep)
	if hasPre && pre == "" {
		return nil, fmt.Errorf("invalid version %q: empty pre-release tags after %q", s, preSep)
	}
	if hasPost && post == "" {
		return nil, fmt.Errorf("invalid version %q: empty post-release tags after %q", s, postSep)
	}

	v := &Version{}
	for _, p := range strings.Split(base, partSep) {
		if p == "" {
			return nil, fmt.Errorf("invalid version %q: empty version part", s)
		}
		n, err := strconv.ParseUint(p, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid version %q: part %q is not a non-negative integer", s, p)
		}
		v.Parts = append(v.Parts, uint32(n))
	}

	var err error
	if v.Pre, err = ParseTagSet(pre); err != nil {
		return nil, fmt.Errorf("invalid version %q: %w", s, err)
	}
	if v.Post, err = ParseTagSet(post); err != nil {
		return nil, fmt.Errorf("invalid version %q: %w", s, err)
	}
	return v, nil
}

// MustParse parses a version string and panics on error.
// It is intended for constants and tests.
func MustParse(s string) *Version {
	v, err := Parse(s)
	if err != nil {
		panic(fmt.Sprintf("version.MustParse(%q): %v", s, err))
	}
	return v
}

// FromParts builds a release version from numeric parts.
func FromParts(parts ...uint32) *Version {
	return &Version{Parts: append([]uint32(nil), parts...)}
}

// Part returns the numeric part at index i, or zero when the version has
// fewer parts.
func (v *Version) Part(i int) uint32 {
	if i < len(v.Parts) {
		return v.Parts[i]
	}
	return 0
}

// IsPreRelease reports whether the version carries pre-release tags.
func (v *Version) IsPreRelease() bool {
	return len(v.Pre) > 0
}

// IsZero reports whether every numeric part is zero and no tags are set.
func (v *Version) IsZero() bool {
	for _, p := range v.Parts {
		if p != 0 {
			return false
		}
	}
	return len(v.Pre) == 0 && len(v.Post) == 0
}

// Base returns the numeric portion padded to at least three parts.
func (v *Version) Base() string {
	n := len(v.Parts)
	if n < minDisplayParts {
		n = minDisplayParts
	}
	return v.base(n)
}

func (v *Version) base(n int) string {
	if n == 0 {
		n = 1
	}
	parts := make([]string, n)
	for i := range parts {
		parts[i] = strconv.FormatUint(uint64(v.Part(i)), 10)
	}
	return strings.Join(parts, partSep)
}

// String returns the normalized form of the version, padded to at least
// three numeric parts.
//
// Examples:
//   - "2019" -> "2019.0.0"
//   - "1.0.0-rc.1"
func (v *Version) String() string {
	return v.Base() + v.tags()
}

// Verbatim returns the version with the precision it was parsed with.
// Range expressions are written this way so that parsing them again yields
// the same compatibility semantics.
func (v *Version) Verbatim() string {
	return v.base(len(v.Parts)) + v.tags()
}

func (v *Version) tags() string {
	var sb strings.Builder
	if len(v.Pre) > 0 {
		sb.WriteString(preSep)
		sb.WriteString(v.Pre.String())
	}
	if len(v.Post) > 0 {
		sb.WriteString(postSep)
		sb.WriteString(v.Post.String())
	}
	return sb.String()
}

// Compare compares two versions.
//
// Numeric parts are compared first, padding the shorter version with zeros.
// For equal parts a pre-release sorts before the plain release, which sorts
// before a post-release.
//
// Returns:
//   - -1 if v < other
//   - 0 if v == other
//   - 1 if v > other
func (v *Version) Compare(other *Version) int {
	if c := compareParts(v.Parts, other.Parts); c != 0 {
		return c
	}

	switch {
	case len(v.Pre) == 0 && len(other.Pre) > 0:
		return 1
	case len(v.Pre) > 0 && len(other.Pre) == 0:
		return -1
	}
	if c := v.Pre.Compare(other.Pre); c != 0 {
		return c
	}

	switch {
	case len(v.Post) == 0 && len(other.Post) > 0:
		return -1
	case len(v.Post) > 0 && len(other.Post) == 0:
		return 1
	}
	return v.Post.Compare(other.Post)
}

func compareParts(a, b []uint32) int {
	n := len(a)
	if len(b) > n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		var x, y uint32
		if i < len(a) {
			x = a[i]
		}
		if i < len(b) {
			y = b[i]
		}
		if x != y {
			if x < y {
				return -1
			}
			return 1
		}
	}
	return 0
}

// LessThan returns true if v < other.
func (v *Version) LessThan(other *Version) bool {
	return v.Compare(other) < 0
}

// GreaterThan returns true if v > other.
func (v *Version) GreaterThan(other *Version) bool {
	return v.Compare(other) > 0
}

// Equal returns true if v == other under Compare.
func (v *Version) Equal(other *Version) bool {
	return v.Compare(other) == 0
}

// Clone returns a deep copy of the version.
func (v *Version) Clone() *Version {
	return &Version{
		Parts: append([]uint32(nil), v.Parts...),
		Pre:   append(TagSet(nil), v.Pre...),
		Post:  append(TagSet(nil), v.Post...),
	}
}

// bump returns a release version truncated to idx+1 parts with the part at
// idx incremented.
func (v *Version) bump(idx int) *Version {
	parts := make([]uint32, idx+1)
	for i := range parts {
		parts[i] = v.Part(i)
	}
	parts[idx]++
	return &Version{Parts: parts}
}
