package version

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	rangeSep     = ","
	wildcardPart = "*"
	apiPrefix    = "API:"
	binaryPrefix = "Binary:"
)

// Range is a version range expression.
//
// Supported forms:
//   - "1.2.3"         - default compatibility with 1.2.3, judged by the candidate's compat contract
//   - "API:1.2"       - default compatibility requiring API compatibility
//   - "Binary:1.2"    - default compatibility requiring binary compatibility
//   - "=1.2.3"        - exactly 1.2.3
//   - "!=1.2.3"       - anything but 1.2.3
//   - "^1.2.3"        - >=1.2.3, <2.0.0
//   - "~1.2.3"        - >=1.2.3, <1.3.0
//   - "1.*"           - any 1.x version
//   - ">1.0", ">=1.0", "<2.0", "<=2.0"
//   - ">=1.0,<2.0"    - conjunction of the rules above
//
// The empty range matches every version.
type Range interface {
	fmt.Stringer

	// IsApplicable reports whether v falls within the range without
	// consulting a compat contract. Versions that are applicable are not
	// necessarily satisfactory.
	IsApplicable(v *Version) Compatibility

	// IsSatisfiedBy reports whether a package at version v with the given
	// compat contract satisfies the range.
	IsSatisfiedBy(v *Version, compat Compat, required CompatRule) Compatibility

	// Contains reports whether v satisfies the range under the default
	// compat contract.
	Contains(v *Version) bool

	lower() *bound
	upper() *bound
}

// bound is one end of the interval a range is known to lie within.
type bound struct {
	v         *Version
	inclusive bool
}

func checkBounds(r Range, v *Version) Compatibility {
	if lo := r.lower(); lo != nil {
		c := v.Compare(lo.v)
		if c < 0 || (c == 0 && !lo.inclusive) {
			return Incompatible("version too low for %s", r)
		}
	}
	if hi := r.upper(); hi != nil {
		c := v.Compare(hi.v)
		if c > 0 || (c == 0 && !hi.inclusive) {
			return Incompatible("version too high for %s", r)
		}
	}
	return Compatible()
}

func contains(r Range, v *Version) bool {
	return r.IsSatisfiedBy(v, DefaultCompat(), CompatBinary).OK()
}

// ExactRange matches a single version.
type ExactRange struct {
	Version *Version
}

func (r ExactRange) String() string { return "=" + r.Version.Verbatim() }
func (r ExactRange) lower() *bound  { return &bound{v: r.Version, inclusive: true} }
func (r ExactRange) upper() *bound  { return &bound{v: r.Version, inclusive: true} }

// IsApplicable reports whether v equals the exact version.
func (r ExactRange) IsApplicable(v *Version) Compatibility {
	if !v.Equal(r.Version) {
		return Incompatible("%s != %s", v, r.Version)
	}
	return Compatible()
}

// IsSatisfiedBy is IsApplicable.
func (r ExactRange) IsSatisfiedBy(v *Version, _ Compat, _ CompatRule) Compatibility {
	return r.IsApplicable(v)
}

// Contains reports whether v equals the exact version.
func (r ExactRange) Contains(v *Version) bool { return contains(r, v) }

// ExcludedRange matches every version except one.
type ExcludedRange struct {
	Version *Version
}

func (r ExcludedRange) String() string { return "!=" + r.Version.Verbatim() }
func (r ExcludedRange) lower() *bound  { return nil }
func (r ExcludedRange) upper() *bound  { return nil }

// IsApplicable reports whether v differs from the excluded version.
func (r ExcludedRange) IsApplicable(v *Version) Compatibility {
	if v.Equal(r.Version) {
		return Incompatible("excluded version %s", r.Version)
	}
	return Compatible()
}

// IsSatisfiedBy is IsApplicable.
func (r ExcludedRange) IsSatisfiedBy(v *Version, _ Compat, _ CompatRule) Compatibility {
	return r.IsApplicable(v)
}

// Contains reports whether v differs from the excluded version.
func (r ExcludedRange) Contains(v *Version) bool { return contains(r, v) }

// SemverRange is a caret range: changes that do not alter the left-most
// non-zero part are allowed, so "^0.3.1" accepts "0.3.9" but not "0.4.0".
type SemverRange struct {
	Minimum *Version
}

func (r SemverRange) String() string { return "^" + r.Minimum.Verbatim() }
func (r SemverRange) lower() *bound  { return &bound{v: r.Minimum, inclusive: true} }

func (r SemverRange) upper() *bound {
	idx := len(r.Minimum.Parts) - 1
	for i, p := range r.Minimum.Parts {
		if p != 0 {
			idx = i
			break
		}
	}
	if idx < 0 {
		idx = 0
	}
	return &bound{v: r.Minimum.bump(idx)}
}

// IsApplicable checks v against the caret bounds.
func (r SemverRange) IsApplicable(v *Version) Compatibility { return checkBounds(r, v) }

// IsSatisfiedBy is IsApplicable.
func (r SemverRange) IsSatisfiedBy(v *Version, _ Compat, _ CompatRule) Compatibility {
	return r.IsApplicable(v)
}

// Contains checks v against the caret bounds.
func (r SemverRange) Contains(v *Version) bool { return contains(r, v) }

// TildeRange fixes every specified part but the last: "~1.2.3" accepts
// "1.2.9" but not "1.3.0".
type TildeRange struct {
	Minimum *Version
}

func (r TildeRange) String() string { return "~" + r.Minimum.Verbatim() }
func (r TildeRange) lower() *bound  { return &bound{v: r.Minimum, inclusive: true} }
func (r TildeRange) upper() *bound {
	idx := len(r.Minimum.Parts) - 2
	if idx < 0 {
		idx = 0
	}
	return &bound{v: r.Minimum.bump(idx)}
}

// IsApplicable checks v against the tilde bounds.
func (r TildeRange) IsApplicable(v *Version) Compatibility { return checkBounds(r, v) }

// IsSatisfiedBy is IsApplicable.
func (r TildeRange) IsSatisfiedBy(v *Version, _ Compat, _ CompatRule) Compatibility {
	return r.IsApplicable(v)
}

// Contains checks v against the tilde bounds.
func (r TildeRange) Contains(v *Version) bool { return contains(r, v) }

// WildcardRange matches any value at the single wildcard position while
// requiring every other specified part to match exactly.
type WildcardRange struct {
	Parts []*uint32 // nil marks the wildcard position
}

func (r WildcardRange) wildcardIndex() int {
	for i, p := range r.Parts {
		if p == nil {
			return i
		}
	}
	return len(r.Parts)
}

func (r WildcardRange) String() string {
	parts := make([]string, len(r.Parts))
	for i, p := range r.Parts {
		if p == nil {
			parts[i] = wildcardPart
		} else {
			parts[i] = strconv.FormatUint(uint64(*p), 10)
		}
	}
	return strings.Join(parts, partSep)
}

func (r WildcardRange) lower() *bound {
	k := r.wildcardIndex()
	parts := make([]uint32, k)
	for i := range parts {
		parts[i] = *r.Parts[i]
	}
	return &bound{v: &Version{Parts: parts}, inclusive: true}
}

func (r WildcardRange) upper() *bound {
	k := r.wildcardIndex()
	if k == 0 {
		return nil
	}
	return &bound{v: r.lower().v.bump(k - 1)}
}

// IsApplicable checks every fixed position of v.
func (r WildcardRange) IsApplicable(v *Version) Compatibility {
	for i, p := range r.Parts {
		if p != nil && v.Part(i) != *p {
			return Incompatible("%s does not match %s at pos %d", v, r, i+1)
		}
	}
	return Compatible()
}

// IsSatisfiedBy is IsApplicable.
func (r WildcardRange) IsSatisfiedBy(v *Version, _ Compat, _ CompatRule) Compatibility {
	return r.IsApplicable(v)
}

// Contains checks every fixed position of v.
func (r WildcardRange) Contains(v *Version) bool { return contains(r, v) }

// GreaterThanRange matches versions strictly greater than Bound.
type GreaterThanRange struct{ Bound *Version }

func (r GreaterThanRange) String() string { return ">" + r.Bound.Verbatim() }
func (r GreaterThanRange) lower() *bound  { return &bound{v: r.Bound} }
func (r GreaterThanRange) upper() *bound  { return nil }

// IsApplicable checks v > Bound.
func (r GreaterThanRange) IsApplicable(v *Version) Compatibility { return checkBounds(r, v) }

// IsSatisfiedBy is IsApplicable.
func (r GreaterThanRange) IsSatisfiedBy(v *Version, _ Compat, _ CompatRule) Compatibility {
	return r.IsApplicable(v)
}

// Contains checks v > Bound.
func (r GreaterThanRange) Contains(v *Version) bool { return contains(r, v) }

// GreaterThanOrEqualRange matches versions at or above Bound.
type GreaterThanOrEqualRange struct{ Bound *Version }

func (r GreaterThanOrEqualRange) String() string { return ">=" + r.Bound.Verbatim() }
func (r GreaterThanOrEqualRange) lower() *bound  { return &bound{v: r.Bound, inclusive: true} }
func (r GreaterThanOrEqualRange) upper() *bound  { return nil }

// IsApplicable checks v >= Bound.
func (r GreaterThanOrEqualRange) IsApplicable(v *Version) Compatibility { return checkBounds(r, v) }

// IsSatisfiedBy is IsApplicable.
func (r GreaterThanOrEqualRange) IsSatisfiedBy(v *Version, _ Compat, _ CompatRule) Compatibility {
	return r.IsApplicable(v)
}

// Contains checks v >= Bound.
func (r GreaterThanOrEqualRange) Contains(v *Version) bool { return contains(r, v) }

// LessThanRange matches versions strictly below Bound.
type LessThanRange struct{ Bound *Version }

func (r LessThanRange) String() string { return "<" + r.Bound.Verbatim() }
func (r LessThanRange) lower() *bound  { return nil }
func (r LessThanRange) upper() *bound  { return &bound{v: r.Bound} }

// IsApplicable checks v < Bound.
func (r LessThanRange) IsApplicable(v *Version) Compatibility { return checkBounds(r, v) }

// IsSatisfiedBy is IsApplicable.
func (r LessThanRange) IsSatisfiedBy(v *Version, _ Compat, _ CompatRule) Compatibility {
	return r.IsApplicable(v)
}

// Contains checks v < Bound.
func (r LessThanRange) Contains(v *Version) bool { return contains(r, v) }

// LessThanOrEqualRange matches versions at or below Bound.
type LessThanOrEqualRange struct{ Bound *Version }

func (r LessThanOrEqualRange) String() string { return "<=" + r.Bound.Verbatim() }
func (r LessThanOrEqualRange) lower() *bound  { return nil }
func (r LessThanOrEqualRange) upper() *bound  { return &bound{v: r.Bound, inclusive: true} }

// IsApplicable checks v <= Bound.
func (r LessThanOrEqualRange) IsApplicable(v *Version) Compatibility { return checkBounds(r, v) }

// IsSatisfiedBy is IsApplicable.
func (r LessThanOrEqualRange) IsSatisfiedBy(v *Version, _ Compat, _ CompatRule) Compatibility {
	return r.IsApplicable(v)
}

// Contains checks v <= Bound.
func (r LessThanOrEqualRange) Contains(v *Version) bool { return contains(r, v) }

// CompatRange is the default, operator-less range. Base is the minimum
// version; whether a newer version is an acceptable substitute is decided by
// the candidate package's own compat contract.
type CompatRange struct {
	Base     *Version
	Required *CompatRule // overrides the rule supplied by the caller when set
}

func (r CompatRange) String() string {
	if r.Required != nil {
		return r.Required.LongName() + ":" + r.Base.Verbatim()
	}
	return r.Base.Verbatim()
}

func (r CompatRange) lower() *bound { return &bound{v: r.Base, inclusive: true} }
func (r CompatRange) upper() *bound { return nil }

// IsApplicable checks v >= Base.
func (r CompatRange) IsApplicable(v *Version) Compatibility { return checkBounds(r, v) }

// IsSatisfiedBy checks v against Base using the package's compat contract.
func (r CompatRange) IsSatisfiedBy(v *Version, compat Compat, required CompatRule) Compatibility {
	if r.Required != nil {
		required = *r.Required
	}
	return compat.Check(r.Base, v, required)
}

// Contains checks v under the default contract.
func (r CompatRange) Contains(v *Version) bool { return contains(r, v) }

// Filter is a conjunction of ranges. The empty filter matches everything.
type Filter struct {
	Rules []Range
}

func (f Filter) String() string {
	parts := make([]string, len(f.Rules))
	for i, r := range f.Rules {
		parts[i] = r.String()
	}
	return strings.Join(parts, rangeSep)
}

func (f Filter) lower() *bound {
	var lo *bound
	for _, r := range f.Rules {
		lo = tighterLower(lo, r.lower())
	}
	return lo
}

func (f Filter) upper() *bound {
	var hi *bound
	for _, r := range f.Rules {
		hi = tighterUpper(hi, r.upper())
	}
	return hi
}

// IsApplicable requires every rule to be applicable.
func (f Filter) IsApplicable(v *Version) Compatibility {
	for _, r := range f.Rules {
		if c := r.IsApplicable(v); !c.OK() {
			return c
		}
	}
	return Compatible()
}

// IsSatisfiedBy requires every rule to be satisfied.
func (f Filter) IsSatisfiedBy(v *Version, compat Compat, required CompatRule) Compatibility {
	for _, r := range f.Rules {
		if c := r.IsSatisfiedBy(v, compat, required); !c.OK() {
			return c
		}
	}
	return Compatible()
}

// Contains requires every rule to contain v.
func (f Filter) Contains(v *Version) bool { return contains(f, v) }

// IsEmpty reports whether the filter has no rules and so matches everything.
func (f Filter) IsEmpty() bool {
	return len(f.Rules) == 0
}

func tighterLower(a, b *bound) *bound {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	switch c := a.v.Compare(b.v); {
	case c > 0:
		return a
	case c < 0:
		return b
	}
	if !a.inclusive {
		return a
	}
	return b
}

func tighterUpper(a, b *bound) *bound {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	switch c := a.v.Compare(b.v); {
	case c < 0:
		return a
	case c > 0:
		return b
	}
	if !a.inclusive {
		return a
	}
	return b
}

// ParseRange parses a range expression. See Range for the accepted forms.
func ParseRange(s string) (Range, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Filter{}, nil
	}

	raw := strings.Split(s, rangeSep)
	if len(raw) == 1 {
		return parseRule(raw[0])
	}

	f := Filter{}
	for _, part := range raw {
		r, err := parseRule(part)
		if err != nil {
			return nil, err
		}
		f.Rules = append(f.Rules, r)
	}
	return f, nil
}

// MustParseRange parses a range and panics on error.
func MustParseRange(s string) Range {
	r, err := ParseRange(s)
	if err != nil {
		panic(fmt.Sprintf("version.MustParseRange(%q): %v", s, err))
	}
	return r
}

func parseRule(s string) (Range, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("invalid range: empty rule")
	}

	parse := func(prefix string) (*Version, error) {
		v, err := Parse(strings.TrimPrefix(s, prefix))
		if err != nil {
			return nil, fmt.Errorf("invalid range %q: %w", s, err)
		}
		return v, nil
	}

	switch {
	case strings.HasPrefix(s, "^"):
		v, err := parse("^")
		if err != nil {
			return nil, err
		}
		return SemverRange{Minimum: v}, nil
	case strings.HasPrefix(s, "~"):
		v, err := parse("~")
		if err != nil {
			return nil, err
		}
		if len(v.Parts) < 2 {
			return nil, fmt.Errorf("invalid range %q: tilde ranges need at least two version parts", s)
		}
		return TildeRange{Minimum: v}, nil
	case strings.HasPrefix(s, ">="):
		v, err := parse(">=")
		if err != nil {
			return nil, err
		}
		return GreaterThanOrEqualRange{Bound: v}, nil
	case strings.HasPrefix(s, "<="):
		v, err := parse("<=")
		if err != nil {
			return nil, err
		}
		return LessThanOrEqualRange{Bound: v}, nil
	case strings.HasPrefix(s, ">"):
		v, err := parse(">")
		if err != nil {
			return nil, err
		}
		return GreaterThanRange{Bound: v}, nil
	case strings.HasPrefix(s, "<"):
		v, err := parse("<")
		if err != nil {
			return nil, err
		}
		return LessThanRange{Bound: v}, nil
	case strings.HasPrefix(s, "!="):
		v, err := parse("!=")
		if err != nil {
			return nil, err
		}
		return ExcludedRange{Version: v}, nil
	case strings.HasPrefix(s, "=="):
		v, err := parse("==")
		if err != nil {
			return nil, err
		}
		return ExactRange{Version: v}, nil
	case strings.HasPrefix(s, "="):
		v, err := parse("=")
		if err != nil {
			return nil, err
		}
		return ExactRange{Version: v}, nil
	case strings.Contains(s, wildcardPart):
		return parseWildcard(s)
	case strings.HasPrefix(s, apiPrefix):
		v, err := parse(apiPrefix)
		if err != nil {
			return nil, err
		}
		rule := CompatAPI
		return CompatRange{Base: v, Required: &rule}, nil
	case strings.HasPrefix(s, binaryPrefix):
		v, err := parse(binaryPrefix)
		if err != nil {
			return nil, err
		}
		rule := CompatBinary
		return CompatRange{Base: v, Required: &rule}, nil
	default:
		v, err := parse("")
		if err != nil {
			return nil, err
		}
		return CompatRange{Base: v}, nil
	}
}

func parseWildcard(s string) (Range, error) {
	var r WildcardRange
	wildcards := 0
	for _, p := range strings.Split(s, partSep) {
		if p == wildcardPart {
			wildcards++
			r.Parts = append(r.Parts, nil)
			continue
		}
		n, err := strconv.ParseUint(p, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid wildcard range %q: part %q is not a number or *", s, p)
		}
		v := uint32(n)
		r.Parts = append(r.Parts, &v)
	}
	if wildcards != 1 {
		return nil, fmt.Errorf("invalid wildcard range %q: expected exactly one * but found %d", s, wildcards)
	}
	return r, nil
}

// UnsatisfiableError reports that two ranges cannot both be satisfied by any
// version.
type UnsatisfiableError struct {
	A, B   Range
	Reason string
}

// Error returns a human-readable description of the empty intersection.
func (e *UnsatisfiableError) Error() string {
	return fmt.Sprintf("%s does not intersect with %s: %s", e.B, e.A, e.Reason)
}

// Intersect returns a range accepting exactly the versions accepted by both
// a and b. It returns *UnsatisfiableError when the intersection is provably
// empty.
func Intersect(a, b Range) (Range, error) {
	var rules []Range
	seen := make(map[string]bool)
	for _, r := range append(flatten(a), flatten(b)...) {
		key := r.String()
		if seen[key] {
			continue
		}
		seen[key] = true
		rules = append(rules, r)
	}

	merged := Filter{Rules: rules}
	lo, hi := merged.lower(), merged.upper()
	if lo != nil && hi != nil {
		c := lo.v.Compare(hi.v)
		if c > 0 {
			return nil, &UnsatisfiableError{A: a, B: b, Reason: "all versions too high"}
		}
		if c == 0 && !(lo.inclusive && hi.inclusive) {
			return nil, &UnsatisfiableError{A: a, B: b, Reason: "no version lies between the bounds"}
		}
	}

	for _, r := range rules {
		exact, ok := r.(ExactRange)
		if !ok {
			continue
		}
		for _, other := range rules {
			if c := other.IsApplicable(exact.Version); !c.OK() {
				return nil, &UnsatisfiableError{A: a, B: b, Reason: c.Reason()}
			}
		}
	}

	if len(rules) == 1 {
		return rules[0], nil
	}
	return merged, nil
}

func flatten(r Range) []Range {
	if f, ok := r.(Filter); ok {
		var out []Range
		for _, inner := range f.Rules {
			out = append(out, flatten(inner)...)
		}
		return out
	}
	if r == nil {
		return nil
	}
	return []Range{r}
}

// IsEmptyRange reports whether r matches every version.
func IsEmptyRange(r Range) bool {
	return len(flatten(r)) == 0
}

// Bounds returns the interval r is known to lie within. A nil end is
// unbounded.
func Bounds(r Range) (lower, upper *Version) {
	if lo := r.lower(); lo != nil {
		lower = lo.v
	}
	if hi := r.upper(); hi != nil {
		upper = hi.v
	}
	return lower, upper
}
