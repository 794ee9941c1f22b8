package version

import (
	"fmt"
	"strings"
)

// CompatRule is a single kind of compatibility promised by a package
// between two versions.
type CompatRule uint8

const (
	// CompatNone means versions differing at this position are never compatible.
	CompatNone CompatRule = iota
	// CompatAPI means source (API) compatibility.
	CompatAPI
	// CompatBinary means binary (ABI) compatibility.
	CompatBinary
)

// String returns the single character form of the rule.
func (r CompatRule) String() string {
	switch r {
	case CompatNone:
		return "x"
	case CompatAPI:
		return "a"
	case CompatBinary:
		return "b"
	default:
		return "?"
	}
}

// LongName returns the long form used in range prefixes ("API", "Binary").
func (r CompatRule) LongName() string {
	switch r {
	case CompatNone:
		return "None"
	case CompatAPI:
		return "API"
	case CompatBinary:
		return "Binary"
	default:
		return "Unknown"
	}
}

func parseCompatRule(c rune) (CompatRule, error) {
	switch c {
	case 'x':
		return CompatNone, nil
	case 'a':
		return CompatAPI, nil
	case 'b':
		return CompatBinary, nil
	default:
		return 0, fmt.Errorf("invalid compatibility rule %q: must be one of x, a, b", c)
	}
}

// CompatRuleSet is the set of rules that apply at one version position.
type CompatRuleSet uint8

// Has reports whether the set contains rule r.
func (s CompatRuleSet) Has(r CompatRule) bool {
	return s&(1<<r) != 0
}

func (s CompatRuleSet) with(r CompatRule) CompatRuleSet {
	return s | 1<<r
}

// String returns the rules in the set in x, a, b order.
func (s CompatRuleSet) String() string {
	var sb strings.Builder
	for _, r := range []CompatRule{CompatNone, CompatAPI, CompatBinary} {
		if s.Has(r) {
			sb.WriteString(r.String())
		}
	}
	return sb.String()
}

// Compat is a per-package compatibility contract. It holds one rule set per
// version position, most significant position first.
//
// Examples:
//   - "x.a.b" - the default: major bumps break, minor bumps keep API, patch bumps keep ABI
//   - "x.x.a.b" - four part versions where the first two parts are significant
//   - "x.ab" - minor bumps keep both API and ABI
type Compat struct {
	Parts []CompatRuleSet
}

// DefaultCompat returns the "x.a.b" contract.
func DefaultCompat() Compat {
	return Compat{Parts: []CompatRuleSet{
		CompatRuleSet(0).with(CompatNone),
		CompatRuleSet(0).with(CompatAPI),
		CompatRuleSet(0).with(CompatBinary),
	}}
}

// ParseCompat parses a compatibility contract such as "x.a.b". The empty
// string yields the default contract.
func ParseCompat(s string) (Compat, error) {
	if s == "" {
		return DefaultCompat(), nil
	}
	var c Compat
	for _, part := range strings.Split(s, partSep) {
		if part == "" {
			return Compat{}, fmt.Errorf("invalid compat %q: empty position", s)
		}
		var set CompatRuleSet
		for _, ch := range part {
			r, err := parseCompatRule(ch)
			if err != nil {
				return Compat{}, fmt.Errorf("invalid compat %q: %w", s, err)
			}
			set = set.with(r)
		}
		c.Parts = append(c.Parts, set)
	}
	return c, nil
}

// MustParseCompat parses a contract and panics on error.
func MustParseCompat(s string) Compat {
	c, err := ParseCompat(s)
	if err != nil {
		panic(fmt.Sprintf("version.MustParseCompat(%q): %v", s, err))
	}
	return c
}

// String returns the contract in dotted form.
func (c Compat) String() string {
	parts := make([]string, len(c.Parts))
	for i, p := range c.Parts {
		parts[i] = p.String()
	}
	return strings.Join(parts, partSep)
}

// IsDefault reports whether c is equivalent to the default contract.
func (c Compat) IsDefault() bool {
	return c.String() == DefaultCompat().String()
}

// IsAPICompatible checks whether other can be used in place of base by code
// compiled against base's API.
func (c Compat) IsAPICompatible(base, other *Version) Compatibility {
	return c.Check(base, other, CompatAPI)
}

// IsBinaryCompatible checks whether other can replace base without a rebuild.
func (c Compat) IsBinaryCompatible(base, other *Version) Compatibility {
	return c.Check(base, other, CompatBinary)
}

// Check reports whether other satisfies base under the required kind of
// compatibility.
//
// Positions are walked most significant first. A position the base does not
// specify accepts anything, so a base of "3.10" accepts "3.10.4". A position
// whose rules contain x, or do not contain the required rule, must match
// exactly. The first position that does carry the required rule decides:
// other must not be lower than base there.
func (c Compat) Check(base, other *Version, required CompatRule) Compatibility {
	if required == CompatNone {
		return Compatible()
	}
	if compareParts(base.Parts, other.Parts) == 0 {
		return Compatible()
	}

	for i, rule := range c.Parts {
		if i >= len(base.Parts) {
			return Compatible()
		}
		a, b := base.Parts[i], other.Part(i)

		if rule.Has(CompatNone) || !rule.Has(required) {
			if a != b {
				if rule.Has(CompatNone) {
					return Incompatible("not compatible with %s [%s at pos %d]", base, c, i+1)
				}
				return Incompatible("not %s compatible with %s [%s at pos %d]", required.LongName(), base, c, i+1)
			}
			continue
		}

		if b < a {
			return Incompatible("not %s compatible with %s [%s at pos %d: %d < %d]", required.LongName(), base, c, i+1, b, a)
		}
		return Compatible()
	}

	return Incompatible("not compatible: %s (%s) [%s compatibility not specified]", base, c, required.LongName())
}

// Render returns the option value that pins v under this contract, for
// example "~1.2" for "1.2.3" with a two position contract.
func (c Compat) Render(v *Version) string {
	n := len(c.Parts)
	if n == 0 {
		n = len(v.Parts)
	}
	return "~" + v.base(n)
}
