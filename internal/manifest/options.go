package manifest

import (
	"encoding/base32"
	"encoding/binary"
	"fmt"
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// digestLen is the number of characters kept from an encoded option digest.
const digestLen = 8

// OptionMap holds resolved option values keyed by option name. Names may be
// namespaced with a package name ("python.abi").
type OptionMap map[string]string

// Keys returns the option names in sorted order.
func (m OptionMap) Keys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clone returns a copy of the map.
func (m OptionMap) Clone() OptionMap {
	out := make(OptionMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Get returns the value for name within pkg, preferring the namespaced
// "pkg.name" entry over the global "name" entry.
func (m OptionMap) Get(pkg, name string) (string, bool) {
	if pkg != "" {
		if v, ok := m[pkg+"."+name]; ok {
			return v, true
		}
	}
	v, ok := m[name]
	return v, ok
}

// PackageOptions returns the options that apply to pkg, with namespaced
// entries taking precedence and their prefix removed.
func (m OptionMap) PackageOptions(pkg string) OptionMap {
	out := make(OptionMap)
	prefix := pkg + "."
	for _, k := range m.Keys() {
		if !strings.Contains(k, ".") {
			out[k] = m[k]
		}
	}
	for _, k := range m.Keys() {
		if strings.HasPrefix(k, prefix) {
			out[strings.TrimPrefix(k, prefix)] = m[k]
		}
	}
	return out
}

// Digest returns a short stable digest of the options, used as the build id
// of binary packages.
func (m OptionMap) Digest() string {
	h := xxhash.New()
	for _, k := range m.Keys() {
		_, _ = h.WriteString(k)
		_, _ = h.Write([]byte{'='})
		_, _ = h.WriteString(m[k])
		_, _ = h.Write([]byte{0})
	}
	var sum [8]byte
	binary.BigEndian.PutUint64(sum[:], h.Sum64())
	return base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(sum[:])[:digestLen]
}

// String returns "{a=1, b=2}" with sorted keys.
func (m OptionMap) String() string {
	parts := make([]string, 0, len(m))
	for _, k := range m.Keys() {
		parts = append(parts, fmt.Sprintf("%s=%s", k, m[k]))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// Option is a single build option of a package. It is either a variable
// option ("var: debug/off") or a package option ("pkg: gcc/6") that names a
// build-time requirement. The part after the slash is the default for
// recipes and the resolved value for binary builds.
type Option struct {
	Var     string   `yaml:"var,omitempty"`
	Pkg     string   `yaml:"pkg,omitempty"`
	Choices []string `yaml:"choices,omitempty"`
	Static  string   `yaml:"static,omitempty"`
}

// IsPkg reports whether the option is a package option.
func (o Option) IsPkg() bool { return o.Pkg != "" }

// Name returns the option name.
func (o Option) Name() string {
	name, _ := o.split()
	return name
}

// Value returns the option's default or resolved value.
func (o Option) Value() string {
	if o.Static != "" {
		return o.Static
	}
	_, value := o.split()
	return value
}

func (o Option) split() (string, string) {
	raw := o.Var
	if o.IsPkg() {
		raw = o.Pkg
	}
	name, value, _ := strings.Cut(raw, identSep)
	return name, value
}

// WithValue returns a copy of the option carrying value.
func (o Option) WithValue(value string) Option {
	out := o
	if o.IsPkg() {
		out.Pkg = o.Name() + identSep + value
	} else {
		out.Var = o.Name() + identSep + value
	}
	out.Static = ""
	return out
}

// Validate checks a candidate value against the option's choices.
func (o Option) Validate(value string) error {
	if o.Static != "" && value != o.Static {
		return fmt.Errorf("invalid value for %s: wanted static value %q, got %q", o.Name(), o.Static, value)
	}
	if len(o.Choices) == 0 || value == "" {
		return nil
	}
	for _, c := range o.Choices {
		if c == value {
			return nil
		}
	}
	return fmt.Errorf("invalid value for %s: %q, must be one of %s", o.Name(), value, strings.Join(o.Choices, ", "))
}
