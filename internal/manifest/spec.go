package manifest

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/launchcg/stratum/pkg/version"
)

// Default component names every package provides when it declares none.
const (
	ComponentBuild = "build"
	ComponentRun   = "run"
	ComponentAll   = "all"
)

// Requirement is one install requirement of a package, either on another
// package ("pkg: maya/2019") or on a variable ("var: python.abi/cp37").
type Requirement struct {
	Pkg        string   `yaml:"pkg,omitempty"`
	Var        string   `yaml:"var,omitempty"`
	Components []string `yaml:"components,omitempty"`

	// Include is "Always" (the default) or "IfAlreadyPresent".
	Include string `yaml:"include,omitempty"`
	// PreReleasePolicy is "ExcludeAll" (the default) or "IncludeAll".
	PreReleasePolicy string `yaml:"prereleasePolicy,omitempty"`
	// FromBuildEnv pins the requirement to the version used at build time.
	FromBuildEnv bool `yaml:"fromBuildEnv,omitempty"`
	// Pin takes a var requirement's value from the resolve.
	Pin bool `yaml:"pin,omitempty"`
}

// IsPkg reports whether the requirement is on a package.
func (r Requirement) IsPkg() bool { return r.Pkg != "" }

// String returns the requirement's request string.
func (r Requirement) String() string {
	if r.IsPkg() {
		return r.Pkg
	}
	return r.Var
}

// Component is an installable subset of a package.
type Component struct {
	Name         string        `yaml:"name"`
	Uses         []string      `yaml:"uses,omitempty"`
	Requirements []Requirement `yaml:"requirements,omitempty"`
}

// BuildSpec describes how a package is built.
type BuildSpec struct {
	Options []Option `yaml:"options,omitempty"`
}

// InstallSpec describes what a package needs once installed.
type InstallSpec struct {
	Requirements []Requirement `yaml:"requirements,omitempty"`
	Components   []Component   `yaml:"components,omitempty"`
	Embedded     []string      `yaml:"embedded,omitempty"`
}

// Spec is a package spec: either a recipe (empty build id), a source
// package ("src") or a binary build (option digest).
type Spec struct {
	Pkg        BuildIdent
	Compat     version.Compat
	Deprecated bool
	Build      BuildSpec
	Install    InstallSpec
}

// Name returns the package name.
func (s *Spec) Name() string { return s.Pkg.Name }

// Version returns the package version.
func (s *Spec) Version() *version.Version { return s.Pkg.Version }

// IsRecipe reports whether the spec is an unbuilt recipe.
func (s *Spec) IsRecipe() bool { return s.Pkg.Build == "" }

// IsSource reports whether the spec is a source package.
func (s *Spec) IsSource() bool { return s.Pkg.Build.IsSource() }

// Options returns the build option values of this spec.
func (s *Spec) Options() OptionMap {
	out := make(OptionMap, len(s.Build.Options))
	for _, o := range s.Build.Options {
		out[o.Name()] = o.Value()
	}
	return out
}

// Option returns the named build option.
func (s *Spec) Option(name string) (Option, bool) {
	for _, o := range s.Build.Options {
		if o.Name() == name {
			return o, true
		}
	}
	return Option{}, false
}

// ComponentNames returns the components the package provides. Packages that
// declare none provide "build" and "run".
func (s *Spec) ComponentNames() []string {
	if len(s.Install.Components) == 0 {
		return []string{ComponentBuild, ComponentRun}
	}
	names := make([]string, len(s.Install.Components))
	for i, c := range s.Install.Components {
		names[i] = c.Name
	}
	return names
}

// ResolveComponents expands the requested component names through each
// component's "uses" list. "all" selects every component.
func (s *Spec) ResolveComponents(requested []string) []string {
	byName := make(map[string]Component)
	for _, c := range s.Install.Components {
		byName[c.Name] = c
	}

	var out []string
	seen := make(map[string]bool)
	var visit func(name string)
	visit = func(name string) {
		if seen[name] {
			return
		}
		seen[name] = true
		out = append(out, name)
		for _, used := range byName[name].Uses {
			visit(used)
		}
	}
	for _, name := range requested {
		if name == ComponentAll {
			for _, c := range s.ComponentNames() {
				visit(c)
			}
			continue
		}
		visit(name)
	}
	return out
}

// RuntimeRequirements returns the install requirements plus those of the
// given components.
func (s *Spec) RuntimeRequirements(components []string) []Requirement {
	reqs := append([]Requirement(nil), s.Install.Requirements...)
	if len(components) == 0 {
		return reqs
	}
	wanted := make(map[string]bool)
	for _, c := range s.ResolveComponents(components) {
		wanted[c] = true
	}
	for _, c := range s.Install.Components {
		if wanted[c.Name] {
			reqs = append(reqs, c.Requirements...)
		}
	}
	return reqs
}

// BuildRequirements returns the requirements a recipe needs to be built:
// one per package option, using the option's value as the version range.
// Values given in opts override the declared defaults.
func (s *Spec) BuildRequirements(opts OptionMap) []Requirement {
	var reqs []Requirement
	for _, o := range s.Build.Options {
		if !o.IsPkg() {
			continue
		}
		value := o.Value()
		if v, ok := opts.Get(s.Name(), o.Name()); ok && v != "" {
			value = v
		}
		req := Requirement{Pkg: o.Name()}
		if value != "" {
			req.Pkg += identSep + value
		}
		reqs = append(reqs, req)
	}
	return reqs
}

// ResolveOptions computes the option values for building this recipe from
// the given options. Namespaced values take precedence over global ones and
// declared defaults fill the gaps.
func (s *Spec) ResolveOptions(given OptionMap) (OptionMap, error) {
	out := make(OptionMap, len(s.Build.Options))
	for _, o := range s.Build.Options {
		value := o.Value()
		if v, ok := given.Get(s.Name(), o.Name()); ok && v != "" && o.Static == "" {
			value = v
		}
		if err := o.Validate(value); err != nil {
			return nil, err
		}
		out[o.Name()] = value
	}
	return out, nil
}

// RenderBuild produces the binary build of this recipe for the resolved
// options and the packages of its build environment. Package options are
// pinned to the compat-rendered version found in the build environment.
func (s *Spec) RenderBuild(opts OptionMap, buildEnv []*Spec) (*Spec, error) {
	if !s.IsRecipe() && !s.IsSource() {
		return nil, fmt.Errorf("cannot render build of %s: not a recipe", s.Pkg)
	}

	resolved, err := s.ResolveOptions(opts)
	if err != nil {
		return nil, fmt.Errorf("cannot render build of %s: %w", s.Pkg.Ident, err)
	}

	env := make(map[string]*Spec, len(buildEnv))
	for _, b := range buildEnv {
		env[b.Name()] = b
	}

	out := s.Clone()
	out.Build.Options = make([]Option, len(s.Build.Options))
	for i, o := range s.Build.Options {
		value := resolved[o.Name()]
		if o.IsPkg() {
			if dep, ok := env[o.Name()]; ok {
				value = dep.Compat.Render(dep.Version())
			}
		}
		out.Build.Options[i] = o.WithValue(value)
		resolved[o.Name()] = value
	}

	for i, req := range out.Install.Requirements {
		if !req.FromBuildEnv || !req.IsPkg() {
			continue
		}
		name, _, _ := strings.Cut(req.Pkg, identSep)
		if dep, ok := env[name]; ok {
			out.Install.Requirements[i].Pkg = name + identSep + dep.Compat.Render(dep.Version())
			out.Install.Requirements[i].FromBuildEnv = false
		}
	}

	out.Pkg.Build = BuildID(resolved.Digest())
	return out, nil
}

// Clone returns a deep copy of the spec.
func (s *Spec) Clone() *Spec {
	out := *s
	out.Pkg.Version = s.Pkg.Version.Clone()
	out.Compat = version.Compat{Parts: append([]version.CompatRuleSet(nil), s.Compat.Parts...)}
	out.Build.Options = append([]Option(nil), s.Build.Options...)
	out.Install.Requirements = append([]Requirement(nil), s.Install.Requirements...)
	out.Install.Components = append([]Component(nil), s.Install.Components...)
	out.Install.Embedded = append([]string(nil), s.Install.Embedded...)
	return &out
}

// EmbeddedSpecs returns specs for the packages embedded in this one.
func (s *Spec) EmbeddedSpecs() ([]*Spec, error) {
	out := make([]*Spec, 0, len(s.Install.Embedded))
	for _, raw := range s.Install.Embedded {
		id, err := ParseBuildIdent(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid embedded package in %s: %w", s.Pkg, err)
		}
		id.Build = EmbeddedBuild
		out = append(out, &Spec{Pkg: id, Compat: version.DefaultCompat()})
	}
	return out, nil
}

// document is the YAML form of a Spec.
type document struct {
	Pkg        string      `yaml:"pkg"`
	Compat     string      `yaml:"compat,omitempty"`
	Deprecated bool        `yaml:"deprecated,omitempty"`
	Build      BuildSpec   `yaml:"build,omitempty"`
	Install    InstallSpec `yaml:"install,omitempty"`
}

// UnmarshalYAML decodes a spec document.
func (s *Spec) UnmarshalYAML(node *yaml.Node) error {
	var doc document
	if err := node.Decode(&doc); err != nil {
		return err
	}
	id, err := ParseBuildIdent(doc.Pkg)
	if err != nil {
		return err
	}
	compat, err := version.ParseCompat(doc.Compat)
	if err != nil {
		return fmt.Errorf("invalid compat for %s: %w", doc.Pkg, err)
	}
	*s = Spec{
		Pkg:        id,
		Compat:     compat,
		Deprecated: doc.Deprecated,
		Build:      doc.Build,
		Install:    doc.Install,
	}
	return nil
}

// MarshalYAML encodes the spec as a document.
func (s *Spec) MarshalYAML() (any, error) {
	doc := document{
		Pkg:        s.Pkg.String(),
		Deprecated: s.Deprecated,
		Build:      s.Build,
		Install:    s.Install,
	}
	if !s.Compat.IsDefault() && len(s.Compat.Parts) > 0 {
		doc.Compat = s.Compat.String()
	}
	return doc, nil
}

// ParseSpec decodes a YAML spec document.
func ParseSpec(data []byte) (*Spec, error) {
	var s Spec
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse package spec: %w", err)
	}
	return &s, nil
}

// MustParseSpec decodes a YAML spec document and panics on error.
func MustParseSpec(data string) *Spec {
	s, err := ParseSpec([]byte(data))
	if err != nil {
		panic(fmt.Sprintf("manifest.MustParseSpec: %v", err))
	}
	return s
}

// LoadSpec reads a spec document from disk.
func LoadSpec(path string) (*Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	s, err := ParseSpec(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// Marshal encodes the spec as a YAML document.
func (s *Spec) Marshal() ([]byte, error) {
	return yaml.Marshal(s)
}
