// Package request defines the package and variable requests the solver
// works to satisfy, and how requests for the same target combine.
package request

import (
	"fmt"
	"sort"
	"strings"

	"github.com/launchcg/stratum/internal/manifest"
	"github.com/launchcg/stratum/pkg/version"
)

// PreReleasePolicy controls whether pre-release versions may satisfy a
// request. Lower values are more restrictive.
type PreReleasePolicy int

const (
	// ExcludeAll rejects every pre-release version.
	ExcludeAll PreReleasePolicy = iota
	// IncludeAll accepts pre-release versions.
	IncludeAll
)

// String returns the policy name.
func (p PreReleasePolicy) String() string {
	if p == IncludeAll {
		return "IncludeAll"
	}
	return "ExcludeAll"
}

// ParsePreReleasePolicy parses "ExcludeAll" or "IncludeAll". The empty
// string yields ExcludeAll.
func ParsePreReleasePolicy(s string) (PreReleasePolicy, error) {
	switch strings.ToLower(s) {
	case "", "excludeall", "exclude":
		return ExcludeAll, nil
	case "includeall", "include":
		return IncludeAll, nil
	default:
		return ExcludeAll, fmt.Errorf("invalid pre-release policy %q: must be ExcludeAll or IncludeAll", s)
	}
}

// InclusionPolicy controls whether a request pulls a package into the
// solution by itself. Lower values are stronger.
type InclusionPolicy int

const (
	// Always includes the package.
	Always InclusionPolicy = iota
	// IfAlreadyPresent only constrains the package if something else
	// requests it.
	IfAlreadyPresent
)

// String returns the policy name.
func (p InclusionPolicy) String() string {
	if p == IfAlreadyPresent {
		return "IfAlreadyPresent"
	}
	return "Always"
}

// ParseInclusionPolicy parses "Always" or "IfAlreadyPresent". The empty
// string yields Always.
func ParseInclusionPolicy(s string) (InclusionPolicy, error) {
	switch strings.ToLower(s) {
	case "", "always":
		return Always, nil
	case "ifalreadypresent":
		return IfAlreadyPresent, nil
	default:
		return Always, fmt.Errorf("invalid inclusion policy %q: must be Always or IfAlreadyPresent", s)
	}
}

// RequesterKind identifies who introduced a request.
type RequesterKind int

const (
	// CommandLine requests come from the user.
	CommandLine RequesterKind = iota
	// PackageRequirement requests come from a resolved package's install
	// requirements.
	PackageRequirement
	// BuildEnvironment requests come from a recipe being built from source.
	BuildEnvironment
)

// RequestedBy records who introduced a request.
type RequestedBy struct {
	Kind    RequesterKind
	Package string // package ident for PackageRequirement and BuildEnvironment
}

// FromCommandLine is the requester of user requests.
var FromCommandLine = RequestedBy{Kind: CommandLine}

// ByPackage returns the requester for an install requirement of id.
func ByPackage(id manifest.BuildIdent) RequestedBy {
	return RequestedBy{Kind: PackageRequirement, Package: id.String()}
}

// ByBuildEnv returns the requester for a build requirement of a recipe.
func ByBuildEnv(id manifest.Ident) RequestedBy {
	return RequestedBy{Kind: BuildEnvironment, Package: id.String()}
}

// PackageName returns the name of the requesting package, or "".
func (r RequestedBy) PackageName() string {
	name, _, _ := strings.Cut(r.Package, "/")
	return name
}

// String returns a short human description.
func (r RequestedBy) String() string {
	switch r.Kind {
	case PackageRequirement:
		return r.Package
	case BuildEnvironment:
		return r.Package + " (build env)"
	default:
		return "command line"
	}
}

// PkgRequest asks for a package within a version range.
type PkgRequest struct {
	Name             string
	Range            version.Range
	Build            manifest.BuildID // empty for any build
	Components       []string
	PreReleasePolicy PreReleasePolicy
	InclusionPolicy  InclusionPolicy
	// RequiredCompat is the compatibility a default range demands. It is
	// binary for install requirements and API for source packages.
	RequiredCompat version.CompatRule
	RequestedBy    []RequestedBy
}

// ParsePkgRequest parses "name[:components][/range[/build]]".
//
// Examples:
//   - "maya"
//   - "maya/2019"
//   - "maya/~2019.0.0"
//   - "maya/=2019.2.0/src"
//   - "python:{run,dev}/3.7"
func ParsePkgRequest(s string, by RequestedBy) (*PkgRequest, error) {
	nameAndComps, rest, _ := strings.Cut(s, "/")
	name, comps, hasComps := strings.Cut(nameAndComps, ":")
	if err := manifest.ValidateName(name); err != nil {
		return nil, fmt.Errorf("invalid request %q: %w", s, err)
	}

	req := &PkgRequest{
		Name:           name,
		Range:          version.Filter{},
		RequiredCompat: version.CompatBinary,
		RequestedBy:    []RequestedBy{by},
	}

	if hasComps {
		comps = strings.TrimSuffix(strings.TrimPrefix(comps, "{"), "}")
		for _, c := range strings.Split(comps, ",") {
			if c = strings.TrimSpace(c); c != "" {
				req.Components = append(req.Components, c)
			}
		}
		sort.Strings(req.Components)
	}

	rangeStr, build, hasBuild := strings.Cut(rest, "/")
	r, err := version.ParseRange(rangeStr)
	if err != nil {
		return nil, fmt.Errorf("invalid request %q: %w", s, err)
	}
	req.Range = r
	if hasBuild {
		if build == "" {
			return nil, fmt.Errorf("invalid request %q: empty build", s)
		}
		req.Build = manifest.BuildID(build)
	}
	return req, nil
}

// MustParsePkgRequest parses a request from the command line and panics on
// error.
func MustParsePkgRequest(s string) *PkgRequest {
	r, err := ParsePkgRequest(s, FromCommandLine)
	if err != nil {
		panic(fmt.Sprintf("request.MustParsePkgRequest(%q): %v", s, err))
	}
	return r
}

// FromRequirement converts a package install requirement into a request.
func FromRequirement(req manifest.Requirement, by RequestedBy) (*PkgRequest, error) {
	if !req.IsPkg() {
		return nil, fmt.Errorf("requirement %q is not a package requirement", req)
	}
	out, err := ParsePkgRequest(req.Pkg, by)
	if err != nil {
		return nil, err
	}
	if len(req.Components) > 0 {
		out.Components = append([]string(nil), req.Components...)
		sort.Strings(out.Components)
	}
	if out.PreReleasePolicy, err = ParsePreReleasePolicy(req.PreReleasePolicy); err != nil {
		return nil, err
	}
	if out.InclusionPolicy, err = ParseInclusionPolicy(req.Include); err != nil {
		return nil, err
	}
	return out, nil
}

// String returns the request in parseable form.
func (r *PkgRequest) String() string {
	var sb strings.Builder
	sb.WriteString(r.Name)
	if len(r.Components) > 0 {
		sb.WriteString(":")
		if len(r.Components) == 1 {
			sb.WriteString(r.Components[0])
		} else {
			sb.WriteString("{" + strings.Join(r.Components, ",") + "}")
		}
	}
	rng := ""
	if r.Range != nil {
		rng = r.Range.String()
	}
	if rng != "" || r.Build != "" {
		sb.WriteString("/" + rng)
	}
	if r.Build != "" {
		sb.WriteString("/" + string(r.Build))
	}
	return sb.String()
}

// Clone returns a copy that can be restricted without affecting r.
func (r *PkgRequest) Clone() *PkgRequest {
	out := *r
	out.Components = append([]string(nil), r.Components...)
	out.RequestedBy = append([]RequestedBy(nil), r.RequestedBy...)
	return &out
}

// Restrict returns a new request accepting only what both r and other
// accept. Policies combine to the stronger of the two and the requesters are
// merged.
func (r *PkgRequest) Restrict(other *PkgRequest) (*PkgRequest, error) {
	if r.Name != other.Name {
		return nil, fmt.Errorf("cannot restrict %s with a request for %s", r.Name, other.Name)
	}

	rng, err := version.Intersect(r.Range, other.Range)
	if err != nil {
		return nil, err
	}

	out := r.Clone()
	out.Range = rng
	out.PreReleasePolicy = min(r.PreReleasePolicy, other.PreReleasePolicy)
	out.InclusionPolicy = min(r.InclusionPolicy, other.InclusionPolicy)

	switch {
	case out.Build == "":
		out.Build = other.Build
	case other.Build != "" && other.Build != out.Build:
		return nil, fmt.Errorf("requested builds conflict: %s != %s", out.Build, other.Build)
	}

	out.Components = mergeStrings(out.Components, other.Components)
	for _, by := range other.RequestedBy {
		out.AddRequester(by)
	}
	return out, nil
}

// AddRequester records another requester, ignoring duplicates.
func (r *PkgRequest) AddRequester(by RequestedBy) {
	for _, existing := range r.RequestedBy {
		if existing == by {
			return
		}
	}
	r.RequestedBy = append(r.RequestedBy, by)
}

// IsVersionApplicable is a cheap pre-check of a version before its spec is
// loaded.
func (r *PkgRequest) IsVersionApplicable(v *version.Version) version.Compatibility {
	if r.PreReleasePolicy == ExcludeAll && v.IsPreRelease() {
		return version.Incompatible("prereleases not allowed")
	}
	return r.Range.IsApplicable(v)
}

// IsSatisfiedBy checks a package spec against the request.
func (r *PkgRequest) IsSatisfiedBy(spec *manifest.Spec) version.Compatibility {
	if spec.Name() != r.Name {
		return version.Incompatible("different package names: %s != %s", spec.Name(), r.Name)
	}

	if spec.Deprecated && (r.Build == "" || r.Build != spec.Pkg.Build) {
		return version.Incompatible("build is deprecated and was not specifically requested")
	}

	if r.PreReleasePolicy == ExcludeAll && spec.Version().IsPreRelease() {
		return version.Incompatible("prereleases not allowed")
	}

	if len(r.Components) > 0 && !spec.Pkg.Build.IsSource() {
		available := make(map[string]bool)
		for _, c := range spec.ComponentNames() {
			available[c] = true
		}
		var missing []string
		for _, c := range r.Components {
			if c != manifest.ComponentAll && !available[c] {
				missing = append(missing, c)
			}
		}
		if len(missing) > 0 {
			return version.Incompatible("does not define requested components: [%s], found [%s]",
				strings.Join(missing, ", "), strings.Join(spec.ComponentNames(), ", "))
		}
	}

	required := r.RequiredCompat
	if spec.Pkg.Build.IsSource() || spec.IsRecipe() {
		required = version.CompatAPI
	}
	if c := r.Range.IsSatisfiedBy(spec.Version(), spec.Compat, required); !c.OK() {
		return c
	}

	if r.Build != "" && r.Build != spec.Pkg.Build {
		return version.Incompatible("requested build %s != %s", r.Build, spec.Pkg.Build)
	}
	return version.Compatible()
}

// HasRequester reports whether by is among the request's requesters.
func (r *PkgRequest) HasRequester(by RequestedBy) bool {
	for _, existing := range r.RequestedBy {
		if existing == by {
			return true
		}
	}
	return false
}

// VarRequest asks for a variable to take a value. Names may be namespaced
// with a package ("python.abi").
type VarRequest struct {
	Name  string
	Value string
	Pin   bool
}

// ParseVarRequest parses "name/value" or "name=value".
func ParseVarRequest(s string) (VarRequest, error) {
	name, value, ok := strings.Cut(s, "/")
	if !ok {
		name, value, ok = strings.Cut(s, "=")
	}
	if !ok || name == "" {
		return VarRequest{}, fmt.Errorf("invalid var request %q: must be in the form name/value", s)
	}
	return VarRequest{Name: name, Value: value}, nil
}

// FromVarRequirement converts a var install requirement into a request.
func FromVarRequirement(req manifest.Requirement) (VarRequest, error) {
	if req.IsPkg() {
		return VarRequest{}, fmt.Errorf("requirement %q is not a var requirement", req)
	}
	vr, err := ParseVarRequest(req.Var)
	if err != nil {
		return VarRequest{}, err
	}
	vr.Pin = req.Pin
	return vr, nil
}

// String returns "name/value".
func (r VarRequest) String() string {
	return r.Name + "/" + r.Value
}

// Package returns the package namespace of the variable, or "".
func (r VarRequest) Package() string {
	pkg, _, ok := strings.Cut(r.Name, ".")
	if !ok {
		return ""
	}
	return pkg
}

// BaseName returns the variable name without its package namespace.
func (r VarRequest) BaseName() string {
	if _, name, ok := strings.Cut(r.Name, "."); ok {
		return name
	}
	return r.Name
}

func mergeStrings(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	var out []string
	for _, s := range append(append([]string(nil), a...), b...) {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}
