package validation

import (
	"strings"

	"github.com/launchcg/stratum/internal/graph"
	"github.com/launchcg/stratum/internal/iterator"
	"github.com/launchcg/stratum/internal/manifest"
	"github.com/launchcg/stratum/internal/request"
)

// BinaryOnly denies recipes and source packages that were not requested by
// build.
type BinaryOnly struct{}

func (BinaryOnly) Name() string { return NameBinaryOnly }

func (BinaryOnly) Validate(state *graph.State, spec *manifest.Spec, src iterator.Source) Outcome {
	if spec.IsRecipe() || src.IsRecipe() {
		return Deny("only binary packages are allowed")
	}
	if spec.IsSource() {
		req, _ := state.MergedRequest(spec.Name())
		if req == nil || req.Build != manifest.SourceBuild {
			return Deny("only binary packages are allowed")
		}
	}
	return Allow()
}

// Deprecation denies deprecated builds unless that exact build was
// requested.
type Deprecation struct{}

func (Deprecation) Name() string { return NameDeprecation }

func (Deprecation) Validate(state *graph.State, spec *manifest.Spec, _ iterator.Source) Outcome {
	if !spec.Deprecated {
		return Allow()
	}
	req, _ := state.MergedRequest(spec.Name())
	if req != nil && req.Build == spec.Pkg.Build {
		return Allow()
	}
	return Deny("build is deprecated and was not specifically requested")
}

// PkgRequest checks the candidate against the merged request for its name.
type PkgRequest struct{}

func (PkgRequest) Name() string { return NamePkgRequest }

func (PkgRequest) Validate(state *graph.State, spec *manifest.Spec, _ iterator.Source) Outcome {
	req, err := state.MergedRequest(spec.Name())
	if err != nil {
		return Deny("%v", err)
	}
	if req == nil {
		return Deny("package %s was not requested", spec.Name())
	}
	if c := req.IsVersionApplicable(spec.Version()); !c.OK() {
		return Deny("%s", c.Reason())
	}
	if c := req.IsSatisfiedBy(spec); !c.OK() {
		return Deny("%s", c.Reason())
	}
	return Allow()
}

// Components checks that the requested components exist on the build.
type Components struct{}

func (Components) Name() string { return NameComponents }

func (Components) Validate(state *graph.State, spec *manifest.Spec, _ iterator.Source) Outcome {
	if spec.IsRecipe() || spec.IsSource() {
		return Allow()
	}
	req, _ := state.MergedRequest(spec.Name())
	if req == nil {
		return Allow()
	}
	available := make(map[string]bool)
	for _, c := range spec.ComponentNames() {
		available[c] = true
	}
	var missing []string
	for _, c := range req.Components {
		if c != manifest.ComponentAll && !available[c] {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return Deny("does not define requested components: [%s]", strings.Join(missing, ", "))
	}
	return Allow()
}

// Options checks the state's variable requests against the candidate's
// option values.
type Options struct{}

func (Options) Name() string { return NameOptions }

func (Options) Validate(state *graph.State, spec *manifest.Spec, _ iterator.Source) Outcome {
	for _, vr := range state.VarRequests() {
		name, ok := optionFor(vr, spec.Name())
		if !ok {
			continue
		}
		opt, ok := spec.Option(name)
		if !ok || opt.IsPkg() {
			continue
		}
		if spec.IsRecipe() || spec.IsSource() {
			if err := opt.Validate(vr.Value); err != nil {
				return Deny("%v", err)
			}
			continue
		}
		if value := opt.Value(); value != "" && value != vr.Value {
			return Deny("invalid value for %s: requested %q, build has %q", vr.Name, vr.Value, value)
		}
	}
	return Allow()
}

// optionFor returns the option name of pkg that a var request targets.
func optionFor(vr request.VarRequest, pkg string) (string, bool) {
	switch vr.Package() {
	case "":
		return vr.Name, true
	case pkg:
		return vr.BaseName(), true
	}
	return "", false
}

// VarRequirements checks the candidate's variable requirements against the
// options already resolved.
type VarRequirements struct{}

func (VarRequirements) Name() string { return NameVarRequirements }

func (VarRequirements) Validate(state *graph.State, spec *manifest.Spec, _ iterator.Source) Outcome {
	opts := state.Options()
	for _, r := range spec.Install.Requirements {
		if r.IsPkg() {
			continue
		}
		vr, err := request.FromVarRequirement(r)
		if err != nil {
			return Deny("%v", err)
		}
		if current, ok := opts[vr.Name]; ok && current != "" && vr.Value != "" && current != vr.Value {
			return Deny("package wants %s=%s, resolved value is %s", vr.Name, vr.Value, current)
		}
	}
	return Allow()
}

// PkgRequirements checks that each install requirement of the candidate can
// be merged with the existing requests. A resolved package that no longer
// fits is allowed through: the solver unresolves it.
type PkgRequirements struct{}

func (PkgRequirements) Name() string { return NamePkgRequirements }

func (PkgRequirements) Validate(state *graph.State, spec *manifest.Spec, _ iterator.Source) Outcome {
	var components []string
	if req, _ := state.MergedRequest(spec.Name()); req != nil {
		components = req.Components
	}
	for _, r := range spec.RuntimeRequirements(components) {
		if !r.IsPkg() {
			continue
		}
		req, err := request.FromRequirement(r, request.ByPackage(spec.Pkg))
		if err != nil {
			return Deny("%v", err)
		}
		merged, err := state.MergedRequest(req.Name)
		if err != nil {
			return Deny("%v", err)
		}
		if merged != nil {
			if merged, err = merged.Restrict(req); err != nil {
				return Deny("conflicting requirement %s: %v", req, err)
			}
		} else {
			merged = req
		}

		resolved, ok := state.Resolved(req.Name)
		if !ok {
			continue
		}
		if c := merged.IsSatisfiedBy(resolved.Spec); !c.OK() && resolved.Source.Kind == iterator.Embedded {
			return Deny("embedded package %s does not satisfy %s: %s", resolved.Spec.Pkg, req, c.Reason())
		}
	}
	return Allow()
}

// EmbeddedPackages checks that the packages a candidate embeds don't clash
// with what is already resolved or requested.
type EmbeddedPackages struct{}

func (EmbeddedPackages) Name() string { return NameEmbeddedPackages }

func (EmbeddedPackages) Validate(state *graph.State, spec *manifest.Spec, _ iterator.Source) Outcome {
	embedded, err := spec.EmbeddedSpecs()
	if err != nil {
		return Deny("%v", err)
	}
	for _, e := range embedded {
		if existing, ok := state.Resolved(e.Name()); ok {
			if existing.Source.Kind != iterator.Embedded || existing.Source.Parent != spec.Pkg.String() {
				return Deny("embedded package %s conflicts with resolved %s", e.Pkg.Ident, existing.Spec.Pkg)
			}
		}
		req, err := state.MergedRequest(e.Name())
		if err != nil {
			return Deny("%v", err)
		}
		if req != nil {
			if c := req.IsSatisfiedBy(e); !c.OK() {
				return Deny("embedded package %s does not satisfy %s: %s", e.Pkg.Ident, req, c.Reason())
			}
		}
	}
	return Allow()
}
