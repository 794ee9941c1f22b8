package solver

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/launchcg/stratum/internal/errors"
	"github.com/launchcg/stratum/internal/graph"
	"github.com/launchcg/stratum/internal/iterator"
	"github.com/launchcg/stratum/internal/manifest"
	"github.com/launchcg/stratum/internal/request"
	"github.com/launchcg/stratum/pkg/version"
)

// step decides what to do from node. It returns a nil decision when the
// node is terminal, and an *outOfOptionsError or *notFoundError when the
// node's request can't be resolved.
func (r *Runtime) step(ctx context.Context, node *graph.Node) (*graph.Decision, *graph.Node, error) {
	state := node.State
	name := state.NextRequest(r.s.cfg.requestPriority)
	if name == "" {
		return nil, nil, nil
	}
	defer r.stats.recordRequestTime(name, time.Now())

	merged, err := state.MergedRequest(name)
	if err != nil {
		return nil, nil, &outOfOptionsError{
			request:  anyRequest(state, name),
			notes:    []graph.Note{graph.OtherNote{Message: err.Error()}},
			conflict: err,
		}
	}

	var notes []graph.Note
	it := node.Iterator(name, func() *iterator.Iterator { return r.s.iterator(name) })
	it.SetFilter(merged.IsVersionApplicable, func(v *version.Version, reason string) {
		r.stats.IncompatibleVersions++
		notes = append(notes, graph.SkipPackageNote{Pkg: name + "/" + v.String(), Reason: reason})
	})

	for {
		cand, err := it.Next(ctx)
		if errors.Is(err, iterator.ErrPackageNotFound) {
			return nil, nil, &notFoundError{request: merged}
		}
		if err != nil {
			return nil, nil, err
		}
		if cand == nil {
			return nil, nil, &outOfOptionsError{request: merged, notes: notes, matched: it.Matched(), iterator: it}
		}
		r.stats.TotalBuilds++

		decision, reason, err := r.evaluate(ctx, state, merged, cand)
		if err != nil {
			return nil, nil, err
		}
		if decision == nil {
			notes = append(notes, graph.SkipPackageNote{Pkg: cand.String(), Reason: reason})
			continue
		}

		child := node.Child(decision)
		if !r.graph.Visit(child.State) {
			notes = append(notes, graph.SkipPackageNote{Pkg: cand.String(), Reason: "Branch already attempted"})
			continue
		}
		decision.AddNotes(notes...)
		return decision, child, nil
	}
}

// evaluate returns the decision resolving cand, or the reason it was
// skipped. Errors are only returned when the solve must stop.
func (r *Runtime) evaluate(ctx context.Context, state *graph.State, merged *request.PkgRequest, cand *iterator.Candidate) (*graph.Decision, string, error) {
	spec := cand.Spec
	if cand.Source.IsRecipe() || spec.IsRecipe() {
		return r.buildFromSource(ctx, state, merged, cand)
	}
	if spec.IsSource() && merged.Build != manifest.SourceBuild {
		return nil, "source packages are only resolved when requested by build", nil
	}

	if out := r.s.pipeline.Validate(state, spec, cand.Source); !out.OK() {
		r.stats.IncompatibleBuilds++
		return nil, out.Reason, nil
	}

	if r.s.impossible.Validation {
		res, err := r.s.impossible.CheckSpec(ctx, state, spec)
		if err != nil {
			return nil, "", err
		}
		if !res.OK() {
			r.stats.BuildsSkipped++
			return nil, res.Reason(), nil
		}
	}

	decision, err := r.resolve(state, merged, spec, cand.Source, nil)
	if err != nil {
		r.stats.IncompatibleBuilds++
		return nil, err.Error(), nil
	}
	return decision, "", nil
}

// buildFromSource solves the build environment of a recipe and returns the
// decision resolving the build it renders.
func (r *Runtime) buildFromSource(ctx context.Context, state *graph.State, merged *request.PkgRequest, cand *iterator.Candidate) (*graph.Decision, string, error) {
	recipe := cand.Spec
	switch {
	case !r.s.cfg.buildFromSource:
		return nil, "building from source is disabled", nil
	case recipe.Deprecated:
		return nil, "cannot build from source, version is deprecated", nil
	case r.s.building[recipe.Name()]:
		return nil, fmt.Sprintf("cannot build from source, %s is already being built", recipe.Name()), nil
	}

	if out := r.s.pipeline.Validate(state, recipe, cand.Source); !out.OK() {
		r.stats.IncompatibleBuilds++
		return nil, "building from source is not possible with this recipe: " + out.Reason, nil
	}

	opts := state.Options().Clone()
	for _, p := range state.Packages() {
		if _, ok := opts[p.Spec.Name()]; !ok {
			opts[p.Spec.Name()] = p.Spec.Version().String()
		}
	}

	env, err := r.solveBuildEnv(ctx, recipe, opts)
	if err != nil {
		if ierr := r.interrupted(ctx); ierr != nil {
			return nil, "", ierr
		}
		r.stats.recordMessage(err.Error())
		return nil, "cannot resolve build env for source build: " + err.Error(), nil
	}

	deps := make([]*manifest.Spec, 0, len(env.Packages()))
	for _, p := range env.Packages() {
		deps = append(deps, p.Spec)
	}
	built, err := recipe.RenderBuild(opts, deps)
	if err != nil {
		return nil, "building from source not possible: " + err.Error(), nil
	}
	if out := r.s.pipeline.Validate(state, built, cand.Source); !out.OK() {
		r.stats.IncompatibleBuilds++
		return nil, "building from source not possible: " + out.Reason, nil
	}

	decision, err := r.resolve(state, merged, built, cand.Source, env)
	if err != nil {
		return nil, "building from source not possible: " + err.Error(), nil
	}
	return decision, "", nil
}

// solveBuildEnv runs a nested solve for the build requirements of recipe and
// returns its terminal state.
func (r *Runtime) solveBuildEnv(ctx context.Context, recipe *manifest.Spec, opts manifest.OptionMap) (*graph.State, error) {
	sub := r.s.sub(recipe.Name())
	sub.cfg.options = opts
	by := request.ByBuildEnv(recipe.Pkg.Ident)
	for _, req := range recipe.BuildRequirements(opts) {
		pr, err := request.FromRequirement(req, by)
		if err != nil {
			return nil, &BuildEnvironmentUnresolvableError{Recipe: recipe.Pkg.Ident.String(), Err: err}
		}
		sub.AddRequest(pr)
	}

	r.stats.SubSolves++
	ctx = trace.ContextWithSpan(ctx, r.span)
	if r.s.cfg.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithDeadline(ctx, r.start.Add(r.s.cfg.timeout))
		defer cancel()
	}

	rt := sub.Run(ctx)
	if _, err := rt.Solution(ctx); err != nil {
		return nil, &BuildEnvironmentUnresolvableError{Recipe: recipe.Pkg.Ident.String(), Err: err}
	}
	return rt.solved.State, nil
}

// resolve builds the decision that fixes spec: it unresolves packages the
// spec's requirements rule out, sets the spec and its embedded packages,
// requests its requirements and records its options. A non-nil env marks
// spec as a build rendered against that build environment.
func (r *Runtime) resolve(state *graph.State, merged *request.PkgRequest, spec *manifest.Spec, src iterator.Source, env *graph.State) (*graph.Decision, error) {
	var unresolve, changes []graph.Change
	if env != nil {
		changes = append(changes, graph.SetPackageBuild{Spec: spec, Source: src, BuildEnv: env})
	} else {
		changes = append(changes, graph.SetPackage{Spec: spec, Source: src})
	}

	embedded, err := spec.EmbeddedSpecs()
	if err != nil {
		return nil, err
	}
	for _, e := range embedded {
		changes = append(changes, graph.SetPackage{Spec: e, Source: iterator.EmbeddedSource(spec.Pkg)})
	}

	by := request.ByPackage(spec.Pkg)
	for _, req := range spec.RuntimeRequirements(merged.Components) {
		if !req.IsPkg() {
			vr, err := request.FromVarRequirement(req)
			if err != nil {
				return nil, err
			}
			if vr.Value != "" {
				changes = append(changes, graph.RequestVar{Request: vr, RequestedBy: by})
			}
			continue
		}

		pr, err := request.FromRequirement(req, by)
		if err != nil {
			return nil, err
		}
		changes = append(changes, graph.RequestPackage{Request: pr})

		if u, ok := revisit(state, pr); ok {
			unresolve = append(unresolve, u)
		}
	}

	opts := manifest.OptionMap{}
	for k, v := range spec.Options() {
		if v != "" {
			opts[spec.Name()+"."+k] = v
		}
	}
	if len(opts) > 0 {
		changes = append(changes, graph.SetOptions{Options: opts})
	}

	return graph.NewDecision(append(unresolve, changes...)...), nil
}

// revisit returns the change unresolving the package pr names if the
// package is resolved and no longer satisfies the combined request.
func revisit(state *graph.State, pr *request.PkgRequest) (graph.UnresolvePackage, bool) {
	resolved, ok := state.Resolved(pr.Name)
	if !ok || resolved.Source.Kind == iterator.Embedded {
		return graph.UnresolvePackage{}, false
	}
	combined := pr
	existing, err := state.MergedRequest(pr.Name)
	if err != nil {
		return graph.UnresolvePackage{}, false
	}
	if existing != nil {
		if combined, err = existing.Restrict(pr); err != nil {
			return graph.UnresolvePackage{}, false
		}
	}
	c := combined.IsSatisfiedBy(resolved.Spec)
	if c.OK() {
		return graph.UnresolvePackage{}, false
	}
	return graph.UnresolvePackage{
		Name:   pr.Name,
		Reason: fmt.Sprintf("%s does not satisfy %s: %s", resolved.Spec.Pkg, combined, c.Reason()),
	}, true
}

// anyRequest returns a request for name carrying every requester, for
// reporting a name whose requests conflict.
func anyRequest(state *graph.State, name string) *request.PkgRequest {
	var out *request.PkgRequest
	for _, req := range state.PkgRequests() {
		if req.Name != name {
			continue
		}
		if out == nil {
			out = req.Clone()
			continue
		}
		for _, by := range req.RequestedBy {
			out.AddRequester(by)
		}
	}
	return out
}
