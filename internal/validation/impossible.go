package validation

import (
	"context"
	"fmt"
	"sync"

	"github.com/launchcg/stratum/internal/errors"
	"github.com/launchcg/stratum/internal/graph"
	"github.com/launchcg/stratum/internal/iterator"
	"github.com/launchcg/stratum/internal/manifest"
	"github.com/launchcg/stratum/internal/registry"
	"github.com/launchcg/stratum/internal/request"
	"github.com/launchcg/stratum/pkg/version"
)

// ImpossibleChecker finds requests that no build in any repository can
// satisfy, without searching. Its iterators are separate from the solver's
// so a check never waits on a build list it is part of sorting.
//
// A request is only reported impossible when no published build, no
// allowed recipe and no embedded package anywhere in the repositories could
// satisfy it, so enabling the checks never changes whether a solve succeeds.
type ImpossibleChecker struct {
	repos        []registry.Repository
	allowRecipes bool

	// Initial checks the requests a solve starts with.
	Initial bool
	// Validation checks each candidate's requirements before it is
	// resolved.
	Validation bool
	// Builds sorts builds with impossible requirements last.
	Builds bool

	mu        sync.Mutex
	iterators map[string]*iterator.Iterator
	results   map[string]version.Compatibility

	embedMu  sync.Mutex
	embedded map[string][]*manifest.Spec
}

// NewImpossibleChecker returns a checker over repos. Recipes count as a way
// to satisfy a request when allowRecipes is set.
func NewImpossibleChecker(repos []registry.Repository, allowRecipes bool) *ImpossibleChecker {
	return &ImpossibleChecker{
		repos:        repos,
		allowRecipes: allowRecipes,
		iterators:    make(map[string]*iterator.Iterator),
		results:      make(map[string]version.Compatibility),
	}
}

func (c *ImpossibleChecker) iterator(name string) *iterator.Iterator {
	c.mu.Lock()
	defer c.mu.Unlock()
	it, ok := c.iterators[name]
	if !ok {
		it = iterator.New(name, c.repos)
		c.iterators[name] = it
	}
	return it
}

// Check reports whether any build could satisfy req.
func (c *ImpossibleChecker) Check(ctx context.Context, req *request.PkgRequest) (version.Compatibility, error) {
	key := req.String()
	c.mu.Lock()
	res, ok := c.results[key]
	c.mu.Unlock()
	if ok {
		return res, nil
	}

	res, err := c.check(ctx, c.iterator(req.Name), req)
	if err != nil {
		return version.Compatibility{}, err
	}
	if !res.OK() {
		provided, err := c.providedByEmbedded(ctx, req)
		if err != nil {
			return version.Compatibility{}, err
		}
		if provided {
			res = version.Compatible()
		}
	}

	c.mu.Lock()
	c.results[key] = res
	c.mu.Unlock()
	return res, nil
}

func (c *ImpossibleChecker) check(ctx context.Context, it *iterator.Iterator, req *request.PkgRequest) (version.Compatibility, error) {
	if _, err := version.Intersect(req.Range, version.Filter{}); err != nil {
		return version.Incompatible("range %s is empty: %v", req.Range, err), nil
	}

	versions, err := it.Versions(ctx)
	if errors.Is(err, iterator.ErrPackageNotFound) {
		return version.Incompatible("package %s not found", req.Name), nil
	}
	if err != nil {
		return version.Compatibility{}, err
	}

	var applicable []*version.Version
	for _, v := range versions {
		if req.IsVersionApplicable(v).OK() {
			applicable = append(applicable, v)
		}
	}
	if len(applicable) == 0 {
		return version.Incompatible("no version of %s is applicable to %s", req.Name, req.Range), nil
	}

	hasRecipe := false
	for _, v := range applicable {
		builds, err := it.Builds(ctx, v)
		if err != nil {
			return version.Compatibility{}, err
		}
		for _, b := range builds {
			if b.Source.IsRecipe() {
				hasRecipe = true
				continue
			}
			if req.IsSatisfiedBy(b.Spec).OK() {
				return version.Compatible(), nil
			}
		}
	}

	if hasRecipe && c.allowRecipes && req.Build == "" {
		return version.Compatible(), nil
	}
	return version.Incompatible("no build of %s satisfies %s", req.Name, req), nil
}

// providedByEmbedded reports whether a package embedded in some build could
// satisfy req.
func (c *ImpossibleChecker) providedByEmbedded(ctx context.Context, req *request.PkgRequest) (bool, error) {
	embedded, err := c.embeddedPackages(ctx)
	if err != nil {
		return false, err
	}
	for _, spec := range embedded[req.Name] {
		if req.IsSatisfiedBy(spec).OK() {
			return true, nil
		}
	}
	return false, nil
}

// embeddedPackages reads every build in the repositories once and returns
// the packages they embed, by name.
func (c *ImpossibleChecker) embeddedPackages(ctx context.Context) (map[string][]*manifest.Spec, error) {
	c.embedMu.Lock()
	defer c.embedMu.Unlock()
	if c.embedded != nil {
		return c.embedded, nil
	}

	names := make(map[string]bool)
	for _, repo := range c.repos {
		listed, err := repo.ListPackages(ctx)
		if err != nil {
			return nil, errors.NewRepositoryError(repo.Name(), "list", err)
		}
		for _, n := range listed {
			names[n] = true
		}
	}

	out := make(map[string][]*manifest.Spec)
	for name := range names {
		it := c.iterator(name)
		versions, err := it.Versions(ctx)
		if errors.Is(err, iterator.ErrPackageNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		for _, v := range versions {
			builds, err := it.Builds(ctx, v)
			if err != nil {
				return nil, err
			}
			for _, b := range builds {
				if b.Source.IsRecipe() && !c.allowRecipes {
					continue
				}
				specs, err := b.Spec.EmbeddedSpecs()
				if err != nil {
					// such a build is never resolved
					continue
				}
				for _, e := range specs {
					out[e.Name()] = append(out[e.Name()], e)
				}
			}
		}
	}
	c.embedded = out
	return out, nil
}

// CheckRequests merges the requests of state by name and returns the reason
// each impossible one fails, keyed by merged request string. Requests that
// can't be merged are keyed by package name. Names only requested with
// IfAlreadyPresent are never resolved on their own and are skipped.
func (c *ImpossibleChecker) CheckRequests(ctx context.Context, state *graph.State) (map[string]string, error) {
	out := make(map[string]string)
	seen := make(map[string]bool)
	for _, r := range state.PkgRequests() {
		if seen[r.Name] {
			continue
		}
		seen[r.Name] = true
		if !alwaysRequested(state, r.Name) {
			continue
		}

		merged, err := state.MergedRequest(r.Name)
		if err != nil {
			out[r.Name] = err.Error()
			continue
		}
		res, err := c.Check(ctx, merged)
		if err != nil {
			return nil, err
		}
		if !res.OK() {
			out[merged.String()] = res.Reason()
		}
	}
	return out, nil
}

func alwaysRequested(state *graph.State, name string) bool {
	for _, r := range state.PkgRequests() {
		if r.Name == name && r.InclusionPolicy == request.Always {
			return true
		}
	}
	return false
}

// CheckSpec reports the first install requirement of spec that can't be
// satisfied. With a state, each requirement is first combined with the
// state's unresolved request for the same name. Names the state already
// resolved, and requirements that can't be combined, are left to the
// validators. The state may be nil.
func (c *ImpossibleChecker) CheckSpec(ctx context.Context, state *graph.State, spec *manifest.Spec) (version.Compatibility, error) {
	provides := make(map[string]bool)
	if embedded, err := spec.EmbeddedSpecs(); err == nil {
		for _, e := range embedded {
			provides[e.Name()] = true
		}
	}

	var reqs []*request.PkgRequest
	for _, r := range spec.RuntimeRequirements(nil) {
		if !r.IsPkg() {
			continue
		}
		req, err := request.FromRequirement(r, request.ByPackage(spec.Pkg))
		if err != nil {
			return version.Compatibility{}, err
		}
		if req.InclusionPolicy == request.IfAlreadyPresent || provides[req.Name] {
			continue
		}
		reqs = append(reqs, req)
	}

	// unresolving a package drops the requests it made, so the state's
	// requests only narrow a requirement when nothing is unresolved
	combine := state != nil && !unresolvesAny(state, reqs)

	for _, req := range reqs {
		if state != nil {
			if _, ok := state.Resolved(req.Name); ok {
				continue
			}
		}
		if combine {
			if existing, err := state.MergedRequest(req.Name); err == nil && existing != nil {
				if combined, err := req.Restrict(existing); err == nil {
					req = combined
				}
			}
		}

		res, err := c.Check(ctx, req)
		if err != nil {
			return version.Compatibility{}, err
		}
		if !res.OK() {
			return version.Incompatible("impossible requirement %s: %s", req, res.Reason()), nil
		}
	}
	return version.Compatible(), nil
}

// unresolvesAny reports whether resolving a package with these requirements
// would unresolve a package of state.
func unresolvesAny(state *graph.State, reqs []*request.PkgRequest) bool {
	for _, req := range reqs {
		resolved, ok := state.Resolved(req.Name)
		if !ok {
			continue
		}
		combined := req
		if existing, err := state.MergedRequest(req.Name); err == nil && existing != nil {
			if c, err := req.Restrict(existing); err == nil {
				combined = c
			}
		}
		if !combined.IsSatisfiedBy(resolved.Spec).OK() {
			return true
		}
	}
	return false
}

// Possible adapts CheckSpec for build sorting, where no state is known.
// Errors count as possible so the build is still tried.
func (c *ImpossibleChecker) Possible(ctx context.Context, spec *manifest.Spec) bool {
	res, err := c.CheckSpec(ctx, nil, spec)
	return err != nil || res.OK()
}

// String names the enabled checks.
func (c *ImpossibleChecker) String() string {
	return fmt.Sprintf("ImpossibleChecker{initial=%t, validation=%t, builds=%t}", c.Initial, c.Validation, c.Builds)
}
