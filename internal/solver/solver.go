// Package solver searches for a set of package builds that satisfies a set
// of requests.
//
// The search walks a graph of states. Each step takes the next unresolved
// request, pulls candidates from that package's iterator, and resolves the
// first one the validators allow. When a request runs out of candidates the
// search steps back to the parent state and resumes its iterator. Recipes
// are built from source by solving their build requirements with a nested
// Solver.
//
// A Solver is reusable: every Run starts a fresh search over the same
// requests and shares the fetched repository data with earlier runs.
package solver

import (
	"context"
	"fmt"
	"sync"

	"github.com/launchcg/stratum/internal/graph"
	"github.com/launchcg/stratum/internal/iterator"
	"github.com/launchcg/stratum/internal/registry"
	"github.com/launchcg/stratum/internal/request"
	"github.com/launchcg/stratum/internal/solution"
	"github.com/launchcg/stratum/internal/validation"
)

// Solver holds the repositories, requests and settings of a solve.
type Solver struct {
	repos      []registry.Repository
	cfg        config
	pipeline   *validation.Pipeline
	impossible *validation.ImpossibleChecker

	requests []*request.PkgRequest
	vars     []request.VarRequest

	protos *prototypes
	// names of recipes being built by enclosing solves
	building map[string]bool
	depth    int
}

// prototypes keeps one untouched iterator per package name. Solves clone
// them so every cursor shares the fetched data.
type prototypes struct {
	mu sync.Mutex
	m  map[string]*iterator.Iterator
}

// New returns a solver over repos, highest priority first.
func New(repos []registry.Repository, opts ...Option) (*Solver, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	var popts []validation.PipelineOption
	if len(cfg.validators) > 0 {
		popts = append(popts, validation.WithValidators(cfg.validators...))
	}
	if cfg.binaryOnly {
		popts = append(popts, validation.WithBinaryOnly())
	}
	if len(cfg.rules) > 0 {
		popts = append(popts, validation.WithRules(cfg.rules...))
	}
	pipeline, err := validation.NewPipeline(popts...)
	if err != nil {
		return nil, fmt.Errorf("invalid validation rules: %w", err)
	}

	impossible := validation.NewImpossibleChecker(repos, cfg.buildFromSource && !cfg.binaryOnly)
	impossible.Initial = cfg.checkInitial
	impossible.Validation = cfg.checkValidation
	impossible.Builds = cfg.checkBuilds

	return &Solver{
		repos:      repos,
		cfg:        cfg,
		pipeline:   pipeline,
		impossible: impossible,
		protos:     &prototypes{m: make(map[string]*iterator.Iterator)},
		building:   map[string]bool{},
	}, nil
}

// AddRequest adds package requests.
func (s *Solver) AddRequest(reqs ...*request.PkgRequest) {
	s.requests = append(s.requests, reqs...)
}

// AddVarRequest adds variable requests.
func (s *Solver) AddVarRequest(vars ...request.VarRequest) {
	s.vars = append(s.vars, vars...)
}

// Requests returns the package requests.
func (s *Solver) Requests() []*request.PkgRequest { return s.requests }

// Repositories returns the repositories in priority order.
func (s *Solver) Repositories() []registry.Repository { return s.repos }

// Validators returns the names of the validators in the order they run.
func (s *Solver) Validators() []string { return s.pipeline.Validators() }

// Solve runs a search to completion.
func (s *Solver) Solve(ctx context.Context) (*solution.Solution, error) {
	return s.Run(ctx).Solution(ctx)
}

// iterator returns a fresh cursor over the candidates of name.
func (s *Solver) iterator(name string) *iterator.Iterator {
	s.protos.mu.Lock()
	defer s.protos.mu.Unlock()
	it, ok := s.protos.m[name]
	if !ok {
		opts := []iterator.Option{
			iterator.WithBuildKeyOrder(s.cfg.buildKeyOrder...),
			iterator.WithLogger(s.cfg.logger),
		}
		if s.impossible.Builds {
			opts = append(opts, iterator.WithPossibleCheck(s.impossible.Possible))
		}
		it = iterator.New(name, s.repos, opts...)
		s.protos.m[name] = it
	}
	return it.Clone()
}

// initialState builds the root state from the requests and options.
func (s *Solver) initialState() (*graph.State, error) {
	var changes []graph.Change
	if len(s.cfg.options) > 0 {
		changes = append(changes, graph.SetOptions{Options: s.cfg.options.Clone()})
	}

	seen := make(map[string]request.VarRequest)
	for _, vr := range s.vars {
		if prev, ok := seen[vr.Name]; ok && prev.Value != vr.Value {
			return nil, &BlockedError{Causes: []string{
				fmt.Sprintf("conflicting var requests: %s != %s", prev, vr),
			}}
		}
		seen[vr.Name] = vr
		changes = append(changes, graph.RequestVar{Request: vr, RequestedBy: request.FromCommandLine})
	}

	for _, req := range s.requests {
		r := req.Clone()
		if s.cfg.prerelease > r.PreReleasePolicy {
			r.PreReleasePolicy = s.cfg.prerelease
		}
		changes = append(changes, graph.RequestPackage{Request: r})
	}
	return graph.NewDecision(changes...).Apply(graph.NewState()), nil
}

// sub returns a solver for the build environment of recipe. It shares the
// repositories, settings and fetched data of s.
func (s *Solver) sub(recipe string) *Solver {
	building := make(map[string]bool, len(s.building)+1)
	for name := range s.building {
		building[name] = true
	}
	building[recipe] = true

	cfg := s.cfg
	cfg.options = nil
	return &Solver{
		repos:      s.repos,
		cfg:        cfg,
		pipeline:   s.pipeline,
		impossible: s.impossible,
		protos:     s.protos,
		building:   building,
		depth:      s.depth + 1,
	}
}
