// Package iterator produces the candidate builds of one package name, merged
// from priority-ordered repositories.
//
// Candidates come version-descending. The builds of one version are ordered
// by BuildKey, with the version's recipe last. Everything fetched from the
// repositories lands in a cache that is shared by all clones of an Iterator,
// so a clone is two integers and never fetches again.
package iterator

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/launchcg/stratum/internal/errors"
	"github.com/launchcg/stratum/internal/manifest"
	"github.com/launchcg/stratum/internal/registry"
	"github.com/launchcg/stratum/pkg/version"
)

// ErrPackageNotFound is returned when no repository knows a package name.
var ErrPackageNotFound = errors.New("package not found")

// SourceKind says where a candidate came from.
type SourceKind int

const (
	// FromRepository candidates are published builds.
	FromRepository SourceKind = iota
	// FromRecipe candidates are recipes that must be built from source.
	FromRecipe
	// Embedded candidates are provided by another package.
	Embedded
)

func (k SourceKind) String() string {
	switch k {
	case FromRecipe:
		return "recipe"
	case Embedded:
		return "embedded"
	}
	return "repository"
}

// Source is the origin of a candidate.
type Source struct {
	Kind SourceKind
	// Repo is the repository the spec was read from.
	Repo string
	// Parent is the package that embeds this one.
	Parent string
}

// RepositorySource returns the source of a published build.
func RepositorySource(repo string) Source { return Source{Kind: FromRepository, Repo: repo} }

// RecipeSource returns the source of a recipe read from repo.
func RecipeSource(repo string) Source { return Source{Kind: FromRecipe, Repo: repo} }

// EmbeddedSource returns the source of a package embedded in parent.
func EmbeddedSource(parent manifest.BuildIdent) Source {
	return Source{Kind: Embedded, Parent: parent.String()}
}

// IsRecipe reports whether the candidate must be built.
func (s Source) IsRecipe() bool { return s.Kind == FromRecipe }

func (s Source) String() string {
	switch s.Kind {
	case FromRecipe:
		return "recipe from " + s.Repo
	case Embedded:
		return "embedded in " + s.Parent
	}
	return s.Repo
}

// Candidate is one build under consideration.
type Candidate struct {
	Spec   *manifest.Spec
	Source Source
}

func (c *Candidate) String() string {
	return c.Spec.Pkg.String()
}

// VersionFilter decides whether the builds of a version are worth loading.
type VersionFilter func(v *version.Version) version.Compatibility

// SkipFunc is told about every version a filter rejects.
type SkipFunc func(v *version.Version, reason string)

// PossibleFunc reports whether all requirements of a build can be met by
// some repository. Builds that can't sort behind those that can.
type PossibleFunc func(ctx context.Context, spec *manifest.Spec) bool

type config struct {
	promoted []string
	possible PossibleFunc
	logger   *slog.Logger
}

// Option configures an Iterator.
type Option func(*config)

// WithBuildKeyOrder moves the named options to the front of the build key.
func WithBuildKeyOrder(names ...string) Option {
	return func(c *config) { c.promoted = names }
}

// WithPossibleCheck sorts builds with impossible requirements last.
func WithPossibleCheck(fn PossibleFunc) Option {
	return func(c *config) { c.possible = fn }
}

// WithLogger sets the logger for skipped builds.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) { c.logger = logger }
}

type versionEntry struct {
	version *version.Version
	// repos holds the repositories that publish the version, in priority order
	repos []registry.Repository
}

// cache holds everything fetched for one package name. Entries are only
// ever added.
type cache struct {
	name  string
	repos []registry.Repository
	cfg   config

	mu       sync.Mutex
	loaded   bool
	loadErr  error
	versions []versionEntry
	builds   map[int][]*Candidate
	group    singleflight.Group
}

// Iterator is a cursor over the candidates of one package.
type Iterator struct {
	c       *cache
	version int
	build   int
	filter  VersionFilter
	skipped SkipFunc
	// matched is set once any version passes the filter
	matched bool
}

// New returns an iterator over the candidates of name in repos. Nothing is
// fetched until the first Peek.
func New(name string, repos []registry.Repository, opts ...Option) *Iterator {
	cfg := config{logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Iterator{c: &cache{
		name:   name,
		repos:  repos,
		cfg:    cfg,
		builds: make(map[int][]*Candidate),
	}}
}

// Name returns the package name.
func (it *Iterator) Name() string { return it.c.name }

// Clone returns an independent cursor at the same position that shares the
// fetched data.
func (it *Iterator) Clone() *Iterator {
	clone := *it
	return &clone
}

// SetFilter replaces the version filter. Rejected versions are skipped
// without loading their builds and reported to skipped, which may be nil.
func (it *Iterator) SetFilter(filter VersionFilter, skipped SkipFunc) {
	it.filter = filter
	it.skipped = skipped
}

// Peek returns the current candidate without advancing. It returns nil, nil
// once the iterator is exhausted, and an error wrapping ErrPackageNotFound
// if no repository knows the package.
func (it *Iterator) Peek(ctx context.Context) (*Candidate, error) {
	versions, err := it.c.loadVersions(ctx)
	if err != nil {
		return nil, err
	}
	for it.version < len(versions) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		entry := versions[it.version]
		if it.build == 0 && it.filter != nil {
			if compat := it.filter(entry.version); !compat.OK() {
				if it.skipped != nil {
					it.skipped(entry.version, compat.Reason())
				}
				it.version++
				continue
			}
		}
		it.matched = true
		builds, err := it.c.loadBuilds(ctx, it.version)
		if err != nil {
			return nil, err
		}
		if it.build < len(builds) {
			return builds[it.build], nil
		}
		it.version++
		it.build = 0
	}
	return nil, nil
}

// Matched reports whether this cursor, or the one it was cloned from, has
// reached a version that passed the filter.
func (it *Iterator) Matched() bool { return it.matched }

// Next returns the current candidate and advances past it.
func (it *Iterator) Next(ctx context.Context) (*Candidate, error) {
	cand, err := it.Peek(ctx)
	if cand != nil {
		it.build++
	}
	return cand, err
}

// Versions returns every known version of the package, highest first.
func (it *Iterator) Versions(ctx context.Context) ([]*version.Version, error) {
	versions, err := it.c.loadVersions(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*version.Version, len(versions))
	for i, entry := range versions {
		out[i] = entry.version
	}
	return out, nil
}

// Builds returns the candidates of one version in iteration order.
func (it *Iterator) Builds(ctx context.Context, v *version.Version) ([]*Candidate, error) {
	versions, err := it.c.loadVersions(ctx)
	if err != nil {
		return nil, err
	}
	for i, entry := range versions {
		if entry.version.Equal(v) {
			return it.c.loadBuilds(ctx, i)
		}
	}
	return nil, nil
}

func (c *cache) loadVersions(ctx context.Context) ([]versionEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loaded {
		return c.versions, c.loadErr
	}

	listed := make([][]*version.Version, len(c.repos))
	g, gctx := errgroup.WithContext(ctx)
	for i, repo := range c.repos {
		g.Go(func() error {
			versions, err := repo.ListVersions(gctx, c.name)
			if errors.IsNotFound(err) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("failed to list versions of %s in %s: %w", c.name, repo.Name(), err)
			}
			listed[i] = versions
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		// a cancelled listing may succeed later
		return nil, err
	}

	var merged []versionEntry
	for i, versions := range listed {
		for _, v := range versions {
			if idx := findVersion(merged, v); idx >= 0 {
				merged[idx].repos = append(merged[idx].repos, c.repos[i])
				continue
			}
			merged = append(merged, versionEntry{version: v, repos: []registry.Repository{c.repos[i]}})
		}
	}
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].version.GreaterThan(merged[j].version)
	})

	c.loaded = true
	c.versions = merged
	if len(merged) == 0 {
		c.loadErr = fmt.Errorf("%w: %s", ErrPackageNotFound, c.name)
	}
	return c.versions, c.loadErr
}

func findVersion(entries []versionEntry, v *version.Version) int {
	for i, e := range entries {
		if e.version.Equal(v) {
			return i
		}
	}
	return -1
}

func (c *cache) loadBuilds(ctx context.Context, idx int) ([]*Candidate, error) {
	c.mu.Lock()
	builds, ok := c.builds[idx]
	entry := c.versions[idx]
	c.mu.Unlock()
	if ok {
		return builds, nil
	}

	res, err, _ := c.group.Do(entry.version.String(), func() (any, error) {
		c.mu.Lock()
		builds, ok := c.builds[idx]
		c.mu.Unlock()
		if ok {
			return builds, nil
		}
		builds, err := c.fetchBuilds(ctx, entry)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.builds[idx] = builds
		c.mu.Unlock()
		return builds, nil
	})
	if err != nil {
		return nil, err
	}
	return res.([]*Candidate), nil
}

func (c *cache) fetchBuilds(ctx context.Context, entry versionEntry) ([]*Candidate, error) {
	ident := manifest.Ident{Name: c.name, Version: entry.version}

	var candidates []*Candidate
	var recipe *Candidate
	seen := make(map[manifest.BuildID]bool)
	for _, repo := range entry.repos {
		ids, err := repo.ListBuilds(ctx, c.name, entry.version)
		if err != nil && !errors.IsNotFound(err) {
			return nil, fmt.Errorf("failed to list builds of %s in %s: %w", ident, repo.Name(), err)
		}

		var fresh []manifest.BuildID
		for _, id := range ids {
			if !seen[id] {
				seen[id] = true
				fresh = append(fresh, id)
			}
		}

		specs := make([]*manifest.Spec, len(fresh))
		g, gctx := errgroup.WithContext(ctx)
		for i, id := range fresh {
			g.Go(func() error {
				spec, err := repo.ReadSpec(gctx, ident.WithBuild(id))
				if errors.IsNotFound(err) {
					c.cfg.logger.Warn("build is listed but has no spec",
						"pkg", ident.WithBuild(id).String(), "repo", repo.Name())
					return nil
				}
				if err != nil {
					return err
				}
				specs[i] = spec
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
		for _, spec := range specs {
			if spec != nil {
				candidates = append(candidates, &Candidate{Spec: spec, Source: RepositorySource(repo.Name())})
			}
		}

		if recipe == nil {
			spec, err := repo.ReadRecipe(ctx, c.name, entry.version)
			switch {
			case err == nil:
				recipe = &Candidate{Spec: spec, Source: RecipeSource(repo.Name())}
			case !errors.IsNotFound(err):
				return nil, fmt.Errorf("failed to read recipe of %s in %s: %w", ident, repo.Name(), err)
			}
		}
	}

	c.sortBuilds(ctx, candidates)
	if recipe != nil {
		candidates = append(candidates, recipe)
	}
	return candidates, nil
}

func (c *cache) sortBuilds(ctx context.Context, candidates []*Candidate) {
	specs := make([]*manifest.Spec, len(candidates))
	for i, cand := range candidates {
		specs[i] = cand.Spec
	}
	names := KeyNames(specs, c.cfg.promoted)

	keys := make(map[*Candidate]BuildKey, len(candidates))
	for _, cand := range candidates {
		possible := true
		if c.cfg.possible != nil && !cand.Spec.IsSource() {
			possible = c.cfg.possible(ctx, cand.Spec)
		}
		keys[cand] = NewBuildKey(cand.Spec.Pkg, names, cand.Spec.Options(), possible)
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return keys[candidates[i]].Compare(keys[candidates[j]]) > 0
	})

	if c.cfg.logger.Enabled(ctx, slog.LevelDebug) {
		for _, cand := range candidates {
			c.cfg.logger.Debug("build key", "pkg", cand.Spec.Pkg.String(), "key", keys[cand].String())
		}
	}
}
