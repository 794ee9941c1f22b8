package registry

import (
	"context"
	"sort"
	"sync"

	"github.com/launchcg/stratum/internal/errors"
	"github.com/launchcg/stratum/internal/manifest"
	"github.com/launchcg/stratum/pkg/version"
)

// MemRepository is a Repository that keeps specs in memory.
type MemRepository struct {
	name string

	mu       sync.RWMutex
	packages map[string]map[string]*memVersion
}

type memVersion struct {
	version *version.Version
	recipe  *manifest.Spec
	builds  map[manifest.BuildID]*manifest.Spec
}

// NewMemRepository creates an empty in-memory repository.
func NewMemRepository(name string) *MemRepository {
	return &MemRepository{name: name, packages: map[string]map[string]*memVersion{}}
}

// Name returns the repository name.
func (r *MemRepository) Name() string {
	return r.name
}

// Publish adds specs to the repository, replacing any with the same ident.
func (r *MemRepository) Publish(specs ...*manifest.Spec) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, s := range specs {
		versions, ok := r.packages[s.Name()]
		if !ok {
			versions = map[string]*memVersion{}
			r.packages[s.Name()] = versions
		}
		key := s.Version().String()
		mv, ok := versions[key]
		if !ok {
			mv = &memVersion{version: s.Version(), builds: map[manifest.BuildID]*manifest.Spec{}}
			versions[key] = mv
		}
		if s.IsRecipe() {
			mv.recipe = s
		} else {
			mv.builds[s.Pkg.Build] = s
		}
	}
}

// Specs returns every spec in the repository: recipes first within each
// version, then builds sorted by id.
func (r *MemRepository) Specs() []*manifest.Spec {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*manifest.Spec
	for _, name := range sortedKeys(r.packages) {
		for _, key := range sortedKeys(r.packages[name]) {
			mv := r.packages[name][key]
			if mv.recipe != nil {
				out = append(out, mv.recipe)
			}
			for _, id := range sortedBuildIDs(mv.builds) {
				out = append(out, mv.builds[id])
			}
		}
	}
	return out
}

// ListPackages returns all package names in sorted order.
func (r *MemRepository) ListPackages(ctx context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.packages), nil
}

// ListVersions returns the versions of a package.
func (r *MemRepository) ListVersions(ctx context.Context, name string) ([]*version.Version, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	versions, ok := r.packages[name]
	if !ok {
		return nil, errors.NewNotFoundError("package", name)
	}
	out := make([]*version.Version, 0, len(versions))
	for _, key := range sortedKeys(versions) {
		out = append(out, versions[key].version)
	}
	return out, nil
}

// ListBuilds returns the builds of a version, sorted by id.
func (r *MemRepository) ListBuilds(ctx context.Context, name string, ver *version.Version) ([]manifest.BuildID, error) {
	mv, err := r.lookup(name, ver)
	if err != nil {
		return nil, err
	}
	if mv == nil {
		return nil, nil
	}
	return sortedBuildIDs(mv.builds), nil
}

// ReadSpec returns the spec of one build.
func (r *MemRepository) ReadSpec(ctx context.Context, ident manifest.BuildIdent) (*manifest.Spec, error) {
	mv, err := r.lookup(ident.Name, ident.Version)
	if err != nil {
		return nil, err
	}
	if mv != nil {
		if s, ok := mv.builds[ident.Build]; ok {
			return s, nil
		}
	}
	return nil, errors.NewNotFoundError("build", ident.String())
}

// ReadRecipe returns the recipe of a version.
func (r *MemRepository) ReadRecipe(ctx context.Context, name string, ver *version.Version) (*manifest.Spec, error) {
	mv, err := r.lookup(name, ver)
	if err != nil {
		return nil, err
	}
	if mv == nil || mv.recipe == nil {
		return nil, errors.NewNotFoundError("recipe", name+"/"+ver.String())
	}
	return mv.recipe, nil
}

func (r *MemRepository) lookup(name string, ver *version.Version) (*memVersion, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	versions, ok := r.packages[name]
	if !ok {
		return nil, errors.NewNotFoundError("package", name)
	}
	return versions[ver.String()], nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedBuildIDs(m map[manifest.BuildID]*manifest.Spec) []manifest.BuildID {
	ids := make([]manifest.BuildID, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
