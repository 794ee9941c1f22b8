package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/launchcg/stratum/internal/errors"
	"github.com/launchcg/stratum/internal/manifest"
	"github.com/launchcg/stratum/pkg/version"
)

// Store reads the documents of an index-backed repository by slash-separated
// key ("index.json", "packages/maya/2019.2.0/recipe.yaml"). A missing key is
// reported as *errors.NotFoundError.
type Store interface {
	// Location returns the URL or path the store reads from.
	Location() string
	// Get returns the contents of key.
	Get(ctx context.Context, key string) ([]byte, error)
}

// IndexRepository is a Repository backed by an index.json document and one
// YAML document per build. The index is read once and kept for the lifetime
// of the repository.
type IndexRepository struct {
	name  string
	store Store
	cache *Cache

	mu    sync.Mutex
	index *Index
}

// NewIndexRepository creates a repository reading from store. When cache is
// non-nil, spec documents are kept in it between runs.
func NewIndexRepository(name string, store Store, cache *Cache) *IndexRepository {
	return &IndexRepository{name: name, store: store, cache: cache}
}

// Name returns the repository name.
func (r *IndexRepository) Name() string {
	return r.name
}

// Location returns where the repository reads from.
func (r *IndexRepository) Location() string {
	return r.store.Location()
}

// Index returns the repository index, loading it on first use.
func (r *IndexRepository) Index(ctx context.Context) (*Index, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.index != nil {
		return r.index, nil
	}

	data, err := r.store.Get(ctx, IndexFile)
	if err != nil {
		return nil, errors.NewRepositoryError(r.name, "index", err)
	}

	var index Index
	if err := json.Unmarshal(data, &index); err != nil {
		return nil, errors.NewRepositoryError(r.name, "index",
			fmt.Errorf("failed to parse %s: %w", IndexFile, err))
	}
	if index.Packages == nil {
		index.Packages = map[string]PackageEntry{}
	}

	r.index = &index
	return r.index, nil
}

func (r *IndexRepository) entry(ctx context.Context, name string) (PackageEntry, error) {
	index, err := r.Index(ctx)
	if err != nil {
		return PackageEntry{}, err
	}
	entry, ok := index.Packages[name]
	if !ok {
		return PackageEntry{}, errors.NewNotFoundError("package", name)
	}
	return entry, nil
}

// ListPackages returns all package names in sorted order.
func (r *IndexRepository) ListPackages(ctx context.Context) ([]string, error) {
	index, err := r.Index(ctx)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(index.Packages))
	for name := range index.Packages {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// ListVersions returns the published versions of a package.
func (r *IndexRepository) ListVersions(ctx context.Context, name string) ([]*version.Version, error) {
	entry, err := r.entry(ctx, name)
	if err != nil {
		return nil, err
	}

	versions := make([]*version.Version, 0, len(entry.Versions))
	for _, raw := range entry.Versions {
		v, err := version.Parse(raw)
		if err != nil {
			return nil, errors.NewRepositoryError(r.name, "list",
				fmt.Errorf("invalid version %q for %s: %w", raw, name, err))
		}
		versions = append(versions, v)
	}
	return versions, nil
}

// ListBuilds returns the builds published for a version.
func (r *IndexRepository) ListBuilds(ctx context.Context, name string, ver *version.Version) ([]manifest.BuildID, error) {
	entry, err := r.entry(ctx, name)
	if err != nil {
		return nil, err
	}

	for raw, builds := range entry.Builds {
		v, err := version.Parse(raw)
		if err != nil || !v.Equal(ver) {
			continue
		}
		out := make([]manifest.BuildID, len(builds))
		for i, b := range builds {
			out[i] = manifest.BuildID(b)
		}
		return out, nil
	}
	return nil, nil
}

// ReadSpec reads the spec document of one build.
func (r *IndexRepository) ReadSpec(ctx context.Context, ident manifest.BuildIdent) (*manifest.Spec, error) {
	if ident.Build == "" {
		return nil, errors.NewValidationError("build:"+ident.String(), "build", "a build id is required")
	}
	return r.read(ctx, ident.Name, ident.Version, ident.Build)
}

// ReadRecipe reads the recipe of a version.
func (r *IndexRepository) ReadRecipe(ctx context.Context, name string, ver *version.Version) (*manifest.Spec, error) {
	entry, err := r.entry(ctx, name)
	if err != nil {
		return nil, err
	}
	if !hasVersion(entry.Recipes, ver) {
		return nil, errors.NewNotFoundError("recipe", name+"/"+ver.String())
	}
	return r.read(ctx, name, ver, "")
}

func (r *IndexRepository) read(ctx context.Context, name string, ver *version.Version, build manifest.BuildID) (*manifest.Spec, error) {
	key := specPath(name, ver, build)

	var data []byte
	cacheKey := r.store.Location() + "/" + key
	if r.cache != nil {
		data, _ = r.cache.Get(cacheKey)
	}
	if data == nil {
		var err error
		data, err = r.store.Get(ctx, key)
		if err != nil {
			if errors.IsNotFound(err) {
				return nil, errors.NewNotFoundError("build", manifest.Ident{Name: name, Version: ver}.WithBuild(build).String())
			}
			return nil, errors.NewRepositoryError(r.name, "read", err)
		}
		if r.cache != nil {
			// a failed cache write only costs a refetch
			_ = r.cache.Put(cacheKey, data)
		}
	}

	spec, err := manifest.ParseSpec(data)
	if err != nil {
		return nil, errors.NewRepositoryError(r.name, "read", fmt.Errorf("%s: %w", key, err))
	}
	if spec.Name() != name || !spec.Version().Equal(ver) || spec.Pkg.Build != build {
		return nil, errors.NewValidationError("document:"+key, "pkg",
			fmt.Sprintf("document describes %s", spec.Pkg))
	}
	return spec, nil
}

func hasVersion(raw []string, ver *version.Version) bool {
	for _, s := range raw {
		if v, err := version.Parse(s); err == nil && v.Equal(ver) {
			return true
		}
	}
	return false
}

// BuildIndex computes the index document describing specs. Recipes are
// recorded under Recipes; every other spec is recorded as a build.
func BuildIndex(name string, specs []*manifest.Spec) *Index {
	index := &Index{Name: name, Version: "1", Packages: map[string]PackageEntry{}}
	for _, s := range specs {
		entry := index.Packages[s.Name()]
		ver := s.Version().String()
		if !containsString(entry.Versions, ver) {
			entry.Versions = append(entry.Versions, ver)
		}
		if s.IsRecipe() {
			if !containsString(entry.Recipes, ver) {
				entry.Recipes = append(entry.Recipes, ver)
			}
		} else {
			if entry.Builds == nil {
				entry.Builds = map[string][]string{}
			}
			if !containsString(entry.Builds[ver], string(s.Pkg.Build)) {
				entry.Builds[ver] = append(entry.Builds[ver], string(s.Pkg.Build))
			}
		}
		index.Packages[s.Name()] = entry
	}

	for name, entry := range index.Packages {
		sort.Slice(entry.Versions, func(i, j int) bool {
			return version.MustParse(entry.Versions[i]).LessThan(version.MustParse(entry.Versions[j]))
		})
		sort.Strings(entry.Recipes)
		for _, builds := range entry.Builds {
			sort.Strings(builds)
		}
		index.Packages[name] = entry
	}
	return index
}

// containsString checks if a string slice contains a value.
func containsString(slice []string, value string) bool {
	for _, v := range slice {
		if v == value {
			return true
		}
	}
	return false
}
