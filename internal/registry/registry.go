// Package registry provides the package repositories the solver reads from.
//
// A repository answers four questions: which packages exist, which versions
// of a package exist, which builds of a version exist, and what a build's
// spec looks like. Most repositories are laid out as an index plus one YAML
// document per build:
//
//	index.json
//	packages/<pkg>/<version>/recipe.yaml
//	packages/<pkg>/<version>/<build>.yaml
//
// The layout can be served from several protocols:
//   - file:// or a plain path - Local filesystem access
//   - git+https://, git+ssh:// - Git repository cloning
//   - https://, http:// - HTTP/HTTPS downloads
//   - s3:// - Amazon S3
//   - az:// - Azure Blob Storage
//   - gs:// - Google Cloud Storage
//
// MemRepository holds specs in memory and is used by tests and embedders.
package registry

//go:generate mockgen -source=registry.go -destination=mocks/mock_repository.go -package=mocks

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/launchcg/stratum/internal/manifest"
	"github.com/launchcg/stratum/pkg/version"
)

// IndexFile is the name of the repository index document.
const IndexFile = "index.json"

// RecipeFile is the name of a version's recipe document.
const RecipeFile = "recipe.yaml"

// Repository is the read interface of a package repository.
// Unknown packages, versions and builds are reported as *errors.NotFoundError.
type Repository interface {
	// Name returns the repository name used in solutions and traces.
	Name() string

	// ListPackages returns all package names in sorted order.
	ListPackages(ctx context.Context) ([]string, error)

	// ListVersions returns the versions of a package, in no particular order.
	ListVersions(ctx context.Context, name string) ([]*version.Version, error)

	// ListBuilds returns the binary and source builds of a version. Recipes
	// are not builds and are read with ReadRecipe.
	ListBuilds(ctx context.Context, name string, ver *version.Version) ([]manifest.BuildID, error)

	// ReadSpec reads the spec of a single build.
	ReadSpec(ctx context.Context, ident manifest.BuildIdent) (*manifest.Spec, error)

	// ReadRecipe reads the recipe of a version.
	ReadRecipe(ctx context.Context, name string, ver *version.Version) (*manifest.Spec, error)
}

// Index is the index.json document of a repository.
type Index struct {
	// Name is the repository name
	Name string `json:"name"`
	// Version is the index format version
	Version string `json:"version"`
	// Packages maps a package name to its entry
	Packages map[string]PackageEntry `json:"packages"`
}

// PackageEntry describes one package in the index.
type PackageEntry struct {
	// Versions is the list of published versions
	Versions []string `json:"versions"`
	// Builds maps a version to its published build ids
	Builds map[string][]string `json:"builds,omitempty"`
	// Recipes lists the versions that have a recipe
	Recipes []string `json:"recipes,omitempty"`
}

// specPath returns the document path of a build or recipe within a repository.
func specPath(name string, ver *version.Version, build manifest.BuildID) string {
	file := RecipeFile
	if build != "" {
		file = string(build) + ".yaml"
	}
	return path.Join("packages", name, ver.String(), file)
}

// ParseSource parses a repository URL string and returns the protocol and path.
// It handles various URL formats:
//
//	"./repo"                  -> ("file", "./repo", nil)
//	"file:../path"            -> ("file", "../path", nil)
//	"file:///absolute/path"   -> ("file", "/absolute/path", nil)
//	"git+https://github.com"  -> ("git", "https://github.com", nil)
//	"git+ssh://git@host"      -> ("git", "ssh://git@host", nil)
//	"https://example.com"     -> ("https", "https://example.com", nil)
//	"http://example.com"      -> ("http", "http://example.com", nil)
//	"s3://bucket/path"        -> ("s3", "bucket/path", nil)
//	"az://account/container"  -> ("az", "account/container", nil)
//	"gs://bucket/path"        -> ("gs", "bucket/path", nil)
//	"mem:"                    -> ("mem", "", nil)
func ParseSource(source string) (protocol, p string, err error) {
	if source == "" {
		return "", "", fmt.Errorf("empty repository URL")
	}

	if strings.HasPrefix(source, "file:") {
		rest := source[5:]
		if strings.HasPrefix(rest, "//") {
			return "file", rest[2:], nil
		}
		return "file", rest, nil
	}

	if strings.HasPrefix(source, "git+") {
		rest := source[4:]
		if strings.HasPrefix(rest, "https://") || strings.HasPrefix(rest, "ssh://") || strings.HasPrefix(rest, "git@") {
			return "git", rest, nil
		}
		return "", "", fmt.Errorf("invalid git URL: must be git+https://, git+ssh://, or git+git@: %s", source)
	}

	switch {
	case strings.HasPrefix(source, "https://"):
		return "https", source, nil
	case strings.HasPrefix(source, "http://"):
		return "http", source, nil
	case strings.HasPrefix(source, "s3://"):
		return "s3", strings.TrimPrefix(source, "s3://"), nil
	case strings.HasPrefix(source, "az://"):
		return "az", strings.TrimPrefix(source, "az://"), nil
	case strings.HasPrefix(source, "gs://"):
		return "gs", strings.TrimPrefix(source, "gs://"), nil
	case strings.HasPrefix(source, "mem:"):
		return "mem", strings.TrimPrefix(source, "mem:"), nil
	}

	if strings.Contains(source, "://") {
		return "", "", fmt.Errorf("unsupported repository URL format: %s", source)
	}
	return "file", source, nil
}
