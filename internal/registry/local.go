package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/launchcg/stratum/internal/errors"
	"github.com/launchcg/stratum/internal/manifest"
)

// LocalStore reads repository documents from a directory.
type LocalStore struct {
	basePath string // Resolved absolute path to the repository directory
}

// NewLocalStore creates a store from a local filesystem path.
// The path can be absolute or relative. Relative paths are resolved
// against the current working directory.
func NewLocalStore(path string) (*LocalStore, error) {
	absPath, err := resolveLocalPath(path)
	if err != nil {
		return nil, errors.NewRepositoryError("file:"+path, "connect", err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewNotFoundError("path", absPath)
		}
		return nil, errors.NewRepositoryError("file:"+path, "connect", err)
	}

	if !info.IsDir() {
		return nil, errors.NewRepositoryError("file:"+path, "connect",
			fmt.Errorf("path is not a directory: %s", absPath))
	}

	return &LocalStore{basePath: absPath}, nil
}

// Location returns the file URL of the store.
func (s *LocalStore) Location() string {
	return "file://" + s.basePath
}

// BasePath returns the resolved base path of the store.
func (s *LocalStore) BasePath() string {
	return s.basePath
}

// Get reads key relative to the base path.
func (s *LocalStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p := filepath.Join(s.basePath, filepath.FromSlash(key))
	data, err := os.ReadFile(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewNotFoundError("file", p)
		}
		return nil, err
	}
	return data, nil
}

// NewLocalRepository creates an index-backed repository over a directory.
func NewLocalRepository(name, path string) (*IndexRepository, error) {
	store, err := NewLocalStore(path)
	if err != nil {
		return nil, err
	}
	return NewIndexRepository(name, store, nil), nil
}

// Publish writes spec documents into the repository directory at dir and
// regenerates its index. Specs already in the directory are kept; a spec
// with the same ident is replaced.
func Publish(dir string, specs ...*manifest.Spec) error {
	absPath, err := resolveLocalPath(dir)
	if err != nil {
		return err
	}

	existing, err := loadLocalSpecs(absPath)
	if err != nil {
		return err
	}

	byIdent := make(map[string]*manifest.Spec, len(existing)+len(specs))
	var order []string
	for _, s := range append(existing, specs...) {
		key := s.Pkg.String()
		if _, ok := byIdent[key]; !ok {
			order = append(order, key)
		}
		byIdent[key] = s
	}

	all := make([]*manifest.Spec, 0, len(order))
	for _, key := range order {
		s := byIdent[key]
		all = append(all, s)

		data, err := s.Marshal()
		if err != nil {
			return fmt.Errorf("failed to encode %s: %w", s.Pkg, err)
		}
		p := filepath.Join(absPath, filepath.FromSlash(specPath(s.Name(), s.Version(), s.Pkg.Build)))
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			return fmt.Errorf("failed to create package directory: %w", err)
		}
		if err := os.WriteFile(p, data, 0644); err != nil {
			return fmt.Errorf("failed to write %s: %w", p, err)
		}
	}

	name := filepath.Base(absPath)
	if old, err := os.ReadFile(filepath.Join(absPath, IndexFile)); err == nil {
		var index Index
		if json.Unmarshal(old, &index) == nil && index.Name != "" {
			name = index.Name
		}
	}

	data, err := json.MarshalIndent(BuildIndex(name, all), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", IndexFile, err)
	}
	return os.WriteFile(filepath.Join(absPath, IndexFile), append(data, '\n'), 0644)
}

// loadLocalSpecs reads every spec document below dir/packages.
func loadLocalSpecs(dir string) ([]*manifest.Spec, error) {
	root := filepath.Join(dir, "packages")
	if _, err := os.Stat(root); os.IsNotExist(err) {
		return nil, nil
	}

	var specs []*manifest.Spec
	err := filepath.WalkDir(root, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || filepath.Ext(p) != ".yaml" {
			return nil
		}
		s, err := manifest.LoadSpec(p)
		if err != nil {
			return err
		}
		specs = append(specs, s)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read repository %s: %w", dir, err)
	}
	return specs, nil
}

// resolveLocalPath resolves a local path to an absolute path.
// It handles both absolute and relative paths.
func resolveLocalPath(path string) (string, error) {
	path = filepath.Clean(path)

	if filepath.IsAbs(path) {
		return path, nil
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get working directory: %w", err)
	}

	return filepath.Join(cwd, path), nil
}
