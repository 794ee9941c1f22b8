// git.go provides a store for repositories kept in git.

package registry

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"

	"github.com/launchcg/stratum/internal/errors"
)

// GitRef represents a parsed Git reference.
type GitRef struct {
	Type  string // "tag", "branch", or "default"
	Value string // The ref value (empty for "default")
}

// String returns "type=value", or "HEAD" for the default branch.
func (r GitRef) String() string {
	if r.Value == "" {
		return "HEAD"
	}
	return r.Type + "=" + r.Value
}

// GitStore reads repository documents from a shallow clone of a git
// repository. The clone is made on first use and kept in the cache.
//
// Authentication is handled externally via:
//   - HTTPS: Git credential helpers (configured via git config)
//   - SSH: SSH agent or ~/.ssh keys
type GitStore struct {
	repoURL string // The actual git URL (without git+ prefix)
	ref     GitRef // Branch or tag (from URL fragment)
	cache   *Cache // Cache for cloned repositories

	mu    sync.Mutex
	local *LocalStore
}

// NewGitStore creates a store from a git URL.
//
// URL formats:
//   - git+https://github.com/studio/packages.git
//   - git+https://github.com/studio/packages.git#v1.0.0
//   - git+https://github.com/studio/packages.git#tag=v1.0.0
//   - git+https://github.com/studio/packages.git#branch=main
//   - git+ssh://git@github.com/studio/packages.git#v1.0.0
func NewGitStore(url string, cache *Cache) (*GitStore, error) {
	repoURL, ref, err := parseGitURL(url)
	if err != nil {
		return nil, errors.NewRepositoryError(url, "connect", err)
	}

	if cache == nil {
		if cache, err = DefaultCache(); err != nil {
			return nil, errors.NewRepositoryError(url, "connect", err)
		}
	}

	return &GitStore{
		repoURL: repoURL,
		ref:     ref,
		cache:   cache,
	}, nil
}

// Location returns the git URL including the ref.
func (s *GitStore) Location() string {
	if s.ref.Value == "" {
		return "git+" + s.repoURL
	}
	return "git+" + s.repoURL + "#" + s.ref.String()
}

// RepoURL returns the Git repository URL.
func (s *GitStore) RepoURL() string {
	return s.repoURL
}

// Ref returns the Git reference.
func (s *GitStore) Ref() GitRef {
	return s.ref
}

// Get reads key from the clone, cloning first if needed.
func (s *GitStore) Get(ctx context.Context, key string) ([]byte, error) {
	local, err := s.checkout(ctx)
	if err != nil {
		return nil, err
	}
	return local.Get(ctx, key)
}

// checkout returns a store over the cached clone.
func (s *GitStore) checkout(ctx context.Context) (*LocalStore, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.local != nil {
		return s.local, nil
	}

	dir := s.clonePath()
	if _, err := os.Stat(filepath.Join(dir, IndexFile)); err != nil {
		if err := s.clone(ctx, dir); err != nil {
			return nil, err
		}
	}

	local, err := NewLocalStore(dir)
	if err != nil {
		return nil, err
	}
	s.local = local
	return local, nil
}

// clonePath returns the cache directory of this repo and ref.
func (s *GitStore) clonePath() string {
	sum := sha256.Sum256([]byte(s.repoURL + "#" + s.ref.String()))
	return filepath.Join(s.cache.GetCacheDir("git"), hex.EncodeToString(sum[:8]))
}

// clone makes a shallow clone into a temp directory and moves it to dir
// once complete.
func (s *GitStore) clone(ctx context.Context, dir string) error {
	if err := os.MkdirAll(filepath.Dir(dir), 0755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	tempDir, err := os.MkdirTemp(filepath.Dir(dir), ".clone-*")
	if err != nil {
		return fmt.Errorf("failed to create temp directory: %w", err)
	}
	defer os.RemoveAll(tempDir)

	cloneOpts := &git.CloneOptions{
		URL:   s.repoURL,
		Depth: 1,
	}

	switch s.ref.Type {
	case "tag":
		cloneOpts.ReferenceName = plumbing.NewTagReferenceName(s.ref.Value)
	case "branch":
		cloneOpts.ReferenceName = plumbing.NewBranchReferenceName(s.ref.Value)
	}

	if _, err := git.PlainCloneContext(ctx, tempDir, false, cloneOpts); err != nil {
		return errors.NewRepositoryError(s.repoURL, "clone", err)
	}

	if err := os.RemoveAll(filepath.Join(tempDir, ".git")); err != nil {
		return fmt.Errorf("failed to remove .git directory: %w", err)
	}

	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to replace cached clone: %w", err)
	}
	return os.Rename(tempDir, dir)
}

// parseGitURL parses the URL and extracts the ref from fragment.
func parseGitURL(url string) (repoURL string, ref GitRef, err error) {
	if !strings.HasPrefix(url, "git+") {
		return "", GitRef{}, fmt.Errorf("invalid git URL: must start with 'git+': %s", url)
	}

	gitURL := url[4:]
	ref = GitRef{Type: "default"}

	if idx := strings.Index(gitURL, "#"); idx != -1 {
		repoURL = gitURL[:idx]
		fragment := gitURL[idx+1:]

		if refType, refValue, ok := strings.Cut(fragment, "="); ok {
			switch refType {
			case "tag", "branch":
				ref = GitRef{Type: refType, Value: refValue}
			default:
				return "", GitRef{}, fmt.Errorf("invalid ref type: %s (must be tag or branch)", refType)
			}
		} else {
			// Implicit ref (assume tag)
			ref = GitRef{Type: "tag", Value: fragment}
		}
	} else {
		repoURL = gitURL
	}

	if !strings.HasPrefix(repoURL, "https://") &&
		!strings.HasPrefix(repoURL, "ssh://") &&
		!strings.HasPrefix(repoURL, "git@") {
		return "", GitRef{}, fmt.Errorf("invalid git URL scheme: must be https://, ssh://, or git@: %s", repoURL)
	}

	return repoURL, ref, nil
}
