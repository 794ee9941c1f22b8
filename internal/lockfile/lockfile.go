// Package lockfile records a solution so a solve can be reproduced.
//
// The lock file is stored at stratum.lock and pins the exact build of every
// package in the solution. Packages built from source pin their version
// only, since their build does not exist until it is built.
package lockfile

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/launchcg/stratum/internal/request"
	"github.com/launchcg/stratum/internal/solution"
)

const (
	// LockFileVersion is the current lock file format version
	LockFileVersion = "1.0"

	// LockFileName is the lock file name
	LockFileName = "stratum.lock"
)

// LockFile pins the packages of a solution.
// Stored at stratum.lock (JSON format)
type LockFile struct {
	// Version is the lock file format version
	Version string `json:"version"`

	// SolveID identifies the solve that produced the lock
	SolveID uuid.UUID `json:"solve_id"`

	// Created is when the lock was written
	Created time.Time `json:"created"`

	// Options are the option values the solution was resolved with
	Options map[string]string `json:"options,omitempty"`

	// Packages maps package names to their locked builds
	Packages map[string]*LockedPackage `json:"packages"`

	// path is the path to the lock file (not serialized)
	path string
}

// LockedPackage is one package of a locked solution.
type LockedPackage struct {
	// Version is the exact version string
	Version string `json:"version"`

	// Build is the build id, empty for packages built from source
	Build string `json:"build,omitempty"`

	// Repository is where the spec or recipe was read from
	Repository string `json:"repository,omitempty"`

	// Source is "repository", "recipe" or "embedded"
	Source string `json:"source"`

	// EmbeddedIn is the package that embeds this one
	EmbeddedIn string `json:"embedded_in,omitempty"`

	// Components are the requested components
	Components []string `json:"components,omitempty"`

	// RequestedBy lists who asked for the package
	RequestedBy []string `json:"requested_by"`

	// BuildEnv lists the packages a source build resolved against
	BuildEnv []string `json:"build_env,omitempty"`
}

// Load loads a lock file from dir.
// Returns an empty lock file if the file doesn't exist.
func Load(dir string) (*LockFile, error) {
	lockPath := filepath.Join(dir, LockFileName)

	l := &LockFile{
		Version:  LockFileVersion,
		Packages: make(map[string]*LockedPackage),
		path:     lockPath,
	}

	data, err := os.ReadFile(lockPath)
	if err != nil {
		if os.IsNotExist(err) {
			return l, nil
		}
		return nil, err
	}

	if err := json.Unmarshal(data, l); err != nil {
		return nil, fmt.Errorf("invalid lock file %s: %w", lockPath, err)
	}
	if l.Version != LockFileVersion {
		return nil, fmt.Errorf("unsupported lock file version %q in %s", l.Version, lockPath)
	}

	l.path = lockPath
	if l.Packages == nil {
		l.Packages = make(map[string]*LockedPackage)
	}

	return l, nil
}

// FromSolution creates the lock file of a solution, to be saved in dir.
func FromSolution(dir string, id uuid.UUID, sol *solution.Solution) *LockFile {
	l := &LockFile{
		Version:  LockFileVersion,
		SolveID:  id,
		Created:  time.Now().UTC(),
		Packages: make(map[string]*LockedPackage, sol.Len()),
		path:     filepath.Join(dir, LockFileName),
	}
	if opts := sol.Options(); len(opts) > 0 {
		l.Options = map[string]string(opts.Clone())
	}

	for _, item := range sol.Items() {
		locked := &LockedPackage{
			Version:    item.Spec.Version().String(),
			Repository: item.Source.Repo,
			Source:     item.Source.Kind.String(),
			EmbeddedIn: item.Source.Parent,
		}
		if !item.IsBuiltFromSource() {
			locked.Build = string(item.Spec.Pkg.Build)
		}
		if item.Request != nil {
			locked.Components = item.Request.Components
		}
		for _, by := range item.RequestedBy {
			locked.RequestedBy = append(locked.RequestedBy, by.String())
		}
		if env := item.BuildEnv(); env != nil {
			for _, dep := range env.Items() {
				locked.BuildEnv = append(locked.BuildEnv, dep.Spec.Pkg.String())
			}
		}
		l.Packages[item.Name()] = locked
	}
	return l
}

// Save writes the lock file to disk.
func (l *LockFile) Save() error {
	// encoding/json sorts map keys, so the output is stable
	data, err := json.MarshalIndent(l, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(l.path, append(data, '\n'), 0644)
}

// Path returns where the lock file is saved.
func (l *LockFile) Path() string { return l.path }

// Get returns the locked package (nil if not locked).
func (l *LockFile) Get(name string) *LockedPackage {
	return l.Packages[name]
}

// Has checks if a package is in the lock file.
func (l *LockFile) Has(name string) bool {
	_, exists := l.Packages[name]
	return exists
}

// LockedPackages returns all locked package names (sorted).
func (l *LockFile) LockedPackages() []string {
	names := make([]string, 0, len(l.Packages))
	for name := range l.Packages {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Requests returns command line requests pinning every locked package that
// isn't embedded in another, sorted by name. Solving them reproduces the
// locked solution.
func (l *LockFile) Requests() ([]*request.PkgRequest, error) {
	var reqs []*request.PkgRequest
	for _, name := range l.LockedPackages() {
		p := l.Packages[name]
		if p.EmbeddedIn != "" {
			continue
		}
		s := fmt.Sprintf("%s/=%s", name, p.Version)
		if p.Build != "" {
			s += "/" + p.Build
		}
		req, err := request.ParsePkgRequest(s, request.FromCommandLine)
		if err != nil {
			return nil, fmt.Errorf("locked package %s: %w", name, err)
		}
		req.Components = p.Components
		reqs = append(reqs, req)
	}
	return reqs, nil
}

// Diff compares the lock with a solution and returns one line per package
// that was added, removed or changed, sorted by name.
func (l *LockFile) Diff(sol *solution.Solution) []string {
	other := FromSolution("", uuid.Nil, sol)

	seen := make(map[string]bool)
	var names []string
	for _, n := range append(l.LockedPackages(), other.LockedPackages()...) {
		if !seen[n] {
			seen[n] = true
			names = append(names, n)
		}
	}
	sort.Strings(names)

	var out []string
	for _, name := range names {
		a, b := l.Packages[name], other.Packages[name]
		switch {
		case a == nil:
			out = append(out, fmt.Sprintf("+ %s %s", name, b.ident()))
		case b == nil:
			out = append(out, fmt.Sprintf("- %s %s", name, a.ident()))
		case a.ident() != b.ident():
			out = append(out, fmt.Sprintf("~ %s %s -> %s", name, a.ident(), b.ident()))
		}
	}
	return out
}

func (p *LockedPackage) ident() string {
	if p.Build == "" {
		return p.Version
	}
	return p.Version + "/" + p.Build
}
