// Package graph holds the data of a solve: immutable states, the decisions
// that lead from one state to the next, and the nodes of the search path.
package graph

import (
	"fmt"
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/launchcg/stratum/internal/iterator"
	"github.com/launchcg/stratum/internal/manifest"
	"github.com/launchcg/stratum/internal/request"
)

// ResolvedPackage is a package fixed in a state.
type ResolvedPackage struct {
	Spec   *manifest.Spec
	Source iterator.Source
	// BuildEnv is the terminal state of the nested solve a source build was
	// resolved against. It is nil for binary and embedded packages.
	BuildEnv *State
}

type varEntry struct {
	req request.VarRequest
	by  request.RequestedBy
}

// State is one point of the search. States are never modified once built;
// Decision.Apply returns a new one.
type State struct {
	pkgRequests []*request.PkgRequest
	varRequests []varEntry
	packages    []ResolvedPackage
	options     manifest.OptionMap
	id          uint64
}

// NewState returns the empty root state.
func NewState() *State {
	s := &State{options: manifest.OptionMap{}}
	s.id = s.computeID()
	return s
}

// ID is a hash of the state's contents. Two states with the same requests,
// resolved packages and options share an id.
func (s *State) ID() uint64 { return s.id }

// PkgRequests returns the package requests in the order they were made.
func (s *State) PkgRequests() []*request.PkgRequest { return s.pkgRequests }

// VarRequests returns the variable requests in the order they were made.
func (s *State) VarRequests() []request.VarRequest {
	out := make([]request.VarRequest, len(s.varRequests))
	for i, e := range s.varRequests {
		out[i] = e.req
	}
	return out
}

// Packages returns the resolved packages in resolve order.
func (s *State) Packages() []ResolvedPackage { return s.packages }

// Options returns the resolved option values. The map must not be changed.
func (s *State) Options() manifest.OptionMap { return s.options }

// Resolved returns the resolved package of that name.
func (s *State) Resolved(name string) (ResolvedPackage, bool) {
	for _, p := range s.packages {
		if p.Spec.Name() == name {
			return p, true
		}
	}
	return ResolvedPackage{}, false
}

// MergedRequest combines every request for name into one. It returns nil,
// nil if nothing requests the name.
func (s *State) MergedRequest(name string) (*request.PkgRequest, error) {
	var merged *request.PkgRequest
	for _, r := range s.pkgRequests {
		if r.Name != name {
			continue
		}
		if merged == nil {
			merged = r.Clone()
			continue
		}
		next, err := merged.Restrict(r)
		if err != nil {
			return nil, fmt.Errorf("conflicting requests for %s: %w", name, err)
		}
		merged = next
	}
	return merged, nil
}

// NextRequest returns the name of the next package to resolve, or "" when
// every request is resolved. Names in priority come first, the rest in the
// order they were requested. A name only requested with IfAlreadyPresent
// is not resolved on its own.
func (s *State) NextRequest(priority []string) string {
	pending := make(map[string]bool)
	var order []string
	for _, r := range s.pkgRequests {
		if _, ok := s.Resolved(r.Name); ok {
			continue
		}
		if _, seen := pending[r.Name]; !seen {
			pending[r.Name] = false
			order = append(order, r.Name)
		}
		if r.InclusionPolicy == request.Always {
			pending[r.Name] = true
		}
	}
	for _, name := range priority {
		if pending[name] {
			return name
		}
	}
	for _, name := range order {
		if pending[name] {
			return name
		}
	}
	return ""
}

// VarRequest returns the value requested for a variable.
func (s *State) VarRequest(name string) (request.VarRequest, bool) {
	for _, e := range s.varRequests {
		if e.req.Name == name {
			return e.req, true
		}
	}
	return request.VarRequest{}, false
}

// String summarizes the state for logs and traces.
func (s *State) String() string {
	names := make([]string, len(s.packages))
	for i, p := range s.packages {
		names[i] = p.Spec.Pkg.String()
	}
	return fmt.Sprintf("State{%x, resolved=[%s], requests=%d}", s.id, strings.Join(names, ", "), len(s.pkgRequests))
}

func (s *State) clone() *State {
	return &State{
		pkgRequests: append([]*request.PkgRequest(nil), s.pkgRequests...),
		varRequests: append([]varEntry(nil), s.varRequests...),
		packages:    append([]ResolvedPackage(nil), s.packages...),
		options:     s.options.Clone(),
	}
}

func (s *State) computeID() uint64 {
	var lines []string
	for _, r := range s.pkgRequests {
		lines = append(lines, "req:"+r.String())
	}
	for _, e := range s.varRequests {
		lines = append(lines, "var:"+e.req.String())
	}
	for _, p := range s.packages {
		lines = append(lines, "pkg:"+p.Spec.Pkg.String())
	}
	for _, k := range s.options.Keys() {
		lines = append(lines, "opt:"+k+"="+s.options[k])
	}
	sort.Strings(lines)

	h := xxhash.New()
	for _, line := range lines {
		_, _ = h.WriteString(line)
		_, _ = h.Write([]byte{0})
	}
	return h.Sum64()
}

// unresolve removes a package and everything that exists only because of
// it: its options, the requests it made, and packages left without any
// request.
func (s *State) unresolve(name string) {
	p, ok := s.Resolved(name)
	if !ok {
		return
	}
	ident := p.Spec.Pkg.String()
	by := request.RequestedBy{Kind: request.PackageRequirement, Package: ident}

	s.removePackage(name)
	for _, k := range s.options.Keys() {
		if k == name || strings.HasPrefix(k, name+".") {
			delete(s.options, k)
		}
	}

	reqs := s.pkgRequests[:0:0]
	for _, r := range s.pkgRequests {
		if len(r.RequestedBy) == 1 && r.RequestedBy[0] == by {
			continue
		}
		reqs = append(reqs, r)
	}
	s.pkgRequests = reqs

	vars := s.varRequests[:0:0]
	for _, e := range s.varRequests {
		if e.by != by {
			vars = append(vars, e)
		}
	}
	s.varRequests = vars

	// embedded stubs and orphans go too
	var orphans []string
	for _, other := range s.packages {
		if other.Source.Kind == iterator.Embedded {
			if other.Source.Parent == ident {
				orphans = append(orphans, other.Spec.Name())
			}
			continue
		}
		if !s.isRequested(other.Spec.Name()) {
			orphans = append(orphans, other.Spec.Name())
		}
	}
	for _, orphan := range orphans {
		s.unresolve(orphan)
	}
}

func (s *State) removePackage(name string) {
	pkgs := s.packages[:0:0]
	for _, p := range s.packages {
		if p.Spec.Name() != name {
			pkgs = append(pkgs, p)
		}
	}
	s.packages = pkgs
}

func (s *State) isRequested(name string) bool {
	for _, r := range s.pkgRequests {
		if r.Name == name {
			return true
		}
	}
	return false
}
