// Package solution turns the terminal state of a solve into the set of
// packages to install.
package solution

import (
	"fmt"
	"strings"

	"github.com/launchcg/stratum/internal/errors"
	"github.com/launchcg/stratum/internal/graph"
	"github.com/launchcg/stratum/internal/iterator"
	"github.com/launchcg/stratum/internal/manifest"
	"github.com/launchcg/stratum/internal/request"
)

// ErrNoSolution is returned when there is no terminal state to assemble.
var ErrNoSolution = errors.New("no solution")

// Item is one resolved package.
type Item struct {
	// Request is the merged request that selected the package. It is nil
	// for embedded packages nothing asked for.
	Request     *request.PkgRequest
	Spec        *manifest.Spec
	Source      iterator.Source
	RequestedBy []request.RequestedBy

	buildEnv *Solution
}

// Name returns the package name.
func (i *Item) Name() string { return i.Spec.Name() }

// IsBuiltFromSource reports whether the package must be built from its
// recipe before it can be installed.
func (i *Item) IsBuiltFromSource() bool { return i.Source.IsRecipe() }

// BuildEnv returns the solution of the nested solve the build was resolved
// against. It is nil unless the item is built from source.
func (i *Item) BuildEnv() *Solution { return i.buildEnv }

func (i *Item) String() string {
	by := make([]string, len(i.RequestedBy))
	for j, r := range i.RequestedBy {
		by[j] = r.String()
	}
	return fmt.Sprintf("%s (required by %s) from %s", i.Spec.Pkg, strings.Join(by, ", "), i.Source)
}

// Solution is a complete, consistent set of package builds.
type Solution struct {
	items   []*Item
	byName  map[string]*Item
	options manifest.OptionMap
}

// Assemble builds the solution of a terminal state. Items keep the order in
// which they were resolved.
func Assemble(state *graph.State) (*Solution, error) {
	if state == nil {
		return nil, ErrNoSolution
	}

	s := &Solution{
		byName:  make(map[string]*Item),
		options: state.Options().Clone(),
	}
	for _, p := range state.Packages() {
		req, err := state.MergedRequest(p.Spec.Name())
		if err != nil {
			return nil, fmt.Errorf("assembling solution: %w", err)
		}
		item := &Item{Request: req, Spec: p.Spec, Source: p.Source}
		if p.BuildEnv != nil {
			if item.buildEnv, err = Assemble(p.BuildEnv); err != nil {
				return nil, fmt.Errorf("assembling build env of %s: %w", p.Spec.Pkg, err)
			}
		}
		if req != nil {
			item.RequestedBy = append(item.RequestedBy, req.RequestedBy...)
		}
		if p.Source.Kind == iterator.Embedded {
			item.RequestedBy = appendRequester(item.RequestedBy,
				request.RequestedBy{Kind: request.PackageRequirement, Package: p.Source.Parent})
		}
		s.items = append(s.items, item)
		s.byName[item.Name()] = item
	}
	return s, nil
}

func appendRequester(list []request.RequestedBy, by request.RequestedBy) []request.RequestedBy {
	for _, existing := range list {
		if existing == by {
			return list
		}
	}
	return append(list, by)
}

// Get returns the item for a package name.
func (s *Solution) Get(name string) (*Item, bool) {
	item, ok := s.byName[name]
	return item, ok
}

// Items returns the items in resolve order.
func (s *Solution) Items() []*Item { return s.items }

// Names returns the package names in resolve order.
func (s *Solution) Names() []string {
	names := make([]string, len(s.items))
	for i, item := range s.items {
		names[i] = item.Name()
	}
	return names
}

// Options returns the option values the solve settled on.
func (s *Solution) Options() manifest.OptionMap { return s.options }

// Len returns the number of packages.
func (s *Solution) Len() int { return len(s.items) }

// InstallOrder returns the package names with every package after the
// packages it requires. Embedded packages follow the package embedding them.
func (s *Solution) InstallOrder() ([]string, error) {
	g := newDepGraph()
	for _, item := range s.items {
		g.addNode(item.Name())
		if item.Source.Kind == iterator.Embedded {
			parent, _, _ := strings.Cut(item.Source.Parent, "/")
			g.addDependency(item.Name(), parent)
			continue
		}
		var components []string
		if item.Request != nil {
			components = item.Request.Components
		}
		for _, r := range item.Spec.RuntimeRequirements(components) {
			if !r.IsPkg() {
				continue
			}
			name, _, _ := strings.Cut(r.Pkg, "/")
			name, _, _ = strings.Cut(name, ":")
			if _, ok := s.byName[name]; ok {
				g.addDependency(item.Name(), name)
			}
		}
	}
	return g.topologicalSort()
}

// String lists the packages one per line.
func (s *Solution) String() string {
	var sb strings.Builder
	for _, item := range s.items {
		sb.WriteString(item.String())
		sb.WriteString("\n")
	}
	return sb.String()
}
