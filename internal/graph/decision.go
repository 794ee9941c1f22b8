package graph

import (
	"fmt"
	"strings"

	"github.com/launchcg/stratum/internal/iterator"
	"github.com/launchcg/stratum/internal/manifest"
	"github.com/launchcg/stratum/internal/request"
)

// Change is one modification a decision makes to a state.
type Change interface {
	fmt.Stringer
	apply(s *State)
}

// RequestPackage adds a package request.
type RequestPackage struct {
	Request *request.PkgRequest
}

func (c RequestPackage) apply(s *State) {
	s.pkgRequests = append(s.pkgRequests, c.Request)
}

func (c RequestPackage) String() string { return "REQUEST " + c.Request.String() }

// RequestVar adds a variable request and sets the option it names.
type RequestVar struct {
	Request     request.VarRequest
	RequestedBy request.RequestedBy
}

func (c RequestVar) apply(s *State) {
	for _, e := range s.varRequests {
		if e.req == c.Request {
			return
		}
	}
	s.varRequests = append(s.varRequests, varEntry{req: c.Request, by: c.RequestedBy})
	s.options[c.Request.Name] = c.Request.Value
}

func (c RequestVar) String() string { return "REQUEST VAR " + c.Request.String() }

// SetOptions merges option values into the state.
type SetOptions struct {
	Options manifest.OptionMap
}

func (c SetOptions) apply(s *State) {
	for k, v := range c.Options {
		s.options[k] = v
	}
}

func (c SetOptions) String() string { return "SET " + c.Options.String() }

// SetPackage resolves a published build.
type SetPackage struct {
	Spec   *manifest.Spec
	Source iterator.Source
}

func (c SetPackage) apply(s *State) {
	s.removePackage(c.Spec.Name())
	s.packages = append(s.packages, ResolvedPackage{Spec: c.Spec, Source: c.Source})
}

func (c SetPackage) String() string { return "RESOLVE " + c.Spec.Pkg.String() }

// SetPackageBuild resolves a build rendered from a recipe.
type SetPackageBuild struct {
	Spec     *manifest.Spec
	Source   iterator.Source
	BuildEnv *State
}

func (c SetPackageBuild) apply(s *State) {
	s.removePackage(c.Spec.Name())
	s.packages = append(s.packages, ResolvedPackage{Spec: c.Spec, Source: c.Source, BuildEnv: c.BuildEnv})
}

func (c SetPackageBuild) String() string {
	return "BUILD " + c.Spec.Pkg.String()
}

// UnresolvePackage undoes the resolution of a package so it can be resolved
// again under a narrower request.
type UnresolvePackage struct {
	Name   string
	Reason string
}

func (c UnresolvePackage) apply(s *State) { s.unresolve(c.Name) }

func (c UnresolvePackage) String() string {
	return fmt.Sprintf("UNRESOLVE %s: %s", c.Name, c.Reason)
}

// StepBack records that the search gave up on a state and returned to its
// parent. It does not change the state.
type StepBack struct {
	Cause string
}

func (StepBack) apply(*State) {}

func (c StepBack) String() string { return "STEP BACK " + c.Cause }

// Note is extra information attached to a decision.
type Note interface {
	fmt.Stringer
	isNote()
}

// SkipPackageNote records a candidate that was considered and rejected.
type SkipPackageNote struct {
	Pkg    string
	Reason string
}

func (SkipPackageNote) isNote() {}

func (n SkipPackageNote) String() string { return fmt.Sprintf("TRY %s - %s", n.Pkg, n.Reason) }

// OtherNote is free-form.
type OtherNote struct {
	Message string
}

func (OtherNote) isNote() {}

func (n OtherNote) String() string { return n.Message }

// Decision moves the search from one state to the next.
type Decision struct {
	Changes []Change
	Notes   []Note
}

// NewDecision returns a decision making the given changes.
func NewDecision(changes ...Change) *Decision {
	return &Decision{Changes: changes}
}

// AddNotes appends notes to the decision.
func (d *Decision) AddNotes(notes ...Note) {
	d.Notes = append(d.Notes, notes...)
}

// Apply returns the state reached by making the decision's changes to
// parent. Parent is not modified.
func (d *Decision) Apply(parent *State) *State {
	s := parent.clone()
	for _, c := range d.Changes {
		c.apply(s)
	}
	s.id = s.computeID()
	return s
}

// IsStepBack reports whether the decision abandons a state.
func (d *Decision) IsStepBack() bool {
	for _, c := range d.Changes {
		if _, ok := c.(StepBack); ok {
			return true
		}
	}
	return false
}

// Unresolved returns the names the decision unresolves.
func (d *Decision) Unresolved() []string {
	var names []string
	for _, c := range d.Changes {
		if u, ok := c.(UnresolvePackage); ok {
			names = append(names, u.Name)
		}
	}
	return names
}

// Resolved returns the spec the decision resolves first, if any.
func (d *Decision) Resolved() (*manifest.Spec, bool) {
	for _, c := range d.Changes {
		switch c := c.(type) {
		case SetPackage:
			return c.Spec, true
		case SetPackageBuild:
			return c.Spec, true
		}
	}
	return nil, false
}

func (d *Decision) String() string {
	parts := make([]string, len(d.Changes))
	for i, c := range d.Changes {
		parts[i] = c.String()
	}
	return strings.Join(parts, "; ")
}
