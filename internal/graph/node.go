package graph

import (
	"github.com/launchcg/stratum/internal/iterator"
)

// Node is one step of the live search path.
type Node struct {
	State    *State
	Decision *Decision // nil for the root
	Parent   *Node
	Depth    int

	iterators map[string]*iterator.Iterator
}

// NewRoot returns the root node of a search over state.
func NewRoot(state *State) *Node {
	return &Node{State: state, iterators: make(map[string]*iterator.Iterator)}
}

// Child applies decision to the node's state. The child gets its own cursor
// over every iterator the node has, except those of unresolved packages,
// which start over.
func (n *Node) Child(decision *Decision) *Node {
	child := &Node{
		State:     decision.Apply(n.State),
		Decision:  decision,
		Parent:    n,
		Depth:     n.Depth + 1,
		iterators: make(map[string]*iterator.Iterator, len(n.iterators)),
	}
	for name, it := range n.iterators {
		child.iterators[name] = it.Clone()
	}
	for _, name := range decision.Unresolved() {
		delete(child.iterators, name)
	}
	// packages dropped along with an unresolved one start over too
	for _, p := range n.State.Packages() {
		if _, ok := child.State.Resolved(p.Spec.Name()); !ok {
			delete(child.iterators, p.Spec.Name())
		}
	}
	return child
}

// Iterator returns the node's iterator for name, creating it with newFn the
// first time.
func (n *Node) Iterator(name string, newFn func() *iterator.Iterator) *iterator.Iterator {
	it, ok := n.iterators[name]
	if !ok {
		it = newFn()
		n.iterators[name] = it
	}
	return it
}

// Graph tracks the states a search has entered.
type Graph struct {
	Root    *Node
	visited map[uint64]bool
}

// New returns a graph rooted at the given state.
func New(state *State) *Graph {
	return &Graph{
		Root:    NewRoot(state),
		visited: map[uint64]bool{state.ID(): true},
	}
}

// Visit marks a state as entered. It returns false if it already was.
func (g *Graph) Visit(s *State) bool {
	if g.visited[s.ID()] {
		return false
	}
	g.visited[s.ID()] = true
	return true
}

// Visited reports whether a state was entered before.
func (g *Graph) Visited(s *State) bool { return g.visited[s.ID()] }

// Len returns the number of distinct states entered.
func (g *Graph) Len() int { return len(g.visited) }
