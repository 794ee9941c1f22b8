package solution

import (
	"fmt"
	"sort"
)

// depGraph is the install-time dependency graph of a solution.
type depGraph struct {
	nodes map[string]map[string]bool
}

func newDepGraph() *depGraph {
	return &depGraph{nodes: make(map[string]map[string]bool)}
}

func (g *depGraph) addNode(name string) {
	if _, ok := g.nodes[name]; !ok {
		g.nodes[name] = make(map[string]bool)
	}
}

// addDependency records that parent needs child installed first.
func (g *depGraph) addDependency(parent, child string) {
	g.addNode(parent)
	g.addNode(child)
	if parent != child {
		g.nodes[parent][child] = true
	}
}

// topologicalSort returns the nodes with dependencies first. Ties are broken
// by name so the order is stable.
func (g *depGraph) topologicalSort() ([]string, error) {
	// Kahn's algorithm
	inDegree := make(map[string]int, len(g.nodes))
	for name := range g.nodes {
		inDegree[name] = 0
	}
	for _, deps := range g.nodes {
		for dep := range deps {
			inDegree[dep]++
		}
	}

	var queue []string
	for name, degree := range inDegree {
		if degree == 0 {
			queue = append(queue, name)
		}
	}
	sort.Strings(queue)

	var result []string
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		result = append(result, name)

		for dep := range g.nodes[name] {
			inDegree[dep]--
			if inDegree[dep] == 0 {
				queue = append(queue, dep)
				sort.Strings(queue)
			}
		}
	}

	if len(result) != len(g.nodes) {
		var cycle []string
		for name, degree := range inDegree {
			if degree > 0 {
				cycle = append(cycle, name)
			}
		}
		sort.Strings(cycle)
		return nil, &CycleError{Packages: cycle}
	}

	// reverse so dependencies come first
	for i, j := 0, len(result)-1; i < j; i, j = i+1, j-1 {
		result[i], result[j] = result[j], result[i]
	}
	return result, nil
}

// CycleError indicates the install requirements of a solution form a cycle.
type CycleError struct {
	Packages []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("circular install requirements involving: %v", e.Packages)
}
