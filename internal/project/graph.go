package project

import (
	"sync"
)

// Graph tracks project references so the change detector can fan a change
// out to every project that transitively depends on the changed one.
// Edges point from a project to the projects it references.
type Graph struct {
	mu   sync.RWMutex
	refs map[Key]map[Key]struct{}
}

// NewGraph creates an empty dependency graph.
func NewGraph() *Graph {
	return &Graph{
		refs: make(map[Key]map[Key]struct{}),
	}
}

// SetReferences replaces the outgoing reference set of a project.
func (g *Graph) SetReferences(key Key, references []Key) {
	g.mu.Lock()
	defer g.mu.Unlock()

	set := make(map[Key]struct{}, len(references))
	for _, ref := range references {
		if ref == key {
			continue
		}
		set[ref] = struct{}{}
	}
	g.refs[key] = set
}

// Remove drops a project and its outgoing edges. Incoming edges from other
// projects are left in place; they resolve to "not found" lookups, which
// callers treat as no-ops.
func (g *Graph) Remove(key Key) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.refs, key)
}

// References returns the direct references of a project.
func (g *Graph) References(key Key) []Key {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]Key, 0, len(g.refs[key]))
	for ref := range g.refs[key] {
		out = append(out, ref)
	}
	return out
}

// Dependents returns every project that transitively references key,
// excluding key itself. Cycles are tolerated.
func (g *Graph) Dependents(key Key) []Key {
	g.mu.RLock()
	defer g.mu.RUnlock()

	// Reverse adjacency computed on demand: the graph is small (projects,
	// not documents) and queries are debounced.
	reverse := make(map[Key][]Key, len(g.refs))
	for from, tos := range g.refs {
		for to := range tos {
			reverse[to] = append(reverse[to], from)
		}
	}

	seen := map[Key]struct{}{key: {}}
	var out []Key
	queue := []Key{key}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, dep := range reverse[current] {
			if _, ok := seen[dep]; ok {
				continue
			}
			seen[dep] = struct{}{}
			out = append(out, dep)
			queue = append(queue, dep)
		}
	}
	return out
}
