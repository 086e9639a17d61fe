package plugin

import (
	"fmt"
	"sort"
	"strings"
)

// The dependency graph is implicit in the descriptor table: every descriptor
// contributes one node, and each declared dependency contributes an edge
// from the dependency to the dependent. The resolver recomputes everything
// from the table on each call; nothing is cached between calls.
//
// Determinism contract: for identical descriptor sets, regardless of
// registration order, every function here produces byte-identical output.
// All iteration is over lexicographically sorted ids.

// sortedIDs returns the table's ids in lexicographic order.
func sortedIDs(table map[string]*Descriptor) []string {
	ids := make([]string, 0, len(table))
	for id := range table {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ValidateGraph checks the structural integrity of the dependency graph and
// returns the accumulated error messages; an empty result means the graph is
// valid.
//
// Descriptors already in StateFailed short-circuit the pass: their
// accumulated errors are surfaced (prefixed with the plugin id) and no
// graph-shape checks run, since edges declared by a failed descriptor are
// not trustworthy. On a clean table, every self-reference and every
// reference to an unregistered id is reported.
func ValidateGraph(table map[string]*Descriptor) []string {
	var errs []string

	ids := sortedIDs(table)
	for _, id := range ids {
		d := table[id]
		if d.State() != StateFailed {
			continue
		}
		msgs := d.Errors()
		if len(msgs) == 0 {
			msgs = []string{ErrPluginFailed.Error()}
		}
		for _, msg := range msgs {
			errs = append(errs, fmt.Sprintf("%s: %s", id, msg))
		}
	}
	if len(errs) > 0 {
		return errs
	}

	for _, id := range ids {
		for _, dep := range table[id].Dependencies() {
			switch {
			case dep == id:
				errs = append(errs, fmt.Sprintf("plugin %q depends on itself", id))
			default:
				if _, ok := table[dep]; !ok {
					errs = append(errs, fmt.Sprintf("plugin %q depends on missing plugin %q", id, dep))
				}
			}
		}
	}

	return errs
}

// Node colors for cycle detection.
const (
	colorWhite = iota // unvisited
	colorGray         // on the current recursion path
	colorBlack        // fully explored
)

// DetectCycle searches the dependency graph for a cycle and returns it as an
// ordered id sequence whose first and last elements are equal (for mutually
// dependent A and B: [A, B, A]). It returns nil when the graph is acyclic.
//
// The search is a three-color depth-first traversal visiting ids in
// lexicographic order, so the reported cycle is deterministic. Edges to
// unregistered ids are ignored; ValidateGraph reports those.
func DetectCycle(table map[string]*Descriptor) []string {
	color := make(map[string]int, len(table))
	parent := make(map[string]string, len(table))

	var cycle []string
	var visit func(id string) bool
	visit = func(id string) bool {
		color[id] = colorGray
		for _, dep := range table[id].Dependencies() {
			if _, ok := table[dep]; !ok {
				continue
			}
			switch color[dep] {
			case colorWhite:
				parent[dep] = id
				if visit(dep) {
					return true
				}
			case colorGray:
				cycle = reconstructCycle(parent, id, dep)
				return true
			}
		}
		color[id] = colorBlack
		return false
	}

	for _, id := range sortedIDs(table) {
		if color[id] == colorWhite && visit(id) {
			return cycle
		}
	}
	return nil
}

// reconstructCycle walks parent pointers from the node that closed the cycle
// back to the gray node, reverses the walk, and closes the sequence. If the
// parent chain cannot reach the gray node, it falls back to the minimal
// two-node cycle from the closing edge.
func reconstructCycle(parent map[string]string, from, to string) []string {
	path := []string{from}
	cur := from
	for cur != to {
		p, ok := parent[cur]
		if !ok {
			return []string{from, to, from}
		}
		cur = p
		path = append(path, cur)
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return append(path, to)
}

// formatCycle renders a cycle path for error messages.
func formatCycle(cycle []string) string {
	return strings.Join(cycle, " -> ")
}

// ComputeLoadOrder computes a deterministic topological order of the
// dependency graph: every dependency appears before each of its dependents,
// and ties break to the lexicographically smallest eligible id. It requires
// ValidateGraph to have already succeeded.
//
// The order is Kahn's algorithm over a ready set that is re-sorted after
// every admission, so at each step the globally smallest eligible id is
// chosen. When the graph is cyclic the order does not exist; the returned
// error carries the cycle path when one can be reconstructed.
func ComputeLoadOrder(table map[string]*Descriptor) ([]string, error) {
	indegree := make(map[string]int, len(table))
	dependents := make(map[string][]string, len(table))

	ids := sortedIDs(table)
	for _, id := range ids {
		indegree[id] = 0
	}
	for _, id := range ids {
		for _, dep := range table[id].Dependencies() {
			if _, ok := table[dep]; !ok {
				continue
			}
			indegree[id]++
			dependents[dep] = append(dependents[dep], id)
		}
	}

	var ready []string
	for _, id := range ids {
		if indegree[id] == 0 {
			ready = append(ready, id)
		}
	}
	sort.Strings(ready)

	order := make([]string, 0, len(table))
	for len(ready) > 0 {
		next := ready[0]
		ready = ready[1:]
		order = append(order, next)

		for _, dep := range dependents[next] {
			indegree[dep]--
			if indegree[dep] == 0 {
				ready = append(ready, dep)
				sort.Strings(ready)
			}
		}
	}

	if len(order) < len(table) {
		if cycle := DetectCycle(table); cycle != nil {
			return nil, fmt.Errorf("%w: %s", ErrCyclicDependency, formatCycle(cycle))
		}
		return nil, ErrCyclicDependency
	}
	return order, nil
}
