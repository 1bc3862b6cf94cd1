package graph

import (
	"context"
	"sort"

	"github.com/specforge/specforge/pkg/models"
)

// maxEnumeratedCycles bounds cycle enumeration on pathological graphs.
const maxEnumeratedCycles = 1000

// DependencyResolver computes dependency depths, detects cycles, and resolves
// apply order over the dependency closure of the graph. It operates on a
// snapshot: build one per analysis, do not keep it across repository writes.
type DependencyResolver struct {
	// adjacency restricted to dependency edge kinds
	// {depends_on, implements, refines, tested_by}.
	adj   map[string][]string
	nodes []string

	// memoized dependency depths
	depths map[string]int
}

// NewDependencyResolver builds a resolver from a graph snapshot, restricting
// the adjacency to dependency edge kinds.
func NewDependencyResolver(snap *models.GraphSnapshot) *DependencyResolver {
	r := &DependencyResolver{
		adj:    make(map[string][]string),
		depths: make(map[string]int),
	}
	seen := make(map[string]struct{})
	for _, node := range snap.Nodes {
		if _, ok := seen[node.ID]; !ok {
			seen[node.ID] = struct{}{}
			r.nodes = append(r.nodes, node.ID)
		}
	}
	for _, edge := range snap.Edges {
		if !edge.Kind.IsDependency() {
			continue
		}
		r.adj[edge.SourceID] = append(r.adj[edge.SourceID], edge.TargetID)
		for _, id := range []string{edge.SourceID, edge.TargetID} {
			if _, ok := seen[id]; !ok {
				seen[id] = struct{}{}
				r.nodes = append(r.nodes, id)
			}
		}
	}
	sort.Strings(r.nodes)
	for _, targets := range r.adj {
		sort.Strings(targets)
	}
	return r
}

// NewDependencyResolverFromRepo snapshots the repository and builds a resolver.
func NewDependencyResolverFromRepo(ctx context.Context, repo Repository) (*DependencyResolver, error) {
	snap, err := repo.Snapshot(ctx, nil, nil)
	if err != nil {
		return nil, err
	}
	return NewDependencyResolver(snap), nil
}

// Nodes returns the node ids known to the resolver, sorted.
func (r *DependencyResolver) Nodes() []string {
	return append([]string(nil), r.nodes...)
}

// Dependencies returns the direct dependencies of a node, sorted.
func (r *DependencyResolver) Dependencies(id string) []string {
	return append([]string(nil), r.adj[id]...)
}

// Depth returns the dependency depth of a node: 0 for leaves, otherwise
// 1 + max depth of its dependencies. Nodes on a cycle get the depth reached
// before revisiting (memoized DFS with an in-progress guard).
func (r *DependencyResolver) Depth(id string) int {
	return r.depth(id, make(map[string]bool))
}

func (r *DependencyResolver) depth(id string, inProgress map[string]bool) int {
	if d, ok := r.depths[id]; ok {
		return d
	}
	if inProgress[id] {
		return 0
	}
	inProgress[id] = true
	max := 0
	for _, dep := range r.adj[id] {
		if d := r.depth(dep, inProgress) + 1; d > max {
			max = d
		}
	}
	delete(inProgress, id)
	r.depths[id] = max
	return max
}

// cycleSeverity grades a cycle by its length (excluding the repeated closing
// id): length 1 (self-loop) and 2 are high, 3-4 medium, low otherwise.
func cycleSeverity(length int) models.Severity {
	switch {
	case length <= 2:
		return models.SeverityHigh
	case length <= 4:
		return models.SeverityMedium
	default:
		return models.SeverityLow
	}
}

// DetectCycles enumerates every distinct simple cycle in the dependency
// adjacency, not just one per strongly connected component. Each cycle is
// reported once in its canonical rotation (starting at its smallest id) with
// the first id repeated at the end.
func (r *DependencyResolver) DetectCycles() []models.CircularDependency {
	var cycles []models.CircularDependency

	// Restricting the search to paths whose every node id is >= the start id
	// yields each simple cycle exactly once, rooted at its smallest member.
	for _, start := range r.nodes {
		if len(cycles) >= maxEnumeratedCycles {
			break
		}
		onPath := map[string]bool{start: true}
		path := []string{start}
		r.enumerate(start, start, path, onPath, &cycles)
	}

	sort.Slice(cycles, func(i, j int) bool {
		a, b := cycles[i].Cycle, cycles[j].Cycle
		if len(a) != len(b) {
			return len(a) < len(b)
		}
		for k := range a {
			if a[k] != b[k] {
				return a[k] < b[k]
			}
		}
		return false
	})
	return cycles
}

func (r *DependencyResolver) enumerate(start, current string, path []string, onPath map[string]bool, cycles *[]models.CircularDependency) {
	for _, next := range r.adj[current] {
		if len(*cycles) >= maxEnumeratedCycles {
			return
		}
		if next == start {
			cycle := append(append([]string(nil), path...), start)
			*cycles = append(*cycles, models.CircularDependency{
				Cycle:    cycle,
				Severity: cycleSeverity(len(path)),
			})
			continue
		}
		if next < start || onPath[next] {
			continue
		}
		onPath[next] = true
		r.enumerate(start, next, append(path, next), onPath, cycles)
		delete(onPath, next)
	}
}

// HasCycle reports whether any dependency cycle exists, using a three-color
// DFS (unvisited / in-stack / done).
func (r *DependencyResolver) HasCycle() bool {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(r.nodes))

	var visit func(id string) bool
	visit = func(id string) bool {
		color[id] = gray
		for _, next := range r.adj[id] {
			switch color[next] {
			case gray:
				return true
			case white:
				if visit(next) {
					return true
				}
			}
		}
		color[id] = black
		return false
	}

	for _, id := range r.nodes {
		if color[id] == white && visit(id) {
			return true
		}
	}
	return false
}

// closure returns the transitive-dependency closure of the targets (the
// targets themselves included). Nil or empty targets select every node.
func (r *DependencyResolver) closure(targets []string) map[string]struct{} {
	set := make(map[string]struct{})
	if len(targets) == 0 {
		for _, id := range r.nodes {
			set[id] = struct{}{}
		}
		return set
	}
	var stack []string
	for _, id := range targets {
		if _, ok := set[id]; !ok {
			set[id] = struct{}{}
			stack = append(stack, id)
		}
	}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, dep := range r.adj[id] {
			if _, ok := set[dep]; !ok {
				set[dep] = struct{}{}
				stack = append(stack, dep)
			}
		}
	}
	return set
}

// ResolveDependencies returns a topological order for the targets'
// transitive-dependency closure, using Kahn's algorithm: for every dependency
// edge u -> v in the closure, u precedes v in the returned order. It fails
// with a DependencyError carrying every cycle when the closure is cyclic.
// Nil or empty targets resolve the whole graph.
func (r *DependencyResolver) ResolveDependencies(targets []string) ([]string, error) {
	set := r.closure(targets)

	indegree := make(map[string]int, len(set))
	for id := range set {
		indegree[id] = 0
	}
	for id := range set {
		for _, dep := range r.adj[id] {
			if _, ok := set[dep]; ok {
				indegree[dep]++
			}
		}
	}

	ready := make([]string, 0, len(set))
	for id, deg := range indegree {
		if deg == 0 {
			ready = append(ready, id)
		}
	}
	sort.Strings(ready)

	order := make([]string, 0, len(set))
	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		order = append(order, id)

		var newlyReady []string
		for _, dep := range r.adj[id] {
			if _, ok := set[dep]; !ok {
				continue
			}
			indegree[dep]--
			if indegree[dep] == 0 {
				newlyReady = append(newlyReady, dep)
			}
		}
		if len(newlyReady) > 0 {
			ready = append(ready, newlyReady...)
			sort.Strings(ready)
		}
	}

	if len(order) != len(set) {
		cycles := r.DetectCycles()
		// Keep only cycles inside the requested closure.
		var relevant []models.CircularDependency
		for _, c := range cycles {
			inside := true
			for _, id := range c.Cycle {
				if _, ok := set[id]; !ok {
					inside = false
					break
				}
			}
			if inside {
				relevant = append(relevant, c)
			}
		}
		if len(relevant) == 0 {
			relevant = cycles
		}
		return nil, &DependencyError{Cycles: relevant}
	}
	return order, nil
}
