package graph

import (
	"container/heap"
	"sort"

	"github.com/specforge/specforge/pkg/models"
)

// Traverser walks the full graph (every edge kind). Edge weights derive from
// the edge kind; conflicts_with is heaviest, which discourages routing
// through conflicting nodes. A Traverser is built from a snapshot and holds
// read-only id lookups — it never owns nodes.
type Traverser struct {
	adj      map[string][]weightedEdge
	nodes    []string
	maxDepth int
}

type weightedEdge struct {
	target string
	weight float64
}

// NewTraverser builds a traverser from a snapshot. maxDepth caps BFS/DFS
// depth; zero or negative means the DefaultMaxTraversalDepth of 10.
func NewTraverser(snap *models.GraphSnapshot, maxDepth int) *Traverser {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxTraversalDepth
	}
	t := &Traverser{
		adj:      make(map[string][]weightedEdge),
		maxDepth: maxDepth,
	}
	seen := make(map[string]struct{})
	for _, node := range snap.Nodes {
		if _, ok := seen[node.ID]; !ok {
			seen[node.ID] = struct{}{}
			t.nodes = append(t.nodes, node.ID)
		}
	}
	for _, edge := range snap.Edges {
		t.adj[edge.SourceID] = append(t.adj[edge.SourceID], weightedEdge{
			target: edge.TargetID,
			weight: edge.Kind.TraversalWeight(),
		})
		for _, id := range []string{edge.SourceID, edge.TargetID} {
			if _, ok := seen[id]; !ok {
				seen[id] = struct{}{}
				t.nodes = append(t.nodes, id)
			}
		}
	}
	sort.Strings(t.nodes)
	for _, edges := range t.adj {
		sort.Slice(edges, func(i, j int) bool { return edges[i].target < edges[j].target })
	}
	return t
}

// DefaultMaxTraversalDepth is the hard cap on traversal depth when the
// configuration does not override it.
const DefaultMaxTraversalDepth = 10

// BFS returns the nodes reachable from start in breadth-first order, bounded
// by the traverser's depth cap. The start node is included.
func (t *Traverser) BFS(start string) []string {
	type frame struct {
		id    string
		depth int
	}
	visited := map[string]bool{start: true}
	queue := []frame{{start, 0}}
	var order []string

	for len(queue) > 0 {
		f := queue[0]
		queue = queue[1:]
		order = append(order, f.id)
		if f.depth >= t.maxDepth {
			continue
		}
		for _, e := range t.adj[f.id] {
			if !visited[e.target] {
				visited[e.target] = true
				queue = append(queue, frame{e.target, f.depth + 1})
			}
		}
	}
	return order
}

// DFS returns the nodes reachable from start in depth-first preorder, bounded
// by the traverser's depth cap.
func (t *Traverser) DFS(start string) []string {
	visited := make(map[string]bool)
	var order []string

	var visit func(id string, depth int)
	visit = func(id string, depth int) {
		visited[id] = true
		order = append(order, id)
		if depth >= t.maxDepth {
			return
		}
		for _, e := range t.adj[id] {
			if !visited[e.target] {
				visit(e.target, depth+1)
			}
		}
	}
	visit(start, 0)
	return order
}

// Reachable reports whether target can be reached from start within the
// depth cap.
func (t *Traverser) Reachable(start, target string) bool {
	if start == target {
		return true
	}
	for _, id := range t.BFS(start) {
		if id == target {
			return true
		}
	}
	return false
}

// ShortestPath returns the hop-minimal path from start to target (unit-weight
// BFS), or nil when no path exists within the depth cap.
func (t *Traverser) ShortestPath(start, target string) []string {
	if start == target {
		return []string{start}
	}
	type frame struct {
		id    string
		depth int
	}
	prev := map[string]string{}
	visited := map[string]bool{start: true}
	queue := []frame{{start, 0}}

	for len(queue) > 0 {
		f := queue[0]
		queue = queue[1:]
		if f.depth >= t.maxDepth {
			continue
		}
		for _, e := range t.adj[f.id] {
			if visited[e.target] {
				continue
			}
			visited[e.target] = true
			prev[e.target] = f.id
			if e.target == target {
				return t.buildPath(prev, start, target)
			}
			queue = append(queue, frame{e.target, f.depth + 1})
		}
	}
	return nil
}

// CheapestPath returns the minimal-weight path from start to target using
// kind-derived edge weights (Dijkstra), or nil when no path exists. Paths
// through conflicts_with edges are strongly discouraged by their weight.
func (t *Traverser) CheapestPath(start, target string) []string {
	if start == target {
		return []string{start}
	}

	dist := map[string]float64{start: 0}
	prev := map[string]string{}
	pq := &pathQueue{{id: start, cost: 0}}
	heap.Init(pq)
	done := map[string]bool{}

	for pq.Len() > 0 {
		item := heap.Pop(pq).(pathItem)
		if done[item.id] {
			continue
		}
		if item.id == target {
			return t.buildPath(prev, start, target)
		}
		done[item.id] = true
		for _, e := range t.adj[item.id] {
			next := item.cost + e.weight
			if d, ok := dist[e.target]; !ok || next < d {
				dist[e.target] = next
				prev[e.target] = item.id
				heap.Push(pq, pathItem{id: e.target, cost: next})
			}
		}
	}
	return nil
}

// AllPaths returns every simple path from start to target up to the depth
// cap, each path as a node id sequence.
func (t *Traverser) AllPaths(start, target string) [][]string {
	var paths [][]string
	onPath := map[string]bool{start: true}

	var visit func(id string, path []string)
	visit = func(id string, path []string) {
		if id == target {
			paths = append(paths, append([]string(nil), path...))
			return
		}
		if len(path) > t.maxDepth {
			return
		}
		for _, e := range t.adj[id] {
			if onPath[e.target] {
				continue
			}
			onPath[e.target] = true
			visit(e.target, append(path, e.target))
			delete(onPath, e.target)
		}
	}
	visit(start, []string{start})
	return paths
}

// StronglyConnectedComponents returns the SCCs of the graph using Tarjan's
// algorithm. Each component is sorted; components are ordered by their
// smallest member.
func (t *Traverser) StronglyConnectedComponents() [][]string {
	index := make(map[string]int, len(t.nodes))
	lowlink := make(map[string]int, len(t.nodes))
	onStack := make(map[string]bool, len(t.nodes))
	var stack []string
	next := 0
	var components [][]string

	var strongconnect func(id string)
	strongconnect = func(id string) {
		index[id] = next
		lowlink[id] = next
		next++
		stack = append(stack, id)
		onStack[id] = true

		for _, e := range t.adj[id] {
			if _, seen := index[e.target]; !seen {
				strongconnect(e.target)
				if lowlink[e.target] < lowlink[id] {
					lowlink[id] = lowlink[e.target]
				}
			} else if onStack[e.target] && index[e.target] < lowlink[id] {
				lowlink[id] = index[e.target]
			}
		}

		if lowlink[id] == index[id] {
			var component []string
			for {
				top := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[top] = false
				component = append(component, top)
				if top == id {
					break
				}
			}
			sort.Strings(component)
			components = append(components, component)
		}
	}

	for _, id := range t.nodes {
		if _, seen := index[id]; !seen {
			strongconnect(id)
		}
	}

	sort.Slice(components, func(i, j int) bool { return components[i][0] < components[j][0] })
	return components
}

func (t *Traverser) buildPath(prev map[string]string, start, target string) []string {
	path := []string{target}
	for cur := target; cur != start; {
		p, ok := prev[cur]
		if !ok {
			return nil
		}
		path = append(path, p)
		cur = p
	}
	// reverse
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}

// pathItem / pathQueue implement container/heap for Dijkstra.
type pathItem struct {
	id   string
	cost float64
}

type pathQueue []pathItem

func (q pathQueue) Len() int           { return len(q) }
func (q pathQueue) Less(i, j int) bool { return q[i].cost < q[j].cost }
func (q pathQueue) Swap(i, j int)      { q[i], q[j] = q[j], q[i] }
func (q *pathQueue) Push(x any)        { *q = append(*q, x.(pathItem)) }
func (q *pathQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[:n-1]
	return item
}
