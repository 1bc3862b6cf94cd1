package graph

import "sort"

// TopoResult is the outcome of a topological sort. Order lists the sorted
// node ids; Stranded lists nodes that sit on (or downstream of) a cycle and
// could not be ordered. IsAcyclic is true iff Stranded is empty.
type TopoResult struct {
	Order     []string `json:"order"`
	Stranded  []string `json:"stranded,omitempty"`
	IsAcyclic bool     `json:"is_acyclic"`
}

// LayeredResult groups nodes into layers where each layer only depends on
// earlier layers, so every layer is safe to process in parallel. CriticalPath
// is the number of layers.
type LayeredResult struct {
	Layers       [][]string `json:"layers"`
	Stranded     []string   `json:"stranded,omitempty"`
	CriticalPath int        `json:"critical_path"`
	IsAcyclic    bool       `json:"is_acyclic"`
}

// KahnSort performs Kahn's topological sort over the dependency adjacency.
// It always returns the partial order it managed to build; nodes stranded in
// cycles are reported separately rather than failing the call. The empty
// graph yields an empty order with IsAcyclic true.
func (r *DependencyResolver) KahnSort() *TopoResult {
	indegree := make(map[string]int, len(r.nodes))
	for _, id := range r.nodes {
		indegree[id] = 0
	}
	for _, id := range r.nodes {
		for _, dep := range r.adj[id] {
			indegree[dep]++
		}
	}

	ready := make([]string, 0, len(r.nodes))
	for _, id := range r.nodes {
		if indegree[id] == 0 {
			ready = append(ready, id)
		}
	}
	sort.Strings(ready)

	result := &TopoResult{Order: make([]string, 0, len(r.nodes))}
	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		result.Order = append(result.Order, id)

		var newlyReady []string
		for _, dep := range r.adj[id] {
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

	if len(result.Order) < len(r.nodes) {
		ordered := make(map[string]struct{}, len(result.Order))
		for _, id := range result.Order {
			ordered[id] = struct{}{}
		}
		for _, id := range r.nodes {
			if _, ok := ordered[id]; !ok {
				result.Stranded = append(result.Stranded, id)
			}
		}
	}
	result.IsAcyclic = len(result.Stranded) == 0
	return result
}

// DFSSort performs a DFS-based topological sort (reverse post-order) with
// three-color cycle detection. When a cycle is found the affected nodes are
// reported as stranded and excluded from the order.
func (r *DependencyResolver) DFSSort() *TopoResult {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(r.nodes))
	onCycle := make(map[string]struct{})

	var postorder []string
	var stack []string

	var visit func(id string)
	visit = func(id string) {
		color[id] = gray
		stack = append(stack, id)
		for _, next := range r.adj[id] {
			switch color[next] {
			case white:
				visit(next)
			case gray:
				// Back edge: everything from next to the top of the stack is
				// on a cycle.
				for i := len(stack) - 1; i >= 0; i-- {
					onCycle[stack[i]] = struct{}{}
					if stack[i] == next {
						break
					}
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[id] = black
		postorder = append(postorder, id)
	}

	for _, id := range r.nodes {
		if color[id] == white {
			visit(id)
		}
	}

	result := &TopoResult{}
	// Reverse post-order, skipping nodes involved in cycles.
	for i := len(postorder) - 1; i >= 0; i-- {
		id := postorder[i]
		if _, bad := onCycle[id]; bad {
			continue
		}
		result.Order = append(result.Order, id)
	}
	for _, id := range r.nodes {
		if _, bad := onCycle[id]; bad {
			result.Stranded = append(result.Stranded, id)
		}
	}
	sort.Strings(result.Stranded)
	result.IsAcyclic = len(result.Stranded) == 0
	return result
}

// LayeredSort repeatedly removes in-degree-zero nodes, emitting each removal
// round as a layer. Nodes remaining when no in-degree-zero node is left are
// stranded in cycles.
func (r *DependencyResolver) LayeredSort() *LayeredResult {
	indegree := make(map[string]int, len(r.nodes))
	remaining := make(map[string]struct{}, len(r.nodes))
	for _, id := range r.nodes {
		indegree[id] = 0
		remaining[id] = struct{}{}
	}
	for _, id := range r.nodes {
		for _, dep := range r.adj[id] {
			indegree[dep]++
		}
	}

	result := &LayeredResult{}
	for len(remaining) > 0 {
		var layer []string
		for id := range remaining {
			if indegree[id] == 0 {
				layer = append(layer, id)
			}
		}
		if len(layer) == 0 {
			break // everything left is on or behind a cycle
		}
		sort.Strings(layer)
		result.Layers = append(result.Layers, layer)
		for _, id := range layer {
			delete(remaining, id)
			for _, dep := range r.adj[id] {
				indegree[dep]--
			}
		}
	}

	for id := range remaining {
		result.Stranded = append(result.Stranded, id)
	}
	sort.Strings(result.Stranded)
	result.CriticalPath = len(result.Layers)
	result.IsAcyclic = len(result.Stranded) == 0
	return result
}
