package graph

// adjacency builds a source-keyed adjacency list. The returned order slice lists
// every id that appears in edges, in first-seen order.
func adjacency(edges []Edge) (map[string][]string, []string) {
	adj := make(map[string][]string)
	seen := make(map[string]struct{})
	var order []string
	visit := func(id string) {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			order = append(order, id)
		}
	}
	for _, e := range edges {
		visit(e.Source)
		visit(e.Target)
		adj[e.Source] = append(adj[e.Source], e.Target)
	}
	return adj, order
}

// HasCycle reports whether edges, viewed as a directed graph, contain a cycle.
// Ids without outgoing edges are leaves.
func HasCycle(edges []Edge) bool {
	adj, order := adjacency(edges)
	visited := make(map[string]bool, len(order))
	onStack := make(map[string]bool)

	var dfs func(id string) bool
	dfs = func(id string) bool {
		visited[id] = true
		onStack[id] = true
		for _, next := range adj[id] {
			if onStack[next] {
				return true
			}
			if !visited[next] && dfs(next) {
				return true
			}
		}
		onStack[id] = false
		return false
	}

	for _, id := range order {
		if !visited[id] && dfs(id) {
			return true
		}
	}
	return false
}

// WouldCreateCycle reports whether adding sourceID -> targetID to existing would create a cycle.
func WouldCreateCycle(sourceID, targetID string, existing []Edge) bool {
	candidate := make([]Edge, 0, len(existing)+1)
	candidate = append(candidate, existing...)
	candidate = append(candidate, Edge{Source: sourceID, Target: targetID})
	return HasCycle(candidate)
}

// IsValidConnection reports whether an edge sourceID -> targetID may be drawn.
// It performs no I/O and is cheap enough to call on every drag gesture.
func IsValidConnection(sourceID, targetID string, edges []Edge) bool {
	if sourceID == targetID {
		return false
	}
	return !WouldCreateCycle(sourceID, targetID, edges)
}

// NodesThatWouldCreateCycle returns every candidate target in allNodeIDs that
// cannot be connected from sourceID.
func NodesThatWouldCreateCycle(sourceID string, edges []Edge, allNodeIDs []string) []string {
	var out []string
	for _, id := range allNodeIDs {
		if id == sourceID || WouldCreateCycle(sourceID, id, edges) {
			out = append(out, id)
		}
	}
	return out
}

// NodesThatDependOn returns the ids reachable downstream of targetID, in DFS order.
// targetID itself is not included.
func NodesThatDependOn(targetID string, edges []Edge) []string {
	adj, _ := adjacency(edges)
	visited := map[string]bool{targetID: true}
	var out []string

	var dfs func(id string)
	dfs = func(id string) {
		for _, next := range adj[id] {
			if visited[next] {
				continue
			}
			visited[next] = true
			out = append(out, next)
			dfs(next)
		}
	}
	dfs(targetID)
	return out
}
