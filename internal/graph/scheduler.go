package graph

import (
	"fmt"
	"sort"
	"strings"
)

// IncompleteScheduleError is returned alongside a partial schedule when some
// nodes could never reach in-degree zero (a cycle or a reference the caller
// should have rejected earlier).
type IncompleteScheduleError struct {
	Unscheduled []string
}

func (e *IncompleteScheduleError) Error() string {
	return fmt.Sprintf("schedule incomplete: %d node(s) unreachable: %s",
		len(e.Unscheduled), strings.Join(e.Unscheduled, ", "))
}

// kahn holds the in-degree state for one scheduling call. In-degree counts only
// edges whose endpoints are both in the node set being scheduled.
type kahn struct {
	nodes  []Node
	indeg  []int
	out    [][]int
	placed []bool
}

func newKahn(nodes []Node, edges []Edge) *kahn {
	index := make(map[string]int, len(nodes))
	for i, n := range nodes {
		index[n.ID] = i
	}
	k := &kahn{
		nodes:  nodes,
		indeg:  make([]int, len(nodes)),
		out:    make([][]int, len(nodes)),
		placed: make([]bool, len(nodes)),
	}
	for _, e := range edges {
		src, ok := index[e.Source]
		if !ok {
			continue
		}
		tgt, ok := index[e.Target]
		if !ok {
			continue
		}
		k.out[src] = append(k.out[src], tgt)
		k.indeg[tgt]++
	}
	return k
}

func (k *kahn) roots() []int {
	var ready []int
	for i, d := range k.indeg {
		if d == 0 {
			ready = append(ready, i)
		}
	}
	return ready
}

// release marks i as placed and returns the successors that became ready,
// ordered by their position in the input node list.
func (k *kahn) release(i int) []int {
	k.placed[i] = true
	var ready []int
	for _, next := range k.out[i] {
		k.indeg[next]--
		if k.indeg[next] == 0 {
			ready = append(ready, next)
		}
	}
	sort.Ints(ready)
	return ready
}

func (k *kahn) incomplete() error {
	var missing []string
	for i, ok := range k.placed {
		if !ok {
			missing = append(missing, k.nodes[i].ID)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return &IncompleteScheduleError{Unscheduled: missing}
}

// BuildExecutionOrder returns nodes in an order where every edge u->v has u
// before v. Nodes that become eligible together keep their input order.
//
// If some nodes cannot be scheduled the partial order is returned together
// with an *IncompleteScheduleError.
func BuildExecutionOrder(nodes []Node, edges []Edge) ([]Node, error) {
	k := newKahn(nodes, edges)
	queue := k.roots()
	order := make([]Node, 0, len(nodes))

	for len(queue) > 0 {
		i := queue[0]
		queue = queue[1:]
		order = append(order, nodes[i])
		queue = append(queue, k.release(i)...)
	}
	return order, k.incomplete()
}

// BuildExecutionLayers partitions nodes into layers. Layer k holds exactly the
// nodes whose upstream dependencies all sit in layers 0..k-1, so nodes in one
// layer may run concurrently. Each layer lists nodes in input order.
//
// Layer production stops early, with an *IncompleteScheduleError, when the
// remaining nodes have no in-degree zero member.
func BuildExecutionLayers(nodes []Node, edges []Edge) ([][]Node, error) {
	k := newKahn(nodes, edges)
	current := k.roots()
	var layers [][]Node

	for len(current) > 0 {
		layer := make([]Node, 0, len(current))
		var next []int
		for _, i := range current {
			layer = append(layer, nodes[i])
			next = append(next, k.release(i)...)
		}
		sort.Ints(next)
		layers = append(layers, layer)
		current = next
	}
	return layers, k.incomplete()
}

// LayerIDs flattens layers to node ids.
func LayerIDs(layers [][]Node) [][]string {
	out := make([][]string, len(layers))
	for i, layer := range layers {
		out[i] = NodeIDs(layer)
	}
	return out
}
