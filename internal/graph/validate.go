package graph

import (
	"errors"
	"fmt"

	"github.com/hashicorp/go-multierror"
)

var (
	// ErrCycle is returned when a graph contains a directed cycle.
	ErrCycle = errors.New("workflow contains a cycle")
	// ErrSelfLoop is returned for an edge whose source equals its target.
	ErrSelfLoop = errors.New("edge connects a node to itself")
)

// Validate is the gate a graph must pass before it is persisted or executed.
// Every self-loop is reported, followed by ErrCycle if the rest of the graph
// is cyclic. The result wraps each problem so errors.Is works on it.
func Validate(nodes []Node, edges []Edge) error {
	var result *multierror.Error

	checked := make([]Edge, 0, len(edges))
	for _, e := range edges {
		if e.Source == e.Target {
			result = multierror.Append(result, fmt.Errorf("edge %s on node %s: %w", e.ID, e.Source, ErrSelfLoop))
			continue
		}
		checked = append(checked, e)
	}

	if HasCycle(InternalEdges(nodes, checked)) {
		result = multierror.Append(result, ErrCycle)
	}

	return result.ErrorOrNil()
}
