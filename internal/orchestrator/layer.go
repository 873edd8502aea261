package orchestrator

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/Priyanshuthapliyal2005/weavy.ai-sub000/internal/events"
	"github.com/Priyanshuthapliyal2005/weavy.ai-sub000/internal/graph"
)

// LayerState is what is already known when a layer starts: the outputs and
// statuses recorded by earlier layers. ExecuteLayer adds the layer's own
// results to it once every node has finished.
type LayerState struct {
	Outputs  graph.Outputs         `json:"outputs"`
	Statuses map[string]NodeStatus `json:"statuses"`
}

func (s *LayerState) init() {
	if s.Outputs == nil {
		s.Outputs = graph.Outputs{}
	}
	if s.Statuses == nil {
		s.Statuses = make(map[string]NodeStatus)
	}
}

// ExecuteLayer runs the nodes of one layer concurrently and waits for all of
// them. A node with a failed or skipped direct predecessor is skipped
// without being executed. Results are returned in layer order.
func (r *Runner) ExecuteLayer(ctx context.Context, layer []graph.Node, edges []graph.Edge, state *LayerState) []ExecutionResult {
	if state == nil {
		state = &LayerState{}
	}
	return r.executeLayer(ctx, "", 0, layer, edges, state)
}

func (r *Runner) executeLayer(ctx context.Context, runID string, index int, layer []graph.Node, edges []graph.Edge, state *LayerState) []ExecutionResult {
	state.init()
	events.Emit("info", "layer.started", "", map[string]interface{}{
		"run_id": runID,
		"layer":  index,
		"nodes":  graph.NodeIDs(layer),
	})

	results := make([]ExecutionResult, len(layer))
	var g errgroup.Group
	if r.maxConcurrency > 0 {
		g.SetLimit(r.maxConcurrency)
	}
	for i, node := range layer {
		g.Go(func() error {
			results[i] = r.executeNode(ctx, runID, node, edges, state.Outputs, state.Statuses)
			return nil
		})
	}
	g.Wait()

	var failed int
	for _, res := range results {
		state.Statuses[res.NodeID] = res.Status
		if res.Status == NodeSuccess {
			state.Outputs[res.NodeID] = res.Output
		} else {
			failed++
		}
	}

	events.Emit("info", "layer.completed", "", map[string]interface{}{
		"run_id":     runID,
		"layer":      index,
		"node_count": len(layer),
		"not_ok":     failed,
	})
	return results
}
