package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Priyanshuthapliyal2005/weavy.ai-sub000/internal/events"
	"github.com/Priyanshuthapliyal2005/weavy.ai-sub000/internal/graph"
	"github.com/Priyanshuthapliyal2005/weavy.ai-sub000/internal/nodes"
)

// DefaultMaxConcurrency bounds how many nodes of one layer run at once.
const DefaultMaxConcurrency = 8

// sinkTimeout bounds how long a finished run may spend being persisted.
const sinkTimeout = 10 * time.Second

// NodeExecutor performs the work of a single node.
// This allows for testing with mock implementations.
type NodeExecutor interface {
	Execute(ctx context.Context, node graph.Node, inputs graph.Inputs) (interface{}, error)
}

// RunSink receives every finished run.
type RunSink interface {
	SaveRun(ctx context.Context, run *WorkflowRunResult) error
}

// Runner executes workflows. A Runner holds no per-run state and may be
// shared by concurrent runs.
type Runner struct {
	exec           NodeExecutor
	sink           RunSink
	observers      []func(*WorkflowRunResult)
	maxConcurrency int
}

// Option configures a Runner.
type Option func(*Runner)

// WithSink sets where finished runs are recorded.
func WithSink(s RunSink) Option {
	return func(r *Runner) { r.sink = s }
}

// WithObserver registers fn to be called with every finished run, before it
// is handed to the sink. fn must not modify the run.
func WithObserver(fn func(*WorkflowRunResult)) Option {
	return func(r *Runner) { r.observers = append(r.observers, fn) }
}

// WithMaxConcurrency bounds parallelism within a layer. n <= 0 means unbounded.
func WithMaxConcurrency(n int) Option {
	return func(r *Runner) { r.maxConcurrency = n }
}

// NewRunner creates a runner that dispatches nodes to exec.
func NewRunner(exec NodeExecutor, opts ...Option) *Runner {
	r := &Runner{exec: exec, maxConcurrency: DefaultMaxConcurrency}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RunOption adjusts a single run.
type RunOption func(*runConfig)

type runConfig struct {
	prior graph.Outputs
}

// WithPriorOutputs seeds the run with outputs produced earlier, so a subset
// run can consume values from upstream nodes it does not re-execute.
func WithPriorOutputs(outputs graph.Outputs) RunOption {
	return func(c *runConfig) { c.prior = outputs }
}

// run is the state owned by one execution.
type run struct {
	id        string
	mode      string
	edges     []graph.Edge
	started   time.Time
	outputs   graph.Outputs
	statuses  map[string]NodeStatus
	results   []ExecutionResult
	aggregate rollUp
}

func (r *Runner) prepare(nodes []graph.Node, edges []graph.Edge, selected []string, mode string, opts []RunOption) (*run, []graph.Node, error) {
	if err := graph.Validate(nodes, edges); err != nil {
		events.Emit("error", "graph.rejected", err.Error(), map[string]interface{}{
			"node_count": len(nodes),
			"edge_count": len(edges),
		})
		return nil, nil, fmt.Errorf("workflow rejected: %w", err)
	}

	var cfg runConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	subset := graph.Subset(nodes, selected)
	st := &run{
		id:       uuid.NewString(),
		mode:     mode,
		edges:    edges,
		started:  time.Now().UTC(),
		outputs:  graph.Outputs{},
		statuses: make(map[string]NodeStatus, len(subset)),
		results:  make([]ExecutionResult, 0, len(subset)),
	}
	for id, v := range cfg.prior {
		st.outputs[id] = v
	}

	events.Emit("info", "run.started", "", map[string]interface{}{
		"run_id":     st.id,
		"mode":       mode,
		"node_count": len(subset),
	})
	return st, subset, nil
}

// record stores a node result; only successful nodes publish an output.
func (st *run) record(res ExecutionResult) {
	st.results = append(st.results, res)
	st.statuses[res.NodeID] = res.Status
	st.aggregate.add(res.Status)
	if res.Status == NodeSuccess {
		st.outputs[res.NodeID] = res.Output
	}
}

// ExecuteWorkflow runs nodes one at a time in topological order. An empty
// selectedNodeIDs runs every node. A cyclic graph is rejected before anything
// executes; node failures never abort the run.
func (r *Runner) ExecuteWorkflow(ctx context.Context, nodes []graph.Node, edges []graph.Edge, selectedNodeIDs []string, opts ...RunOption) (*WorkflowRunResult, error) {
	st, subset, err := r.prepare(nodes, edges, selectedNodeIDs, "sequential", opts)
	if err != nil {
		return nil, err
	}

	order, err := graph.BuildExecutionOrder(subset, edges)
	if err != nil {
		return nil, err
	}

	for _, node := range order {
		st.record(r.executeNode(ctx, st.id, node, st.edges, st.outputs, st.statuses))
	}

	return r.finish(ctx, st), nil
}

// ExecuteLayered runs the workflow layer by layer, executing the nodes of
// each layer concurrently.
func (r *Runner) ExecuteLayered(ctx context.Context, nodes []graph.Node, edges []graph.Edge, selectedNodeIDs []string, opts ...RunOption) (*WorkflowRunResult, error) {
	st, subset, err := r.prepare(nodes, edges, selectedNodeIDs, "layered", opts)
	if err != nil {
		return nil, err
	}

	layers, err := graph.BuildExecutionLayers(subset, edges)
	if err != nil {
		return nil, err
	}

	for i, layer := range layers {
		state := &LayerState{Outputs: st.outputs, Statuses: st.statuses}
		for _, res := range r.executeLayer(ctx, st.id, i, layer, edges, state) {
			st.results = append(st.results, res)
			st.aggregate.add(res.Status)
		}
	}

	return r.finish(ctx, st), nil
}

func (r *Runner) finish(ctx context.Context, st *run) *WorkflowRunResult {
	completed := time.Now().UTC()
	result := &WorkflowRunResult{
		RunID:           st.id,
		Status:          st.aggregate.status(),
		NodeResults:     st.results,
		TotalDurationMs: completed.Sub(st.started).Milliseconds(),
		StartedAt:       st.started,
		CompletedAt:     completed,
	}

	counts := result.Counts()
	fields := map[string]interface{}{
		"run_id":      result.RunID,
		"mode":        st.mode,
		"status":      string(result.Status),
		"succeeded":   counts[NodeSuccess],
		"failed":      counts[NodeFailed],
		"skipped":     counts[NodeSkipped],
		"duration_ms": result.TotalDurationMs,
	}
	if result.Status == RunFailed {
		events.Emit("error", "run.failed", "", fields)
	} else {
		events.Emit("info", "run.completed", "", fields)
	}

	for _, observe := range r.observers {
		observe(result)
	}
	r.save(ctx, result)
	return result
}

// save hands the run to the sink. Persistence failures are reported but do
// not change the run's outcome.
func (r *Runner) save(ctx context.Context, result *WorkflowRunResult) {
	if r.sink == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sinkTimeout)
	defer cancel()

	if err := r.sink.SaveRun(ctx, result); err != nil {
		events.Emit("error", "system.error", "failed to persist run", map[string]interface{}{
			"run_id": result.RunID,
			"error":  err.Error(),
		})
		return
	}
	events.Emit("info", "run.persisted", "", map[string]interface{}{"run_id": result.RunID})
}

// blockedBy returns the first direct predecessor of nodeID whose status
// prevents it from running.
func blockedBy(nodeID string, edges []graph.Edge, statuses map[string]NodeStatus) (string, bool) {
	for _, e := range edges {
		if e.Target != nodeID {
			continue
		}
		if statuses[e.Source].blocksDependents() {
			return e.Source, true
		}
	}
	return "", false
}

func nodeFields(runID string, node graph.Node) map[string]interface{} {
	return map[string]interface{}{
		"run_id":  runID,
		"node_id": node.ID,
		"kind":    string(node.Kind),
	}
}

// executeNode produces the result for one node. outputs and statuses are
// only read.
func (r *Runner) executeNode(ctx context.Context, runID string, node graph.Node, edges []graph.Edge, outputs graph.Outputs, statuses map[string]NodeStatus) ExecutionResult {
	started := time.Now().UTC()
	res := ExecutionResult{NodeID: node.ID, Input: graph.Inputs{}, StartedAt: started}
	fields := nodeFields(runID, node)
	finish := func(level, event string) ExecutionResult {
		res.CompletedAt = time.Now().UTC()
		res.DurationMs = res.CompletedAt.Sub(started).Milliseconds()
		fields["duration_ms"] = res.DurationMs
		events.Emit(level, event, res.ErrorMessage(), fields)
		return res
	}

	if upstream, blocked := blockedBy(node.ID, edges, statuses); blocked {
		res.Status = NodeSkipped
		res.Error = stringPtr(SkippedDependencyMessage)
		fields["upstream"] = upstream
		return finish("warning", "node.skipped")
	}

	res.Input = graph.GetNodeInputs(node.ID, edges, outputs)

	if err := ctx.Err(); err != nil {
		res.Status = NodeFailed
		res.Error = stringPtr(abortMessage(err))
		fields["error_kind"] = string(nodes.KindTimeout)
		return finish("error", "node.failed")
	}

	events.Emit("info", "node.started", "", nodeFields(runID, node))

	out, err := r.exec.Execute(ctx, node, res.Input)
	if err != nil {
		res.Status = NodeFailed
		res.Error = stringPtr(nodes.TruncateMessage(err.Error()))
		fields["error_kind"] = string(nodes.KindOf(err))
		return finish("error", "node.failed")
	}

	res.Status = NodeSuccess
	res.Output = out
	return finish("info", "node.completed")
}

func abortMessage(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "Run timed out before this node started"
	}
	return "Run was cancelled before this node started"
}
