package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/Priyanshuthapliyal2005/weavy.ai-sub000/internal/graph"
	"github.com/Priyanshuthapliyal2005/weavy.ai-sub000/internal/nodes"
)

// scriptedExecutor returns "out:<id>" for every node unless told otherwise.
type scriptedExecutor struct {
	mu     sync.Mutex
	calls  []string
	inputs map[string]graph.Inputs
	fail   map[string]error
}

func (s *scriptedExecutor) Execute(_ context.Context, node graph.Node, inputs graph.Inputs) (interface{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, node.ID)
	if s.inputs == nil {
		s.inputs = make(map[string]graph.Inputs)
	}
	s.inputs[node.ID] = inputs
	if err, ok := s.fail[node.ID]; ok {
		return nil, err
	}
	return "out:" + node.ID, nil
}

type recordingSink struct {
	runs []*WorkflowRunResult
	err  error
}

func (s *recordingSink) SaveRun(_ context.Context, run *WorkflowRunResult) error {
	s.runs = append(s.runs, run)
	return s.err
}

type fakeText struct {
	reply string
	err   error
}

func (f fakeText) Generate(context.Context, nodes.GenerateRequest) (string, error) {
	return f.reply, f.err
}

func node(id string, kind graph.NodeKind) graph.Node {
	return graph.Node{ID: id, Kind: kind}
}

func edge(src, tgt string) graph.Edge {
	return graph.Edge{ID: src + "-" + tgt, Source: src, Target: tgt, SourceHandle: graph.OutputHandle}
}

func statuses(run *WorkflowRunResult) map[string]NodeStatus {
	out := make(map[string]NodeStatus, len(run.NodeResults))
	for _, r := range run.NodeResults {
		out[r.NodeID] = r.Status
	}
	return out
}

func TestTextFeedsLLM(t *testing.T) {
	exec := nodes.New(
		nodes.WithTextGenerator(fakeText{reply: "hi there"}),
		nodes.WithRetryPolicy(nodes.RetryPolicy{MaxAttempts: 1, InitialInterval: time.Millisecond}),
	)
	wf := []graph.Node{
		{ID: "text", Kind: graph.KindText, Data: map[string]interface{}{"text": "hello"}},
		{ID: "llm", Kind: graph.KindLLM},
	}
	edges := []graph.Edge{{ID: "e1", Source: "text", Target: "llm", SourceHandle: "output", TargetHandle: "prompt"}}

	run, err := NewRunner(exec).ExecuteWorkflow(context.Background(), wf, edges, nil)
	if err != nil {
		t.Fatalf("ExecuteWorkflow: %v", err)
	}

	if len(run.NodeResults) != 2 {
		t.Fatalf("expected 2 results, got %d", len(run.NodeResults))
	}
	text, _ := run.Result("text")
	if text.Output != "hello" {
		t.Errorf("text output = %v", text.Output)
	}
	llm, _ := run.Result("llm")
	if diff := cmp.Diff(graph.Inputs{"prompt": "hello"}, llm.Input); diff != "" {
		t.Errorf("llm input mismatch (-want +got):\n%s", diff)
	}
	if llm.Output != "hi there" || llm.Error != nil {
		t.Errorf("llm result = %+v", llm)
	}
	if run.Status != RunSuccess {
		t.Errorf("status = %s", run.Status)
	}
	if run.RunID == "" {
		t.Error("missing run id")
	}
}

func TestRateLimitedLLMSucceeds(t *testing.T) {
	exec := nodes.New(nodes.WithTextGenerator(fakeText{err: errors.New("429 Too Many Requests")}))
	wf := []graph.Node{
		{ID: "text", Kind: graph.KindText, Data: map[string]interface{}{"text": "hello"}},
		{ID: "llm", Kind: graph.KindLLM},
	}
	edges := []graph.Edge{{ID: "e1", Source: "text", Target: "llm", TargetHandle: "prompt"}}

	run, err := NewRunner(exec).ExecuteWorkflow(context.Background(), wf, edges, nil)
	if err != nil {
		t.Fatalf("ExecuteWorkflow: %v", err)
	}
	llm, _ := run.Result("llm")
	if llm.Status != NodeSuccess || llm.Error != nil {
		t.Errorf("llm result = %+v", llm)
	}
	if llm.Output != nodes.RateLimitMessage {
		t.Errorf("llm output = %v", llm.Output)
	}
	if run.Status != RunSuccess {
		t.Errorf("status = %s", run.Status)
	}
}

func TestFailedNodeSkipsChain(t *testing.T) {
	exec := &scriptedExecutor{fail: map[string]error{"a": errors.New("boom")}}
	wf := []graph.Node{node("a", graph.KindText), node("b", graph.KindText), node("c", graph.KindText)}
	edges := []graph.Edge{edge("a", "b"), edge("b", "c")}

	run, err := NewRunner(exec).ExecuteWorkflow(context.Background(), wf, edges, nil)
	if err != nil {
		t.Fatalf("ExecuteWorkflow: %v", err)
	}

	want := map[string]NodeStatus{"a": NodeFailed, "b": NodeSkipped, "c": NodeSkipped}
	if diff := cmp.Diff(want, statuses(run)); diff != "" {
		t.Errorf("statuses mismatch (-want +got):\n%s", diff)
	}
	for _, id := range []string{"b", "c"} {
		res, _ := run.Result(id)
		if res.ErrorMessage() != SkippedDependencyMessage {
			t.Errorf("%s error = %q", id, res.ErrorMessage())
		}
		if res.Output != nil {
			t.Errorf("%s has output %v", id, res.Output)
		}
	}
	if diff := cmp.Diff([]string{"a"}, exec.calls); diff != "" {
		t.Errorf("skipped nodes were executed (-want +got):\n%s", diff)
	}
	if run.Status != RunFailed {
		t.Errorf("status = %s, want failed with zero successes", run.Status)
	}
}

func TestFailureWithSuccessIsPartial(t *testing.T) {
	exec := &scriptedExecutor{fail: map[string]error{"a": errors.New("boom")}}
	wf := []graph.Node{node("a", graph.KindText), node("b", graph.KindText), node("d", graph.KindText)}
	edges := []graph.Edge{edge("a", "b")}

	run, err := NewRunner(exec).ExecuteWorkflow(context.Background(), wf, edges, nil)
	if err != nil {
		t.Fatalf("ExecuteWorkflow: %v", err)
	}
	// d runs after the failure; the run must not revert to success.
	if run.Status != RunPartial {
		t.Errorf("status = %s", run.Status)
	}
	if res, _ := run.Result("d"); res.Status != NodeSuccess {
		t.Errorf("independent node d = %s", res.Status)
	}
}

func TestNodeErrorMessageIsBounded(t *testing.T) {
	exec := &scriptedExecutor{fail: map[string]error{"a": errors.New(strings.Repeat("x", 1000))}}
	run, err := NewRunner(exec).ExecuteWorkflow(context.Background(), []graph.Node{node("a", graph.KindText)}, nil, nil)
	if err != nil {
		t.Fatalf("ExecuteWorkflow: %v", err)
	}
	msg := run.NodeResults[0].ErrorMessage()
	if len(msg) != nodes.MaxErrorLength || !strings.HasSuffix(msg, "...") {
		t.Errorf("error not truncated: %d chars", len(msg))
	}
}

func TestCyclicWorkflowRejected(t *testing.T) {
	exec := &scriptedExecutor{}
	wf := []graph.Node{node("a", graph.KindText), node("b", graph.KindText)}
	edges := []graph.Edge{edge("a", "b"), edge("b", "a")}

	for name, fn := range map[string]func(context.Context, []graph.Node, []graph.Edge, []string, ...RunOption) (*WorkflowRunResult, error){
		"sequential": NewRunner(exec).ExecuteWorkflow,
		"layered":    NewRunner(exec).ExecuteLayered,
	} {
		run, err := fn(context.Background(), wf, edges, nil)
		if !errors.Is(err, graph.ErrCycle) {
			t.Errorf("%s: expected ErrCycle, got %v", name, err)
		}
		if run != nil {
			t.Errorf("%s: expected no run record", name)
		}
	}
	if len(exec.calls) != 0 {
		t.Errorf("executor called for a cyclic graph: %v", exec.calls)
	}
}

func TestEmptyWorkflowSucceeds(t *testing.T) {
	run, err := NewRunner(&scriptedExecutor{}).ExecuteWorkflow(context.Background(), nil, nil, nil)
	if err != nil {
		t.Fatalf("ExecuteWorkflow: %v", err)
	}
	if run.Status != RunSuccess || len(run.NodeResults) != 0 {
		t.Errorf("got %+v", run)
	}
}

func TestSubsetUsesPriorOutputs(t *testing.T) {
	exec := &scriptedExecutor{}
	wf := []graph.Node{node("a", graph.KindText), node("b", graph.KindText), node("c", graph.KindText)}
	edges := []graph.Edge{
		{ID: "ab", Source: "a", Target: "b", TargetHandle: "prompt"},
		{ID: "bc", Source: "b", Target: "c"},
	}

	run, err := NewRunner(exec).ExecuteWorkflow(context.Background(), wf, edges, []string{"c", "b"},
		WithPriorOutputs(graph.Outputs{"a": "cached"}))
	if err != nil {
		t.Fatalf("ExecuteWorkflow: %v", err)
	}

	if diff := cmp.Diff([]string{"b", "c"}, exec.calls); diff != "" {
		t.Errorf("execution order mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(graph.Inputs{"prompt": "cached"}, exec.inputs["b"]); diff != "" {
		t.Errorf("b inputs mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(graph.Inputs{"input": "out:b"}, exec.inputs["c"]); diff != "" {
		t.Errorf("c inputs mismatch (-want +got):\n%s", diff)
	}
	if len(run.NodeResults) != 2 {
		t.Errorf("expected 2 results, got %d", len(run.NodeResults))
	}
}

func TestCancelledRunFailsRemainingNodes(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	exec := &scriptedExecutor{}
	wf := []graph.Node{node("a", graph.KindText), node("b", graph.KindText)}
	run, err := NewRunner(exec).ExecuteWorkflow(ctx, wf, []graph.Edge{edge("a", "b")}, nil)
	if err != nil {
		t.Fatalf("ExecuteWorkflow: %v", err)
	}

	a, _ := run.Result("a")
	if a.Status != NodeFailed || !strings.Contains(a.ErrorMessage(), "cancelled") {
		t.Errorf("a = %+v", a)
	}
	if b, _ := run.Result("b"); b.Status != NodeSkipped {
		t.Errorf("b = %s", b.Status)
	}
	if len(exec.calls) != 0 {
		t.Errorf("executor called after cancellation")
	}
	if run.Status != RunFailed {
		t.Errorf("status = %s", run.Status)
	}
}

func TestSinkReceivesRun(t *testing.T) {
	sink := &recordingSink{err: errors.New("database unavailable")}
	run, err := NewRunner(&scriptedExecutor{}, WithSink(sink)).ExecuteWorkflow(context.Background(), []graph.Node{node("a", graph.KindText)}, nil, nil)
	if err != nil {
		t.Fatalf("ExecuteWorkflow: %v", err)
	}
	if len(sink.runs) != 1 || sink.runs[0] != run {
		t.Fatalf("sink got %v", sink.runs)
	}
	if run.Status != RunSuccess {
		t.Errorf("sink failure changed status to %s", run.Status)
	}
}

func TestObserversSeeEveryRun(t *testing.T) {
	var seen []RunStatus
	r := NewRunner(&scriptedExecutor{fail: map[string]error{"b": errors.New("boom")}},
		WithObserver(func(run *WorkflowRunResult) { seen = append(seen, run.Status) }))

	if _, err := r.ExecuteWorkflow(context.Background(), []graph.Node{node("a", graph.KindText)}, nil, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := r.ExecuteLayered(context.Background(), []graph.Node{node("b", graph.KindText)}, nil, nil); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]RunStatus{RunSuccess, RunFailed}, seen); diff != "" {
		t.Errorf("observed statuses mismatch (-want +got):\n%s", diff)
	}
}

func TestResultJSONShape(t *testing.T) {
	res := ExecutionResult{NodeID: "a", Status: NodeSuccess, Input: graph.Inputs{}, Output: "x"}
	b, err := json.Marshal(res)
	if err != nil {
		t.Fatal(err)
	}
	var got map[string]interface{}
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"nodeId", "status", "input", "output", "error", "durationMs", "startedAt", "completedAt"} {
		if _, ok := got[key]; !ok {
			t.Errorf("missing key %q in %s", key, b)
		}
	}
	if got["error"] != nil {
		t.Errorf("error should be null, got %v", got["error"])
	}
}

func TestRollUp(t *testing.T) {
	tests := []struct {
		in   []NodeStatus
		want RunStatus
	}{
		{nil, RunSuccess},
		{[]NodeStatus{NodeSuccess, NodeSuccess}, RunSuccess},
		{[]NodeStatus{NodeFailed}, RunFailed},
		{[]NodeStatus{NodeFailed, NodeSkipped}, RunFailed},
		{[]NodeStatus{NodeSuccess, NodeSkipped}, RunPartial},
		{[]NodeStatus{NodeFailed, NodeSuccess}, RunPartial},
	}
	for _, tt := range tests {
		var r rollUp
		for _, s := range tt.in {
			r.add(s)
		}
		if got := r.status(); got != tt.want {
			t.Errorf("rollUp(%v) = %s, want %s", tt.in, got, tt.want)
		}
	}
}
