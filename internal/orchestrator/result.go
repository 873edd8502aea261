package orchestrator

import (
	"time"

	"github.com/Priyanshuthapliyal2005/weavy.ai-sub000/internal/graph"
)

// ExecutionResult records what happened to a single node during a run.
type ExecutionResult struct {
	NodeID      string       `json:"nodeId"`
	Status      NodeStatus   `json:"status"`
	Input       graph.Inputs `json:"input"`
	Output      interface{}  `json:"output"`
	Error       *string      `json:"error"`
	DurationMs  int64        `json:"durationMs"`
	StartedAt   time.Time    `json:"startedAt"`
	CompletedAt time.Time    `json:"completedAt"`
}

// ErrorMessage returns the recorded error, or "".
func (r ExecutionResult) ErrorMessage() string {
	if r.Error == nil {
		return ""
	}
	return *r.Error
}

// WorkflowRunResult is the record of one execution of a workflow.
type WorkflowRunResult struct {
	RunID           string            `json:"runId"`
	Status          RunStatus         `json:"status"`
	NodeResults     []ExecutionResult `json:"nodeResults"`
	TotalDurationMs int64             `json:"totalDurationMs"`
	StartedAt       time.Time         `json:"startedAt"`
	CompletedAt     time.Time         `json:"completedAt"`
}

// Result returns the result recorded for nodeID.
func (r *WorkflowRunResult) Result(nodeID string) (ExecutionResult, bool) {
	for _, res := range r.NodeResults {
		if res.NodeID == nodeID {
			return res, true
		}
	}
	return ExecutionResult{}, false
}

// Counts returns the number of node results per status.
func (r *WorkflowRunResult) Counts() map[NodeStatus]int {
	counts := make(map[NodeStatus]int, 3)
	for _, res := range r.NodeResults {
		counts[res.Status]++
	}
	return counts
}

func stringPtr(s string) *string {
	return &s
}
