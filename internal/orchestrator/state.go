package orchestrator

// NodeStatus is the outcome of one node in a run.
type NodeStatus string

const (
	NodeSuccess NodeStatus = "success"
	NodeFailed  NodeStatus = "failed"
	NodeSkipped NodeStatus = "skipped"
)

// RunStatus is the roll-up of every node outcome in a run.
type RunStatus string

const (
	RunSuccess RunStatus = "success"
	RunFailed  RunStatus = "failed"
	RunPartial RunStatus = "partial"
)

// SkippedDependencyMessage is the error recorded on a node whose upstream failed or was skipped.
const SkippedDependencyMessage = "Skipped due to failed dependency"

// blocksDependents reports whether s prevents downstream nodes from running.
func (s NodeStatus) blocksDependents() bool {
	return s == NodeFailed || s == NodeSkipped
}

// rollUp tracks the aggregate run status as node results arrive. Once a
// failure or skip is seen the run can never return to success.
type rollUp struct {
	succeeded int
	other     int
}

func (r *rollUp) add(s NodeStatus) {
	if s == NodeSuccess {
		r.succeeded++
		return
	}
	r.other++
}

func (r rollUp) status() RunStatus {
	switch {
	case r.other == 0:
		return RunSuccess
	case r.succeeded == 0:
		return RunFailed
	}
	return RunPartial
}
