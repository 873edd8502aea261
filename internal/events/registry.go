package events

import "fmt"

var allowedEvents = map[string]struct{}{
	// run
	"run.started":   {},
	"run.completed": {},
	"run.failed":    {},
	"run.persisted": {},

	// layer
	"layer.started":   {},
	"layer.completed": {},

	// node
	"node.started":      {},
	"node.completed":    {},
	"node.failed":       {},
	"node.skipped":      {},
	"node.retrying":     {},
	"node.rate_limited": {},

	// graph
	"graph.validated": {},
	"graph.rejected":  {},

	// trigger
	"trigger.received": {},
	"trigger.rejected": {},

	// system
	"system.startup":  {},
	"system.shutdown": {},
	"system.error":    {},
}

func Validate(event string) error {
	if _, ok := allowedEvents[event]; !ok {
		return fmt.Errorf("unknown event: %s", event)
	}
	return nil
}
