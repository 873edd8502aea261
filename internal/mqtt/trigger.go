package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/Priyanshuthapliyal2005/weavy.ai-sub000/internal/events"
	"github.com/Priyanshuthapliyal2005/weavy.ai-sub000/internal/graph"
	"github.com/Priyanshuthapliyal2005/weavy.ai-sub000/internal/orchestrator"
)

// DefaultRunTimeout bounds a run started from MQTT.
const DefaultRunTimeout = 10 * time.Minute

// Run modes accepted in a RunRequest.
const (
	ModeSequential = "sequential"
	ModeLayered    = "layered"
)

// RunRequest is the payload accepted on <prefix>/runs/request.
type RunRequest struct {
	RequestID       string         `json:"requestId,omitempty"`
	Workflow        graph.Workflow `json:"workflow"`
	SelectedNodeIDs []string       `json:"selectedNodeIds,omitempty"`
	Mode            string         `json:"mode,omitempty"`
	PriorOutputs    graph.Outputs  `json:"priorOutputs,omitempty"`
}

// RunRejection is published on <prefix>/runs/rejected when a request cannot run.
type RunRejection struct {
	RequestID string `json:"requestId,omitempty"`
	Error     string `json:"error"`
}

// broker is the subset of Client the trigger needs.
type broker interface {
	Subscribe(topic string, handler paho.MessageHandler) error
	Unsubscribe(topics ...string) error
	Publish(topic string, payload []byte) error
	Topic(parts ...string) string
}

// RunTrigger starts workflow runs from MQTT requests and publishes each
// result on <prefix>/runs/result/<runId>.
type RunTrigger struct {
	client  broker
	runner  *orchestrator.Runner
	timeout time.Duration

	mu      sync.Mutex
	stopped bool
	wg      sync.WaitGroup
}

// NewRunTrigger creates a trigger. timeout <= 0 uses DefaultRunTimeout.
func NewRunTrigger(client broker, runner *orchestrator.Runner, timeout time.Duration) *RunTrigger {
	if timeout <= 0 {
		timeout = DefaultRunTimeout
	}
	return &RunTrigger{client: client, runner: runner, timeout: timeout}
}

// RequestTopic is the topic run requests arrive on.
func (t *RunTrigger) RequestTopic() string {
	return t.client.Topic("runs", "request")
}

// Start subscribes to the request topic. Runs execute in the background
// under ctx until Stop is called.
func (t *RunTrigger) Start(ctx context.Context) error {
	return t.client.Subscribe(t.RequestTopic(), func(_ paho.Client, msg paho.Message) {
		payload := append([]byte(nil), msg.Payload()...)
		t.mu.Lock()
		defer t.mu.Unlock()
		if t.stopped {
			return
		}
		t.wg.Add(1)
		go func() {
			defer t.wg.Done()
			t.Handle(ctx, payload)
		}()
	})
}

// Stop drops requests that arrive from now on and unsubscribes from the
// request topic. Runs already started keep going; use Wait for them.
func (t *RunTrigger) Stop() error {
	t.mu.Lock()
	t.stopped = true
	t.mu.Unlock()

	return t.client.Unsubscribe(t.RequestTopic())
}

// Wait blocks until every in-flight run has finished. Call Stop first.
func (t *RunTrigger) Wait() {
	t.wg.Wait()
}

// Handle executes one run request synchronously.
func (t *RunTrigger) Handle(ctx context.Context, payload []byte) {
	var req RunRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		t.reject(req.RequestID, fmt.Errorf("invalid run request: %w", err))
		return
	}
	if req.Mode == "" {
		req.Mode = ModeSequential
	}

	events.Emit("info", "trigger.received", "", map[string]interface{}{
		"request_id": req.RequestID,
		"mode":       req.Mode,
		"node_count": len(req.Workflow.Nodes),
	})

	execute := t.runner.ExecuteWorkflow
	switch req.Mode {
	case ModeSequential:
	case ModeLayered:
		execute = t.runner.ExecuteLayered
	default:
		t.reject(req.RequestID, fmt.Errorf("unknown run mode %q", req.Mode))
		return
	}

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	run, err := execute(ctx, req.Workflow.Nodes, req.Workflow.Edges, req.SelectedNodeIDs,
		orchestrator.WithPriorOutputs(req.PriorOutputs))
	if err != nil {
		t.reject(req.RequestID, err)
		return
	}

	b, err := json.Marshal(run)
	if err != nil {
		t.reject(req.RequestID, err)
		return
	}
	if err := t.client.Publish(t.client.Topic("runs", "result", run.RunID), b); err != nil {
		events.Emit("error", "system.error", "failed to publish run result", map[string]interface{}{
			"run_id": run.RunID,
			"error":  err.Error(),
		})
	}
}

func (t *RunTrigger) reject(requestID string, err error) {
	events.Emit("warning", "trigger.rejected", err.Error(), map[string]interface{}{
		"request_id": requestID,
	})
	b, _ := json.Marshal(RunRejection{RequestID: requestID, Error: err.Error()})
	if perr := t.client.Publish(t.client.Topic("runs", "rejected"), b); perr != nil {
		events.Emit("error", "system.error", "failed to publish run rejection", map[string]interface{}{
			"request_id": requestID,
			"error":      perr.Error(),
		})
	}
}
