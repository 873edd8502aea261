package nodes

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Priyanshuthapliyal2005/weavy.ai-sub000/internal/events"
	"github.com/Priyanshuthapliyal2005/weavy.ai-sub000/internal/graph"
)

// DefaultLLMTimeout bounds one LLM node, retries included.
const DefaultLLMTimeout = 60 * time.Second

// DefaultModel is used when an llm node names no model.
const DefaultModel = "gpt-4o-mini"

// GenerateRequest is what an llm node asks the text-generation capability for.
type GenerateRequest struct {
	Model        string   `json:"model"`
	SystemPrompt string   `json:"systemPrompt,omitempty"`
	UserMessage  string   `json:"userMessage"`
	Images       []string `json:"images,omitempty"`
	Temperature  *float64 `json:"temperature,omitempty"`
	Thinking     bool     `json:"thinking,omitempty"`
}

// TextGenerator is the external text-generation capability.
type TextGenerator interface {
	Generate(ctx context.Context, req GenerateRequest) (string, error)
}

// CropRequest crops ImageURL to a rectangle given in percentages of the source.
type CropRequest struct {
	ImageURL      string  `json:"imageUrl"`
	XPercent      float64 `json:"xPercent"`
	YPercent      float64 `json:"yPercent"`
	WidthPercent  float64 `json:"widthPercent"`
	HeightPercent float64 `json:"heightPercent"`
}

// ExtractRequest grabs the frame of VideoURL at Timestamp seconds.
type ExtractRequest struct {
	VideoURL  string  `json:"videoUrl"`
	Timestamp float64 `json:"timestamp"`
}

// MediaTransformer is the external media-transform capability.
type MediaTransformer interface {
	Crop(ctx context.Context, req CropRequest) (string, error)
	ExtractFrame(ctx context.Context, req ExtractRequest) (string, error)
	Duration(ctx context.Context, videoURL string) (float64, error)
}

// Handler performs the work of one node kind.
type Handler func(ctx context.Context, node graph.Node, inputs graph.Inputs) (interface{}, error)

// Executor dispatches nodes to the handler registered for their kind.
type Executor struct {
	text         TextGenerator
	media        MediaTransformer
	retry        RetryPolicy
	llmTimeout   time.Duration
	defaultModel string
	handlers     map[graph.NodeKind]Handler
}

// Option configures an Executor.
type Option func(*Executor)

func WithTextGenerator(g TextGenerator) Option {
	return func(e *Executor) { e.text = g }
}

func WithMediaTransformer(m MediaTransformer) Option {
	return func(e *Executor) { e.media = m }
}

func WithRetryPolicy(p RetryPolicy) Option {
	return func(e *Executor) { e.retry = p }
}

func WithLLMTimeout(d time.Duration) Option {
	return func(e *Executor) {
		if d > 0 {
			e.llmTimeout = d
		}
	}
}

func WithDefaultModel(model string) Option {
	return func(e *Executor) {
		if model != "" {
			e.defaultModel = model
		}
	}
}

// New returns an Executor with the built-in node kinds registered.
func New(opts ...Option) *Executor {
	e := &Executor{
		retry:        DefaultRetryPolicy(),
		llmTimeout:   DefaultLLMTimeout,
		defaultModel: DefaultModel,
		handlers:     make(map[graph.NodeKind]Handler),
	}
	for _, opt := range opts {
		opt(e)
	}

	e.Register(graph.KindText, executeText)
	e.Register(graph.KindImage, executeMedia("imageUrl"))
	e.Register(graph.KindVideo, executeMedia("videoUrl"))
	e.Register(graph.KindLLM, e.executeLLM)
	e.Register(graph.KindCrop, e.executeCrop)
	e.Register(graph.KindExtract, e.executeExtract)
	return e
}

// Register installs h for kind, replacing any existing handler.
func (e *Executor) Register(kind graph.NodeKind, h Handler) {
	e.handlers[kind] = h
}

// Execute runs node with its resolved inputs. Every failure is returned as a
// *NodeError with a bounded, user-facing message.
func (e *Executor) Execute(ctx context.Context, node graph.Node, inputs graph.Inputs) (interface{}, error) {
	h, ok := e.handlers[node.Kind]
	if !ok {
		return nil, &NodeError{
			Kind:    KindUnknownNode,
			Message: TruncateMessage(fmt.Sprintf("Unknown node type: %s", node.Kind)),
		}
	}

	out, err := h(ctx, node, inputs)
	if err == nil {
		return out, nil
	}

	var ne *NodeError
	if !errors.As(err, &ne) {
		ne = &NodeError{Kind: KindOf(err), Message: err.Error(), Err: err}
	}
	ne.Message = TruncateMessage(ne.Message)
	return nil, ne
}

// callWithRetry wraps an external call with the retry policy and reports
// each retry as a node.retrying event.
func callWithRetry[T any](ctx context.Context, e *Executor, node graph.Node, op func(context.Context) (T, error)) (T, error) {
	return retry(ctx, e.retry, op, func(attempt int, err error, wait time.Duration) {
		events.Emit("warning", "node.retrying", "", map[string]interface{}{
			"node_id": node.ID,
			"kind":    string(node.Kind),
			"attempt": attempt,
			"wait_ms": wait.Milliseconds(),
			"error":   err.Error(),
		})
	})
}

// externalFailure turns the final error of an external call into a NodeError.
func externalFailure(what string, timeout time.Duration, err error) *NodeError {
	if IsTimeout(err) {
		msg := what + " timed out"
		if timeout > 0 {
			msg = fmt.Sprintf("%s timed out after %s", what, timeout)
		}
		return &NodeError{Kind: KindTimeout, Message: msg, Err: err}
	}
	if IsRateLimit(err) {
		return &NodeError{Kind: KindRateLimit, Message: what + " was rate limited: " + RateLimitMessage, Err: err}
	}
	return &NodeError{Kind: KindExternal, Message: what + " failed: " + err.Error(), Err: err}
}
