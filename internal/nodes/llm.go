package nodes

import (
	"context"
	"errors"
	"strings"

	"github.com/Priyanshuthapliyal2005/weavy.ai-sub000/internal/events"
	"github.com/Priyanshuthapliyal2005/weavy.ai-sub000/internal/graph"
)

// ErrMissingPrompt is reported when nothing is connected to an llm node's prompt handle.
var ErrMissingPrompt = errors.New("LLM node requires a prompt: connect a text node to the prompt input")

const (
	promptHandle       = "prompt"
	systemPromptHandle = "system_prompt"
	imageHandle        = "image"
)

func (e *Executor) executeLLM(ctx context.Context, node graph.Node, inputs graph.Inputs) (interface{}, error) {
	prompt := joinFamily(inputs, promptHandle)
	if strings.TrimSpace(prompt) == "" {
		return nil, &NodeError{Kind: KindValidation, Message: ErrMissingPrompt.Error(), Err: ErrMissingPrompt}
	}
	if e.text == nil {
		return nil, &NodeError{Kind: KindExternal, Message: "LLM provider is not configured"}
	}

	req := GenerateRequest{
		Model:        node.String("model"),
		SystemPrompt: joinFamily(inputs, systemPromptHandle),
		UserMessage:  prompt,
		Thinking:     node.Bool("thinking"),
	}
	if req.Model == "" {
		req.Model = e.defaultModel
	}
	if t, ok := node.OptionalFloat("temperature"); ok {
		req.Temperature = &t
	}
	for _, key := range graph.HandleFamily(inputs, imageHandle) {
		req.Images = append(req.Images, stringList(inputs[key])...)
	}

	ctx, cancel := context.WithTimeout(ctx, e.llmTimeout)
	defer cancel()

	out, err := callWithRetry(ctx, e, node, func(ctx context.Context) (string, error) {
		return e.text.Generate(ctx, req)
	})
	if err != nil {
		// Throttling is surfaced as a soft success so callers keep going.
		if IsRateLimit(err) && !IsTimeout(err) {
			events.Emit("warning", "node.rate_limited", "", map[string]interface{}{
				"node_id": node.ID,
				"model":   req.Model,
				"error":   TruncateMessage(err.Error()),
			})
			return RateLimitMessage, nil
		}
		return nil, externalFailure("LLM request", e.llmTimeout, err)
	}
	return NormalizeOutput(out), nil
}

// joinFamily concatenates the non-empty values bound to a handle family.
func joinFamily(inputs graph.Inputs, prefix string) string {
	var parts []string
	for _, key := range graph.HandleFamily(inputs, prefix) {
		s := NormalizeOutput(stringValue(inputs[key]))
		if strings.TrimSpace(s) != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "\n\n")
}
