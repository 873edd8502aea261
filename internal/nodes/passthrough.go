package nodes

import (
	"context"

	"github.com/Priyanshuthapliyal2005/weavy.ai-sub000/internal/graph"
)

// executeText returns the node's literal text.
func executeText(_ context.Context, node graph.Node, _ graph.Inputs) (interface{}, error) {
	text := node.String("text")
	if text == "" {
		text = node.String("content")
	}
	return NormalizeOutput(text), nil
}

// executeMedia returns the node's stored media URL. legacyKey is the older
// per-kind field name still found in exported workflows.
func executeMedia(legacyKey string) Handler {
	return func(_ context.Context, node graph.Node, _ graph.Inputs) (interface{}, error) {
		url := node.String("url")
		if url == "" {
			url = node.String(legacyKey)
		}
		return NormalizeOutput(url), nil
	}
}
