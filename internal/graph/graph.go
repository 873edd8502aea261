package graph

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// NodeKind selects which executor variant runs a node.
type NodeKind string

const (
	KindText    NodeKind = "text"
	KindImage   NodeKind = "image"
	KindVideo   NodeKind = "video"
	KindLLM     NodeKind = "llm"
	KindCrop    NodeKind = "crop"
	KindExtract NodeKind = "extract"
)

// DefaultHandle is the key used when an edge carries no explicit target handle.
const DefaultHandle = "input"

// OutputHandle is the conventional source handle name.
const OutputHandle = "output"

// Workflow is the exported form of a graph.
type Workflow struct {
	Version int    `json:"version"`
	Name    string `json:"name,omitempty"`
	Nodes   []Node `json:"nodes"`
	Edges   []Edge `json:"edges"`
}

// Node is a single unit of work in a workflow.
// Data is kind-specific and otherwise opaque to the engine.
type Node struct {
	ID   string                 `json:"id"`
	Kind NodeKind               `json:"type"`
	Data map[string]interface{} `json:"data,omitempty"`
}

// Edge feeds the value produced at Source's SourceHandle into Target's TargetHandle.
type Edge struct {
	ID           string `json:"id"`
	Source       string `json:"source"`
	Target       string `json:"target"`
	SourceHandle string `json:"sourceHandle,omitempty"`
	TargetHandle string `json:"targetHandle,omitempty"`
}

// Inputs maps target handle names to upstream values.
type Inputs map[string]interface{}

// Outputs maps node ids to the value each node produced.
type Outputs map[string]interface{}

// String returns the string stored under key, or "" if absent or not a string.
func (n Node) String(key string) string {
	if n.Data == nil {
		return ""
	}
	s, _ := n.Data[key].(string)
	return s
}

// Float returns the numeric value stored under key, or def.
// Numeric strings are accepted.
func (n Node) Float(key string, def float64) float64 {
	if n.Data == nil {
		return def
	}
	v, ok := n.Data[key]
	if !ok || v == nil {
		return def
	}
	f, err := ToFloat(v)
	if err != nil {
		return def
	}
	return f
}

// OptionalFloat is like Float but reports whether the key held a number.
func (n Node) OptionalFloat(key string) (float64, bool) {
	if n.Data == nil {
		return 0, false
	}
	v, ok := n.Data[key]
	if !ok || v == nil {
		return 0, false
	}
	f, err := ToFloat(v)
	if err != nil {
		return 0, false
	}
	return f, true
}

// Bool returns the boolean stored under key.
func (n Node) Bool(key string) bool {
	if n.Data == nil {
		return false
	}
	switch v := n.Data[key].(type) {
	case bool:
		return v
	case string:
		b, _ := strconv.ParseBool(v)
		return b
	}
	return false
}

// ToFloat converts JSON-decoded numbers and numeric strings to float64.
func ToFloat(v interface{}) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, fmt.Errorf("not a number: %q", x)
		}
		return f, nil
	}
	return 0, fmt.Errorf("not a number: %v", v)
}

// NodeIDs returns the ids of nodes in order.
func NodeIDs(nodes []Node) []string {
	ids := make([]string, len(nodes))
	for i, n := range nodes {
		ids[i] = n.ID
	}
	return ids
}

// Subset filters nodes to the given ids, preserving the order of nodes.
// An empty ids list selects every node.
func Subset(nodes []Node, ids []string) []Node {
	if len(ids) == 0 {
		return nodes
	}
	want := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	out := make([]Node, 0, len(ids))
	for _, n := range nodes {
		if _, ok := want[n.ID]; ok {
			out = append(out, n)
		}
	}
	return out
}

// InternalEdges returns the edges whose endpoints are both in nodes.
func InternalEdges(nodes []Node, edges []Edge) []Edge {
	present := make(map[string]struct{}, len(nodes))
	for _, n := range nodes {
		present[n.ID] = struct{}{}
	}
	out := make([]Edge, 0, len(edges))
	for _, e := range edges {
		_, src := present[e.Source]
		_, tgt := present[e.Target]
		if src && tgt {
			out = append(out, e)
		}
	}
	return out
}
