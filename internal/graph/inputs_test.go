package graph

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestGetNodeInputs_BindsByTargetHandle(t *testing.T) {
	edges := []Edge{
		{ID: "e1", Source: "text", Target: "llm", SourceHandle: "output", TargetHandle: "prompt"},
		{ID: "e2", Source: "sys", Target: "llm", SourceHandle: "output", TargetHandle: "system_prompt"},
		{ID: "e3", Source: "img1", Target: "llm", TargetHandle: "image_1"},
		{ID: "e4", Source: "img2", Target: "llm", TargetHandle: "image_2"},
		{ID: "e5", Source: "text", Target: "other", TargetHandle: "prompt"},
	}
	outputs := Outputs{
		"text": "hello",
		"sys":  "be brief",
		"img1": "https://cdn/1.png",
		"img2": "https://cdn/2.png",
	}

	got := GetNodeInputs("llm", edges, outputs)
	want := Inputs{
		"prompt":        "hello",
		"system_prompt": "be brief",
		"image_1":       "https://cdn/1.png",
		"image_2":       "https://cdn/2.png",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("unexpected inputs (-want +got):\n%s", diff)
	}
}

func TestGetNodeInputs_OmitsMissingUpstream(t *testing.T) {
	edges := []Edge{
		{Source: "done", Target: "n", TargetHandle: "prompt"},
		{Source: "failed", Target: "n", TargetHandle: "system_prompt"},
	}
	got := GetNodeInputs("n", edges, Outputs{"done": "x"})
	if _, ok := got["system_prompt"]; ok {
		t.Error("expected system_prompt to be omitted when upstream has no output")
	}
	if got["prompt"] != "x" {
		t.Errorf("expected prompt 'x', got %v", got["prompt"])
	}
}

func TestGetNodeInputs_DefaultHandle(t *testing.T) {
	edges := []Edge{{Source: "a", Target: "b"}}
	got := GetNodeInputs("b", edges, Outputs{"a": "v"})
	if got[DefaultHandle] != "v" {
		t.Errorf("expected value under %q, got %v", DefaultHandle, got)
	}
}

func TestGetNodeInputs_DuplicateHandleGetsNumberedVariant(t *testing.T) {
	edges := []Edge{
		{Source: "a", Target: "llm", TargetHandle: "system_prompt"},
		{Source: "b", Target: "llm", TargetHandle: "system_prompt"},
		{Source: "c", Target: "llm", TargetHandle: "system_prompt"},
	}
	got := GetNodeInputs("llm", edges, Outputs{"a": "A", "b": "B", "c": "C"})
	want := Inputs{"system_prompt": "A", "system_prompt_2": "B", "system_prompt_3": "C"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("unexpected inputs (-want +got):\n%s", diff)
	}
}

func TestGetNodeInputs_Idempotent(t *testing.T) {
	edges := []Edge{
		{Source: "a", Target: "n", TargetHandle: "image_1"},
		{Source: "b", Target: "n", TargetHandle: "image_1"},
	}
	outputs := Outputs{"a": "1", "b": "2"}

	first := GetNodeInputs("n", edges, outputs)
	second := GetNodeInputs("n", edges, outputs)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("repeated calls differ (-first +second):\n%s", diff)
	}
	if len(outputs) != 2 {
		t.Errorf("expected outputs untouched, got %v", outputs)
	}
}

func TestHandleFamily(t *testing.T) {
	inputs := Inputs{
		"image_10":  "j",
		"image_2":   "b",
		"image":     "a",
		"image_1":   "x",
		"image_1_2": "y",
		"imagery":   "no",
		"image_x":   "no",
		"prompt":    "no",
	}
	got := HandleFamily(inputs, "image")
	want := []string{"image", "image_1", "image_1_2", "image_2", "image_10"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("unexpected family (-want +got):\n%s", diff)
	}
}
