package graph

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// CurrentVersion is the workflow export format version.
const CurrentVersion = 1

// ErrUnsupportedVersion is returned when importing a workflow of another format version.
var ErrUnsupportedVersion = errors.New("unsupported workflow version")

// LoadWorkflow loads a workflow from a JSON file.
func LoadWorkflow(path string) (*Workflow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read workflow file: %w", err)
	}
	return Import(data)
}

// Import parses an exported workflow.
func Import(data []byte) (*Workflow, error) {
	var wf Workflow
	if err := json.Unmarshal(data, &wf); err != nil {
		return nil, fmt.Errorf("failed to parse workflow JSON: %w", err)
	}

	if wf.Version != CurrentVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, wf.Version)
	}
	if wf.Nodes == nil {
		wf.Nodes = []Node{}
	}
	if wf.Edges == nil {
		wf.Edges = []Edge{}
	}

	return &wf, nil
}

// Export serializes a workflow, stamping the current format version.
func Export(wf Workflow) ([]byte, error) {
	wf.Version = CurrentVersion
	if wf.Nodes == nil {
		wf.Nodes = []Node{}
	}
	if wf.Edges == nil {
		wf.Edges = []Edge{}
	}
	data, err := json.MarshalIndent(wf, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal workflow: %w", err)
	}
	return data, nil
}
