package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/hashicorp/go-multierror"

	"github.com/Priyanshuthapliyal2005/weavy.ai-sub000/internal/events"
	"github.com/Priyanshuthapliyal2005/weavy.ai-sub000/internal/graph"
	"github.com/Priyanshuthapliyal2005/weavy.ai-sub000/internal/orchestrator"
	"github.com/Priyanshuthapliyal2005/weavy.ai-sub000/internal/storage/postgres"
)

// Run modes accepted by /workflows/run.
const (
	ModeSequential = "sequential"
	ModeLayered    = "layered"
)

// WorkflowRequest carries a graph and an optional subset of node ids.
type WorkflowRequest struct {
	Nodes           []graph.Node `json:"nodes"`
	Edges           []graph.Edge `json:"edges"`
	SelectedNodeIDs []string     `json:"selectedNodeIds,omitempty"`
}

// RunRequest is the body of /workflows/run.
type RunRequest struct {
	WorkflowRequest
	Mode         string        `json:"mode,omitempty"`
	PriorOutputs graph.Outputs `json:"priorOutputs,omitempty"`
}

// LayerRunRequest is the body of /workflows/layer/run.
type LayerRunRequest struct {
	Layer []graph.Node            `json:"layer"`
	Edges []graph.Edge            `json:"edges"`
	State orchestrator.LayerState `json:"state"`
}

// LayerRunResponse holds the layer's results and the state to pass to the
// next layer.
type LayerRunResponse struct {
	Results []orchestrator.ExecutionResult `json:"results"`
	State   orchestrator.LayerState        `json:"state"`
}

type ValidateResponse struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors,omitempty"`
}

type OrderResponse struct {
	Order       []string `json:"order"`
	Unscheduled []string `json:"unscheduled,omitempty"`
}

type LayersResponse struct {
	Layers      [][]string `json:"layers"`
	Unscheduled []string   `json:"unscheduled,omitempty"`
}

// ConnectionRequest asks whether edges may be drawn from Source.
type ConnectionRequest struct {
	Source  string       `json:"source"`
	Target  string       `json:"target,omitempty"`
	Edges   []graph.Edge `json:"edges"`
	NodeIDs []string     `json:"nodeIds,omitempty"`
}

type ConnectionResponse struct {
	Valid bool `json:"valid"`
}

type CandidatesResponse struct {
	Blocked    []string `json:"blocked"`
	Downstream []string `json:"downstream"`
}

// problems flattens a validation error into one line per problem.
func problems(err error) []string {
	var merr *multierror.Error
	if errors.As(err, &merr) {
		out := make([]string, len(merr.Errors))
		for i, e := range merr.Errors {
			out[i] = e.Error()
		}
		return out
	}
	return []string{err.Error()}
}

func validateHandler(w http.ResponseWriter, r *http.Request) {
	var req WorkflowRequest
	if !decodeBody(w, r, &req) {
		return
	}

	fields := map[string]interface{}{
		"node_count": len(req.Nodes),
		"edge_count": len(req.Edges),
	}
	if err := graph.Validate(req.Nodes, req.Edges); err != nil {
		events.Emit("warning", "graph.rejected", err.Error(), fields)
		writeJSON(w, http.StatusOK, ValidateResponse{Valid: false, Errors: problems(err)})
		return
	}
	events.Emit("info", "graph.validated", "", fields)
	writeJSON(w, http.StatusOK, ValidateResponse{Valid: true})
}

// unscheduled reports the ids an incomplete schedule left out. Any other
// error is returned unchanged.
func unscheduled(err error) ([]string, error) {
	var inc *graph.IncompleteScheduleError
	if errors.As(err, &inc) {
		return inc.Unscheduled, nil
	}
	return nil, err
}

func orderHandler(w http.ResponseWriter, r *http.Request) {
	var req WorkflowRequest
	if !decodeBody(w, r, &req) {
		return
	}

	order, err := graph.BuildExecutionOrder(graph.Subset(req.Nodes, req.SelectedNodeIDs), req.Edges)
	resp := OrderResponse{Order: graph.NodeIDs(order)}
	if err == nil {
		writeJSON(w, http.StatusOK, resp)
		return
	}
	left, err := unscheduled(err)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	resp.Unscheduled = left
	writeJSON(w, http.StatusUnprocessableEntity, resp)
}

func layersHandler(w http.ResponseWriter, r *http.Request) {
	var req WorkflowRequest
	if !decodeBody(w, r, &req) {
		return
	}

	layers, err := graph.BuildExecutionLayers(graph.Subset(req.Nodes, req.SelectedNodeIDs), req.Edges)
	resp := LayersResponse{Layers: graph.LayerIDs(layers)}
	if err == nil {
		writeJSON(w, http.StatusOK, resp)
		return
	}
	left, err := unscheduled(err)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	resp.Unscheduled = left
	writeJSON(w, http.StatusUnprocessableEntity, resp)
}

func runHandler(w http.ResponseWriter, r *http.Request) {
	if runner == nil {
		writeError(w, http.StatusServiceUnavailable, "workflow runner not configured")
		return
	}
	var req RunRequest
	if !decodeBody(w, r, &req) {
		return
	}

	execute := runner.ExecuteWorkflow
	switch req.Mode {
	case "", ModeSequential:
	case ModeLayered:
		execute = runner.ExecuteLayered
	default:
		writeError(w, http.StatusBadRequest, "unknown run mode: "+req.Mode)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), runTimeout)
	defer cancel()

	run, err := execute(ctx, req.Nodes, req.Edges, req.SelectedNodeIDs, orchestrator.WithPriorOutputs(req.PriorOutputs))
	if err != nil {
		if errors.Is(err, graph.ErrCycle) || errors.Is(err, graph.ErrSelfLoop) {
			writeError(w, http.StatusUnprocessableEntity, "workflow rejected", problems(err)...)
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func layerRunHandler(w http.ResponseWriter, r *http.Request) {
	if runner == nil {
		writeError(w, http.StatusServiceUnavailable, "workflow runner not configured")
		return
	}
	var req LayerRunRequest
	if !decodeBody(w, r, &req) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), runTimeout)
	defer cancel()

	results := runner.ExecuteLayer(ctx, req.Layer, req.Edges, &req.State)
	writeJSON(w, http.StatusOK, LayerRunResponse{Results: results, State: req.State})
}

func connectionValidateHandler(w http.ResponseWriter, r *http.Request) {
	var req ConnectionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Source == "" || req.Target == "" {
		writeError(w, http.StatusBadRequest, "source and target required")
		return
	}
	writeJSON(w, http.StatusOK, ConnectionResponse{
		Valid: graph.IsValidConnection(req.Source, req.Target, req.Edges),
	})
}

func connectionCandidatesHandler(w http.ResponseWriter, r *http.Request) {
	var req ConnectionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Source == "" {
		writeError(w, http.StatusBadRequest, "source required")
		return
	}
	resp := CandidatesResponse{
		Blocked:    graph.NodesThatWouldCreateCycle(req.Source, req.Edges, req.NodeIDs),
		Downstream: graph.NodesThatDependOn(req.Source, req.Edges),
	}
	if resp.Blocked == nil {
		resp.Blocked = []string{}
	}
	if resp.Downstream == nil {
		resp.Downstream = []string{}
	}
	writeJSON(w, http.StatusOK, resp)
}

func listRunsHandler(w http.ResponseWriter, r *http.Request) {
	if runStore == nil {
		writeError(w, http.StatusServiceUnavailable, "run storage not configured")
		return
	}
	runs, err := runStore.ListRuns(r.Context(), queryLimit(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if runs == nil {
		runs = []postgres.RunSummary{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func getRunHandler(w http.ResponseWriter, r *http.Request) {
	if runStore == nil {
		writeError(w, http.StatusServiceUnavailable, "run storage not configured")
		return
	}
	run, err := runStore.GetRun(r.Context(), r.PathValue("id"))
	if errors.Is(err, postgres.ErrRunNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func runEventsHandler(w http.ResponseWriter, r *http.Request) {
	if runStore == nil {
		writeError(w, http.StatusServiceUnavailable, "run storage not configured")
		return
	}
	rows, err := runStore.Query(r.Context(), r.PathValue("id"), queryLimit(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if rows == nil {
		rows = []postgres.EventRow{}
	}
	writeJSON(w, http.StatusOK, rows)
}
