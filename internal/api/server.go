package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/Priyanshuthapliyal2005/weavy.ai-sub000/internal/events"
	"github.com/Priyanshuthapliyal2005/weavy.ai-sub000/internal/orchestrator"
	"github.com/Priyanshuthapliyal2005/weavy.ai-sub000/internal/storage/postgres"
	"github.com/Priyanshuthapliyal2005/weavy.ai-sub000/internal/version"
)

// DefaultRunTimeout bounds a run started over HTTP.
const DefaultRunTimeout = 10 * time.Minute

const (
	maxBodyBytes    = 8 << 20
	shutdownTimeout = 15 * time.Second
)

// RunStore reads back persisted runs and their events.
type RunStore interface {
	ListRuns(ctx context.Context, limit int) ([]postgres.RunSummary, error)
	GetRun(ctx context.Context, runID string) (*orchestrator.WorkflowRunResult, error)
	Query(ctx context.Context, runID string, limit int) ([]postgres.EventRow, error)
}

var (
	runner     *orchestrator.Runner
	runStore   RunStore
	runTimeout = DefaultRunTimeout
)

// SetRunner sets the runner used by the run endpoints. The orchestrator
// readiness check follows it.
func SetRunner(r *orchestrator.Runner) {
	runner = r
	SetOrchestratorReady(r != nil)
}

// SetRunStore sets where /runs reads from. Without a store those endpoints
// answer 503.
func SetRunStore(s RunStore) {
	runStore = s
}

// SetRunTimeout bounds every run started over HTTP.
func SetRunTimeout(d time.Duration) {
	if d > 0 {
		runTimeout = d
	}
}

type HealthResponse struct {
	Status    string `json:"status"`
	Service   string `json:"service"`
	Version   string `json:"version"`
	Hostname  string `json:"hostname"`
	Timestamp string `json:"ts"`
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	host, _ := os.Hostname()
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Service:   "workflow-engine",
		Version:   version.Version,
		Hostname:  host,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	})
}

// eventsHandler returns the buffered events, optionally only those of one run.
func eventsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, events.RunEvents(r.URL.Query().Get("run_id"), 0))
}

func clearEventsHandler(w http.ResponseWriter, r *http.Request) {
	events.Clear()
	w.WriteHeader(http.StatusNoContent)
}

// ErrorResponse is the body of every non-2xx JSON reply.
type ErrorResponse struct {
	Error   string   `json:"error"`
	Details []string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string, details ...string) {
	writeJSON(w, status, ErrorResponse{Error: msg, Details: details})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON", err.Error())
		return false
	}
	return true
}

func queryLimit(r *http.Request) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil {
		return 0
	}
	return n
}

// NewMux builds the HTTP routes. Run and admin endpoints go through basic
// auth when credentials are configured.
func NewMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", healthHandler)
	mux.HandleFunc("GET /ready", readyHandler)
	mux.HandleFunc("GET /events", eventsHandler)
	mux.HandleFunc("POST /events/clear", RequireAdmin(clearEventsHandler))
	mux.HandleFunc("GET /ws/events", wsEventsHandler)
	mux.Handle("GET /metrics", metricsHandler())

	mux.HandleFunc("POST /workflows/validate", validateHandler)
	mux.HandleFunc("POST /workflows/order", orderHandler)
	mux.HandleFunc("POST /workflows/layers", layersHandler)
	mux.HandleFunc("POST /workflows/run", RequireAnyRole(runHandler))
	mux.HandleFunc("POST /workflows/layer/run", RequireAnyRole(layerRunHandler))
	mux.HandleFunc("POST /connections/validate", connectionValidateHandler)
	mux.HandleFunc("POST /connections/candidates", connectionCandidatesHandler)

	mux.HandleFunc("GET /runs", RequireAnyRole(listRunsHandler))
	mux.HandleFunc("GET /runs/{id}", RequireAnyRole(getRunHandler))
	mux.HandleFunc("GET /runs/{id}/events", RequireAnyRole(runEventsHandler))
	return mux
}

// ListenAndServe serves the API on the given port until ctx is cancelled,
// then shuts down gracefully. TLS is used when InitTLS found a certificate.
func ListenAndServe(ctx context.Context, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           NewMux(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if tlsCfg := LoadTLSConfig(); tlsCfg != nil {
			srv.TLSConfig = tlsCfg
			log.Printf("API listening on %s (TLS)\n", srv.Addr)
			errCh <- srv.ListenAndServeTLS("", "")
			return
		}
		log.Printf("API listening on %s\n", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	events.CloseAllSubscribers()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
