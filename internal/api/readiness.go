package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
)

// readinessState tracks the dependencies /ready reports on. A dependency
// marked optional does not hold readiness back when it is unavailable.
type readinessState struct {
	mu                sync.RWMutex
	orchestratorReady bool
	mqttConnected     bool
	mqttOptional      bool
	postgresConnected bool
	postgresOptional  bool
}

var readiness = &readinessState{}

// CheckResult is the state of a single dependency.
type CheckResult struct {
	Status   string `json:"status"`
	Optional bool   `json:"optional,omitempty"`
}

// ReadinessResponse is the body returned by /ready.
type ReadinessResponse struct {
	Ready       bool                   `json:"ready"`
	Checks      map[string]CheckResult `json:"checks"`
	NotReadyMsg string                 `json:"message,omitempty"`
}

// SetOrchestratorReady records whether a workflow runner is available.
func SetOrchestratorReady(ready bool) {
	readiness.mu.Lock()
	defer readiness.mu.Unlock()
	readiness.orchestratorReady = ready
}

// SetMQTTState records the broker connection state.
func SetMQTTState(connected, optional bool) {
	readiness.mu.Lock()
	defer readiness.mu.Unlock()
	readiness.mqttConnected = connected
	readiness.mqttOptional = optional
}

// SetPostgresState records the database connection state.
func SetPostgresState(connected, optional bool) {
	readiness.mu.Lock()
	defer readiness.mu.Unlock()
	readiness.postgresConnected = connected
	readiness.postgresOptional = optional
}

func dependencyCheck(name string, connected, optional bool, reasons *[]string) CheckResult {
	switch {
	case connected:
		return CheckResult{Status: "ok", Optional: optional}
	case optional:
		return CheckResult{Status: "unavailable", Optional: true}
	default:
		*reasons = append(*reasons, name+" not connected")
		return CheckResult{Status: "not_ready"}
	}
}

func readyHandler(w http.ResponseWriter, r *http.Request) {
	readiness.mu.RLock()
	state := readinessState{
		orchestratorReady: readiness.orchestratorReady,
		mqttConnected:     readiness.mqttConnected,
		mqttOptional:      readiness.mqttOptional,
		postgresConnected: readiness.postgresConnected,
		postgresOptional:  readiness.postgresOptional,
	}
	readiness.mu.RUnlock()

	var reasons []string
	checks := make(map[string]CheckResult, 3)
	if state.orchestratorReady {
		checks["orchestrator"] = CheckResult{Status: "ok"}
	} else {
		checks["orchestrator"] = CheckResult{Status: "not_ready"}
		reasons = append(reasons, "workflow runner not configured")
	}
	checks["mqtt"] = dependencyCheck("mqtt", state.mqttConnected, state.mqttOptional, &reasons)
	checks["postgres"] = dependencyCheck("postgres", state.postgresConnected, state.postgresOptional, &reasons)

	resp := ReadinessResponse{
		Ready:       len(reasons) == 0,
		Checks:      checks,
		NotReadyMsg: strings.Join(reasons, "; "),
	}

	w.Header().Set("Content-Type", "application/json")
	if !resp.Ready {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(resp)
}
