package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func setReadiness(orchestrator, mqtt, mqttOptional, pg, pgOptional bool) {
	readiness.mu.Lock()
	defer readiness.mu.Unlock()
	readiness.orchestratorReady = orchestrator
	readiness.mqttConnected = mqtt
	readiness.mqttOptional = mqttOptional
	readiness.postgresConnected = pg
	readiness.postgresOptional = pgOptional
}

func TestHealthEndpoint(t *testing.T) {
	clearTLSEnv(t)
	w := httptest.NewRecorder()

	healthHandler(w, httptest.NewRequest("GET", "/health", nil))

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}
	var resp HealthResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Status != "ok" || resp.Version == "" {
		t.Errorf("unexpected health response: %+v", resp)
	}
}

func TestReadyEndpoint(t *testing.T) {
	tests := []struct {
		name         string
		orchestrator bool
		mqtt         bool
		mqttOptional bool
		pg           bool
		pgOptional   bool
		wantCode     int
		wantChecks   map[string]string
	}{
		{
			name:         "all ready",
			orchestrator: true, mqtt: true, pg: true,
			wantCode:   http.StatusOK,
			wantChecks: map[string]string{"orchestrator": "ok", "mqtt": "ok", "postgres": "ok"},
		},
		{
			name: "runner missing",
			mqtt: true, pg: true,
			wantCode:   http.StatusServiceUnavailable,
			wantChecks: map[string]string{"orchestrator": "not_ready"},
		},
		{
			name:         "optional mqtt unavailable",
			orchestrator: true, mqttOptional: true, pg: true,
			wantCode:   http.StatusOK,
			wantChecks: map[string]string{"mqtt": "unavailable"},
		},
		{
			name:         "required mqtt down",
			orchestrator: true, pg: true,
			wantCode:   http.StatusServiceUnavailable,
			wantChecks: map[string]string{"mqtt": "not_ready"},
		},
		{
			name:         "optional postgres unavailable",
			orchestrator: true, mqtt: true, pgOptional: true,
			wantCode:   http.StatusOK,
			wantChecks: map[string]string{"postgres": "unavailable"},
		},
		{
			name:       "several problems",
			pg:         true,
			wantCode:   http.StatusServiceUnavailable,
			wantChecks: map[string]string{"orchestrator": "not_ready", "mqtt": "not_ready", "postgres": "ok"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setReadiness(tt.orchestrator, tt.mqtt, tt.mqttOptional, tt.pg, tt.pgOptional)
			w := httptest.NewRecorder()

			readyHandler(w, httptest.NewRequest("GET", "/ready", nil))

			if w.Code != tt.wantCode {
				t.Errorf("status = %d, want %d", w.Code, tt.wantCode)
			}
			var resp ReadinessResponse
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if resp.Ready != (tt.wantCode == http.StatusOK) {
				t.Errorf("ready = %v", resp.Ready)
			}
			if !resp.Ready && resp.NotReadyMsg == "" {
				t.Error("expected a message explaining why the engine is not ready")
			}
			for name, want := range tt.wantChecks {
				if got := resp.Checks[name].Status; got != want {
					t.Errorf("%s = %q, want %q", name, got, want)
				}
			}
		})
	}
}

func TestReadyOptionalFlagReported(t *testing.T) {
	setReadiness(true, false, true, false, true)
	w := httptest.NewRecorder()
	readyHandler(w, httptest.NewRequest("GET", "/ready", nil))

	var resp ReadinessResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if !resp.Checks["mqtt"].Optional || !resp.Checks["postgres"].Optional {
		t.Errorf("optional flags not reported: %+v", resp.Checks)
	}
}

func TestSetReadinessState(t *testing.T) {
	SetOrchestratorReady(true)
	SetMQTTState(false, true)
	SetPostgresState(true, false)

	readiness.mu.RLock()
	defer readiness.mu.RUnlock()
	if !readiness.orchestratorReady {
		t.Error("SetOrchestratorReady(true) didn't set state")
	}
	if readiness.mqttConnected || !readiness.mqttOptional {
		t.Error("SetMQTTState(false, true) didn't set state correctly")
	}
	if !readiness.postgresConnected || readiness.postgresOptional {
		t.Error("SetPostgresState(true, false) didn't set state correctly")
	}
}

func TestSetRunnerMarksOrchestratorReady(t *testing.T) {
	t.Cleanup(func() { SetRunner(nil) })

	SetRunner(nil)
	readiness.mu.RLock()
	ready := readiness.orchestratorReady
	readiness.mu.RUnlock()
	if ready {
		t.Error("nil runner reported ready")
	}

	SetRunner(newTestRunner())
	readiness.mu.RLock()
	ready = readiness.orchestratorReady
	readiness.mu.RUnlock()
	if !ready {
		t.Error("runner not reported ready")
	}
}
