package api

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/Priyanshuthapliyal2005/weavy.ai-sub000/internal/orchestrator"
)

// Alert severity levels
const (
	SeverityCritical = "critical"
	SeverityWarning  = "warning"
	SeverityInfo     = "info"
)

// Alert event types
const (
	AlertMQTTDisconnected    = "mqtt_disconnected"
	AlertPostgresUnavailable = "postgres_unavailable"
	AlertRunFailedEvent      = "run_failed"
)

const webhookTimeout = 10 * time.Second

// AlertPayload is the JSON structure sent to the webhook.
type AlertPayload struct {
	Instance  string                 `json:"instance"`
	Event     string                 `json:"event"`
	Timestamp string                 `json:"timestamp"`
	Severity  string                 `json:"severity"`
	Message   string                 `json:"message,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// outageWatch raises an alert once a dependency has been down for longer
// than delay, and a recovery notice when it comes back.
type outageWatch struct {
	event    string
	severity string
	label    string
	delay    time.Duration
	since    time.Time
	alerted  bool
	up       bool
}

var (
	alertMu       sync.Mutex
	webhookURL    string
	alertsActive  bool
	mqttWatch     = &outageWatch{event: AlertMQTTDisconnected, severity: SeverityWarning, label: "MQTT broker", delay: 30 * time.Second, up: true}
	postgresWatch = &outageWatch{event: AlertPostgresUnavailable, severity: SeverityCritical, label: "PostgreSQL", delay: 5 * time.Second, up: true}
	sendFunc      = postWebhook
)

// InitAlerts reads the webhook URL and the outage delays from the environment.
func InitAlerts() {
	alertMu.Lock()
	defer alertMu.Unlock()

	webhookURL = os.Getenv("WEAVY_ALERT_WEBHOOK_URL")
	mqttWatch.delay = envDuration("WEAVY_MQTT_ALERT_DELAY", mqttWatch.delay)
	postgresWatch.delay = envDuration("WEAVY_POSTGRES_ALERT_DELAY", postgresWatch.delay)

	for _, w := range []*outageWatch{mqttWatch, postgresWatch} {
		w.up, w.alerted, w.since = true, false, time.Time{}
	}
	alertsActive = true

	if webhookURL != "" {
		log.Printf("Alerts enabled: webhook URL configured (mqtt_delay=%s, pg_delay=%s)",
			mqttWatch.delay, postgresWatch.delay)
	}
}

func envDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

// GetAlertWebhookURL returns the configured webhook URL.
func GetAlertWebhookURL() string {
	alertMu.Lock()
	defer alertMu.Unlock()
	return webhookURL
}

// SendAlert posts an alert to the webhook without blocking the caller. With
// no webhook configured the alert is only logged.
func SendAlert(event, severity, message string, details map[string]interface{}) {
	alertMu.Lock()
	url := webhookURL
	send := sendFunc
	alertMu.Unlock()

	if url == "" {
		log.Printf("[ALERT] %s severity=%s msg=%q details=%v", event, severity, message, details)
		return
	}

	instance := GetInstanceName()
	if instance == "" {
		instance = "unknown"
	}
	payload := AlertPayload{
		Instance:  instance,
		Event:     event,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Severity:  severity,
		Message:   message,
		Details:   details,
	}
	go send(url, payload)
}

func postWebhook(url string, payload AlertPayload) {
	body, err := json.Marshal(payload)
	if err != nil {
		log.Printf("alert: failed to marshal payload: %v", err)
		return
	}

	client := &http.Client{Timeout: webhookTimeout}
	resp, err := client.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		log.Printf("alert: webhook POST failed: %v", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		log.Printf("alert: webhook returned status %d", resp.StatusCode)
	}
}

// observe updates the watch with the current state. It returns the alert to
// send, if any. Callers hold alertMu.
func (w *outageWatch) observe(connected bool, now time.Time) (severity, message string, details map[string]interface{}) {
	if connected {
		recovered := !w.up && w.alerted
		w.up, w.alerted, w.since = true, false, time.Time{}
		if recovered {
			return SeverityInfo, w.label + " connection restored", map[string]interface{}{
				"recovered_at": now.UTC().Format(time.RFC3339),
			}
		}
		return "", "", nil
	}

	if w.up {
		w.since = now
	}
	w.up = false

	down := now.Sub(w.since)
	if w.alerted || down < w.delay {
		return "", "", nil
	}
	w.alerted = true
	return w.severity, w.label + " unavailable", map[string]interface{}{
		"disconnected_since":   w.since.UTC().Format(time.RFC3339),
		"disconnected_seconds": int(down.Seconds()),
	}
}

func checkWatch(w *outageWatch, connected bool) {
	alertMu.Lock()
	if !alertsActive {
		alertMu.Unlock()
		return
	}
	severity, message, details := w.observe(connected, time.Now())
	alertMu.Unlock()

	if message != "" {
		SendAlert(w.event, severity, message, details)
	}
}

// CheckAndAlertMQTT feeds the current broker state to the MQTT outage watch.
func CheckAndAlertMQTT(connected bool) {
	checkWatch(mqttWatch, connected)
}

// CheckAndAlertPostgres feeds the current database state to the Postgres
// outage watch.
func CheckAndAlertPostgres(connected bool) {
	checkWatch(postgresWatch, connected)
}

// AlertRunFailed raises a warning for a run in which no node succeeded.
func AlertRunFailed(run *orchestrator.WorkflowRunResult) {
	counts := run.Counts()
	details := map[string]interface{}{
		"run_id":      run.RunID,
		"failed":      counts[orchestrator.NodeFailed],
		"skipped":     counts[orchestrator.NodeSkipped],
		"duration_ms": run.TotalDurationMs,
	}
	for _, res := range run.NodeResults {
		if res.Status == orchestrator.NodeFailed {
			details["first_failed_node"] = res.NodeID
			details["first_error"] = res.ErrorMessage()
			break
		}
	}
	SendAlert(AlertRunFailedEvent, SeverityWarning, "workflow run failed", details)
}

// StartAlertMonitor periodically checks connection states until ctx is done.
// Dependencies marked optional are not watched.
func StartAlertMonitor(ctx context.Context, checkInterval time.Duration) {
	go func() {
		ticker := time.NewTicker(checkInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			readiness.mu.RLock()
			mqttConnected, mqttOptional := readiness.mqttConnected, readiness.mqttOptional
			pgConnected, pgOptional := readiness.postgresConnected, readiness.postgresOptional
			readiness.mu.RUnlock()

			if !mqttOptional {
				CheckAndAlertMQTT(mqttConnected)
			}
			if !pgOptional {
				CheckAndAlertPostgres(pgConnected)
			}
		}
	}()
}
