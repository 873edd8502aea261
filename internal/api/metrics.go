package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Priyanshuthapliyal2005/weavy.ai-sub000/internal/events"
	"github.com/Priyanshuthapliyal2005/weavy.ai-sub000/internal/orchestrator"
	"github.com/Priyanshuthapliyal2005/weavy.ai-sub000/internal/version"
)

// Metrics state
var (
	metricsState = &MetricsState{startTime: time.Now()}
	registry     = prometheus.NewRegistry()
	factory      = promauto.With(registry)

	runsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "weavy_runs_total",
		Help: "Workflow runs by final status",
	}, []string{"status"})

	runDuration = factory.NewHistogram(prometheus.HistogramOpts{
		Name:    "weavy_run_duration_seconds",
		Help:    "Wall time of a workflow run",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 14), // 50ms to ~7min
	})

	nodeResultsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "weavy_node_results_total",
		Help: "Node results by status",
	}, []string{"status"})

	nodeDuration = factory.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "weavy_node_duration_seconds",
		Help:    "Wall time of a single node, by status",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 14), // 10ms to ~80s
	}, []string{"status"})
)

// MetricsState holds the labels the gauges report under.
type MetricsState struct {
	mu        sync.RWMutex
	startTime time.Time
	instance  string
}

func init() {
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "weavy_uptime_seconds",
		Help: "Number of seconds since the engine started",
	}, func() float64 {
		metricsState.mu.RLock()
		defer metricsState.mu.RUnlock()
		return time.Since(metricsState.startTime).Seconds()
	})
	factory.NewCounterFunc(prometheus.CounterOpts{
		Name: "weavy_events_total",
		Help: "Total number of events emitted since startup",
	}, func() float64 { return float64(events.TotalCount()) })
	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "weavy_ws_clients",
		Help: "Number of active WebSocket client connections",
	}, func() float64 { return float64(events.SubscriberCount()) })
	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "weavy_mqtt_connected",
		Help: "Whether the MQTT broker is connected (1) or not (0)",
	}, func() float64 {
		readiness.mu.RLock()
		defer readiness.mu.RUnlock()
		return boolGauge(readiness.mqttConnected)
	})
	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "weavy_postgres_connected",
		Help: "Whether PostgreSQL is connected (1) or not (0)",
	}, func() float64 {
		readiness.mu.RLock()
		defer readiness.mu.RUnlock()
		return boolGauge(readiness.postgresConnected)
	})

	factory.NewGaugeVec(prometheus.GaugeOpts{
		Name: "weavy_build_info",
		Help: "Build information, always 1",
	}, []string{"version"}).WithLabelValues(version.Version).Set(1)
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// InitMetrics resets the uptime clock. Call it once at startup.
func InitMetrics() {
	metricsState.mu.Lock()
	defer metricsState.mu.Unlock()
	metricsState.startTime = time.Now()
}

// SetInstanceName sets the name alerts identify this engine by.
func SetInstanceName(name string) {
	metricsState.mu.Lock()
	defer metricsState.mu.Unlock()
	metricsState.instance = name
}

// GetInstanceName returns the name set by SetInstanceName.
func GetInstanceName() string {
	metricsState.mu.RLock()
	defer metricsState.mu.RUnlock()
	return metricsState.instance
}

// ObserveRun records a finished run. It is registered on the runner with
// orchestrator.WithObserver, so runs from every entry point are counted.
func ObserveRun(run *orchestrator.WorkflowRunResult) {
	runsTotal.WithLabelValues(string(run.Status)).Inc()
	runDuration.Observe(float64(run.TotalDurationMs) / 1000)
	for _, res := range run.NodeResults {
		status := string(res.Status)
		nodeResultsTotal.WithLabelValues(status).Inc()
		nodeDuration.WithLabelValues(status).Observe(float64(res.DurationMs) / 1000)
	}
	if run.Status == orchestrator.RunFailed {
		AlertRunFailed(run)
	}
}

func metricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})
}
