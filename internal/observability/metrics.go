package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// MetricsCollector holds all Prometheus metrics for mlinzi.
// Uses a custom registry, no global state.
type MetricsCollector struct {
	Registry *prometheus.Registry

	// Command dispatch metrics.
	CommandsTotal   *prometheus.CounterVec
	CommandDuration *prometheus.HistogramVec

	// External program metrics.
	RunnerExecutionsTotal   *prometheus.CounterVec
	RunnerExecutionDuration *prometheus.HistogramVec

	// Restart lifecycle metrics.
	RestartsTotal *prometheus.CounterVec
	ResumesTotal  *prometheus.CounterVec
	UpdatesTotal  *prometheus.CounterVec

	// HTTP ops server metrics.
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// System metrics.
	ActiveCommands prometheus.Gauge
}

// NewMetricsCollector creates a MetricsCollector with all metrics registered
// on a custom prometheus.Registry.
func NewMetricsCollector() *MetricsCollector {
	reg := prometheus.NewRegistry()

	m := &MetricsCollector{
		Registry: reg,

		CommandsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mlinzi",
			Subsystem: "command",
			Name:      "invocations_total",
			Help:      "Total bot command invocations.",
		}, []string{"command", "status"}),

		CommandDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "mlinzi",
			Subsystem: "command",
			Name:      "duration_seconds",
			Help:      "Bot command handling duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 120},
		}, []string{"command"}),

		RunnerExecutionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mlinzi",
			Subsystem: "runner",
			Name:      "executions_total",
			Help:      "Total external program executions.",
		}, []string{"program", "status"}),

		RunnerExecutionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "mlinzi",
			Subsystem: "runner",
			Name:      "execution_duration_seconds",
			Help:      "External program execution duration in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 120},
		}, []string{"program"}),

		RestartsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mlinzi",
			Subsystem: "restart",
			Name:      "requested_total",
			Help:      "Total restarts requested.",
		}, []string{"reason"}),

		ResumesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mlinzi",
			Subsystem: "restart",
			Name:      "resumed_total",
			Help:      "Restart records resumed on boot, by outcome.",
		}, []string{"outcome"}),

		UpdatesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mlinzi",
			Subsystem: "update",
			Name:      "runs_total",
			Help:      "Self-update runs, by outcome.",
		}, []string{"outcome"}),

		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mlinzi",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		}, []string{"method", "path", "status_code"}),

		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "mlinzi",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),

		ActiveCommands: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "mlinzi",
			Name:      "active_commands",
			Help:      "Number of commands currently being handled.",
		}),
	}

	reg.MustRegister(
		m.CommandsTotal,
		m.CommandDuration,
		m.RunnerExecutionsTotal,
		m.RunnerExecutionDuration,
		m.RestartsTotal,
		m.ResumesTotal,
		m.UpdatesTotal,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.ActiveCommands,
	)

	return m
}
