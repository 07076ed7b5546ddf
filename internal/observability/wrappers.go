package observability

import (
	"context"
	"errors"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jkaninda/mlinzi/internal/runner"
)

// --- InstrumentedRunner ---

// InstrumentedRunner wraps a runner.Runner with metrics, tracing, and anomaly detection.
type InstrumentedRunner struct {
	inner   runner.Runner
	metrics *MetricsCollector
	tracer  trace.Tracer
	anomaly *AnomalyDetector
}

// NewInstrumentedRunner wraps a runner with observability. Any of metrics,
// ts and anomaly may be nil.
func NewInstrumentedRunner(inner runner.Runner, metrics *MetricsCollector, ts *TracerSetup, anomaly *AnomalyDetector) *InstrumentedRunner {
	return &InstrumentedRunner{
		inner:   inner,
		metrics: metrics,
		tracer:  tracerOf(ts),
		anomaly: anomaly,
	}
}

func (r *InstrumentedRunner) Run(ctx context.Context, req runner.Request) (*runner.Result, error) {
	program := filepath.Base(req.Program)

	ctx, end := startSpan(ctx, r.tracer, "runner.run",
		attribute.String("runner.program", program),
		attribute.Int("runner.args", len(req.Args)),
	)

	start := time.Now()
	result, err := r.inner.Run(ctx, req)
	duration := time.Since(start).Seconds()

	status := runStatus(result, err)
	if r.tracer != nil && result != nil {
		trace.SpanFromContext(ctx).SetAttributes(attribute.Int("runner.exit_code", result.ExitCode))
	}
	end(err)

	if r.metrics != nil {
		r.metrics.RunnerExecutionsTotal.WithLabelValues(program, status).Inc()
		r.metrics.RunnerExecutionDuration.WithLabelValues(program).Observe(duration)
	}

	if err != nil {
		r.anomaly.RecordError("runner_" + program)
	} else {
		r.anomaly.RecordSuccess("runner_" + program)
	}

	return result, err
}

func runStatus(result *runner.Result, err error) string {
	switch {
	case errors.Is(err, runner.ErrTimeout):
		return "timeout"
	case errors.Is(err, runner.ErrNotFound):
		return "not_found"
	case err != nil:
		return "error"
	case result != nil && result.ExitCode != 0:
		return "nonzero_exit"
	default:
		return "success"
	}
}

// --- Command recording ---

// CommandRecorder records the outcome of command dispatches. A nil
// *CommandRecorder is valid and records nothing.
type CommandRecorder struct {
	metrics *MetricsCollector
	tracer  trace.Tracer
	anomaly *AnomalyDetector
}

// NewCommandRecorder returns a recorder, or nil when obs is nil.
func NewCommandRecorder(obs *Observability) *CommandRecorder {
	if obs == nil {
		return nil
	}
	return &CommandRecorder{
		metrics: obs.Metrics,
		tracer:  tracerOf(obs.Tracer),
		anomaly: obs.Anomaly,
	}
}

// Start opens a span for command and returns the function that records its
// outcome. status is "success", "error" or "internal_error".
func (c *CommandRecorder) Start(ctx context.Context, command, correlationID string) (context.Context, func(status string, err error)) {
	if c == nil {
		return ctx, func(string, error) {}
	}

	ctx, end := startSpan(ctx, c.tracer, "command."+command,
		attribute.String("command.name", command),
		attribute.String("command.correlation_id", correlationID),
	)
	if c.metrics != nil {
		c.metrics.ActiveCommands.Inc()
	}
	start := time.Now()

	return ctx, func(status string, err error) {
		end(err)
		if c.metrics != nil {
			c.metrics.ActiveCommands.Dec()
			c.metrics.CommandsTotal.WithLabelValues(command, status).Inc()
			c.metrics.CommandDuration.WithLabelValues(command).Observe(time.Since(start).Seconds())
		}
		if status == "success" {
			c.anomaly.RecordSuccess("command_" + command)
		} else {
			c.anomaly.RecordError("command_" + command)
		}
	}
}

// --- Compile-time interface checks ---

var _ runner.Runner = (*InstrumentedRunner)(nil)
