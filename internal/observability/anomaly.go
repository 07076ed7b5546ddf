package observability

import (
	"log/slog"
	"sync"
	"time"

	"github.com/jkaninda/mlinzi/internal/config"
)

// minAnomalySamples is the number of outcomes needed before a rate is judged.
const minAnomalySamples = 5

// AnomalyDetector warns when an operation's failure rate within a sliding
// window exceeds the configured threshold. Operations are command names and
// runner programs.
type AnomalyDetector struct {
	mu        sync.Mutex
	failures  map[string]*slidingWindow
	successes map[string]*slidingWindow
	alerted   map[string]bool
	threshold float64
	window    time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

type slidingWindow struct {
	stamps []time.Time
	window time.Duration
}

// NewAnomalyDetector creates an anomaly detector from config.
func NewAnomalyDetector(cfg *config.AnomalyConfig, logger *slog.Logger) *AnomalyDetector {
	windowSecs := cfg.WindowSeconds
	if windowSecs <= 0 {
		windowSecs = 300
	}
	return &AnomalyDetector{
		failures:  make(map[string]*slidingWindow),
		successes: make(map[string]*slidingWindow),
		alerted:   make(map[string]bool),
		threshold: cfg.ErrorRateThreshold,
		window:    time.Duration(windowSecs) * time.Second,
		logger:    logger,
		now:       time.Now,
	}
}

// RecordError records a failed operation.
func (a *AnomalyDetector) RecordError(operation string) {
	if a == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	a.windowFor(a.failures, operation).add(a.now())
	a.evaluate(operation)
}

// RecordSuccess records a successful operation.
func (a *AnomalyDetector) RecordSuccess(operation string) {
	if a == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	a.windowFor(a.successes, operation).add(a.now())
	a.evaluate(operation)
}

// ErrorRate returns the failure rate and sample count for operation within
// the current window.
func (a *AnomalyDetector) ErrorRate(operation string) (float64, int) {
	if a == nil {
		return 0, 0
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.rate(operation)
}

// rate must be called with a.mu held.
func (a *AnomalyDetector) rate(operation string) (float64, int) {
	now := a.now()
	failed := a.windowFor(a.failures, operation).count(now)
	total := failed + a.windowFor(a.successes, operation).count(now)
	if total == 0 {
		return 0, 0
	}
	return float64(failed) / float64(total), total
}

// evaluate logs once when the rate crosses the threshold and re-arms when it
// falls back. Must be called with a.mu held.
func (a *AnomalyDetector) evaluate(operation string) {
	if a.threshold <= 0 {
		return
	}
	rate, total := a.rate(operation)
	if total < minAnomalySamples {
		return
	}

	high := rate > a.threshold
	if high && !a.alerted[operation] && a.logger != nil {
		a.logger.Warn("anomaly detected: high error rate",
			slog.String("operation", operation),
			slog.Float64("error_rate", rate),
			slog.Float64("threshold", a.threshold),
			slog.Int("samples", total),
		)
	}
	a.alerted[operation] = high
}

func (a *AnomalyDetector) windowFor(m map[string]*slidingWindow, key string) *slidingWindow {
	w, ok := m[key]
	if !ok {
		w = &slidingWindow{window: a.window}
		m[key] = w
	}
	return w
}

func (w *slidingWindow) add(at time.Time) {
	w.stamps = append(w.stamps, at)
	w.prune(at)
}

func (w *slidingWindow) count(now time.Time) int {
	w.prune(now)
	return len(w.stamps)
}

// prune drops entries older than the window.
func (w *slidingWindow) prune(now time.Time) {
	cutoff := now.Add(-w.window)
	i := 0
	for i < len(w.stamps) && w.stamps[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		w.stamps = w.stamps[i:]
	}
}
