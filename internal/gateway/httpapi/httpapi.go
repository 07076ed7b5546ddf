// Package httpapi implements the bot's ops HTTP server: liveness and
// readiness probes, Prometheus metrics, and a read-only view of the pending
// restart state.
//
// The server carries no authentication and is expected to listen on a
// loopback or otherwise private address.
package httpapi

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/jkaninda/okapi"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/trace"

	"github.com/jkaninda/mlinzi/internal/observability"
	"github.com/jkaninda/mlinzi/internal/restart"
)

// ErrorBody is the standard error response.
type ErrorBody struct {
	Error string `json:"error"`
}

// HealthResponse is the liveness response.
type HealthResponse struct {
	Status string `json:"status"`
}

// PendingResponse describes the restart state waiting for the next boot.
type PendingResponse struct {
	Pending bool            `json:"pending"`
	Count   int             `json:"count"`
	Record  *restart.Record `json:"record,omitempty"`
}

// PendingSource reads restart state without consuming it.
type PendingSource interface {
	Peek(ctx context.Context) (*restart.Record, int, error)
}

// Config configures the ops server.
type Config struct {
	ListenAddr string // e.g., "127.0.0.1:9090"

	MetricsRegistry *prometheus.Registry            // nil = no /metrics.
	MetricsPath     string                          // Default: "/metrics".
	HealthChecker   *observability.HealthChecker    // nil = /readyz always ok.
	Metrics         *observability.MetricsCollector // HTTP middleware metrics.
	Tracer          trace.Tracer
	Pending         PendingSource // nil = no /v1/restart/pending.
}

// Gateway is the ops HTTP server.
type Gateway struct {
	config Config
	logger *slog.Logger
	server *http.Server
	okapi  *okapi.Okapi
}

// NewGateway creates the ops server with every route mounted.
func NewGateway(cfg Config, logger *slog.Logger) *Gateway {
	g := &Gateway{
		config: cfg,
		logger: logger,
		okapi:  okapi.New(),
	}
	g.routes()
	return g
}

func (g *Gateway) routes() {
	if g.config.Metrics != nil || g.config.Tracer != nil {
		g.okapi.Use(observability.MetricsMiddleware(g.config.Metrics, g.config.Tracer))
	}

	g.okapi.Get("/healthz", g.handleLiveness,
		okapi.DocSummary("Liveness probe"),
		okapi.DocTags("Health"),
		okapi.DocResponse(HealthResponse{}),
	)
	g.okapi.Get("/readyz", g.handleReadiness,
		okapi.DocSummary("Readiness probe"),
		okapi.DocTags("Health"),
		okapi.DocResponse(observability.HealthStatus{}),
		okapi.DocResponse(http.StatusServiceUnavailable, observability.HealthStatus{}),
	)

	if g.config.Pending != nil {
		v1 := g.okapi.Group("/v1")
		v1.Get("/restart/pending", g.handlePending,
			okapi.DocSummary("Show the restart record the next boot will resume"),
			okapi.DocTags("Restart"),
			okapi.DocResponse(PendingResponse{}),
			okapi.DocResponse(http.StatusInternalServerError, ErrorBody{}),
		)
	}

	if g.config.MetricsRegistry != nil {
		path := g.config.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		g.okapi.HandleStd("GET", path, promhttp.HandlerFor(g.config.MetricsRegistry, promhttp.HandlerOpts{}).ServeHTTP)
	}
}

// ServeHTTP serves a single request through the router.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.okapi.ServeHTTP(w, r)
}

// Start launches the HTTP server and blocks until it exits.
func (g *Gateway) Start(ctx context.Context) error {
	g.server = &http.Server{
		Addr:              g.config.ListenAddr,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}

	g.logger.Info("ops http server starting", slog.String("addr", g.config.ListenAddr))
	return g.okapi.StartServer(g.server)
}

// Stop gracefully shuts down the HTTP server.
func (g *Gateway) Stop(_ context.Context) error {
	if g.server == nil {
		return nil
	}
	g.logger.Info("ops http server stopping")
	return g.okapi.Shutdown(g.server)
}

func (g *Gateway) handleLiveness(c *okapi.Context) error {
	return c.OK(&HealthResponse{Status: "ok"})
}

// handleReadiness checks all registered dependencies and returns 200 or 503.
func (g *Gateway) handleReadiness(c *okapi.Context) error {
	if g.config.HealthChecker == nil {
		return c.OK(&HealthResponse{Status: "ok"})
	}

	status := g.config.HealthChecker.CheckReady(c.Context())
	code := http.StatusOK
	if status.Status != "ok" {
		code = http.StatusServiceUnavailable
	}
	return c.JSON(code, status)
}

func (g *Gateway) handlePending(c *okapi.Context) error {
	rec, count, err := g.config.Pending.Peek(c.Context())
	if err != nil {
		g.logger.Error("reading pending restart", slog.String("error", err.Error()))
		return c.JSON(http.StatusInternalServerError, ErrorBody{Error: "reading restart state failed"})
	}
	return c.OK(PendingResponse{Pending: rec != nil, Count: count, Record: rec})
}
