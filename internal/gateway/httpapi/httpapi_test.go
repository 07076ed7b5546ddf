package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jkaninda/mlinzi/internal/observability"
	"github.com/jkaninda/mlinzi/internal/restart"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func serve(t *testing.T, g *Gateway, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	g.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestLiveness(t *testing.T) {
	g := NewGateway(Config{}, testLogger())

	rec := serve(t, g, "/healthz")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body HealthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if body.Status != "ok" {
		t.Errorf("status = %q, want ok", body.Status)
	}
}

func TestReadinessReportsFailingCheck(t *testing.T) {
	hc := observability.NewHealthChecker(testLogger())
	hc.AddCheck("database", func(context.Context) error { return errors.New("connection refused") })
	g := NewGateway(Config{HealthChecker: hc}, testLogger())

	rec := serve(t, g, "/readyz")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "connection refused") {
		t.Errorf("body = %s, want the check failure", rec.Body.String())
	}
}

func TestReadinessWithoutChecker(t *testing.T) {
	g := NewGateway(Config{}, testLogger())
	if rec := serve(t, g, "/readyz"); rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestPendingRestart(t *testing.T) {
	docs := restart.NewMemoryStore()
	state := restart.NewStateStore(docs, 7)
	g := NewGateway(Config{Pending: state}, testLogger())

	var empty PendingResponse
	rec := serve(t, g, "/v1/restart/pending")
	if err := json.Unmarshal(rec.Body.Bytes(), &empty); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if empty.Pending || empty.Count != 0 {
		t.Errorf("empty state = %+v", empty)
	}

	want := restart.Record{StatusChatID: 1, StatusMessageID: 2, ScheduledAtMicros: 3, Reason: restart.ReasonUpdate}
	if err := state.AddRecord(context.Background(), want); err != nil {
		t.Fatalf("AddRecord: %v", err)
	}

	var got PendingResponse
	rec = serve(t, g, "/v1/restart/pending")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if !got.Pending || got.Count != 1 || got.Record == nil || *got.Record != want {
		t.Errorf("pending = %+v, want %+v", got, want)
	}

	// Peeking leaves the state for the next boot.
	if _, n, _ := state.Peek(context.Background()); n != 1 {
		t.Errorf("records after peek = %d, want 1", n)
	}
}

func TestPendingRouteAbsentWithoutSource(t *testing.T) {
	g := NewGateway(Config{}, testLogger())
	if rec := serve(t, g, "/v1/restart/pending"); rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	mc := observability.NewMetricsCollector()
	g := NewGateway(Config{MetricsRegistry: mc.Registry, Metrics: mc}, testLogger())

	serve(t, g, "/healthz")
	rec := serve(t, g, "/metrics")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "mlinzi_http_requests_total") {
		t.Errorf("metrics output missing http counter:\n%s", rec.Body.String())
	}
}
