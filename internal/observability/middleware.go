package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/jkaninda/okapi"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// MetricsMiddleware records request counts, latency and a span for every
// request served by the okapi ops server.
func MetricsMiddleware(metrics *MetricsCollector, tracer trace.Tracer) okapi.Middleware {
	return func(next okapi.HandlerFunc) okapi.HandlerFunc {
		return func(c *okapi.Context) error {
			r := c.Request()

			_, end := startSpan(r.Context(), tracer, "http.request",
				attribute.String("http.method", r.Method),
				attribute.String("http.path", r.URL.Path),
			)

			start := time.Now()
			err := next(c)
			end(err)

			if metrics != nil {
				code := c.Response().StatusCode()
				if code == 0 {
					code = http.StatusOK
				}
				observeHTTP(metrics, r.Method, r.URL.Path, code, time.Since(start))
			}
			return err
		}
	}
}

// HTTPMetricsMiddleware is the net/http variant of MetricsMiddleware, for
// handlers mounted outside okapi's router.
func HTTPMetricsMiddleware(metrics *MetricsCollector, tracer trace.Tracer, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, end := startSpan(r.Context(), tracer, "http.request",
			attribute.String("http.method", r.Method),
			attribute.String("http.path", r.URL.Path),
		)

		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r.WithContext(ctx))
		end(nil)

		if metrics != nil {
			observeHTTP(metrics, r.Method, r.URL.Path, rec.code, time.Since(start))
		}
	})
}

func observeHTTP(metrics *MetricsCollector, method, path string, code int, elapsed time.Duration) {
	metrics.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(code)).Inc()
	metrics.HTTPRequestDuration.WithLabelValues(method, path).Observe(elapsed.Seconds())
}

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.code = code
	s.ResponseWriter.WriteHeader(code)
}
