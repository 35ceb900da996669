package middleware

import (
	"net/http"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.27.0"
	"go.uber.org/zap"

	"github.com/fleetworks/fleet-api/internal/metrics"
	"github.com/fleetworks/fleet-api/internal/tracing"
)

// TracingMiddleware opens a server span per request, echoes the trace id and
// records request metrics under the matched route pattern.
type TracingMiddleware struct {
	logger *zap.Logger
}

func NewTracingMiddleware(logger *zap.Logger) *TracingMiddleware {
	return &TracingMiddleware{logger: logger}
}

func (tm *TracingMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}

		ctx, span := tracing.StartHTTPSpan(r.Context(), r.Method, route, r.Header.Get("traceparent"))
		defer span.End()

		sc := span.SpanContext()
		if sc.HasTraceID() {
			w.Header().Set("X-Trace-ID", sc.TraceID().String())
		}

		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r.WithContext(ctx))

		status := rec.code()
		span.SetAttributes(semconv.HTTPResponseStatusCode(status))
		if status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(status))
		}
		elapsed := time.Since(start)
		metrics.RecordHTTPMetrics(r.Method, route, strconv.Itoa(status), elapsed.Seconds())

		tm.logger.Debug("Request served",
			zap.String("method", r.Method),
			zap.String("route", route),
			zap.Int("status", status),
			zap.Duration("duration", elapsed),
			zap.String("trace_id", sc.TraceID().String()),
		)
	})
}
