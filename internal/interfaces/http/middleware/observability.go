package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/turtacn/psn/internal/infrastructure/monitoring"
	"github.com/turtacn/psn/pkg/constants"
)

// RequestRecorder receives one observation per served request.
type RequestRecorder interface {
	ObserveRequest(route, method string, status int, seconds float64)
}

// ObservabilityMiddleware returns a Gin middleware that integrates Prometheus metrics and OpenTelemetry tracing.
// Each request runs inside a server span continued from the incoming trace headers; the route
// template (e.g. "/api/v1/domains/:domain") is used as the metric label to keep cardinality low.
// ObservabilityMiddleware 返回一个集成了 Prometheus 指标和 OpenTelemetry 跟踪的 Gin 中间件。
// 每个请求都在从传入追踪头延续的服务端 span 中执行，指标使用路由模板作为标签以控制基数。
func ObservabilityMiddleware(tracer trace.Tracer, recorder RequestRecorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		route := c.FullPath()
		if route == "" {
			route = "not_found"
		}

		ctx := otel.GetTextMapPropagator().Extract(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))
		ctx, span := tracer.Start(ctx, c.Request.Method+" "+route,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				semconv.HTTPRequestMethodKey.String(c.Request.Method),
				semconv.HTTPRoute(route),
				semconv.ClientAddress(c.ClientIP()),
			),
		)
		defer span.End()

		if sc := span.SpanContext(); sc.HasTraceID() {
			ctx = contextWithTraceID(ctx, sc.TraceID().String())
		}
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		status := c.Writer.Status()
		span.SetAttributes(semconv.HTTPResponseStatusCode(status))
		if status >= 500 {
			span.SetStatus(codes.Error, "server error")
		}
		if len(c.Errors) > 0 {
			span.RecordError(c.Errors.Last())
		}

		if recorder != nil {
			recorder.ObserveRequest(route, c.Request.Method, status, time.Since(start).Seconds())
		}
	}
}

// TraceID returns the trace id bound to the request, if any.
func TraceID(c *gin.Context) string {
	if id, ok := c.Request.Context().Value(constants.ContextKeyTraceID).(string); ok {
		return id
	}
	return monitoring.GetTraceID(c.Request.Context())
}
