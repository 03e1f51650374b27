// Package service contains the application services: use-case orchestration on
// top of the domain algorithms and the repositories.
package service

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/turtacn/psn/internal/domain/models"
	domainservice "github.com/turtacn/psn/internal/domain/service"
	"github.com/turtacn/psn/pkg/constants"
	"github.com/turtacn/psn/pkg/logger"
)

const tracerName = "github.com/turtacn/psn/internal/application/service"

func tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// endSpan records err on span, if any, and ends it.
func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// subjectFrom returns the authenticated subject stored by the HTTP layer.
func subjectFrom(ctx context.Context) string {
	subject, _ := ctx.Value(constants.ContextKeySubject).(string)
	return subject
}

func traceIDFrom(ctx context.Context) string {
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		return sc.TraceID().String()
	}
	if id, ok := ctx.Value(constants.ContextKeyTraceID).(string); ok {
		return id
	}
	return ""
}

// emitAudit sends event to audit. Failures are logged and never fail the operation.
func emitAudit(ctx context.Context, audit domainservice.AuditService, log logger.Logger, event *models.AuditEvent) {
	if audit == nil {
		return
	}
	event.WithSubject(subjectFrom(ctx)).WithTraceID(traceIDFrom(ctx))
	if err := audit.LogEvent(ctx, *event); err != nil {
		log.Warn(ctx, "Failed to record audit event",
			logger.String("event_type", string(event.EventType)),
			logger.String("domain", event.Domain),
			logger.Error(err),
		)
	}
}
