package audit

import (
	"context"
	stderrors "errors"

	"github.com/turtacn/psn/internal/domain/models"
	"github.com/turtacn/psn/internal/domain/service"
)

// Fanout delivers every event to all sinks and joins their errors.
type Fanout []service.AuditService

// LogEvent implements service.AuditService.
func (f Fanout) LogEvent(ctx context.Context, event models.AuditEvent) error {
	var errs []error
	for _, sink := range f {
		if err := sink.LogEvent(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return stderrors.Join(errs...)
}
