// Package audit implements the AuditService interface on the relational store and on Kafka.
package audit

import (
	"context"

	"gorm.io/gorm"

	"github.com/turtacn/psn/internal/domain/models"
	"github.com/turtacn/psn/internal/domain/service"
	"github.com/turtacn/psn/pkg/logger"
)

// GormAuditService provides a GORM-backed implementation of the AuditService.
// It stores audit events in the audit_events table.
type GormAuditService struct {
	db     *gorm.DB
	logger logger.Logger
}

// NewGormAuditService creates and configures a new GormAuditService.
func NewGormAuditService(db *gorm.DB, log logger.Logger) service.AuditService {
	return &GormAuditService{
		db:     db,
		logger: log.WithComponent("GormAuditService"),
	}
}

// LogEvent saves an AuditEvent to the database.
func (s *GormAuditService) LogEvent(ctx context.Context, event models.AuditEvent) error {
	if err := s.db.WithContext(ctx).Create(&event).Error; err != nil {
		s.logger.Error(ctx, "failed to store audit event", err,
			logger.String("event_type", string(event.EventType)),
			logger.String("domain", event.Domain),
		)
		return err
	}
	return nil
}
