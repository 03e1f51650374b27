package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/turtacn/psn/pkg/constants"
)

// AuditEvent represents a single audit trail event for a mutating operation.
type AuditEvent struct {
	EventID   string                   `json:"event_id" gorm:"primaryKey;type:varchar(36)"`
	EventType constants.AuditEventType `json:"event_type" gorm:"type:varchar(64);index"`
	Subject   string                   `json:"subject,omitempty"` // who performed the action
	Domain    string                   `json:"domain" gorm:"index"`
	Success   bool                     `json:"success"`
	TraceID   string                   `json:"trace_id,omitempty"`
	Message   string                   `json:"message,omitempty"`
	Metadata  json.RawMessage          `json:"metadata,omitempty" gorm:"type:text"`
	Timestamp time.Time                `json:"timestamp"`
}

// TableName pins the table name for gorm.
func (AuditEvent) TableName() string {
	return "audit_events"
}

// NewAuditEvent creates a new audit event entry.
func NewAuditEvent(eventType constants.AuditEventType, domain string, message string) *AuditEvent {
	return &AuditEvent{
		EventID:   uuid.NewString(),
		EventType: eventType,
		Domain:    domain,
		Success:   true,
		Message:   message,
		Timestamp: time.Now().UTC(),
	}
}

// WithSubject sets the acting subject.
func (a *AuditEvent) WithSubject(subject string) *AuditEvent {
	a.Subject = subject
	return a
}

// WithTraceID sets the trace correlation id.
func (a *AuditEvent) WithTraceID(traceID string) *AuditEvent {
	a.TraceID = traceID
	return a
}

// WithMetadata sets JSON metadata for the audit event.
func (a *AuditEvent) WithMetadata(data interface{}) *AuditEvent {
	jsonData, err := json.Marshal(data)
	if err == nil {
		a.Metadata = jsonData
	}
	return a
}
