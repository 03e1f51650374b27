package audit

import (
	"context"
	"encoding/json"

	"github.com/segmentio/kafka-go"

	"github.com/turtacn/psn/internal/config"
	"github.com/turtacn/psn/internal/domain/models"
	"github.com/turtacn/psn/internal/domain/service"
	"github.com/turtacn/psn/pkg/logger"
)

// SignatureHeader carries the HMAC signature of a message value.
const SignatureHeader = "psn-signature"

// MessageWriter is the part of kafka.Writer the producer uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaProducer is a Kafka-backed implementation of the AuditService.
// Messages are keyed by domain name so the events of one domain stay ordered.
type KafkaProducer struct {
	writer     MessageWriter
	signingKey string
	logger     logger.Logger
}

// NewKafkaProducer creates a new KafkaProducer writing to the configured audit topic.
func NewKafkaProducer(cfg config.KafkaConfig, log logger.Logger) *KafkaProducer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.AuditTopic,
		Balancer:     &kafka.Hash{},
		WriteTimeout: cfg.WriteTimeout,
		RequiredAcks: kafka.RequireOne,
	}
	return NewKafkaProducerWithWriter(writer, cfg.SigningKey, log)
}

// NewKafkaProducerWithWriter creates a KafkaProducer on an existing writer.
func NewKafkaProducerWithWriter(writer MessageWriter, signingKey string, log logger.Logger) *KafkaProducer {
	return &KafkaProducer{
		writer:     writer,
		signingKey: signingKey,
		logger:     log.WithComponent("KafkaProducer"),
	}
}

// LogEvent sends an audit event to the Kafka topic.
func (p *KafkaProducer) LogEvent(ctx context.Context, event models.AuditEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		p.logger.Error(ctx, "failed to marshal audit event", err)
		return err
	}

	msg := kafka.Message{
		Key:   []byte(event.Domain),
		Value: payload,
	}
	if p.signingKey != "" {
		msg.Headers = append(msg.Headers, kafka.Header{
			Key:   SignatureHeader,
			Value: []byte(SignPayload(payload, p.signingKey)),
		})
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error(ctx, "failed to write message to Kafka", err,
			logger.String("event_type", string(event.EventType)),
		)
		return err
	}
	return nil
}

// Close closes the underlying Kafka writer.
func (p *KafkaProducer) Close() error {
	return p.writer.Close()
}

var _ service.AuditService = (*KafkaProducer)(nil)
