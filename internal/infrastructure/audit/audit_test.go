package audit_test

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/turtacn/psn/internal/domain/models"
	"github.com/turtacn/psn/internal/domain/service/mocks"
	"github.com/turtacn/psn/internal/infrastructure/audit"
	"github.com/turtacn/psn/pkg/constants"
	"github.com/turtacn/psn/pkg/logger"
)

type MockKafkaWriter struct {
	mock.Mock
}

func (m *MockKafkaWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	args := m.Called(ctx, msgs)
	return args.Error(0)
}

func (m *MockKafkaWriter) Close() error {
	return m.Called().Error(0)
}

func TestGormAuditService_LogEvent(t *testing.T) {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.AuditEvent{}))

	svc := audit.NewGormAuditService(db, logger.NewNoopLogger())
	event := models.NewAuditEvent(constants.EventTypeDomainCreated, "study", "created").
		WithSubject("alice").
		WithMetadata(map[string]string{"algorithm": "SHA2"})
	require.NoError(t, svc.LogEvent(context.Background(), *event))

	var stored models.AuditEvent
	require.NoError(t, db.First(&stored, "event_id = ?", event.EventID).Error)
	assert.Equal(t, "study", stored.Domain)
	assert.Equal(t, "alice", stored.Subject)
	assert.JSONEq(t, `{"algorithm":"SHA2"}`, string(stored.Metadata))
}

func TestKafkaProducer_LogEventSignsMessage(t *testing.T) {
	writer := new(MockKafkaWriter)
	producer := audit.NewKafkaProducerWithWriter(writer, "hmac-key", logger.NewNoopLogger())

	event := *models.NewAuditEvent(constants.EventTypePseudonymCreated, "study", "")
	payload, err := json.Marshal(event)
	require.NoError(t, err)

	writer.On("WriteMessages", mock.Anything, mock.MatchedBy(func(msgs []kafka.Message) bool {
		if len(msgs) != 1 || string(msgs[0].Key) != "study" || string(msgs[0].Value) != string(payload) {
			return false
		}
		h := msgs[0].Headers
		return len(h) == 1 && h[0].Key == audit.SignatureHeader &&
			audit.VerifyPayload(payload, string(h[0].Value), "hmac-key")
	})).Return(nil).Once()

	require.NoError(t, producer.LogEvent(context.Background(), event))
	writer.AssertExpectations(t)
}

func TestKafkaProducer_LogEventPropagatesWriteError(t *testing.T) {
	writer := new(MockKafkaWriter)
	writer.On("WriteMessages", mock.Anything, mock.Anything).Return(stderrors.New("broker down"))
	writer.On("Close").Return(nil)
	producer := audit.NewKafkaProducerWithWriter(writer, "", logger.NewNoopLogger())

	err := producer.LogEvent(context.Background(), *models.NewAuditEvent(constants.EventTypeDomainDeleted, "study", ""))
	assert.EqualError(t, err, "broker down")
	assert.NoError(t, producer.Close())
}

func TestVerifyPayload_RejectsTampering(t *testing.T) {
	sig := audit.SignPayload([]byte(`{"a":1}`), "k")
	assert.True(t, audit.VerifyPayload([]byte(`{"a":1}`), sig, "k"))
	assert.False(t, audit.VerifyPayload([]byte(`{"a":2}`), sig, "k"))
	assert.False(t, audit.VerifyPayload([]byte(`{"a":1}`), sig, "other"))
	assert.False(t, audit.VerifyPayload([]byte(`{"a":1}`), "%%%", "k"))
}

func TestFanout_JoinsErrors(t *testing.T) {
	ok := &mocks.MockAuditService{}
	ok.On("LogEvent", mock.Anything, mock.Anything).Return(nil)
	failing := &mocks.MockAuditService{}
	failing.On("LogEvent", mock.Anything, mock.Anything).Return(stderrors.New("sink down"))

	event := *models.NewAuditEvent(constants.EventTypeDomainUpdated, "study", "")
	assert.NoError(t, audit.Fanout{ok}.LogEvent(context.Background(), event))

	err := audit.Fanout{failing, ok}.LogEvent(context.Background(), event)
	assert.ErrorContains(t, err, "sink down")
	ok.AssertNumberOfCalls(t, "LogEvent", 2)
}
