package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/turtacn/psn/internal/domain/models"
	"github.com/turtacn/psn/internal/domain/repository"
	domainservice "github.com/turtacn/psn/internal/domain/service"
	"github.com/turtacn/psn/internal/domain/service/mocks"
	"github.com/turtacn/psn/internal/infrastructure/persistence/postgres"
	"github.com/turtacn/psn/pkg/constants"
	"github.com/turtacn/psn/pkg/logger"
)

func ptr[T any](v T) *T { return &v }

func noopLog() logger.Logger { return logger.NewNoopLogger() }

// errorLog keeps the errors passed to Error and discards everything else.
type errorLog struct {
	logger.Logger
	mu   sync.Mutex
	errs []error
}

func newErrorLog() *errorLog { return &errorLog{Logger: logger.NewNoopLogger()} }

func (l *errorLog) Error(_ context.Context, _ string, err error, _ ...logger.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errs = append(l.errs, err)
}

func (l *errorLog) WithComponent(string) logger.Logger { return l }

func (l *errorLog) WithFields(...logger.Field) logger.Logger { return l }

func (l *errorLog) logged() []error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]error(nil), l.errs...)
}

// countingMetrics records the counters the allocator drives.
type countingMetrics struct {
	domainservice.NoopMetrics
	created    atomic.Int32
	collisions atomic.Int32
	exhausted  atomic.Int32
}

func (m *countingMetrics) RecordPseudonymCreated(constants.Algorithm) { m.created.Add(1) }
func (m *countingMetrics) RecordCollision(constants.Algorithm)        { m.collisions.Add(1) }
func (m *countingMetrics) RecordCapacityExhausted(string)             { m.exhausted.Add(1) }

// collidingRepo reports every insert as a pseudonym collision.
type collidingRepo struct {
	repository.PseudonymRepository
}

func (collidingRepo) Insert(context.Context, *models.Pseudonym, bool) (repository.InsertOutcome, error) {
	return repository.InsertDuplicatePseudonym, nil
}

type fixture struct {
	domains    DomainAppService
	pseudonyms PseudonymAppService
	domainRepo repository.DomainRepository
	recordRepo repository.PseudonymRepository
	tx         repository.Transactor
	planner    *domainservice.CapacityPlanner
	validity   *domainservice.ValidityResolver
	audit      *mocks.MockAuditService
	access     *mocks.MockAccessPathCache
	metrics    *countingMetrics
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, postgres.Migrate(context.Background(), db))

	log := noopLog()
	f := &fixture{
		domainRepo: postgres.NewDomainRepository(db, log),
		recordRepo: postgres.NewPseudonymRepository(db, log),
		tx:         postgres.NewTransactor(db),
		planner:    domainservice.NewCapacityPlanner(constants.DefaultRetryBudget, constants.DefaultSuccessProbability, 2, log),
		validity:   domainservice.NewValidityResolver(),
		audit:      &mocks.MockAuditService{},
		access:     &mocks.MockAccessPathCache{},
		metrics:    &countingMetrics{},
	}
	f.audit.On("LogEvent", mock.Anything, mock.Anything).Return(nil)
	f.access.On("InvalidateMatching", mock.Anything, mock.Anything).Return()

	resolver := domainservice.NewDomainResolver(f.planner, f.validity, log)
	f.domains = NewDomainAppService(f.domainRepo, f.recordRepo, f.tx, resolver, f.planner, nil, f.access, f.audit, log)
	f.pseudonyms = f.pseudonymService(f.recordRepo, 100)
	return f
}

func (f *fixture) pseudonymService(records repository.PseudonymRepository, maxBatch int) PseudonymAppService {
	return NewPseudonymAppService(f.domains, f.domainRepo, records, f.tx, f.planner, f.validity,
		f.metrics, f.audit, maxBatch, noopLog())
}

// consecutiveInput describes a CONSECUTIVE domain minting P-000001, P-000002, ...
func consecutiveInput(name string) *models.DomainInput {
	return &models.DomainInput{
		Name:            ptr(name),
		Prefix:          ptr("P-"),
		Algorithm:       ptr(constants.AlgorithmConsecutive),
		PseudonymLength: ptr(6),
		AddCheckDigit:   ptr(false),
	}
}

func (f *fixture) createDomain(t *testing.T, in *models.DomainInput) *models.Domain {
	t.Helper()
	d, err := f.domains.CreateDomain(context.Background(), in)
	require.NoError(t, err)
	return d
}
