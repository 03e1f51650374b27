package postgres

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/turtacn/psn/internal/domain/models"
	"github.com/turtacn/psn/pkg/constants"
)

// newTestDB opens a private in-memory sqlite database with the service schema.
func newTestDB(t *testing.T) *gorm.DB {
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

	require.NoError(t, Migrate(context.Background(), db))
	return db
}

func newTestDomain(name string) *models.Domain {
	now := time.Now().UTC()
	return &models.Domain{
		ID:               uuid.NewString(),
		Name:             name,
		Prefix:           "T-",
		ValidFrom:        now,
		ValidTo:          now.AddDate(30, 0, 0),
		Algorithm:        constants.AlgorithmConsecutive,
		Alphabet:         constants.DefaultAlphabet(constants.AlgorithmConsecutive),
		PseudonymLength:  6,
		PaddingCharacter: "0",
	}
}

func newTestRecord(domainID, identifier, value string) *models.Pseudonym {
	now := time.Now().UTC()
	return &models.Pseudonym{
		DomainID:   domainID,
		Identifier: identifier,
		IDType:     "ANY",
		Value:      value,
		ValidFrom:  now,
		ValidTo:    now.AddDate(1, 0, 0),
	}
}
