package postgres

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/turtacn/psn/internal/domain/models"
	"github.com/turtacn/psn/internal/domain/repository"
	"github.com/turtacn/psn/pkg/errors"
	"github.com/turtacn/psn/pkg/logger"
)

func setupPseudonymRepo(t *testing.T) (*gorm.DB, repository.PseudonymRepository, *models.Domain) {
	t.Helper()
	db := newTestDB(t)
	log := logger.NewNoopLogger()
	d := newTestDomain("records")
	require.NoError(t, NewDomainRepository(db, log).Create(context.Background(), d))
	return db, NewPseudonymRepository(db, log), d
}

func TestPseudonymRepository_InsertUniqueness(t *testing.T) {
	ctx := context.Background()
	_, repo, d := setupPseudonymRepo(t)

	outcome, err := repo.Insert(ctx, newTestRecord(d.ID, "alice", "T-000001"), false)
	require.NoError(t, err)
	assert.Equal(t, repository.InsertCreated, outcome)

	outcome, err = repo.Insert(ctx, newTestRecord(d.ID, "alice", "T-000002"), false)
	require.NoError(t, err)
	assert.Equal(t, repository.InsertDuplicateIdentifier, outcome)

	outcome, err = repo.Insert(ctx, newTestRecord(d.ID, "bob", "T-000001"), false)
	require.NoError(t, err)
	assert.Equal(t, repository.InsertDuplicatePseudonym, outcome)

	count, err := repo.CountByDomain(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestPseudonymRepository_InsertMultipleAllowed(t *testing.T) {
	ctx := context.Background()
	_, repo, d := setupPseudonymRepo(t)

	for i := 1; i <= 3; i++ {
		outcome, err := repo.Insert(ctx, newTestRecord(d.ID, "alice", fmt.Sprintf("T-%06d", i)), true)
		require.NoError(t, err)
		assert.Equal(t, repository.InsertCreated, outcome)
	}

	records, err := repo.FindByIdentifier(ctx, d.ID, "alice", "ANY")
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "T-000001", records[0].Value)
	assert.True(t, records[0].MultipleAllowed)
}

func TestPseudonymRepository_InsertRollsBackWithOuterTransaction(t *testing.T) {
	ctx := context.Background()
	db, repo, d := setupPseudonymRepo(t)
	tx := NewTransactor(db)

	err := tx.InTransaction(ctx, func(ctx context.Context) error {
		outcome, err := repo.Insert(ctx, newTestRecord(d.ID, "carol", "T-000010"), false)
		require.NoError(t, err)
		require.Equal(t, repository.InsertCreated, outcome)
		return errors.ErrInternal("abort")
	})
	require.Error(t, err)

	_, err = repo.FindByPseudonym(ctx, d.ID, "T-000010")
	assert.True(t, errors.IsNotFound(err))
}

func TestPseudonymRepository_InsertBatch(t *testing.T) {
	ctx := context.Background()
	_, repo, d := setupPseudonymRepo(t)

	_, err := repo.Insert(ctx, newTestRecord(d.ID, "alice", "T-000001"), false)
	require.NoError(t, err)

	batch := []*models.Pseudonym{
		newTestRecord("", "alice", "T-000100"), // identifier already stored
		newTestRecord("", "bob", "T-000001"),   // pseudonym already stored
		newTestRecord("", "carol", "T-000101"),
		newTestRecord("", "carol", "T-000102"), // repeats carol within the batch
		newTestRecord("", "dave", "T-000103"),
	}
	result, err := repo.InsertBatch(ctx, d.ID, batch, false)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Succeeded)
	assert.Equal(t, 3, result.Ignored)

	count, err := repo.CountByDomain(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)

	empty, err := repo.InsertBatch(ctx, d.ID, nil, false)
	require.NoError(t, err)
	assert.Zero(t, empty.Succeeded+empty.Ignored)
}

func TestPseudonymRepository_Update(t *testing.T) {
	ctx := context.Background()
	_, repo, d := setupPseudonymRepo(t)

	_, err := repo.Insert(ctx, newTestRecord(d.ID, "alice", "T-000001"), false)
	require.NoError(t, err)

	renamed := "alicia"
	n, err := repo.Update(ctx, d.ID, models.PseudonymKey{Identifier: "alice", IDType: "ANY"}, models.PseudonymPatch{Identifier: &renamed})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	rec, err := repo.FindByPseudonym(ctx, d.ID, "T-000001")
	require.NoError(t, err)
	assert.Equal(t, "alicia", rec.Identifier)

	n, err = repo.Update(ctx, d.ID, models.PseudonymKey{Identifier: "nobody", IDType: "ANY"}, models.PseudonymPatch{Identifier: &renamed})
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestPseudonymRepository_UpdateAmbiguousSelectorRollsBack(t *testing.T) {
	ctx := context.Background()
	_, repo, d := setupPseudonymRepo(t)

	_, err := repo.Insert(ctx, newTestRecord(d.ID, "alice", "T-000001"), true)
	require.NoError(t, err)
	_, err = repo.Insert(ctx, newTestRecord(d.ID, "alice", "T-000002"), true)
	require.NoError(t, err)

	renamed := "alicia"
	_, err = repo.Update(ctx, d.ID, models.PseudonymKey{Identifier: "alice", IDType: "ANY"}, models.PseudonymPatch{Identifier: &renamed})
	assert.True(t, errors.IsUnexpectedResultSize(err))

	records, err := repo.FindByIdentifier(ctx, d.ID, "alice", "ANY")
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestPseudonymRepository_UpdateBatchIsAtomic(t *testing.T) {
	ctx := context.Background()
	_, repo, d := setupPseudonymRepo(t)

	_, err := repo.Insert(ctx, newTestRecord(d.ID, "alice", "T-000001"), true)
	require.NoError(t, err)
	_, err = repo.Insert(ctx, newTestRecord(d.ID, "bob", "T-000002"), true)
	require.NoError(t, err)
	_, err = repo.Insert(ctx, newTestRecord(d.ID, "bob", "T-000003"), true)
	require.NoError(t, err)

	newValue := "T-000009"
	other := "T-000008"
	result, err := repo.UpdateBatch(ctx, d.ID, []models.PseudonymUpdate{
		{Old: models.PseudonymKey{Identifier: "alice", IDType: "ANY"}, New: models.PseudonymPatch{Pseudonym: &newValue}},
		{Old: models.PseudonymKey{Identifier: "nobody", IDType: "ANY"}, New: models.PseudonymPatch{Pseudonym: &other}},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Succeeded)
	assert.Equal(t, 1, result.Ignored)

	reverted := "T-000001"
	robert := "robert"
	_, err = repo.UpdateBatch(ctx, d.ID, []models.PseudonymUpdate{
		{Old: models.PseudonymKey{Identifier: "alice", IDType: "ANY"}, New: models.PseudonymPatch{Pseudonym: &reverted}},
		{Old: models.PseudonymKey{Identifier: "bob", IDType: "ANY"}, New: models.PseudonymPatch{Identifier: &robert}},
	})
	assert.True(t, errors.IsUnexpectedResultSize(err))

	_, err = repo.FindByPseudonym(ctx, d.ID, "T-000009")
	assert.NoError(t, err, "first item of the failed batch must be rolled back")
}

func TestPseudonymRepository_Delete(t *testing.T) {
	ctx := context.Background()
	_, repo, d := setupPseudonymRepo(t)

	_, err := repo.Insert(ctx, newTestRecord(d.ID, "alice", "T-000001"), false)
	require.NoError(t, err)
	_, err = repo.Insert(ctx, newTestRecord(d.ID, "bob", "T-000002"), false)
	require.NoError(t, err)

	key := models.PseudonymKey{Identifier: "alice", IDType: "ANY", Pseudonym: "T-000001"}
	n, err := repo.Delete(ctx, d.ID, key)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = repo.Delete(ctx, d.ID, key)
	require.NoError(t, err)
	assert.Zero(t, n)

	result, err := repo.DeleteBatch(ctx, d.ID, []models.PseudonymKey{
		{Identifier: "bob", IDType: "ANY"},
		{Identifier: "alice", IDType: "ANY"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Succeeded)
	assert.Equal(t, 1, result.Ignored)

	_, err = repo.Insert(ctx, newTestRecord(d.ID, "erin", "T-000005"), false)
	require.NoError(t, err)
	removed, err := repo.DeleteByDomain(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)
}
