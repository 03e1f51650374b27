package postgres

import (
	"context"
	stderrors "errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/turtacn/psn/internal/domain/models"
	"github.com/turtacn/psn/internal/domain/repository"
	"github.com/turtacn/psn/pkg/errors"
	"github.com/turtacn/psn/pkg/logger"
)

// insertChunkSize keeps multi-row inserts below the postgres bind parameter limit.
const insertChunkSize = 1000

// PseudonymRepoImpl implements PseudonymRepository interface using PostgreSQL.
type PseudonymRepoImpl struct {
	db     *gorm.DB
	logger logger.Logger
}

// NewPseudonymRepository creates a new PostgreSQL-based pseudonym repository instance.
func NewPseudonymRepository(db *gorm.DB, log logger.Logger) repository.PseudonymRepository {
	return &PseudonymRepoImpl{
		db:     db,
		logger: log.WithComponent("PseudonymRepository"),
	}
}

// Insert checks both uniqueness rules and stores the record. A conflict that
// only the unique indexes catch (a concurrent insert) is classified after the
// savepoint around the INSERT has been rolled back.
func (r *PseudonymRepoImpl) Insert(ctx context.Context, record *models.Pseudonym, allowMultiple bool) (repository.InsertOutcome, error) {
	startTime := time.Now()
	record.MultipleAllowed = allowMultiple
	outcome := repository.InsertCreated

	err := inTx(ctx, r.db, func(ctx context.Context, tx *gorm.DB) error {
		if !allowMultiple {
			taken, err := r.identifierTaken(tx, record.DomainID, record.Identifier, record.IDType)
			if err != nil {
				return err
			}
			if taken {
				outcome = repository.InsertDuplicateIdentifier
				return nil
			}
		}
		taken, err := r.pseudonymTaken(tx, record.DomainID, record.Value)
		if err != nil {
			return err
		}
		if taken {
			outcome = repository.InsertDuplicatePseudonym
			return nil
		}

		createErr := tx.Transaction(func(sp *gorm.DB) error {
			return sp.Create(record).Error
		})
		if createErr == nil {
			return nil
		}
		index, dup := uniqueConflict(createErr)
		if !dup {
			return createErr
		}
		switch index {
		case identifierIndex:
			outcome = repository.InsertDuplicateIdentifier
		case pseudonymIndex:
			outcome = repository.InsertDuplicatePseudonym
		default:
			outcome = repository.InsertDuplicatePseudonym
			if !allowMultiple {
				if taken, err := r.identifierTaken(tx, record.DomainID, record.Identifier, record.IDType); err == nil && taken {
					outcome = repository.InsertDuplicateIdentifier
				}
			}
		}
		return nil
	})
	if err != nil {
		r.logger.Error(ctx, "Failed to insert pseudonym", err,
			logger.String("domain_id", record.DomainID),
			logger.String("id_type", record.IDType),
		)
		return outcome, errors.ErrInsertion(err)
	}

	if outcome != repository.InsertCreated {
		r.logger.Debug(ctx, "Pseudonym insert rejected by uniqueness rule",
			logger.String("domain_id", record.DomainID),
			logger.String("outcome", outcome.String()),
		)
		return outcome, nil
	}

	r.logger.Debug(ctx, "Pseudonym inserted",
		logger.String("domain_id", record.DomainID),
		logger.Int64("latency_ms", time.Since(startTime).Milliseconds()),
	)
	return outcome, nil
}

// InsertBatch drops rows that conflict with stored records or with earlier rows
// of the same batch, then inserts the rest with ON CONFLICT DO NOTHING so that
// concurrent writers cannot fail the batch.
func (r *PseudonymRepoImpl) InsertBatch(ctx context.Context, domainID string, records []*models.Pseudonym, allowMultiple bool) (*repository.BatchResult, error) {
	startTime := time.Now()
	result := &repository.BatchResult{}
	if len(records) == 0 {
		return result, nil
	}

	err := inTx(ctx, r.db, func(ctx context.Context, tx *gorm.DB) error {
		identifiers := make([]string, 0, len(records))
		values := make([]string, 0, len(records))
		for _, rec := range records {
			rec.DomainID = domainID
			rec.MultipleAllowed = allowMultiple
			identifiers = append(identifiers, rec.Identifier)
			values = append(values, rec.Value)
		}

		storedIdentifiers := make(map[[2]string]bool)
		if !allowMultiple {
			var existing []models.Pseudonym
			if err := tx.Select("identifier", "id_type").
				Where("domain_id = ? AND identifier IN ?", domainID, identifiers).
				Find(&existing).Error; err != nil {
				return err
			}
			for _, e := range existing {
				storedIdentifiers[[2]string{e.Identifier, e.IDType}] = true
			}
		}
		var storedValues []string
		if err := tx.Model(&models.Pseudonym{}).
			Where("domain_id = ? AND pseudonym IN ?", domainID, values).
			Pluck("pseudonym", &storedValues).Error; err != nil {
			return err
		}
		takenValues := make(map[string]bool, len(storedValues))
		for _, v := range storedValues {
			takenValues[v] = true
		}

		accepted := make([]*models.Pseudonym, 0, len(records))
		for _, rec := range records {
			key := [2]string{rec.Identifier, rec.IDType}
			if storedIdentifiers[key] || takenValues[rec.Value] {
				continue
			}
			if !allowMultiple {
				storedIdentifiers[key] = true
			}
			takenValues[rec.Value] = true
			accepted = append(accepted, rec)
		}
		if len(accepted) == 0 {
			return nil
		}

		created := tx.Clauses(clause.OnConflict{DoNothing: true}).CreateInBatches(accepted, insertChunkSize)
		if created.Error != nil {
			return created.Error
		}
		result.Succeeded = int(created.RowsAffected)
		return nil
	})
	if err != nil {
		r.logger.Error(ctx, "Failed to insert pseudonym batch", err,
			logger.String("domain_id", domainID),
			logger.Int("size", len(records)),
		)
		return nil, errors.ErrInsertion(err)
	}

	result.Ignored = len(records) - result.Succeeded
	r.logger.Info(ctx, "Pseudonym batch inserted",
		logger.String("domain_id", domainID),
		logger.Int("succeeded", result.Succeeded),
		logger.Int("ignored", result.Ignored),
		logger.Int64("latency_ms", time.Since(startTime).Milliseconds()),
	)
	return result, nil
}

// Update applies patch to the record selected by key and returns the affected row count.
// A count above one rolls the statement back.
func (r *PseudonymRepoImpl) Update(ctx context.Context, domainID string, key models.PseudonymKey, patch models.PseudonymPatch) (int64, error) {
	var affected int64
	err := inTx(ctx, r.db, func(ctx context.Context, tx *gorm.DB) error {
		n, err := r.updateOne(tx, domainID, key, patch)
		affected = n
		return err
	})
	if err != nil {
		return 0, r.wrapWriteError(ctx, "update", domainID, err)
	}
	return affected, nil
}

// UpdateBatch applies every update in one transaction. Items matching no row are
// ignored; an item matching several rows aborts the batch.
func (r *PseudonymRepoImpl) UpdateBatch(ctx context.Context, domainID string, updates []models.PseudonymUpdate) (*repository.BatchResult, error) {
	result := &repository.BatchResult{}
	err := inTx(ctx, r.db, func(ctx context.Context, tx *gorm.DB) error {
		for _, u := range updates {
			n, err := r.updateOne(tx, domainID, u.Old, u.New)
			if err != nil {
				return err
			}
			if n == 0 {
				result.Ignored++
				continue
			}
			result.Succeeded++
		}
		return nil
	})
	if err != nil {
		return nil, r.wrapWriteError(ctx, "update batch", domainID, err)
	}
	r.logger.Info(ctx, "Pseudonym batch updated",
		logger.String("domain_id", domainID),
		logger.Int("succeeded", result.Succeeded),
		logger.Int("ignored", result.Ignored),
	)
	return result, nil
}

// Delete removes the record selected by key.
func (r *PseudonymRepoImpl) Delete(ctx context.Context, domainID string, key models.PseudonymKey) (int64, error) {
	var affected int64
	err := inTx(ctx, r.db, func(ctx context.Context, tx *gorm.DB) error {
		n, err := r.deleteOne(tx, domainID, key)
		affected = n
		return err
	})
	if err != nil {
		return 0, r.wrapWriteError(ctx, "delete", domainID, err)
	}
	return affected, nil
}

// DeleteBatch removes every selected record in one transaction.
func (r *PseudonymRepoImpl) DeleteBatch(ctx context.Context, domainID string, keys []models.PseudonymKey) (*repository.BatchResult, error) {
	result := &repository.BatchResult{}
	err := inTx(ctx, r.db, func(ctx context.Context, tx *gorm.DB) error {
		for _, key := range keys {
			n, err := r.deleteOne(tx, domainID, key)
			if err != nil {
				return err
			}
			if n == 0 {
				result.Ignored++
				continue
			}
			result.Succeeded++
		}
		return nil
	})
	if err != nil {
		return nil, r.wrapWriteError(ctx, "delete batch", domainID, err)
	}
	r.logger.Info(ctx, "Pseudonym batch deleted",
		logger.String("domain_id", domainID),
		logger.Int("succeeded", result.Succeeded),
		logger.Int("ignored", result.Ignored),
	)
	return result, nil
}

// DeleteByDomain removes all records of a domain.
func (r *PseudonymRepoImpl) DeleteByDomain(ctx context.Context, domainID string) (int64, error) {
	result := session(ctx, r.db).Where("domain_id = ?", domainID).Delete(&models.Pseudonym{})
	if result.Error != nil {
		r.logger.Error(ctx, "Failed to delete domain records", result.Error, logger.String("domain_id", domainID))
		return 0, errors.ErrDatabaseOperation(result.Error)
	}
	return result.RowsAffected, nil
}

// FindByIdentifier lists the records of (identifier, idType) ordered by creation.
func (r *PseudonymRepoImpl) FindByIdentifier(ctx context.Context, domainID, identifier, idType string) ([]*models.Pseudonym, error) {
	var records []*models.Pseudonym
	err := session(ctx, r.db).
		Where("domain_id = ? AND identifier = ? AND id_type = ?", domainID, identifier, idType).
		Order("id").
		Find(&records).Error
	if err != nil {
		r.logger.Error(ctx, "Failed to look up pseudonym by identifier", err, logger.String("domain_id", domainID))
		return nil, errors.ErrDatabaseOperation(err)
	}
	return records, nil
}

// FindByPseudonym retrieves the record holding a pseudonym.
func (r *PseudonymRepoImpl) FindByPseudonym(ctx context.Context, domainID, pseudonym string) (*models.Pseudonym, error) {
	var record models.Pseudonym
	err := session(ctx, r.db).
		Where("domain_id = ? AND pseudonym = ?", domainID, pseudonym).
		First(&record).Error
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.ErrNotFound("pseudonym", pseudonym)
		}
		r.logger.Error(ctx, "Failed to look up pseudonym", err, logger.String("domain_id", domainID))
		return nil, errors.ErrDatabaseOperation(err)
	}
	return &record, nil
}

// CountByDomain returns the number of records in a domain.
func (r *PseudonymRepoImpl) CountByDomain(ctx context.Context, domainID string) (int64, error) {
	var count int64
	if err := session(ctx, r.db).Model(&models.Pseudonym{}).Where("domain_id = ?", domainID).Count(&count).Error; err != nil {
		r.logger.Error(ctx, "Failed to count domain records", err, logger.String("domain_id", domainID))
		return 0, errors.ErrDatabaseOperation(err)
	}
	return count, nil
}

func (r *PseudonymRepoImpl) identifierTaken(tx *gorm.DB, domainID, identifier, idType string) (bool, error) {
	var count int64
	err := tx.Model(&models.Pseudonym{}).
		Where("domain_id = ? AND identifier = ? AND id_type = ?", domainID, identifier, idType).
		Limit(1).
		Count(&count).Error
	return count > 0, err
}

func (r *PseudonymRepoImpl) pseudonymTaken(tx *gorm.DB, domainID, pseudonym string) (bool, error) {
	var count int64
	err := tx.Model(&models.Pseudonym{}).
		Where("domain_id = ? AND pseudonym = ?", domainID, pseudonym).
		Limit(1).
		Count(&count).Error
	return count > 0, err
}

// selectRecord narrows tx to the record addressed by key.
func selectRecord(tx *gorm.DB, domainID string, key models.PseudonymKey) *gorm.DB {
	q := tx.Model(&models.Pseudonym{}).
		Where("domain_id = ? AND identifier = ? AND id_type = ?", domainID, key.Identifier, key.IDType)
	if key.Pseudonym != "" {
		q = q.Where("pseudonym = ?", key.Pseudonym)
	}
	return q
}

func (r *PseudonymRepoImpl) updateOne(tx *gorm.DB, domainID string, key models.PseudonymKey, patch models.PseudonymPatch) (int64, error) {
	if patch.IsEmpty() {
		return 0, nil
	}
	cols := patch.Columns()
	cols["updated_at"] = time.Now().UTC()
	result := selectRecord(tx, domainID, key).Updates(cols)
	if result.Error != nil {
		return 0, result.Error
	}
	if result.RowsAffected > 1 {
		return result.RowsAffected, errors.ErrUnexpectedResultSize("update", result.RowsAffected)
	}
	return result.RowsAffected, nil
}

func (r *PseudonymRepoImpl) deleteOne(tx *gorm.DB, domainID string, key models.PseudonymKey) (int64, error) {
	q := tx.Where("domain_id = ? AND identifier = ? AND id_type = ?", domainID, key.Identifier, key.IDType)
	if key.Pseudonym != "" {
		q = q.Where("pseudonym = ?", key.Pseudonym)
	}
	result := q.Delete(&models.Pseudonym{})
	if result.Error != nil {
		return 0, result.Error
	}
	if result.RowsAffected > 1 {
		return result.RowsAffected, errors.ErrUnexpectedResultSize("delete", result.RowsAffected)
	}
	return result.RowsAffected, nil
}

// wrapWriteError maps a failed update or delete onto the error taxonomy.
func (r *PseudonymRepoImpl) wrapWriteError(ctx context.Context, operation, domainID string, err error) error {
	if psnErr, ok := errors.AsPSNError(err); ok {
		r.logger.Error(ctx, "Pseudonym "+operation+" rolled back", err,
			logger.String("domain_id", domainID),
			logger.String("code", string(psnErr.Code())),
		)
		return psnErr
	}
	if index, dup := uniqueConflict(err); dup {
		if index == identifierIndex {
			return errors.ErrDuplicateIdentifier(domainID, "", "")
		}
		return errors.ErrDuplicatePseudonym(domainID, "")
	}
	r.logger.Error(ctx, "Pseudonym "+operation+" failed", err, logger.String("domain_id", domainID))
	return errors.ErrDatabaseOperation(err)
}
