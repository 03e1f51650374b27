package postgres

import (
	"context"
	stderrors "errors"
	"time"

	"gorm.io/gorm"

	"github.com/turtacn/psn/internal/domain/models"
	"github.com/turtacn/psn/internal/domain/repository"
	"github.com/turtacn/psn/pkg/errors"
	"github.com/turtacn/psn/pkg/logger"
)

// DomainRepoImpl implements DomainRepository interface using PostgreSQL.
type DomainRepoImpl struct {
	db     *gorm.DB
	logger logger.Logger
}

// NewDomainRepository creates a new PostgreSQL-based domain repository instance.
func NewDomainRepository(db *gorm.DB, log logger.Logger) repository.DomainRepository {
	return &DomainRepoImpl{
		db:     db,
		logger: log.WithComponent("DomainRepository"),
	}
}

// Create persists a resolved domain.
func (r *DomainRepoImpl) Create(ctx context.Context, domain *models.Domain) error {
	startTime := time.Now()

	if err := session(ctx, r.db).Create(domain).Error; err != nil {
		if _, dup := uniqueConflict(err); dup {
			r.logger.Warn(ctx, "Domain name already taken", logger.String("domain", domain.Name))
			return errors.ErrUnprocessableEntity("domain already exists: " + domain.Name)
		}
		r.logger.Error(ctx, "Failed to create domain", err,
			logger.String("domain", domain.Name),
		)
		return errors.ErrDatabaseOperation(err)
	}

	r.logger.Info(ctx, "Domain created successfully",
		logger.String("domain_id", domain.ID),
		logger.String("domain", domain.Name),
		logger.String("algorithm", string(domain.Algorithm)),
		logger.Int64("latency_ms", time.Since(startTime).Milliseconds()),
	)
	return nil
}

// Save overwrites every column of an existing domain.
func (r *DomainRepoImpl) Save(ctx context.Context, domain *models.Domain) error {
	domain.UpdatedAt = time.Now().UTC()

	result := session(ctx, r.db).
		Model(&models.Domain{}).
		Where("id = ?", domain.ID).
		Select("*").
		Omit("id", "created_at").
		Updates(domain)

	if result.Error != nil {
		if _, dup := uniqueConflict(result.Error); dup {
			return errors.ErrUnprocessableEntity("domain already exists: " + domain.Name)
		}
		r.logger.Error(ctx, "Failed to update domain", result.Error,
			logger.String("domain_id", domain.ID),
		)
		return errors.ErrDatabaseOperation(result.Error)
	}

	if result.RowsAffected == 0 {
		r.logger.Warn(ctx, "Domain not found for update", logger.String("domain_id", domain.ID))
		return errors.ErrDomainNotFound(domain.Name)
	}

	r.logger.Debug(ctx, "Domain updated successfully",
		logger.String("domain_id", domain.ID),
		logger.String("domain", domain.Name),
	)
	return nil
}

// FindByName retrieves a domain by its unique name.
func (r *DomainRepoImpl) FindByName(ctx context.Context, name string) (*models.Domain, error) {
	var domain models.Domain
	err := session(ctx, r.db).Where("name = ?", name).First(&domain).Error
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			r.logger.Debug(ctx, "Domain not found", logger.String("domain", name))
			return nil, errors.ErrDomainNotFound(name)
		}
		r.logger.Error(ctx, "Failed to retrieve domain by name", err, logger.String("domain", name))
		return nil, errors.ErrDatabaseOperation(err)
	}
	return &domain, nil
}

// FindByID retrieves a domain by its id.
func (r *DomainRepoImpl) FindByID(ctx context.Context, id string) (*models.Domain, error) {
	var domain models.Domain
	err := session(ctx, r.db).Where("id = ?", id).First(&domain).Error
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.ErrNotFound("domain", id)
		}
		r.logger.Error(ctx, "Failed to retrieve domain by ID", err, logger.String("domain_id", id))
		return nil, errors.ErrDatabaseOperation(err)
	}
	return &domain, nil
}

// FindChildren lists the direct children of a domain ordered by name.
func (r *DomainRepoImpl) FindChildren(ctx context.Context, parentID string) ([]*models.Domain, error) {
	var children []*models.Domain
	err := session(ctx, r.db).
		Where("super_domain_id = ?", parentID).
		Order("name").
		Find(&children).Error
	if err != nil {
		r.logger.Error(ctx, "Failed to list child domains", err, logger.String("domain_id", parentID))
		return nil, errors.ErrDatabaseOperation(err)
	}
	return children, nil
}

// FindAll lists domains ordered by name. A non-positive limit returns every domain.
func (r *DomainRepoImpl) FindAll(ctx context.Context, limit, offset int) ([]*models.Domain, error) {
	var domains []*models.Domain
	query := session(ctx, r.db).Order("name")
	if limit > 0 {
		query = query.Limit(limit).Offset(offset)
	}
	if err := query.Find(&domains).Error; err != nil {
		r.logger.Error(ctx, "Failed to list domains", err)
		return nil, errors.ErrDatabaseOperation(err)
	}
	return domains, nil
}

// Delete removes a single domain row.
func (r *DomainRepoImpl) Delete(ctx context.Context, id string) error {
	result := session(ctx, r.db).Where("id = ?", id).Delete(&models.Domain{})
	if result.Error != nil {
		r.logger.Error(ctx, "Failed to delete domain", result.Error, logger.String("domain_id", id))
		return errors.ErrDatabaseOperation(result.Error)
	}
	if result.RowsAffected > 1 {
		return errors.ErrUnexpectedResultSize("delete domain", result.RowsAffected)
	}
	return nil
}

// NextConsecutiveValue increments the counter and reads it back in one transaction.
// The UPDATE takes the row lock, so concurrent callers never see the same value.
func (r *DomainRepoImpl) NextConsecutiveValue(ctx context.Context, id string) (int64, error) {
	var next int64
	err := inTx(ctx, r.db, func(ctx context.Context, tx *gorm.DB) error {
		result := tx.Model(&models.Domain{}).
			Where("id = ?", id).
			UpdateColumn("consecutive_value_counter", gorm.Expr("consecutive_value_counter + ?", 1))
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected != 1 {
			return errors.ErrNotFound("domain", id)
		}
		return tx.Model(&models.Domain{}).
			Select("consecutive_value_counter").
			Where("id = ?", id).
			Row().
			Scan(&next)
	})
	if err != nil {
		if _, ok := errors.AsPSNError(err); ok {
			return 0, err
		}
		r.logger.Error(ctx, "Failed to advance consecutive counter", err, logger.String("domain_id", id))
		return 0, errors.ErrDatabaseOperation(err)
	}
	return next - 1, nil
}
