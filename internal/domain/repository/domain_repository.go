package repository

import (
	"context"

	"github.com/turtacn/psn/internal/domain/models"
)

// DomainRepository defines the interface for interacting with domain storage.
// Domains form a tree through SuperDomainID; the repository never follows the
// back-reference itself, callers walk the tree explicitly.
type DomainRepository interface {
	// Create persists a fully resolved domain.
	Create(ctx context.Context, domain *models.Domain) error

	// Save overwrites every column of an existing domain.
	Save(ctx context.Context, domain *models.Domain) error

	// FindByName retrieves a domain by its unique name.
	FindByName(ctx context.Context, name string) (*models.Domain, error)

	// FindByID retrieves a domain by its id.
	FindByID(ctx context.Context, id string) (*models.Domain, error)

	// FindChildren lists the direct children of a domain.
	FindChildren(ctx context.Context, parentID string) ([]*models.Domain, error)

	// FindAll lists domains ordered by name, with pagination.
	FindAll(ctx context.Context, limit, offset int) ([]*models.Domain, error)

	// Delete removes a single domain row. Deleting an absent domain is a no-op.
	Delete(ctx context.Context, id string) error

	// NextConsecutiveValue atomically increments the domain counter and returns the value before the increment.
	NextConsecutiveValue(ctx context.Context, id string) (int64, error)
}
