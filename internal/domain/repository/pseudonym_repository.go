package repository

import (
	"context"

	"github.com/turtacn/psn/internal/domain/models"
)

// InsertOutcome is the typed result of a single insert. Uniqueness conflicts are
// expected outcomes of allocation, not errors.
type InsertOutcome int

const (
	InsertCreated InsertOutcome = iota
	InsertDuplicateIdentifier
	InsertDuplicatePseudonym
)

func (o InsertOutcome) String() string {
	switch o {
	case InsertCreated:
		return "created"
	case InsertDuplicateIdentifier:
		return "duplicate_identifier"
	case InsertDuplicatePseudonym:
		return "duplicate_pseudonym"
	default:
		return "unknown"
	}
}

// BatchResult accounts for the items of a batch operation.
type BatchResult struct {
	Succeeded int `json:"succeeded"`
	Ignored   int `json:"ignored"`
}

// PseudonymRepository is the record store. Every method runs in its own
// transaction unless the context already carries one (see Transactor).
type PseudonymRepository interface {
	// Insert checks the uniqueness invariant and stores the record. The error is
	// non-nil only for failures other than uniqueness conflicts.
	Insert(ctx context.Context, record *models.Pseudonym, allowMultiple bool) (InsertOutcome, error)

	// InsertBatch stores all records in one statement, skipping rows that violate uniqueness.
	InsertBatch(ctx context.Context, domainID string, records []*models.Pseudonym, allowMultiple bool) (*BatchResult, error)

	// Update applies a partial update to the single record selected by key.
	Update(ctx context.Context, domainID string, key models.PseudonymKey, patch models.PseudonymPatch) (int64, error)

	// UpdateBatch applies every update in one transaction.
	UpdateBatch(ctx context.Context, domainID string, updates []models.PseudonymUpdate) (*BatchResult, error)

	// Delete removes the record selected by key; an absent record is not an error.
	Delete(ctx context.Context, domainID string, key models.PseudonymKey) (int64, error)

	// DeleteBatch removes every selected record in one transaction.
	DeleteBatch(ctx context.Context, domainID string, keys []models.PseudonymKey) (*BatchResult, error)

	// DeleteByDomain removes all records of a domain.
	DeleteByDomain(ctx context.Context, domainID string) (int64, error)

	// FindByIdentifier lists the records of (identifier, idType) in a domain.
	FindByIdentifier(ctx context.Context, domainID, identifier, idType string) ([]*models.Pseudonym, error)

	// FindByPseudonym retrieves the record holding a pseudonym in a domain.
	FindByPseudonym(ctx context.Context, domainID, pseudonym string) (*models.Pseudonym, error)

	// CountByDomain returns the number of records in a domain.
	CountByDomain(ctx context.Context, domainID string) (int64, error)
}

// Transactor runs fn inside a single database transaction. Repositories called
// with the context passed to fn join that transaction; nested calls use savepoints.
type Transactor interface {
	InTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
