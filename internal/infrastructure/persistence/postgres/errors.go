package postgres

import (
	stderrors "errors"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

const (
	uniqueViolation = "23505" // unique_violation

	identifierIndex = "idx_pseudonyms_domain_identifier"
	pseudonymIndex  = "idx_pseudonyms_domain_psn"
)

// uniqueConflict reports whether err is a unique constraint violation and, when
// the driver exposes it, the name of the violated index.
func uniqueConflict(err error) (index string, ok bool) {
	var pgErr *pgconn.PgError
	if stderrors.As(err, &pgErr) {
		if pgErr.Code == uniqueViolation {
			return pgErr.ConstraintName, true
		}
		return "", false
	}
	if stderrors.Is(err, gorm.ErrDuplicatedKey) {
		return "", true
	}
	return "", false
}
