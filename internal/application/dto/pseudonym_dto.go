package dto

import (
	"time"

	"github.com/turtacn/psn/internal/domain/models"
)

// AllocateRequest asks for the pseudonym of an identifier. Pseudonym, when set,
// is stored verbatim instead of a generated one.
type AllocateRequest struct {
	Identifier   string     `json:"identifier" validate:"required"`
	IDType       string     `json:"id_type" validate:"required"`
	Pseudonym    *string    `json:"pseudonym,omitempty"`
	ValidFrom    *time.Time `json:"valid_from,omitempty"`
	ValidTo      *time.Time `json:"valid_to,omitempty"`
	ValidityTime *string    `json:"validity_time,omitempty"`
	OmitPrefix   bool       `json:"omit_prefix,omitempty"`
}

// AllocateResponse wraps an allocated record. Created is false when an existing record was returned.
type AllocateResponse struct {
	Record  *models.Pseudonym `json:"record"`
	Created bool              `json:"created"`
}

// BatchCreateRequest carries the items of a batch insert.
type BatchCreateRequest struct {
	Items []AllocateRequest `json:"items" validate:"required,dive"`
}

// BatchUpdateRequest carries the items of a batch update.
type BatchUpdateRequest struct {
	Items []models.PseudonymUpdate `json:"items" validate:"required"`
}

// BatchDeleteRequest carries the selectors of a batch delete.
type BatchDeleteRequest struct {
	Items []models.PseudonymKey `json:"items" validate:"required"`
}

// ValidationResponse reports whether a pseudonym carries a correct check symbol.
type ValidationResponse struct {
	Pseudonym string `json:"pseudonym"`
	Valid     bool   `json:"valid"`
}

// CheckDigitResponse returns a raw value with its check symbol appended.
type CheckDigitResponse struct {
	Raw       string `json:"raw"`
	Pseudonym string `json:"pseudonym"`
}
