package models

import (
	"time"
)

// Pseudonym is a record mapping an identifier of a given type to its surrogate value in one domain.
type Pseudonym struct {
	ID         uint64 `json:"-" gorm:"primaryKey;autoIncrement"`
	DomainID   string `json:"domain_id" gorm:"type:varchar(36);not null;uniqueIndex:idx_pseudonyms_domain_psn,priority:1;uniqueIndex:idx_pseudonyms_domain_identifier,priority:1,where:multiple_allowed = false"`
	Identifier string `json:"identifier" gorm:"not null;uniqueIndex:idx_pseudonyms_domain_identifier,priority:2,where:multiple_allowed = false"`
	IDType     string `json:"id_type" gorm:"column:id_type;not null;uniqueIndex:idx_pseudonyms_domain_identifier,priority:3,where:multiple_allowed = false"`
	Value      string `json:"pseudonym" gorm:"column:pseudonym;not null;uniqueIndex:idx_pseudonyms_domain_psn,priority:2"`

	// MultipleAllowed snapshots the domain flag so the partial unique index can
	// enforce identifier uniqueness only where the domain requires it.
	MultipleAllowed bool `json:"-" gorm:"not null;default:false"`

	ValidFrom          time.Time `json:"valid_from"`
	ValidFromInherited bool      `json:"valid_from_inherited"`
	ValidTo            time.Time `json:"valid_to"`
	ValidToInherited   bool      `json:"valid_to_inherited"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName pins the table name for gorm.
func (Pseudonym) TableName() string {
	return "pseudonyms"
}

// PseudonymKey selects an existing record. Pseudonym is optional; when empty the
// record is addressed by (identifier, idType) alone.
type PseudonymKey struct {
	Identifier string `json:"identifier"`
	IDType     string `json:"id_type"`
	Pseudonym  string `json:"pseudonym,omitempty"`
}

// PseudonymPatch holds the fields of an update; nil fields are left unchanged.
type PseudonymPatch struct {
	Identifier         *string    `json:"identifier,omitempty"`
	IDType             *string    `json:"id_type,omitempty"`
	Pseudonym          *string    `json:"pseudonym,omitempty"`
	ValidFrom          *time.Time `json:"valid_from,omitempty"`
	ValidFromInherited *bool      `json:"-"`
	ValidTo            *time.Time `json:"valid_to,omitempty"`
	ValidToInherited   *bool      `json:"-"`
}

// IsEmpty reports whether the patch changes nothing.
func (p *PseudonymPatch) IsEmpty() bool {
	return p.Identifier == nil && p.IDType == nil && p.Pseudonym == nil && p.ValidFrom == nil && p.ValidTo == nil
}

// Columns returns the column -> value map for a partial gorm update.
func (p *PseudonymPatch) Columns() map[string]interface{} {
	cols := make(map[string]interface{})
	if p.Identifier != nil {
		cols["identifier"] = *p.Identifier
	}
	if p.IDType != nil {
		cols["id_type"] = *p.IDType
	}
	if p.Pseudonym != nil {
		cols["pseudonym"] = *p.Pseudonym
	}
	if p.ValidFrom != nil {
		cols["valid_from"] = *p.ValidFrom
		if p.ValidFromInherited != nil {
			cols["valid_from_inherited"] = *p.ValidFromInherited
		} else {
			cols["valid_from_inherited"] = false
		}
	}
	if p.ValidTo != nil {
		cols["valid_to"] = *p.ValidTo
		if p.ValidToInherited != nil {
			cols["valid_to_inherited"] = *p.ValidToInherited
		} else {
			cols["valid_to_inherited"] = false
		}
	}
	return cols
}

// PseudonymUpdate pairs a selector with the changes to apply.
type PseudonymUpdate struct {
	Old PseudonymKey   `json:"old"`
	New PseudonymPatch `json:"new"`
}
