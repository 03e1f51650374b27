// Package models defines the domain models for the PSN pseudonymization service.
// This file contains the Domain model: a named, hierarchical configuration namespace.
package models

import (
	"time"

	"github.com/turtacn/psn/pkg/constants"
)

// Domain is a named configuration namespace for pseudonym generation.
// Every inheritable attribute carries an Inherited flag recording where the value
// came from when the domain was resolved. The flag is a snapshot: later parent
// changes reach a child only through an explicit cascading update.
type Domain struct {
	ID            string  `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Name          string  `json:"name" gorm:"uniqueIndex;not null;type:varchar(255)"`
	Description   string  `json:"description,omitempty"`
	SuperDomainID *string `json:"super_domain_id,omitempty" gorm:"index;type:varchar(36)"`

	Prefix          string `json:"prefix"`
	PrefixInherited bool   `json:"prefix_inherited"`

	ValidFrom          time.Time `json:"valid_from"`
	ValidFromInherited bool      `json:"valid_from_inherited"`
	ValidTo            time.Time `json:"valid_to"`
	ValidToInherited   bool      `json:"valid_to_inherited"`

	EnforceStartDateValidity          bool `json:"enforce_start_date_validity"`
	EnforceStartDateValidityInherited bool `json:"enforce_start_date_validity_inherited"`
	EnforceEndDateValidity            bool `json:"enforce_end_date_validity"`
	EnforceEndDateValidityInherited   bool `json:"enforce_end_date_validity_inherited"`

	Algorithm          constants.Algorithm `json:"algorithm" gorm:"type:varchar(32)"`
	AlgorithmInherited bool                `json:"algorithm_inherited"`
	Alphabet           string              `json:"alphabet"`
	AlphabetInherited  bool                `json:"alphabet_inherited"`

	RandomAlgorithmDesiredSize                        int64   `json:"random_algorithm_desired_size"`
	RandomAlgorithmDesiredSizeInherited               bool    `json:"random_algorithm_desired_size_inherited"`
	RandomAlgorithmDesiredSuccessProbability          float64 `json:"random_algorithm_desired_success_probability"`
	RandomAlgorithmDesiredSuccessProbabilityInherited bool    `json:"random_algorithm_desired_success_probability_inherited"`

	MultiplePsnAllowed          bool `json:"multiple_psn_allowed"`
	MultiplePsnAllowedInherited bool `json:"multiple_psn_allowed_inherited"`

	ConsecutiveValueCounter          int64 `json:"consecutive_value_counter"`
	ConsecutiveValueCounterInherited bool  `json:"consecutive_value_counter_inherited"`

	PseudonymLength                   int    `json:"pseudonym_length"`
	PseudonymLengthInherited          bool   `json:"pseudonym_length_inherited"`
	PaddingCharacter                  string `json:"padding_character" gorm:"type:varchar(4)"`
	PaddingCharacterInherited         bool   `json:"padding_character_inherited"`
	AddCheckDigit                     bool   `json:"add_check_digit"`
	AddCheckDigitInherited            bool   `json:"add_check_digit_inherited"`
	LengthIncludesCheckDigit          bool   `json:"length_includes_check_digit"`
	LengthIncludesCheckDigitInherited bool   `json:"length_includes_check_digit_inherited"`

	Salt                string `json:"-"`
	SaltInherited       bool   `json:"salt_inherited"`
	SaltLength          int    `json:"salt_length"`
	SaltLengthInherited bool   `json:"salt_length_inherited"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName pins the table name for gorm.
func (Domain) TableName() string {
	return "domains"
}

// IsRoot reports whether the domain has no parent.
func (d *Domain) IsRoot() bool {
	return d.SuperDomainID == nil || *d.SuperDomainID == ""
}

// BodyLength returns the number of generated symbols, excluding prefix and check digit.
func (d *Domain) BodyLength() int {
	if d.AddCheckDigit && d.LengthIncludesCheckDigit {
		return d.PseudonymLength - 1
	}
	return d.PseudonymLength
}

// IsValidAt reports whether t lies in the domain window for the enforced bounds.
func (d *Domain) IsValidAt(t time.Time) bool {
	if d.EnforceStartDateValidity && t.Before(d.ValidFrom) {
		return false
	}
	if d.EnforceEndDateValidity && t.After(d.ValidTo) {
		return false
	}
	return true
}

// Clone returns a copy that shares no pointers with d.
func (d *Domain) Clone() *Domain {
	c := *d
	if d.SuperDomainID != nil {
		id := *d.SuperDomainID
		c.SuperDomainID = &id
	}
	return &c
}

// DomainInput carries the caller-supplied values for a new domain or a patch.
// A nil field means "not supplied": inherit on creation, leave untouched on update.
type DomainInput struct {
	Name            *string `json:"name,omitempty"`
	Description     *string `json:"description,omitempty"`
	SuperDomainName *string `json:"super_domain_name,omitempty"`

	Prefix       *string    `json:"prefix,omitempty"`
	ValidFrom    *time.Time `json:"valid_from,omitempty"`
	ValidTo      *time.Time `json:"valid_to,omitempty"`
	ValidityTime *string    `json:"validity_time,omitempty"`

	EnforceStartDateValidity *bool `json:"enforce_start_date_validity,omitempty"`
	EnforceEndDateValidity   *bool `json:"enforce_end_date_validity,omitempty"`

	Algorithm *constants.Algorithm `json:"algorithm,omitempty"`
	Alphabet  *string              `json:"alphabet,omitempty"`

	RandomAlgorithmDesiredSize               *int64   `json:"random_algorithm_desired_size,omitempty"`
	RandomAlgorithmDesiredSuccessProbability *float64 `json:"random_algorithm_desired_success_probability,omitempty"`

	MultiplePsnAllowed       *bool   `json:"multiple_psn_allowed,omitempty"`
	ConsecutiveValueCounter  *int64  `json:"consecutive_value_counter,omitempty"`
	PseudonymLength          *int    `json:"pseudonym_length,omitempty"`
	PaddingCharacter         *string `json:"padding_character,omitempty"`
	AddCheckDigit            *bool   `json:"add_check_digit,omitempty"`
	LengthIncludesCheckDigit *bool   `json:"length_includes_check_digit,omitempty"`
	Salt                     *string `json:"salt,omitempty"`
	SaltLength               *int    `json:"salt_length,omitempty"`
}

// IsEmpty reports whether no field at all was supplied.
func (in *DomainInput) IsEmpty() bool {
	return in == nil || (in.Name == nil && in.Description == nil && in.SuperDomainName == nil &&
		in.Prefix == nil && in.ValidFrom == nil && in.ValidTo == nil && in.ValidityTime == nil &&
		in.EnforceStartDateValidity == nil && in.EnforceEndDateValidity == nil &&
		in.Algorithm == nil && in.Alphabet == nil &&
		in.RandomAlgorithmDesiredSize == nil && in.RandomAlgorithmDesiredSuccessProbability == nil &&
		in.MultiplePsnAllowed == nil && in.ConsecutiveValueCounter == nil && in.PseudonymLength == nil &&
		in.PaddingCharacter == nil && in.AddCheckDigit == nil && in.LengthIncludesCheckDigit == nil &&
		in.Salt == nil && in.SaltLength == nil)
}

// TouchesGeneration reports whether the patch changes how pseudonyms are generated.
// Such fields stay mutable only while the domain holds no records.
func (in *DomainInput) TouchesGeneration() bool {
	return in.Prefix != nil || in.Algorithm != nil || in.Alphabet != nil || in.PseudonymLength != nil ||
		in.PaddingCharacter != nil || in.AddCheckDigit != nil || in.LengthIncludesCheckDigit != nil ||
		in.Salt != nil || in.SaltLength != nil || in.MultiplePsnAllowed != nil
}
