package service

import (
	"github.com/turtacn/psn/internal/domain/models"
)

// Inheritable attribute names, as used in patches, cascades and API payloads.
const (
	FieldPrefix                    = "prefix"
	FieldValidFrom                 = "valid_from"
	FieldValidTo                   = "valid_to"
	FieldEnforceStartDateValidity  = "enforce_start_date_validity"
	FieldEnforceEndDateValidity    = "enforce_end_date_validity"
	FieldAlgorithm                 = "algorithm"
	FieldAlphabet                  = "alphabet"
	FieldDesiredSize               = "random_algorithm_desired_size"
	FieldDesiredSuccessProbability = "random_algorithm_desired_success_probability"
	FieldMultiplePsnAllowed        = "multiple_psn_allowed"
	FieldConsecutiveValueCounter   = "consecutive_value_counter"
	FieldPseudonymLength           = "pseudonym_length"
	FieldPaddingCharacter          = "padding_character"
	FieldAddCheckDigit             = "add_check_digit"
	FieldLengthIncludesCheckDigit  = "length_includes_check_digit"
	FieldSalt                      = "salt"
	FieldSaltLength                = "salt_length"
)

// domainField binds an attribute name to its inherited flag and its copy rule.
type domainField struct {
	name      string
	inherited func(d *models.Domain) *bool
	copy      func(dst, src *models.Domain)
	// generation marks attributes that change how pseudonyms are produced
	generation bool
}

var domainFields = []domainField{
	{FieldPrefix, func(d *models.Domain) *bool { return &d.PrefixInherited },
		func(dst, src *models.Domain) { dst.Prefix = src.Prefix }, true},
	{FieldValidFrom, func(d *models.Domain) *bool { return &d.ValidFromInherited },
		func(dst, src *models.Domain) { dst.ValidFrom = src.ValidFrom }, false},
	{FieldValidTo, func(d *models.Domain) *bool { return &d.ValidToInherited },
		func(dst, src *models.Domain) { dst.ValidTo = src.ValidTo }, false},
	{FieldEnforceStartDateValidity, func(d *models.Domain) *bool { return &d.EnforceStartDateValidityInherited },
		func(dst, src *models.Domain) { dst.EnforceStartDateValidity = src.EnforceStartDateValidity }, false},
	{FieldEnforceEndDateValidity, func(d *models.Domain) *bool { return &d.EnforceEndDateValidityInherited },
		func(dst, src *models.Domain) { dst.EnforceEndDateValidity = src.EnforceEndDateValidity }, false},
	{FieldAlgorithm, func(d *models.Domain) *bool { return &d.AlgorithmInherited },
		func(dst, src *models.Domain) { dst.Algorithm = src.Algorithm }, true},
	{FieldAlphabet, func(d *models.Domain) *bool { return &d.AlphabetInherited },
		func(dst, src *models.Domain) { dst.Alphabet = src.Alphabet }, true},
	{FieldDesiredSize, func(d *models.Domain) *bool { return &d.RandomAlgorithmDesiredSizeInherited },
		func(dst, src *models.Domain) { dst.RandomAlgorithmDesiredSize = src.RandomAlgorithmDesiredSize }, false},
	{FieldDesiredSuccessProbability, func(d *models.Domain) *bool { return &d.RandomAlgorithmDesiredSuccessProbabilityInherited },
		func(dst, src *models.Domain) {
			dst.RandomAlgorithmDesiredSuccessProbability = src.RandomAlgorithmDesiredSuccessProbability
		}, false},
	{FieldMultiplePsnAllowed, func(d *models.Domain) *bool { return &d.MultiplePsnAllowedInherited },
		func(dst, src *models.Domain) { dst.MultiplePsnAllowed = src.MultiplePsnAllowed }, true},
	{FieldConsecutiveValueCounter, func(d *models.Domain) *bool { return &d.ConsecutiveValueCounterInherited },
		func(dst, src *models.Domain) { dst.ConsecutiveValueCounter = src.ConsecutiveValueCounter }, false},
	{FieldPseudonymLength, func(d *models.Domain) *bool { return &d.PseudonymLengthInherited },
		func(dst, src *models.Domain) { dst.PseudonymLength = src.PseudonymLength }, true},
	{FieldPaddingCharacter, func(d *models.Domain) *bool { return &d.PaddingCharacterInherited },
		func(dst, src *models.Domain) { dst.PaddingCharacter = src.PaddingCharacter }, true},
	{FieldAddCheckDigit, func(d *models.Domain) *bool { return &d.AddCheckDigitInherited },
		func(dst, src *models.Domain) { dst.AddCheckDigit = src.AddCheckDigit }, true},
	{FieldLengthIncludesCheckDigit, func(d *models.Domain) *bool { return &d.LengthIncludesCheckDigitInherited },
		func(dst, src *models.Domain) { dst.LengthIncludesCheckDigit = src.LengthIncludesCheckDigit }, true},
	{FieldSalt, func(d *models.Domain) *bool { return &d.SaltInherited },
		func(dst, src *models.Domain) { dst.Salt = src.Salt }, true},
	{FieldSaltLength, func(d *models.Domain) *bool { return &d.SaltLengthInherited },
		func(dst, src *models.Domain) { dst.SaltLength = src.SaltLength }, true},
}

func lookupField(name string) (domainField, bool) {
	for _, f := range domainFields {
		if f.name == name {
			return f, true
		}
	}
	return domainField{}, false
}
