package service

import (
	"math"
	"time"

	"github.com/turtacn/psn/internal/domain/models"
	"github.com/turtacn/psn/pkg/constants"
	"github.com/turtacn/psn/pkg/errors"
	"github.com/turtacn/psn/pkg/utils"
)

// ValidityInput carries the caller-supplied validity of a record or domain.
// ValidityTime is a relative duration such as "1 year" added to the resolved start.
type ValidityInput struct {
	ValidFrom    *time.Time
	ValidTo      *time.Time
	ValidityTime *string
}

// Validity is a resolved window with its provenance flags.
type Validity struct {
	ValidFrom          time.Time
	ValidFromInherited bool
	ValidTo            time.Time
	ValidToInherited   bool
}

// ValidityResolver resolves validity windows for records and domains.
type ValidityResolver struct{}

// NewValidityResolver creates a ValidityResolver.
func NewValidityResolver() *ValidityResolver {
	return &ValidityResolver{}
}

// ResolveRecord resolves a record window inside domain. Explicit values win,
// then a relative duration added to the start, then the domain bound (inherited).
// Enforced domain bounds clamp the record window; a clamped bound is flagged inherited.
func (r *ValidityResolver) ResolveRecord(domain *models.Domain, in ValidityInput) (Validity, error) {
	var v Validity

	if in.ValidFrom != nil {
		v.ValidFrom = in.ValidFrom.UTC()
	} else {
		v.ValidFrom, v.ValidFromInherited = domain.ValidFrom, true
	}

	switch {
	case in.ValidTo != nil:
		v.ValidTo = in.ValidTo.UTC()
	case in.ValidityTime != nil:
		end, err := addValidityTime(v.ValidFrom, *in.ValidityTime)
		if err != nil {
			return Validity{}, err
		}
		v.ValidTo = end
	default:
		v.ValidTo, v.ValidToInherited = domain.ValidTo, true
	}

	if domain.EnforceStartDateValidity && v.ValidFrom.Before(domain.ValidFrom) {
		v.ValidFrom, v.ValidFromInherited = domain.ValidFrom, true
	}
	if domain.EnforceEndDateValidity && v.ValidTo.After(domain.ValidTo) {
		v.ValidTo, v.ValidToInherited = domain.ValidTo, true
	}

	if v.ValidTo.Before(v.ValidFrom) {
		return Validity{}, errors.ErrUnprocessableEntity("valid_to lies before valid_from")
	}
	return v, nil
}

// ClampPatch clamps the validity fields present in patch into the enforced
// domain bounds and flags the clamped ones inherited. Absent fields stay absent.
func (r *ValidityResolver) ClampPatch(domain *models.Domain, patch *models.PseudonymPatch) error {
	if patch.ValidFrom != nil {
		from, inherited := patch.ValidFrom.UTC(), false
		if domain.EnforceStartDateValidity && from.Before(domain.ValidFrom) {
			from, inherited = domain.ValidFrom, true
		}
		patch.ValidFrom, patch.ValidFromInherited = &from, &inherited
	}
	if patch.ValidTo != nil {
		to, inherited := patch.ValidTo.UTC(), false
		if domain.EnforceEndDateValidity && to.After(domain.ValidTo) {
			to, inherited = domain.ValidTo, true
		}
		patch.ValidTo, patch.ValidToInherited = &to, &inherited
	}
	if patch.ValidFrom != nil && patch.ValidTo != nil && patch.ValidTo.Before(*patch.ValidFrom) {
		return errors.ErrUnprocessableEntity("valid_to lies before valid_from")
	}
	return nil
}

// ResolveDomain resolves the window of a new domain. validFrom: explicit, then
// parent, then now. validTo: explicit, then validFrom plus the relative duration,
// then parent, then validFrom plus the default validity. A parent that enforces a
// bound clamps the child window to its own.
func (r *ValidityResolver) ResolveDomain(in ValidityInput, parent *models.Domain, now time.Time) (Validity, error) {
	var v Validity

	switch {
	case in.ValidFrom != nil:
		v.ValidFrom = in.ValidFrom.UTC()
	case parent != nil:
		v.ValidFrom, v.ValidFromInherited = parent.ValidFrom, true
	default:
		v.ValidFrom = now.UTC()
	}

	switch {
	case in.ValidTo != nil:
		v.ValidTo = in.ValidTo.UTC()
	case in.ValidityTime != nil:
		end, err := addValidityTime(v.ValidFrom, *in.ValidityTime)
		if err != nil {
			return Validity{}, err
		}
		v.ValidTo = end
	case parent != nil:
		v.ValidTo, v.ValidToInherited = parent.ValidTo, true
	default:
		v.ValidTo = v.ValidFrom.Add(constants.DefaultValidityDuration)
	}

	if parent != nil {
		if parent.EnforceStartDateValidity && v.ValidFrom.Before(parent.ValidFrom) {
			v.ValidFrom, v.ValidFromInherited = parent.ValidFrom, true
		}
		if parent.EnforceEndDateValidity && v.ValidTo.After(parent.ValidTo) {
			v.ValidTo, v.ValidToInherited = parent.ValidTo, true
		}
	}

	if v.ValidTo.Before(v.ValidFrom) {
		return Validity{}, errors.ErrUnprocessableEntity("valid_to lies before valid_from")
	}
	return v, nil
}

func addValidityTime(start time.Time, raw string) (time.Time, error) {
	seconds, err := utils.ParseValidityTime(raw)
	if err != nil {
		return time.Time{}, err
	}
	if seconds > math.MaxInt64/int64(time.Second) {
		return time.Time{}, errors.ErrUnprocessableEntity("validity time out of range: " + raw)
	}
	return start.Add(time.Duration(seconds) * time.Second), nil
}
