package service

import (
	"context"
	"reflect"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/turtacn/psn/internal/domain/models"
	"github.com/turtacn/psn/pkg/constants"
	"github.com/turtacn/psn/pkg/errors"
	"github.com/turtacn/psn/pkg/logger"
	"github.com/turtacn/psn/pkg/utils"
)

// DomainTree maps a domain id to its direct children.
type DomainTree map[string][]*models.Domain

// DomainResolver turns creation requests and patches into fully resolved domains.
// It holds no state; parents are passed in already resolved.
type DomainResolver struct {
	planner  *CapacityPlanner
	validity *ValidityResolver
	log      logger.Logger
}

// NewDomainResolver creates a DomainResolver.
func NewDomainResolver(planner *CapacityPlanner, validity *ValidityResolver, log logger.Logger) *DomainResolver {
	if log == nil {
		log = logger.NewNoopLogger()
	}
	return &DomainResolver{
		planner:  planner,
		validity: validity,
		log:      log.WithComponent("DomainResolver"),
	}
}

// Resolve builds a new domain from input. Every attribute takes the supplied
// value, else the parent's resolved value (flagged inherited), else the default.
func (r *DomainResolver) Resolve(ctx context.Context, in *models.DomainInput, parent *models.Domain, now time.Time) (*models.Domain, error) {
	if in.IsEmpty() {
		return nil, errors.ErrUnprocessableEntity("domain creation request is empty")
	}
	if in.Name == nil || *in.Name == "" {
		return nil, errors.ErrUnprocessableEntity("domain name is required")
	}
	if !utils.IsValidDomainName(*in.Name) {
		return nil, errors.ErrUnprocessableEntity("domain name contains characters outside letters, digits, '.', '_', '~' and '-'")
	}

	d := &models.Domain{
		ID:   uuid.NewString(),
		Name: *in.Name,
	}
	if in.Description != nil {
		d.Description = *in.Description
	}
	if parent != nil {
		parentID := parent.ID
		d.SuperDomainID = &parentID
	}

	d.Prefix, d.PrefixInherited = resolveString(in.Prefix, parent, func(p *models.Domain) string { return p.Prefix }, "")
	d.EnforceStartDateValidity, d.EnforceStartDateValidityInherited = resolveBool(in.EnforceStartDateValidity, parent,
		func(p *models.Domain) bool { return p.EnforceStartDateValidity }, constants.DefaultEnforceStartDate)
	d.EnforceEndDateValidity, d.EnforceEndDateValidityInherited = resolveBool(in.EnforceEndDateValidity, parent,
		func(p *models.Domain) bool { return p.EnforceEndDateValidity }, constants.DefaultEnforceEndDate)
	d.MultiplePsnAllowed, d.MultiplePsnAllowedInherited = resolveBool(in.MultiplePsnAllowed, parent,
		func(p *models.Domain) bool { return p.MultiplePsnAllowed }, constants.DefaultMultiplePsnAllowed)
	d.AddCheckDigit, d.AddCheckDigitInherited = resolveBool(in.AddCheckDigit, parent,
		func(p *models.Domain) bool { return p.AddCheckDigit }, constants.DefaultAddCheckDigit)
	d.LengthIncludesCheckDigit, d.LengthIncludesCheckDigitInherited = resolveBool(in.LengthIncludesCheckDigit, parent,
		func(p *models.Domain) bool { return p.LengthIncludesCheckDigit }, constants.DefaultLengthIncludesCheckDigit)

	window, err := r.validity.ResolveDomain(ValidityInput{
		ValidFrom:    in.ValidFrom,
		ValidTo:      in.ValidTo,
		ValidityTime: in.ValidityTime,
	}, parent, now)
	if err != nil {
		return nil, err
	}
	d.ValidFrom, d.ValidFromInherited = window.ValidFrom, window.ValidFromInherited
	d.ValidTo, d.ValidToInherited = window.ValidTo, window.ValidToInherited

	if err := r.resolveAlgorithm(ctx, d, in, parent); err != nil {
		return nil, err
	}
	if err := r.resolveCapacityInputs(d, in, parent); err != nil {
		return nil, err
	}
	if err := r.resolveLength(ctx, d, in, parent); err != nil {
		return nil, err
	}

	switch {
	case in.ConsecutiveValueCounter != nil:
		if *in.ConsecutiveValueCounter < 0 {
			return nil, errors.ErrUnprocessableEntity("consecutive_value_counter must not be negative")
		}
		d.ConsecutiveValueCounter = *in.ConsecutiveValueCounter
	case parent != nil:
		d.ConsecutiveValueCounter, d.ConsecutiveValueCounterInherited = parent.ConsecutiveValueCounter, true
	default:
		d.ConsecutiveValueCounter = constants.DefaultConsecutiveValueCounter
	}

	if err := r.resolveSalt(d, in, parent); err != nil {
		return nil, err
	}

	d.CreatedAt = now.UTC()
	d.UpdatedAt = now.UTC()
	return d, nil
}

func (r *DomainResolver) resolveAlgorithm(ctx context.Context, d *models.Domain, in *models.DomainInput, parent *models.Domain) error {
	switch {
	case in.Algorithm != nil:
		if !in.Algorithm.IsValid() {
			return errors.ErrUnprocessableEntity("unsupported algorithm: " + string(*in.Algorithm))
		}
		d.Algorithm = *in.Algorithm
	case parent != nil:
		d.Algorithm, d.AlgorithmInherited = parent.Algorithm, true
	default:
		d.Algorithm = constants.DefaultAlgorithm
	}

	switch {
	case in.Alphabet != nil:
		if d.Algorithm != constants.AlgorithmRandom {
			return errors.ErrUnprocessableEntity("an explicit alphabet is only accepted for the RANDOM algorithm")
		}
		d.Alphabet = *in.Alphabet
	case parent != nil && parent.Algorithm == d.Algorithm:
		d.Alphabet, d.AlphabetInherited = parent.Alphabet, true
	default:
		d.Alphabet = constants.DefaultAlphabet(d.Algorithm)
	}

	alphabet, err := r.NormalizeAlphabet(ctx, d.Alphabet, d.AddCheckDigit)
	if err != nil {
		return err
	}
	if alphabet != d.Alphabet {
		d.Alphabet, d.AlphabetInherited = alphabet, false
	}
	return nil
}

func (r *DomainResolver) resolveCapacityInputs(d *models.Domain, in *models.DomainInput, parent *models.Domain) error {
	switch {
	case in.RandomAlgorithmDesiredSize != nil:
		if *in.RandomAlgorithmDesiredSize <= 0 {
			return errors.ErrUnprocessableEntity("random_algorithm_desired_size must be positive")
		}
		d.RandomAlgorithmDesiredSize = *in.RandomAlgorithmDesiredSize
	case parent != nil:
		d.RandomAlgorithmDesiredSize, d.RandomAlgorithmDesiredSizeInherited = parent.RandomAlgorithmDesiredSize, true
	default:
		d.RandomAlgorithmDesiredSize = constants.DefaultDesiredSize
	}

	switch {
	case in.RandomAlgorithmDesiredSuccessProbability != nil:
		d.RandomAlgorithmDesiredSuccessProbability = r.planner.NormalizeProbability(*in.RandomAlgorithmDesiredSuccessProbability)
	case parent != nil:
		d.RandomAlgorithmDesiredSuccessProbability = parent.RandomAlgorithmDesiredSuccessProbability
		d.RandomAlgorithmDesiredSuccessProbabilityInherited = true
	default:
		d.RandomAlgorithmDesiredSuccessProbability = constants.DefaultSuccessProbability
	}
	return nil
}

// resolveLength picks the pseudonym length: explicit, then the planner when the
// request carries capacity inputs for a RANDOM algorithm, then the parent, then
// the algorithm default.
func (r *DomainResolver) resolveLength(ctx context.Context, d *models.Domain, in *models.DomainInput, parent *models.Domain) error {
	capacityRequested := in.RandomAlgorithmDesiredSize != nil || in.RandomAlgorithmDesiredSuccessProbability != nil
	switch {
	case in.PseudonymLength != nil:
		d.PseudonymLength = r.planner.ClampLength(ctx, *in.PseudonymLength)
	case d.Algorithm.IsRandom() && capacityRequested:
		d.PseudonymLength = r.planner.MinimumLength(ctx, d.RandomAlgorithmDesiredSize,
			d.RandomAlgorithmDesiredSuccessProbability, utf8.RuneCountInString(d.Alphabet), r.planner.RetryBudget())
	case parent != nil:
		d.PseudonymLength, d.PseudonymLengthInherited = parent.PseudonymLength, true
	case d.Algorithm.IsHash():
		d.PseudonymLength = d.Algorithm.HashDigestLength()
	default:
		d.PseudonymLength = constants.DefaultPseudonymLength
	}
	if d.BodyLength() < 1 {
		return errors.ErrUnprocessableEntity("pseudonym_length leaves no room for the pseudonym body")
	}

	switch {
	case in.PaddingCharacter != nil:
		if utf8.RuneCountInString(*in.PaddingCharacter) != 1 {
			return errors.ErrUnprocessableEntity("padding_character must be exactly one character")
		}
		d.PaddingCharacter = *in.PaddingCharacter
	case parent != nil:
		d.PaddingCharacter, d.PaddingCharacterInherited = parent.PaddingCharacter, true
	default:
		d.PaddingCharacter = constants.DefaultPaddingCharacter
	}
	return nil
}

func (r *DomainResolver) resolveSalt(d *models.Domain, in *models.DomainInput, parent *models.Domain) error {
	switch {
	case in.SaltLength != nil:
		if *in.SaltLength < 0 {
			return errors.ErrUnprocessableEntity("salt_length must not be negative")
		}
		d.SaltLength = *in.SaltLength
	case parent != nil:
		d.SaltLength, d.SaltLengthInherited = parent.SaltLength, true
	default:
		d.SaltLength = constants.DefaultSaltLength
	}

	switch {
	case in.Salt != nil:
		d.Salt = *in.Salt
	case parent != nil:
		d.Salt, d.SaltInherited = parent.Salt, true
	default:
		salt, err := RandomSalt(d.SaltLength)
		if err != nil {
			return err
		}
		d.Salt = salt
	}
	return nil
}

// NormalizeAlphabet rejects alphabets with the record separator, duplicate
// symbols or fewer than two symbols. With a check digit an odd alphabet loses
// its last symbol.
func (r *DomainResolver) NormalizeAlphabet(ctx context.Context, alphabet string, checkDigit bool) (string, error) {
	if strings.Contains(alphabet, constants.RecordSeparator) {
		return "", errors.ErrUnprocessableEntity("alphabet must not contain the record separator " + constants.RecordSeparator)
	}
	symbols := []rune(alphabet)
	if len(symbols) < 2 {
		return "", errors.ErrUnprocessableEntity("alphabet must hold at least two symbols")
	}
	seen := make(map[rune]struct{}, len(symbols))
	for _, s := range symbols {
		if _, dup := seen[s]; dup {
			return "", errors.ErrUnprocessableEntity("alphabet contains duplicate symbol " + string(s))
		}
		seen[s] = struct{}{}
	}
	if checkDigit && len(symbols)%2 != 0 {
		truncated := string(symbols[:len(symbols)-1])
		r.log.Warn(ctx, "Alphabet has odd length, dropping last symbol for check digit computation",
			logger.Int("original_size", len(symbols)),
			logger.String("dropped", string(symbols[len(symbols)-1])),
		)
		if len(symbols)-1 < 2 {
			return "", errors.ErrUnprocessableEntity("alphabet too small for check digits")
		}
		return truncated, nil
	}
	return alphabet, nil
}

// PatchResult names the inheritable attributes an update touched. Supplied
// holds every attribute set by the patch, Changed the subset whose value differs.
type PatchResult struct {
	Changed  []string
	Supplied []string
}

// ApplyPatch applies the supplied fields of patch to d and marks them explicit.
func (r *DomainResolver) ApplyPatch(ctx context.Context, d *models.Domain, patch *models.DomainInput) (*PatchResult, error) {
	if patch.SuperDomainName != nil {
		return nil, errors.ErrUnprocessableEntity("a domain cannot be moved to another parent")
	}
	res := &PatchResult{}
	mark := func(name string, differs bool) {
		f, _ := lookupField(name)
		*f.inherited(d) = false
		if !slices.Contains(res.Supplied, name) {
			res.Supplied = append(res.Supplied, name)
		}
		if differs && !slices.Contains(res.Changed, name) {
			res.Changed = append(res.Changed, name)
		}
	}

	if patch.Name != nil {
		if !utils.IsValidDomainName(*patch.Name) {
			return nil, errors.ErrUnprocessableEntity("domain name contains characters outside letters, digits, '.', '_', '~' and '-'")
		}
		d.Name = *patch.Name
	}
	if patch.Description != nil {
		d.Description = *patch.Description
	}
	if patch.Prefix != nil {
		mark(FieldPrefix, d.Prefix != *patch.Prefix)
		d.Prefix = *patch.Prefix
	}
	if patch.EnforceStartDateValidity != nil {
		mark(FieldEnforceStartDateValidity, d.EnforceStartDateValidity != *patch.EnforceStartDateValidity)
		d.EnforceStartDateValidity = *patch.EnforceStartDateValidity
	}
	if patch.EnforceEndDateValidity != nil {
		mark(FieldEnforceEndDateValidity, d.EnforceEndDateValidity != *patch.EnforceEndDateValidity)
		d.EnforceEndDateValidity = *patch.EnforceEndDateValidity
	}
	if patch.ValidFrom != nil {
		from := patch.ValidFrom.UTC()
		mark(FieldValidFrom, !d.ValidFrom.Equal(from))
		d.ValidFrom = from
	}
	switch {
	case patch.ValidTo != nil:
		to := patch.ValidTo.UTC()
		mark(FieldValidTo, !d.ValidTo.Equal(to))
		d.ValidTo = to
	case patch.ValidityTime != nil:
		to, err := addValidityTime(d.ValidFrom, *patch.ValidityTime)
		if err != nil {
			return nil, err
		}
		mark(FieldValidTo, !d.ValidTo.Equal(to))
		d.ValidTo = to
	}
	if d.ValidTo.Before(d.ValidFrom) {
		return nil, errors.ErrUnprocessableEntity("valid_to lies before valid_from")
	}

	if patch.AddCheckDigit != nil {
		mark(FieldAddCheckDigit, d.AddCheckDigit != *patch.AddCheckDigit)
		d.AddCheckDigit = *patch.AddCheckDigit
	}
	if patch.LengthIncludesCheckDigit != nil {
		mark(FieldLengthIncludesCheckDigit, d.LengthIncludesCheckDigit != *patch.LengthIncludesCheckDigit)
		d.LengthIncludesCheckDigit = *patch.LengthIncludesCheckDigit
	}
	if patch.Algorithm != nil {
		if !patch.Algorithm.IsValid() {
			return nil, errors.ErrUnprocessableEntity("unsupported algorithm: " + string(*patch.Algorithm))
		}
		algorithmChanged := d.Algorithm != *patch.Algorithm
		mark(FieldAlgorithm, algorithmChanged)
		d.Algorithm = *patch.Algorithm
		if algorithmChanged && patch.Alphabet == nil {
			alphabet := constants.DefaultAlphabet(d.Algorithm)
			mark(FieldAlphabet, d.Alphabet != alphabet)
			d.Alphabet = alphabet
		}
	}
	if patch.Alphabet != nil {
		if d.Algorithm != constants.AlgorithmRandom {
			return nil, errors.ErrUnprocessableEntity("an explicit alphabet is only accepted for the RANDOM algorithm")
		}
		mark(FieldAlphabet, d.Alphabet != *patch.Alphabet)
		d.Alphabet = *patch.Alphabet
	}
	alphabet, err := r.NormalizeAlphabet(ctx, d.Alphabet, d.AddCheckDigit)
	if err != nil {
		return nil, err
	}
	if alphabet != d.Alphabet {
		mark(FieldAlphabet, true)
		d.Alphabet = alphabet
	}

	if patch.RandomAlgorithmDesiredSize != nil {
		if *patch.RandomAlgorithmDesiredSize <= 0 {
			return nil, errors.ErrUnprocessableEntity("random_algorithm_desired_size must be positive")
		}
		mark(FieldDesiredSize, d.RandomAlgorithmDesiredSize != *patch.RandomAlgorithmDesiredSize)
		d.RandomAlgorithmDesiredSize = *patch.RandomAlgorithmDesiredSize
	}
	if patch.RandomAlgorithmDesiredSuccessProbability != nil {
		t := r.planner.NormalizeProbability(*patch.RandomAlgorithmDesiredSuccessProbability)
		mark(FieldDesiredSuccessProbability, d.RandomAlgorithmDesiredSuccessProbability != t)
		d.RandomAlgorithmDesiredSuccessProbability = t
	}
	if patch.MultiplePsnAllowed != nil {
		mark(FieldMultiplePsnAllowed, d.MultiplePsnAllowed != *patch.MultiplePsnAllowed)
		d.MultiplePsnAllowed = *patch.MultiplePsnAllowed
	}
	if patch.ConsecutiveValueCounter != nil {
		if *patch.ConsecutiveValueCounter < 0 {
			return nil, errors.ErrUnprocessableEntity("consecutive_value_counter must not be negative")
		}
		mark(FieldConsecutiveValueCounter, d.ConsecutiveValueCounter != *patch.ConsecutiveValueCounter)
		d.ConsecutiveValueCounter = *patch.ConsecutiveValueCounter
	}
	if patch.PseudonymLength != nil {
		length := r.planner.ClampLength(ctx, *patch.PseudonymLength)
		mark(FieldPseudonymLength, d.PseudonymLength != length)
		d.PseudonymLength = length
	}
	if d.BodyLength() < 1 {
		return nil, errors.ErrUnprocessableEntity("pseudonym_length leaves no room for the pseudonym body")
	}
	if patch.PaddingCharacter != nil {
		if utf8.RuneCountInString(*patch.PaddingCharacter) != 1 {
			return nil, errors.ErrUnprocessableEntity("padding_character must be exactly one character")
		}
		mark(FieldPaddingCharacter, d.PaddingCharacter != *patch.PaddingCharacter)
		d.PaddingCharacter = *patch.PaddingCharacter
	}
	if patch.SaltLength != nil {
		if *patch.SaltLength < 0 {
			return nil, errors.ErrUnprocessableEntity("salt_length must not be negative")
		}
		mark(FieldSaltLength, d.SaltLength != *patch.SaltLength)
		d.SaltLength = *patch.SaltLength
	}
	if patch.Salt != nil {
		mark(FieldSalt, d.Salt != *patch.Salt)
		d.Salt = *patch.Salt
	}
	return res, nil
}

// Cascade pushes the named attributes of root down the tree. For each attribute
// the walk is depth-first and stops at descendants holding an explicit value.
// Every descendant whose configuration changed is checked again the way an
// update would check it; they are returned parents first.
func (r *DomainResolver) Cascade(ctx context.Context, root *models.Domain, fields []string, tree DomainTree) ([]*models.Domain, error) {
	modified := make(map[string]bool)
	walkInherited(root, fields, tree, func(f domainField, child *models.Domain) {
		if cascadeField(f, root, child) {
			modified[child.ID] = true
		}
	})

	var out []*models.Domain
	for _, d := range PreOrder(root, tree) {
		if !modified[d.ID] {
			continue
		}
		alphabet, err := r.NormalizeAlphabet(ctx, d.Alphabet, d.AddCheckDigit)
		if err != nil {
			return nil, errors.ErrUnprocessableEntity("cascade leaves domain " + d.Name + " with an unusable alphabet").WithCause(err)
		}
		if alphabet != d.Alphabet {
			d.Alphabet, d.AlphabetInherited = alphabet, false
			src := d
			walkInherited(src, []string{FieldAlphabet}, tree, func(f domainField, child *models.Domain) {
				if cascadeField(f, src, child) {
					modified[child.ID] = true
				}
			})
		}
		if d.BodyLength() < 1 {
			return nil, errors.ErrUnprocessableEntity("cascade leaves no room for the pseudonym body of domain " + d.Name)
		}
		out = append(out, d)
	}
	return out, nil
}

// cascadeField copies one attribute from src into child and reports whether
// the child's configuration changed.
func cascadeField(f domainField, src, child *models.Domain) bool {
	before := *child
	f.copy(child, src)
	if f.name == FieldAlgorithm {
		switch {
		case child.AlphabetInherited:
			child.Alphabet = src.Alphabet
		case child.Algorithm != constants.AlgorithmRandom:
			child.Alphabet = constants.DefaultAlphabet(child.Algorithm)
		}
	}
	return !reflect.DeepEqual(before, *child)
}

// GenerationChanged reports whether after generates pseudonyms differently from before.
func GenerationChanged(before, after *models.Domain) bool {
	for _, f := range domainFields {
		if !f.generation {
			continue
		}
		candidate := *before
		f.copy(&candidate, after)
		if !reflect.DeepEqual(candidate, *before) {
			return true
		}
	}
	return false
}

func walkInherited(root *models.Domain, fields []string, tree DomainTree, visit func(f domainField, child *models.Domain)) {
	for _, name := range fields {
		f, ok := lookupField(name)
		if !ok {
			continue
		}
		var walk func(parent *models.Domain)
		walk = func(parent *models.Domain) {
			for _, child := range tree[parent.ID] {
				if !*f.inherited(child) {
					continue
				}
				visit(f, child)
				walk(child)
			}
		}
		walk(root)
	}
}

// PreOrder lists every descendant of root with parents before their children.
func PreOrder(root *models.Domain, tree DomainTree) []*models.Domain {
	var out []*models.Domain
	var walk func(parent *models.Domain)
	walk = func(parent *models.Domain) {
		for _, child := range tree[parent.ID] {
			out = append(out, child)
			walk(child)
		}
	}
	walk(root)
	return out
}

// PostOrder lists every descendant of root with children before their parents.
func PostOrder(root *models.Domain, tree DomainTree) []*models.Domain {
	var out []*models.Domain
	var walk func(parent *models.Domain)
	walk = func(parent *models.Domain) {
		for _, child := range tree[parent.ID] {
			walk(child)
			out = append(out, child)
		}
	}
	walk(root)
	return out
}

func resolveString(value *string, parent *models.Domain, fromParent func(*models.Domain) string, def string) (string, bool) {
	switch {
	case value != nil:
		return *value, false
	case parent != nil:
		return fromParent(parent), true
	default:
		return def, false
	}
}

func resolveBool(value *bool, parent *models.Domain, fromParent func(*models.Domain) bool, def bool) (bool, bool) {
	switch {
	case value != nil:
		return *value, false
	case parent != nil:
		return fromParent(parent), true
	default:
		return def, false
	}
}
