package service

import (
	"strings"

	"github.com/turtacn/psn/internal/domain/models"
)

// Minter composes full pseudonyms for one domain: generated body, optional check
// symbol, optional prefix. Build one per domain and reuse it across calls.
type Minter struct {
	domain    *models.Domain
	generator Generator
	codec     *CheckDigitCodec
}

// NewMinter resolves the generator and check digit codec of domain.
func NewMinter(domain *models.Domain) (*Minter, error) {
	generator, err := NewGenerator(domain)
	if err != nil {
		return nil, err
	}
	m := &Minter{domain: domain, generator: generator}
	if domain.AddCheckDigit {
		codec, err := NewCheckDigitCodec(domain.Alphabet)
		if err != nil {
			return nil, err
		}
		m.codec = codec
	}
	return m, nil
}

// Generator returns the domain generator.
func (m *Minter) Generator() Generator {
	return m.generator
}

// Mint generates a body and finishes it.
func (m *Minter) Mint(in GenerateInput, omitPrefix bool) (string, error) {
	body, err := m.generator.Generate(in)
	if err != nil {
		return "", err
	}
	return m.Finish(body, omitPrefix)
}

// Finish appends the check symbol when the domain adds one and prepends the prefix unless omitted.
func (m *Minter) Finish(body string, omitPrefix bool) (string, error) {
	if body == "" {
		return "", nil
	}
	value, err := m.AddCheckDigit(body)
	if err != nil {
		return "", err
	}
	if omitPrefix {
		return value, nil
	}
	return m.domain.Prefix + value, nil
}

// AddCheckDigit appends the check symbol to raw when the domain adds one.
func (m *Minter) AddCheckDigit(raw string) (string, error) {
	if m.codec == nil {
		return raw, nil
	}
	return m.codec.Append(raw)
}

// WithPrefix normalizes a caller-supplied pseudonym: the domain prefix is
// prepended unless omitted or already present.
func (m *Minter) WithPrefix(value string, omitPrefix bool) string {
	if omitPrefix || m.domain.Prefix == "" || strings.HasPrefix(value, m.domain.Prefix) {
		return value
	}
	return m.domain.Prefix + value
}

// Validate verifies the check symbol of pseudonym. Domains without check digits
// accept any value.
func (m *Minter) Validate(pseudonym string) (bool, error) {
	if m.codec == nil {
		return true, nil
	}
	return m.codec.Validate(pseudonym, m.domain.Prefix)
}
