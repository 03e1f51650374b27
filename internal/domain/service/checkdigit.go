package service

import (
	"strings"

	"github.com/turtacn/psn/pkg/errors"
)

// CheckDigitCodec computes and verifies Luhn mod N check digits, where N is the
// size of the alphabet. Symbols map to their index in the alphabet.
type CheckDigitCodec struct {
	alphabet []rune
	index    map[rune]int
}

// NewCheckDigitCodec builds a codec over alphabet. The alphabet must hold an
// even number of distinct symbols.
func NewCheckDigitCodec(alphabet string) (*CheckDigitCodec, error) {
	symbols := []rune(alphabet)
	if len(symbols) < 2 || len(symbols)%2 != 0 {
		return nil, errors.ErrUnprocessableEntity("check digit alphabet must hold an even number of symbols")
	}
	index := make(map[rune]int, len(symbols))
	for i, r := range symbols {
		if _, dup := index[r]; dup {
			return nil, errors.ErrUnprocessableEntity("check digit alphabet contains duplicate symbol " + string(r))
		}
		index[r] = i
	}
	return &CheckDigitCodec{alphabet: symbols, index: index}, nil
}

// Modulus returns N.
func (c *CheckDigitCodec) Modulus() int {
	return len(c.alphabet)
}

// Compute returns the check symbol for body.
func (c *CheckDigitCodec) Compute(body string) (rune, error) {
	sum, err := c.sum(body, 2, 0)
	if err != nil {
		return 0, err
	}
	n := c.Modulus()
	return c.alphabet[(n-sum%n)%n], nil
}

// Append returns body followed by its check symbol.
func (c *CheckDigitCodec) Append(body string) (string, error) {
	check, err := c.Compute(body)
	if err != nil {
		return "", err
	}
	return body + string(check), nil
}

// Validate strips prefix from pseudonym and verifies the trailing check symbol.
// A mismatch is reported as false; a foreign symbol is an InvalidCharacter error.
func (c *CheckDigitCodec) Validate(pseudonym, prefix string) (bool, error) {
	body, offset := pseudonym, 0
	if strings.HasPrefix(pseudonym, prefix) {
		body, offset = pseudonym[len(prefix):], len([]rune(prefix))
	}
	if len([]rune(body)) < 2 {
		return false, nil
	}
	sum, err := c.sum(body, 1, offset)
	if err != nil {
		return false, err
	}
	return sum%c.Modulus() == 0, nil
}

// sum walks value right to left. The rightmost symbol gets factor first; factors
// alternate between 1 and 2. A doubled value of N or more is reduced by N-1.
// offset shifts the positions reported for foreign symbols.
func (c *CheckDigitCodec) sum(value string, first, offset int) (int, error) {
	symbols := []rune(value)
	n := c.Modulus()
	factor := first
	total := 0
	for i := len(symbols) - 1; i >= 0; i-- {
		v, ok := c.index[symbols[i]]
		if !ok {
			return 0, errors.ErrInvalidCharacter(symbols[i], offset+i)
		}
		v *= factor
		if v >= n {
			v -= n - 1
		}
		total += v
		factor = 3 - factor
	}
	return total % n, nil
}
