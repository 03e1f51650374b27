package service_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/turtacn/psn/internal/domain/models"
	"github.com/turtacn/psn/internal/domain/service"
	"github.com/turtacn/psn/pkg/constants"
	"github.com/turtacn/psn/pkg/errors"
)

func generatorDomain(algorithm constants.Algorithm, length int) *models.Domain {
	return &models.Domain{
		Algorithm:        algorithm,
		Alphabet:         constants.DefaultAlphabet(algorithm),
		PseudonymLength:  length,
		PaddingCharacter: "0",
		Salt:             "pepper",
	}
}

func TestHashGenerators_DeterministicHex(t *testing.T) {
	for _, algorithm := range []constants.Algorithm{
		constants.AlgorithmMD5, constants.AlgorithmSHA1, constants.AlgorithmSHA2,
		constants.AlgorithmSHA3, constants.AlgorithmBLAKE3, constants.AlgorithmXXHASH,
	} {
		t.Run(string(algorithm), func(t *testing.T) {
			g, err := service.NewGenerator(generatorDomain(algorithm, algorithm.HashDigestLength()))
			require.NoError(t, err)
			assert.Equal(t, algorithm, g.Algorithm())

			a, err := g.Generate(service.GenerateInput{Identifier: "123", IDType: "X"})
			require.NoError(t, err)
			b, err := g.Generate(service.GenerateInput{Identifier: "123", IDType: "X"})
			require.NoError(t, err)
			c, err := g.Generate(service.GenerateInput{Identifier: "123", IDType: "Y"})
			require.NoError(t, err)

			assert.Equal(t, a, b)
			assert.NotEqual(t, a, c)
			assert.Len(t, a, algorithm.HashDigestLength())
			assert.Equal(t, strings.ToUpper(a), a)
			for _, r := range a {
				assert.Contains(t, constants.AlphabetHex, string(r))
			}
		})
	}
}

func TestHashGenerator_KnownMD5(t *testing.T) {
	d := generatorDomain(constants.AlgorithmMD5, 32)
	d.Salt = ""
	g, err := service.NewGenerator(d)
	require.NoError(t, err)

	// md5(0x00 0x02 "ab" 0x01 "c")
	out, err := g.Generate(service.GenerateInput{Identifier: "ab", IDType: "c"})
	require.NoError(t, err)
	assert.Equal(t, "AECFD3F782167A2560123FDBDA23F2C4", out)
}

func TestHashGenerators_SeparateIdentifierAndType(t *testing.T) {
	for _, alg := range []constants.Algorithm{
		constants.AlgorithmMD5, constants.AlgorithmSHA1, constants.AlgorithmSHA2,
		constants.AlgorithmSHA3, constants.AlgorithmBLAKE3, constants.AlgorithmXXHASH,
	} {
		t.Run(string(alg), func(t *testing.T) {
			g, err := service.NewGenerator(generatorDomain(alg, 16))
			require.NoError(t, err)
			a, err := g.Generate(service.GenerateInput{Identifier: "12", IDType: "3X"})
			require.NoError(t, err)
			b, err := g.Generate(service.GenerateInput{Identifier: "123", IDType: "X"})
			require.NoError(t, err)
			assert.NotEqual(t, a, b)
		})
	}
}

func TestHashGenerator_TruncatesAndPads(t *testing.T) {
	g, err := service.NewGenerator(generatorDomain(constants.AlgorithmSHA2, 10))
	require.NoError(t, err)
	out, err := g.Generate(service.GenerateInput{Identifier: "a", IDType: "b"})
	require.NoError(t, err)
	assert.Len(t, out, 10)

	g, err = service.NewGenerator(generatorDomain(constants.AlgorithmXXHASH, 20))
	require.NoError(t, err)
	out, err = g.Generate(service.GenerateInput{Identifier: "a", IDType: "b"})
	require.NoError(t, err)
	assert.Len(t, out, 20)
	assert.True(t, strings.HasPrefix(out, "0000"))
}

func TestConsecutiveGenerator(t *testing.T) {
	g, err := service.NewGenerator(generatorDomain(constants.AlgorithmConsecutive, 6))
	require.NoError(t, err)

	out, err := g.Generate(service.GenerateInput{Counter: 42})
	require.NoError(t, err)
	assert.Equal(t, "000042", out)

	_, err = g.Generate(service.GenerateInput{Counter: 1_000_000})
	assert.True(t, errors.IsInsufficientCapacity(err))
}

func TestRandomGenerator_UsesAlphabet(t *testing.T) {
	for _, algorithm := range []constants.Algorithm{
		constants.AlgorithmRandomNum, constants.AlgorithmRandomHex, constants.AlgorithmRandomLet,
		constants.AlgorithmRandomSym, constants.AlgorithmRandomSymBIOS,
	} {
		g, err := service.NewGenerator(generatorDomain(algorithm, 24))
		require.NoError(t, err)
		out, err := g.Generate(service.GenerateInput{})
		require.NoError(t, err)
		assert.Len(t, []rune(out), 24)
		for _, r := range out {
			assert.Contains(t, constants.DefaultAlphabet(algorithm), string(r))
		}
	}

	d := generatorDomain(constants.AlgorithmRandom, 8)
	d.Alphabet = "xy"
	g, err := service.NewGenerator(d)
	require.NoError(t, err)
	out, err := g.Generate(service.GenerateInput{})
	require.NoError(t, err)
	assert.Empty(t, strings.Trim(out, "xy"))
}

func TestNewGenerator_Rejects(t *testing.T) {
	_, err := service.NewGenerator(generatorDomain("ROT13", 8))
	assert.True(t, errors.IsUnprocessable(err))

	d := generatorDomain(constants.AlgorithmRandomHex, 1)
	d.AddCheckDigit, d.LengthIncludesCheckDigit = true, true
	_, err = service.NewGenerator(d)
	assert.True(t, errors.IsUnprocessable(err))
}

func TestMinter_ComposesPrefixBodyAndCheckDigit(t *testing.T) {
	d := generatorDomain(constants.AlgorithmRandomHex, 8)
	d.Prefix = "TS-"
	d.AddCheckDigit = true

	m, err := service.NewMinter(d)
	require.NoError(t, err)

	out, err := m.Mint(service.GenerateInput{}, false)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "TS-"))
	assert.Len(t, out, len("TS-")+8+1)

	ok, err := m.Validate(out)
	require.NoError(t, err)
	assert.True(t, ok)

	bare, err := m.Mint(service.GenerateInput{}, true)
	require.NoError(t, err)
	assert.Len(t, bare, 9)

	d.LengthIncludesCheckDigit = true
	m, err = service.NewMinter(d)
	require.NoError(t, err)
	out, err = m.Mint(service.GenerateInput{}, true)
	require.NoError(t, err)
	assert.Len(t, out, 8)
}

func TestMinter_WithPrefixDoesNotDuplicate(t *testing.T) {
	d := generatorDomain(constants.AlgorithmRandomLet, 8)
	d.Prefix = "P"
	m, err := service.NewMinter(d)
	require.NoError(t, err)

	assert.Equal(t, "PABC", m.WithPrefix("ABC", false))
	assert.Equal(t, "PABC", m.WithPrefix("PABC", false))
	assert.Equal(t, "ABC", m.WithPrefix("ABC", true))
}

func TestRandomSaltAndFingerprint(t *testing.T) {
	salt, err := service.RandomSalt(32)
	require.NoError(t, err)
	assert.Len(t, salt, 32)

	assert.Equal(t, service.Fingerprint("a", "b"), service.Fingerprint("a", "b"))
	assert.NotEqual(t, service.Fingerprint("ab", ""), service.Fingerprint("a", "b"))
}
