package service

import (
	"crypto/md5"
	"crypto/rand"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"hash"
	"math/big"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/zeebo/blake3"
	"golang.org/x/crypto/sha3"

	"github.com/turtacn/psn/internal/domain/models"
	"github.com/turtacn/psn/pkg/constants"
	"github.com/turtacn/psn/pkg/errors"
)

// GenerateInput is the per-call input of a Generator. Counter is only read by
// the CONSECUTIVE generator.
type GenerateInput struct {
	Identifier string
	IDType     string
	Counter    int64
}

// Generator produces pseudonym bodies for one domain. Implementations are
// resolved once per domain by NewGenerator.
type Generator interface {
	Algorithm() constants.Algorithm
	Generate(in GenerateInput) (string, error)
}

// NewGenerator returns the generator for the domain algorithm.
func NewGenerator(domain *models.Domain) (Generator, error) {
	length := domain.BodyLength()
	if length < 1 {
		return nil, errors.ErrUnprocessableEntity("pseudonym body length must be positive")
	}
	algorithm := domain.Algorithm
	switch {
	case algorithm.IsHash():
		return &hashGenerator{
			algorithm: algorithm,
			newHash:   hashConstructor(algorithm),
			salt:      domain.Salt,
			length:    length,
			padding:   domain.PaddingCharacter,
		}, nil
	case algorithm == constants.AlgorithmConsecutive:
		return &consecutiveGenerator{length: length, padding: domain.PaddingCharacter}, nil
	case algorithm.IsRandom():
		alphabet := []rune(domain.Alphabet)
		if len(alphabet) < 2 {
			return nil, errors.ErrUnprocessableEntity("alphabet must hold at least two symbols")
		}
		return &randomGenerator{
			algorithm: algorithm,
			alphabet:  alphabet,
			size:      big.NewInt(int64(len(alphabet))),
			length:    length,
		}, nil
	default:
		return nil, errors.ErrUnprocessableEntity("unsupported algorithm: " + string(algorithm))
	}
}

func hashConstructor(algorithm constants.Algorithm) func() hash.Hash {
	switch algorithm {
	case constants.AlgorithmMD5:
		return md5.New
	case constants.AlgorithmSHA1:
		return sha1.New
	case constants.AlgorithmSHA3:
		return sha3.New256
	case constants.AlgorithmBLAKE3:
		return func() hash.Hash { return blake3.New() }
	case constants.AlgorithmXXHASH:
		return func() hash.Hash { return xxhash.New() }
	default:
		return sha256.New
	}
}

// hashGenerator digests the length-prefixed salt, identifier and idType and
// keeps the leading hex symbols. Bodies longer than the digest are left-padded.
type hashGenerator struct {
	algorithm constants.Algorithm
	newHash   func() hash.Hash
	salt      string
	length    int
	padding   string
}

func (g *hashGenerator) Algorithm() constants.Algorithm { return g.algorithm }

func (g *hashGenerator) Generate(in GenerateInput) (string, error) {
	h := g.newHash()
	var buf []byte
	for _, part := range []string{g.salt, in.Identifier, in.IDType} {
		buf = binary.AppendUvarint(buf[:0], uint64(len(part)))
		h.Write(buf)
		h.Write([]byte(part))
	}
	digest := strings.ToUpper(hex.EncodeToString(h.Sum(nil)))
	if len(digest) >= g.length {
		return digest[:g.length], nil
	}
	return leftPad(digest, g.length, g.padding), nil
}

// consecutiveGenerator renders the domain counter in decimal.
type consecutiveGenerator struct {
	length  int
	padding string
}

func (g *consecutiveGenerator) Algorithm() constants.Algorithm { return constants.AlgorithmConsecutive }

func (g *consecutiveGenerator) Generate(in GenerateInput) (string, error) {
	if in.Counter < 0 {
		return "", errors.ErrInternal("consecutive counter is negative")
	}
	digits := strconv.FormatInt(in.Counter, 10)
	if len(digits) > g.length {
		return "", errors.ErrInsufficientCapacity("", 1).WithMetadata("counter", in.Counter)
	}
	return leftPad(digits, g.length, g.padding), nil
}

// randomGenerator draws each symbol uniformly from the alphabet.
type randomGenerator struct {
	algorithm constants.Algorithm
	alphabet  []rune
	size      *big.Int
	length    int
}

func (g *randomGenerator) Algorithm() constants.Algorithm { return g.algorithm }

func (g *randomGenerator) Generate(GenerateInput) (string, error) {
	var sb strings.Builder
	sb.Grow(g.length)
	for i := 0; i < g.length; i++ {
		n, err := rand.Int(rand.Reader, g.size)
		if err != nil {
			return "", errors.ErrInternal("random source failed").WithCause(err)
		}
		sb.WriteRune(g.alphabet[n.Int64()])
	}
	return sb.String(), nil
}

func leftPad(value string, length int, padding string) string {
	if padding == "" {
		padding = constants.DefaultPaddingCharacter
	}
	missing := length - len([]rune(value))
	if missing <= 0 {
		return value
	}
	return strings.Repeat(padding, missing) + value
}

// RandomSalt returns length symbols drawn from the letters and digits alphabet.
func RandomSalt(length int) (string, error) {
	if length <= 0 {
		return "", nil
	}
	g := &randomGenerator{
		alphabet: []rune(constants.AlphabetSymbols),
		size:     big.NewInt(int64(len(constants.AlphabetSymbols))),
		length:   length,
	}
	return g.Generate(GenerateInput{})
}

// Fingerprint is a short stable digest of parts, logged in place of raw identifiers.
func Fingerprint(parts ...string) string {
	h := xxhash.New()
	for _, p := range parts {
		h.WriteString(p)
		h.Write([]byte{0})
	}
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], h.Sum64())
	return hex.EncodeToString(buf[:])
}
