package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/turtacn/psn/internal/domain/models"
	"github.com/turtacn/psn/internal/domain/service"
	"github.com/turtacn/psn/pkg/constants"
	"github.com/turtacn/psn/pkg/errors"
	"github.com/turtacn/psn/pkg/logger"
)

var resolverNow = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

func newResolver() *service.DomainResolver {
	return service.NewDomainResolver(newPlanner(), service.NewValidityResolver(), logger.NewNoopLogger())
}

func ptrAlgorithm(a constants.Algorithm) *constants.Algorithm { return &a }
func ptrInt(i int) *int                                       { return &i }
func ptrInt64(i int64) *int64                                 { return &i }
func ptrBool(b bool) *bool                                    { return &b }

func TestDomainResolver_RootDefaults(t *testing.T) {
	r := newResolver()

	d, err := r.Resolve(context.Background(), &models.DomainInput{Name: ptrString("TestStudie")}, nil, resolverNow)
	require.NoError(t, err)

	assert.NotEmpty(t, d.ID)
	assert.True(t, d.IsRoot())
	assert.Equal(t, constants.AlgorithmRandomLet, d.Algorithm)
	assert.Equal(t, constants.AlphabetLetters, d.Alphabet)
	assert.Equal(t, 16, d.PseudonymLength)
	assert.True(t, d.AddCheckDigit)
	assert.False(t, d.LengthIncludesCheckDigit)
	assert.Equal(t, "0", d.PaddingCharacter)
	assert.Len(t, d.Salt, constants.DefaultSaltLength)
	assert.Equal(t, constants.DefaultConsecutiveValueCounter, d.ConsecutiveValueCounter)
	assert.Equal(t, resolverNow, d.ValidFrom)
	assert.Equal(t, resolverNow.Add(constants.DefaultValidityDuration), d.ValidTo)
	assert.False(t, d.AlgorithmInherited)
	assert.False(t, d.SaltInherited)
}

func TestDomainResolver_ChildInheritsSnapshot(t *testing.T) {
	r := newResolver()
	ctx := context.Background()

	parent, err := r.Resolve(ctx, &models.DomainInput{
		Name:      ptrString("TestStudie"),
		Prefix:    ptrString("TS-"),
		Algorithm: ptrAlgorithm(constants.AlgorithmSHA2),
	}, nil, resolverNow)
	require.NoError(t, err)
	assert.Equal(t, 64, parent.PseudonymLength)

	child, err := r.Resolve(ctx, &models.DomainInput{Name: ptrString("TestStudie.Child")}, parent, resolverNow)
	require.NoError(t, err)

	require.NotNil(t, child.SuperDomainID)
	assert.Equal(t, parent.ID, *child.SuperDomainID)
	assert.Equal(t, parent.Algorithm, child.Algorithm)
	assert.True(t, child.AlgorithmInherited)
	assert.Equal(t, "TS-", child.Prefix)
	assert.True(t, child.PrefixInherited)
	assert.Equal(t, parent.Salt, child.Salt)
	assert.True(t, child.SaltInherited)
	assert.Equal(t, 64, child.PseudonymLength)
	assert.True(t, child.PseudonymLengthInherited)

	// changing the parent afterwards does not reach the child
	parent.Algorithm = constants.AlgorithmMD5
	assert.Equal(t, constants.AlgorithmSHA2, child.Algorithm)
}

func TestDomainResolver_ChildOverrideDerivesAlphabet(t *testing.T) {
	r := newResolver()
	ctx := context.Background()

	parent, err := r.Resolve(ctx, &models.DomainInput{Name: ptrString("p")}, nil, resolverNow)
	require.NoError(t, err)

	child, err := r.Resolve(ctx, &models.DomainInput{
		Name:      ptrString("c"),
		Algorithm: ptrAlgorithm(constants.AlgorithmRandomSymBIOS),
	}, parent, resolverNow)
	require.NoError(t, err)
	assert.Equal(t, constants.AlphabetBIOS, child.Alphabet)
	assert.False(t, child.AlphabetInherited)
}

func TestDomainResolver_Rejects(t *testing.T) {
	r := newResolver()
	ctx := context.Background()

	cases := map[string]*models.DomainInput{
		"empty":             {},
		"no name":           {Prefix: ptrString("x")},
		"bad name":          {Name: ptrString("a/b")},
		"bad algorithm":     {Name: ptrString("a"), Algorithm: ptrAlgorithm("ROT13")},
		"alphabet not RAND": {Name: ptrString("a"), Algorithm: ptrAlgorithm(constants.AlgorithmRandomHex), Alphabet: ptrString("ab")},
		"separator":         {Name: ptrString("a"), Algorithm: ptrAlgorithm(constants.AlgorithmRandom), Alphabet: ptrString("ab;d")},
		"duplicates":        {Name: ptrString("a"), Algorithm: ptrAlgorithm(constants.AlgorithmRandom), Alphabet: ptrString("abca")},
		"padding":           {Name: ptrString("a"), PaddingCharacter: ptrString("00")},
		"inverted window": {
			Name:      ptrString("a"),
			ValidFrom: ptrTime(resolverNow),
			ValidTo:   ptrTime(resolverNow.Add(-time.Hour)),
		},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := r.Resolve(ctx, in, nil, resolverNow)
			assert.True(t, errors.IsUnprocessable(err), "got %v", err)
		})
	}
}

func TestDomainResolver_OddAlphabetTruncatedWithCheckDigit(t *testing.T) {
	r := newResolver()

	d, err := r.Resolve(context.Background(), &models.DomainInput{
		Name:      ptrString("odd"),
		Algorithm: ptrAlgorithm(constants.AlgorithmRandom),
		Alphabet:  ptrString("abcde"),
	}, nil, resolverNow)
	require.NoError(t, err)
	assert.Equal(t, "abcd", d.Alphabet)

	d, err = r.Resolve(context.Background(), &models.DomainInput{
		Name:          ptrString("odd2"),
		Algorithm:     ptrAlgorithm(constants.AlgorithmRandom),
		Alphabet:      ptrString("abcde"),
		AddCheckDigit: ptrBool(false),
	}, nil, resolverNow)
	require.NoError(t, err)
	assert.Equal(t, "abcde", d.Alphabet)
}

func TestDomainResolver_LengthFromCapacityInputs(t *testing.T) {
	r := newResolver()

	d, err := r.Resolve(context.Background(), &models.DomainInput{
		Name:                       ptrString("planned"),
		RandomAlgorithmDesiredSize: ptrInt64(100_000_000),
	}, nil, resolverNow)
	require.NoError(t, err)
	assert.Equal(t, 8, d.PseudonymLength)

	d, err = r.Resolve(context.Background(), &models.DomainInput{
		Name:            ptrString("tiny"),
		PseudonymLength: ptrInt(1),
	}, nil, resolverNow)
	require.NoError(t, err)
	assert.Equal(t, constants.MinimumPseudonymLength, d.PseudonymLength)
}

func TestDomainResolver_ApplyPatchMarksExplicit(t *testing.T) {
	r := newResolver()
	ctx := context.Background()

	parent, err := r.Resolve(ctx, &models.DomainInput{Name: ptrString("p")}, nil, resolverNow)
	require.NoError(t, err)
	child, err := r.Resolve(ctx, &models.DomainInput{Name: ptrString("c")}, parent, resolverNow)
	require.NoError(t, err)

	res, err := r.ApplyPatch(ctx, child, &models.DomainInput{
		Prefix:    ptrString("C-"),
		Algorithm: ptrAlgorithm(constants.AlgorithmRandomHex),
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{service.FieldPrefix, service.FieldAlgorithm, service.FieldAlphabet}, res.Changed)
	assert.ElementsMatch(t, res.Changed, res.Supplied)
	assert.False(t, child.PrefixInherited)
	assert.False(t, child.AlgorithmInherited)
	assert.Equal(t, constants.AlphabetHex, child.Alphabet)
	assert.True(t, child.SaltInherited)

	res, err = r.ApplyPatch(ctx, child, &models.DomainInput{Prefix: ptrString("C-"), Description: ptrString("same prefix")})
	require.NoError(t, err)
	assert.Empty(t, res.Changed)
	assert.Equal(t, []string{service.FieldPrefix}, res.Supplied)

	_, err = r.ApplyPatch(ctx, child, &models.DomainInput{SuperDomainName: ptrString("other")})
	assert.True(t, errors.IsUnprocessable(err))
}

func TestDomainResolver_CascadeStopsAtExplicitOverride(t *testing.T) {
	r := newResolver()
	ctx := context.Background()

	root, err := r.Resolve(ctx, &models.DomainInput{Name: ptrString("root")}, nil, resolverNow)
	require.NoError(t, err)
	a, err := r.Resolve(ctx, &models.DomainInput{Name: ptrString("a")}, root, resolverNow)
	require.NoError(t, err)
	b, err := r.Resolve(ctx, &models.DomainInput{Name: ptrString("b"), Prefix: ptrString("B-")}, root, resolverNow)
	require.NoError(t, err)
	bChild, err := r.Resolve(ctx, &models.DomainInput{Name: ptrString("b.child")}, b, resolverNow)
	require.NoError(t, err)
	aChild, err := r.Resolve(ctx, &models.DomainInput{Name: ptrString("a.child")}, a, resolverNow)
	require.NoError(t, err)

	tree := service.DomainTree{
		root.ID: {a, b},
		a.ID:    {aChild},
		b.ID:    {bChild},
	}

	res, err := r.ApplyPatch(ctx, root, &models.DomainInput{Prefix: ptrString("R-")})
	require.NoError(t, err)

	modified, err := r.Cascade(ctx, root, res.Supplied, tree)
	require.NoError(t, err)
	assert.Equal(t, []*models.Domain{a, aChild}, modified)
	assert.Equal(t, "R-", a.Prefix)
	assert.Equal(t, "R-", aChild.Prefix)
	assert.True(t, aChild.PrefixInherited)
	assert.Equal(t, "B-", b.Prefix)
	assert.Equal(t, "B-", bChild.Prefix)

	again, err := r.Cascade(ctx, root, res.Supplied, tree)
	require.NoError(t, err)
	assert.Empty(t, again, "descendants already holding the value are left alone")

	assert.Equal(t, []*models.Domain{a, aChild, b, bChild}, service.PreOrder(root, tree))
	order := service.PostOrder(root, tree)
	require.Len(t, order, 4)
	assert.Equal(t, aChild, order[0])
	assert.Equal(t, a, order[1])
	assert.Equal(t, bChild, order[2])
	assert.Equal(t, b, order[3])
}

func TestDomainResolver_CascadeRepairsStaleDescendant(t *testing.T) {
	r := newResolver()
	ctx := context.Background()

	root, err := r.Resolve(ctx, &models.DomainInput{Name: ptrString("root")}, nil, resolverNow)
	require.NoError(t, err)
	kid, err := r.Resolve(ctx, &models.DomainInput{Name: ptrString("kid")}, root, resolverNow)
	require.NoError(t, err)
	tree := service.DomainTree{root.ID: {kid}}

	patch := &models.DomainInput{Algorithm: ptrAlgorithm(constants.AlgorithmRandomNum)}
	_, err = r.ApplyPatch(ctx, root, patch)
	require.NoError(t, err)
	assert.Equal(t, constants.AlgorithmRandomLet, kid.Algorithm)

	res, err := r.ApplyPatch(ctx, root, patch)
	require.NoError(t, err)
	assert.Empty(t, res.Changed)

	modified, err := r.Cascade(ctx, root, res.Supplied, tree)
	require.NoError(t, err)
	assert.Equal(t, []*models.Domain{kid}, modified)
	assert.Equal(t, constants.AlgorithmRandomNum, kid.Algorithm)
	assert.Equal(t, root.Alphabet, kid.Alphabet)
	assert.True(t, kid.AlgorithmInherited)
}

func TestDomainResolver_CascadeTruncatesOddAlphabet(t *testing.T) {
	r := newResolver()
	ctx := context.Background()

	root, err := r.Resolve(ctx, &models.DomainInput{Name: ptrString("root"), AddCheckDigit: ptrBool(false)}, nil, resolverNow)
	require.NoError(t, err)
	kid, err := r.Resolve(ctx, &models.DomainInput{
		Name:      ptrString("kid"),
		Algorithm: ptrAlgorithm(constants.AlgorithmRandom),
		Alphabet:  ptrString("ABCDE"),
	}, root, resolverNow)
	require.NoError(t, err)
	grandkid, err := r.Resolve(ctx, &models.DomainInput{Name: ptrString("grandkid")}, kid, resolverNow)
	require.NoError(t, err)
	require.Equal(t, "ABCDE", grandkid.Alphabet)
	tree := service.DomainTree{root.ID: {kid}, kid.ID: {grandkid}}

	res, err := r.ApplyPatch(ctx, root, &models.DomainInput{AddCheckDigit: ptrBool(true)})
	require.NoError(t, err)

	modified, err := r.Cascade(ctx, root, res.Supplied, tree)
	require.NoError(t, err)
	assert.Equal(t, []*models.Domain{kid, grandkid}, modified)
	for _, d := range modified {
		assert.True(t, d.AddCheckDigit, d.Name)
		assert.Equal(t, "ABCD", d.Alphabet, d.Name)
		_, err := service.NewCheckDigitCodec(d.Alphabet)
		assert.NoError(t, err, d.Name)
	}
	assert.False(t, kid.AlphabetInherited)
}

func TestGenerationChanged(t *testing.T) {
	r := newResolver()
	d, err := r.Resolve(context.Background(), &models.DomainInput{Name: ptrString("d")}, nil, resolverNow)
	require.NoError(t, err)

	after := *d
	after.ValidTo = after.ValidTo.AddDate(1, 0, 0)
	assert.False(t, service.GenerationChanged(d, &after))

	after.Prefix = "X-"
	assert.True(t, service.GenerationChanged(d, &after))
}

func TestDomainResolver_NormalizeAlphabet(t *testing.T) {
	r := newResolver()
	out, err := r.NormalizeAlphabet(context.Background(), "x", false)
	assert.Error(t, err)
	assert.Empty(t, out)
}
