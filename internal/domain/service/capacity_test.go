package service_test

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/turtacn/psn/internal/domain/models"
	"github.com/turtacn/psn/internal/domain/service"
	"github.com/turtacn/psn/pkg/constants"
	"github.com/turtacn/psn/pkg/logger"
)

func newPlanner() *service.CapacityPlanner {
	return service.NewCapacityPlanner(constants.DefaultRetryBudget, constants.DefaultSuccessProbability,
		constants.MinimumPseudonymLength, logger.NewNoopLogger())
}

func TestCapacityPlanner_MinimumLength_Letters(t *testing.T) {
	p := newPlanner()
	n := int64(100_000_000)
	tp := 0.99999998

	length := p.MinimumLength(context.Background(), n, tp, 26, 3)

	required := float64(n) / math.Pow(1-tp, 1.0/3)
	assert.Equal(t, 8, length)
	assert.GreaterOrEqual(t, math.Pow(26, float64(length)), required)
	assert.Less(t, math.Pow(26, float64(length-1)), required)
}

func TestCapacityPlanner_MinimumLength_Monotonic(t *testing.T) {
	p := newPlanner()
	ctx := context.Background()

	prev := 0
	for _, n := range []int64{1, 10, 1_000, 100_000, 10_000_000, 1_000_000_000} {
		l := p.MinimumLength(ctx, n, 0.999, 16, 3)
		assert.GreaterOrEqual(t, l, prev, "n=%d", n)
		prev = l
	}

	prev = 0
	for _, tp := range []float64{0.5, 0.9, 0.99, 0.9999, 0.99999999} {
		l := p.MinimumLength(ctx, 1_000_000, tp, 36, 3)
		assert.GreaterOrEqual(t, l, prev, "T=%v", tp)
		prev = l
	}
}

func TestCapacityPlanner_MinimumLength_Floor(t *testing.T) {
	p := newPlanner()
	assert.Equal(t, constants.MinimumPseudonymLength, p.MinimumLength(context.Background(), 1, 0.5, 36, 3))
	assert.Equal(t, constants.MinimumPseudonymLength, p.ClampLength(context.Background(), 1))
	assert.Equal(t, 12, p.ClampLength(context.Background(), 12))
}

func TestCapacityPlanner_NormalizeProbability(t *testing.T) {
	p := newPlanner()
	assert.InDelta(t, 0.95, p.NormalizeProbability(95), 1e-12)
	assert.InDelta(t, 0.9, p.NormalizeProbability(0.9), 1e-12)
	assert.Equal(t, constants.DefaultSuccessProbability, p.NormalizeProbability(100))
	assert.Equal(t, constants.DefaultSuccessProbability, p.NormalizeProbability(0))
	assert.Equal(t, constants.DefaultSuccessProbability, p.NormalizeProbability(-3))
	assert.Equal(t, constants.DefaultSuccessProbability, p.NormalizeProbability(500))
}

func TestCapacityPlanner_IsNearExhaustion(t *testing.T) {
	p := newPlanner()
	d := &models.Domain{
		Algorithm:       constants.AlgorithmRandomNum,
		Alphabet:        constants.AlphabetNumeric,
		PseudonymLength: 4,
	}
	d.RandomAlgorithmDesiredSuccessProbability = 0.999
	// 10^4 * 0.001^(1/3) = 1000
	assert.InDelta(t, 1000, p.Threshold(d), 1e-6)
	assert.False(t, p.IsNearExhaustion(d, 999))
	assert.False(t, p.IsNearExhaustion(d, 1000))
	assert.True(t, p.IsNearExhaustion(d, 1001))
	assert.InDelta(t, 0.1, p.FillingRate(d, 1000), 1e-12)
}

func TestCapacityPlanner_CapacityUsesBodyLength(t *testing.T) {
	p := newPlanner()
	d := &models.Domain{
		Alphabet:                 constants.AlphabetHex,
		PseudonymLength:          5,
		AddCheckDigit:            true,
		LengthIncludesCheckDigit: true,
	}
	assert.Equal(t, math.Pow(16, 4), p.Capacity(d))
}
