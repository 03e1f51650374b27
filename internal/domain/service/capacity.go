package service

import (
	"context"
	"math"

	"github.com/turtacn/psn/internal/domain/models"
	"github.com/turtacn/psn/pkg/constants"
	"github.com/turtacn/psn/pkg/logger"
)

// CapacityPlanner sizes pseudonym spaces for the RANDOM algorithms. Given n prior
// insertions and m attempts over a space of k = a^L values, an unused value is
// found with probability at least T when k >= n / (1-T)^(1/m).
type CapacityPlanner struct {
	retryBudget        int
	defaultProbability float64
	minLength          int
	log                logger.Logger
}

// NewCapacityPlanner creates a planner. Non-positive arguments fall back to the package defaults.
func NewCapacityPlanner(retryBudget int, defaultProbability float64, minLength int, log logger.Logger) *CapacityPlanner {
	if retryBudget <= 0 {
		retryBudget = constants.DefaultRetryBudget
	}
	if defaultProbability <= 0 || defaultProbability >= 1 {
		defaultProbability = constants.DefaultSuccessProbability
	}
	if minLength <= 0 {
		minLength = constants.MinimumPseudonymLength
	}
	if log == nil {
		log = logger.NewNoopLogger()
	}
	return &CapacityPlanner{
		retryBudget:        retryBudget,
		defaultProbability: defaultProbability,
		minLength:          minLength,
		log:                log.WithComponent("CapacityPlanner"),
	}
}

// RetryBudget returns m.
func (p *CapacityPlanner) RetryBudget() int {
	return p.retryBudget
}

// NormalizeProbability maps T into (0, 1). Percentages are divided by 100 and
// values still out of range fall back to the default probability.
func (p *CapacityPlanner) NormalizeProbability(t float64) float64 {
	if t > 1 {
		t /= 100
	}
	if t <= 0 || t >= 1 || math.IsNaN(t) {
		return p.defaultProbability
	}
	return t
}

// MinimumLength returns the smallest L with a^L >= n / (1-T)^(1/m), raised to the minimum floor.
func (p *CapacityPlanner) MinimumLength(ctx context.Context, desiredSize int64, probability float64, alphabetSize int, retries int) int {
	if retries <= 0 {
		retries = p.retryBudget
	}
	if desiredSize < 1 {
		desiredSize = 1
	}
	if alphabetSize < 2 {
		return p.minLength
	}
	t := p.NormalizeProbability(probability)
	k := float64(desiredSize) / math.Pow(1-t, 1/float64(retries))
	length := int(math.Ceil(math.Log(k) / math.Log(float64(alphabetSize))))
	// guard against log rounding just below an exact power
	for length > 0 && math.Pow(float64(alphabetSize), float64(length-1)) >= k {
		length--
	}
	if length < p.minLength {
		p.log.Warn(ctx, "Computed pseudonym length below minimum, raising to floor",
			logger.Int("computed", length),
			logger.Int("minimum", p.minLength),
		)
		length = p.minLength
	}
	return length
}

// ClampLength raises a requested length to the minimum floor.
func (p *CapacityPlanner) ClampLength(ctx context.Context, length int) int {
	if length < p.minLength {
		p.log.Warn(ctx, "Requested pseudonym length below minimum, raising to floor",
			logger.Int("requested", length),
			logger.Int("minimum", p.minLength),
		)
		return p.minLength
	}
	return length
}

// Capacity returns k = a^L for the domain's body length and alphabet.
func (p *CapacityPlanner) Capacity(domain *models.Domain) float64 {
	return math.Pow(float64(len([]rune(domain.Alphabet))), float64(domain.BodyLength()))
}

// Threshold returns the record count k * (1-T)^(1/m) beyond which m attempts
// are no longer likely to find an unused value.
func (p *CapacityPlanner) Threshold(domain *models.Domain) float64 {
	t := p.NormalizeProbability(domain.RandomAlgorithmDesiredSuccessProbability)
	return p.Capacity(domain) * math.Pow(1-t, 1/float64(p.retryBudget))
}

// IsNearExhaustion reports whether recordCount exceeds the domain threshold.
func (p *CapacityPlanner) IsNearExhaustion(domain *models.Domain, recordCount int64) bool {
	return float64(recordCount) > p.Threshold(domain)
}

// FillingRate returns recordCount / k.
func (p *CapacityPlanner) FillingRate(domain *models.Domain, recordCount int64) float64 {
	capacity := p.Capacity(domain)
	if capacity <= 0 {
		return 0
	}
	return float64(recordCount) / capacity
}
