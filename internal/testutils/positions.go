// Package testutils provides utilities for testing, including random position
// generators and fixture builders. These components are intended for internal
// use within the project's test suites and are not part of the public API.
package testutils

import (
	"math/rand"
	"reflect"
	"strconv"
	"time"

	"github.com/ahrav/go-compass/internal/domain"
)

// DefaultStatementCount mirrors the size of a typical compass questionnaire.
const DefaultStatementCount = 38

// PositionGenerator produces random position sets on a scale.
// The zero value is not usable; construct one with NewPositionGenerator.
type PositionGenerator struct {
	rng        *rand.Rand
	stances    []float64
	statements int
	// skipRate is the probability that a statement is left out entirely.
	skipRate float64
	// nullRate is the probability that a statement is present but unanswered.
	nullRate float64
	// continuous draws half of the answers uniformly from [-max, max]
	// instead of from the stance set.
	continuous bool
	max        float64
}

// NewPositionGenerator creates a generator for the given scale. The seed
// parameter controls randomization - use time.Now().UnixNano() for
// non-deterministic generation or a fixed value for reproducible tests.
func NewPositionGenerator(scale domain.Scale, statements int, seed int64) *PositionGenerator {
	return &PositionGenerator{
		rng:        rand.New(rand.NewSource(seed)),
		stances:    scale.Stances(),
		statements: statements,
		skipRate:   0.1,
		nullRate:   0.05,
		max:        scale.Max(),
	}
}

// NewPositionGeneratorDefault creates a generator on the default scale with a
// time-based seed.
func NewPositionGeneratorDefault() *PositionGenerator {
	return NewPositionGenerator(domain.DefaultScale(), DefaultStatementCount, time.Now().UnixNano())
}

// WithGaps sets the probabilities of missing and null statements.
func (g *PositionGenerator) WithGaps(skipRate, nullRate float64) *PositionGenerator {
	g.skipRate = skipRate
	g.nullRate = nullRate
	return g
}

// WithContinuousValues makes the generator mix values drawn uniformly from
// [-max, max] in with the legal stances. Such sets fail stance validation
// but reach every branch of the distance kernel, including values near
// the midpoint.
func (g *PositionGenerator) WithContinuousValues() *PositionGenerator {
	g.continuous = true
	return g
}

// Next returns a fresh random position set keyed "0".."statements-1".
func (g *PositionGenerator) Next() domain.Positions {
	ids := make([]string, g.statements)
	for i := range ids {
		ids[i] = strconv.Itoa(i)
	}
	return g.NextFor(ids)
}

// NextFor returns a fresh random position set over the given statement ids.
func (g *PositionGenerator) NextFor(ids []string) domain.Positions {
	ps := make(domain.Positions, len(ids))
	for _, id := range ids {
		roll := g.rng.Float64()
		switch {
		case roll < g.skipRate:
			continue
		case roll < g.skipRate+g.nullRate:
			ps[id] = domain.NotAnswered()
		default:
			ps[id] = domain.NewPosition(g.value())
		}
	}
	return ps
}

func (g *PositionGenerator) value() float64 {
	if g.continuous && g.rng.Intn(2) == 0 {
		return (2*g.rng.Float64() - 1) * g.max
	}
	return g.stances[g.rng.Intn(len(g.stances))]
}

// NextN returns n fresh position sets keyed "c0".."c<n-1>".
func (g *PositionGenerator) NextN(n int) map[string]domain.Positions {
	out := make(map[string]domain.Positions, n)
	for i := range n {
		out["c"+strconv.Itoa(i)] = g.Next()
	}
	return out
}

// QuickPositions is a domain.Positions on the default scale that
// testing/quick can generate.
type QuickPositions domain.Positions

// Generate implements quick.Generator.
func (QuickPositions) Generate(rng *rand.Rand, size int) reflect.Value {
	g := &PositionGenerator{
		rng:        rng,
		stances:    domain.DefaultScale().Stances(),
		statements: 1 + rng.Intn(size+1),
		skipRate:   0.15,
		nullRate:   0.05,
	}
	return reflect.ValueOf(QuickPositions(g.Next()))
}

// QuickContinuousPositions is a domain.Positions with values anywhere in
// [-2, 2] that testing/quick can generate.
type QuickContinuousPositions domain.Positions

// Generate implements quick.Generator.
func (QuickContinuousPositions) Generate(rng *rand.Rand, size int) reflect.Value {
	scale := domain.DefaultScale()
	g := &PositionGenerator{
		rng:        rng,
		stances:    scale.Stances(),
		statements: 1 + rng.Intn(size+1),
		skipRate:   0.15,
		nullRate:   0.05,
		continuous: true,
		max:        scale.Max(),
	}
	return reflect.ValueOf(QuickContinuousPositions(g.Next()))
}
