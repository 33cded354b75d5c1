package scoring

import (
	"fmt"
	"math"
	"slices"

	"github.com/ahrav/go-compass/internal/domain"
	"github.com/ahrav/go-compass/internal/ports"
)

// ProximityMap scores a against every entry of counterparts and returns a
// map with exactly the key set of counterparts.
//
// When weights holds an entry for a key, that key's score is multiplied by
// the weight and capped at 1. Weighting never turns an unknowable score
// into a number or a number into unknowable. Weights for keys absent from
// counterparts are ignored.
//
// Returns ErrInvalidWeight if any weight is negative or non-finite.
func ProximityMap(
	c ports.Comparator,
	a domain.Positions,
	counterparts map[string]domain.Positions,
	weights map[string]float64,
) (map[string]domain.Score, error) {
	if err := ValidateWeights(weights); err != nil {
		return nil, err
	}

	scores := make(map[string]domain.Score, len(counterparts))
	for key, b := range counterparts {
		scores[key] = ApplyWeight(c.Proximity(a, b), key, weights)
	}
	return scores, nil
}

// ApplyWeight weights score by weights[key] when present.
func ApplyWeight(score domain.Score, key string, weights map[string]float64) domain.Score {
	if w, ok := weights[key]; ok {
		return score.Weighted(w)
	}
	return score
}

// ValidateWeights rejects negative and non-finite weights. Keys are checked
// in canonical order so the reported key is deterministic.
func ValidateWeights(weights map[string]float64) error {
	keys := make([]string, 0, len(weights))
	for key := range weights {
		keys = append(keys, key)
	}
	slices.SortFunc(keys, domain.CompareStatementIDs)

	for _, key := range keys {
		if err := checkWeight(weights[key]); err != nil {
			return fmt.Errorf("%w: key %q", err, key)
		}
	}
	return nil
}

func checkWeight(w float64) error {
	if math.IsNaN(w) || math.IsInf(w, 0) || w < 0 {
		return fmt.Errorf("%w: %v", ErrInvalidWeight, w)
	}
	return nil
}

// ProximityMix blends a's proximity to b1 and to b2, letting b1 count for at
// most maxRatio of the result.
//
// Each pair is scored over its own common-statement set. With n1 and n2 the
// sizes of those sets, the actual ratio is r = n1/(n1+n2). Below maxRatio
// the blend is r·p1 + (1−r)·p2; at or above it the blend is capped at
// maxRatio·p1 + (1−maxRatio)·p2.
//
// A side with no common statements contributes nothing to the blend. When
// the comparator scores an empty overlap as a number (zero_score), the cap
// still applies, so an empty b2 pulls the blend down as a 0 would. When it
// scores an empty overlap as unknowable, the blend is taken entirely from
// the side that has common statements. The result is the comparator's
// EmptyScore only when neither side has common statements.
//
// Returns ErrInvalidRatio if maxRatio is NaN or outside [0,1].
func ProximityMix(
	c ports.Comparator,
	a, b1 domain.Positions,
	maxRatio float64,
	b2 domain.Positions,
) (domain.Score, error) {
	if math.IsNaN(maxRatio) || maxRatio < 0 || maxRatio > 1 {
		return domain.Unknowable(), fmt.Errorf("%w: %v not in [0,1]", ErrInvalidRatio, maxRatio)
	}

	ab1 := c.Compare(a, b1)
	ab2 := c.Compare(a, b2)

	n1, n2 := len(ab1.Statements), len(ab2.Statements)
	if n1+n2 == 0 {
		return c.EmptyScore(), nil
	}

	ratio := math.Min(float64(n1)/float64(n1+n2), maxRatio)
	if n2 == 0 && c.EmptyScore().IsUnknowable() {
		// n1 == 0 already yields ratio 0.
		ratio = 1
	}

	var mixed float64
	if p1, ok := ab1.Score.Value(); ok && n1 > 0 {
		mixed += ratio * p1
	}
	if p2, ok := ab2.Score.Value(); ok && n2 > 0 {
		mixed += (1 - ratio) * p2
	}
	return domain.Known(mixed), nil
}
