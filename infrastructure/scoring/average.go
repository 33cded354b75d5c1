package scoring

import (
	"fmt"
	"math"

	"github.com/ahrav/go-compass/internal/domain"
)

// Average combines several position sets into one synthetic set, e.g. the
// mean stance of a party's candidates. See WeightedAverage for the rules.
func Average(sets ...domain.Positions) domain.Positions {
	weights := make([]float64, len(sets))
	for i := range weights {
		weights[i] = 1
	}
	// Equal arity and unit weights cannot fail.
	avg, _ := WeightedAverage(weights, sets...)
	return avg
}

// WeightedAverage combines several position sets into one.
//
// For every statement id present in any set, the weighted values of the
// sets that answered it are summed and divided by the total number of sets,
// not by the number of sets that answered the statement. A set that skipped
// a statement therefore pulls the average toward the midpoint. The result is
// rounded half-up to two decimals. Ids no set answered stay unanswered.
//
// Returns a *domain.ArityError when len(weights) != len(sets), and
// ErrInvalidWeight for negative or non-finite weights.
func WeightedAverage(weights []float64, sets ...domain.Positions) (domain.Positions, error) {
	if len(weights) != len(sets) {
		return nil, domain.NewArityError("weighted_average", len(weights), len(sets))
	}
	for i, w := range weights {
		if err := checkWeight(w); err != nil {
			return nil, fmt.Errorf("%w: set %d", err, i)
		}
	}

	sums := make(map[string]float64)
	answered := make(map[string]bool)
	for i, ps := range sets {
		for id, p := range ps {
			v, ok := p.Value()
			if !ok {
				if _, seen := answered[id]; !seen {
					answered[id] = false
				}
				continue
			}
			sums[id] += weights[i] * v
			answered[id] = true
		}
	}

	total := float64(len(sets))
	avg := make(domain.Positions, len(answered))
	for id, ok := range answered {
		if !ok {
			avg[id] = domain.NotAnswered()
			continue
		}
		avg[id] = domain.NewPosition(roundHundredths(sums[id] / total))
	}
	return avg, nil
}

// roundHundredths rounds half-up (toward +Inf) to two decimals.
func roundHundredths(v float64) float64 {
	return math.Floor(v*100+0.5) / 100
}
