package domain

import (
	"fmt"
	"math"
	"slices"
)

// symmetryTolerance absorbs float noise when checking that a stance set
// mirrors around its midpoint.
const symmetryTolerance = 1e-9

// Scale is the immutable description of a stance scale: the legal discrete
// stances, their neutral midpoint and the largest per-statement distance.
// Several scales may coexist; the kernel receives one at construction.
type Scale struct {
	stances       []float64
	neutralIsSkip bool
}

// NewScale validates and builds a Scale. Stances are sorted; they must be
// finite, unique, at least two, and symmetric around (min+max)/2.
// When neutralIsSkip is true a stance equal to the midpoint means the
// respondent skipped the statement.
func NewScale(stances []float64, neutralIsSkip bool) (Scale, error) {
	if len(stances) < 2 {
		return Scale{}, fmt.Errorf("%w: need at least two stances, got %d", ErrInvalidScale, len(stances))
	}

	sorted := slices.Clone(stances)
	slices.Sort(sorted)
	for i, v := range sorted {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Scale{}, fmt.Errorf("%w: stance %v is not finite", ErrInvalidScale, v)
		}
		if i > 0 && v == sorted[i-1] {
			return Scale{}, fmt.Errorf("%w: duplicate stance %v", ErrInvalidScale, v)
		}
	}

	lo, hi := sorted[0], sorted[len(sorted)-1]
	mid := (lo + hi) / 2
	for i := range sorted {
		mirror := sorted[len(sorted)-1-i]
		if math.Abs((sorted[i]-mid)+(mirror-mid)) > symmetryTolerance {
			return Scale{}, fmt.Errorf("%w: stances %v are not symmetric around %v", ErrInvalidScale, sorted, mid)
		}
	}

	return Scale{stances: sorted, neutralIsSkip: neutralIsSkip}, nil
}

// DefaultScale is the five-point voter scale {-2,-1,0,1,2} where 0 means
// the statement was skipped.
func DefaultScale() Scale {
	return Scale{stances: []float64{-2, -1, 0, 1, 2}, neutralIsSkip: true}
}

// PartyScale is the four-point scale {-2,-1,1,2} used for parties, which
// must take a side on every statement.
func PartyScale() Scale {
	return Scale{stances: []float64{-2, -1, 1, 2}, neutralIsSkip: true}
}

// IsZero reports whether s was never constructed.
func (s Scale) IsZero() bool { return len(s.stances) == 0 }

// Stances returns a copy of the legal stances in ascending order.
func (s Scale) Stances() []float64 { return slices.Clone(s.stances) }

// NeutralIsSkip reports whether the midpoint stance counts as unanswered.
func (s Scale) NeutralIsSkip() bool { return s.neutralIsSkip }

// Min returns the lowest legal stance.
func (s Scale) Min() float64 {
	if s.IsZero() {
		return 0
	}
	return s.stances[0]
}

// Max returns the highest legal stance.
func (s Scale) Max() float64 {
	if s.IsZero() {
		return 0
	}
	return s.stances[len(s.stances)-1]
}

// Midpoint returns the neutral stance.
func (s Scale) Midpoint() float64 { return (s.Min() + s.Max()) / 2 }

// MaxDistance is the largest possible per-statement difference.
func (s Scale) MaxDistance() float64 { return s.Max() - s.Min() }

// IsLegal reports whether v is one of the scale's stances.
func (s Scale) IsLegal(v float64) bool { return slices.Contains(s.stances, v) }

// IsNeutral reports whether v sits exactly on the midpoint.
func (s Scale) IsNeutral(v float64) bool { return v == s.Midpoint() }

// Answered reports whether p counts as an answer on this scale.
func (s Scale) Answered(p Position) bool {
	v, ok := p.Value()
	if !ok {
		return false
	}
	return !(s.neutralIsSkip && s.IsNeutral(v))
}

// Normalize returns a copy of ps in which every statement that does not
// count as answered on this scale carries the canonical unanswered tag.
func (s Scale) Normalize(ps Positions) Positions {
	out := make(Positions, len(ps))
	for id, p := range ps {
		if s.Answered(p) {
			out[id] = p
		} else {
			out[id] = NotAnswered()
		}
	}
	return out
}

// CommonStatements returns the statements both a and b answered on this
// scale, in canonical order.
func (s Scale) CommonStatements(a, b Positions) []string {
	return CommonStatements(s.Normalize(a), s.Normalize(b))
}
