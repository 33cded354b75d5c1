package domain

import (
	"encoding/json"
	"math"
	"strconv"
)

// Score is the outcome of comparing two sets of positions: either a number
// in [0,1] or unknowable, when the two sides share no answered statement.
// The zero Score is unknowable. Unknowable is a value, not an error, and is
// never coerced to 0 or 1.
type Score struct {
	value float64
	known bool
}

// Known returns a numeric Score. NaN has no meaning as a proximity and
// yields Unknowable.
func Known(v float64) Score {
	if math.IsNaN(v) {
		return Score{}
	}
	return Score{value: v, known: true}
}

// Unknowable returns the Score used when no common ground exists.
func Unknowable() Score { return Score{} }

// Value returns the numeric score and whether it is known.
func (s Score) Value() (float64, bool) { return s.value, s.known }

// IsUnknowable reports whether s carries no number.
func (s Score) IsUnknowable() bool { return !s.known }

// Weighted multiplies a known score by w and caps the result at 1.
// Unknowable scores stay unknowable whatever the weight.
func (s Score) Weighted(w float64) Score {
	if !s.known {
		return s
	}
	return Known(math.Min(w*s.value, 1))
}

// Complement turns a proximity into a distance and back.
func (s Score) Complement() Score {
	if !s.known {
		return s
	}
	return Known(1 - s.value)
}

// String implements fmt.Stringer.
func (s Score) String() string {
	if !s.known {
		return "unknowable"
	}
	return strconv.FormatFloat(s.value, 'f', -1, 64)
}

// MarshalJSON encodes unknowable as null.
func (s Score) MarshalJSON() ([]byte, error) {
	if !s.known {
		return []byte("null"), nil
	}
	return json.Marshal(s.value)
}

// UnmarshalJSON decodes a number or null.
func (s *Score) UnmarshalJSON(data []byte) error {
	var v *float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	if v == nil {
		*s = Unknowable()
		return nil
	}
	*s = Known(*v)
	return nil
}

// Comparison is the full result of one kernel run over two sets of
// positions.
type Comparison struct {
	// Statements is the common-statement set, in canonical order.
	Statements []string `json:"statements"`

	// Distance is the summed per-statement difference.
	Distance float64 `json:"distance"`

	// MaxDistance is |Statements| times the scale's maximum distance.
	MaxDistance float64 `json:"max_distance"`

	// Score is the normalized proximity, or unknowable.
	Score Score `json:"score"`
}
