// Package domain contains pure, dependency-free domain models and types
// for the matching engine.
package domain

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Position is one respondent's stance on a single statement.
// The zero Position is the canonical "not answered" tag: an explicit null,
// a non-numeric value and a missing key all collapse into it.
type Position struct {
	value    float64
	answered bool
}

// NewPosition returns an answered Position holding v.
// Non-finite values (NaN, ±Inf) cannot be compared and produce an
// unanswered Position instead.
func NewPosition(v float64) Position {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return Position{}
	}
	return Position{value: v, answered: true}
}

// NotAnswered returns the unanswered Position.
func NotAnswered() Position { return Position{} }

// ParsePosition reads a stance from its textual form. Anything that does
// not parse as a finite number is treated as not answered.
func ParsePosition(s string) Position {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return Position{}
	}
	return NewPosition(v)
}

// Value returns the numeric stance and whether the statement was answered.
func (p Position) Value() (float64, bool) { return p.value, p.answered }

// IsAnswered reports whether p carries a numeric stance.
func (p Position) IsAnswered() bool { return p.answered }

// String implements fmt.Stringer.
func (p Position) String() string {
	if !p.answered {
		return "null"
	}
	return strconv.FormatFloat(p.value, 'f', -1, 64)
}

// MarshalJSON encodes an answered Position as a number and an unanswered
// one as null.
func (p Position) MarshalJSON() ([]byte, error) {
	if !p.answered {
		return []byte("null"), nil
	}
	return json.Marshal(p.value)
}

// UnmarshalJSON accepts a number, a numeric string, null, or the object
// form {"value": ...}.
func (p *Position) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*p = positionFrom(raw)
	return nil
}

// UnmarshalYAML accepts the same shapes as UnmarshalJSON. It uses the
// function-style unmarshaler so the domain package stays free of a YAML
// dependency.
func (p *Position) UnmarshalYAML(unmarshal func(any) error) error {
	var raw any
	if err := unmarshal(&raw); err != nil {
		return err
	}
	*p = positionFrom(raw)
	return nil
}

func positionFrom(raw any) Position {
	switch v := raw.(type) {
	case nil:
		return Position{}
	case float64:
		return NewPosition(v)
	case float32:
		return NewPosition(float64(v))
	case int:
		return NewPosition(float64(v))
	case int64:
		return NewPosition(float64(v))
	case uint64:
		return NewPosition(float64(v))
	case json.Number:
		return ParsePosition(v.String())
	case string:
		return ParsePosition(v)
	case map[string]any:
		return positionFrom(v["value"])
	case map[any]any:
		return positionFrom(v["value"])
	default:
		return Position{}
	}
}

// Positions maps statement ids to a respondent's stances. Operations in
// this module never mutate a Positions value; they return new maps.
type Positions map[string]Position

// FromFloats builds Positions from plain numbers. NaN entries become
// unanswered statements.
func FromFloats(values map[string]float64) Positions {
	ps := make(Positions, len(values))
	for id, v := range values {
		ps[id] = NewPosition(v)
	}
	return ps
}

// Clone returns a shallow copy of ps. Position is a value type so the copy
// is fully independent.
func (ps Positions) Clone() Positions {
	out := make(Positions, len(ps))
	for id, p := range ps {
		out[id] = p
	}
	return out
}
