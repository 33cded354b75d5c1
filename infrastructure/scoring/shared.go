// Package scoring implements the distance kernel that scores two sets of
// positions against each other, and the aggregation operations built on
// top of it.
package scoring

import (
	"errors"

	"github.com/go-playground/validator/v10"
)

// EmptyOverlapPolicy decides the score of two sides that share no answered
// statement.
type EmptyOverlapPolicy string

// Supported empty-overlap policies.
const (
	// ZeroScore returns 0. Matches the legacy scoring engine, which could
	// not tell "no common ground" from "complete disagreement".
	ZeroScore EmptyOverlapPolicy = "zero_score"

	// UnknowableScore returns domain.Unknowable so callers can render the
	// match as "not enough answers" instead of 0%.
	UnknowableScore EmptyOverlapPolicy = "unknowable"
)

// NearNeutralMode selects how per-statement differences treat stances that
// sit close to the neutral midpoint.
type NearNeutralMode string

// Supported near-neutral modes.
const (
	// NearNeutralNone uses the plain absolute difference.
	NearNeutralNone NearNeutralMode = "none"

	// NearNeutralAmplifyXor doubles the difference when exactly one side is
	// close to neutral, capped at the rule's cap.
	NearNeutralAmplifyXor NearNeutralMode = "amplify_xor"
)

// Common errors returned by the scoring operations.
var (
	// ErrInvalidWeight is returned for negative or non-finite weights.
	ErrInvalidWeight = errors.New("invalid weight")

	// ErrInvalidRatio is returned when a mix ratio falls outside [0,1].
	ErrInvalidRatio = errors.New("invalid mix ratio")
)

// Package-level validator instance for configuration validation.
// Uses go-playground/validator v10 for struct tag-based validation.
var validate = validator.New()
