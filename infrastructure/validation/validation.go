// Package validation checks raw answer payloads before they reach the
// scoring kernel. Every check returns nil when the input is acceptable, or a
// *domain.ValidationError that lists one issue per offending statement id.
package validation

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ahrav/go-compass/internal/domain"
)

// ValidatePositions reports every statement whose value is not one of the
// scale's legal stances. An unanswered (null) value is reported as well.
func ValidatePositions(scale domain.Scale, ps domain.Positions) error {
	verr := domain.NewValidationError("positions")
	legal := formatStances(scale.Stances())

	for _, e := range domain.ToVector(ps) {
		v, ok := e.Value.Value()
		if ok && scale.IsLegal(v) {
			continue
		}
		verr.AddIssue(e.ID, fmt.Sprintf("Expected position %s to be one of %s", e.Value, legal))
	}
	return result(verr)
}

// ValidatePositionsTaken reports every statement that is unanswered or sits
// on the scale's neutral stance. Parties use this: they must take a side on
// every statement they list.
func ValidatePositionsTaken(scale domain.Scale, ps domain.Positions) error {
	verr := domain.NewValidationError("positions")
	message := fmt.Sprintf("Expected position to not be %s", formatStance(scale.Midpoint()))

	for _, e := range domain.ToVector(ps) {
		v, ok := e.Value.Value()
		if ok && !scale.IsNeutral(v) {
			continue
		}
		verr.AddIssue(e.ID, message)
	}
	return result(verr)
}

// ValidateOverlappingPositions reports statements listed by only one of a
// and b. Both sides must list exactly the same statement ids; whether they
// are answered does not matter here.
func ValidateOverlappingPositions(a, b domain.Positions) error {
	verr := domain.NewValidationError("overlap")

	for _, e := range domain.ToVector(a) {
		if _, ok := b[e.ID]; !ok {
			verr.AddIssue(e.ID, "Expected statement to be present on both sides, missing on the right")
		}
	}
	for _, e := range domain.ToVector(b) {
		if _, ok := a[e.ID]; !ok {
			verr.AddIssue(e.ID, "Expected statement to be present on both sides, missing on the left")
		}
	}
	return result(verr)
}

// result keeps a typed nil out of the error interface.
func result(verr *domain.ValidationError) error {
	if verr.HasErrors() {
		return verr
	}
	return nil
}

func formatStances(stances []float64) string {
	parts := make([]string, len(stances))
	for i, s := range stances {
		parts[i] = formatStance(s)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

func formatStance(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
