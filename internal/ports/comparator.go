// Package ports defines the core interfaces that form the contract between
// the domain/application layers and the infrastructure layer.
// These interfaces enable dependency inversion and make the system testable.
package ports

import (
	"github.com/ahrav/go-compass/internal/domain"
)

// Comparator scores how closely two sets of positions agree.
// Implementations must be pure: the same inputs always yield the same
// Comparison, inputs are never modified, and calls are safe for concurrent
// use. The aggregation layer works against this interface so decorators
// (tracing, metrics) can sit between it and the kernel.
type Comparator interface {
	// Compare runs the full comparison and returns the common-statement
	// set, the summed and maximum distances and the resulting score.
	//
	// Example:
	//
	//	cmp := comparator.Compare(voter, party)
	//	if v, ok := cmp.Score.Value(); ok {
	//	    fmt.Printf("%.0f%% over %d statements\n", v*100, len(cmp.Statements))
	//	}
	Compare(a, b domain.Positions) domain.Comparison

	// Proximity returns only the score of Compare.
	Proximity(a, b domain.Positions) domain.Score

	// EmptyScore returns the score this comparator assigns when two sides
	// share no answered statement.
	EmptyScore() domain.Score
}
