package domain

import (
	"cmp"
	"slices"
	"strconv"
	"strings"
)

// Entry pairs a statement id with the stance taken on it.
type Entry struct {
	ID    string
	Value Position
}

// Vector is the ordered form of Positions. Entries appear in canonical
// statement order (see CompareStatementIDs).
type Vector []Entry

// ToVector converts positions into a Vector in canonical statement order.
func ToVector(ps Positions) Vector {
	ids := make([]string, 0, len(ps))
	for id := range ps {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, CompareStatementIDs)

	v := make(Vector, len(ids))
	for i, id := range ids {
		v[i] = Entry{ID: id, Value: ps[id]}
	}
	return v
}

// ToPositions converts a Vector back into Positions. Later entries win
// when an id repeats.
func ToPositions(v Vector) Positions {
	ps := make(Positions, len(v))
	for _, e := range v {
		ps[e.ID] = e.Value
	}
	return ps
}

// RemoveNotAnswered returns the entries of v that carry a numeric stance.
// Callers that treat the neutral stance as a skip should run
// Scale.Normalize first so neutral values arrive here as unanswered.
func RemoveNotAnswered(v Vector) Vector {
	out := make(Vector, 0, len(v))
	for _, e := range v {
		if e.Value.IsAnswered() {
			out = append(out, e)
		}
	}
	return out
}

// ToStatementSet projects a Vector onto its statement ids.
func ToStatementSet(v Vector) []string {
	ids := make([]string, len(v))
	for i, e := range v {
		ids[i] = e.ID
	}
	return ids
}

// CommonStatements returns the ids answered in both a and b, in a's
// vector order. The result is empty whenever either side has no answered
// statement.
func CommonStatements(a, b Positions) []string {
	answeredA := ToStatementSet(RemoveNotAnswered(ToVector(a)))
	if len(answeredA) == 0 {
		return []string{}
	}

	answeredB := make(map[string]struct{}, len(b))
	for id, p := range b {
		if p.IsAnswered() {
			answeredB[id] = struct{}{}
		}
	}

	common := make([]string, 0, min(len(answeredA), len(answeredB)))
	for _, id := range answeredA {
		if _, ok := answeredB[id]; ok {
			common = append(common, id)
		}
	}
	return common
}

// CompareStatementIDs orders statement ids the way respondents' answer
// sheets are usually keyed: canonical non-negative integers first in
// numeric order, then every other id in lexical order.
func CompareStatementIDs(a, b string) int {
	ai, aok := statementIndex(a)
	bi, bok := statementIndex(b)
	switch {
	case aok && bok:
		return cmp.Compare(ai, bi)
	case aok:
		return -1
	case bok:
		return 1
	default:
		return strings.Compare(a, b)
	}
}

// statementIndex reports whether id is a canonical non-negative integer
// ("7" but not "07", "+7" or "-7").
func statementIndex(id string) (uint64, bool) {
	if id == "" || (len(id) > 1 && id[0] == '0') || id[0] == '+' {
		return 0, false
	}
	n, err := strconv.ParseUint(id, 10, 32)
	if err != nil {
		return 0, false
	}
	return n, true
}
