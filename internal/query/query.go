// Package query defines the objects the analyzer derives from a raw query
// string, and the expansion-set contract the expander produces from them.
package query

import "time"

// Intent classifies the coarse purpose of a query.
type Intent string

const (
	IntentNavigational Intent = "navigational"
	IntentHowTo        Intent = "howto"
	IntentFactual      Intent = "factual"
	IntentExploratory  Intent = "exploratory"
)

// Structure captures structural-path detection ("A > B > C").
type Structure struct {
	IsStructural bool
	Parts        []string // lowercased, trimmed, in query order
}

// Filters is the set of structured constraints extracted from free text.
type Filters struct {
	Space       string
	Author      string
	DateFrom    *time.Time
	DateTo      *time.Time
	ContentType string
	Status      string
}

// IsEmpty reports whether no filter was extracted.
func (f Filters) IsEmpty() bool {
	return f.Space == "" && f.Author == "" && f.DateFrom == nil &&
		f.DateTo == nil && f.ContentType == "" && f.Status == ""
}

// Analyzed is everything the Query Analyzer (internal/analyzer) derives
// from one raw user query.
type Analyzed struct {
	Raw          string
	CleanedQuery string
	Intent       Intent
	Structure    Structure
	Filters      Filters
}

// ExpansionSet is the ordered, de-duplicated set of query variants the
// expander (internal/expansion) produces. The original query is always at
// index 0.
type ExpansionSet struct {
	Variants []string
}

// Original returns the unexpanded query, or "" if the set is empty.
func (e ExpansionSet) Original() string {
	if len(e.Variants) == 0 {
		return ""
	}
	return e.Variants[0]
}

// MaxVariants returns the adaptive cap on expansion-set size for a query of
// the given token count, per spec: short (<=2 tokens) -> 5, medium (<=4) ->
// 3, long -> 2.
func MaxVariants(tokenCount int) int {
	switch {
	case tokenCount <= 2:
		return 5
	case tokenCount <= 4:
		return 3
	default:
		return 2
	}
}
