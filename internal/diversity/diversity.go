// Package diversity implements the Diversity Filter stage (§4.7): capping
// the number of hits surfaced from any one page, intent-adaptive, without
// disturbing the incoming rank order.
package diversity

import (
	"github.com/veyron-labs/wikiq/internal/hit"
	"github.com/veyron-labs/wikiq/internal/query"
)

// MaxChunksPerPage is the intent-adaptive per-page cap (§4.7).
var MaxChunksPerPage = map[query.Intent]int{
	query.IntentNavigational: 1,
	query.IntentFactual:      2,
	query.IntentHowTo:        3,
	query.IntentExploratory:  4,
}

// CapFor returns the configured per-page cap for an intent, defaulting to
// Factual's cap (2) for an unrecognized intent. A cap of 0 passed to
// Filter disables the limit entirely (config-disabled case), so this never
// returns 0 itself.
func CapFor(intent query.Intent) int {
	if cap, ok := MaxChunksPerPage[intent]; ok {
		return cap
	}
	return MaxChunksPerPage[query.IntentFactual]
}

// Filter keeps hits in their incoming order, dropping any past the
// per-page cap for the given intent. Hits without a PageID are always
// kept. If max <= 0 (config-disabled), every hit passes through.
func Filter(hits []hit.RetrievedHit, maxPerPage int) []hit.RetrievedHit {
	if maxPerPage <= 0 {
		return hits
	}

	counts := make(map[string]int)
	out := make([]hit.RetrievedHit, 0, len(hits))
	for _, h := range hits {
		pageID := h.PageID()
		if pageID == "" {
			out = append(out, h)
			continue
		}
		if counts[pageID] >= maxPerPage {
			continue
		}
		counts[pageID]++
		out = append(out, h)
	}
	return out
}
