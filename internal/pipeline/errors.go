// errors.go defines the seven error kinds from spec.md §7 as Go error
// types with Unwrap, grounded on the teacher's pkg/rag/errors.go family
// (struct-per-kind, Error() formats a bracketed-component message,
// Unwrap() returns the underlying cause).
//
// Per SPEC_FULL.md's network surface, only Cancelled crosses the
// SemanticSearch boundary as a Go error; every other kind is rendered
// in-band into the response string by the formatter (see pipeline.go).
// These types still exist for internal classification, logging, and
// metrics labeling (internal/observability.RecordQueryError).
package pipeline

import "fmt"

// StartupInvariantViolation fires at construction time, before any query
// is served — e.g. the embedder's configured dimension doesn't match the
// vector collection's.
type StartupInvariantViolation struct {
	Component string
	Message   string
}

func (e *StartupInvariantViolation) Error() string {
	return fmt.Sprintf("[%s] startup invariant violated: %s", e.Component, e.Message)
}

// UpstreamUnavailable covers the vector store, page store, or every
// embedding provider being unreachable after retries exhaust.
type UpstreamUnavailable struct {
	Component string
	Err       error
}

func (e *UpstreamUnavailable) Error() string {
	return fmt.Sprintf("[%s] upstream unavailable: %v", e.Component, e.Err)
}

func (e *UpstreamUnavailable) Unwrap() error { return e.Err }

// UpstreamDegraded covers BM25, the LLM rewriter, or the page store being
// unavailable while the pipeline still has enough sources to continue.
type UpstreamDegraded struct {
	Component string
	Err       error
}

func (e *UpstreamDegraded) Error() string {
	return fmt.Sprintf("[%s] degraded, continuing without it: %v", e.Component, e.Err)
}

func (e *UpstreamDegraded) Unwrap() error { return e.Err }

// EmptyIndex means the retriever ran cleanly but returned zero candidates.
type EmptyIndex struct {
	QueryText string
}

func (e *EmptyIndex) Error() string {
	return fmt.Sprintf("no candidates retrieved for query %q", e.QueryText)
}

// AllFilteredByThreshold means candidates were found but none passed the
// rerank threshold.
type AllFilteredByThreshold struct {
	QueryText string
	Count     int
	Threshold float64
	MinScore  float64
	MaxScore  float64
}

func (e *AllFilteredByThreshold) Error() string {
	return fmt.Sprintf("all %d candidates filtered below threshold %.3f (scores %.3f-%.3f) for query %q",
		e.Count, e.Threshold, e.MinScore, e.MaxScore, e.QueryText)
}

// BadInput covers QueryTooShort and other input rejected before any
// retrieval begins.
type BadInput struct {
	Reason string
}

func (e *BadInput) Error() string {
	return fmt.Sprintf("bad input: %s", e.Reason)
}

// Cancelled is the one kind that crosses the SemanticSearch boundary as a
// real Go error: client disconnect or deadline exceeded. No report is
// generated for it.
type Cancelled struct {
	Err error
}

func (e *Cancelled) Error() string {
	return fmt.Sprintf("query cancelled: %v", e.Err)
}

func (e *Cancelled) Unwrap() error { return e.Err }
