// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages.
package shared

import "context"

// ══════════════════════════════════════════════════════════════════════════════
// BATCH WRITE COORDINATION
// ══════════════════════════════════════════════════════════════════════════════

// Collection names understood by the batch writer.
const (
	CollectionRuns    = "runs"
	CollectionPlayers = "players"
)

// FieldUpdate is a partial update of a single stored document: the fields
// map keys are store field names, values are the new field values. A nil
// field value clears the field (e.g. removing a rank).
type FieldUpdate struct {
	// TargetID is the document id to update.
	TargetID string

	// Fields are the field names and new values to write.
	Fields map[string]interface{}
}

// BatchResult summarizes a batched write: how many updates were attempted,
// how many committed, and the errors from chunks that failed. Partial
// success is the expected common case at scale, so errors are collected
// rather than aborting the whole sequence.
type BatchResult struct {
	Attempted int
	Committed int
	Errors    []error
}

// OK reports whether every chunk committed.
func (r BatchResult) OK() bool {
	return len(r.Errors) == 0
}

// BatchWriter commits an unbounded sequence of field updates against a
// collection, partitioned into store-sized chunks committed sequentially.
// A failed chunk is recorded and the next chunk still commits.
type BatchWriter interface {
	ApplyUpdates(ctx context.Context, collection string, updates []FieldUpdate) BatchResult
}
