package run

import (
	"context"
)

// ══════════════════════════════════════════════════════════════════════════════
// RUN REPOSITORY INTERFACE
// ══════════════════════════════════════════════════════════════════════════════

// ListOptions bounds repository queries. Every read is limited: correctness
// of ranking and totals is guaranteed only up to the configured fetch limit,
// a deliberate scale/cost tradeoff.
type ListOptions struct {
	// Limit is the maximum number of runs returned. Zero means the
	// repository default.
	Limit int

	// IncludeUnverified widens name-match scans to unverified runs
	// (auto-link needs this; totals recomputation does not).
	IncludeUnverified bool

	// AfterID resumes a full-corpus scan after the given run id
	// (keyset pagination for backfill).
	AfterID string
}

// DefaultListOptions returns options with the repository default limit.
func DefaultListOptions() ListOptions {
	return ListOptions{}
}

// WithLimit sets the fetch limit.
func (o ListOptions) WithLimit(limit int) ListOptions {
	if limit > 0 {
		o.Limit = limit
	}
	return o
}

// WithUnverified widens the scan to unverified runs.
func (o ListOptions) WithUnverified() ListOptions {
	o.IncludeUnverified = true
	return o
}

// WithAfterID sets the pagination cursor.
func (o ListOptions) WithAfterID(id string) ListOptions {
	o.AfterID = id
	return o
}

// Repository defines the contract for run storage. The implementation lives
// in the infrastructure layer.
type Repository interface {
	// GetByID returns a run by id. Returns shared.ErrNotFound when absent.
	GetByID(ctx context.Context, id string) (*Run, error)

	// ListGroup returns verified runs matching the group key, up to the
	// fetch limit. Obsolete runs are included; ranking filters them.
	ListGroup(ctx context.Context, key GroupKey, opts ListOptions) ([]*Run, error)

	// ListByOwner returns verified runs whose primary slot is linked to
	// the account id.
	ListByOwner(ctx context.Context, accountID string, opts ListOptions) ([]*Run, error)

	// ListByDisplayName returns runs whose primary or co-op secondary slot
	// matches the normalized display name. Verified-only unless
	// opts.IncludeUnverified is set.
	ListByDisplayName(ctx context.Context, normalizedName string, opts ListOptions) ([]*Run, error)

	// ListVerified pages through every verified run in the corpus,
	// ordered by id, resuming after opts.AfterID.
	ListVerified(ctx context.Context, opts ListOptions) ([]*Run, error)

	// Insert stores a new run.
	Insert(ctx context.Context, r *Run) error

	// Update replaces a stored run.
	Update(ctx context.Context, r *Run) error

	// Delete removes a run. Returns shared.ErrNotFound when absent.
	Delete(ctx context.Context, id string) error
}
