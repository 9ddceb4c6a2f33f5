package player

import (
	"context"

	"github.com/runhub/run-community-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// Implementations live in infrastructure/persistence.
// ══════════════════════════════════════════════════════════════════════════════

// Repository defines the contract for player storage.
type Repository interface {
	// Create stores a new player.
	// Returns shared.ErrAlreadyExists when the id is taken.
	Create(ctx context.Context, p *Player) error

	// GetByID returns a player by account id.
	// Returns shared.ErrNotFound when absent.
	GetByID(ctx context.Context, id string) (*Player, error)

	// GetByDisplayName returns the player whose normalized display name
	// matches. Returns shared.ErrNotFound when absent.
	GetByDisplayName(ctx context.Context, name shared.DisplayName) (*Player, error)

	// Update replaces a stored player.
	// Returns shared.ErrNotFound when absent.
	Update(ctx context.Context, p *Player) error

	// UpdateTotals writes only the cached aggregates. This is the hot path
	// of recomputation; the write may fail with shared.ErrPermissionDenied
	// when the stored document has a restrictive owner rule, in which case
	// the caller falls back to MergeTotals.
	UpdateTotals(ctx context.Context, id string, totals Totals) error

	// MergeTotals upserts the cached aggregates with merge semantics,
	// creating or widening the document as needed. Used as the retry path
	// after a permission-denied UpdateTotals.
	MergeTotals(ctx context.Context, id string, totals Totals) error

	// GetByIDs returns the players matching the given account ids.
	// Missing ids are skipped, not errors.
	GetByIDs(ctx context.Context, ids []string) ([]*Player, error)

	// Count returns the number of registered players.
	Count(ctx context.Context) (int, error)
}

// LinkResolver resolves display names to registered accounts. It is the
// bridge between name-attributed runs and the player table; the caching
// implementation lives in the service layer.
type LinkResolver interface {
	// ResolveName returns the account whose display name matches, or
	// (nil, nil) when no account uses the name.
	ResolveName(ctx context.Context, name shared.DisplayName) (*Player, error)
}
