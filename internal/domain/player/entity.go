// Package player contains the domain model for player accounts and their
// cached point totals.
package player

import (
	"fmt"
	"time"

	"github.com/runhub/run-community-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// PLAYER ENTITY
// ══════════════════════════════════════════════════════════════════════════════

// Player is a registered community account. Points and run counts are
// denormalized caches: the authoritative values are always derivable from
// the run corpus, and recomputation overwrites whatever is stored.
type Player struct {
	// ID is the account identifier (UUID in string form).
	ID string

	// DisplayName is the public name. Its normalized form links imported
	// runs to this account.
	DisplayName shared.DisplayName

	// CachedTotalPoints is the denormalized sum of points over every run
	// attributed to this account. Written only by full recomputation.
	CachedTotalPoints float64

	// CachedTotalRuns is the denormalized count of attributed runs.
	CachedTotalRuns int

	// LastRecomputedAt is when the cached totals were last rebuilt.
	LastRecomputedAt time.Time

	// CreatedAt/UpdatedAt are maintained by the persistence layer.
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewPlayerParams are the inputs for creating a player.
type NewPlayerParams struct {
	ID          string
	DisplayName string
}

// NewPlayer creates a player with validation.
func NewPlayer(params NewPlayerParams) (*Player, error) {
	if _, err := shared.NewPlayerID(params.ID); err != nil {
		return nil, err
	}
	name, err := shared.NewDisplayName(params.DisplayName)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	return &Player{
		ID:          params.ID,
		DisplayName: name,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// Validate checks entity invariants.
func (p *Player) Validate() error {
	if !shared.PlayerID(p.ID).IsValid() {
		return shared.NewDomainError("player", "Validate", shared.ErrInvalidID, "invalid player id")
	}
	if !p.DisplayName.IsValid() {
		return shared.ErrInvalidDisplayName
	}
	if p.CachedTotalPoints < 0 || p.CachedTotalRuns < 0 {
		return shared.NewDomainError("player", "Validate", shared.ErrValueOutOfRange, "cached totals cannot be negative")
	}
	return nil
}

// Totals is the recomputed aggregate written back to the player document.
type Totals struct {
	Points float64
	Runs   int
}

// ApplyTotals overwrites the cached aggregates with a fresh recomputation.
// Returns true when the stored values actually changed.
func (p *Player) ApplyTotals(t Totals) bool {
	changed := p.CachedTotalPoints != t.Points || p.CachedTotalRuns != t.Runs
	p.CachedTotalPoints = t.Points
	p.CachedTotalRuns = t.Runs
	p.LastRecomputedAt = time.Now().UTC()
	p.UpdatedAt = p.LastRecomputedAt
	return changed
}

// Rename changes the display name. Linking semantics follow the new name
// on the next recomputation.
func (p *Player) Rename(name string) error {
	dn, err := shared.NewDisplayName(name)
	if err != nil {
		return err
	}
	p.DisplayName = dn
	p.UpdatedAt = time.Now().UTC()
	return nil
}

// String returns a loggable representation.
func (p *Player) String() string {
	return fmt.Sprintf("Player{ID: %s, Name: %s, Points: %.2f, Runs: %d}",
		p.ID, p.DisplayName, p.CachedTotalPoints, p.CachedTotalRuns)
}
