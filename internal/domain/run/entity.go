package run

import (
	"fmt"
	"time"

	"github.com/runhub/run-community-hub/internal/domain/shared"
	"github.com/runhub/run-community-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// VALUE OBJECTS
// ══════════════════════════════════════════════════════════════════════════════

// BoardKind identifies which leaderboard a run competes on.
type BoardKind string

const (
	// BoardRegular is the main full-game leaderboard.
	BoardRegular BoardKind = "regular"

	// BoardIndividualLevel is the per-level leaderboard.
	BoardIndividualLevel BoardKind = "individual-level"

	// BoardCommunityGolds is the community best-segments leaderboard.
	BoardCommunityGolds BoardKind = "community-golds"
)

// IsValid checks the board kind value.
func (b BoardKind) IsValid() bool {
	switch b {
	case BoardRegular, BoardIndividualLevel, BoardCommunityGolds:
		return true
	default:
		return false
	}
}

// RequiresLevel reports whether runs on this board must carry a level ref.
func (b BoardKind) RequiresLevel() bool {
	return b != BoardRegular
}

// String returns the string representation.
func (b BoardKind) String() string {
	return string(b)
}

// Mode distinguishes solo runs from co-op runs.
type Mode string

const (
	// ModeSolo is a single-player run.
	ModeSolo Mode = "solo"

	// ModeCoOp is a two-player run; it attributes to exactly two owners.
	ModeCoOp Mode = "co-op"
)

// IsValid checks the mode value.
func (m Mode) IsValid() bool {
	return m == ModeSolo || m == ModeCoOp
}

// String returns the string representation.
func (m Mode) String() string {
	return string(m)
}

// RankCeiling is the highest rank ever persisted on a run document.
// Positions beyond it carry no rank field at all.
const RankCeiling = 3

// ══════════════════════════════════════════════════════════════════════════════
// RUN ENTITY
// ══════════════════════════════════════════════════════════════════════════════

// Run is a single timed attempt against a category/platform/level.
type Run struct {
	// ID is the opaque, store-assigned identifier.
	ID string

	// Owner is the parsed ownership state (real account or sentinel).
	Owner Owner

	// OwnerDisplayName is the attributed player name (primary slot).
	OwnerDisplayName string

	// CoOwnerDisplayName is the secondary slot; present only for co-op runs.
	CoOwnerDisplayName string

	// BoardKind, CategoryRef, PlatformRef, LevelRef and Mode together form
	// the comparison-group identity. LevelRef is required only for
	// non-regular board kinds.
	BoardKind   BoardKind
	CategoryRef string
	PlatformRef string
	LevelRef    string
	Mode        Mode

	// CategoryName/PlatformName are fallback display names carried by
	// imported runs whose refs may be absent from the local registry.
	CategoryName string
	PlatformName string

	// Time is the textual duration, canonical "HH:MM:SS" after Normalize.
	Time string

	// SubmittedDate is when the run was submitted.
	SubmittedDate time.Time

	// Verified gates ranking eligibility.
	Verified bool

	// Obsolete removes the run from ranking but not from points history.
	Obsolete bool

	// Rank is set only when the computed position is within RankCeiling;
	// zero means "no rank field".
	Rank int

	// Points is the derived points value for this run's owner.
	Points float64
}

// Normalize autofills and canonicalizes submitted fields in place:
// the time string is re-formatted to "HH:MM:SS", names are trimmed, and
// missing kind/mode default to the regular solo board.
func (r *Run) Normalize() error {
	if r.BoardKind == "" {
		r.BoardKind = BoardRegular
	}
	if r.Mode == "" {
		r.Mode = ModeSolo
	}

	canonical, err := timeutil.Canonicalize(r.Time)
	if err != nil {
		return shared.WrapError("run", "Normalize", shared.ErrInvalidFormat,
			fmt.Sprintf("cannot canonicalize time %q", r.Time), err)
	}
	r.Time = canonical

	if name, err := shared.NewDisplayName(r.OwnerDisplayName); err == nil {
		r.OwnerDisplayName = name.String()
	}
	if r.Mode == ModeCoOp {
		if name, err := shared.NewDisplayName(r.CoOwnerDisplayName); err == nil {
			r.CoOwnerDisplayName = name.String()
		}
	} else {
		r.CoOwnerDisplayName = ""
	}

	return nil
}

// Validate checks entity invariants.
func (r *Run) Validate() error {
	if r.ID == "" {
		return shared.NewDomainError("run", "Validate", shared.ErrInvalidID, "run id cannot be empty")
	}
	if !r.BoardKind.IsValid() {
		return shared.ErrInvalidBoardKind
	}
	if !r.Mode.IsValid() {
		return shared.ErrInvalidRunMode
	}
	if r.BoardKind.RequiresLevel() && r.LevelRef == "" {
		return shared.ErrMissingLevel
	}
	if r.CategoryRef == "" && r.CategoryName == "" {
		return shared.NewDomainError("run", "Validate", shared.ErrEmptyValue, "run must carry a category ref or fallback name")
	}
	if !timeutil.IsValidClock(r.Time) {
		return shared.ErrInvalidRunTime
	}
	if r.Rank < 0 || r.Rank > RankCeiling {
		return shared.NewDomainError("run", "Validate", shared.ErrValueOutOfRange,
			fmt.Sprintf("rank %d outside persisted range", r.Rank))
	}
	return nil
}

// TimeKey returns the ordered numeric key for the run's duration.
func (r *Run) TimeKey() (int64, error) {
	return timeutil.ParseClock(r.Time)
}

// GroupKey derives the run's comparison-group identity.
func (r *Run) GroupKey() GroupKey {
	return GroupKey{
		BoardKind:   r.BoardKind,
		LevelRef:    r.LevelRef,
		CategoryRef: r.CategoryRef,
		PlatformRef: r.PlatformRef,
		Mode:        r.Mode,
	}
}

// RankEligible reports whether the run participates in ranking.
func (r *Run) RankEligible() bool {
	return r.Verified && !r.Obsolete
}

// IsCoOp reports whether the run attributes to two owners.
func (r *Run) IsCoOp() bool {
	return r.Mode == ModeCoOp
}

// OwnedBy reports whether the run's primary slot belongs to the account.
func (r *Run) OwnedBy(accountID string) bool {
	return r.Owner.IsReal() && r.Owner.ID == accountID
}

// PrimaryNameMatches reports whether the primary slot's display name
// matches the given name (case-insensitive, trimmed).
func (r *Run) PrimaryNameMatches(name shared.DisplayName) bool {
	return shared.DisplayName(r.OwnerDisplayName).Matches(name)
}

// SecondaryNameMatches reports whether the co-op secondary slot matches
// the given name. Always false for solo runs.
func (r *Run) SecondaryNameMatches(name shared.DisplayName) bool {
	if !r.IsCoOp() {
		return false
	}
	return shared.DisplayName(r.CoOwnerDisplayName).Matches(name)
}

// AttributedTo reports whether the run counts toward the given account's
// totals: linked primary ownership, legacy primary name match while not
// linked to a different account, or co-op secondary name match.
func (r *Run) AttributedTo(accountID string, name shared.DisplayName) bool {
	if r.OwnedBy(accountID) {
		return true
	}
	if r.Owner.IsReal() && r.Owner.ID != accountID {
		// Linked to someone else: only the secondary slot can still attribute.
		return r.SecondaryNameMatches(name)
	}
	return r.PrimaryNameMatches(name) || r.SecondaryNameMatches(name)
}

// Clone returns a deep copy of the run.
func (r *Run) Clone() *Run {
	if r == nil {
		return nil
	}
	clone := *r
	return &clone
}

// String returns a loggable representation.
func (r *Run) String() string {
	return fmt.Sprintf("Run{ID: %s, Time: %s, Owner: %s, Verified: %t, Rank: %d}",
		r.ID, r.Time, r.Owner, r.Verified, r.Rank)
}
