package board

import (
	"context"

	"github.com/runhub/run-community-hub/internal/domain/run"
)

// ══════════════════════════════════════════════════════════════════════════════
// POINTS DERIVATION
// ══════════════════════════════════════════════════════════════════════════════

// PointsInput carries everything the points formula may look at for one run.
// The formula is deliberately opaque to this package: ranking decides WHERE
// a run stands, the deriver decides what that standing is WORTH.
type PointsInput struct {
	// Position is the computed dense position, zero for unranked runs
	// (obsolete, unparseable time, or below verification).
	Position int

	// TimeMillis is the parsed run duration.
	TimeMillis int64

	BoardKind run.BoardKind
	Mode      run.Mode

	// CategoryName/PlatformName/LevelName are resolved display names,
	// falling back to the run's carried names for imported runs.
	CategoryName string
	PlatformName string
	LevelName    string

	// Obsolete runs earn base points only, never a position bonus.
	Obsolete bool
}

// PointsDeriver computes the points value for a single run. For co-op runs
// the returned value is ALREADY the per-owner share; callers must credit it
// to each owner as-is and never split it again.
type PointsDeriver interface {
	Derive(ctx context.Context, in PointsInput) (float64, error)
}

// DeriverFunc adapts a plain function to the PointsDeriver interface.
type DeriverFunc func(ctx context.Context, in PointsInput) (float64, error)

// Derive implements PointsDeriver.
func (f DeriverFunc) Derive(ctx context.Context, in PointsInput) (float64, error) {
	return f(ctx, in)
}

// UnknownName is handed to the points formula when neither the registry
// nor the imported run can name a category or platform.
const UnknownName = "Unknown"

// FallbackName returns the first non-empty name from the resolution chain:
// registry lookup result, then the name carried on the imported run, then
// UnknownName.
func FallbackName(resolved, carried string) string {
	if resolved != "" {
		return resolved
	}
	if carried != "" {
		return carried
	}
	return UnknownName
}
