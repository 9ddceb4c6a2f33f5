// Package service contains infrastructure-side implementations of the
// small ports the application layer depends on: the points formula, the
// name-to-account resolver, and the registry name lookup.
package service

import (
	"context"
	"strings"

	"github.com/runhub/run-community-hub/internal/domain/board"
	"github.com/runhub/run-community-hub/internal/domain/run"
)

// ══════════════════════════════════════════════════════════════════════════════
// POINTS FORMULA
// The formula is an external boundary: ranking decides where a run stands,
// this decides what the standing is worth, and callers persist the output
// verbatim. For co-op runs the result is already the per-owner share.
// ══════════════════════════════════════════════════════════════════════════════

// Podium bonuses by position. Positions above the podium earn base only.
var podiumBonus = map[int]float64{
	1: 100,
	2: 50,
	3: 25,
}

// Base points per board kind. Community gold splits and individual levels
// are worth less than a full run.
var basePoints = map[run.BoardKind]float64{
	run.BoardRegular:         25,
	run.BoardIndividualLevel: 10,
	run.BoardCommunityGolds:  5,
}

// categoryWeight scales points for category difficulty. Matching is by
// resolved display name; unknown categories use weight 1.
var categoryWeight = map[string]float64{
	"100%":         1.5,
	"all missions": 1.25,
}

// PointsFormula is the default board.PointsDeriver.
type PointsFormula struct{}

// NewPointsFormula creates the default points formula.
func NewPointsFormula() *PointsFormula {
	return &PointsFormula{}
}

// Derive computes the points value for one run.
func (f *PointsFormula) Derive(_ context.Context, in board.PointsInput) (float64, error) {
	base, ok := basePoints[in.BoardKind]
	if !ok {
		base = basePoints[run.BoardRegular]
	}

	weight := 1.0
	if w, ok := categoryWeight[strings.ToLower(in.CategoryName)]; ok {
		weight = w
	}

	points := base * weight

	// Obsolete runs keep their history value but never a position bonus.
	if !in.Obsolete && in.Position > 0 {
		points += podiumBonus[in.Position] * weight
	}

	// Pre-split: each co-op owner is credited half, and the caller never
	// splits again.
	if in.Mode == run.ModeCoOp {
		points /= 2
	}

	return points, nil
}
