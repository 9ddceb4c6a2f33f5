package command

import (
	"context"
	"errors"
	"fmt"

	"github.com/runhub/run-community-hub/internal/domain/run"
	"github.com/runhub/run-community-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// EDIT RUN COMMAND
// An edit can move a run between comparison groups (new category, platform,
// level, board kind, or mode) or reorder it within one (new time). Both the
// group it left and the group it joined re-rank; the overlay mechanism
// handles each side, since the edited copy belongs to exactly one of them.
// ══════════════════════════════════════════════════════════════════════════════

// EditRunCommand updates a run's submitted fields. Nil pointers mean
// "leave unchanged".
type EditRunCommand struct {
	// RunID is the run to edit.
	RunID string

	// ModeratorID identifies who made the edit.
	ModeratorID string

	Time               *string
	BoardKind          *string
	CategoryRef        *string
	PlatformRef        *string
	LevelRef           *string
	Mode               *string
	OwnerDisplayName   *string
	CoOwnerDisplayName *string

	// CorrelationID for tracing.
	CorrelationID string
}

// Validate validates the command.
func (c EditRunCommand) Validate() error {
	if c.RunID == "" {
		return errors.New("edit_run: run_id is required")
	}
	if c.ModeratorID == "" {
		return errors.New("edit_run: moderator_id is required")
	}
	if c.Time == nil && c.BoardKind == nil && c.CategoryRef == nil &&
		c.PlatformRef == nil && c.LevelRef == nil && c.Mode == nil &&
		c.OwnerDisplayName == nil && c.CoOwnerDisplayName == nil {
		return errors.New("edit_run: no fields to change")
	}
	return nil
}

// EditRunResult contains the outcome of an edit.
type EditRunResult struct {
	// GroupMoved is true when the edit changed the comparison group.
	GroupMoved bool

	// OldGroupKey/NewGroupKey identify the re-ranked groups.
	OldGroupKey string
	NewGroupKey string

	// Rank and Points are the run's reconciled values in its (new) group,
	// meaningful only while the run is verified.
	Rank   int
	Points float64

	// GroupUpdates counts run documents rewritten across both groups.
	GroupUpdates int
}

// EditRunHandler handles the EditRunCommand.
type EditRunHandler struct {
	rec *Reconciler
}

// NewEditRunHandler creates a new EditRunHandler.
func NewEditRunHandler(rec *Reconciler) *EditRunHandler {
	return &EditRunHandler{rec: rec}
}

// Handle executes the edit run command.
func (h *EditRunHandler) Handle(ctx context.Context, cmd EditRunCommand) (*EditRunResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("edit_run: validation failed: %w", err)
	}

	target, err := h.rec.loadRun(ctx, "edit_run", cmd.RunID)
	if err != nil {
		return nil, err
	}
	oldKey := target.GroupKey()

	applyEdits(target, cmd)
	if err := target.Normalize(); err != nil {
		return nil, fmt.Errorf("edit_run: %w", err)
	}
	if err := target.Validate(); err != nil {
		return nil, fmt.Errorf("edit_run: %w", err)
	}
	newKey := target.GroupKey()

	if err := h.rec.runs.Update(ctx, target); err != nil {
		return nil, fmt.Errorf("edit_run: persisting run %s: %w", cmd.RunID, err)
	}

	totalUpdates := 0
	moved := newKey != oldKey
	if moved {
		// The edited copy no longer matches the old key, so the overlay
		// drops it from the old group's pool.
		_, committed, err := h.rec.RerankGroup(ctx, oldKey, target, "")
		if err != nil {
			return nil, fmt.Errorf("edit_run: reranking old group: %w", err)
		}
		totalUpdates += committed
	}

	state, committed, err := h.rec.RerankGroup(ctx, newKey, target, "")
	if err != nil {
		return nil, fmt.Errorf("edit_run: reranking group: %w", err)
	}
	totalUpdates += committed

	if target.Verified {
		h.rec.RecomputeForRun(ctx, target, "edit_run")
	}

	h.rec.publish(shared.NewRunEditedEvent(target.ID, oldKey.String(), newKey.String()))

	desired := state.Desired[target.ID]
	return &EditRunResult{
		GroupMoved:   moved,
		OldGroupKey:  oldKey.String(),
		NewGroupKey:  newKey.String(),
		Rank:         desired.Rank,
		Points:       desired.Points,
		GroupUpdates: totalUpdates,
	}, nil
}

func applyEdits(target *run.Run, cmd EditRunCommand) {
	if cmd.Time != nil {
		target.Time = *cmd.Time
	}
	if cmd.BoardKind != nil {
		target.BoardKind = run.BoardKind(*cmd.BoardKind)
	}
	if cmd.CategoryRef != nil {
		target.CategoryRef = *cmd.CategoryRef
	}
	if cmd.PlatformRef != nil {
		target.PlatformRef = *cmd.PlatformRef
	}
	if cmd.LevelRef != nil {
		target.LevelRef = *cmd.LevelRef
	}
	if cmd.Mode != nil {
		target.Mode = run.Mode(*cmd.Mode)
	}
	if cmd.OwnerDisplayName != nil {
		target.OwnerDisplayName = *cmd.OwnerDisplayName
	}
	if cmd.CoOwnerDisplayName != nil {
		target.CoOwnerDisplayName = *cmd.CoOwnerDisplayName
	}
}
