package command

import (
	"context"
	"errors"
	"fmt"

	"github.com/runhub/run-community-hub/internal/domain/board"
	"github.com/runhub/run-community-hub/internal/domain/run"
	"github.com/runhub/run-community-hub/internal/domain/shared"
	"github.com/runhub/run-community-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// AUTO-LINK RUNS COMMAND
// Bulk claiming for one account: every sentinel-owned run whose primary
// display name matches the account's name gets its ownership reference
// rewritten in a batch. Secondary (co-op) matches are never relinked - the
// primary slot belongs to the other runner - but they still count toward
// the account's totals, so the pass ends with a recompute either way.
// ══════════════════════════════════════════════════════════════════════════════

// AutoLinkRunsCommand links all name-matching runs to an account.
type AutoLinkRunsCommand struct {
	// AccountID is the account to link runs to.
	AccountID string

	// CorrelationID for tracing.
	CorrelationID string
}

// Validate validates the command.
func (c AutoLinkRunsCommand) Validate() error {
	if c.AccountID == "" {
		return errors.New("autolink_runs: account_id is required")
	}
	return nil
}

// AutoLinkRunsResult summarizes the pass.
type AutoLinkRunsResult struct {
	// Scanned is how many name-matching runs were examined.
	Scanned int

	// Linked is how many runs had their ownership rewritten.
	Linked int

	// SecondaryMatches is how many runs matched only the co-op slot.
	SecondaryMatches int

	// AlreadyLinked is how many runs already belonged to the account.
	AlreadyLinked int

	// Skipped is how many runs belong to a different real account.
	Skipped int

	// Errors are batch chunk failures; linked counts reflect only
	// committed chunks.
	Errors []error
}

// AutoLinkRunsHandler handles the AutoLinkRunsCommand.
type AutoLinkRunsHandler struct {
	rec *Reconciler
}

// NewAutoLinkRunsHandler creates a new AutoLinkRunsHandler.
func NewAutoLinkRunsHandler(rec *Reconciler) *AutoLinkRunsHandler {
	return &AutoLinkRunsHandler{rec: rec}
}

// Handle executes the auto-link command.
func (h *AutoLinkRunsHandler) Handle(ctx context.Context, cmd AutoLinkRunsCommand) (*AutoLinkRunsResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("autolink_runs: validation failed: %w", err)
	}

	account, err := h.rec.players.GetByID(ctx, cmd.AccountID)
	if err != nil {
		return nil, fmt.Errorf("autolink_runs: loading account %s: %w", cmd.AccountID, err)
	}

	// Unverified runs are included: linking now means they attribute
	// correctly the moment a moderator verifies them.
	matches, err := h.rec.runs.ListByDisplayName(ctx, account.DisplayName.Normalized(),
		run.DefaultListOptions().WithUnverified())
	if err != nil {
		return nil, fmt.Errorf("autolink_runs: listing name matches: %w", err)
	}

	result := &AutoLinkRunsResult{Scanned: len(matches)}
	newRef := run.RealOwner(cmd.AccountID).Ref()
	var updates []shared.FieldUpdate

	for _, candidate := range matches {
		switch {
		case candidate.OwnedBy(cmd.AccountID):
			result.AlreadyLinked++
		case !candidate.PrimaryNameMatches(account.DisplayName):
			result.SecondaryMatches++
		case candidate.Owner.IsReal():
			// Primary name matches but the run is linked elsewhere:
			// never steal from another account.
			result.Skipped++
		default:
			updates = append(updates, shared.FieldUpdate{
				TargetID: candidate.ID,
				Fields:   map[string]interface{}{board.FieldOwnerRef: newRef},
			})
		}
	}

	if len(updates) > 0 {
		batchResult := h.rec.batch.ApplyUpdates(ctx, shared.CollectionRuns, updates)
		result.Linked = batchResult.Committed
		result.Errors = batchResult.Errors
		for _, batchErr := range batchResult.Errors {
			h.rec.log.Error("auto-link chunk failed",
				logger.PlayerID(cmd.AccountID),
				logger.Err(batchErr),
			)
		}
	}

	h.rec.SideEffectRecompute(ctx, cmd.AccountID, "autolink_runs", nil)

	h.rec.publish(shared.NewRunsAutoLinkedEvent(
		cmd.AccountID,
		account.DisplayName.String(),
		result.Linked,
	))

	h.rec.log.Info("auto-link pass completed",
		logger.PlayerID(cmd.AccountID),
		logger.Int("scanned", result.Scanned),
		logger.Int("linked", result.Linked),
		logger.Int("secondary_matches", result.SecondaryMatches),
	)
	return result, nil
}
