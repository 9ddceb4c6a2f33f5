package command

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/runhub/run-community-hub/internal/domain/run"
	"github.com/runhub/run-community-hub/internal/domain/shared"
	"github.com/runhub/run-community-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// BACKFILL COMMAND
// The administrative full-corpus pass: page through every verified run,
// re-rank every comparison group from scratch, persist the diffs, then
// rebuild the cached totals of every player the corpus touches. Everything
// the incremental paths maintain, this pass can reconstruct - it is the
// safety net for drift, bugs, and formula changes.
// ══════════════════════════════════════════════════════════════════════════════

// BackfillCommand triggers a full recompute of ranks, points, and totals.
type BackfillCommand struct {
	// PageSize bounds each corpus page; zero means the default.
	PageSize int

	// CorrelationID for tracing.
	CorrelationID string
}

// Validate validates the command.
func (c BackfillCommand) Validate() error {
	if c.PageSize < 0 {
		return fmt.Errorf("page size cannot be negative: %d", c.PageSize)
	}
	return nil
}

// BackfillResult summarizes the pass.
type BackfillResult struct {
	RunsScanned      int
	GroupsProcessed  int
	RunsUpdated      int
	PlayersRecounted int
	Errors           []error
	Duration         time.Duration
}

// OK reports whether the pass completed without partial failures.
func (r *BackfillResult) OK() bool {
	return len(r.Errors) == 0
}

// BackfillHandler handles the BackfillCommand.
type BackfillHandler struct {
	rec      *Reconciler
	pageSize int
}

// NewBackfillHandler creates a new BackfillHandler. pageSize is the
// default corpus page size when the command does not set one.
func NewBackfillHandler(rec *Reconciler, pageSize int) *BackfillHandler {
	if pageSize <= 0 {
		pageSize = 1000
	}
	return &BackfillHandler{rec: rec, pageSize: pageSize}
}

// Handle executes the backfill.
func (h *BackfillHandler) Handle(ctx context.Context, cmd BackfillCommand) (*BackfillResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("backfill: validation failed: %w", err)
	}

	start := time.Now()
	result := &BackfillResult{}
	log := h.rec.log.With(logger.Operation("backfill"))

	pageSize := cmd.PageSize
	if pageSize <= 0 {
		pageSize = h.pageSize
	}

	// Phase 1: scan the corpus and group it in memory.
	groups := make(map[string][]*run.Run)
	keys := make(map[string]run.GroupKey)
	touchedOwners := make(map[string]bool)
	touchedNames := make(map[string]string)

	cursor := ""
	for {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		page, err := h.rec.runs.ListVerified(ctx,
			run.DefaultListOptions().WithLimit(pageSize).WithAfterID(cursor))
		if err != nil {
			return result, shared.WrapError("board", "Backfill", shared.ErrRecomputeFailed,
				"paging verified runs", err)
		}
		if len(page) == 0 {
			break
		}

		for _, r := range page {
			result.RunsScanned++
			key := r.GroupKey()
			if err := key.Validate(); err != nil {
				result.Errors = append(result.Errors, shared.WrapError("board", "Backfill",
					shared.ErrValidation, "run "+r.ID+" has malformed group identity", err))
				continue
			}
			keyStr := key.String()
			groups[keyStr] = append(groups[keyStr], r)
			keys[keyStr] = key

			if r.Owner.IsReal() {
				touchedOwners[r.Owner.ID] = true
			}
			for _, rawName := range []string{r.OwnerDisplayName, r.CoOwnerDisplayName} {
				if name, err := shared.NewDisplayName(rawName); err == nil {
					touchedNames[name.Normalized()] = name.String()
				}
			}
		}
		cursor = page[len(page)-1].ID
		if len(page) < pageSize {
			break
		}
	}

	// Phase 2: rank every group and persist the diffs.
	for keyStr, pool := range groups {
		state, err := h.rec.calc.ComputePool(ctx, keys[keyStr], pool)
		if err != nil {
			result.Errors = append(result.Errors, err)
			continue
		}
		updates := state.Diff()
		if len(updates) == 0 {
			result.GroupsProcessed++
			continue
		}
		batchResult := h.rec.batch.ApplyUpdates(ctx, shared.CollectionRuns, updates)
		result.RunsUpdated += batchResult.Committed
		result.Errors = append(result.Errors, batchResult.Errors...)
		result.GroupsProcessed++
		if batchResult.Committed > 0 {
			h.rec.publish(shared.NewRankChangedEvent(keyStr, batchResult.Committed))
		}
	}

	// Phase 3: rebuild totals for every account the corpus attributes to.
	// Linked owners are known directly; name-only attributions go through
	// the resolver, deduplicated by account.
	for name := range touchedNames {
		account, err := h.rec.resolver.ResolveName(ctx, shared.DisplayName(touchedNames[name]))
		if err != nil || account == nil {
			continue
		}
		touchedOwners[account.ID] = true
	}
	for accountID := range touchedOwners {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if _, err := h.rec.RecomputeTotals(ctx, accountID, nil); err != nil {
			result.Errors = append(result.Errors, err)
			continue
		}
		result.PlayersRecounted++
	}

	result.Duration = time.Since(start)
	log.Info("backfill completed",
		logger.Int("runs_scanned", result.RunsScanned),
		logger.Int("groups_processed", result.GroupsProcessed),
		logger.Int("runs_updated", result.RunsUpdated),
		logger.Int("players_recounted", result.PlayersRecounted),
		logger.Int("errors", len(result.Errors)),
		logger.Latency(result.Duration),
	)

	h.rec.publish(shared.NewBackfillCompletedEvent(
		uuid.New().String(),
		result.GroupsProcessed,
		result.RunsUpdated,
		result.PlayersRecounted,
		len(result.Errors),
		result.Duration,
	))
	return result, nil
}
