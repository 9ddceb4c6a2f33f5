package command

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/runhub/run-community-hub/internal/domain/run"
	"github.com/runhub/run-community-hub/internal/domain/shared"
	"github.com/runhub/run-community-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// IMPORT RUNS COMMAND
// Ingestion from the external results provider. Imported runs arrive
// attributed by display name only; they enter under the imported ownership
// sentinel until someone claims them. Already-known runs are skipped, so
// the import is safe to repeat.
// ══════════════════════════════════════════════════════════════════════════════

// ResultsProvider is the port to the external results pipeline. The
// implementation (HTTP client, DTO mapping) lives in infrastructure.
type ResultsProvider interface {
	// FetchRuns returns runs published since the given time, already
	// mapped into domain form.
	FetchRuns(ctx context.Context, since time.Time, limit int) ([]*run.Run, error)
}

// ImportRunsCommand pulls new runs from the results provider.
type ImportRunsCommand struct {
	// Since bounds the fetch window; zero means the provider default.
	Since time.Time

	// Limit bounds how many runs one import may fetch; zero means the
	// handler default.
	Limit int

	// CorrelationID for tracing.
	CorrelationID string
}

// Validate validates the command.
func (c ImportRunsCommand) Validate() error {
	if c.Limit < 0 {
		return errors.New("import_runs: limit cannot be negative")
	}
	return nil
}

// ImportRunsResult summarizes the import.
type ImportRunsResult struct {
	Fetched        int
	Imported       int
	Skipped        int
	GroupsReranked int
	Errors         []error
}

// ImportRunsHandler handles the ImportRunsCommand.
type ImportRunsHandler struct {
	rec      *Reconciler
	provider ResultsProvider
	limit    int
}

// NewImportRunsHandler creates a new ImportRunsHandler.
func NewImportRunsHandler(rec *Reconciler, provider ResultsProvider, limit int) *ImportRunsHandler {
	if limit <= 0 {
		limit = 200
	}
	return &ImportRunsHandler{rec: rec, provider: provider, limit: limit}
}

// Handle executes the import.
func (h *ImportRunsHandler) Handle(ctx context.Context, cmd ImportRunsCommand) (*ImportRunsResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("import_runs: validation failed: %w", err)
	}

	limit := cmd.Limit
	if limit <= 0 {
		limit = h.limit
	}

	candidates, err := h.provider.FetchRuns(ctx, cmd.Since, limit)
	if err != nil {
		return nil, fmt.Errorf("import_runs: fetching from provider: %w", err)
	}

	result := &ImportRunsResult{Fetched: len(candidates)}
	touchedGroups := make(map[string]run.GroupKey)

	for _, candidate := range candidates {
		if _, err := h.rec.runs.GetByID(ctx, candidate.ID); err == nil {
			result.Skipped++
			continue
		} else if !shared.IsNotFound(err) {
			result.Errors = append(result.Errors, err)
			continue
		}

		if candidate.Owner.Kind == run.OwnerNone {
			candidate.Owner = run.ImportedOwner()
		}
		if err := candidate.Normalize(); err != nil {
			result.Errors = append(result.Errors, err)
			continue
		}
		if err := candidate.Validate(); err != nil {
			result.Errors = append(result.Errors, err)
			continue
		}
		if err := h.rec.runs.Insert(ctx, candidate); err != nil {
			result.Errors = append(result.Errors, err)
			continue
		}

		result.Imported++
		if candidate.Verified {
			touchedGroups[candidate.GroupKey().String()] = candidate.GroupKey()
		}
	}

	// One re-rank per touched group, after all inserts landed.
	for _, key := range touchedGroups {
		if _, _, err := h.rec.RerankGroup(ctx, key, nil, ""); err != nil {
			result.Errors = append(result.Errors, err)
			continue
		}
		result.GroupsReranked++
	}

	h.rec.log.Info("import completed",
		logger.Int("fetched", result.Fetched),
		logger.Int("imported", result.Imported),
		logger.Int("skipped", result.Skipped),
		logger.Int("groups_reranked", result.GroupsReranked),
		logger.Int("errors", len(result.Errors)),
	)
	h.rec.publish(shared.NewImportCompletedEvent(result.Fetched, result.Imported, result.Skipped, len(result.Errors)))
	return result, nil
}
