// Package jobs contains implementations of scheduled jobs for Run Community Hub.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/runhub/run-community-hub/internal/application/command"

	"github.com/google/uuid"
)

// ══════════════════════════════════════════════════════════════════════════════
// BACKFILL JOB
// ══════════════════════════════════════════════════════════════════════════════

// BoardFlusher drops every cached board. Backfill can touch any group, so
// after a pass the whole board cache is suspect.
type BoardFlusher interface {
	InvalidateAll(ctx context.Context)
}

// BackfillJob walks the whole verified corpus, repairs drifted ranks and
// points, and recounts every touched player. It is the periodic safety net
// under the per-operation reconciliation: whatever drifts between passes
// (missed events, partial batch failures, manual data fixes) gets squared
// away here.
type BackfillJob struct {
	handler *command.BackfillHandler
	boards  BoardFlusher
	logger  *slog.Logger
	config  BackfillJobConfig

	lastStats atomic.Value // *command.BackfillResult
}

// BackfillJobConfig contains configuration for the backfill job.
type BackfillJobConfig struct {
	// PageSize bounds each corpus page.
	PageSize int

	// Timeout is the maximum duration for one full pass.
	Timeout time.Duration
}

// DefaultBackfillJobConfig returns sensible defaults.
func DefaultBackfillJobConfig() BackfillJobConfig {
	return BackfillJobConfig{
		PageSize: 1000,
		Timeout:  30 * time.Minute,
	}
}

// NewBackfillJob creates a new backfill job. boards may be nil.
func NewBackfillJob(
	handler *command.BackfillHandler,
	boards BoardFlusher,
	logger *slog.Logger,
	config BackfillJobConfig,
) *BackfillJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &BackfillJob{
		handler: handler,
		boards:  boards,
		logger:  logger,
		config:  config,
	}
}

// Name returns the job name.
func (j *BackfillJob) Name() string {
	return "backfill_all"
}

// Description returns a human-readable description.
func (j *BackfillJob) Description() string {
	return "Recomputes ranks, points, and player totals over the whole verified corpus"
}

// Run executes one backfill pass.
func (j *BackfillJob) Run(ctx context.Context) error {
	if j.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.config.Timeout)
		defer cancel()
	}

	j.logger.Info("starting backfill_all job")

	result, err := j.handler.Handle(ctx, command.BackfillCommand{
		PageSize:      j.config.PageSize,
		CorrelationID: uuid.New().String(),
	})
	if err != nil {
		return fmt.Errorf("backfill failed: %w", err)
	}

	j.lastStats.Store(result)

	if j.boards != nil && result.RunsUpdated > 0 {
		j.boards.InvalidateAll(ctx)
	}

	j.logger.Info("backfill_all job completed",
		"runs_scanned", result.RunsScanned,
		"groups_processed", result.GroupsProcessed,
		"runs_updated", result.RunsUpdated,
		"players_recounted", result.PlayersRecounted,
		"errors", len(result.Errors),
		"duration", result.Duration,
	)

	// Partial failures are the job's normal weather; a pass only fails
	// when nothing could be done at all.
	if !result.OK() && result.RunsScanned == 0 {
		return fmt.Errorf("backfill made no progress: %d errors", len(result.Errors))
	}

	return nil
}

// LastStats returns the stats from the most recent pass, or nil.
func (j *BackfillJob) LastStats() *command.BackfillResult {
	stats, _ := j.lastStats.Load().(*command.BackfillResult)
	return stats
}
