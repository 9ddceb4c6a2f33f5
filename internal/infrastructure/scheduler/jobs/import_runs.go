package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/runhub/run-community-hub/internal/application/command"

	"github.com/google/uuid"
)

// ══════════════════════════════════════════════════════════════════════════════
// IMPORT RUNS JOB
// ══════════════════════════════════════════════════════════════════════════════

// ImportRunsJob periodically pulls new candidate runs from the results
// pipeline. The fetch window starts where the last successful import ended,
// widened by an overlap so pipeline publishing lag cannot drop runs; the
// handler skips already-known ids, so overlap is harmless.
type ImportRunsJob struct {
	handler *command.ImportRunsHandler
	logger  *slog.Logger
	config  ImportRunsJobConfig

	mu        sync.Mutex
	lastSince time.Time
}

// ImportRunsJobConfig contains configuration for the import job.
type ImportRunsJobConfig struct {
	// Limit bounds how many runs one pass may fetch.
	Limit int

	// Overlap widens the fetch window backwards from the last import.
	Overlap time.Duration

	// InitialWindow is the fetch window for the very first import, when
	// there is no previous watermark.
	InitialWindow time.Duration

	// Timeout is the maximum duration for one pass.
	Timeout time.Duration
}

// DefaultImportRunsJobConfig returns sensible defaults.
func DefaultImportRunsJobConfig() ImportRunsJobConfig {
	return ImportRunsJobConfig{
		Limit:         200,
		Overlap:       10 * time.Minute,
		InitialWindow: 24 * time.Hour,
		Timeout:       5 * time.Minute,
	}
}

// NewImportRunsJob creates a new import job.
func NewImportRunsJob(
	handler *command.ImportRunsHandler,
	logger *slog.Logger,
	config ImportRunsJobConfig,
) *ImportRunsJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &ImportRunsJob{
		handler: handler,
		logger:  logger,
		config:  config,
	}
}

// Name returns the job name.
func (j *ImportRunsJob) Name() string {
	return "import_runs"
}

// Description returns a human-readable description.
func (j *ImportRunsJob) Description() string {
	return "Pulls new candidate runs from the results pipeline into the corpus"
}

// Run executes one import pass.
func (j *ImportRunsJob) Run(ctx context.Context) error {
	if j.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.config.Timeout)
		defer cancel()
	}

	started := time.Now()
	since := j.window(started)

	j.logger.Info("starting import_runs job", "since", since)

	result, err := j.handler.Handle(ctx, command.ImportRunsCommand{
		Since:         since,
		Limit:         j.config.Limit,
		CorrelationID: uuid.New().String(),
	})
	if err != nil {
		return fmt.Errorf("import failed: %w", err)
	}

	// Advance the watermark only after a successful pass.
	j.mu.Lock()
	j.lastSince = started
	j.mu.Unlock()

	j.logger.Info("import_runs job completed",
		"fetched", result.Fetched,
		"imported", result.Imported,
		"skipped", result.Skipped,
		"groups_reranked", result.GroupsReranked,
		"errors", len(result.Errors),
	)

	return nil
}

func (j *ImportRunsJob) window(now time.Time) time.Time {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.lastSince.IsZero() {
		return now.Add(-j.config.InitialWindow)
	}
	return j.lastSince.Add(-j.config.Overlap)
}
