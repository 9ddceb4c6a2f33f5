package command

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/runhub/run-community-hub/internal/domain/run"
	"github.com/runhub/run-community-hub/internal/domain/shared"
)

type stubProvider struct {
	runs []*run.Run
	err  error
}

func (s *stubProvider) FetchRuns(_ context.Context, _ time.Time, limit int) ([]*run.Run, error) {
	if s.err != nil {
		return nil, s.err
	}
	if len(s.runs) > limit {
		return s.runs[:limit], nil
	}
	return s.runs, nil
}

func TestImportRunsSkipsKnownAndInsertsNew(t *testing.T) {
	known := testRun("run-1", "00:08:00", "imported", "Speedy")
	env := newTestEnv([]*run.Run{known})

	fresh := testRun("run-2", "00:07:00", "", "Newcomer")
	provider := &stubProvider{runs: []*run.Run{known.Clone(), fresh}}
	handler := NewImportRunsHandler(env.rec, provider, 0)

	result, err := handler.Handle(context.Background(), ImportRunsCommand{})

	assert.NoError(t, err)
	assert.Equal(t, 2, result.Fetched)
	assert.Equal(t, 1, result.Imported)
	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, 1, result.GroupsReranked)

	stored := env.runs.runs["run-2"]
	assert.Equal(t, run.OwnerImported, stored.Owner.Kind, "unattributed imports get the sentinel")
	assert.Equal(t, 1, stored.Rank, "verified import ranks immediately")
	assert.Len(t, env.bus.byType(shared.EventImportCompleted), 1)
}

func TestImportRunsRepeatable(t *testing.T) {
	fresh := testRun("run-1", "00:08:00", "", "Speedy")
	provider := &stubProvider{runs: []*run.Run{fresh}}
	env := newTestEnv(nil)
	handler := NewImportRunsHandler(env.rec, provider, 0)

	first, err := handler.Handle(context.Background(), ImportRunsCommand{})
	assert.NoError(t, err)
	assert.Equal(t, 1, first.Imported)

	second, err := handler.Handle(context.Background(), ImportRunsCommand{})
	assert.NoError(t, err)
	assert.Zero(t, second.Imported, "re-running the import must not duplicate runs")
	assert.Equal(t, 1, second.Skipped)
}

func TestImportRunsRejectsMalformed(t *testing.T) {
	broken := testRun("run-1", "not-a-time", "", "Speedy")
	provider := &stubProvider{runs: []*run.Run{broken}}
	env := newTestEnv(nil)
	handler := NewImportRunsHandler(env.rec, provider, 0)

	result, err := handler.Handle(context.Background(), ImportRunsCommand{})

	assert.NoError(t, err)
	assert.Zero(t, result.Imported)
	assert.Len(t, result.Errors, 1)
	assert.NotContains(t, env.runs.runs, "run-1")
}

func TestImportRunsProviderDown(t *testing.T) {
	provider := &stubProvider{err: errors.New("provider unreachable")}
	env := newTestEnv(nil)
	handler := NewImportRunsHandler(env.rec, provider, 0)

	_, err := handler.Handle(context.Background(), ImportRunsCommand{})
	assert.Error(t, err)
}
