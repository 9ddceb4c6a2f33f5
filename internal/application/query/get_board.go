// Package query contains read operations following CQRS pattern.
// Queries never modify state - they only read and return data.
// Each query is a self-contained use case with its own request/response types.
package query

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/runhub/run-community-hub/internal/domain/board"
	"github.com/runhub/run-community-hub/internal/domain/run"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET BOARD QUERY
// Returns one comparison group's leaderboard, ordered by ascending time.
// Results are cached per group key; the rank-changed event handler drops
// the cache entry whenever a reconciliation rewrites the group.
// ══════════════════════════════════════════════════════════════════════════════

// BoardCache caches rendered board results per group key.
type BoardCache interface {
	GetBoard(ctx context.Context, key string) (*GetBoardResult, bool)
	SetBoard(ctx context.Context, key string, result *GetBoardResult, ttl time.Duration)
	InvalidateBoard(ctx context.Context, key string)
}

// GetBoardQuery contains the parameters for a board read.
type GetBoardQuery struct {
	// BoardKind, CategoryRef, PlatformRef, LevelRef, Mode identify the
	// comparison group.
	BoardKind   string
	CategoryRef string
	PlatformRef string
	LevelRef    string
	Mode        string

	// Limit caps the returned entries (default 20, max 100).
	Limit int

	// IncludeObsolete adds retired runs below the ranked entries.
	IncludeObsolete bool

	// BypassCache forces a fresh read.
	BypassCache bool
}

// Validate validates and normalizes the query parameters.
func (q *GetBoardQuery) Validate() error {
	if q.Limit < 0 {
		return errors.New("limit cannot be negative")
	}
	if q.Limit == 0 {
		q.Limit = 20
	}
	if q.Limit > 100 {
		q.Limit = 100
	}
	if q.BoardKind == "" {
		q.BoardKind = string(run.BoardRegular)
	}
	if q.Mode == "" {
		q.Mode = string(run.ModeSolo)
	}
	return nil
}

// groupKey builds the domain key from the query parameters.
func (q *GetBoardQuery) groupKey() run.GroupKey {
	return run.GroupKey{
		BoardKind:   run.BoardKind(q.BoardKind),
		LevelRef:    q.LevelRef,
		CategoryRef: q.CategoryRef,
		PlatformRef: q.PlatformRef,
		Mode:        run.Mode(q.Mode),
	}
}

// BoardEntryDTO is one row of a rendered board.
type BoardEntryDTO struct {
	// Position is the 1-based place in the group (0 for obsolete rows).
	Position int `json:"position"`

	// RunID identifies the run.
	RunID string `json:"run_id"`

	// PlayerName is the attributed display name.
	PlayerName string `json:"player_name"`

	// PartnerName is the co-op secondary name, empty for solo runs.
	PartnerName string `json:"partner_name,omitempty"`

	// Time is the canonical clock string.
	Time string `json:"time"`

	// Points is the stored derived points value.
	Points float64 `json:"points"`

	// Obsolete marks retired rows.
	Obsolete bool `json:"obsolete,omitempty"`

	// SubmittedDate is when the run was submitted.
	SubmittedDate time.Time `json:"submitted_date"`
}

// GetBoardResult contains a rendered board.
type GetBoardResult struct {
	GroupKey    string          `json:"group_key"`
	Entries     []BoardEntryDTO `json:"entries"`
	TotalRuns   int             `json:"total_runs"`
	FromCache   bool            `json:"-"`
	GeneratedAt time.Time       `json:"generated_at"`
}

// GetBoardHandler handles the GetBoardQuery.
type GetBoardHandler struct {
	runs     run.Repository
	cache    BoardCache
	cacheTTL time.Duration
}

// NewGetBoardHandler creates a new GetBoardHandler. cache may be nil.
func NewGetBoardHandler(runs run.Repository, cache BoardCache, cacheTTL time.Duration) *GetBoardHandler {
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	return &GetBoardHandler{runs: runs, cache: cache, cacheTTL: cacheTTL}
}

// Handle executes the board query.
func (h *GetBoardHandler) Handle(ctx context.Context, q GetBoardQuery) (*GetBoardResult, error) {
	if err := q.Validate(); err != nil {
		return nil, fmt.Errorf("get_board: %w", err)
	}
	key := q.groupKey()
	if err := key.Validate(); err != nil {
		return nil, fmt.Errorf("get_board: %w", err)
	}
	keyStr := key.String()

	if h.cache != nil && !q.BypassCache {
		if cached, ok := h.cache.GetBoard(ctx, keyStr); ok {
			cached.FromCache = true
			return cached, nil
		}
	}

	pool, err := h.runs.ListGroup(ctx, key, run.DefaultListOptions())
	if err != nil {
		return nil, fmt.Errorf("get_board: loading group: %w", err)
	}

	standings := board.Rank(key, pool, nil)
	result := &GetBoardResult{
		GroupKey:    keyStr,
		TotalRuns:   len(pool),
		GeneratedAt: time.Now(),
	}

	for _, rr := range standings.Ranked {
		if len(result.Entries) >= q.Limit {
			break
		}
		result.Entries = append(result.Entries, entryFromRun(rr.Run, rr.Position))
	}
	if q.IncludeObsolete {
		for _, r := range pool {
			if len(result.Entries) >= q.Limit {
				break
			}
			if r.Obsolete && r.Verified {
				result.Entries = append(result.Entries, entryFromRun(r, 0))
			}
		}
	}

	if h.cache != nil {
		h.cache.SetBoard(ctx, keyStr, result, h.cacheTTL)
	}
	return result, nil
}

func entryFromRun(r *run.Run, position int) BoardEntryDTO {
	return BoardEntryDTO{
		Position:      position,
		RunID:         r.ID,
		PlayerName:    r.OwnerDisplayName,
		PartnerName:   r.CoOwnerDisplayName,
		Time:          r.Time,
		Points:        r.Points,
		Obsolete:      r.Obsolete,
		SubmittedDate: r.SubmittedDate,
	}
}
