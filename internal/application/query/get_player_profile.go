package query

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/runhub/run-community-hub/internal/domain/player"
	"github.com/runhub/run-community-hub/internal/domain/run"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET PLAYER PROFILE QUERY
// Returns one player's account, cached totals, and attributed runs. The
// totals come straight from the cached aggregates; this query never
// recomputes, it only reads what the reconciliation paths maintain.
// ══════════════════════════════════════════════════════════════════════════════

// GetPlayerProfileQuery contains the parameters for a profile read.
type GetPlayerProfileQuery struct {
	// AccountID is the player to load.
	AccountID string

	// RunLimit caps the attributed runs returned (default 50).
	RunLimit int
}

// Validate validates and normalizes the query.
func (q *GetPlayerProfileQuery) Validate() error {
	if q.AccountID == "" {
		return errors.New("account_id is required")
	}
	if q.RunLimit < 0 {
		return errors.New("run_limit cannot be negative")
	}
	if q.RunLimit == 0 {
		q.RunLimit = 50
	}
	return nil
}

// ProfileRunDTO is one attributed run on a profile.
type ProfileRunDTO struct {
	RunID       string    `json:"run_id"`
	GroupKey    string    `json:"group_key"`
	Time        string    `json:"time"`
	Rank        int       `json:"rank,omitempty"`
	Points      float64   `json:"points"`
	Obsolete    bool      `json:"obsolete,omitempty"`
	CoOp        bool      `json:"co_op,omitempty"`
	PartnerName string    `json:"partner_name,omitempty"`
	Submitted   time.Time `json:"submitted"`
}

// GetPlayerProfileResult contains a rendered profile.
type GetPlayerProfileResult struct {
	AccountID    string          `json:"account_id"`
	DisplayName  string          `json:"display_name"`
	TotalPoints  float64         `json:"total_points"`
	TotalRuns    int             `json:"total_runs"`
	PodiumFinish int             `json:"podium_finishes"`
	Runs         []ProfileRunDTO `json:"runs"`
	GeneratedAt  time.Time       `json:"generated_at"`
}

// GetPlayerProfileHandler handles the GetPlayerProfileQuery.
type GetPlayerProfileHandler struct {
	players player.Repository
	runs    run.Repository
}

// NewGetPlayerProfileHandler creates a new GetPlayerProfileHandler.
func NewGetPlayerProfileHandler(players player.Repository, runs run.Repository) *GetPlayerProfileHandler {
	return &GetPlayerProfileHandler{players: players, runs: runs}
}

// Handle executes the profile query.
func (h *GetPlayerProfileHandler) Handle(ctx context.Context, q GetPlayerProfileQuery) (*GetPlayerProfileResult, error) {
	if err := q.Validate(); err != nil {
		return nil, fmt.Errorf("get_player_profile: %w", err)
	}

	account, err := h.players.GetByID(ctx, q.AccountID)
	if err != nil {
		return nil, fmt.Errorf("get_player_profile: loading player: %w", err)
	}

	owned, err := h.runs.ListByOwner(ctx, account.ID, run.DefaultListOptions())
	if err != nil {
		return nil, fmt.Errorf("get_player_profile: listing owned runs: %w", err)
	}
	named, err := h.runs.ListByDisplayName(ctx, account.DisplayName.Normalized(), run.DefaultListOptions())
	if err != nil {
		return nil, fmt.Errorf("get_player_profile: listing name matches: %w", err)
	}

	byID := make(map[string]*run.Run, len(owned)+len(named))
	for _, r := range append(owned, named...) {
		if r.AttributedTo(account.ID, account.DisplayName) {
			byID[r.ID] = r
		}
	}

	attributed := make([]*run.Run, 0, len(byID))
	for _, r := range byID {
		attributed = append(attributed, r)
	}
	sort.Slice(attributed, func(i, j int) bool {
		return attributed[i].SubmittedDate.After(attributed[j].SubmittedDate)
	})

	result := &GetPlayerProfileResult{
		AccountID:   account.ID,
		DisplayName: account.DisplayName.String(),
		TotalPoints: account.CachedTotalPoints,
		TotalRuns:   account.CachedTotalRuns,
		GeneratedAt: time.Now(),
	}
	for _, r := range attributed {
		if r.Rank > 0 {
			result.PodiumFinish++
		}
		if len(result.Runs) >= q.RunLimit {
			continue
		}
		result.Runs = append(result.Runs, ProfileRunDTO{
			RunID:       r.ID,
			GroupKey:    r.GroupKey().String(),
			Time:        r.Time,
			Rank:        r.Rank,
			Points:      r.Points,
			Obsolete:    r.Obsolete,
			CoOp:        r.IsCoOp(),
			PartnerName: r.CoOwnerDisplayName,
			Submitted:   r.SubmittedDate,
		})
	}
	return result, nil
}
