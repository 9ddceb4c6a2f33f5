// Package postgres implements the PostgreSQL persistence layer for Run Community Hub.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/runhub/run-community-hub/internal/domain/player"
	"github.com/runhub/run-community-hub/internal/domain/shared"

	"github.com/jackc/pgx/v5"
)

// ══════════════════════════════════════════════════════════════════════════════
// PLAYER REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// PlayerRepository implements player.Repository for PostgreSQL.
type PlayerRepository struct {
	conn *Connection
}

// NewPlayerRepository creates a new PlayerRepository.
func NewPlayerRepository(conn *Connection) *PlayerRepository {
	return &PlayerRepository{conn: conn}
}

const playerColumns = `
	id, display_name, cached_total_points, cached_total_runs,
	last_recomputed_at, created_at, updated_at
`

// Create stores a new player.
func (r *PlayerRepository) Create(ctx context.Context, p *player.Player) error {
	query := `
		INSERT INTO players (
			id, display_name, cached_total_points, cached_total_runs,
			last_recomputed_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.conn.Exec(ctx, query,
		p.ID,
		p.DisplayName.String(),
		p.CachedTotalPoints,
		p.CachedTotalRuns,
		nullTime(p.LastRecomputedAt),
		p.CreatedAt,
		p.UpdatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.ErrAlreadyExists
		}
		return fmt.Errorf("failed to create player: %w", err)
	}

	return nil
}

// GetByID returns a player by account id.
func (r *PlayerRepository) GetByID(ctx context.Context, id string) (*player.Player, error) {
	query := `SELECT ` + playerColumns + ` FROM players WHERE id = $1`

	row := r.conn.QueryRow(ctx, query, id)
	return r.scanPlayer(row)
}

// GetByDisplayName returns the player whose normalized display name matches.
func (r *PlayerRepository) GetByDisplayName(ctx context.Context, name shared.DisplayName) (*player.Player, error) {
	query := `SELECT ` + playerColumns + ` FROM players WHERE LOWER(display_name) = $1`

	row := r.conn.QueryRow(ctx, query, name.Normalized())
	return r.scanPlayer(row)
}

// Update replaces a stored player.
func (r *PlayerRepository) Update(ctx context.Context, p *player.Player) error {
	query := `
		UPDATE players SET
			display_name = $1,
			cached_total_points = $2,
			cached_total_runs = $3,
			last_recomputed_at = $4,
			updated_at = $5
		WHERE id = $6
	`

	result, err := r.conn.Exec(ctx, query,
		p.DisplayName.String(),
		p.CachedTotalPoints,
		p.CachedTotalRuns,
		nullTime(p.LastRecomputedAt),
		time.Now().UTC(),
		p.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update player: %w", err)
	}

	if result.RowsAffected() == 0 {
		return shared.ErrNotFound
	}

	return nil
}

// UpdateTotals writes only the cached aggregates. Row-level security can
// reject the write with insufficient_privilege; that is surfaced as
// shared.ErrPermissionDenied so the caller can fall back to MergeTotals.
func (r *PlayerRepository) UpdateTotals(ctx context.Context, id string, totals player.Totals) error {
	query := `
		UPDATE players SET
			cached_total_points = $1,
			cached_total_runs = $2,
			last_recomputed_at = NOW(),
			updated_at = NOW()
		WHERE id = $3
	`

	result, err := r.conn.Exec(ctx, query, totals.Points, totals.Runs, id)
	if err != nil {
		if IsPermissionDenied(err) {
			return fmt.Errorf("totals write rejected: %w", shared.ErrPermissionDenied)
		}
		return fmt.Errorf("failed to update totals: %w", err)
	}

	if result.RowsAffected() == 0 {
		return shared.ErrNotFound
	}

	return nil
}

// MergeTotals upserts the cached aggregates. It is the retry path after a
// permission-denied UpdateTotals: the upsert goes through a different
// policy and creates the row when it is missing.
func (r *PlayerRepository) MergeTotals(ctx context.Context, id string, totals player.Totals) error {
	query := `
		INSERT INTO players (id, display_name, cached_total_points, cached_total_runs, last_recomputed_at)
		VALUES ($1, $1, $2, $3, NOW())
		ON CONFLICT (id) DO UPDATE SET
			cached_total_points = EXCLUDED.cached_total_points,
			cached_total_runs = EXCLUDED.cached_total_runs,
			last_recomputed_at = EXCLUDED.last_recomputed_at,
			updated_at = NOW()
	`

	_, err := r.conn.Exec(ctx, query, id, totals.Points, totals.Runs)
	if err != nil {
		return fmt.Errorf("failed to merge totals: %w", err)
	}

	return nil
}

// GetByIDs returns the players matching the given account ids. Missing ids
// are skipped.
func (r *PlayerRepository) GetByIDs(ctx context.Context, ids []string) ([]*player.Player, error) {
	if len(ids) == 0 {
		return []*player.Player{}, nil
	}

	placeholders := make([]string, len(ids))
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}

	query := fmt.Sprintf(`SELECT `+playerColumns+` FROM players WHERE id IN (%s)`,
		strings.Join(placeholders, ", "))

	rows, err := r.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query players by ids: %w", err)
	}
	defer rows.Close()

	players := make([]*player.Player, 0, len(ids))
	for rows.Next() {
		p, err := r.scanPlayerValues(rows)
		if err != nil {
			return nil, err
		}
		players = append(players, p)
	}

	return players, rows.Err()
}

// Count returns the number of registered players.
func (r *PlayerRepository) Count(ctx context.Context) (int, error) {
	var count int
	err := r.conn.QueryRow(ctx, "SELECT COUNT(*) FROM players").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count players: %w", err)
	}
	return count, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────────────────────────────────────

func (r *PlayerRepository) scanPlayer(row pgx.Row) (*player.Player, error) {
	p, err := scanPlayerRow(row.Scan)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan player: %w", err)
	}
	return p, nil
}

func (r *PlayerRepository) scanPlayerValues(rows pgx.Rows) (*player.Player, error) {
	p, err := scanPlayerRow(rows.Scan)
	if err != nil {
		return nil, fmt.Errorf("failed to scan player row: %w", err)
	}
	return p, nil
}

func scanPlayerRow(scan func(dest ...interface{}) error) (*player.Player, error) {
	var (
		p            player.Player
		name         string
		recomputedAt sql.NullTime
	)

	err := scan(
		&p.ID,
		&name,
		&p.CachedTotalPoints,
		&p.CachedTotalRuns,
		&recomputedAt,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	p.DisplayName = shared.DisplayName(name)
	if recomputedAt.Valid {
		p.LastRecomputedAt = recomputedAt.Time
	}

	return &p, nil
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}
