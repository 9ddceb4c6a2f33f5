// Package postgres implements the PostgreSQL persistence layer for Run Community Hub.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/runhub/run-community-hub/internal/domain/run"
	"github.com/runhub/run-community-hub/internal/domain/shared"

	"github.com/jackc/pgx/v5"
)

// ══════════════════════════════════════════════════════════════════════════════
// RUN REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// DefaultFetchLimit bounds every repository read that doesn't ask for a
// specific limit. Groups larger than this are ranked over a truncated pool.
const DefaultFetchLimit = 1000

// RunRepository implements run.Repository for PostgreSQL.
type RunRepository struct {
	conn         *Connection
	defaultLimit int
}

// NewRunRepository creates a new RunRepository.
func NewRunRepository(conn *Connection) *RunRepository {
	return &RunRepository{conn: conn, defaultLimit: DefaultFetchLimit}
}

// NewRunRepositoryWithLimit creates a RunRepository with a custom default
// fetch limit.
func NewRunRepositoryWithLimit(conn *Connection, limit int) *RunRepository {
	if limit <= 0 {
		limit = DefaultFetchLimit
	}
	return &RunRepository{conn: conn, defaultLimit: limit}
}

const runColumns = `
	id, owner_ref, owner_display_name, co_owner_display_name,
	board_kind, category_ref, platform_ref, level_ref, mode,
	category_name, platform_name, run_time, submitted_date,
	verified, obsolete, rank, points
`

// ─────────────────────────────────────────────────────────────────────────────
// Reads
// ─────────────────────────────────────────────────────────────────────────────

// GetByID returns a run by id.
func (r *RunRepository) GetByID(ctx context.Context, id string) (*run.Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE id = $1`

	row := r.conn.QueryRow(ctx, query, id)
	return r.scanRun(row)
}

// ListGroup returns verified runs matching the comparison-group key.
// Obsolete runs are included; ranking filters them out downstream.
func (r *RunRepository) ListGroup(ctx context.Context, key run.GroupKey, opts run.ListOptions) ([]*run.Run, error) {
	query := `
		SELECT ` + runColumns + `
		FROM runs
		WHERE verified = TRUE
		  AND board_kind = $1
		  AND category_ref = $2
		  AND platform_ref = $3
		  AND level_ref = $4
		  AND mode = $5
		ORDER BY id
		LIMIT $6
	`

	rows, err := r.conn.Query(ctx, query,
		string(key.BoardKind),
		key.CategoryRef,
		key.PlatformRef,
		key.LevelRef,
		string(key.Mode),
		r.limit(opts),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query group runs: %w", err)
	}
	defer rows.Close()

	return r.scanRuns(rows)
}

// ListByOwner returns verified runs whose primary slot is linked to the
// given account id.
func (r *RunRepository) ListByOwner(ctx context.Context, accountID string, opts run.ListOptions) ([]*run.Run, error) {
	query := `
		SELECT ` + runColumns + `
		FROM runs
		WHERE verified = TRUE AND owner_ref = $1
		ORDER BY id
		LIMIT $2
	`

	rows, err := r.conn.Query(ctx, query, run.RealOwner(accountID).Ref(), r.limit(opts))
	if err != nil {
		return nil, fmt.Errorf("failed to query runs by owner: %w", err)
	}
	defer rows.Close()

	return r.scanRuns(rows)
}

// ListByDisplayName returns runs whose primary or co-op secondary slot
// matches the normalized display name.
func (r *RunRepository) ListByDisplayName(ctx context.Context, normalizedName string, opts run.ListOptions) ([]*run.Run, error) {
	verifiedClause := "AND verified = TRUE"
	if opts.IncludeUnverified {
		verifiedClause = ""
	}

	query := fmt.Sprintf(`
		SELECT `+runColumns+`
		FROM runs
		WHERE (LOWER(owner_display_name) = $1 OR LOWER(co_owner_display_name) = $1)
		%s
		ORDER BY id
		LIMIT $2
	`, verifiedClause)

	rows, err := r.conn.Query(ctx, query, normalizedName, r.limit(opts))
	if err != nil {
		return nil, fmt.Errorf("failed to query runs by display name: %w", err)
	}
	defer rows.Close()

	return r.scanRuns(rows)
}

// ListVerified pages through the verified corpus ordered by id, resuming
// after opts.AfterID.
func (r *RunRepository) ListVerified(ctx context.Context, opts run.ListOptions) ([]*run.Run, error) {
	query := `
		SELECT ` + runColumns + `
		FROM runs
		WHERE verified = TRUE AND id > $1
		ORDER BY id
		LIMIT $2
	`

	rows, err := r.conn.Query(ctx, query, opts.AfterID, r.limit(opts))
	if err != nil {
		return nil, fmt.Errorf("failed to page verified runs: %w", err)
	}
	defer rows.Close()

	return r.scanRuns(rows)
}

// ─────────────────────────────────────────────────────────────────────────────
// Writes
// ─────────────────────────────────────────────────────────────────────────────

// Insert stores a new run.
func (r *RunRepository) Insert(ctx context.Context, rn *run.Run) error {
	query := `
		INSERT INTO runs (
			id, owner_ref, owner_display_name, co_owner_display_name,
			board_kind, category_ref, platform_ref, level_ref, mode,
			category_name, platform_name, run_time, submitted_date,
			verified, obsolete, rank, points
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`

	_, err := r.conn.Exec(ctx, query, r.insertArgs(rn)...)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.ErrAlreadyExists
		}
		return fmt.Errorf("failed to insert run: %w", err)
	}

	return nil
}

// Update replaces a stored run.
func (r *RunRepository) Update(ctx context.Context, rn *run.Run) error {
	query := `
		UPDATE runs SET
			owner_ref = $1,
			owner_display_name = $2,
			co_owner_display_name = $3,
			board_kind = $4,
			category_ref = $5,
			platform_ref = $6,
			level_ref = $7,
			mode = $8,
			category_name = $9,
			platform_name = $10,
			run_time = $11,
			submitted_date = $12,
			verified = $13,
			obsolete = $14,
			rank = $15,
			points = $16,
			updated_at = $17
		WHERE id = $18
	`

	args := r.insertArgs(rn)[1:] // same order minus the leading id
	args = append(args, time.Now().UTC(), rn.ID)

	result, err := r.conn.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}

	if result.RowsAffected() == 0 {
		return shared.ErrNotFound
	}

	return nil
}

// Delete removes a run.
func (r *RunRepository) Delete(ctx context.Context, id string) error {
	result, err := r.conn.Exec(ctx, "DELETE FROM runs WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}

	if result.RowsAffected() == 0 {
		return shared.ErrNotFound
	}

	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────────────────────────────────────

func (r *RunRepository) limit(opts run.ListOptions) int {
	if opts.Limit > 0 {
		return opts.Limit
	}
	return r.defaultLimit
}

func (r *RunRepository) insertArgs(rn *run.Run) []interface{} {
	var rank sql.NullInt32
	if rn.Rank > 0 {
		rank = sql.NullInt32{Int32: int32(rn.Rank), Valid: true}
	}

	return []interface{}{
		rn.ID,
		rn.Owner.Ref(),
		rn.OwnerDisplayName,
		rn.CoOwnerDisplayName,
		string(rn.BoardKind),
		rn.CategoryRef,
		rn.PlatformRef,
		rn.LevelRef,
		string(rn.Mode),
		rn.CategoryName,
		rn.PlatformName,
		rn.Time,
		rn.SubmittedDate,
		rn.Verified,
		rn.Obsolete,
		rank,
		rn.Points,
	}
}

// scanRun scans a single run from a row.
func (r *RunRepository) scanRun(row pgx.Row) (*run.Run, error) {
	var (
		rn       run.Run
		ownerRef string
		kind     string
		mode     string
		rank     sql.NullInt32
	)

	err := row.Scan(
		&rn.ID,
		&ownerRef,
		&rn.OwnerDisplayName,
		&rn.CoOwnerDisplayName,
		&kind,
		&rn.CategoryRef,
		&rn.PlatformRef,
		&rn.LevelRef,
		&mode,
		&rn.CategoryName,
		&rn.PlatformName,
		&rn.Time,
		&rn.SubmittedDate,
		&rn.Verified,
		&rn.Obsolete,
		&rank,
		&rn.Points,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}

	rn.Owner = run.ParseOwnerRef(ownerRef)
	rn.BoardKind = run.BoardKind(kind)
	rn.Mode = run.Mode(mode)
	if rank.Valid {
		rn.Rank = int(rank.Int32)
	}

	return &rn, nil
}

// scanRuns scans multiple runs from rows.
func (r *RunRepository) scanRuns(rows pgx.Rows) ([]*run.Run, error) {
	runs := make([]*run.Run, 0)

	for rows.Next() {
		var (
			rn       run.Run
			ownerRef string
			kind     string
			mode     string
			rank     sql.NullInt32
		)

		err := rows.Scan(
			&rn.ID,
			&ownerRef,
			&rn.OwnerDisplayName,
			&rn.CoOwnerDisplayName,
			&kind,
			&rn.CategoryRef,
			&rn.PlatformRef,
			&rn.LevelRef,
			&mode,
			&rn.CategoryName,
			&rn.PlatformName,
			&rn.Time,
			&rn.SubmittedDate,
			&rn.Verified,
			&rn.Obsolete,
			&rank,
			&rn.Points,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}

		rn.Owner = run.ParseOwnerRef(ownerRef)
		rn.BoardKind = run.BoardKind(kind)
		rn.Mode = run.Mode(mode)
		if rank.Valid {
			rn.Rank = int(rank.Int32)
		}

		runs = append(runs, &rn)
	}

	return runs, rows.Err()
}
