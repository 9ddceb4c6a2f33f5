// Package postgres implements the PostgreSQL persistence layer for Run Community Hub.
package postgres

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 001: CREATE RUNS
// ══════════════════════════════════════════════════════════════════════════════

const migration001Up = `
-- Migration: Create runs table
-- Version: 001

-- Canonical run corpus. One row per submitted run, verified or not.
CREATE TABLE IF NOT EXISTS runs (
    id VARCHAR(64) PRIMARY KEY,
    owner_ref VARCHAR(100) NOT NULL,
    owner_display_name VARCHAR(100) NOT NULL,
    co_owner_display_name VARCHAR(100) NOT NULL DEFAULT '',
    board_kind VARCHAR(30) NOT NULL DEFAULT 'regular',
    category_ref VARCHAR(64) NOT NULL DEFAULT '',
    platform_ref VARCHAR(64) NOT NULL DEFAULT '',
    level_ref VARCHAR(64) NOT NULL DEFAULT '',
    mode VARCHAR(10) NOT NULL DEFAULT 'solo',
    category_name VARCHAR(100) NOT NULL DEFAULT '',
    platform_name VARCHAR(100) NOT NULL DEFAULT '',
    run_time VARCHAR(20) NOT NULL,
    submitted_date TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    verified BOOLEAN NOT NULL DEFAULT FALSE,
    obsolete BOOLEAN NOT NULL DEFAULT FALSE,
    rank INTEGER,
    points DOUBLE PRECISION NOT NULL DEFAULT 0,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    -- Constraints for data integrity
    CONSTRAINT valid_board_kind CHECK (board_kind IN ('regular', 'individual-level', 'community-golds')),
    CONSTRAINT valid_mode CHECK (mode IN ('solo', 'co-op')),
    CONSTRAINT valid_rank CHECK (rank IS NULL OR rank >= 1)
);

-- Indexes for common queries
CREATE INDEX IF NOT EXISTS idx_runs_owner_ref ON runs(owner_ref);
CREATE INDEX IF NOT EXISTS idx_runs_owner_display_name ON runs(LOWER(owner_display_name));
CREATE INDEX IF NOT EXISTS idx_runs_co_owner_display_name ON runs(LOWER(co_owner_display_name)) WHERE co_owner_display_name != '';
CREATE INDEX IF NOT EXISTS idx_runs_verified ON runs(verified) WHERE verified = TRUE;
CREATE INDEX IF NOT EXISTS idx_runs_submitted_date ON runs(submitted_date DESC);

-- Composite index covering a comparison group scan
CREATE INDEX IF NOT EXISTS idx_runs_group ON runs(board_kind, category_ref, platform_ref, level_ref, mode) WHERE verified = TRUE;

-- Updated_at trigger function for automatic timestamp updates
CREATE OR REPLACE FUNCTION update_updated_at_column()
RETURNS TRIGGER AS $$
BEGIN
    NEW.updated_at = NOW();
    RETURN NEW;
END;
$$ language 'plpgsql';

-- Apply trigger to runs table
DROP TRIGGER IF EXISTS update_runs_updated_at ON runs;
CREATE TRIGGER update_runs_updated_at
    BEFORE UPDATE ON runs
    FOR EACH ROW
    EXECUTE FUNCTION update_updated_at_column();
`

const migration001Down = `
DROP TRIGGER IF EXISTS update_runs_updated_at ON runs;
DROP FUNCTION IF EXISTS update_updated_at_column();
DROP TABLE IF EXISTS runs;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 002: CREATE PLAYERS
// ══════════════════════════════════════════════════════════════════════════════

const migration002Up = `
-- Migration: Create players table
-- Version: 002
-- Purpose: Player accounts with cached point totals

CREATE TABLE IF NOT EXISTS players (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    display_name VARCHAR(100) NOT NULL,
    cached_total_points DOUBLE PRECISION NOT NULL DEFAULT 0,
    cached_total_runs INTEGER NOT NULL DEFAULT 0,
    last_recomputed_at TIMESTAMP WITH TIME ZONE,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_total_runs CHECK (cached_total_runs >= 0)
);

-- Display names resolve case-insensitively during claim and autolink
CREATE UNIQUE INDEX IF NOT EXISTS idx_players_display_name ON players(LOWER(display_name));
CREATE INDEX IF NOT EXISTS idx_players_total_points ON players(cached_total_points DESC);

DROP TRIGGER IF EXISTS update_players_updated_at ON players;
CREATE TRIGGER update_players_updated_at
    BEFORE UPDATE ON players
    FOR EACH ROW
    EXECUTE FUNCTION update_updated_at_column();
`

const migration002Down = `
DROP TRIGGER IF EXISTS update_players_updated_at ON players;
DROP TABLE IF EXISTS players;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 003: CREATE REGISTRY
// ══════════════════════════════════════════════════════════════════════════════

const migration003Up = `
-- Migration: Create registry table
-- Version: 003
-- Purpose: Map category/platform/level refs to display names

CREATE TABLE IF NOT EXISTS registry (
    ref VARCHAR(64) NOT NULL,
    kind VARCHAR(20) NOT NULL,
    name VARCHAR(100) NOT NULL,
    sort_order INTEGER NOT NULL DEFAULT 0,
    active BOOLEAN NOT NULL DEFAULT TRUE,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    PRIMARY KEY (kind, ref),
    CONSTRAINT valid_kind CHECK (kind IN ('category', 'platform', 'level'))
);

CREATE INDEX IF NOT EXISTS idx_registry_kind ON registry(kind, sort_order);

DROP TRIGGER IF EXISTS update_registry_updated_at ON registry;
CREATE TRIGGER update_registry_updated_at
    BEFORE UPDATE ON registry
    FOR EACH ROW
    EXECUTE FUNCTION update_updated_at_column();
`

const migration003Down = `
DROP TRIGGER IF EXISTS update_registry_updated_at ON registry;
DROP TABLE IF EXISTS registry;
`

// ══════════════════════════════════════════════════════════════════════════════
// EMBEDDED MIGRATIONS
// ══════════════════════════════════════════════════════════════════════════════

// GetMigrations returns all embedded migrations.
func GetMigrations() []Migration {
	return []Migration{
		{
			Version: 1,
			Name:    "create_runs",
			UpSQL:   migration001Up,
			DownSQL: migration001Down,
		},
		{
			Version: 2,
			Name:    "create_players",
			UpSQL:   migration002Up,
			DownSQL: migration002Down,
		},
		{
			Version: 3,
			Name:    "create_registry",
			UpSQL:   migration003Up,
			DownSQL: migration003Down,
		},
	}
}
