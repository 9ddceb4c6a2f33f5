// Package postgres implements the PostgreSQL persistence layer for Run Community Hub.
package postgres

import (
	"context"
	"fmt"

	"github.com/runhub/run-community-hub/internal/domain/registry"
	"github.com/runhub/run-community-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// REGISTRY REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// RegistryRepository implements registry.Repository for PostgreSQL.
type RegistryRepository struct {
	conn *Connection
}

// NewRegistryRepository creates a new RegistryRepository.
func NewRegistryRepository(conn *Connection) *RegistryRepository {
	return &RegistryRepository{conn: conn}
}

// Get returns an entry by kind and ref.
func (r *RegistryRepository) Get(ctx context.Context, kind registry.Kind, ref string) (*registry.Entry, error) {
	query := `
		SELECT ref, kind, name, sort_order, active
		FROM registry
		WHERE kind = $1 AND ref = $2
	`

	var e registry.Entry
	var k string
	err := r.conn.QueryRow(ctx, query, string(kind), ref).Scan(
		&e.Ref, &k, &e.Name, &e.SortOrder, &e.Active,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get registry entry: %w", err)
	}

	e.Kind = registry.Kind(k)
	return &e, nil
}

// ListByKind returns all entries of a kind, active first, in sort order.
func (r *RegistryRepository) ListByKind(ctx context.Context, kind registry.Kind) ([]*registry.Entry, error) {
	query := `
		SELECT ref, kind, name, sort_order, active
		FROM registry
		WHERE kind = $1
		ORDER BY active DESC, sort_order, name
	`

	rows, err := r.conn.Query(ctx, query, string(kind))
	if err != nil {
		return nil, fmt.Errorf("failed to list registry entries: %w", err)
	}
	defer rows.Close()

	entries := make([]*registry.Entry, 0)
	for rows.Next() {
		var e registry.Entry
		var k string
		if err := rows.Scan(&e.Ref, &k, &e.Name, &e.SortOrder, &e.Active); err != nil {
			return nil, fmt.Errorf("failed to scan registry row: %w", err)
		}
		e.Kind = registry.Kind(k)
		entries = append(entries, &e)
	}

	return entries, rows.Err()
}

// Upsert creates or replaces an entry.
func (r *RegistryRepository) Upsert(ctx context.Context, e *registry.Entry) error {
	if err := e.Validate(); err != nil {
		return err
	}

	query := `
		INSERT INTO registry (ref, kind, name, sort_order, active)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (kind, ref) DO UPDATE SET
			name = EXCLUDED.name,
			sort_order = EXCLUDED.sort_order,
			active = EXCLUDED.active,
			updated_at = NOW()
	`

	_, err := r.conn.Exec(ctx, query, e.Ref, string(e.Kind), e.Name, e.SortOrder, e.Active)
	if err != nil {
		return fmt.Errorf("failed to upsert registry entry: %w", err)
	}

	return nil
}

// Delete removes an entry.
func (r *RegistryRepository) Delete(ctx context.Context, kind registry.Kind, ref string) error {
	result, err := r.conn.Exec(ctx, "DELETE FROM registry WHERE kind = $1 AND ref = $2", string(kind), ref)
	if err != nil {
		return fmt.Errorf("failed to delete registry entry: %w", err)
	}

	if result.RowsAffected() == 0 {
		return shared.ErrNotFound
	}

	return nil
}
