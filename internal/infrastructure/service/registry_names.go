package service

import (
	"context"

	"github.com/runhub/run-community-hub/internal/domain/registry"
	"github.com/runhub/run-community-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// REGISTRY NAME LOOKUP
// Resolves category/platform/level refs to display names for the points
// formula and board rendering. Imported runs may carry refs the local
// registry has never seen, so every lookup is allowed to miss and returns
// "" rather than an error.
// ══════════════════════════════════════════════════════════════════════════════

// RegistryNames implements board.NameLookup over the registry repository.
type RegistryNames struct {
	registry registry.Repository
	log      *logger.Logger
}

// NewRegistryNames creates a new RegistryNames lookup.
func NewRegistryNames(repo registry.Repository, log *logger.Logger) *RegistryNames {
	return &RegistryNames{
		registry: repo,
		log:      log.With(logger.Component("registry_names")),
	}
}

// CategoryName resolves a category ref to its display name.
func (r *RegistryNames) CategoryName(ctx context.Context, ref string) string {
	return r.lookup(ctx, registry.KindCategory, ref)
}

// PlatformName resolves a platform ref to its display name.
func (r *RegistryNames) PlatformName(ctx context.Context, ref string) string {
	return r.lookup(ctx, registry.KindPlatform, ref)
}

// LevelName resolves a level ref to its display name.
func (r *RegistryNames) LevelName(ctx context.Context, ref string) string {
	return r.lookup(ctx, registry.KindLevel, ref)
}

func (r *RegistryNames) lookup(ctx context.Context, kind registry.Kind, ref string) string {
	if ref == "" {
		return ""
	}
	entry, err := r.registry.Get(ctx, kind, ref)
	if err != nil {
		return ""
	}
	return entry.Name
}
