package service

import (
	"context"
	"errors"

	"github.com/runhub/run-community-hub/internal/domain/player"
	"github.com/runhub/run-community-hub/internal/domain/shared"
	"github.com/runhub/run-community-hub/internal/infrastructure/persistence/redis"
	"github.com/runhub/run-community-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// LINKING RESOLVER
// Maps free-text display names to registered accounts. Recomputation asks
// for the same handful of names repeatedly, so resolutions (including
// misses) sit behind the Redis name cache.
// ══════════════════════════════════════════════════════════════════════════════

// LinkingResolver implements player.LinkResolver over the player repository
// with a name cache in front. The cache may be nil.
type LinkingResolver struct {
	players player.Repository
	names   *redis.NameCache
	log     *logger.Logger
}

// NewLinkingResolver creates a new LinkingResolver.
func NewLinkingResolver(players player.Repository, names *redis.NameCache, log *logger.Logger) *LinkingResolver {
	return &LinkingResolver{
		players: players,
		names:   names,
		log:     log.With(logger.Component("linking_resolver")),
	}
}

// ResolveName returns the account whose display name matches, or (nil, nil)
// when no account uses the name. Matching is case-insensitive on the
// trimmed name.
func (r *LinkingResolver) ResolveName(ctx context.Context, name shared.DisplayName) (*player.Player, error) {
	if !name.IsValid() {
		return nil, nil
	}
	normalized := name.Normalized()

	if r.names != nil {
		if accountID, found := r.names.Lookup(ctx, normalized); found {
			if accountID == "" {
				return nil, nil
			}
			p, err := r.players.GetByID(ctx, accountID)
			if err == nil {
				return p, nil
			}
			// Cached id no longer resolves; fall through to the repository.
			r.names.Invalidate(ctx, normalized)
		}
	}

	p, err := r.players.GetByDisplayName(ctx, name)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			if r.names != nil {
				r.names.StoreMiss(ctx, normalized)
			}
			return nil, nil
		}
		return nil, err
	}

	if r.names != nil {
		r.names.Store(ctx, normalized, p.ID)
	}
	return p, nil
}
