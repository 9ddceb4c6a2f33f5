package redis

import (
	"context"
	"errors"

	"github.com/runhub/run-community-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// NAME CACHE
// Resolution results from normalized display name to account id. Misses are
// cached too: most imported names never belong to a registered account, and
// recomputation resolves the same names over and over.
// ══════════════════════════════════════════════════════════════════════════════

// nameMissSentinel marks a cached "no account uses this name" result.
const nameMissSentinel = "\x00miss"

// NameCache caches display-name resolution results in Redis.
type NameCache struct {
	cache *Cache
	log   *logger.Logger
}

// NewNameCache creates a new NameCache.
func NewNameCache(cache *Cache, log *logger.Logger) *NameCache {
	return &NameCache{
		cache: cache,
		log:   log.With(logger.Component("name_cache")),
	}
}

// Lookup returns the cached resolution for a normalized name.
// The second return reports whether anything was cached; a cached miss
// comes back as ("", true).
func (n *NameCache) Lookup(ctx context.Context, normalizedName string) (accountID string, found bool) {
	val, err := n.cache.GetString(ctx, NameKey(normalizedName))
	if err != nil {
		if !errors.Is(err, ErrCacheMiss) {
			n.log.Warn("name cache read failed", logger.Err(err))
		}
		return "", false
	}
	if val == nameMissSentinel {
		return "", true
	}
	return val, true
}

// Store caches a successful resolution.
func (n *NameCache) Store(ctx context.Context, normalizedName, accountID string) {
	if err := n.cache.SetString(ctx, NameKey(normalizedName), accountID, TTLNameCache); err != nil {
		n.log.Warn("name cache write failed", logger.Err(err))
	}
}

// StoreMiss caches a failed resolution.
func (n *NameCache) StoreMiss(ctx context.Context, normalizedName string) {
	if err := n.cache.SetString(ctx, NameKey(normalizedName), nameMissSentinel, TTLNameCache); err != nil {
		n.log.Warn("name cache write failed", logger.Err(err))
	}
}

// Invalidate drops a cached resolution, e.g. after a rename or signup.
func (n *NameCache) Invalidate(ctx context.Context, normalizedName string) {
	if err := n.cache.Delete(ctx, NameKey(normalizedName)); err != nil {
		n.log.Warn("name cache invalidation failed", logger.Err(err))
	}
}
