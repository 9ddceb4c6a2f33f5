package redis

import (
	"context"
	"errors"
	"time"

	"github.com/runhub/run-community-hub/internal/application/query"
	"github.com/runhub/run-community-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// BOARD CACHE
// Rendered board views keyed by comparison-group key. Rank-changed events
// invalidate eagerly; the TTL is only a backstop against missed events.
// ══════════════════════════════════════════════════════════════════════════════

// BoardCache caches rendered boards in Redis. It implements both
// query.BoardCache and eventhandler.BoardInvalidator. Cache failures are
// logged and swallowed: a broken cache degrades to direct reads, never to
// a failed request.
type BoardCache struct {
	cache *Cache
	log   *logger.Logger
}

// NewBoardCache creates a new BoardCache.
func NewBoardCache(cache *Cache, log *logger.Logger) *BoardCache {
	return &BoardCache{
		cache: cache,
		log:   log.With(logger.Component("board_cache")),
	}
}

// GetBoard returns a cached board rendering, if present.
func (b *BoardCache) GetBoard(ctx context.Context, key string) (*query.GetBoardResult, bool) {
	var result query.GetBoardResult
	err := b.cache.Get(ctx, BoardKey(key), &result)
	if err != nil {
		if !errors.Is(err, ErrCacheMiss) {
			b.log.Warn("board cache read failed", logger.GroupKey(key), logger.Err(err))
		}
		return nil, false
	}
	return &result, true
}

// SetBoard stores a rendered board.
func (b *BoardCache) SetBoard(ctx context.Context, key string, result *query.GetBoardResult, ttl time.Duration) {
	if ttl <= 0 {
		ttl = TTLBoardCache
	}
	if err := b.cache.Set(ctx, BoardKey(key), result, ttl); err != nil {
		b.log.Warn("board cache write failed", logger.GroupKey(key), logger.Err(err))
	}
}

// InvalidateBoard drops a cached board by group key.
func (b *BoardCache) InvalidateBoard(ctx context.Context, key string) {
	if err := b.cache.Delete(ctx, BoardKey(key)); err != nil {
		b.log.Warn("board cache invalidation failed", logger.GroupKey(key), logger.Err(err))
	}
}

// InvalidateAll drops every cached board. Used after backfill, which can
// touch any group.
func (b *BoardCache) InvalidateAll(ctx context.Context) {
	if err := b.cache.DeleteByPattern(ctx, PrefixBoard+"*"); err != nil {
		b.log.Warn("board cache flush failed", logger.Err(err))
	}
}
