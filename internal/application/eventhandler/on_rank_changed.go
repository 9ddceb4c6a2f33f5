// Package eventhandler contains domain event handlers. Handlers are the
// reactive side of the system: reconciliation publishes what happened, and
// handlers run the side effects - here, keeping read caches honest.
package eventhandler

import (
	"context"
	"log/slog"

	"github.com/runhub/run-community-hub/internal/domain/shared"
)

// ═══════════════════════════════════════════════════════════════════════════
// ON RANK CHANGED HANDLER
// A reconciliation pass rewrote ranks within a comparison group, so any
// cached rendering of that board is stale. The event's aggregate id is the
// group key, which is also the cache key.
// ═══════════════════════════════════════════════════════════════════════════

// BoardInvalidator drops a cached board by group key.
type BoardInvalidator interface {
	InvalidateBoard(ctx context.Context, key string)
}

// OnRankChangedHandler invalidates cached boards after rank rewrites.
type OnRankChangedHandler struct {
	cache  BoardInvalidator
	logger *slog.Logger
}

// NewOnRankChangedHandler creates a new OnRankChangedHandler.
func NewOnRankChangedHandler(cache BoardInvalidator, logger *slog.Logger) *OnRankChangedHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &OnRankChangedHandler{
		cache:  cache,
		logger: logger.With("handler", "on_rank_changed"),
	}
}

// Handle implements shared.EventHandler.
func (h *OnRankChangedHandler) Handle(event shared.Event) error {
	if event.EventType() != shared.EventRankChanged {
		return nil
	}
	key := event.AggregateID()
	if key == "" {
		return nil
	}
	h.cache.InvalidateBoard(context.Background(), key)
	h.logger.Debug("board cache invalidated", "group_key", key)
	return nil
}

// Register subscribes the handler on the bus.
func (h *OnRankChangedHandler) Register(bus shared.EventSubscriber) error {
	return bus.Subscribe(shared.EventRankChanged, h.Handle)
}
