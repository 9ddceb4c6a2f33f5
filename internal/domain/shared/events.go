// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages.
package shared

import (
	"encoding/json"
	"time"
)

// EventType represents the type of domain event.
type EventType string

// Domain event types - these drive the event-driven architecture.
// Each event represents something significant that happened in the domain.
const (
	// Run events
	EventRunVerified       EventType = "run.verified"
	EventRunUnverified     EventType = "run.unverified"
	EventRunEdited         EventType = "run.edited"
	EventRunClaimed        EventType = "run.claimed"
	EventRunDeleted        EventType = "run.deleted"
	EventRunObsoleteToggle EventType = "run.obsolete_toggled"
	EventRunImported       EventType = "run.imported"

	// Board events
	EventRankChanged EventType = "board.rank_changed"

	// Player events
	EventTotalsRecomputed EventType = "player.totals_recomputed"
	EventRunsAutoLinked   EventType = "player.runs_auto_linked"

	// System events
	EventBackfillCompleted EventType = "system.backfill_completed"
	EventImportCompleted   EventType = "system.import_completed"
)

// Event is the base interface for all domain events.
type Event interface {
	// EventType returns the type of the event.
	EventType() EventType

	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time

	// AggregateID returns the ID of the aggregate that produced this event.
	AggregateID() string

	// Payload returns the event data as a map for serialization.
	Payload() map[string]interface{}
}

// BaseEvent provides common event functionality.
type BaseEvent struct {
	Type          EventType `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	AggregateId   string    `json:"aggregate_id"`
	Version       int       `json:"version"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// EventType implements Event interface.
func (e BaseEvent) EventType() EventType {
	return e.Type
}

// OccurredAt implements Event interface.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// AggregateID implements Event interface.
func (e BaseEvent) AggregateID() string {
	return e.AggregateId
}

// NewBaseEvent creates a new base event.
func NewBaseEvent(eventType EventType, aggregateID string) BaseEvent {
	return BaseEvent{
		Type:        eventType,
		Timestamp:   time.Now(),
		AggregateId: aggregateID,
		Version:     1,
	}
}

// WithCorrelationID sets the correlation ID for tracing.
func (e BaseEvent) WithCorrelationID(id string) BaseEvent {
	e.CorrelationID = id
	return e
}

// ═══════════════════════════════════════════════════════════════════════════
// Run Events
// ═══════════════════════════════════════════════════════════════════════════

// RunVerifiedEvent is emitted when a moderator verifies a run.
type RunVerifiedEvent struct {
	BaseEvent
	GroupKey   string  `json:"group_key"`
	OwnerRef   string  `json:"owner_ref"`
	VerifiedBy string  `json:"verified_by"`
	Points     float64 `json:"points"`
	Rank       int     `json:"rank,omitempty"` // 0 when outside the top three
}

// Payload implements Event interface.
func (e RunVerifiedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"group_key":   e.GroupKey,
		"owner_ref":   e.OwnerRef,
		"verified_by": e.VerifiedBy,
		"points":      e.Points,
		"rank":        e.Rank,
	}
}

// NewRunVerifiedEvent creates a new RunVerifiedEvent.
func NewRunVerifiedEvent(runID, groupKey, ownerRef, verifiedBy string, points float64, rank int) RunVerifiedEvent {
	return RunVerifiedEvent{
		BaseEvent:  NewBaseEvent(EventRunVerified, runID),
		GroupKey:   groupKey,
		OwnerRef:   ownerRef,
		VerifiedBy: verifiedBy,
		Points:     points,
		Rank:       rank,
	}
}

// RunUnverifiedEvent is emitted when a moderator retracts verification.
type RunUnverifiedEvent struct {
	BaseEvent
	GroupKey string `json:"group_key"`
	OwnerRef string `json:"owner_ref"`
}

// Payload implements Event interface.
func (e RunUnverifiedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"group_key": e.GroupKey,
		"owner_ref": e.OwnerRef,
	}
}

// NewRunUnverifiedEvent creates a new RunUnverifiedEvent.
func NewRunUnverifiedEvent(runID, groupKey, ownerRef string) RunUnverifiedEvent {
	return RunUnverifiedEvent{
		BaseEvent: NewBaseEvent(EventRunUnverified, runID),
		GroupKey:  groupKey,
		OwnerRef:  ownerRef,
	}
}

// RunEditedEvent is emitted when a verified run's time/category/platform/level changes.
type RunEditedEvent struct {
	BaseEvent
	OldGroupKey string `json:"old_group_key"`
	NewGroupKey string `json:"new_group_key"`
}

// Payload implements Event interface.
func (e RunEditedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"old_group_key": e.OldGroupKey,
		"new_group_key": e.NewGroupKey,
	}
}

// NewRunEditedEvent creates a new RunEditedEvent.
func NewRunEditedEvent(runID, oldGroupKey, newGroupKey string) RunEditedEvent {
	return RunEditedEvent{
		BaseEvent:   NewBaseEvent(EventRunEdited, runID),
		OldGroupKey: oldGroupKey,
		NewGroupKey: newGroupKey,
	}
}

// RunClaimedEvent is emitted when ownership of a run is reassigned.
type RunClaimedEvent struct {
	BaseEvent
	NewOwnerID    string `json:"new_owner_id"`
	PreviousOwner string `json:"previous_owner"`
}

// Payload implements Event interface.
func (e RunClaimedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"new_owner_id":   e.NewOwnerID,
		"previous_owner": e.PreviousOwner,
	}
}

// NewRunClaimedEvent creates a new RunClaimedEvent.
func NewRunClaimedEvent(runID, newOwnerID, previousOwner string) RunClaimedEvent {
	return RunClaimedEvent{
		BaseEvent:     NewBaseEvent(EventRunClaimed, runID),
		NewOwnerID:    newOwnerID,
		PreviousOwner: previousOwner,
	}
}

// RunObsoleteToggledEvent is emitted when a run's obsolete flag changes.
type RunObsoleteToggledEvent struct {
	BaseEvent
	GroupKey string `json:"group_key"`
	Obsolete bool   `json:"obsolete"`
}

// Payload implements Event interface.
func (e RunObsoleteToggledEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"group_key": e.GroupKey,
		"obsolete":  e.Obsolete,
	}
}

// NewRunObsoleteToggledEvent creates a new RunObsoleteToggledEvent.
func NewRunObsoleteToggledEvent(runID, groupKey string, obsolete bool) RunObsoleteToggledEvent {
	return RunObsoleteToggledEvent{
		BaseEvent: NewBaseEvent(EventRunObsoleteToggle, runID),
		GroupKey:  groupKey,
		Obsolete:  obsolete,
	}
}

// RunDeletedEvent is emitted after a hard delete.
type RunDeletedEvent struct {
	BaseEvent
	GroupKey string `json:"group_key"`
	OwnerRef string `json:"owner_ref"`
}

// Payload implements Event interface.
func (e RunDeletedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"group_key": e.GroupKey,
		"owner_ref": e.OwnerRef,
	}
}

// NewRunDeletedEvent creates a new RunDeletedEvent.
func NewRunDeletedEvent(runID, groupKey, ownerRef string) RunDeletedEvent {
	return RunDeletedEvent{
		BaseEvent: NewBaseEvent(EventRunDeleted, runID),
		GroupKey:  groupKey,
		OwnerRef:  ownerRef,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Board Events
// ═══════════════════════════════════════════════════════════════════════════

// RankChangedEvent is emitted when a reconciliation pass changed ranks
// within a comparison group. Consumers use it to drop stale board caches.
type RankChangedEvent struct {
	BaseEvent
	GroupKey     string `json:"group_key"`
	RunsAffected int    `json:"runs_affected"`
}

// Payload implements Event interface.
func (e RankChangedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"group_key":     e.GroupKey,
		"runs_affected": e.RunsAffected,
	}
}

// NewRankChangedEvent creates a new RankChangedEvent.
// The aggregate is the group key: one event per reconciled group.
func NewRankChangedEvent(groupKey string, runsAffected int) RankChangedEvent {
	return RankChangedEvent{
		BaseEvent:    NewBaseEvent(EventRankChanged, groupKey),
		GroupKey:     groupKey,
		RunsAffected: runsAffected,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Player Events
// ═══════════════════════════════════════════════════════════════════════════

// TotalsRecomputedEvent is emitted after a player's cached totals are rebuilt.
type TotalsRecomputedEvent struct {
	BaseEvent
	TotalPoints float64 `json:"total_points"`
	TotalRuns   int     `json:"total_runs"`
}

// Payload implements Event interface.
func (e TotalsRecomputedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"total_points": e.TotalPoints,
		"total_runs":   e.TotalRuns,
	}
}

// NewTotalsRecomputedEvent creates a new TotalsRecomputedEvent.
func NewTotalsRecomputedEvent(playerID string, totalPoints float64, totalRuns int) TotalsRecomputedEvent {
	return TotalsRecomputedEvent{
		BaseEvent:   NewBaseEvent(EventTotalsRecomputed, playerID),
		TotalPoints: totalPoints,
		TotalRuns:   totalRuns,
	}
}

// RunsAutoLinkedEvent is emitted after a bulk auto-link pass for an account.
type RunsAutoLinkedEvent struct {
	BaseEvent
	DisplayName string `json:"display_name"`
	RunsLinked  int    `json:"runs_linked"`
}

// Payload implements Event interface.
func (e RunsAutoLinkedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"display_name": e.DisplayName,
		"runs_linked":  e.RunsLinked,
	}
}

// NewRunsAutoLinkedEvent creates a new RunsAutoLinkedEvent.
func NewRunsAutoLinkedEvent(accountID, displayName string, runsLinked int) RunsAutoLinkedEvent {
	return RunsAutoLinkedEvent{
		BaseEvent:   NewBaseEvent(EventRunsAutoLinked, accountID),
		DisplayName: displayName,
		RunsLinked:  runsLinked,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// System Events
// ═══════════════════════════════════════════════════════════════════════════

// BackfillCompletedEvent is emitted when a full-corpus backfill pass finishes.
type BackfillCompletedEvent struct {
	BaseEvent
	GroupsProcessed  int           `json:"groups_processed"`
	RunsUpdated      int           `json:"runs_updated"`
	PlayersRecounted int           `json:"players_recounted"`
	ErrorCount       int           `json:"error_count"`
	Duration         time.Duration `json:"duration"`
}

// Payload implements Event interface.
func (e BackfillCompletedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"groups_processed":  e.GroupsProcessed,
		"runs_updated":      e.RunsUpdated,
		"players_recounted": e.PlayersRecounted,
		"error_count":       e.ErrorCount,
		"duration_ms":       e.Duration.Milliseconds(),
	}
}

// NewBackfillCompletedEvent creates a new BackfillCompletedEvent.
func NewBackfillCompletedEvent(jobID string, groups, runs, players, errCount int, duration time.Duration) BackfillCompletedEvent {
	return BackfillCompletedEvent{
		BaseEvent:        NewBaseEvent(EventBackfillCompleted, jobID),
		GroupsProcessed:  groups,
		RunsUpdated:      runs,
		PlayersRecounted: players,
		ErrorCount:       errCount,
		Duration:         duration,
	}
}

// ImportCompletedEvent is emitted when an ingestion pass from the external
// results provider finishes.
type ImportCompletedEvent struct {
	BaseEvent
	Fetched    int `json:"fetched"`
	Imported   int `json:"imported"`
	Skipped    int `json:"skipped"`
	ErrorCount int `json:"error_count"`
}

// Payload implements Event interface.
func (e ImportCompletedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"fetched":     e.Fetched,
		"imported":    e.Imported,
		"skipped":     e.Skipped,
		"error_count": e.ErrorCount,
	}
}

// NewImportCompletedEvent creates a new ImportCompletedEvent.
func NewImportCompletedEvent(fetched, imported, skipped, errCount int) ImportCompletedEvent {
	return ImportCompletedEvent{
		BaseEvent:  NewBaseEvent(EventImportCompleted, "results-import"),
		Fetched:    fetched,
		Imported:   imported,
		Skipped:    skipped,
		ErrorCount: errCount,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Event Envelope (for serialization and transport)
// ═══════════════════════════════════════════════════════════════════════════

// EventEnvelope wraps an event for transport/storage.
type EventEnvelope struct {
	ID            string          `json:"id"`
	Type          EventType       `json:"type"`
	AggregateID   string          `json:"aggregate_id"`
	Timestamp     time.Time       `json:"timestamp"`
	Version       int             `json:"version"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

// EventHandler is a function that handles an event.
type EventHandler func(event Event) error

// EventPublisher defines the interface for publishing events.
type EventPublisher interface {
	// Publish sends an event to subscribers.
	Publish(event Event) error
}

// EventSubscriber defines the interface for subscribing to events.
type EventSubscriber interface {
	// Subscribe registers a handler for an event type.
	Subscribe(eventType EventType, handler EventHandler) error

	// SubscribeAll registers a handler for all events.
	SubscribeAll(handler EventHandler) error
}

// EventBus combines publishing and subscribing.
type EventBus interface {
	EventPublisher
	EventSubscriber
}
