package shared

import (
	"encoding/json"
	"time"
)

// EventType represents the type of domain event.
type EventType string

// Domain event types.
const (
	EventScanIngested        EventType = "scan.ingested"
	EventScanDeleted         EventType = "scan.deleted"
	EventHistoryCleared      EventType = "scan.history_cleared"
	EventAchievementUnlocked EventType = "achievement.unlocked"
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
	Type        EventType `json:"type"`
	Timestamp   time.Time `json:"timestamp"`
	AggregateId string    `json:"aggregate_id"`
	Version     int       `json:"version"`
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

// NewBaseEvent creates a new base event stamped with at.
func NewBaseEvent(eventType EventType, aggregateID string, at time.Time) BaseEvent {
	return BaseEvent{
		Type:        eventType,
		Timestamp:   at,
		AggregateId: aggregateID,
		Version:     1,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Scan Events
// ═══════════════════════════════════════════════════════════════════════════

// ScanIngestedEvent is emitted once a scan has been persisted.
type ScanIngestedEvent struct {
	BaseEvent
	UserID       string  `json:"user_id"`
	ScanID       int64   `json:"scan_id"`
	OverallScore float64 `json:"overall_score"`
	Streak       int     `json:"streak"`
}

// Payload implements Event interface.
func (e ScanIngestedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":       e.UserID,
		"scan_id":       e.ScanID,
		"overall_score": e.OverallScore,
		"streak":        e.Streak,
	}
}

// NewScanIngestedEvent creates a new ScanIngestedEvent.
func NewScanIngestedEvent(userID string, scanID int64, overall float64, streak int, at time.Time) ScanIngestedEvent {
	return ScanIngestedEvent{
		BaseEvent:    NewBaseEvent(EventScanIngested, userID, at),
		UserID:       userID,
		ScanID:       scanID,
		OverallScore: overall,
		Streak:       streak,
	}
}

// ScanDeletedEvent is emitted when one scan or the whole history is removed.
// ScanID is zero for a full clean start.
type ScanDeletedEvent struct {
	BaseEvent
	UserID string `json:"user_id"`
	ScanID int64  `json:"scan_id,omitempty"`
}

// Payload implements Event interface.
func (e ScanDeletedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id": e.UserID,
		"scan_id": e.ScanID,
	}
}

// NewScanDeletedEvent creates a new ScanDeletedEvent.
func NewScanDeletedEvent(userID string, scanID int64, at time.Time) ScanDeletedEvent {
	eventType := EventScanDeleted
	if scanID == 0 {
		eventType = EventHistoryCleared
	}
	return ScanDeletedEvent{
		BaseEvent: NewBaseEvent(eventType, userID, at),
		UserID:    userID,
		ScanID:    scanID,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Achievement Events
// ═══════════════════════════════════════════════════════════════════════════

// AchievementUnlockedEvent is emitted for every persisted unlock.
type AchievementUnlockedEvent struct {
	BaseEvent
	UserID          string                 `json:"user_id"`
	AchievementID   string                 `json:"achievement_id"`
	AchievementType string                 `json:"achievement_type"`
	Metadata        map[string]interface{} `json:"metadata,omitempty"`
}

// Payload implements Event interface.
func (e AchievementUnlockedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":          e.UserID,
		"achievement_id":   e.AchievementID,
		"achievement_type": e.AchievementType,
		"metadata":         e.Metadata,
	}
}

// NewAchievementUnlockedEvent creates a new AchievementUnlockedEvent.
func NewAchievementUnlockedEvent(userID, id, achievementType string, metadata map[string]interface{}, at time.Time) AchievementUnlockedEvent {
	return AchievementUnlockedEvent{
		BaseEvent:       NewBaseEvent(EventAchievementUnlocked, userID, at),
		UserID:          userID,
		AchievementID:   id,
		AchievementType: achievementType,
		Metadata:        metadata,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Event Envelope (for serialization and transport)
// ═══════════════════════════════════════════════════════════════════════════

// EventEnvelope wraps an event for transport/storage.
type EventEnvelope struct {
	ID          string          `json:"id"`
	Type        EventType       `json:"type"`
	AggregateID string          `json:"aggregate_id"`
	Timestamp   time.Time       `json:"timestamp"`
	Version     int             `json:"version"`
	Payload     json.RawMessage `json:"payload"`
}

// NewEventEnvelope serialises the payload of event.
func NewEventEnvelope(id string, event Event) (EventEnvelope, error) {
	payload, err := json.Marshal(event.Payload())
	if err != nil {
		return EventEnvelope{}, err
	}
	return EventEnvelope{
		ID:          id,
		Type:        event.EventType(),
		AggregateID: event.AggregateID(),
		Timestamp:   event.OccurredAt(),
		Version:     1,
		Payload:     payload,
	}, nil
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
