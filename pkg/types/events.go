package types

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EventType enumerates magic link lifecycle events.
type EventType string

const (
	EventGenerating            EventType = "magiclink.link.generating"
	EventSent                  EventType = "magiclink.link.sent"
	EventFailed                EventType = "magiclink.link.failed"
	EventVerificationStarted   EventType = "magiclink.verification.started"
	EventVerificationCompleted EventType = "magiclink.verification.completed"
	EventVerificationFailed    EventType = "magiclink.verification.failed"
	EventVerificationError     EventType = "magiclink.verification.error"
)

// Event is the payload handed to lifecycle observers.
type Event struct {
	Type       EventType
	Identifier Identifier
	Guard      string
	LinkID     uuid.UUID
	UserID     uuid.UUID
	Channels   []Channel
	Err        error
	Reason     string
	OccurredAt time.Time
	Metadata   map[string]any
}

// EventPublisher fans lifecycle events out to observers.
type EventPublisher interface {
	Publish(ctx context.Context, event Event)
}

// NopPublisher drops every event.
type NopPublisher struct{}

// Publish implements EventPublisher.
func (NopPublisher) Publish(context.Context, Event) {}
