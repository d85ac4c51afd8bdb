package core

import (
	"context"
	"time"
)

// Event is a domain event emitted after a successful write.
type Event struct {
	Type       string      `json:"type"` // eg. credit.transaction.recorded
	Key        string      `json:"key"`  // partition key
	OccurredAt time.Time   `json:"occurred_at"`
	Payload    interface{} `json:"payload"`
}

func NewEvent(typ, key string, payload interface{}) Event {
	return Event{Type: typ, Key: key, OccurredAt: time.Now().UTC(), Payload: payload}
}

// EventPublisher publishes domain events.
// Delivery failures are handled (logged) by the implementation, they never fail the originating write.
type EventPublisher interface {
	Publish(ctx context.Context, events ...Event)
}
