package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

type OutboxEvent struct {
	Id            int64           `db:"id"`
	AggregateType string          `db:"aggregate_type"`
	AggregateID   string          `db:"aggregate_id"`
	EventType     string          `db:"event_type"`
	Payload       json.RawMessage `db:"payload"`
	Headers       json.RawMessage `db:"headers"`
	CreatedAt     time.Time       `db:"created_at"`
	PublishedAt   *time.Time      `db:"published_at"`
	Attempts      int64           `db:"attempts"`
	LastError     *string         `db:"last_error"`
	Topic         string          `db:"topic"`
}

// Envelope is the message shape consumers of a topic receive.
type Envelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
	EventID int64           `json:"event_id,omitempty"`
}

// NewEvent wraps payload in an Envelope ready to be stored in the outbox.
func NewEvent(aggregateType, aggregateID, eventType, topic string, payload any) (*OutboxEvent, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("error encoding %s payload: %w", eventType, err)
	}

	envelope, err := json.Marshal(Envelope{Event: eventType, Payload: raw})
	if err != nil {
		return nil, fmt.Errorf("error encoding %s envelope: %w", eventType, err)
	}

	return &OutboxEvent{
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       envelope,
		Topic:         topic,
	}, nil
}
