package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// NewClickRecordedEvent creates the outbox event for a stored click.
// Events for one visitor share a partition key so consumers see them in order.
func NewClickRecordedEvent(c *Click) OutboxDraft {
	payload, _ := json.Marshal(c)
	return OutboxDraft{
		EventID:       uuid.New(),
		AggregateType: AggregateClick,
		AggregateID:   c.ID,
		EventType:     EventClickRecorded,
		PartitionKey:  c.VisitorID,
		Headers:       json.RawMessage(`{}`),
		Payload:       payload,
		OccurredAt:    time.Now(),
	}
}

// NewConversionRecordedEvent creates the outbox event for a stored conversion.
func NewConversionRecordedEvent(c *Conversion) OutboxDraft {
	payload, _ := json.Marshal(c)
	return OutboxDraft{
		EventID:       uuid.New(),
		AggregateType: AggregateConversion,
		AggregateID:   c.ID,
		EventType:     EventConversionRecorded,
		PartitionKey:  c.VisitorID,
		Headers:       json.RawMessage(`{}`),
		Payload:       payload,
		OccurredAt:    time.Now(),
	}
}

// NewVisitorCreatedEvent creates the outbox event for a first-touch visitor.
func NewVisitorCreatedEvent(v *Visitor) OutboxDraft {
	payload, _ := json.Marshal(map[string]interface{}{
		"visitor_id":        v.ID,
		"tracking_link_id":  v.TrackingLinkID,
		"traffic_source_id": v.TrafficSourceID,
		"utm":               v.Context.UTM,
		"country":           v.Context.Country,
		"device":            v.Context.Device,
	})
	return OutboxDraft{
		EventID:       uuid.New(),
		AggregateType: AggregateVisitor,
		AggregateID:   v.ID,
		EventType:     EventVisitorCreated,
		PartitionKey:  v.ID,
		Headers:       json.RawMessage(`{}`),
		Payload:       payload,
		OccurredAt:    time.Now(),
	}
}
