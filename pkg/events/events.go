// Package events carries domain events raised by the territory engine.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Event types
const (
	AssignmentCreated    = "territory.assignment.created"
	AssignmentReassigned = "territory.assignment.reassigned"
	AssignmentRemoved    = "territory.assignment.removed"
	OwnershipTransferred = "territory.ownership.transferred"
)

// DomainEvent is something that happened to a territory assignment.
type DomainEvent struct {
	ID                  string         `json:"id"`
	Type                string         `json:"type"`
	OccurredAt          time.Time      `json:"occurred_at"`
	TerritoryID         string         `json:"territory_id,omitempty"`
	PreviousTerritoryID string         `json:"previous_territory_id,omitempty"`
	EntityType          string         `json:"entity_type,omitempty"`
	EntityID            string         `json:"entity_id,omitempty"`
	ActorID             string         `json:"actor_id,omitempty"`
	Payload             map[string]any `json:"payload,omitempty"`
}

// New creates an event with a fresh ID.
func New(eventType string, occurredAt time.Time) DomainEvent {
	return DomainEvent{
		ID:         uuid.New().String(),
		Type:       eventType,
		OccurredAt: occurredAt.UTC(),
	}
}

// Publisher accepts domain events.
type Publisher interface {
	Publish(ctx context.Context, evt DomainEvent)
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(context.Context, DomainEvent) {}
