package analytics

import (
	"context"

	"github.com/jordanlanch/territoryengine/pkg/events"
)

// CacheInvalidator drops cached performance for territories touched by an
// assignment event.
type CacheInvalidator struct {
	service *Service
}

// NewCacheInvalidator creates a bus handler for s.
func NewCacheInvalidator(s *Service) *CacheInvalidator {
	return &CacheInvalidator{service: s}
}

// HandleEvent implements events.Handler.
func (c *CacheInvalidator) HandleEvent(ctx context.Context, evt events.DomainEvent) error {
	switch evt.Type {
	case events.AssignmentCreated, events.AssignmentReassigned, events.AssignmentRemoved:
	default:
		return nil
	}
	if err := c.service.InvalidateTerritory(ctx, evt.TerritoryID); err != nil {
		return err
	}
	return c.service.InvalidateTerritory(ctx, evt.PreviousTerritoryID)
}
