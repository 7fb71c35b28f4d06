package service

import (
	"context"
	"errors"

	"github.com/mikoajp/EventHub-sub001/internal/cache"
	"github.com/mikoajp/EventHub-sub001/internal/model"
	"github.com/mikoajp/EventHub-sub001/internal/repository"
)

// InventoryService answers availability reads for display. Reads take no
// lock and may be served from cache, so they can lag behind purchases.
type InventoryService struct {
	store repository.TicketStore
	cache *cache.AvailabilityCache
}

// NewInventoryService accepts a nil cache.
func NewInventoryService(store repository.TicketStore, c *cache.AvailabilityCache) *InventoryService {
	return &InventoryService{store: store, cache: c}
}

// Availability returns the ticket type with its sold count. A ticket type
// of another event is reported as an invalid reference.
func (s *InventoryService) Availability(ctx context.Context, eventID, ticketTypeID string) (*model.TicketType, error) {
	if tt, ok := s.cache.Get(ctx, eventID, ticketTypeID); ok {
		return tt, nil
	}
	tt, err := s.store.TicketTypeAvailability(ctx, ticketTypeID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, &InvalidReferenceError{Entity: "ticket_type", ID: ticketTypeID}
		}
		return nil, err
	}
	if tt.EventID != eventID {
		return nil, &InvalidReferenceError{Entity: "ticket_type", ID: ticketTypeID}
	}
	s.cache.Set(ctx, tt)
	return tt, nil
}
