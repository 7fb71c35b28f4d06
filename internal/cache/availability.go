package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mikoajp/EventHub-sub001/internal/model"
)

// AvailabilityCache stores ticket type availability snapshots. Read errors
// are treated as misses; the database stays the source of truth.
type AvailabilityCache struct {
	rdb    redis.Cmdable
	ttl    time.Duration
	logger *slog.Logger
}

// NewAvailabilityCache returns nil when rdb is nil; a nil cache is valid
// and always misses.
func NewAvailabilityCache(rdb *redis.Client, ttl time.Duration, logger *slog.Logger) *AvailabilityCache {
	if rdb == nil {
		return nil
	}
	return &AvailabilityCache{rdb: rdb, ttl: ttl, logger: logger}
}

type availabilityEntry struct {
	ID            string `json:"id"`
	EventID       string `json:"event_id"`
	Name          string `json:"name"`
	PriceCents    int64  `json:"price_cents"`
	TotalQuantity int    `json:"total_quantity"`
	Sold          int    `json:"sold"`
}

func (c *AvailabilityCache) Get(ctx context.Context, eventID, ticketTypeID string) (*model.TicketType, bool) {
	if c == nil {
		return nil, false
	}
	raw, err := c.rdb.Get(ctx, AvailabilityKey(eventID, ticketTypeID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("availability cache read failed", "ticket_type_id", ticketTypeID, "err", err)
		}
		return nil, false
	}
	var e availabilityEntry
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, false
	}
	return &model.TicketType{
		ID: e.ID, EventID: e.EventID, Name: e.Name,
		PriceCents: e.PriceCents, TotalQuantity: e.TotalQuantity, SoldOrReserved: e.Sold,
	}, true
}

func (c *AvailabilityCache) Set(ctx context.Context, tt *model.TicketType) {
	if c == nil {
		return
	}
	raw, err := json.Marshal(availabilityEntry{
		ID: tt.ID, EventID: tt.EventID, Name: tt.Name,
		PriceCents: tt.PriceCents, TotalQuantity: tt.TotalQuantity, Sold: tt.SoldOrReserved,
	})
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, AvailabilityKey(tt.EventID, tt.ID), raw, c.ttl).Err(); err != nil {
		c.logger.Warn("availability cache write failed", "ticket_type_id", tt.ID, "err", err)
	}
}
