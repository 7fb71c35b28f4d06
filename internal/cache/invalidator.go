package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/mikoajp/EventHub-sub001/internal/queue"
)

const scanBatch = 100

// Invalidator deletes cached entries affected by ticket state changes. A
// nil Redis client turns every call into a no-op.
type Invalidator struct {
	rdb    redis.Cmdable
	logger *slog.Logger
}

func NewInvalidator(rdb *redis.Client, logger *slog.Logger) *Invalidator {
	inv := &Invalidator{logger: logger}
	if rdb != nil {
		inv.rdb = rdb
	}
	return inv
}

// InvalidateEvent drops availability and stats entries of eventID.
func (i *Invalidator) InvalidateEvent(ctx context.Context, eventID string) error {
	if i.rdb == nil || eventID == "" {
		return nil
	}
	err := i.deletePattern(ctx, availabilityPattern(eventID))
	if derr := i.rdb.Del(ctx, EventStatsKey(eventID)).Err(); derr != nil {
		err = errors.Join(err, fmt.Errorf("del %s: %w", EventStatsKey(eventID), derr))
	}
	return err
}

// InvalidateUser drops the cached ticket lists of userID.
func (i *Invalidator) InvalidateUser(ctx context.Context, userID string) error {
	if i.rdb == nil || userID == "" {
		return nil
	}
	return i.deletePattern(ctx, userTicketsPattern(userID))
}

func (i *Invalidator) deletePattern(ctx context.Context, pattern string) error {
	var cursor uint64
	for {
		keys, next, err := i.rdb.Scan(ctx, cursor, pattern, scanBatch).Result()
		if err != nil {
			return fmt.Errorf("scan %s: %w", pattern, err)
		}
		if len(keys) > 0 {
			if err := i.rdb.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("del %s: %w", pattern, err)
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}

func (i *Invalidator) invalidate(ctx context.Context, eventID, userID string) error {
	err := errors.Join(i.InvalidateEvent(ctx, eventID), i.InvalidateUser(ctx, userID))
	if err != nil {
		i.logger.Warn("cache invalidation failed", "event_id", eventID, "user_id", userID, "err", err)
	}
	return err
}

// Register subscribes the invalidator to every event that changes how many
// tickets are available or who holds them.
func (i *Invalidator) Register(reg *queue.Registry) {
	queue.Subscribe(reg, func(ctx context.Context, ev queue.TicketReservedEvent) error {
		return i.invalidate(ctx, ev.EventID, ev.UserID)
	})
	queue.Subscribe(reg, func(ctx context.Context, ev queue.TicketPurchasedEvent) error {
		return i.invalidate(ctx, ev.EventID, ev.UserID)
	})
	queue.Subscribe(reg, func(ctx context.Context, ev queue.PaymentProcessedEvent) error {
		return i.invalidate(ctx, ev.EventID, ev.UserID)
	})
	queue.Subscribe(reg, func(ctx context.Context, ev queue.TicketRefundedEvent) error {
		return i.invalidate(ctx, ev.EventID, ev.UserID)
	})
}
