package idempotency

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mikoajp/EventHub-sub001/internal/metrics"
)

// Coordinator implements check / start / complete / fail on top of a Store.
// It keeps no state of its own; every decision is taken by the store.
type Coordinator struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

// NewCoordinator returns a coordinator backed by store.
func NewCoordinator(store Store, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{store: store, logger: logger, now: time.Now}
}

// WithClock replaces the time source. Used by tests.
func (c *Coordinator) WithClock(now func() time.Time) *Coordinator {
	c.now = now
	return c
}

// Check looks up the record for key. It returns the completed record when
// the command already ran, nil when the caller may proceed (no record, or a
// previous attempt failed) and ErrCommandAlreadyProcessing otherwise.
func (c *Coordinator) Check(ctx context.Context, key, commandType string) (*Record, error) {
	rec, err := c.store.Find(ctx, key, commandType)
	if errors.Is(err, ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("check idempotency key: %w", err)
	}

	switch rec.Status {
	case StatusProcessing:
		metrics.IdempotencyOutcomes.WithLabelValues(commandType, "processing").Inc()
		return nil, ErrCommandAlreadyProcessing
	case StatusCompleted:
		metrics.IdempotencyOutcomes.WithLabelValues(commandType, "replayed").Inc()
		return rec, nil
	default:
		return nil, nil
	}
}

// Start admits the caller by inserting a PROCESSING record. Losing the insert
// race yields ErrCommandAlreadyProcessing, unless the existing record is
// FAILED: then it is reclaimed, and only one concurrent reclaimer succeeds.
func (c *Coordinator) Start(ctx context.Context, key, commandType string) (*Record, error) {
	rec := &Record{
		Key:         key,
		CommandType: commandType,
		Status:      StatusProcessing,
		CreatedAt:   c.now().UTC(),
	}

	err := c.store.Insert(ctx, rec)
	if err == nil {
		metrics.IdempotencyOutcomes.WithLabelValues(commandType, "started").Inc()
		return rec, nil
	}
	if !errors.Is(err, ErrRecordExists) {
		return nil, fmt.Errorf("start idempotent command: %w", err)
	}

	ok, err := c.store.ReclaimFailed(ctx, key, commandType, rec.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("reclaim failed command: %w", err)
	}
	if !ok {
		metrics.IdempotencyOutcomes.WithLabelValues(commandType, "rejected").Inc()
		return nil, ErrCommandAlreadyProcessing
	}
	c.logger.Info("retrying previously failed command", "idempotency_key", key, "command_type", commandType)
	metrics.IdempotencyOutcomes.WithLabelValues(commandType, "reclaimed").Inc()
	return rec, nil
}

// MarkCompleted stores result and moves the record to COMPLETED.
func (c *Coordinator) MarkCompleted(ctx context.Context, rec *Record, result []byte) error {
	at := c.now().UTC()
	if err := c.store.Complete(ctx, rec.Key, rec.CommandType, result, at); err != nil {
		return fmt.Errorf("mark command completed: %w", err)
	}
	rec.Status = StatusCompleted
	rec.Result = result
	rec.CompletedAt = &at
	return nil
}

// MarkFailed records cause and moves the record to FAILED so that a later
// request with the same key may retry.
func (c *Coordinator) MarkFailed(ctx context.Context, rec *Record, cause error) error {
	msg := "unknown error"
	if cause != nil {
		msg = cause.Error()
	}
	at := c.now().UTC()
	if err := c.store.Fail(ctx, rec.Key, rec.CommandType, msg, at); err != nil {
		return fmt.Errorf("mark command failed: %w", err)
	}
	rec.Status = StatusFailed
	rec.Error = msg
	rec.CompletedAt = &at
	return nil
}
