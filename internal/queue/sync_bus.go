package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mikoajp/EventHub-sub001/internal/metrics"
)

// SyncBus handles messages in the calling goroutine. It applies the same
// retry and dead-letter rules as the AMQP transport, which makes it the
// bus of choice for tests and single-process development.
type SyncBus struct {
	registry *Registry
	routing  *Routing
	logger   *slog.Logger
	sleep    func(ctx context.Context, d time.Duration) error

	mu   sync.Mutex
	dead []DeadLetter
}

var _ Bus = (*SyncBus)(nil)

func NewSyncBus(registry *Registry, routing *Routing, logger *slog.Logger) *SyncBus {
	return &SyncBus{
		registry: registry,
		routing:  routing,
		logger:   logger,
		sleep:    sleepCtx,
	}
}

// WithoutDelay disables retry backoff. Used by tests.
func (b *SyncBus) WithoutDelay() *SyncBus {
	b.sleep = func(context.Context, time.Duration) error { return nil }
	return b
}

// DeadLetters returns the messages dead-lettered so far.
func (b *SyncBus) DeadLetters() []DeadLetter {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]DeadLetter(nil), b.dead...)
}

func (b *SyncBus) DispatchCommand(ctx context.Context, cmd Message) error {
	if !b.registry.Has(cmd.MessageType()) {
		return fmt.Errorf("dispatch %s: no handler registered", cmd.MessageType())
	}
	return b.send(ctx, cmd)
}

func (b *SyncBus) PublishEvent(ctx context.Context, ev Message) error {
	if !b.registry.Has(ev.MessageType()) {
		return nil
	}
	return b.send(ctx, ev)
}

// send returns nil once the message is handled or dead-lettered; only
// encoding failures and cancellation surface to the caller.
func (b *SyncBus) send(ctx context.Context, msg Message) error {
	typ := msg.MessageType()
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode %s: %w", typ, err)
	}
	t := b.routing.TransportFor(typ)

	for retry := 0; ; retry++ {
		err := b.registry.Deliver(ctx, typ, body)
		if err == nil {
			metrics.QueueMessages.WithLabelValues(t.Name, typ, "handled").Inc()
			return nil
		}
		delay, ok := t.retryDelay(err, retry)
		if !ok {
			b.deadLetter(DeadLetter{Type: typ, Body: body, Transport: t.Name, RetryCount: retry, Err: err})
			return nil
		}
		metrics.QueueMessages.WithLabelValues(t.Name, typ, "retried").Inc()
		b.logger.Warn("message handler failed, retrying",
			"type", typ, "transport", t.Name, "retry", retry+1, "delay", delay, "err", err)
		if err := b.sleep(ctx, delay); err != nil {
			return fmt.Errorf("retry %s: %w", typ, err)
		}
	}
}

func (b *SyncBus) deadLetter(dl DeadLetter) {
	metrics.QueueMessages.WithLabelValues(dl.Transport, dl.Type, "dead_lettered").Inc()
	b.logger.Error("message dead-lettered",
		"type", dl.Type, "transport", dl.Transport, "retries", dl.RetryCount, "err", dl.Err)
	b.mu.Lock()
	b.dead = append(b.dead, dl)
	b.mu.Unlock()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
