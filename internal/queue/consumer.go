package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/mikoajp/EventHub-sub001/internal/metrics"
)

// redeliverer moves a failed delivery to the retry queue or the failed
// transport. *AMQPBus implements it.
type redeliverer interface {
	Retry(ctx context.Context, t Transport, d amqp.Delivery, retryCount int, delay time.Duration) error
	DeadLetter(ctx context.Context, t Transport, d amqp.Delivery, cause error, retryCount int) error
}

// Consumer drains one transport queue and runs the registered handlers.
type Consumer struct {
	url       string
	routing   *Routing
	transport Transport
	registry  *Registry
	redeliver redeliverer
	prefetch  int
	logger    *slog.Logger
}

// NewConsumer returns a consumer for transport, sharing the bus's broker
// and routing.
func NewConsumer(bus *AMQPBus, registry *Registry, transport Transport, prefetch int, logger *slog.Logger) *Consumer {
	if prefetch <= 0 {
		prefetch = 50
	}
	return &Consumer{
		url:       bus.url,
		routing:   bus.routing,
		transport: transport,
		registry:  registry,
		redeliver: bus,
		prefetch:  prefetch,
		logger:    logger.With("transport", transport.Name),
	}
}

// Run connects to the broker and consumes until ctx is cancelled. Broker
// failures are retried with backoff; Run only returns when ctx is done.
func (c *Consumer) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return nil
		}
		conn, err := amqp.Dial(c.url)
		if err != nil {
			c.logger.Warn("failed to dial broker", "err", err, "retry_in", backoff)
			if sleepCtx(ctx, backoff) != nil {
				return nil
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second // reset after successful connect

		err = c.consumeLoop(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return nil
		}
		c.logger.Warn("consume loop ended, reconnecting", "err", err)
		if sleepCtx(ctx, 2*time.Second) != nil {
			return nil
		}
	}
}

func (c *Consumer) consumeLoop(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		c.logger.Warn("set QoS failed", "err", err)
	}
	if err := declareTopology(ch, c.routing); err != nil {
		return err
	}

	msgs, err := ch.Consume(c.transport.Queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}
	c.logger.Info("consuming", "queue", c.transport.Queue)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			c.handle(ctx, d)
		}
	}
}

// handle runs the handlers for d and settles it. A failed message is acked
// only after its retry or dead-letter copy was published; if that publish
// fails the original is requeued.
func (c *Consumer) handle(ctx context.Context, d amqp.Delivery) {
	typ := d.Type
	retryCount := retryCountOf(d.Headers)
	log := c.logger.With("type", typ, "message_id", d.MessageId, "retry", retryCount)

	err := c.registry.Deliver(ctx, typ, d.Body)
	if err == nil {
		metrics.QueueMessages.WithLabelValues(c.transport.Name, typ, "handled").Inc()
		_ = d.Ack(false)
		return
	}

	var perr error
	if delay, ok := c.transport.retryDelay(err, retryCount); ok {
		log.Warn("message handler failed, scheduling retry", "delay", delay, "err", err)
		metrics.QueueMessages.WithLabelValues(c.transport.Name, typ, "retried").Inc()
		perr = c.redeliver.Retry(ctx, c.transport, d, retryCount+1, delay)
	} else {
		log.Error("message dead-lettered", "err", err)
		metrics.QueueMessages.WithLabelValues(c.transport.Name, typ, "dead_lettered").Inc()
		perr = c.redeliver.DeadLetter(ctx, c.transport, d, err, retryCount)
	}
	if perr != nil {
		log.Error("redelivery publish failed, requeueing", "err", perr)
		_ = d.Nack(false, true)
		return
	}
	_ = d.Ack(false)
}
