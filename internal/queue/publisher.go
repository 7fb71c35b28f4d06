package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/mikoajp/EventHub-sub001/internal/metrics"
)

const (
	headerRetryCount = "x-retry-count"
	headerError      = "x-error"
	headerTransport  = "x-original-transport"
)

// AMQPBus publishes messages to RabbitMQ through the default exchange, one
// durable queue per transport. Each backoff tier of a transport gets a
// "<queue>.retry.<ms>" queue without consumers. Its queue-level TTL expires
// messages in arrival order, so a short retry never waits behind a long one,
// and expired messages are dead-lettered back into the transport queue.
type AMQPBus struct {
	url     string
	routing *Routing
	logger  *slog.Logger

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

var _ Bus = (*AMQPBus)(nil)

// DialAMQP connects to the broker and declares the queue topology.
func DialAMQP(url string, routing *Routing, logger *slog.Logger) (*AMQPBus, error) {
	b := &AMQPBus{url: url, routing: routing, logger: logger}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, err := b.channel(); err != nil {
		return nil, err
	}
	return b, nil
}

// Routing returns the routing table the bus publishes with.
func (b *AMQPBus) Routing() *Routing { return b.routing }

// channel returns the publishing channel, reconnecting when the broker
// dropped it. Callers hold b.mu.
func (b *AMQPBus) channel() (*amqp.Channel, error) {
	if b.ch != nil && !b.ch.IsClosed() {
		return b.ch, nil
	}
	if b.conn == nil || b.conn.IsClosed() {
		conn, err := amqp.Dial(b.url)
		if err != nil {
			return nil, fmt.Errorf("rabbitmq dial: %w", err)
		}
		b.conn = conn
	}
	ch, err := b.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("rabbitmq channel: %w", err)
	}
	if err := declareTopology(ch, b.routing); err != nil {
		_ = ch.Close()
		return nil, err
	}
	b.ch = ch
	return ch, nil
}

// declareTopology is idempotent; consumers call it too.
func declareTopology(ch *amqp.Channel, routing *Routing) error {
	for _, t := range routing.Transports() {
		if _, err := ch.QueueDeclare(t.Queue, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare queue %s: %w", t.Queue, err)
		}
		for _, delay := range t.Retry.Tiers() {
			name := retryQueue(t, delay)
			if _, err := ch.QueueDeclare(name, true, false, false, false, retryQueueArgs(t, delay)); err != nil {
				return fmt.Errorf("declare queue %s: %w", name, err)
			}
		}
	}
	failed := routing.Failed()
	if _, err := ch.QueueDeclare(failed.Queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue %s: %w", failed.Queue, err)
	}
	return nil
}

// retryQueue names the tier queue that holds a retry of t for delay.
func retryQueue(t Transport, delay time.Duration) string {
	return fmt.Sprintf("%s.retry.%d", t.Queue, t.Retry.tier(delay).Milliseconds())
}

func retryQueueArgs(t Transport, delay time.Duration) amqp.Table {
	return amqp.Table{
		"x-message-ttl":             t.Retry.tier(delay).Milliseconds(),
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": t.Queue,
	}
}

func (b *AMQPBus) DispatchCommand(ctx context.Context, cmd Message) error {
	return b.publishMessage(ctx, cmd)
}

func (b *AMQPBus) PublishEvent(ctx context.Context, ev Message) error {
	return b.publishMessage(ctx, ev)
}

func (b *AMQPBus) publishMessage(ctx context.Context, msg Message) error {
	typ := msg.MessageType()
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode %s: %w", typ, err)
	}
	t := b.routing.TransportFor(typ)
	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		Type:         typ,
		Timestamp:    time.Now().UTC(),
		Headers:      amqp.Table{headerRetryCount: int32(0)},
		Body:         body,
	}
	if err := b.publish(ctx, t.Queue, pub); err != nil {
		return fmt.Errorf("publish %s to %s: %w", typ, t.Name, err)
	}
	metrics.QueueMessages.WithLabelValues(t.Name, typ, "published").Inc()
	return nil
}

// Retry schedules d for redelivery on t after delay. The message waits in
// the tier queue for delay until the queue TTL expires it.
func (b *AMQPBus) Retry(ctx context.Context, t Transport, d amqp.Delivery, retryCount int, delay time.Duration) error {
	pub := republish(d)
	pub.Headers[headerRetryCount] = int32(retryCount)
	return b.publish(ctx, retryQueue(t, delay), pub)
}

// DeadLetter moves d to the failed transport, recording why.
func (b *AMQPBus) DeadLetter(ctx context.Context, t Transport, d amqp.Delivery, cause error, retryCount int) error {
	pub := republish(d)
	pub.Headers[headerRetryCount] = int32(retryCount)
	pub.Headers[headerError] = cause.Error()
	pub.Headers[headerTransport] = t.Name
	return b.publish(ctx, b.routing.Failed().Queue, pub)
}

func republish(d amqp.Delivery) amqp.Publishing {
	headers := amqp.Table{}
	for k, v := range d.Headers {
		headers[k] = v
	}
	return amqp.Publishing{
		ContentType:  d.ContentType,
		DeliveryMode: amqp.Persistent,
		MessageId:    d.MessageId,
		Type:         d.Type,
		Timestamp:    d.Timestamp,
		Headers:      headers,
		Body:         d.Body,
	}
}

func (b *AMQPBus) publish(ctx context.Context, queue string, pub amqp.Publishing) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch, err := b.channel()
	if err != nil {
		return err
	}
	if err := ch.PublishWithContext(ctx, "", queue, false, false, pub); err != nil {
		// force a fresh channel on the next publish
		_ = ch.Close()
		b.ch = nil
		return err
	}
	return nil
}

// Close releases the broker connection.
func (b *AMQPBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	var errs []error
	if b.ch != nil {
		errs = append(errs, b.ch.Close())
		b.ch = nil
	}
	if b.conn != nil {
		errs = append(errs, b.conn.Close())
		b.conn = nil
	}
	return errors.Join(errs...)
}

// retryCountOf reads the retry header. AMQP tables decode integers into
// whichever width the publisher used.
func retryCountOf(h amqp.Table) int {
	switch v := h[headerRetryCount].(type) {
	case int:
		return v
	case int8:
		return int(v)
	case int16:
		return int(v)
	case int32:
		return int(v)
	case int64:
		return int(v)
	case uint8:
		return int(v)
	case uint16:
		return int(v)
	case uint32:
		return int(v)
	case string:
		n, _ := strconv.Atoi(v)
		return n
	}
	return 0
}
