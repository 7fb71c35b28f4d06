package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAck struct {
	acked, nacked, requeued bool
}

func (a *fakeAck) Ack(uint64, bool) error {
	a.acked = true
	return nil
}

func (a *fakeAck) Nack(_ uint64, _ bool, requeue bool) error {
	a.nacked, a.requeued = true, requeue
	return nil
}
func (a *fakeAck) Reject(_ uint64, requeue bool) error {
	a.nacked, a.requeued = true, requeue
	return nil
}

type redelivery struct {
	retryCount int
	delay      time.Duration
	cause      error
}

type fakeRedeliverer struct {
	retries []redelivery
	dead    []redelivery
	err     error
}

func (f *fakeRedeliverer) Retry(_ context.Context, _ Transport, _ amqp.Delivery, n int, delay time.Duration) error {
	f.retries = append(f.retries, redelivery{retryCount: n, delay: delay})
	return f.err
}

func (f *fakeRedeliverer) DeadLetter(_ context.Context, _ Transport, _ amqp.Delivery, cause error, n int) error {
	f.dead = append(f.dead, redelivery{retryCount: n, cause: cause})
	return f.err
}

func newTestConsumer(r *Registry, red redeliverer) *Consumer {
	tr, _ := testRouting().Transport(TransportPayments)
	return &Consumer{
		routing:   testRouting(),
		transport: tr,
		registry:  r,
		redeliver: red,
		prefetch:  1,
		logger:    discardLogger(),
	}
}

func delivery(ack amqp.Acknowledger, retry int32) amqp.Delivery {
	return amqp.Delivery{
		Acknowledger: ack,
		Type:         TypeProcessPayment,
		Headers:      amqp.Table{headerRetryCount: retry},
		Body:         []byte(`{"ticket_id":"t1"}`),
	}
}

func TestConsumerAcksHandledMessage(t *testing.T) {
	r := NewRegistry()
	HandleCommand(r, func(context.Context, ProcessPaymentCommand) error { return nil })
	red := &fakeRedeliverer{}
	ack := &fakeAck{}

	newTestConsumer(r, red).handle(context.Background(), delivery(ack, 0))
	assert.True(t, ack.acked)
	assert.Empty(t, red.retries)
	assert.Empty(t, red.dead)
}

func TestConsumerSchedulesRetryWithBackoff(t *testing.T) {
	r := NewRegistry()
	HandleCommand(r, func(context.Context, ProcessPaymentCommand) error { return errors.New("timeout") })
	red := &fakeRedeliverer{}
	ack := &fakeAck{}

	newTestConsumer(r, red).handle(context.Background(), delivery(ack, 2))
	require.Len(t, red.retries, 1)
	assert.Equal(t, 3, red.retries[0].retryCount)
	assert.Equal(t, 4*time.Second, red.retries[0].delay)
	assert.True(t, ack.acked)
}

func TestConsumerDeadLettersExhaustedMessage(t *testing.T) {
	r := NewRegistry()
	HandleCommand(r, func(context.Context, ProcessPaymentCommand) error { return errors.New("timeout") })
	red := &fakeRedeliverer{}
	ack := &fakeAck{}

	newTestConsumer(r, red).handle(context.Background(), delivery(ack, 5))
	assert.Empty(t, red.retries)
	require.Len(t, red.dead, 1)
	assert.EqualError(t, red.dead[0].cause, "timeout")
	assert.True(t, ack.acked)
}

func TestConsumerDeadLettersUnrecoverable(t *testing.T) {
	r := NewRegistry()
	HandleCommand(r, func(context.Context, ProcessPaymentCommand) error {
		return Unrecoverable(errors.New("ticket not found"))
	})
	red := &fakeRedeliverer{}

	newTestConsumer(r, red).handle(context.Background(), delivery(&fakeAck{}, 0))
	assert.Empty(t, red.retries)
	assert.Len(t, red.dead, 1)
}

func TestConsumerRequeuesWhenRedeliveryFails(t *testing.T) {
	r := NewRegistry()
	HandleCommand(r, func(context.Context, ProcessPaymentCommand) error { return errors.New("timeout") })
	red := &fakeRedeliverer{err: errors.New("channel closed")}
	ack := &fakeAck{}

	newTestConsumer(r, red).handle(context.Background(), delivery(ack, 0))
	assert.False(t, ack.acked)
	assert.True(t, ack.nacked)
	assert.True(t, ack.requeued)
}

func TestRetryCountOf(t *testing.T) {
	assert.Equal(t, 0, retryCountOf(nil))
	assert.Equal(t, 3, retryCountOf(amqp.Table{headerRetryCount: int32(3)}))
	assert.Equal(t, 4, retryCountOf(amqp.Table{headerRetryCount: int64(4)}))
	assert.Equal(t, 2, retryCountOf(amqp.Table{headerRetryCount: "2"}))
}

func TestRepublishCopiesHeaders(t *testing.T) {
	d := amqp.Delivery{
		Type:    TypeTicketReserved,
		Headers: amqp.Table{headerRetryCount: int32(1), "trace": "abc"},
		Body:    []byte(`{}`),
	}
	pub := republish(d)
	pub.Headers[headerRetryCount] = int32(2)

	assert.Equal(t, int32(1), d.Headers[headerRetryCount])
	assert.Equal(t, "abc", pub.Headers["trace"])
	assert.Equal(t, amqp.Persistent, pub.DeliveryMode)
	assert.Equal(t, TypeTicketReserved, pub.Type)
}
