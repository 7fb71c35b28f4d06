package queue

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetryStrategyNext(t *testing.T) {
	s := RetryStrategy{MaxRetries: 5, Delay: time.Second, Multiplier: 2, MaxDelay: 10 * time.Second}

	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 10 * time.Second}
	for i, w := range want {
		d, ok := s.Next(i)
		assert.True(t, ok, "retry %d", i)
		assert.Equal(t, w, d, "retry %d", i)
	}

	_, ok := s.Next(5)
	assert.False(t, ok)
}

func TestRetryStrategyZeroRetries(t *testing.T) {
	_, ok := RetryStrategy{}.Next(0)
	assert.False(t, ok)
}

func TestRetryStrategyUnboundedDelay(t *testing.T) {
	s := RetryStrategy{MaxRetries: 3, Delay: time.Second, Multiplier: 2}
	d, ok := s.Next(2)
	assert.True(t, ok)
	assert.Equal(t, 4*time.Second, d)
}

func TestRetryStrategyTiers(t *testing.T) {
	capped := RetryStrategy{MaxRetries: 5, Delay: time.Second, Multiplier: 2, MaxDelay: 3 * time.Second}
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 3 * time.Second}, capped.Tiers())

	flat := RetryStrategy{MaxRetries: 3, Delay: 1500 * time.Microsecond, Multiplier: 1}
	assert.Equal(t, []time.Duration{time.Millisecond}, flat.Tiers())

	assert.Empty(t, RetryStrategy{}.Tiers())
}

func TestRetryStrategyTier(t *testing.T) {
	s := RetryStrategy{MaxRetries: 5, Delay: time.Second, Multiplier: 2, MaxDelay: 3 * time.Second}

	assert.Equal(t, 2*time.Second, s.tier(2*time.Second))
	assert.Equal(t, 3*time.Second, s.tier(2500*time.Millisecond))
	assert.Equal(t, 3*time.Second, s.tier(time.Hour))
	assert.Equal(t, time.Second, s.tier(0))
}

func TestRetryQueuesPerTier(t *testing.T) {
	tr := Transport{Name: "payments", Queue: "payments",
		Retry: RetryStrategy{MaxRetries: 5, Delay: time.Second, Multiplier: 2, MaxDelay: 30 * time.Second}}

	// Every delay the consumer can ask for lands in a declared queue.
	declared := map[string]bool{}
	for _, d := range tr.Retry.Tiers() {
		declared[retryQueue(tr, d)] = true
	}
	for i := 0; i < tr.Retry.MaxRetries; i++ {
		d, ok := tr.retryDelay(errors.New("gateway timeout"), i)
		assert.True(t, ok)
		assert.True(t, declared[retryQueue(tr, d)], "retry %d after %s", i, d)
	}
	assert.Len(t, declared, 5)

	assert.Equal(t, "payments.retry.1000", retryQueue(tr, time.Second))
	assert.Equal(t, "payments.retry.16000", retryQueue(tr, 16*time.Second))

	args := retryQueueArgs(tr, 4*time.Second)
	assert.Equal(t, int64(4000), args["x-message-ttl"])
	assert.Equal(t, "payments", args["x-dead-letter-routing-key"])
	assert.Equal(t, "", args["x-dead-letter-exchange"])
}

func TestTransportRetryDelaySkipsUnrecoverable(t *testing.T) {
	tr := Transport{Name: "payments", Retry: RetryStrategy{MaxRetries: 5, Delay: time.Second, Multiplier: 2}}

	_, ok := tr.retryDelay(Unrecoverable(errors.New("ticket not found")), 0)
	assert.False(t, ok)

	d, ok := tr.retryDelay(errors.New("gateway timeout"), 1)
	assert.True(t, ok)
	assert.Equal(t, 2*time.Second, d)
}

func TestDefaultRouting(t *testing.T) {
	r := DefaultRouting(
		RetryStrategy{MaxRetries: 5, Delay: time.Second, Multiplier: 2, MaxDelay: 30 * time.Second},
		RetryStrategy{MaxRetries: 3, Delay: time.Second, Multiplier: 2},
		"",
	)

	assert.Equal(t, TransportPayments, r.TransportFor(TypeProcessPayment).Name)
	assert.Equal(t, TransportPayments, r.TransportFor(TypeRefundPayment).Name)
	assert.Equal(t, TransportAsync, r.TransportFor(TypeTicketReserved).Name)
	assert.Equal(t, TransportAsync, r.TransportFor("something.else").Name)
	assert.Equal(t, 5, r.TransportFor(TypeProcessPayment).Retry.MaxRetries)
	assert.Equal(t, "failed", r.Failed().Queue)

	names := []string{}
	for _, tr := range r.Transports() {
		names = append(names, tr.Name)
	}
	assert.Equal(t, []string{TransportAsync, TransportPayments}, names)
}

func TestUnrecoverable(t *testing.T) {
	base := errors.New("bad")
	err := Unrecoverable(base)

	assert.True(t, IsUnrecoverable(err))
	assert.ErrorIs(t, err, base)
	assert.Equal(t, "bad", err.Error())
	assert.Nil(t, Unrecoverable(nil))
	assert.False(t, IsUnrecoverable(base))
}
