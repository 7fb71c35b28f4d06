package payment

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned without calling the gateway while the breaker
// is open. Nothing was charged, so callers keep the ticket reserved and let
// the transport retry after its backoff.
var ErrCircuitOpen = errors.New("payment gateway circuit open")

type breakerState int

const (
	stateClosed breakerState = iota
	stateHalfOpen
	stateOpen
)

// Breaker wraps a Gateway and stops calling it after Threshold consecutive
// errors. After Cooldown one probe request is let through; its outcome
// closes or reopens the circuit. Declines are successful calls.
type Breaker struct {
	next      Gateway
	threshold int
	cooldown  time.Duration
	now       func() time.Time

	mu       sync.Mutex
	state    breakerState
	failures int
	openedAt time.Time
	probing  bool
}

var _ Gateway = (*Breaker)(nil)

func NewBreaker(next Gateway, threshold int, cooldown time.Duration) *Breaker {
	if threshold < 1 {
		threshold = 1
	}
	return &Breaker{next: next, threshold: threshold, cooldown: cooldown, now: time.Now}
}

func (b *Breaker) Charge(ctx context.Context, req ChargeRequest) (Result, error) {
	if err := b.before(); err != nil {
		return Result{}, err
	}
	res, err := b.next.Charge(ctx, req)
	b.after(err)
	return res, err
}

func (b *Breaker) Refund(ctx context.Context, req RefundRequest) (Result, error) {
	if err := b.before(); err != nil {
		return Result{}, err
	}
	res, err := b.next.Refund(ctx, req)
	b.after(err)
	return res, err
}

func (b *Breaker) before() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == stateOpen && b.now().Sub(b.openedAt) >= b.cooldown {
		b.state = stateHalfOpen
	}
	switch b.state {
	case stateOpen:
		return ErrCircuitOpen
	case stateHalfOpen:
		if b.probing {
			return ErrCircuitOpen
		}
		b.probing = true
	}
	return nil
}

func (b *Breaker) after(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.probing = false
	if err == nil {
		b.state = stateClosed
		b.failures = 0
		return
	}
	b.failures++
	if b.state == stateHalfOpen || b.failures >= b.threshold {
		b.state = stateOpen
		b.openedAt = b.now()
	}
}
