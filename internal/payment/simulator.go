package payment

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mikoajp/EventHub-sub001/internal/config"
)

// ErrGatewayUnavailable is the transport fault the simulator returns for
// payment methods configured to fail.
var ErrGatewayUnavailable = errors.New("payment gateway unavailable")

// Simulator is a deterministic Gateway. It declines configured payment
// methods and amounts above a threshold, fails configured methods with
// ErrGatewayUnavailable and approves everything else. Answers are
// remembered per idempotency key, so a repeated request is not charged or
// refunded twice.
type Simulator struct {
	decline      map[string]bool
	fail         map[string]bool
	declineAbove *decimal.Decimal
	newID        func() string

	mu      sync.Mutex
	answers map[string]Result
}

var _ Gateway = (*Simulator)(nil)

// NewSimulator builds a simulator from cfg.
func NewSimulator(cfg config.PaymentConfig) (*Simulator, error) {
	s := &Simulator{
		decline: make(map[string]bool),
		fail:    make(map[string]bool),
		answers: make(map[string]Result),
		newID:   func() string { return "pay_" + uuid.NewString() },
	}
	for _, m := range cfg.DeclineMethods {
		s.decline[m] = true
	}
	for _, m := range cfg.FailMethods {
		s.fail[m] = true
	}
	if cfg.DeclineAbove != "" {
		limit, err := decimal.NewFromString(cfg.DeclineAbove)
		if err != nil {
			return nil, fmt.Errorf("parse decline threshold %q: %w", cfg.DeclineAbove, err)
		}
		s.declineAbove = &limit
	}
	return s, nil
}

func (s *Simulator) Charge(ctx context.Context, req ChargeRequest) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	if s.fail[req.PaymentMethodID] {
		return Result{}, ErrGatewayUnavailable
	}
	return s.answer("charge:"+req.IdempotencyKey, req.IdempotencyKey != "", func() Result {
		switch {
		case s.decline[req.PaymentMethodID]:
			return Result{Message: "card declined"}
		case !req.Amount.IsPositive():
			return Result{Message: "invalid amount"}
		case s.declineAbove != nil && req.Amount.GreaterThan(*s.declineAbove):
			return Result{Message: fmt.Sprintf("amount %s %s exceeds limit", req.Amount.StringFixed(2), req.Currency)}
		}
		return Result{Success: true, PaymentID: s.newID(), Message: "approved"}
	}), nil
}

func (s *Simulator) Refund(ctx context.Context, req RefundRequest) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	return s.answer("refund:"+req.IdempotencyKey, req.IdempotencyKey != "", func() Result {
		if req.PaymentID == "" {
			return Result{Message: "missing payment id"}
		}
		return Result{Success: true, PaymentID: req.PaymentID, Message: "refunded"}
	}), nil
}

// answer returns the stored result for key, or computes and stores it.
func (s *Simulator) answer(key string, remember bool, compute func() Result) Result {
	if !remember {
		return compute()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if res, ok := s.answers[key]; ok {
		return res
	}
	res := compute()
	s.answers[key] = res
	return res
}
