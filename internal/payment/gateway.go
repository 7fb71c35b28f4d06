// Package payment defines the gateway the payment worker charges through,
// a simulator for development and a circuit breaker for real gateways.
package payment

import (
	"context"

	"github.com/shopspring/decimal"
)

// ChargeRequest asks the gateway to capture Amount (major units) from a
// stored payment method.
type ChargeRequest struct {
	PaymentMethodID string            `json:"payment_method_id"`
	Amount          decimal.Decimal   `json:"amount"`
	Currency        string            `json:"currency"`
	IdempotencyKey  string            `json:"idempotency_key"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

// RefundRequest asks the gateway to return Amount of an earlier charge.
// Requests repeating an IdempotencyKey get the first answer back.
type RefundRequest struct {
	PaymentID      string          `json:"payment_id"`
	Amount         decimal.Decimal `json:"amount"`
	Reason         string          `json:"reason"`
	IdempotencyKey string          `json:"idempotency_key"`
}

// Result is the gateway's answer. A decline is a Result with Success false;
// errors are reserved for faults where the outcome is unknown.
type Result struct {
	Success   bool
	PaymentID string
	Message   string
}

// Gateway charges and refunds payments.
type Gateway interface {
	Charge(ctx context.Context, req ChargeRequest) (Result, error)
	Refund(ctx context.Context, req RefundRequest) (Result, error)
}

// FromMinor converts an amount in cents to major units.
func FromMinor(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}
