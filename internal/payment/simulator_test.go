package payment

import (
	"context"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mikoajp/EventHub-sub001/internal/config"
)

func newTestSimulator(t *testing.T, above string) *Simulator {
	t.Helper()
	s, err := NewSimulator(config.PaymentConfig{
		DeclineMethods: []string{"pm_card_declined"},
		FailMethods:    []string{"pm_gateway_down"},
		DeclineAbove:   above,
	})
	require.NoError(t, err)
	s.newID = func() string { return "pay_fixed" }
	return s
}

func TestSimulatorCharge(t *testing.T) {
	s := newTestSimulator(t, "500")
	ctx := context.Background()

	tests := []struct {
		name    string
		method  string
		amount  decimal.Decimal
		success bool
		err     error
	}{
		{"approved", "pm_visa", FromMinor(4999), true, nil},
		{"declined method", "pm_card_declined", FromMinor(100), false, nil},
		{"transport fault", "pm_gateway_down", FromMinor(100), false, ErrGatewayUnavailable},
		{"over limit", "pm_visa", FromMinor(50001), false, nil},
		{"at limit", "pm_visa", FromMinor(50000), true, nil},
		{"zero amount", "pm_visa", decimal.Zero, false, nil},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res, err := s.Charge(ctx, ChargeRequest{PaymentMethodID: tc.method, Amount: tc.amount, Currency: "USD"})
			if tc.err != nil {
				assert.ErrorIs(t, err, tc.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.success, res.Success)
			if tc.success {
				assert.Equal(t, "pay_fixed", res.PaymentID)
			} else {
				assert.NotEmpty(t, res.Message)
			}
		})
	}
}

func TestSimulatorRefund(t *testing.T) {
	s := newTestSimulator(t, "")

	res, err := s.Refund(context.Background(), RefundRequest{PaymentID: "pay_1", Amount: FromMinor(100)})
	require.NoError(t, err)
	assert.True(t, res.Success)

	res, err = s.Refund(context.Background(), RefundRequest{})
	require.NoError(t, err)
	assert.False(t, res.Success)
}

func TestSimulatorReplaysIdempotencyKeys(t *testing.T) {
	s := newTestSimulator(t, "")
	ids := 0
	s.newID = func() string { ids++; return fmt.Sprintf("pay_%d", ids) }
	ctx := context.Background()

	charge := ChargeRequest{PaymentMethodID: "pm_visa", Amount: FromMinor(100), IdempotencyKey: "ticket:t1"}
	first, err := s.Charge(ctx, charge)
	require.NoError(t, err)
	again, err := s.Charge(ctx, charge)
	require.NoError(t, err)
	assert.Equal(t, first, again)
	assert.Equal(t, 1, ids)

	other, err := s.Charge(ctx, ChargeRequest{PaymentMethodID: "pm_visa", Amount: FromMinor(100), IdempotencyKey: "ticket:t2"})
	require.NoError(t, err)
	assert.Equal(t, "pay_2", other.PaymentID)

	refund := RefundRequest{PaymentID: first.PaymentID, Amount: FromMinor(100), IdempotencyKey: "refund:t1"}
	r1, err := s.Refund(ctx, refund)
	require.NoError(t, err)
	r2, err := s.Refund(ctx, refund)
	require.NoError(t, err)
	assert.Equal(t, r1, r2)
	assert.True(t, r2.Success)

	// Faults are not remembered: the gateway never answered.
	_, err = s.Charge(ctx, ChargeRequest{PaymentMethodID: "pm_gateway_down", Amount: FromMinor(100), IdempotencyKey: "ticket:t3"})
	assert.ErrorIs(t, err, ErrGatewayUnavailable)
}

func TestSimulatorRejectsBadThreshold(t *testing.T) {
	_, err := NewSimulator(config.PaymentConfig{DeclineAbove: "lots"})
	assert.Error(t, err)
}

func TestFromMinor(t *testing.T) {
	assert.Equal(t, "12.34", FromMinor(1234).StringFixed(2))
}
