package app

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mikoajp/EventHub-sub001/internal/config"
	"github.com/mikoajp/EventHub-sub001/internal/model"
	"github.com/mikoajp/EventHub-sub001/internal/queue"
	"github.com/mikoajp/EventHub-sub001/internal/repository"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestRoutingFromConfig(t *testing.T) {
	r := Routing(config.MessengerConfig{
		FailedQueue: "dead",
		Payments:    config.RetryConfig{MaxRetries: 5, Delay: time.Second, Multiplier: 2},
		Async:       config.RetryConfig{MaxRetries: 3, Delay: time.Second},
	})
	pay := r.TransportFor(queue.TypeProcessPayment)
	assert.Equal(t, queue.TransportPayments, pay.Name)
	assert.Equal(t, 5, pay.Retry.MaxRetries)
	assert.Equal(t, queue.TransportAsync, r.TransportFor(queue.TypeTicketReserved).Name)
	assert.Equal(t, "dead", r.Failed().Queue)
}

func TestNewGatewayRejectsBadThreshold(t *testing.T) {
	_, err := NewGateway(config.PaymentConfig{DeclineAbove: "lots"})
	assert.Error(t, err)

	gw, err := NewGateway(config.PaymentConfig{BreakerThreshold: 3, BreakerCooldown: time.Second})
	require.NoError(t, err)
	assert.NotNil(t, gw)
}

type ticketMap map[string]*model.Ticket

func (m ticketMap) FindTicket(_ context.Context, id string) (*model.Ticket, error) {
	t, ok := m[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (m ticketMap) UpdateTicketStatus(_ context.Context, t *model.Ticket, from model.TicketStatus) error {
	if cur, ok := m[t.ID]; !ok || cur.Status != from {
		return repository.ErrStatusChanged
	}
	cp := *t
	m[t.ID] = &cp
	return nil
}

func TestSyncBusRunsPaymentHandlers(t *testing.T) {
	tickets := ticketMap{"t1": {ID: "t1", Status: model.TicketReserved, PriceCents: 1000}}
	cfg := config.Config{
		Messenger: config.MessengerConfig{Transport: "sync"},
		Payment:   config.PaymentConfig{Currency: "USD", BreakerThreshold: 3, BreakerCooldown: time.Second},
	}
	bus, closeBus, err := NewBus(cfg, tickets, nil, discard)
	require.NoError(t, err)
	defer closeBus()

	err = bus.DispatchCommand(context.Background(), queue.ProcessPaymentCommand{
		TicketID: "t1", PaymentMethodID: "pm_card_visa", Amount: 1000, Currency: "USD",
	})
	require.NoError(t, err)
	assert.Equal(t, model.TicketPurchased, tickets["t1"].Status)
}

func TestNewBusUnknownTransport(t *testing.T) {
	_, _, err := NewBus(config.Config{Messenger: config.MessengerConfig{Transport: "kafka"}}, ticketMap{}, nil, discard)
	assert.Error(t, err)
}
