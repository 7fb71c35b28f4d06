// Package app assembles the components shared by the server and worker
// binaries.
package app

import (
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/mikoajp/EventHub-sub001/internal/cache"
	"github.com/mikoajp/EventHub-sub001/internal/config"
	"github.com/mikoajp/EventHub-sub001/internal/payment"
	"github.com/mikoajp/EventHub-sub001/internal/queue"
	"github.com/mikoajp/EventHub-sub001/internal/repository"
	"github.com/mikoajp/EventHub-sub001/internal/service"
)

func retryStrategy(c config.RetryConfig) queue.RetryStrategy {
	return queue.RetryStrategy{
		MaxRetries: c.MaxRetries,
		Delay:      c.Delay,
		Multiplier: c.Multiplier,
		MaxDelay:   c.MaxDelay,
	}
}

// Routing builds the transport table from configuration.
func Routing(c config.MessengerConfig) *queue.Routing {
	return queue.DefaultRouting(retryStrategy(c.Payments), retryStrategy(c.Async), c.FailedQueue)
}

// NewGateway returns the simulated gateway behind a circuit breaker.
func NewGateway(c config.PaymentConfig) (payment.Gateway, error) {
	sim, err := payment.NewSimulator(c)
	if err != nil {
		return nil, fmt.Errorf("payment simulator: %w", err)
	}
	return payment.NewBreaker(sim, c.BreakerThreshold, c.BreakerCooldown), nil
}

// Handlers installs every message handler on reg: the payment commands and
// the cache invalidation subscribers. bus is where handlers publish
// follow-up events.
func Handlers(reg *queue.Registry, tickets repository.TicketRepository, gw payment.Gateway, bus queue.Bus, rdb *redis.Client, logger *slog.Logger) {
	service.NewPaymentService(tickets, gw, bus, logger.With("component", "payments")).Register(reg)
	cache.NewInvalidator(rdb, logger.With("component", "cache")).Register(reg)
}

// NewBus returns the bus selected by MESSENGER_TRANSPORT. With "sync" the
// handlers run in-process and reg is populated here; with "amqp" messages
// go to RabbitMQ and the worker handles them. The returned close func
// releases the broker connection.
func NewBus(cfg config.Config, tickets repository.TicketRepository, rdb *redis.Client, logger *slog.Logger) (queue.Bus, func(), error) {
	routing := Routing(cfg.Messenger)
	switch cfg.Messenger.Transport {
	case "sync":
		gw, err := NewGateway(cfg.Payment)
		if err != nil {
			return nil, nil, err
		}
		reg := queue.NewRegistry()
		bus := queue.NewSyncBus(reg, routing, logger.With("component", "bus"))
		Handlers(reg, tickets, gw, bus, rdb, logger)
		return bus, func() {}, nil
	case "amqp", "":
		bus, err := queue.DialAMQP(cfg.Messenger.URL, routing, logger.With("component", "bus"))
		if err != nil {
			return nil, nil, err
		}
		return bus, func() {
			if err := bus.Close(); err != nil {
				logger.Warn("failed to close broker connection", "err", err)
			}
		}, nil
	default:
		return nil, nil, fmt.Errorf("unknown messenger transport %q", cfg.Messenger.Transport)
	}
}
