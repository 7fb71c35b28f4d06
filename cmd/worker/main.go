package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/mikoajp/EventHub-sub001/internal/app"
	"github.com/mikoajp/EventHub-sub001/internal/config"
	"github.com/mikoajp/EventHub-sub001/internal/database"
	"github.com/mikoajp/EventHub-sub001/internal/queue"
)

// The worker consumes every routable transport (payments and async). The
// failed queue is left for inspection.
func main() {
	cfg := config.Load()
	logger := config.NewLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backend, err := database.Connect(ctx, cfg.Database, logger)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer backend.Close()

	rdb := config.NewRedisClient(cfg.Redis)
	if rdb == nil {
		logger.Warn("redis unavailable, cache invalidation disabled", "addr", cfg.Redis.Addr)
	} else {
		defer rdb.Close()
	}

	gw, err := app.NewGateway(cfg.Payment)
	if err != nil {
		log.Fatal(err)
	}
	bus, err := queue.DialAMQP(cfg.Messenger.URL, app.Routing(cfg.Messenger), logger.With("component", "bus"))
	if err != nil {
		log.Fatalf("messenger: %v", err)
	}
	defer bus.Close()

	reg := queue.NewRegistry()
	app.Handlers(reg, backend.Tickets, gw, bus, rdb, logger)

	var wg sync.WaitGroup
	for _, t := range bus.Routing().Transports() {
		c := queue.NewConsumer(bus, reg, t, cfg.Messenger.Prefetch, logger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := c.Run(ctx); err != nil {
				logger.Error("consumer stopped", "transport", t.Name, "err", err)
			}
		}()
	}
	logger.Info("worker started", "env", cfg.Env, "db", cfg.Database.Driver)

	wg.Wait()
	logger.Info("worker stopped")
}
