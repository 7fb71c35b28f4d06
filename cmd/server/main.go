package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/mikoajp/EventHub-sub001/internal/app"
	"github.com/mikoajp/EventHub-sub001/internal/cache"
	"github.com/mikoajp/EventHub-sub001/internal/config"
	"github.com/mikoajp/EventHub-sub001/internal/database"
	"github.com/mikoajp/EventHub-sub001/internal/handler"
	"github.com/mikoajp/EventHub-sub001/internal/idempotency"
	"github.com/mikoajp/EventHub-sub001/internal/middleware"
	"github.com/mikoajp/EventHub-sub001/internal/router"
	"github.com/mikoajp/EventHub-sub001/internal/service"
)

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
		logger.Warn("redis unavailable, caching and rate limiting disabled", "addr", cfg.Redis.Addr)
	} else {
		defer rdb.Close()
	}

	bus, closeBus, err := app.NewBus(cfg, backend.Tickets, rdb, logger)
	if err != nil {
		log.Fatalf("messenger: %v", err)
	}
	defer closeBus()

	idem := idempotency.NewCoordinator(backend.Idempotency, logger.With("component", "idempotency"))
	purchases := service.NewPurchaseService(backend.Tickets, idem, bus, cfg.Payment.Currency, logger.With("component", "purchase"))

	var availability *cache.AvailabilityCache
	if cfg.Cache.Enabled {
		availability = cache.NewAvailabilityCache(rdb, cfg.Cache.AvailabilityTTL, logger)
	}
	inventory := service.NewInventoryService(backend.Tickets, availability)

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(middleware.Metrics())

	router.RegisterRoutes(e, backend.Ping)
	router.RegisterPublic(e, handler.NewAvailabilityHandler(inventory, logger))
	router.RegisterCustomer(e, handler.NewPurchaseHandler(purchases, logger), cfg.JWTSecret,
		middleware.NewTokenBucket(cfg.RateLimit, rdb, logger))
	router.RegisterAdmin(e, handler.NewRefundHandler(backend.Tickets, bus, logger), cfg.JWTSecret)

	addr := ":" + cfg.Port
	go func() {
		logger.Info("listening", "addr", addr, "env", cfg.Env, "db", cfg.Database.Driver, "transport", cfg.Messenger.Transport)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http: %v", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", "err", err)
	}
	logger.Info("server stopped")
}
