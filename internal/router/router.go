// Package router registers the HTTP routes.
package router

import (
	"context"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mikoajp/EventHub-sub001/internal/handler"
	"github.com/mikoajp/EventHub-sub001/internal/middleware"
)

// RegisterRoutes registers the unauthenticated operational endpoints.
func RegisterRoutes(e *echo.Echo, ping func(context.Context) error) {
	e.GET("/healthz", handler.Health)
	e.GET("/readyz", handler.Ready(ping))
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
}

// RegisterPublic registers browse endpoints that need no token.
func RegisterPublic(e *echo.Echo, a *handler.AvailabilityHandler) {
	e.GET("/v1/events/:event_id/ticket-types/:id/availability", a.Get)
}

// RegisterCustomer registers the purchase endpoint. Any authenticated role
// may buy; limiter runs after JWTAuth so buckets are per user.
func RegisterCustomer(e *echo.Echo, p *handler.PurchaseHandler, jwtSecret string, limiter echo.MiddlewareFunc) {
	g := e.Group("/v1",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(middleware.RoleCustomer, middleware.RoleAdmin),
	)
	g.POST("/purchases", p.Create, limiter)
}

// RegisterAdmin registers ADMIN-only endpoints.
func RegisterAdmin(e *echo.Echo, r *handler.RefundHandler, jwtSecret string) {
	g := e.Group("/v1",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(middleware.RoleAdmin),
	)
	g.POST("/tickets/:id/refund", r.Create)
}
