package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/mikoajp/EventHub-sub001/internal/service"
)

// retryAfterSeconds is suggested to clients whose purchase is still
// processing under the same idempotency key.
const retryAfterSeconds = "1"

// writeError maps service errors onto the JSON error envelope.
func writeError(c echo.Context, logger *slog.Logger, err error) error {
	var (
		ref         *service.InvalidReferenceError
		unavailable *service.TicketNotAvailableError
		status      *service.InvalidTicketStatusError
	)
	switch {
	case errors.Is(err, service.ErrDuplicateRequest):
		c.Response().Header().Set("Retry-After", retryAfterSeconds)
		return c.JSON(http.StatusConflict, echo.Map{"error": err.Error()})
	case errors.As(err, &ref):
		return c.JSON(http.StatusNotFound, echo.Map{"error": err.Error(), "entity": ref.Entity, "id": ref.ID})
	case errors.Is(err, service.ErrTicketNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "ticket not found"})
	case errors.As(err, &unavailable):
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{
			"error":     "tickets not available",
			"requested": unavailable.Requested,
			"available": unavailable.Available,
		})
	case errors.Is(err, service.ErrEventNotPublished):
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": "event is not on sale"})
	case errors.As(err, &status):
		return c.JSON(http.StatusConflict, echo.Map{"error": err.Error(), "status": status.Status})
	case errors.Is(err, service.ErrInvalidQuantity):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	logger.Error("request failed", "method", c.Request().Method, "path", c.Path(), "err", err)
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
}
