package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/mikoajp/EventHub-sub001/internal/model"
)

type AvailabilityReader interface {
	Availability(ctx context.Context, eventID, ticketTypeID string) (*model.TicketType, error)
}

type AvailabilityHandler struct {
	inventory AvailabilityReader
	logger    *slog.Logger
}

func NewAvailabilityHandler(r AvailabilityReader, logger *slog.Logger) *AvailabilityHandler {
	return &AvailabilityHandler{inventory: r, logger: logger}
}

// Get handles GET /v1/events/:event_id/ticket-types/:id/availability. The
// figures are for display and may trail concurrent purchases.
func (h *AvailabilityHandler) Get(c echo.Context) error {
	tt, err := h.inventory.Availability(c.Request().Context(), c.Param("event_id"), c.Param("id"))
	if err != nil {
		return writeError(c, h.logger, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"ticket_type_id": tt.ID,
		"event_id":       tt.EventID,
		"name":           tt.Name,
		"price_cents":    tt.PriceCents,
		"total_quantity": tt.TotalQuantity,
		"sold":           tt.SoldOrReserved,
		"available":      tt.Available(),
	})
}
