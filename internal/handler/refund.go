package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/mikoajp/EventHub-sub001/internal/model"
	"github.com/mikoajp/EventHub-sub001/internal/queue"
	"github.com/mikoajp/EventHub-sub001/internal/repository"
	"github.com/mikoajp/EventHub-sub001/internal/service"
)

// RefundHandler queues refunds for purchased tickets. The payment worker
// performs the refund and the state change.
type RefundHandler struct {
	tickets repository.TicketRepository
	bus     queue.Bus
	logger  *slog.Logger
}

func NewRefundHandler(tickets repository.TicketRepository, bus queue.Bus, logger *slog.Logger) *RefundHandler {
	return &RefundHandler{tickets: tickets, bus: bus, logger: logger}
}

type refundRequest struct {
	Reason      string `json:"reason"`
	AmountCents int64  `json:"amount_cents"` // zero refunds the full price
}

// Create handles POST /v1/tickets/:id/refund and answers 202 once the
// command is queued.
func (h *RefundHandler) Create(c echo.Context) error {
	ticketID := c.Param("id")
	var body refundRequest
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if body.AmountCents < 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "amount_cents must not be negative"})
	}

	ctx := c.Request().Context()
	t, err := h.tickets.FindTicket(ctx, ticketID)
	if errors.Is(err, repository.ErrNotFound) {
		return writeError(c, h.logger, service.ErrTicketNotFound)
	}
	if err != nil {
		return writeError(c, h.logger, err)
	}
	if t.Status != model.TicketPurchased {
		return writeError(c, h.logger, &service.InvalidTicketStatusError{
			TicketID: t.ID, Status: t.Status, Expected: model.TicketPurchased,
		})
	}
	if body.AmountCents > t.PriceCents {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "amount_cents exceeds the ticket price"})
	}

	cmd := queue.RefundPaymentCommand{
		TicketID: t.ID,
		Amount:   body.AmountCents,
		Reason:   strings.TrimSpace(body.Reason),
	}
	if t.PaymentID != nil {
		cmd.PaymentID = *t.PaymentID
	}
	if err := h.bus.DispatchCommand(ctx, cmd); err != nil {
		return writeError(c, h.logger, err)
	}
	h.logger.Info("refund queued", "ticket_id", t.ID, "amount_cents", cmd.Amount)
	return c.JSON(http.StatusAccepted, echo.Map{"ticket_id": t.ID, "status": "refund_queued"})
}
