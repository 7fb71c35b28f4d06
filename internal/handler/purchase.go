package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/mikoajp/EventHub-sub001/internal/middleware"
	"github.com/mikoajp/EventHub-sub001/internal/service"
)

// maxIdempotencyKeyLen keeps "<user id>:<key>" within the 255 wide
// idempotency_key column for user ids up to 64 characters.
const maxIdempotencyKeyLen = 190

type Purchaser interface {
	Purchase(ctx context.Context, cmd service.PurchaseCommand) ([]string, error)
}

type PurchaseHandler struct {
	purchases Purchaser
	logger    *slog.Logger
}

func NewPurchaseHandler(p Purchaser, logger *slog.Logger) *PurchaseHandler {
	return &PurchaseHandler{purchases: p, logger: logger}
}

type purchaseRequest struct {
	EventID         string `json:"event_id"`
	TicketTypeID    string `json:"ticket_type_id"`
	Quantity        int    `json:"quantity"`
	PaymentMethodID string `json:"payment_method_id"`
}

// Create handles POST /v1/purchases. The optional Idempotency-Key header
// makes retries safe; a retried request gets the original ticket ids.
func (h *PurchaseHandler) Create(c echo.Context) error {
	userID, ok := middleware.UserID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var body purchaseRequest
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	body.EventID = strings.TrimSpace(body.EventID)
	body.TicketTypeID = strings.TrimSpace(body.TicketTypeID)
	body.PaymentMethodID = strings.TrimSpace(body.PaymentMethodID)
	switch {
	case body.EventID == "", body.TicketTypeID == "", body.PaymentMethodID == "":
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "event_id, ticket_type_id and payment_method_id are required"})
	case body.Quantity < 1:
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "quantity must be at least 1"})
	}
	key := strings.TrimSpace(c.Request().Header.Get("Idempotency-Key"))
	if len(key) > maxIdempotencyKeyLen {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Idempotency-Key is too long"})
	}

	ids, err := h.purchases.Purchase(c.Request().Context(), service.PurchaseCommand{
		EventID:         body.EventID,
		TicketTypeID:    body.TicketTypeID,
		Quantity:        body.Quantity,
		UserID:          userID,
		PaymentMethodID: body.PaymentMethodID,
		IdempotencyKey:  key,
	})
	if err != nil {
		return writeError(c, h.logger, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"ticket_ids": ids})
}
