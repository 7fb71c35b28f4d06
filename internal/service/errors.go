package service

import (
	"errors"
	"fmt"

	"github.com/mikoajp/EventHub-sub001/internal/model"
)

var (
	// ErrDuplicateRequest means another purchase with the same idempotency
	// key is in flight. The client should back off and retry with the
	// same key.
	ErrDuplicateRequest = errors.New("duplicate request: a purchase with this idempotency key is already processing")

	ErrEventNotPublished = errors.New("event is not published")
	ErrTicketNotFound    = errors.New("ticket not found")
	ErrInvalidQuantity   = errors.New("quantity must be at least 1")

	// ErrRefundDeclined is returned when the gateway answered a refund with
	// Success false.
	ErrRefundDeclined = errors.New("refund declined")
)

// InvalidReferenceError reports a purchase referring to an event, user or
// ticket type that does not exist (or, for a ticket type, that belongs to
// another event).
type InvalidReferenceError struct {
	Entity string
	ID     string
}

func (e *InvalidReferenceError) Error() string {
	return fmt.Sprintf("invalid %s reference %q", e.Entity, e.ID)
}

// TicketNotAvailableError reports the shortfall of a purchase.
type TicketNotAvailableError struct {
	TicketTypeID string
	Requested    int
	Available    int
}

func (e *TicketNotAvailableError) Error() string {
	return fmt.Sprintf("not enough tickets of type %s: requested %d, available %d",
		e.TicketTypeID, e.Requested, e.Available)
}

// InvalidTicketStatusError reports a transition attempted from the wrong
// state.
type InvalidTicketStatusError struct {
	TicketID string
	Status   model.TicketStatus
	Expected model.TicketStatus
}

func (e *InvalidTicketStatusError) Error() string {
	if e.Status == "" {
		return fmt.Sprintf("ticket %s is no longer %s", e.TicketID, e.Expected)
	}
	return fmt.Sprintf("ticket %s is %s, expected %s", e.TicketID, e.Status, e.Expected)
}
