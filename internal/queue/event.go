// Package queue defines the messages exchanged between the purchase
// pipeline and its asynchronous workers, and the buses that carry them.
package queue

import "time"

// Message is anything that can travel over the bus. MessageType must be
// stable: it is written into the AMQP "type" property and used to route
// and decode deliveries.
type Message interface {
	MessageType() string
}

const (
	TypeProcessPayment   = "payment.process"
	TypeRefundPayment    = "payment.refund"
	TypeTicketReserved   = "ticket.reserved"
	TypeTicketPurchased  = "ticket.purchased"
	TypePaymentProcessed = "payment.processed"
	TypeTicketRefunded   = "ticket.refunded"
)

// ProcessPaymentCommand asks the payment worker to charge for one reserved
// ticket. Amount is in minor units.
type ProcessPaymentCommand struct {
	TicketID        string `json:"ticket_id"`
	PaymentMethodID string `json:"payment_method_id"`
	Amount          int64  `json:"amount"`
	Currency        string `json:"currency"`
}

func (ProcessPaymentCommand) MessageType() string { return TypeProcessPayment }

// RefundPaymentCommand asks the payment worker to refund a purchased
// ticket. Empty PaymentID and zero Amount mean "use the ticket's values".
type RefundPaymentCommand struct {
	TicketID  string `json:"ticket_id"`
	PaymentID string `json:"payment_id,omitempty"`
	Amount    int64  `json:"amount,omitempty"`
	Reason    string `json:"reason"`
}

func (RefundPaymentCommand) MessageType() string { return TypeRefundPayment }

// TicketReservedEvent is published for every ticket created by a purchase.
type TicketReservedEvent struct {
	TicketID     string    `json:"ticket_id"`
	EventID      string    `json:"event_id"`
	TicketTypeID string    `json:"ticket_type_id"`
	UserID       string    `json:"user_id"`
	PriceCents   int64     `json:"price_cents"`
	ReservedAt   time.Time `json:"reserved_at"`
}

func (TicketReservedEvent) MessageType() string { return TypeTicketReserved }

// TicketPurchasedEvent is published once payment for a ticket succeeded.
type TicketPurchasedEvent struct {
	TicketID    string    `json:"ticket_id"`
	EventID     string    `json:"event_id"`
	UserID      string    `json:"user_id"`
	PaymentID   string    `json:"payment_id"`
	PurchasedAt time.Time `json:"purchased_at"`
}

func (TicketPurchasedEvent) MessageType() string { return TypeTicketPurchased }

const (
	PaymentCompleted = "completed"
	PaymentFailed    = "failed"
)

// PaymentProcessedEvent reports the outcome of a charge, successful or not.
type PaymentProcessedEvent struct {
	TicketID    string    `json:"ticket_id"`
	EventID     string    `json:"event_id"`
	UserID      string    `json:"user_id"`
	PaymentID   string    `json:"payment_id,omitempty"`
	Status      string    `json:"status"`
	Message     string    `json:"message,omitempty"`
	Amount      int64     `json:"amount"`
	Currency    string    `json:"currency"`
	ProcessedAt time.Time `json:"processed_at"`
}

func (PaymentProcessedEvent) MessageType() string { return TypePaymentProcessed }

// TicketRefundedEvent is published after a successful refund.
type TicketRefundedEvent struct {
	TicketID   string    `json:"ticket_id"`
	EventID    string    `json:"event_id"`
	UserID     string    `json:"user_id"`
	PaymentID  string    `json:"payment_id"`
	Amount     int64     `json:"amount"`
	Reason     string    `json:"reason"`
	RefundedAt time.Time `json:"refunded_at"`
}

func (TicketRefundedEvent) MessageType() string { return TypeTicketRefunded }
