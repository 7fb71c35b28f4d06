package model

import "time"

// TicketStatus is the lifecycle state stored in tickets.status.
type TicketStatus string

const (
	TicketReserved  TicketStatus = "RESERVED"  // held while payment is pending
	TicketPurchased TicketStatus = "PURCHASED" // payment captured
	TicketCancelled TicketStatus = "CANCELLED" // payment declined or failed
	TicketRefunded  TicketStatus = "REFUNDED"  // compensated after purchase
	TicketUsed      TicketStatus = "USED"      // scanned at the venue
)

// HoldsInventory reports whether a ticket in this state counts against the
// ticket type's total quantity.
func (s TicketStatus) HoldsInventory() bool {
	return s == TicketReserved || s == TicketPurchased
}

// Terminal reports whether no further transition is allowed.
func (s TicketStatus) Terminal() bool {
	return s == TicketCancelled || s == TicketRefunded || s == TicketUsed
}

// Ticket is a single admission created by a purchase. Prices are kept in
// minor currency units (cents).
//
// Fields:
//
//	ID           – UUID primary key.
//	EventID      – event the ticket admits to.
//	TicketTypeID – inventory bucket the ticket was taken from.
//	UserID       – buyer.
//	PriceCents   – price copied from the ticket type at reservation time.
//	Status       – lifecycle state, see TicketStatus.
//	PaymentID    – gateway reference once the charge succeeded.
//	PurchasedAt  – set on the RESERVED → PURCHASED transition.
type Ticket struct {
	ID           string       // tickets.id
	EventID      string       // tickets.event_id
	TicketTypeID string       // tickets.ticket_type_id
	UserID       string       // tickets.user_id
	PriceCents   int64        // tickets.price_cents
	Status       TicketStatus // tickets.status
	PaymentID    *string      // tickets.payment_id (nullable)
	PurchasedAt  *time.Time   // tickets.purchased_at (nullable)
	CreatedAt    time.Time    // tickets.created_at
	UpdatedAt    time.Time    // tickets.updated_at
}
