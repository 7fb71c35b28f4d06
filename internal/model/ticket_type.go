package model

// TicketType is an inventory bucket of an event (e.g. "General admission").
// SoldOrReserved is not a column: repositories derive it by counting the
// tickets that hold inventory.
type TicketType struct {
	ID             string // ticket_types.id
	EventID        string // ticket_types.event_id
	Name           string // ticket_types.name
	PriceCents     int64  // ticket_types.price_cents
	TotalQuantity  int    // ticket_types.total_quantity
	SoldOrReserved int    // COUNT(tickets) in RESERVED or PURCHASED
}

// Available returns the number of tickets that can still be reserved. It is
// never negative, even if the total was lowered below what was already sold.
func (t *TicketType) Available() int {
	n := t.TotalQuantity - t.SoldOrReserved
	if n < 0 {
		return 0
	}
	return n
}
