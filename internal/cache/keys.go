// Package cache keeps Redis read caches coherent with ticket state. Keys
// are scoped by event and user so that a state change touches only the
// entries it can affect.
package cache

import "fmt"

// AvailabilityKey caches the availability of one ticket type.
func AvailabilityKey(eventID, ticketTypeID string) string {
	return fmt.Sprintf("ticket.availability.%s.%s", eventID, ticketTypeID)
}

func availabilityPattern(eventID string) string {
	return fmt.Sprintf("ticket.availability.%s.*", eventID)
}

// EventStatsKey caches aggregated sales figures of an event.
func EventStatsKey(eventID string) string {
	return "event.stats." + eventID
}

// userTicketsPattern matches every cached page of a user's ticket list.
func userTicketsPattern(userID string) string {
	return fmt.Sprintf("user.tickets.%s.*", userID)
}
