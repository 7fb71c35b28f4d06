package model

// EventStatus is the publication state of an event.
type EventStatus string

const (
	EventDraft     EventStatus = "draft"
	EventPublished EventStatus = "published"
	EventCancelled EventStatus = "cancelled"
	EventCompleted EventStatus = "completed"
)

// Event is the subset of the events table the purchase pipeline reads.
type Event struct {
	ID     string      // events.id
	Name   string      // events.name
	Status EventStatus // events.status
}

// IsPublished reports whether tickets may be sold for the event.
func (e *Event) IsPublished() bool { return e.Status == EventPublished }

// User is the subset of the users table the purchase pipeline reads.
type User struct {
	ID    string // users.id
	Email string // users.email
}
