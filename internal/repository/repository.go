package repository

import (
	"context"
	"database/sql"

	"github.com/mikoajp/EventHub-sub001/internal/model"
)

// PurchaseTx is the set of lookups and writes a purchase performs inside a
// single database transaction. All methods return ErrNotFound when the row
// does not exist.
type PurchaseTx interface {
	FindEventByID(ctx context.Context, id string) (*model.Event, error)
	FindUserByID(ctx context.Context, id string) (*model.User, error)
	// FindTicketTypeForUpdate takes an exclusive row lock on the ticket
	// type that lasts until the transaction ends, then fills
	// SoldOrReserved from the tickets table. Concurrent callers for the
	// same ticket type queue behind the lock in arrival order.
	FindTicketTypeForUpdate(ctx context.Context, id string) (*model.TicketType, error)
	CreateTicket(ctx context.Context, t *model.Ticket) error
}

// TicketRepository reads and updates tickets outside of a purchase.
type TicketRepository interface {
	FindTicket(ctx context.Context, id string) (*model.Ticket, error)
	// UpdateTicketStatus persists Status, PaymentID, PurchasedAt and
	// UpdatedAt of t only while the stored status is still from. It
	// returns ErrStatusChanged when no row matched.
	UpdateTicketStatus(ctx context.Context, t *model.Ticket, from model.TicketStatus) error
}

// TicketStore is everything the ticketing services need from storage.
type TicketStore interface {
	TicketRepository
	// WithinPurchaseTx runs fn in a READ COMMITTED transaction. The
	// transaction commits when fn returns nil and rolls back otherwise.
	WithinPurchaseTx(ctx context.Context, fn func(tx PurchaseTx) error) error
	// TicketTypeAvailability reads a ticket type and its sold count
	// without locking. The result may be stale by the time it is used.
	TicketTypeAvailability(ctx context.Context, id string) (*model.TicketType, error)
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}
