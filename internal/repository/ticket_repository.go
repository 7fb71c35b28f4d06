package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/mikoajp/EventHub-sub001/internal/model"
)

// TicketRepo is the MySQL TicketStore. All timestamps are stored in UTC.
type TicketRepo struct {
	db *sql.DB
}

// NewTicketRepo returns a TicketRepo bound to db.
func NewTicketRepo(db *sql.DB) *TicketRepo { return &TicketRepo{db: db} }

var _ TicketStore = (*TicketRepo)(nil)

const ticketColumns = `id, event_id, ticket_type_id, user_id, price_cents, status, payment_id, purchased_at, created_at, updated_at`

// countHeldSQL counts the tickets that hold inventory for a ticket type.
const countHeldSQL = `SELECT COUNT(*) FROM tickets WHERE ticket_type_id = ? AND status IN ('RESERVED', 'PURCHASED')`

// WithinPurchaseTx begins a READ COMMITTED transaction and hands it to fn.
// REPEATABLE READ (the InnoDB default) would let the sold count read after
// the row lock see a snapshot taken before a competing purchase committed.
func (r *TicketRepo) WithinPurchaseTx(ctx context.Context, fn func(tx PurchaseTx) error) error {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("begin purchase transaction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if err := fn(&purchaseTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit purchase transaction: %w", err)
	}
	committed = true
	return nil
}

// FindTicket loads a ticket by id.
func (r *TicketRepo) FindTicket(ctx context.Context, id string) (*model.Ticket, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE id = ? LIMIT 1`, id)
	t, err := scanTicket(row)
	if err != nil {
		return nil, fmt.Errorf("find ticket %s: %w", id, notFound(err))
	}
	return t, nil
}

// UpdateTicketStatus writes the mutable columns of t if the row is still
// in status from. The DSN sets ClientFoundRows, so an update that matches
// but changes nothing still counts one row.
func (r *TicketRepo) UpdateTicketStatus(ctx context.Context, t *model.Ticket, from model.TicketStatus) error {
	const q = `UPDATE tickets SET status = ?, payment_id = ?, purchased_at = ?, updated_at = ? WHERE id = ? AND status = ?`
	res, err := r.db.ExecContext(ctx, q, string(t.Status), nullString(t.PaymentID), nullTime(t.PurchasedAt), t.UpdatedAt.UTC(), t.ID, string(from))
	if err != nil {
		return fmt.Errorf("update ticket %s: %w", t.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update ticket %s: %w", t.ID, err)
	}
	if n == 0 {
		return fmt.Errorf("update ticket %s from %s: %w", t.ID, from, ErrStatusChanged)
	}
	return nil
}

// TicketTypeAvailability reads a ticket type and its sold count without
// taking any lock.
func (r *TicketRepo) TicketTypeAvailability(ctx context.Context, id string) (*model.TicketType, error) {
	const q = `SELECT tt.id, tt.event_id, tt.name, tt.price_cents, tt.total_quantity,
	  (SELECT COUNT(*) FROM tickets t WHERE t.ticket_type_id = tt.id AND t.status IN ('RESERVED', 'PURCHASED'))
	  FROM ticket_types tt WHERE tt.id = ? LIMIT 1`
	var tt model.TicketType
	err := r.db.QueryRowContext(ctx, q, id).Scan(
		&tt.ID, &tt.EventID, &tt.Name, &tt.PriceCents, &tt.TotalQuantity, &tt.SoldOrReserved)
	if err != nil {
		return nil, fmt.Errorf("ticket type availability %s: %w", id, notFound(err))
	}
	return &tt, nil
}

// purchaseTx implements PurchaseTx on a *sql.Tx.
type purchaseTx struct {
	tx *sql.Tx
}

func (p *purchaseTx) FindEventByID(ctx context.Context, id string) (*model.Event, error) {
	return findEvent(ctx, p.tx, id)
}

func (p *purchaseTx) FindUserByID(ctx context.Context, id string) (*model.User, error) {
	return findUser(ctx, p.tx, id)
}

func (p *purchaseTx) FindTicketTypeForUpdate(ctx context.Context, id string) (*model.TicketType, error) {
	const q = `SELECT id, event_id, name, price_cents, total_quantity FROM ticket_types WHERE id = ? FOR UPDATE`
	var tt model.TicketType
	err := p.tx.QueryRowContext(ctx, q, id).Scan(&tt.ID, &tt.EventID, &tt.Name, &tt.PriceCents, &tt.TotalQuantity)
	if err != nil {
		return nil, fmt.Errorf("lock ticket type %s: %w", id, notFound(err))
	}
	// The lock is held now; under READ COMMITTED this count sees every
	// ticket committed by purchases that held the lock before us.
	if err := p.tx.QueryRowContext(ctx, countHeldSQL, id).Scan(&tt.SoldOrReserved); err != nil {
		return nil, fmt.Errorf("count tickets of type %s: %w", id, err)
	}
	return &tt, nil
}

func (p *purchaseTx) CreateTicket(ctx context.Context, t *model.Ticket) error {
	const q = `INSERT INTO tickets (id, event_id, ticket_type_id, user_id, price_cents, status, created_at, updated_at)
	  VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := p.tx.ExecContext(ctx, q,
		t.ID, t.EventID, t.TicketTypeID, t.UserID, t.PriceCents, string(t.Status), t.CreatedAt.UTC(), t.UpdatedAt.UTC())
	if err != nil {
		if isDuplicateKey(err) {
			return fmt.Errorf("create ticket %s: %w", t.ID, ErrDuplicateKey)
		}
		return fmt.Errorf("create ticket %s: %w", t.ID, err)
	}
	return nil
}

func scanTicket(row *sql.Row) (*model.Ticket, error) {
	var (
		t           model.Ticket
		status      string
		paymentID   sql.NullString
		purchasedAt sql.NullTime
	)
	if err := row.Scan(&t.ID, &t.EventID, &t.TicketTypeID, &t.UserID, &t.PriceCents, &status,
		&paymentID, &purchasedAt, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	t.Status = model.TicketStatus(status)
	if paymentID.Valid {
		s := paymentID.String
		t.PaymentID = &s
	}
	if purchasedAt.Valid {
		ts := purchasedAt.Time
		t.PurchasedAt = &ts
	}
	return &t, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
