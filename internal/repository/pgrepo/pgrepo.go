// Package pgrepo implements the repository contracts on PostgreSQL with
// pgx. It is selected with DB_DRIVER=postgres and returns the same sentinel
// errors as the MySQL implementation.
package pgrepo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/mikoajp/EventHub-sub001/internal/model"
	"github.com/mikoajp/EventHub-sub001/internal/repository"
)

// uniqueViolation is the SQLSTATE for unique_violation.
const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return repository.ErrNotFound
	}
	return err
}

// querier is satisfied by *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// DB is the part of *pgxpool.Pool the repositories use.
type DB interface {
	querier
	BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
}

// TicketRepo is the Postgres TicketStore.
type TicketRepo struct {
	pool DB
}

func NewTicketRepo(pool DB) *TicketRepo { return &TicketRepo{pool: pool} }

var _ repository.TicketStore = (*TicketRepo)(nil)

const ticketColumns = `id, event_id, ticket_type_id, user_id, price_cents, status, payment_id, purchased_at, created_at, updated_at`

func (r *TicketRepo) WithinPurchaseTx(ctx context.Context, fn func(tx repository.PurchaseTx) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin purchase transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	if err := fn(&purchaseTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit purchase transaction: %w", err)
	}
	return nil
}

func (r *TicketRepo) FindTicket(ctx context.Context, id string) (*model.Ticket, error) {
	var t model.Ticket
	err := r.pool.QueryRow(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE id = $1`, id).Scan(
		&t.ID, &t.EventID, &t.TicketTypeID, &t.UserID, &t.PriceCents, &t.Status,
		&t.PaymentID, &t.PurchasedAt, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("find ticket %s: %w", id, notFound(err))
	}
	return &t, nil
}

func (r *TicketRepo) UpdateTicketStatus(ctx context.Context, t *model.Ticket, from model.TicketStatus) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE tickets SET status = $1, payment_id = $2, purchased_at = $3, updated_at = $4 WHERE id = $5 AND status = $6`,
		string(t.Status), t.PaymentID, t.PurchasedAt, t.UpdatedAt.UTC(), t.ID, string(from))
	if err != nil {
		return fmt.Errorf("update ticket %s: %w", t.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update ticket %s from %s: %w", t.ID, from, repository.ErrStatusChanged)
	}
	return nil
}

func (r *TicketRepo) TicketTypeAvailability(ctx context.Context, id string) (*model.TicketType, error) {
	const q = `SELECT tt.id, tt.event_id, tt.name, tt.price_cents, tt.total_quantity,
	  (SELECT COUNT(*) FROM tickets t WHERE t.ticket_type_id = tt.id AND t.status IN ('RESERVED', 'PURCHASED'))
	  FROM ticket_types tt WHERE tt.id = $1`
	var tt model.TicketType
	err := r.pool.QueryRow(ctx, q, id).Scan(&tt.ID, &tt.EventID, &tt.Name, &tt.PriceCents, &tt.TotalQuantity, &tt.SoldOrReserved)
	if err != nil {
		return nil, fmt.Errorf("ticket type availability %s: %w", id, notFound(err))
	}
	return &tt, nil
}

type purchaseTx struct {
	tx pgx.Tx
}

func (p *purchaseTx) FindEventByID(ctx context.Context, id string) (*model.Event, error) {
	var e model.Event
	if err := p.tx.QueryRow(ctx, `SELECT id, name, status FROM events WHERE id = $1`, id).Scan(&e.ID, &e.Name, &e.Status); err != nil {
		return nil, fmt.Errorf("find event %s: %w", id, notFound(err))
	}
	return &e, nil
}

func (p *purchaseTx) FindUserByID(ctx context.Context, id string) (*model.User, error) {
	var u model.User
	if err := p.tx.QueryRow(ctx, `SELECT id, email FROM users WHERE id = $1`, id).Scan(&u.ID, &u.Email); err != nil {
		return nil, fmt.Errorf("find user %s: %w", id, notFound(err))
	}
	return &u, nil
}

func (p *purchaseTx) FindTicketTypeForUpdate(ctx context.Context, id string) (*model.TicketType, error) {
	var tt model.TicketType
	err := p.tx.QueryRow(ctx,
		`SELECT id, event_id, name, price_cents, total_quantity FROM ticket_types WHERE id = $1 FOR UPDATE`, id).
		Scan(&tt.ID, &tt.EventID, &tt.Name, &tt.PriceCents, &tt.TotalQuantity)
	if err != nil {
		return nil, fmt.Errorf("lock ticket type %s: %w", id, notFound(err))
	}
	err = p.tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM tickets WHERE ticket_type_id = $1 AND status IN ('RESERVED', 'PURCHASED')`, id).
		Scan(&tt.SoldOrReserved)
	if err != nil {
		return nil, fmt.Errorf("count tickets of type %s: %w", id, err)
	}
	return &tt, nil
}

func (p *purchaseTx) CreateTicket(ctx context.Context, t *model.Ticket) error {
	_, err := p.tx.Exec(ctx,
		`INSERT INTO tickets (id, event_id, ticket_type_id, user_id, price_cents, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		t.ID, t.EventID, t.TicketTypeID, t.UserID, t.PriceCents, string(t.Status), t.CreatedAt.UTC(), t.UpdatedAt.UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("create ticket %s: %w", t.ID, repository.ErrDuplicateKey)
		}
		return fmt.Errorf("create ticket %s: %w", t.ID, err)
	}
	return nil
}
