// Package service holds the ticket purchase and payment orchestrators.
package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mikoajp/EventHub-sub001/internal/idempotency"
	"github.com/mikoajp/EventHub-sub001/internal/metrics"
	"github.com/mikoajp/EventHub-sub001/internal/model"
	"github.com/mikoajp/EventHub-sub001/internal/queue"
	"github.com/mikoajp/EventHub-sub001/internal/repository"
)

// PurchaseCommandType scopes purchase idempotency keys.
const PurchaseCommandType = "purchase_tickets"

// PurchaseCommand asks for Quantity tickets of one ticket type.
type PurchaseCommand struct {
	EventID         string
	TicketTypeID    string
	Quantity        int
	UserID          string
	PaymentMethodID string
	IdempotencyKey  string // optional, see ResolveKey
}

// ResolveKey returns the client key prefixed with the user id or, without
// one, a key derived from the command fields. Client keys are only unique
// per user, so two users sending the same header never share a purchase.
// The derived key is best effort: identical commands from the same user
// share it and the second is answered with the first one's tickets.
func (c PurchaseCommand) ResolveKey() string {
	if c.IdempotencyKey != "" {
		return c.UserID + ":" + c.IdempotencyKey
	}
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%d|%s|%s",
		c.EventID, c.TicketTypeID, c.Quantity, c.UserID, c.PaymentMethodID)))
	return "derived:" + hex.EncodeToString(sum[:])
}

// PurchaseService reserves tickets under the ticket type row lock and hands
// payment off to the bus.
type PurchaseService struct {
	store    repository.TicketStore
	idem     *idempotency.Coordinator
	bus      queue.Bus
	currency string
	logger   *slog.Logger
	now      func() time.Time
	newID    func() string
}

func NewPurchaseService(store repository.TicketStore, idem *idempotency.Coordinator, bus queue.Bus, currency string, logger *slog.Logger) *PurchaseService {
	return &PurchaseService{
		store:    store,
		idem:     idem,
		bus:      bus,
		currency: currency,
		logger:   logger,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// Purchase reserves the requested tickets and returns their ids. Replaying
// a completed command returns the ids of the first execution without side
// effects.
func (s *PurchaseService) Purchase(ctx context.Context, cmd PurchaseCommand) ([]string, error) {
	if cmd.Quantity < 1 {
		return nil, ErrInvalidQuantity
	}
	key := cmd.ResolveKey()
	log := s.logger.With("idempotency_key", key, "event_id", cmd.EventID,
		"ticket_type_id", cmd.TicketTypeID, "user_id", cmd.UserID, "quantity", cmd.Quantity)

	done, err := s.idem.Check(ctx, key, PurchaseCommandType)
	if errors.Is(err, idempotency.ErrCommandAlreadyProcessing) {
		metrics.Purchases.WithLabelValues("duplicate").Inc()
		return nil, ErrDuplicateRequest
	}
	if err != nil {
		return nil, err
	}
	if done != nil {
		return s.replay(done, log)
	}

	rec, err := s.idem.Start(ctx, key, PurchaseCommandType)
	if errors.Is(err, idempotency.ErrCommandAlreadyProcessing) {
		// lost the insert race; the winner may have finished meanwhile
		if done, cerr := s.idem.Check(ctx, key, PurchaseCommandType); cerr == nil && done != nil {
			return s.replay(done, log)
		}
		metrics.Purchases.WithLabelValues("duplicate").Inc()
		return nil, ErrDuplicateRequest
	}
	if err != nil {
		return nil, err
	}

	var tickets []*model.Ticket
	err = s.store.WithinPurchaseTx(ctx, func(tx repository.PurchaseTx) error {
		var rerr error
		tickets, rerr = s.reserve(ctx, tx, cmd)
		return rerr
	})
	// bookkeeping must land even if the client went away
	bg := context.WithoutCancel(ctx)
	if err != nil {
		if ferr := s.idem.MarkFailed(bg, rec, err); ferr != nil {
			log.Error("failed to mark purchase failed", "err", ferr)
		}
		metrics.Purchases.WithLabelValues(outcomeOf(err)).Inc()
		log.Info("purchase rejected", "err", err)
		return nil, err
	}

	ids := make([]string, len(tickets))
	var total int64
	for i, t := range tickets {
		ids[i] = t.ID
		total += t.PriceCents
	}
	result, err := json.Marshal(ids)
	if err != nil {
		return nil, fmt.Errorf("encode purchase result: %w", err)
	}
	// Completed before dispatch: a duplicate arriving from here on gets
	// these ids and never dispatches payment a second time.
	if err := s.idem.MarkCompleted(bg, rec, result); err != nil {
		log.Error("failed to mark purchase completed", "err", err)
	}

	metrics.Purchases.WithLabelValues("reserved").Inc()
	metrics.TicketsReserved.Add(float64(len(tickets)))
	log.Info("tickets reserved", "ticket_ids", ids, "total_cents", total)

	s.dispatch(bg, tickets, cmd, log)
	return ids, nil
}

func (s *PurchaseService) replay(rec *idempotency.Record, log *slog.Logger) ([]string, error) {
	var ids []string
	if err := json.Unmarshal(rec.Result, &ids); err != nil {
		return nil, fmt.Errorf("decode stored purchase result: %w", err)
	}
	metrics.Purchases.WithLabelValues("replayed").Inc()
	log.Debug("purchase replayed from idempotency record", "ticket_ids", ids)
	return ids, nil
}

// reserve runs inside the purchase transaction.
func (s *PurchaseService) reserve(ctx context.Context, tx repository.PurchaseTx, cmd PurchaseCommand) ([]*model.Ticket, error) {
	event, err := tx.FindEventByID(ctx, cmd.EventID)
	if err != nil {
		return nil, reference(err, "event", cmd.EventID)
	}
	if !event.IsPublished() {
		return nil, fmt.Errorf("%w: event %s is %s", ErrEventNotPublished, event.ID, event.Status)
	}
	if _, err := tx.FindUserByID(ctx, cmd.UserID); err != nil {
		return nil, reference(err, "user", cmd.UserID)
	}

	start := time.Now()
	tt, err := tx.FindTicketTypeForUpdate(ctx, cmd.TicketTypeID)
	metrics.InventoryLockWait.Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, reference(err, "ticket_type", cmd.TicketTypeID)
	}
	if tt.EventID != event.ID {
		return nil, &InvalidReferenceError{Entity: "ticket_type", ID: cmd.TicketTypeID}
	}

	if available := tt.Available(); cmd.Quantity > available {
		return nil, &TicketNotAvailableError{TicketTypeID: tt.ID, Requested: cmd.Quantity, Available: available}
	}

	now := s.now().UTC()
	tickets := make([]*model.Ticket, 0, cmd.Quantity)
	for i := 0; i < cmd.Quantity; i++ {
		t := &model.Ticket{
			ID:           s.newID(),
			EventID:      event.ID,
			TicketTypeID: tt.ID,
			UserID:       cmd.UserID,
			PriceCents:   tt.PriceCents,
			Status:       model.TicketReserved,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := tx.CreateTicket(ctx, t); err != nil {
			return nil, err
		}
		tickets = append(tickets, t)
	}
	return tickets, nil
}

// dispatch fans out payment work. Failures are logged and counted: the
// reservation is committed and the transport owns delivery from here.
func (s *PurchaseService) dispatch(ctx context.Context, tickets []*model.Ticket, cmd PurchaseCommand, log *slog.Logger) {
	for _, t := range tickets {
		pay := queue.ProcessPaymentCommand{
			TicketID:        t.ID,
			PaymentMethodID: cmd.PaymentMethodID,
			Amount:          t.PriceCents,
			Currency:        s.currency,
		}
		if err := s.bus.DispatchCommand(ctx, pay); err != nil {
			metrics.DispatchErrors.WithLabelValues(pay.MessageType()).Inc()
			log.Error("failed to dispatch payment command", "ticket_id", t.ID, "err", err)
		}
		ev := queue.TicketReservedEvent{
			TicketID:     t.ID,
			EventID:      t.EventID,
			TicketTypeID: t.TicketTypeID,
			UserID:       t.UserID,
			PriceCents:   t.PriceCents,
			ReservedAt:   t.CreatedAt,
		}
		if err := s.bus.PublishEvent(ctx, ev); err != nil {
			metrics.DispatchErrors.WithLabelValues(ev.MessageType()).Inc()
			log.Error("failed to publish ticket reserved event", "ticket_id", t.ID, "err", err)
		}
	}
}

func reference(err error, entity, id string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return &InvalidReferenceError{Entity: entity, ID: id}
	}
	return err
}

func outcomeOf(err error) string {
	var (
		notAvailable *TicketNotAvailableError
		invalidRef   *InvalidReferenceError
	)
	switch {
	case errors.As(err, &notAvailable):
		return "not_available"
	case errors.As(err, &invalidRef), errors.Is(err, ErrEventNotPublished):
		return "invalid"
	default:
		return "error"
	}
}
