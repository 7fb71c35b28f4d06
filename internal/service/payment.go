package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mikoajp/EventHub-sub001/internal/metrics"
	"github.com/mikoajp/EventHub-sub001/internal/model"
	"github.com/mikoajp/EventHub-sub001/internal/payment"
	"github.com/mikoajp/EventHub-sub001/internal/queue"
	"github.com/mikoajp/EventHub-sub001/internal/repository"
)

// PaymentService settles reserved tickets and refunds purchased ones. It
// runs behind the bus, so its errors drive redelivery: plain errors are
// retried, queue.Unrecoverable ones are dead-lettered at once.
type PaymentService struct {
	tickets repository.TicketRepository
	gateway payment.Gateway
	bus     queue.Bus
	logger  *slog.Logger
	now     func() time.Time
}

func NewPaymentService(tickets repository.TicketRepository, gateway payment.Gateway, bus queue.Bus, logger *slog.Logger) *PaymentService {
	return &PaymentService{tickets: tickets, gateway: gateway, bus: bus, logger: logger, now: time.Now}
}

// Register installs the payment command handlers.
func (s *PaymentService) Register(reg *queue.Registry) {
	queue.HandleCommand(reg, func(ctx context.Context, cmd queue.ProcessPaymentCommand) error {
		return s.ProcessPayment(ctx, cmd.TicketID, cmd.PaymentMethodID, cmd.Amount, cmd.Currency)
	})
	queue.HandleCommand(reg, func(ctx context.Context, cmd queue.RefundPaymentCommand) error {
		return s.RefundPayment(ctx, cmd.TicketID, cmd.PaymentID, cmd.Amount, cmd.Reason)
	})
}

// ProcessPayment charges amount (minor units) for a RESERVED ticket. A
// decline cancels the ticket and is not an error. A gateway fault also
// cancels the ticket and is returned so the transport retries. An open
// circuit is returned with the ticket still reserved, since no charge was
// attempted.
//
// Every status write is conditional on the ticket still being RESERVED. A
// duplicate delivery that loses that race after a successful charge voids
// the charge instead of resurrecting the ticket.
func (s *PaymentService) ProcessPayment(ctx context.Context, ticketID, paymentMethodID string, amount int64, currency string) error {
	log := s.logger.With("ticket_id", ticketID)

	t, err := s.loadTicket(ctx, ticketID, model.TicketReserved)
	if err != nil {
		return err
	}

	res, err := s.gateway.Charge(ctx, payment.ChargeRequest{
		PaymentMethodID: paymentMethodID,
		Amount:          payment.FromMinor(amount),
		Currency:        currency,
		IdempotencyKey:  "ticket:" + t.ID,
		Metadata: map[string]string{
			"ticket_id":      t.ID,
			"event_id":       t.EventID,
			"ticket_type_id": t.TicketTypeID,
			"user_id":        t.UserID,
		},
	})
	if err != nil {
		metrics.Payments.WithLabelValues("charge", "error").Inc()
		if errors.Is(err, payment.ErrCircuitOpen) {
			log.Warn("payment gateway circuit open, ticket stays reserved")
			return fmt.Errorf("charge ticket %s: %w", t.ID, err)
		}
		if uerr := s.transition(ctx, t, model.TicketCancelled); uerr != nil {
			log.Error("failed to cancel ticket after gateway error", "err", uerr)
		}
		log.Warn("payment gateway error", "err", err)
		return fmt.Errorf("charge ticket %s: %w", t.ID, err)
	}

	ev := queue.PaymentProcessedEvent{
		TicketID:  t.ID,
		EventID:   t.EventID,
		UserID:    t.UserID,
		PaymentID: res.PaymentID,
		Message:   res.Message,
		Amount:    amount,
		Currency:  currency,
	}

	if !res.Success {
		if err := s.transition(ctx, t, model.TicketCancelled); err != nil {
			return err
		}
		metrics.Payments.WithLabelValues("charge", "declined").Inc()
		log.Info("payment declined, ticket cancelled", "reason", res.Message)
		ev.Status = queue.PaymentFailed
		ev.ProcessedAt = t.UpdatedAt
		s.publish(ctx, log, ev)
		return nil
	}

	now := s.now().UTC()
	paymentID := res.PaymentID
	t.PaymentID = &paymentID
	t.PurchasedAt = &now
	if err := s.transition(ctx, t, model.TicketPurchased); err != nil {
		var st *InvalidTicketStatusError
		if errors.As(err, &st) {
			return s.voidCharge(ctx, log, t.ID, paymentID, amount, err)
		}
		// The charge went through; the retry reuses the ticket-scoped
		// idempotency key so the gateway does not capture twice.
		return err
	}
	metrics.Payments.WithLabelValues("charge", "completed").Inc()
	log.Info("payment completed", "payment_id", paymentID)

	ev.Status = queue.PaymentCompleted
	ev.ProcessedAt = now
	s.publish(ctx, log, ev)
	s.publish(ctx, log, queue.TicketPurchasedEvent{
		TicketID:    t.ID,
		EventID:     t.EventID,
		UserID:      t.UserID,
		PaymentID:   paymentID,
		PurchasedAt: now,
	})
	return nil
}

// RefundPayment compensates a PURCHASED ticket. Empty paymentID and zero
// amount default to the ticket's payment and price. A refused or failed
// refund leaves the ticket untouched.
func (s *PaymentService) RefundPayment(ctx context.Context, ticketID, paymentID string, amount int64, reason string) error {
	log := s.logger.With("ticket_id", ticketID)

	t, err := s.loadTicket(ctx, ticketID, model.TicketPurchased)
	if err != nil {
		return err
	}
	if paymentID == "" && t.PaymentID != nil {
		paymentID = *t.PaymentID
	}
	if amount <= 0 {
		amount = t.PriceCents
	}

	res, err := s.gateway.Refund(ctx, payment.RefundRequest{
		PaymentID:      paymentID,
		Amount:         payment.FromMinor(amount),
		Reason:         reason,
		IdempotencyKey: "refund:" + t.ID,
	})
	if err != nil {
		metrics.Payments.WithLabelValues("refund", "error").Inc()
		return fmt.Errorf("refund ticket %s: %w", t.ID, err)
	}
	if !res.Success {
		metrics.Payments.WithLabelValues("refund", "declined").Inc()
		return fmt.Errorf("refund ticket %s: %w: %s", t.ID, ErrRefundDeclined, res.Message)
	}

	if err := s.transition(ctx, t, model.TicketRefunded); err != nil {
		return err
	}
	metrics.Payments.WithLabelValues("refund", "completed").Inc()
	log.Info("ticket refunded", "payment_id", paymentID, "amount_cents", amount)

	s.publish(ctx, log, queue.TicketRefundedEvent{
		TicketID:   t.ID,
		EventID:    t.EventID,
		UserID:     t.UserID,
		PaymentID:  paymentID,
		Amount:     amount,
		Reason:     reason,
		RefundedAt: t.UpdatedAt,
	})
	return nil
}

// loadTicket fetches a ticket and checks its state. Both failure modes are
// permanent for the message being handled.
func (s *PaymentService) loadTicket(ctx context.Context, id string, want model.TicketStatus) (*model.Ticket, error) {
	t, err := s.tickets.FindTicket(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, queue.Unrecoverable(fmt.Errorf("%w: %s", ErrTicketNotFound, id))
		}
		return nil, err
	}
	if t.Status != want {
		return nil, queue.Unrecoverable(&InvalidTicketStatusError{TicketID: id, Status: t.Status, Expected: want})
	}
	return t, nil
}

// voidCharge refunds a charge captured for a ticket that another delivery
// moved out of RESERVED first. If that delivery purchased the ticket with
// the same payment there is nothing to undo.
func (s *PaymentService) voidCharge(ctx context.Context, log *slog.Logger, ticketID, paymentID string, amount int64, cause error) error {
	cur, err := s.tickets.FindTicket(ctx, ticketID)
	if err == nil && cur.Status == model.TicketPurchased && cur.PaymentID != nil && *cur.PaymentID == paymentID {
		log.Info("duplicate payment delivery, ticket already purchased", "payment_id", paymentID)
		return nil
	}

	res, err := s.gateway.Refund(ctx, payment.RefundRequest{
		PaymentID:      paymentID,
		Amount:         payment.FromMinor(amount),
		Reason:         "ticket no longer reserved",
		IdempotencyKey: "void:" + ticketID,
	})
	if err == nil && !res.Success {
		err = fmt.Errorf("%w: %s", ErrRefundDeclined, res.Message)
	}
	if err != nil {
		metrics.Payments.WithLabelValues("void", "error").Inc()
		log.Error("charge captured for a ticket that is no longer reserved, void failed",
			"payment_id", paymentID, "err", err)
		return queue.Unrecoverable(errors.Join(cause, err))
	}
	metrics.Payments.WithLabelValues("void", "completed").Inc()
	log.Warn("charge voided, ticket no longer reserved", "payment_id", paymentID)
	return cause
}

// transition writes t in status to, provided the stored row is still in the
// status t was read in. Losing that race is permanent for the message.
func (s *PaymentService) transition(ctx context.Context, t *model.Ticket, to model.TicketStatus) error {
	from := t.Status
	t.Status = to
	t.UpdatedAt = s.now().UTC()
	err := s.tickets.UpdateTicketStatus(ctx, t, from)
	if err == nil {
		return nil
	}
	if errors.Is(err, repository.ErrStatusChanged) {
		st := &InvalidTicketStatusError{TicketID: t.ID, Expected: from}
		if cur, ferr := s.tickets.FindTicket(ctx, t.ID); ferr == nil {
			st.Status = cur.Status
		}
		return queue.Unrecoverable(st)
	}
	return fmt.Errorf("set ticket %s %s: %w", t.ID, to, err)
}

// publish emits a follow-up event. The ticket state is already persisted,
// so a failed publish is logged rather than failing the message.
func (s *PaymentService) publish(ctx context.Context, log *slog.Logger, ev queue.Message) {
	if err := s.bus.PublishEvent(ctx, ev); err != nil {
		metrics.DispatchErrors.WithLabelValues(ev.MessageType()).Inc()
		log.Error("failed to publish event", "type", ev.MessageType(), "err", err)
	}
}
