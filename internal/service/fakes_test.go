package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"

	"github.com/mikoajp/EventHub-sub001/internal/model"
	"github.com/mikoajp/EventHub-sub001/internal/queue"
	"github.com/mikoajp/EventHub-sub001/internal/repository"
)

func discardLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

// memStore is an in-memory TicketStore. FindTicketTypeForUpdate takes a
// per-row mutex held until the transaction ends, and a transaction's
// tickets become visible only on commit, like SELECT ... FOR UPDATE under
// READ COMMITTED.
type memStore struct {
	mu      sync.Mutex
	events  map[string]*model.Event
	users   map[string]*model.User
	types   map[string]*model.TicketType
	tickets map[string]*model.Ticket
	locks   map[string]*sync.Mutex

	createErr error
	updateErr error
	onLock    func() // called before waiting for a row lock
	txCount   int
}

func newMemStore() *memStore {
	return &memStore{
		events:  map[string]*model.Event{},
		users:   map[string]*model.User{},
		types:   map[string]*model.TicketType{},
		tickets: map[string]*model.Ticket{},
		locks:   map[string]*sync.Mutex{},
	}
}

func (s *memStore) addEvent(id string, status model.EventStatus) {
	s.events[id] = &model.Event{ID: id, Name: "Event " + id, Status: status}
}

func (s *memStore) addUser(id string) { s.users[id] = &model.User{ID: id, Email: id + "@example.com"} }

func (s *memStore) addTicketType(id, eventID string, price int64, total int) {
	s.types[id] = &model.TicketType{ID: id, EventID: eventID, Name: "GA", PriceCents: price, TotalQuantity: total}
}

func (s *memStore) rowLock(id string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	return l
}

func (s *memStore) held(ticketTypeID string) int {
	n := 0
	for _, t := range s.tickets {
		if t.TicketTypeID == ticketTypeID && t.Status.HoldsInventory() {
			n++
		}
	}
	return n
}

func (s *memStore) all() []*model.Ticket {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*model.Ticket, 0, len(s.tickets))
	for _, t := range s.tickets {
		cp := *t
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *memStore) WithinPurchaseTx(ctx context.Context, fn func(tx repository.PurchaseTx) error) error {
	s.mu.Lock()
	s.txCount++
	s.mu.Unlock()

	tx := &memTx{store: s}
	err := fn(tx)
	if err == nil {
		s.mu.Lock()
		for _, t := range tx.pending {
			cp := *t
			s.tickets[t.ID] = &cp
		}
		s.mu.Unlock()
	}
	for _, l := range tx.held {
		l.Unlock()
	}
	return err
}

func (s *memStore) FindTicket(_ context.Context, id string) (*model.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tickets[id]
	if !ok {
		return nil, fmt.Errorf("find ticket %s: %w", id, repository.ErrNotFound)
	}
	cp := *t
	return &cp, nil
}

func (s *memStore) UpdateTicketStatus(_ context.Context, t *model.Ticket, from model.TicketStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updateErr != nil {
		return s.updateErr
	}
	cur, ok := s.tickets[t.ID]
	if !ok || cur.Status != from {
		return fmt.Errorf("update ticket %s from %s: %w", t.ID, from, repository.ErrStatusChanged)
	}
	cur.Status = t.Status
	cur.PaymentID = t.PaymentID
	cur.PurchasedAt = t.PurchasedAt
	cur.UpdatedAt = t.UpdatedAt
	return nil
}

func (s *memStore) TicketTypeAvailability(_ context.Context, id string) (*model.TicketType, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tt, ok := s.types[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *tt
	cp.SoldOrReserved = s.held(id)
	return &cp, nil
}

type memTx struct {
	store   *memStore
	pending []*model.Ticket
	held    []*sync.Mutex
}

func (tx *memTx) FindEventByID(_ context.Context, id string) (*model.Event, error) {
	tx.store.mu.Lock()
	defer tx.store.mu.Unlock()
	e, ok := tx.store.events[id]
	if !ok {
		return nil, fmt.Errorf("find event %s: %w", id, repository.ErrNotFound)
	}
	cp := *e
	return &cp, nil
}

func (tx *memTx) FindUserByID(_ context.Context, id string) (*model.User, error) {
	tx.store.mu.Lock()
	defer tx.store.mu.Unlock()
	u, ok := tx.store.users[id]
	if !ok {
		return nil, fmt.Errorf("find user %s: %w", id, repository.ErrNotFound)
	}
	cp := *u
	return &cp, nil
}

func (tx *memTx) FindTicketTypeForUpdate(_ context.Context, id string) (*model.TicketType, error) {
	tx.store.mu.Lock()
	_, ok := tx.store.types[id]
	onLock := tx.store.onLock
	tx.store.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("lock ticket type %s: %w", id, repository.ErrNotFound)
	}
	if onLock != nil {
		onLock()
	}

	l := tx.store.rowLock(id)
	l.Lock()
	tx.held = append(tx.held, l)

	tx.store.mu.Lock()
	defer tx.store.mu.Unlock()
	cp := *tx.store.types[id]
	cp.SoldOrReserved = tx.store.held(id)
	return &cp, nil
}

func (tx *memTx) CreateTicket(_ context.Context, t *model.Ticket) error {
	tx.store.mu.Lock()
	err := tx.store.createErr
	tx.store.mu.Unlock()
	if err != nil {
		return err
	}
	cp := *t
	tx.pending = append(tx.pending, &cp)
	return nil
}

// recordingBus records everything dispatched to it.
type recordingBus struct {
	mu       sync.Mutex
	commands []queue.Message
	events   []queue.Message
	err      error
}

func (b *recordingBus) DispatchCommand(_ context.Context, cmd queue.Message) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return b.err
	}
	b.commands = append(b.commands, cmd)
	return nil
}

func (b *recordingBus) PublishEvent(_ context.Context, ev queue.Message) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return b.err
	}
	b.events = append(b.events, ev)
	return nil
}

func (b *recordingBus) paymentCommands() []queue.ProcessPaymentCommand {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []queue.ProcessPaymentCommand
	for _, m := range b.commands {
		if c, ok := m.(queue.ProcessPaymentCommand); ok {
			out = append(out, c)
		}
	}
	return out
}

func (b *recordingBus) eventsOfType(typ string) []queue.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []queue.Message
	for _, m := range b.events {
		if m.MessageType() == typ {
			out = append(out, m)
		}
	}
	return out
}
