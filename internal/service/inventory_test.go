package service

import (
	"context"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mikoajp/EventHub-sub001/internal/cache"
	"github.com/mikoajp/EventHub-sub001/internal/model"
)

func TestAvailabilityFromStore(t *testing.T) {
	store := newMemStore()
	store.addTicketType("tt1", "e1", 5000, 10)
	seedTicket(store, "t1", model.TicketReserved)
	seedTicket(store, "t2", model.TicketPurchased)
	seedTicket(store, "t3", model.TicketCancelled)

	svc := NewInventoryService(store, nil)
	tt, err := svc.Availability(context.Background(), "e1", "tt1")
	require.NoError(t, err)
	assert.Equal(t, 2, tt.SoldOrReserved)
	assert.Equal(t, 8, tt.Available())
}

func TestAvailabilityInvalidReference(t *testing.T) {
	store := newMemStore()
	store.addTicketType("tt1", "e1", 5000, 10)
	svc := NewInventoryService(store, nil)

	_, err := svc.Availability(context.Background(), "e1", "missing")
	var ref *InvalidReferenceError
	require.ErrorAs(t, err, &ref)

	_, err = svc.Availability(context.Background(), "e2", "tt1")
	require.ErrorAs(t, err, &ref)
	assert.Equal(t, "tt1", ref.ID)
}

func TestAvailabilityUsesCache(t *testing.T) {
	store := newMemStore()
	store.addTicketType("tt1", "e1", 5000, 10)
	seedTicket(store, "t1", model.TicketReserved)

	db, mock := redismock.NewClientMock()
	c := cache.NewAvailabilityCache(db, time.Minute, discardLogger())
	svc := NewInventoryService(store, c)

	entry := `{"id":"tt1","event_id":"e1","name":"GA","price_cents":5000,"total_quantity":10,"sold":1}`
	mock.ExpectGet("ticket.availability.e1.tt1").RedisNil()
	mock.ExpectSet("ticket.availability.e1.tt1", []byte(entry), time.Minute).SetVal("OK")
	mock.ExpectGet("ticket.availability.e1.tt1").SetVal(`{"id":"tt1","event_id":"e1","name":"GA","price_cents":5000,"total_quantity":10,"sold":7}`)

	tt, err := svc.Availability(context.Background(), "e1", "tt1")
	require.NoError(t, err)
	assert.Equal(t, 9, tt.Available())

	// a cached snapshot wins over the store until it is invalidated
	tt, err = svc.Availability(context.Background(), "e1", "tt1")
	require.NoError(t, err)
	assert.Equal(t, 3, tt.Available())
	assert.NoError(t, mock.ExpectationsWereMet())
}
