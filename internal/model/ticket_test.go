package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTicketTypeAvailable(t *testing.T) {
	tt := &TicketType{TotalQuantity: 10, SoldOrReserved: 4}
	assert.Equal(t, 6, tt.Available())

	tt.SoldOrReserved = 12
	assert.Equal(t, 0, tt.Available())
}

func TestTicketStatus(t *testing.T) {
	assert.True(t, TicketReserved.HoldsInventory())
	assert.True(t, TicketPurchased.HoldsInventory())
	assert.False(t, TicketCancelled.HoldsInventory())
	assert.False(t, TicketRefunded.HoldsInventory())

	assert.True(t, TicketCancelled.Terminal())
	assert.True(t, TicketUsed.Terminal())
	assert.False(t, TicketPurchased.Terminal())
}
