package orders

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusPending, StatusConfirmed, true},
		{StatusPending, StatusDelivered, true},
		{StatusConfirmed, StatusConfirmed, true},
		{StatusShipping, StatusDelivered, true},
		{StatusProcessing, StatusPending, false},
		{StatusShipping, StatusConfirmed, false},
		{StatusPending, StatusCancelled, false},
		{StatusDelivered, StatusDelivered, false},
		{StatusCancelled, StatusPending, false},
		{Status("lost"), StatusConfirmed, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestStatusPredicates(t *testing.T) {
	assert.True(t, StatusPending.Cancellable())
	assert.True(t, StatusConfirmed.Cancellable())
	assert.False(t, StatusProcessing.Cancellable())
	assert.True(t, StatusDelivered.Terminal())
	assert.True(t, StatusCancelled.Terminal())
	assert.False(t, StatusShipping.Terminal())
	assert.False(t, Status("").Valid())
	assert.True(t, PaymentMomo.Valid())
	assert.False(t, PaymentMethod("cash").Valid())
	assert.True(t, CarrierViettelPost.Valid())
	assert.False(t, Carrier("ghn").Valid())
}

func TestNewOrderNumber(t *testing.T) {
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	a := NewOrderNumber(now)
	b := NewOrderNumber(now)

	assert.True(t, strings.HasPrefix(a, "ORD"))
	assert.Len(t, a, 3+26)
	assert.NotEqual(t, a, b)
	// the ULID timestamp prefix keeps numbers sortable by creation time
	assert.Less(t, a[:13], NewOrderNumber(now.Add(time.Second))[:13])
}

func TestCleanText(t *testing.T) {
	assert.Equal(t, "", cleanText("   "))
	assert.Equal(t, "call first", cleanText("  <b>call first</b> "))
}
