package orders

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreIsolatesCallers(t *testing.T) {
	s := NewMemoryStore()
	o := Order{ID: "o-1", OwnerID: "u", Status: StatusOpen, Items: []OrderItem{{
		ID: "i-1", Quantity: 1, BasePrice: decimal.NewFromInt(5),
		Toppings: []OrderItemTopping{{ID: "t-1", PriceDelta: decimal.NewFromInt(1)}},
	}}}
	require.NoError(t, s.Insert(ctxBg, o))

	o.Items[0].Toppings[0].PriceDelta = decimal.NewFromInt(100)
	got, err := s.Get(ctxBg, "o-1")
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(1).Equal(got.Items[0].Toppings[0].PriceDelta))

	got.Items = nil
	again, _ := s.Get(ctxBg, "o-1")
	assert.Len(t, again.Items, 1)
}

func TestMemoryStoreInsertSave(t *testing.T) {
	s := NewMemoryStore()
	o := Order{ID: "o-1", Status: StatusOpen}
	require.NoError(t, s.Insert(ctxBg, o))
	assert.Error(t, s.Insert(ctxBg, o))

	o.Status = StatusPaid
	require.NoError(t, s.Save(ctxBg, o))
	got, _ := s.Get(ctxBg, "o-1")
	assert.Equal(t, StatusPaid, got.Status)

	assert.Error(t, s.Save(ctxBg, Order{ID: "ghost"}))
}

func TestMemoryStoreListFilters(t *testing.T) {
	s := NewMemoryStore()
	t0 := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	for i, st := range []Status{StatusOpen, StatusPaid, StatusPaid, StatusVoid} {
		require.NoError(t, s.Insert(ctxBg, Order{
			ID:        string(rune('a' + i)),
			Status:    st,
			CreatedAt: t0.Add(time.Duration(i) * time.Hour),
		}))
	}

	paid, err := s.List(ctxBg, Filter{Status: StatusPaid})
	require.NoError(t, err)
	require.Len(t, paid, 2)
	assert.Equal(t, "c", paid[0].ID)
	assert.Equal(t, "b", paid[1].ID)

	window, err := s.List(ctxBg, Filter{From: t0.Add(time.Hour), To: t0.Add(2 * time.Hour)})
	require.NoError(t, err)
	assert.Len(t, window, 2)
}

func TestSaveAllowedAgainstStoredStatus(t *testing.T) {
	cases := []struct {
		stored, next Status
		want         bool
	}{
		{StatusOpen, StatusOpen, true},
		{StatusOpen, StatusPaid, true},
		{StatusOpen, StatusVoid, true},
		{StatusPaid, StatusVoid, true},
		{StatusPaid, StatusOpen, false}, // item edit racing a checkout in another process
		{StatusPaid, StatusPaid, false},
		{StatusVoid, StatusOpen, false},
		{StatusVoid, StatusVoid, false},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, saveAllowed(c.stored, c.next), "%s -> %s", c.stored, c.next)
	}
}
