package orders

import (
	"context"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/ariefcatur/go-pos-checkout/internal/apperr"
	"github.com/ariefcatur/go-pos-checkout/internal/audit"
	"github.com/ariefcatur/go-pos-checkout/internal/auth"
	"github.com/ariefcatur/go-pos-checkout/internal/catalog"
	"github.com/ariefcatur/go-pos-checkout/internal/pricing"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/sync/errgroup"
)

var (
	cashier = auth.Principal{ID: "cashier-1", Role: auth.RoleCashier}
	other   = auth.Principal{ID: "cashier-2", Role: auth.RoleCashier}
	boss    = auth.Principal{ID: "manager-1", Role: auth.RoleManager}
	ctxBg   = context.Background()
	dec     = decimal.RequireFromString
)

func newManager(t *testing.T) (*Manager, *audit.MemorySink) {
	t.Helper()
	sink := &audit.MemorySink{}
	m := NewManager(NewMemoryStore(), catalog.NewMemoryStore(catalog.SeedItems()...), pricing.NewEngine(pricing.DefaultTaxRate), sink, zaptest.NewLogger(t))
	return m, sink
}

func burgerWithBacon(qty int) AddItemInput {
	return AddItemInput{CatalogItemID: "hamburger", Quantity: qty, ToppingIDs: []string{"bacon"}}
}

func TestCreateStartsEmptyAndOpen(t *testing.T) {
	m, sink := newManager(t)

	o, err := m.Create(ctxBg, cashier.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusOpen, o.Status)
	assert.Empty(t, o.Items)
	assert.True(t, o.Total.IsZero())
	assert.Len(t, sink.ByAction(audit.ActionCreateOrder), 1)

	_, err = m.Create(ctxBg, "")
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestAddItemComputesTotals(t *testing.T) {
	m, sink := newManager(t)
	o, err := m.Create(ctxBg, cashier.ID)
	require.NoError(t, err)

	it, err := m.AddItem(ctxBg, o.ID, cashier.ID, burgerWithBacon(2))
	require.NoError(t, err)
	assert.True(t, dec("21.98").Equal(it.LineTotal), it.LineTotal.String())
	require.Len(t, it.Toppings, 1)
	assert.True(t, dec("2.00").Equal(it.Toppings[0].PriceDelta))

	got, err := m.Get(ctxBg, o.ID, cashier)
	require.NoError(t, err)
	assert.True(t, dec("21.98").Equal(got.Subtotal), got.Subtotal.String())
	assert.True(t, dec("1.54").Equal(got.Tax), got.Tax.String())
	assert.True(t, dec("23.52").Equal(got.Total), got.Total.String())

	entries := sink.ByAction(audit.ActionAddItem)
	require.Len(t, entries, 1)
	assert.Equal(t, it.ID, entries[0].Metadata["orderItemId"])
}

func TestPricesAreCapturedAtAddTime(t *testing.T) {
	cat := catalog.NewMemoryStore(catalog.SeedItems()...)
	m := NewManager(NewMemoryStore(), cat, pricing.NewEngine(pricing.DefaultTaxRate), &audit.MemorySink{}, zaptest.NewLogger(t))
	o, _ := m.Create(ctxBg, cashier.ID)
	_, err := m.AddItem(ctxBg, o.ID, cashier.ID, AddItemInput{CatalogItemID: "hamburger", Quantity: 1})
	require.NoError(t, err)

	item, _ := cat.Get(ctxBg, "hamburger")
	item.BasePrice = dec("99.00")
	cat.Put(item)

	_, err = m.AddItem(ctxBg, o.ID, cashier.ID, AddItemInput{CatalogItemID: "hot-dog", Quantity: 1})
	require.NoError(t, err)

	got, err := m.Get(ctxBg, o.ID, cashier)
	require.NoError(t, err)
	assert.True(t, dec("8.99").Equal(got.Items[0].BasePrice))
	assert.True(t, dec("15.98").Equal(got.Subtotal), got.Subtotal.String())
}

func TestRemoveItemRecomputes(t *testing.T) {
	m, sink := newManager(t)
	o, _ := m.Create(ctxBg, cashier.ID)
	a, err := m.AddItem(ctxBg, o.ID, cashier.ID, burgerWithBacon(2))
	require.NoError(t, err)
	_, err = m.AddItem(ctxBg, o.ID, cashier.ID, AddItemInput{CatalogItemID: "hot-dog", Quantity: 1})
	require.NoError(t, err)

	require.NoError(t, m.RemoveItem(ctxBg, o.ID, cashier.ID, a.ID))

	got, _ := m.Get(ctxBg, o.ID, cashier)
	require.Len(t, got.Items, 1)
	assert.True(t, dec("6.99").Equal(got.Subtotal))
	assert.True(t, dec("0.49").Equal(got.Tax), got.Tax.String())
	assert.True(t, got.Total.Equal(got.Subtotal.Add(got.Tax)))
	assert.Len(t, sink.ByAction(audit.ActionRemoveItem), 1)

	err = m.RemoveItem(ctxBg, o.ID, cashier.ID, a.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestEmptyingAnOrderZeroesTotals(t *testing.T) {
	m, _ := newManager(t)
	o, _ := m.Create(ctxBg, cashier.ID)
	it, _ := m.AddItem(ctxBg, o.ID, cashier.ID, burgerWithBacon(1))
	require.NoError(t, m.RemoveItem(ctxBg, o.ID, cashier.ID, it.ID))

	got, _ := m.Get(ctxBg, o.ID, cashier)
	assert.True(t, got.Subtotal.IsZero())
	assert.True(t, got.Tax.IsZero())
	assert.True(t, got.Total.IsZero())
}

func TestAddItemGuards(t *testing.T) {
	m, sink := newManager(t)
	o, _ := m.Create(ctxBg, cashier.ID)
	before := len(sink.Entries())

	tests := []struct {
		name    string
		orderID string
		caller  string
		in      AddItemInput
		want    error
	}{
		{"unknown order", "nope", cashier.ID, burgerWithBacon(1), apperr.ErrNotFound},
		{"other owner", o.ID, other.ID, burgerWithBacon(1), apperr.ErrForbidden},
		{"zero quantity", o.ID, cashier.ID, burgerWithBacon(0), apperr.ErrValidation},
		{"too many", o.ID, cashier.ID, burgerWithBacon(100), apperr.ErrValidation},
		{"unknown catalog item", o.ID, cashier.ID, AddItemInput{CatalogItemID: "lobster", Quantity: 1}, apperr.ErrNotFound},
		{"unknown topping", o.ID, cashier.ID, AddItemInput{CatalogItemID: "hamburger", Quantity: 1, ToppingIDs: []string{"gold-leaf"}}, apperr.ErrNotFound},
		{"non-topping as topping", o.ID, cashier.ID, AddItemInput{CatalogItemID: "hamburger", Quantity: 1, ToppingIDs: []string{"fries-regular"}}, apperr.ErrValidation},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := m.AddItem(ctxBg, tc.orderID, tc.caller, tc.in)
			assert.ErrorIs(t, err, tc.want)
		})
	}

	got, _ := m.Get(ctxBg, o.ID, cashier)
	assert.Empty(t, got.Items)
	assert.Len(t, sink.Entries(), before)
}

func TestInvalidStateComesBeforeOwnership(t *testing.T) {
	m, _ := newManager(t)
	o, _ := m.Create(ctxBg, cashier.ID)
	_, err := m.Void(ctxBg, o.ID, cashier)
	require.NoError(t, err)

	_, err = m.AddItem(ctxBg, o.ID, other.ID, burgerWithBacon(1))
	assert.ErrorIs(t, err, apperr.ErrInvalidState)
	err = m.RemoveItem(ctxBg, o.ID, other.ID, "x")
	assert.ErrorIs(t, err, apperr.ErrInvalidState)
}

func TestGetVisibility(t *testing.T) {
	m, _ := newManager(t)
	o, _ := m.Create(ctxBg, cashier.ID)

	_, err := m.Get(ctxBg, o.ID, other)
	assert.ErrorIs(t, err, apperr.ErrForbidden)
	_, err = m.Get(ctxBg, o.ID, boss)
	assert.NoError(t, err)
	_, err = m.Get(ctxBg, "missing", boss)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestVoid(t *testing.T) {
	m, sink := newManager(t)
	o, _ := m.Create(ctxBg, cashier.ID)

	_, err := m.Void(ctxBg, o.ID, other)
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	v, err := m.Void(ctxBg, o.ID, boss)
	require.NoError(t, err)
	assert.Equal(t, StatusVoid, v.Status)

	_, err = m.Void(ctxBg, o.ID, boss)
	assert.ErrorIs(t, err, apperr.ErrInvalidState)

	entries := sink.ByAction(audit.ActionVoidOrder)
	require.Len(t, entries, 1)
	assert.Equal(t, "OPEN", entries[0].Metadata["previousStatus"])
}

func TestVoidPaidOrder(t *testing.T) {
	m, _ := newManager(t)
	o, _ := m.Create(ctxBg, cashier.ID)
	_, err := m.Mutate(ctxBg, o.ID, func(o *Order) (bool, error) {
		o.Status = StatusPaid
		return true, nil
	})
	require.NoError(t, err)

	v, err := m.Void(ctxBg, o.ID, cashier)
	require.NoError(t, err)
	assert.Equal(t, StatusVoid, v.Status)
}

func TestListRequiresManageCapability(t *testing.T) {
	m, _ := newManager(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tick := 0
	m.now = func() time.Time { tick++; return base.Add(time.Duration(tick) * time.Minute) }

	first, _ := m.Create(ctxBg, cashier.ID)
	second, _ := m.Create(ctxBg, other.ID)
	_, err := m.Void(ctxBg, first.ID, boss)
	require.NoError(t, err)

	_, err = m.List(ctxBg, cashier, Filter{})
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	all, err := m.List(ctxBg, boss, Filter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, second.ID, all[0].ID)

	open, err := m.List(ctxBg, boss, Filter{Status: StatusOpen})
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, second.ID, open[0].ID)

	_, err = m.List(ctxBg, boss, Filter{Status: "LOST"})
	assert.ErrorIs(t, err, apperr.ErrValidation)
	_, err = m.List(ctxBg, boss, Filter{From: base.Add(time.Hour), To: base})
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestConcurrentAddsKeepEveryItem(t *testing.T) {
	m, _ := newManager(t)
	o, _ := m.Create(ctxBg, cashier.ID)

	const n = 40
	var g errgroup.Group
	for i := 0; i < n; i++ {
		g.Go(func() error {
			_, err := m.AddItem(ctxBg, o.ID, cashier.ID, AddItemInput{CatalogItemID: "hot-dog", Quantity: 1})
			return err
		})
	}
	require.NoError(t, g.Wait())

	got, err := m.Get(ctxBg, o.ID, cashier)
	require.NoError(t, err)
	assert.Len(t, got.Items, n)
	assert.True(t, dec("6.99").Mul(decimal.NewFromInt(n)).Equal(got.Subtotal), got.Subtotal.String())
	assert.Equal(t, 0, m.locks.size())
}

func TestMutateFailureWritesNothing(t *testing.T) {
	m, _ := newManager(t)
	o, _ := m.Create(ctxBg, cashier.ID)

	_, err := m.Mutate(ctxBg, o.ID, func(o *Order) (bool, error) {
		o.Status = StatusPaid
		return false, apperr.Conflict("nope")
	})
	assert.ErrorIs(t, err, apperr.ErrConflict)

	got, _ := m.Get(ctxBg, o.ID, cashier)
	assert.Equal(t, StatusOpen, got.Status)
}

// Random add/remove sequences must keep the aggregate's totals consistent after every step.
func TestTotalsStayConsistentUnderRandomEdits(t *testing.T) {
	m, _ := newManager(t)
	rng := rand.New(rand.NewPCG(7, 11))

	var mains, toppings []string
	for _, it := range catalog.SeedItems() {
		if it.IsTopping {
			toppings = append(toppings, it.ID)
		} else {
			mains = append(mains, it.ID)
		}
	}

	o, err := m.Create(ctxBg, cashier.ID)
	require.NoError(t, err)

	for step := 0; step < 200; step++ {
		cur, err := m.Get(ctxBg, o.ID, cashier)
		require.NoError(t, err)

		if len(cur.Items) > 0 && rng.IntN(3) == 0 {
			victim := cur.Items[rng.IntN(len(cur.Items))].ID
			require.NoError(t, m.RemoveItem(ctxBg, o.ID, cashier.ID, victim), "step %d", step)
		} else {
			in := AddItemInput{CatalogItemID: mains[rng.IntN(len(mains))], Quantity: 1 + rng.IntN(MaxQuantity)}
			for n := rng.IntN(4); n > 0; n-- {
				in.ToppingIDs = append(in.ToppingIDs, toppings[rng.IntN(len(toppings))])
			}
			_, err := m.AddItem(ctxBg, o.ID, cashier.ID, in)
			require.NoError(t, err, "step %d", step)
		}

		got, err := m.Get(ctxBg, o.ID, cashier)
		require.NoError(t, err)
		assertTotalsConsistent(t, got, step)
	}
}

func assertTotalsConsistent(t *testing.T, o Order, step int) {
	t.Helper()
	sum := decimal.Zero
	for _, it := range o.Items {
		unit := it.BasePrice
		for _, tp := range it.Toppings {
			unit = unit.Add(tp.PriceDelta)
		}
		require.True(t, unit.Mul(decimal.NewFromInt(int64(it.Quantity))).Equal(it.LineTotal),
			"step %d: item %s line total %s", step, it.ID, it.LineTotal)
		sum = sum.Add(it.LineTotal)
	}
	require.True(t, sum.Equal(o.Subtotal), "step %d: subtotal %s, items sum to %s", step, o.Subtotal, sum)
	require.True(t, o.Subtotal.Mul(pricing.DefaultTaxRate).Round(2).Equal(o.Tax), "step %d: tax %s", step, o.Tax)
	require.True(t, o.Subtotal.Add(o.Tax).Equal(o.Total), "step %d: total %s", step, o.Total)
}
