// Package orders owns order aggregates: line items, toppings and their totals.
//
// Every mutation of one order runs inside that order's critical section, so two
// registers editing the same ticket cannot compute totals from a stale item list.
package orders

import (
	"context"
	"time"

	"github.com/ariefcatur/go-pos-checkout/internal/apperr"
	"github.com/ariefcatur/go-pos-checkout/internal/audit"
	"github.com/ariefcatur/go-pos-checkout/internal/auth"
	"github.com/ariefcatur/go-pos-checkout/internal/catalog"
	"github.com/ariefcatur/go-pos-checkout/internal/pricing"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type AddItemInput struct {
	CatalogItemID string   `json:"catalogItemId"`
	Size          string   `json:"size,omitempty"`
	Flavor        string   `json:"flavor,omitempty"`
	Quantity      int      `json:"quantity"`
	ToppingIDs    []string `json:"toppingIds,omitempty"`
}

type Manager struct {
	store   Store
	catalog catalog.Store
	pricing pricing.Engine
	audit   audit.Sink
	log     *zap.Logger
	locks   *keyedLock
	now     func() time.Time
}

func NewManager(store Store, cat catalog.Store, engine pricing.Engine, sink audit.Sink, log *zap.Logger) *Manager {
	return &Manager{
		store:   store,
		catalog: cat,
		pricing: engine,
		audit:   sink,
		log:     log,
		locks:   newKeyedLock(),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (m *Manager) Create(ctx context.Context, ownerID string) (Order, error) {
	if ownerID == "" {
		return Order{}, apperr.Validation("owner id is required")
	}
	now := m.now()
	o := Order{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		Status:    StatusOpen,
		Items:     []OrderItem{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	o.recompute(m.pricing)
	if err := m.store.Insert(ctx, o); err != nil {
		return Order{}, err
	}
	m.audit.Record(ctx, audit.NewEntry(ownerID, audit.ActionCreateOrder, audit.EntityOrder, o.ID, map[string]any{"orderId": o.ID}))
	return o, nil
}

// Get returns an order to its owner or to a manager. It waits for an in-flight
// mutation or checkout of the same order, so it never observes a half-done transition.
func (m *Manager) Get(ctx context.Context, orderID string, caller auth.Principal) (Order, error) {
	unlock, err := m.locks.Lock(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	defer unlock()

	o, err := m.store.Get(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	if o.OwnerID != caller.ID && !caller.Role.CanManage() {
		return Order{}, apperr.Forbidden("order %s belongs to another user", orderID)
	}
	return o, nil
}

// List is a managerial report across all registers.
func (m *Manager) List(ctx context.Context, caller auth.Principal, f Filter) ([]Order, error) {
	if !caller.Role.CanManage() {
		return nil, apperr.Forbidden("role %s may not list orders", caller.Role)
	}
	if f.Status != "" {
		if _, ok := ParseStatus(string(f.Status)); !ok {
			return nil, apperr.Validation("unknown status %q", f.Status)
		}
	}
	if !f.From.IsZero() && !f.To.IsZero() && f.To.Before(f.From) {
		return nil, apperr.Validation("'to' must not be before 'from'")
	}
	return m.store.List(ctx, f)
}

// saveTimeout bounds the write that follows a successful fn in Mutate.
const saveTimeout = 5 * time.Second

// Mutate loads the order under its lock, lets fn change a copy and saves it when
// fn reports a change. Nothing is written when fn fails. Once fn succeeds the
// save no longer follows ctx cancellation, since fn may already have touched
// other systems (payment, stock) on the order's behalf.
func (m *Manager) Mutate(ctx context.Context, orderID string, fn func(o *Order) (changed bool, err error)) (Order, error) {
	unlock, err := m.locks.Lock(ctx, orderID)
	if err != nil {
		return Order{}, apperr.Wrap(err, apperr.KindTimeout, "waiting for order lock")
	}
	defer unlock()

	o, err := m.store.Get(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	changed, err := fn(&o)
	if err != nil {
		return Order{}, err
	}
	if !changed {
		return o, nil
	}
	o.recompute(m.pricing)
	o.UpdatedAt = m.now()

	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), saveTimeout)
	defer cancel()
	if err := m.store.Save(saveCtx, o); err != nil {
		return Order{}, err
	}
	return o, nil
}

// guardOpenOwned applies the shared checks in the order the register expects:
// the order must be OPEN, then belong to the caller.
func guardOpenOwned(o *Order, callerID string) error {
	if o.Status != StatusOpen {
		return apperr.InvalidState("order %s is %s, not OPEN", o.ID, o.Status)
	}
	if o.OwnerID != callerID {
		return apperr.Forbidden("order %s belongs to another user", o.ID)
	}
	return nil
}

func (m *Manager) AddItem(ctx context.Context, orderID, callerID string, in AddItemInput) (OrderItem, error) {
	newID := uuid.NewString()
	o, err := m.Mutate(ctx, orderID, func(o *Order) (bool, error) {
		if err := guardOpenOwned(o, callerID); err != nil {
			return false, err
		}
		if in.Quantity < MinQuantity || in.Quantity > MaxQuantity {
			return false, apperr.Validation("quantity must be between %d and %d", MinQuantity, MaxQuantity)
		}
		if in.CatalogItemID == "" {
			return false, apperr.Validation("catalogItemId is required")
		}

		item, err := m.catalog.Get(ctx, in.CatalogItemID)
		if err != nil {
			return false, err
		}
		oi := OrderItem{
			ID:            newID,
			OrderID:       o.ID,
			CatalogItemID: item.ID,
			Size:          in.Size,
			Flavor:        in.Flavor,
			Quantity:      in.Quantity,
			BasePrice:     item.BasePrice,
			Toppings:      make([]OrderItemTopping, 0, len(in.ToppingIDs)),
		}
		for _, tid := range in.ToppingIDs {
			tp, err := m.catalog.Get(ctx, tid)
			if err != nil {
				return false, err
			}
			if !tp.IsTopping {
				return false, apperr.Validation("catalog item %s is not a topping", tid)
			}
			oi.Toppings = append(oi.Toppings, OrderItemTopping{
				ID:            uuid.NewString(),
				OrderItemID:   oi.ID,
				CatalogItemID: tp.ID,
				PriceDelta:    tp.BasePrice,
			})
		}
		o.Items = append(o.Items, oi)
		return true, nil
	})
	if err != nil {
		return OrderItem{}, err
	}

	// Line totals are filled in by Mutate's recompute.
	added := o.Items[o.itemIndex(newID)]
	m.audit.Record(ctx, audit.NewEntry(callerID, audit.ActionAddItem, audit.EntityOrder, orderID, map[string]any{
		"orderItemId":   added.ID,
		"catalogItemId": in.CatalogItemID,
		"quantity":      in.Quantity,
		"toppingIds":    in.ToppingIDs,
	}))
	return added, nil
}

func (m *Manager) RemoveItem(ctx context.Context, orderID, callerID, itemID string) error {
	_, err := m.Mutate(ctx, orderID, func(o *Order) (bool, error) {
		if err := guardOpenOwned(o, callerID); err != nil {
			return false, err
		}
		i := o.itemIndex(itemID)
		if i < 0 {
			return false, apperr.NotFound("item %s not found on order %s", itemID, orderID)
		}
		o.Items = append(o.Items[:i], o.Items[i+1:]...)
		return true, nil
	})
	if err != nil {
		return err
	}
	m.audit.Record(ctx, audit.NewEntry(callerID, audit.ActionRemoveItem, audit.EntityOrder, orderID, map[string]any{
		"orderItemId": itemID,
	}))
	return nil
}

// Void closes an order by hand. The owner or a manager may void while the order
// is OPEN or PAID. Stock consumed by a paid order is not returned.
func (m *Manager) Void(ctx context.Context, orderID string, caller auth.Principal) (Order, error) {
	var prev Status
	o, err := m.Mutate(ctx, orderID, func(o *Order) (bool, error) {
		if o.OwnerID != caller.ID && !caller.Role.CanManage() {
			return false, apperr.Forbidden("order %s belongs to another user", orderID)
		}
		if !CanTransition(o.Status, StatusVoid) {
			return false, apperr.InvalidState("order %s is already %s", orderID, o.Status)
		}
		prev = o.Status
		o.Status = StatusVoid
		return true, nil
	})
	if err != nil {
		return Order{}, err
	}
	m.audit.Record(ctx, audit.NewEntry(caller.ID, audit.ActionVoidOrder, audit.EntityOrder, orderID, map[string]any{
		"voidedBy":       caller.ID,
		"previousStatus": string(prev),
	}))
	m.log.Info("order voided", zap.String("order_id", orderID), zap.String("previous_status", string(prev)))
	return o, nil
}
