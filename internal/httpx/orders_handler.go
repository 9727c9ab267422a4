package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ariefcatur/go-pos-checkout/internal/apperr"
	"github.com/ariefcatur/go-pos-checkout/internal/checkout"
	"github.com/ariefcatur/go-pos-checkout/internal/orders"
	"github.com/ariefcatur/go-pos-checkout/internal/payment"
	"github.com/ariefcatur/go-pos-checkout/internal/redisx"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const HeaderIdempotencyKey = "Idempotency-Key"

type OrdersHandler struct {
	Orders   *orders.Manager
	Checkout *checkout.Orchestrator
	Redis    redis.Cmdable // optional; nil disables replay and the status cache
	Log      *zap.Logger
	// CheckoutTimeout bounds how long an idempotency key stays claimed by an in-flight checkout.
	CheckoutTimeout time.Duration
}

type CheckoutReq struct {
	PaymentMethod string           `json:"paymentMethod"`
	CashTendered  *decimal.Decimal `json:"cashTendered,omitempty"`
}

// orderStatus is the cached summary served by GET /orders/{id}/status.
type orderStatus struct {
	OrderID string          `json:"orderId"`
	OwnerID string          `json:"ownerId"`
	Status  orders.Status   `json:"status"`
	Total   decimal.Decimal `json:"total"`
}

// replayRecord is what a checkout Idempotency-Key stores. The owner is kept so a
// replay is only served to the cashier who settled the order.
type replayRecord struct {
	OwnerID  string          `json:"ownerId"`
	Response json.RawMessage `json:"response"`
}

func (h *OrdersHandler) Register(r chi.Router) {
	r.Post("/orders", h.createOrder)
	r.Get("/orders", h.listOrders)
	r.Get("/orders/{id}", h.getOrder)
	r.Get("/orders/{id}/status", h.getStatus)
	r.Post("/orders/{id}/items", h.addItem)
	r.Delete("/orders/{id}/items/{itemID}", h.removeItem)
	r.Post("/orders/{id}/checkout", h.checkout)
	r.Post("/orders/{id}/void", h.void)
}

func (h *OrdersHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.Orders.Create(r.Context(), principal(r).ID)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	h.cacheStatus(r.Context(), o)
	writeJSON(w, http.StatusCreated, o)
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.Orders.Get(r.Context(), chi.URLParam(r, "id"), principal(r))
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) getStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	p := principal(r)

	// 1) cache
	if h.Redis != nil {
		if s, err := h.Redis.Get(r.Context(), fmt.Sprintf(redisx.KeyOrderStatus, id)).Result(); err == nil {
			var st orderStatus
			if json.Unmarshal([]byte(s), &st) == nil {
				if st.OwnerID != p.ID && !p.Role.CanManage() {
					writeError(w, h.Log, apperr.Forbidden("order %s belongs to another user", id))
					return
				}
				writeJSON(w, http.StatusOK, st)
				return
			}
		}
	}

	// 2) fallback to the store
	o, err := h.Orders.Get(r.Context(), id, p)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	h.cacheStatus(r.Context(), o)
	writeJSON(w, http.StatusOK, statusOf(o))
}

func statusOf(o orders.Order) orderStatus {
	return orderStatus{OrderID: o.ID, OwnerID: o.OwnerID, Status: o.Status, Total: o.Total}
}

func (h *OrdersHandler) cacheStatus(ctx context.Context, o orders.Order) {
	if h.Redis == nil {
		return
	}
	b, _ := json.Marshal(statusOf(o))
	if err := h.Redis.Set(ctx, fmt.Sprintf(redisx.KeyOrderStatus, o.ID), b, redisx.TTLStatusCache).Err(); err != nil {
		h.Log.Warn("status cache write failed", zap.String("order_id", o.ID), zap.Error(err))
	}
}

// refreshStatus re-reads an order after a mutation that does not return it.
func (h *OrdersHandler) refreshStatus(r *http.Request, id string) {
	if h.Redis == nil {
		return
	}
	if o, err := h.Orders.Get(r.Context(), id, principal(r)); err == nil {
		h.cacheStatus(r.Context(), o)
	}
}

func (h *OrdersHandler) listOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var f orders.Filter
	if s := q.Get("status"); s != "" {
		st, ok := orders.ParseStatus(s)
		if !ok {
			badRequest(w, fmt.Sprintf("unknown status %q", s))
			return
		}
		f.Status = st
	}
	for _, p := range []struct {
		name string
		dst  *time.Time
	}{{"from", &f.From}, {"to", &f.To}} {
		if s := q.Get(p.name); s != "" {
			t, err := time.Parse(time.RFC3339, s)
			if err != nil {
				badRequest(w, fmt.Sprintf("%s must be RFC3339", p.name))
				return
			}
			*p.dst = t
		}
	}

	out, err := h.Orders.List(r.Context(), principal(r), f)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *OrdersHandler) addItem(w http.ResponseWriter, r *http.Request) {
	var in orders.AddItemInput
	if err := decode(r, &in); err != nil {
		badRequest(w, "invalid json")
		return
	}
	id := chi.URLParam(r, "id")
	it, err := h.Orders.AddItem(r.Context(), id, principal(r).ID, in)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	h.refreshStatus(r, id)
	writeJSON(w, http.StatusCreated, it)
}

func (h *OrdersHandler) removeItem(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.Orders.RemoveItem(r.Context(), id, principal(r).ID, chi.URLParam(r, "itemID")); err != nil {
		writeError(w, h.Log, err)
		return
	}
	h.refreshStatus(r, id)
	w.WriteHeader(http.StatusNoContent)
}

func (h *OrdersHandler) void(w http.ResponseWriter, r *http.Request) {
	o, err := h.Orders.Void(r.Context(), chi.URLParam(r, "id"), principal(r))
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	h.cacheStatus(r.Context(), o)
	writeJSON(w, http.StatusOK, o)
}

// checkout honours an optional Idempotency-Key: a repeated key replays the stored
// success response, and a key still in flight is refused with a retryable Conflict.
// Failures are never stored since they leave nothing behind to replay.
func (h *OrdersHandler) checkout(w http.ResponseWriter, r *http.Request) {
	var req CheckoutReq
	if err := decode(r, &req); err != nil {
		badRequest(w, "invalid json")
		return
	}
	method, err := payment.ParseMethod(req.PaymentMethod)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	id := chi.URLParam(r, "id")
	p := principal(r)

	idemKey := strings.TrimSpace(r.Header.Get(HeaderIdempotencyKey))
	var replayKey string
	if idemKey != "" && h.Redis != nil {
		replayKey = fmt.Sprintf(redisx.KeyIdemCheckout, id, idemKey)
		if b, err := h.Redis.Get(r.Context(), replayKey).Bytes(); err == nil {
			var rec replayRecord
			if json.Unmarshal(b, &rec) == nil {
				if rec.OwnerID != p.ID {
					writeError(w, h.Log, apperr.Forbidden("order %s belongs to another user", id))
					return
				}
				w.Header().Set("Idempotent-Replayed", "true")
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusOK)
				_, _ = w.Write(rec.Response)
				return
			}
			h.Log.Warn("discarding unreadable idempotency record", zap.String("order_id", id))
		} else if !errors.Is(err, redis.Nil) {
			h.Log.Warn("idempotency lookup failed", zap.String("order_id", id), zap.Error(err))
		}

		won, err := redisx.Claim(r.Context(), h.Redis, replayKey+":lock", h.claimTTL())
		if err == nil && !won {
			writeError(w, h.Log, apperr.Conflict("a checkout with this idempotency key is in progress"))
			return
		}
		defer h.Redis.Del(context.WithoutCancel(r.Context()), replayKey+":lock")
	}

	res, err := h.Checkout.Checkout(r.Context(), checkout.Request{
		OrderID:       id,
		Caller:        p,
		PaymentMethod: method,
		CashTendered:  req.CashTendered,
	})
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	h.cacheStatus(r.Context(), res.Order)

	b, _ := json.Marshal(res)
	if replayKey != "" {
		rec, _ := json.Marshal(replayRecord{OwnerID: res.Order.OwnerID, Response: b})
		if err := h.Redis.Set(context.WithoutCancel(r.Context()), replayKey, rec, redisx.TTLIdempotency).Err(); err != nil {
			h.Log.Warn("idempotency store failed", zap.String("order_id", id), zap.Error(err))
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(b)
}

func (h *OrdersHandler) claimTTL() time.Duration {
	if h.CheckoutTimeout > 0 {
		return h.CheckoutTimeout + time.Second
	}
	return checkout.DefaultTimeout + time.Second
}
