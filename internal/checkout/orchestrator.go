// Package checkout turns an OPEN order into a PAID one: it settles payment, reserves
// stock for every item and topping, and commits the order, or leaves everything as it was.
package checkout

import (
	"context"
	"errors"
	"time"

	"github.com/ariefcatur/go-pos-checkout/internal/apperr"
	"github.com/ariefcatur/go-pos-checkout/internal/audit"
	"github.com/ariefcatur/go-pos-checkout/internal/auth"
	"github.com/ariefcatur/go-pos-checkout/internal/inventory"
	"github.com/ariefcatur/go-pos-checkout/internal/metrics"
	"github.com/ariefcatur/go-pos-checkout/internal/orders"
	"github.com/ariefcatur/go-pos-checkout/internal/payment"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const DefaultTimeout = 10 * time.Second

// releaseTimeout bounds the compensation that hands a reservation back.
const releaseTimeout = 5 * time.Second

type Stage string

const (
	StageValidating Stage = "VALIDATING"
	StagePaying     Stage = "PAYING"
	StageReserving  Stage = "RESERVING"
	StageCommitted  Stage = "COMMITTED"
	StageAborted    Stage = "ABORTED"
)

type Settler interface {
	Settle(ctx context.Context, method payment.Method, amount decimal.Decimal, cashTendered *decimal.Decimal) (payment.Settlement, error)
}

// Committer makes the stock decrement and the OPEN to PAID transition durable as
// one unit, failing with no effect at all. It receives the order already marked
// PAID in memory. Without a Committer the ledger reserves, the order manager saves,
// and a failed save is compensated with Release.
type Committer interface {
	CommitPaid(ctx context.Context, o *orders.Order, req inventory.Requirements) error
}

type Request struct {
	OrderID       string
	Caller        auth.Principal
	PaymentMethod payment.Method
	CashTendered  *decimal.Decimal
}

type Result struct {
	Order         orders.Order     `json:"order"`
	PaymentMethod payment.Method   `json:"paymentMethod"`
	ChangeDue     *decimal.Decimal `json:"changeDue,omitempty"`
}

type Orchestrator struct {
	orders    *orders.Manager
	ledger    inventory.Ledger
	payments  Settler
	committer Committer
	audit     audit.Sink
	metrics   *metrics.CheckoutMetrics
	log       *zap.Logger
	tracer    trace.Tracer
	timeout   time.Duration
}

type Option func(*Orchestrator)

func WithTimeout(d time.Duration) Option { return func(o *Orchestrator) { o.timeout = d } }

func WithCommitter(c Committer) Option { return func(o *Orchestrator) { o.committer = c } }

func WithMetrics(m *metrics.CheckoutMetrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

func New(om *orders.Manager, ledger inventory.Ledger, payments Settler, sink audit.Sink, log *zap.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		orders:   om,
		ledger:   ledger,
		payments: payments,
		audit:    sink,
		log:      log,
		tracer:   otel.Tracer("pos/checkout"),
		timeout:  DefaultTimeout,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Requirements sums the stock an order consumes: each item's quantity against its
// own catalog id and the same quantity against each of its toppings.
func Requirements(o orders.Order) inventory.Requirements {
	req := inventory.Requirements{}
	for _, it := range o.Items {
		req.Add(it.CatalogItemID, it.Quantity)
		for _, tp := range it.Toppings {
			req.Add(tp.CatalogItemID, it.Quantity)
		}
	}
	return req
}

// Checkout runs one attempt. On any error the order stays OPEN and stock is untouched;
// the error's Retryable flag says whether resubmitting can succeed.
func (c *Orchestrator) Checkout(ctx context.Context, r Request) (Result, error) {
	ctx, span := c.tracer.Start(ctx, "checkout", trace.WithAttributes(
		attribute.String("order.id", r.OrderID),
		attribute.String("payment.method", string(r.PaymentMethod)),
	))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var (
		stage      = StageValidating
		settlement payment.Settlement
		req        inventory.Requirements
		reserved   bool
	)
	committed, err := c.orders.Mutate(ctx, r.OrderID, func(o *orders.Order) (bool, error) {
		if err := validate(o, r); err != nil {
			return false, err
		}
		req = Requirements(*o)

		stage = StagePaying
		st, err := c.pay(ctx, r, o.Total)
		if err != nil {
			return false, err
		}
		settlement = st

		stage = StageReserving
		o.Status = orders.StatusPaid
		o.PaymentMethod = r.PaymentMethod
		if c.committer != nil {
			// the committer persists the order; Mutate has nothing left to save
			return false, c.commit(ctx, o, req)
		}
		if err := c.reserve(ctx, req); err != nil {
			return false, err
		}
		reserved = true
		return true, nil
	})
	if err != nil {
		if reserved {
			c.release(ctx, r.OrderID, req)
		}
		err = normalize(err)
		c.observe(string(apperr.KindOf(err)))
		span.RecordError(err)
		span.SetStatus(codes.Error, string(stage))
		c.log.Info("checkout "+string(StageAborted),
			zap.String("order_id", r.OrderID),
			zap.String("stage", string(stage)),
			zap.Bool("retryable", apperr.IsRetryable(err)),
			zap.Error(err))
		return Result{}, err
	}

	c.observe("OK")
	span.SetStatus(codes.Ok, string(StageCommitted))
	c.log.Info("checkout "+string(StageCommitted),
		zap.String("order_id", committed.ID),
		zap.String("payment_method", string(r.PaymentMethod)),
		zap.String("total", committed.Total.StringFixed(2)))

	meta := map[string]any{
		"paymentMethod": string(r.PaymentMethod),
		"total":         committed.Total.StringFixed(2),
	}
	if settlement.Tendered != nil {
		meta["cashTendered"] = settlement.Tendered.StringFixed(2)
	}
	if settlement.ChangeDue != nil {
		meta["changeDue"] = settlement.ChangeDue.StringFixed(2)
	}
	c.audit.Record(context.WithoutCancel(ctx), audit.NewEntry(r.Caller.ID, audit.ActionCheckout, audit.EntityOrder, committed.ID, meta))

	return Result{Order: committed, PaymentMethod: r.PaymentMethod, ChangeDue: settlement.ChangeDue}, nil
}

func validate(o *orders.Order, r Request) error {
	if o.Status != orders.StatusOpen {
		return apperr.InvalidState("order %s is %s, not OPEN", o.ID, o.Status)
	}
	if o.OwnerID != r.Caller.ID {
		return apperr.Forbidden("order %s belongs to another user", o.ID)
	}
	if len(o.Items) == 0 {
		return apperr.InvalidState("order %s has no items", o.ID)
	}
	if _, err := payment.ParseMethod(string(r.PaymentMethod)); err != nil {
		return err
	}
	return nil
}

func (c *Orchestrator) pay(ctx context.Context, r Request, total decimal.Decimal) (payment.Settlement, error) {
	ctx, span := c.tracer.Start(ctx, "checkout.pay")
	defer span.End()

	start := time.Now()
	st, err := c.payments.Settle(ctx, r.PaymentMethod, total, r.CashTendered)
	if c.metrics != nil {
		c.metrics.PaymentLatency.WithLabelValues(string(r.PaymentMethod)).Observe(time.Since(start).Seconds())
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "payment failed")
	}
	return st, err
}

func (c *Orchestrator) reserve(ctx context.Context, req inventory.Requirements) error {
	ctx, span := c.tracer.Start(ctx, "checkout.reserve", trace.WithAttributes(
		attribute.Int("inventory.rows", len(req)),
	))
	defer span.End()

	if err := c.ledger.ReserveAndCommit(ctx, req); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "reservation failed")
		return err
	}
	return nil
}

func (c *Orchestrator) commit(ctx context.Context, o *orders.Order, req inventory.Requirements) error {
	ctx, span := c.tracer.Start(ctx, "checkout.reserve", trace.WithAttributes(
		attribute.Int("inventory.rows", len(req)),
		attribute.Bool("checkout.single_tx", true),
	))
	defer span.End()

	if err := c.committer.CommitPaid(ctx, o, req); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "commit failed")
		return err
	}
	return nil
}

// release hands back stock reserved for an order whose commit failed.
func (c *Orchestrator) release(ctx context.Context, orderID string, req inventory.Requirements) {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()
	if c.metrics != nil {
		c.metrics.Releases.Inc()
	}
	if err := c.ledger.Release(rctx, req); err != nil {
		c.log.Error("reservation release failed; stock needs manual correction",
			zap.String("order_id", orderID), zap.Any("requirements", req), zap.Error(err))
	}
}

func (c *Orchestrator) observe(outcome string) {
	if c.metrics != nil {
		c.metrics.Outcomes.WithLabelValues(outcome).Inc()
	}
}

// normalize turns context expiry into a retryable Timeout.
func normalize(err error) error {
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return apperr.Wrap(err, apperr.KindTimeout, "checkout did not finish in time")
	}
	return apperr.Wrap(err, apperr.KindInternal, "checkout failed")
}
