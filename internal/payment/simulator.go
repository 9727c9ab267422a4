// Package payment settles checkout payments: cash with change, or a simulated card
// terminal with a configurable approval rate.
package payment

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/ariefcatur/go-pos-checkout/internal/apperr"
	"github.com/shopspring/decimal"
)

const (
	DefaultApprovalRate = 0.9
	DefaultCardDelay    = 2 * time.Second
)

// Decider answers whether one card authorization is approved.
type Decider interface {
	Approve(rate float64) bool
}

// SeededDecider draws from a PCG source, so a fixed seed replays the same outcomes.
type SeededDecider struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

func NewSeededDecider(seed uint64) *SeededDecider {
	return &SeededDecider{rnd: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

func (d *SeededDecider) Approve(rate float64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.rnd.Float64() < rate
}

// Always approves or declines every authorization.
type Always bool

func (a Always) Approve(float64) bool { return bool(a) }

type Settlement struct {
	Method    Method
	Amount    decimal.Decimal
	Tendered  *decimal.Decimal
	ChangeDue *decimal.Decimal
}

type Simulator struct {
	ApprovalRate float64
	Delay        time.Duration
	Decider      Decider
}

func NewSimulator(rate float64, delay time.Duration, d Decider) *Simulator {
	return &Simulator{ApprovalRate: rate, Delay: delay, Decider: d}
}

// Settle takes payment for amount. Card settlement waits out the terminal delay
// and gives up with a Timeout when ctx ends first.
func (s *Simulator) Settle(ctx context.Context, method Method, amount decimal.Decimal, cashTendered *decimal.Decimal) (Settlement, error) {
	switch method {
	case MethodCash:
		if cashTendered == nil {
			return Settlement{}, apperr.Validation("cashTendered is required for CASH")
		}
		if cashTendered.LessThan(amount) {
			return Settlement{}, apperr.Validation("cashTendered %s is less than total %s", cashTendered.StringFixed(2), amount.StringFixed(2)).
				WithDetail("total", amount.StringFixed(2))
		}
		change := cashTendered.Sub(amount)
		tendered := *cashTendered
		return Settlement{Method: method, Amount: amount, Tendered: &tendered, ChangeDue: &change}, nil

	case MethodMockCard:
		if s.Delay > 0 {
			t := time.NewTimer(s.Delay)
			defer t.Stop()
			select {
			case <-t.C:
			case <-ctx.Done():
				return Settlement{}, apperr.Wrap(ctx.Err(), apperr.KindTimeout, "card terminal did not respond in time")
			}
		}
		if !s.Decider.Approve(s.ApprovalRate) {
			return Settlement{}, apperr.New(apperr.KindPaymentDeclined, "card payment declined")
		}
		return Settlement{Method: method, Amount: amount}, nil

	default:
		return Settlement{}, apperr.Validation("unsupported payment method %q", method)
	}
}
