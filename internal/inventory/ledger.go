// Package inventory owns quantity-on-hand per catalog item.
//
// All writes go through Adjust or ReserveAndCommit. Both lock the rows they touch,
// re-read quantities under the lock and write in the same critical section; there
// is no read-now-write-later path. Level and List are advisory reads.
package inventory

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/ariefcatur/go-pos-checkout/internal/apperr"
	"github.com/cenkalti/backoff/v4"
)

type Row struct {
	CatalogItemID  string    `json:"catalogItemId"`
	QuantityOnHand int       `json:"quantityOnHand"`
	ReorderLevel   int       `json:"reorderLevel"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// Requirements maps catalog item id to the quantity a checkout needs.
type Requirements map[string]int

// Add accumulates qty against id.
func (r Requirements) Add(id string, qty int) { r[id] += qty }

// SortedIDs is the lock order, and the order in which shortages are reported.
func (r Requirements) SortedIDs() []string {
	ids := make([]string, 0, len(r))
	for id := range r {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (r Requirements) validate() error {
	for id, qty := range r {
		if qty <= 0 {
			return apperr.Validation("required quantity for %s must be positive, got %d", id, qty)
		}
	}
	return nil
}

// Adjustment is the outcome of a committed manual correction.
type Adjustment struct {
	Row              Row `json:"row"`
	PreviousQuantity int `json:"previousQuantity"`
	Delta            int `json:"delta"`
}

type Ledger interface {
	Level(ctx context.Context, catalogItemID string) (int, error)
	List(ctx context.Context) ([]Row, error)
	// Adjust applies a signed delta; the row is left untouched if the result would be negative.
	Adjust(ctx context.Context, catalogItemID string, delta int) (Adjustment, error)
	// ReserveAndCommit decrements every row in req, or none of them.
	ReserveAndCommit(ctx context.Context, req Requirements) error
	// Release gives back a reservation whose order could not be committed.
	Release(ctx context.Context, req Requirements) error
}

// errContention marks a lock that could not be taken in time; it is retried.
var errContention = errors.New("inventory rows are locked by another operation")

// RetryPolicy bounds how long a contended operation keeps trying.
type RetryPolicy struct {
	Attempts        int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

var DefaultRetryPolicy = RetryPolicy{Attempts: 3, InitialInterval: 25 * time.Millisecond, MaxInterval: 250 * time.Millisecond}

// withRetry runs op until it succeeds, fails with anything but contention,
// or runs out of attempts. Exhausted contention surfaces as a retryable Conflict.
func withRetry(ctx context.Context, p RetryPolicy, op func() error) error {
	if p.Attempts <= 0 {
		p.Attempts = 1
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.MaxInterval = p.MaxInterval
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(p.Attempts-1)), ctx)

	err := backoff.Retry(func() error {
		err := op()
		if err == nil || errors.Is(err, errContention) {
			return err
		}
		return backoff.Permanent(err)
	}, policy)
	if errors.Is(err, errContention) {
		return apperr.Wrap(err, apperr.KindConflict, "inventory contention, retries exhausted")
	}
	return err
}
