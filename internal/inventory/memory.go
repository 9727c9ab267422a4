package inventory

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ariefcatur/go-pos-checkout/internal/apperr"
)

// memRow guards its writes with a one-slot channel so lock waits can honour ctx.
// qty and updated are atomics only so that Level can read without the lock.
type memRow struct {
	lock    chan struct{}
	qty     atomic.Int64
	reorder int
	updated atomic.Int64 // unix nanos
}

func (r *memRow) snapshot(id string) Row {
	return Row{
		CatalogItemID:  id,
		QuantityOnHand: int(r.qty.Load()),
		ReorderLevel:   r.reorder,
		UpdatedAt:      time.Unix(0, r.updated.Load()).UTC(),
	}
}

func (r *memRow) set(qty int, now time.Time) {
	r.qty.Store(int64(qty))
	r.updated.Store(now.UnixNano())
}

// MemoryLedger is the in-process ledger used by the memory backend and tests.
type MemoryLedger struct {
	mu       sync.RWMutex
	rows     map[string]*memRow
	lockWait time.Duration
	retry    RetryPolicy
	now      func() time.Time
}

type MemoryOption func(*MemoryLedger)

// WithLockWait bounds how long one attempt waits for its rows.
func WithLockWait(d time.Duration) MemoryOption {
	return func(l *MemoryLedger) { l.lockWait = d }
}

func WithRetryPolicy(p RetryPolicy) MemoryOption {
	return func(l *MemoryLedger) { l.retry = p }
}

func NewMemoryLedger(opts ...MemoryOption) *MemoryLedger {
	l := &MemoryLedger{
		rows:     make(map[string]*memRow),
		lockWait: 2 * time.Second,
		retry:    DefaultRetryPolicy,
		now:      time.Now,
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Seed creates or replaces a row. It is meant for start-up and tests, not concurrent traffic.
func (l *MemoryLedger) Seed(catalogItemID string, qty, reorderLevel int) {
	r := &memRow{lock: make(chan struct{}, 1), reorder: reorderLevel}
	r.set(qty, l.now())
	l.mu.Lock()
	l.rows[catalogItemID] = r
	l.mu.Unlock()
}

func (l *MemoryLedger) row(id string) (*memRow, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	r, ok := l.rows[id]
	return r, ok
}

func (l *MemoryLedger) Level(_ context.Context, id string) (int, error) {
	r, ok := l.row(id)
	if !ok {
		return 0, apperr.NotFound("no inventory row for %s", id)
	}
	return int(r.qty.Load()), nil
}

func (l *MemoryLedger) List(_ context.Context) ([]Row, error) {
	l.mu.RLock()
	out := make([]Row, 0, len(l.rows))
	for id, r := range l.rows {
		out = append(out, r.snapshot(id))
	}
	l.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CatalogItemID < out[j].CatalogItemID })
	return out, nil
}

// lockRows takes the row locks in the given (sorted) order within one lockWait budget.
// On any failure every lock already taken is released.
func (l *MemoryLedger) lockRows(ctx context.Context, rows []*memRow) (unlock func(), err error) {
	timer := time.NewTimer(l.lockWait)
	defer timer.Stop()

	held := 0
	release := func() {
		for i := 0; i < held; i++ {
			<-rows[i].lock
		}
	}
	for _, r := range rows {
		select {
		case r.lock <- struct{}{}:
			held++
		case <-timer.C:
			release()
			return nil, errContention
		case <-ctx.Done():
			release()
			return nil, ctx.Err()
		}
	}
	return release, nil
}

func (l *MemoryLedger) Adjust(ctx context.Context, id string, delta int) (Adjustment, error) {
	r, ok := l.row(id)
	if !ok {
		return Adjustment{}, apperr.NotFound("no inventory row for %s", id)
	}
	var out Adjustment
	err := withRetry(ctx, l.retry, func() error {
		unlock, err := l.lockRows(ctx, []*memRow{r})
		if err != nil {
			return err
		}
		defer unlock()

		prev := int(r.qty.Load())
		next := prev + delta
		if next < 0 {
			e := apperr.InvalidState("cannot go below zero: %s has %d, delta %d", id, prev, delta)
			return e.WithDetail("available", prev)
		}
		r.set(next, l.now())
		out = Adjustment{Row: r.snapshot(id), PreviousQuantity: prev, Delta: delta}
		return nil
	})
	return out, err
}

func (l *MemoryLedger) ReserveAndCommit(ctx context.Context, req Requirements) error {
	if err := req.validate(); err != nil {
		return err
	}
	if len(req) == 0 {
		return nil
	}
	ids := req.SortedIDs()

	// Unknown rows hold nothing; they fail the check as available 0.
	present := make([]*memRow, 0, len(ids))
	byID := make(map[string]*memRow, len(ids))
	for _, id := range ids {
		if r, ok := l.row(id); ok {
			present = append(present, r)
			byID[id] = r
		}
	}

	return withRetry(ctx, l.retry, func() error {
		unlock, err := l.lockRows(ctx, present)
		if err != nil {
			return err
		}
		defer unlock()

		for _, id := range ids {
			available := 0
			if r, ok := byID[id]; ok {
				available = int(r.qty.Load())
			}
			if available < req[id] {
				return apperr.InsufficientStock(id, available, req[id])
			}
		}
		now := l.now()
		for _, id := range ids {
			r := byID[id]
			r.set(int(r.qty.Load())-req[id], now)
		}
		return nil
	})
}

func (l *MemoryLedger) Release(ctx context.Context, req Requirements) error {
	if err := req.validate(); err != nil {
		return err
	}
	ids := req.SortedIDs()
	rows := make([]*memRow, 0, len(ids))
	for _, id := range ids {
		r, ok := l.row(id)
		if !ok {
			return apperr.NotFound("no inventory row for %s", id)
		}
		rows = append(rows, r)
	}
	return withRetry(ctx, l.retry, func() error {
		unlock, err := l.lockRows(ctx, rows)
		if err != nil {
			return err
		}
		defer unlock()
		now := l.now()
		for i, id := range ids {
			rows[i].set(int(rows[i].qty.Load())+req[id], now)
		}
		return nil
	})
}
