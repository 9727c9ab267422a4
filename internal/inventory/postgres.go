package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ariefcatur/go-pos-checkout/internal/apperr"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresLedger keeps rows in the inventory table and serializes writers with
// SELECT ... FOR UPDATE inside one transaction per attempt.
type PostgresLedger struct {
	DB       *pgxpool.Pool
	LockWait time.Duration
	Retry    RetryPolicy
}

func NewPostgresLedger(db *pgxpool.Pool, lockWait time.Duration) *PostgresLedger {
	return &PostgresLedger{DB: db, LockWait: lockWait, Retry: DefaultRetryPolicy}
}

// classify turns lock timeouts, deadlocks and serialization failures into errContention.
func classify(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01", "55P03":
			return fmt.Errorf("%w: %s", errContention, pgErr.Message)
		}
	}
	return err
}

func (l *PostgresLedger) begin(ctx context.Context) (pgx.Tx, error) {
	tx, err := l.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	if l.LockWait > 0 {
		if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL lock_timeout = %d", l.LockWait.Milliseconds())); err != nil {
			_ = tx.Rollback(ctx)
			return nil, err
		}
	}
	return tx, nil
}

func (l *PostgresLedger) Level(ctx context.Context, id string) (int, error) {
	var qty int
	err := l.DB.QueryRow(ctx, `SELECT quantity_on_hand FROM inventory WHERE catalog_item_id=$1`, id).Scan(&qty)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, apperr.NotFound("no inventory row for %s", id)
	}
	return qty, err
}

func (l *PostgresLedger) List(ctx context.Context) ([]Row, error) {
	rows, err := l.DB.Query(ctx, `SELECT catalog_item_id, quantity_on_hand, reorder_level, updated_at
	                              FROM inventory ORDER BY catalog_item_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Row, 0)
	for rows.Next() {
		var r Row
		if err := rows.Scan(&r.CatalogItemID, &r.QuantityOnHand, &r.ReorderLevel, &r.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (l *PostgresLedger) Adjust(ctx context.Context, id string, delta int) (Adjustment, error) {
	var out Adjustment
	err := withRetry(ctx, l.Retry, func() error {
		a, err := l.adjustOnce(ctx, id, delta)
		if err != nil {
			return classify(err)
		}
		out = a
		return nil
	})
	return out, err
}

func (l *PostgresLedger) adjustOnce(ctx context.Context, id string, delta int) (Adjustment, error) {
	tx, err := l.begin(ctx)
	if err != nil {
		return Adjustment{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var prev, reorder int
	err = tx.QueryRow(ctx, `SELECT quantity_on_hand, reorder_level FROM inventory
	                        WHERE catalog_item_id=$1 FOR UPDATE`, id).Scan(&prev, &reorder)
	if errors.Is(err, pgx.ErrNoRows) {
		return Adjustment{}, apperr.NotFound("no inventory row for %s", id)
	}
	if err != nil {
		return Adjustment{}, err
	}
	next := prev + delta
	if next < 0 {
		return Adjustment{}, apperr.InvalidState("cannot go below zero: %s has %d, delta %d", id, prev, delta).
			WithDetail("available", prev)
	}

	var updated time.Time
	if err := tx.QueryRow(ctx, `UPDATE inventory SET quantity_on_hand=$2, updated_at=now()
	                            WHERE catalog_item_id=$1 RETURNING updated_at`, id, next).Scan(&updated); err != nil {
		return Adjustment{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Adjustment{}, err
	}
	return Adjustment{
		Row:              Row{CatalogItemID: id, QuantityOnHand: next, ReorderLevel: reorder, UpdatedAt: updated},
		PreviousQuantity: prev,
		Delta:            delta,
	}, nil
}

// TxHook runs inside a reservation's transaction before any inventory row is
// locked. Its error rolls the whole transaction back.
type TxHook func(ctx context.Context, tx pgx.Tx) error

func (l *PostgresLedger) ReserveAndCommit(ctx context.Context, req Requirements) error {
	return l.ReserveWith(ctx, req, nil)
}

// ReserveWith decrements every row in req and runs before in the same transaction,
// so whatever before writes commits together with the stock or not at all.
// Contention anywhere in the transaction retries the whole unit.
func (l *PostgresLedger) ReserveWith(ctx context.Context, req Requirements, before TxHook) error {
	if err := req.validate(); err != nil {
		return err
	}
	if len(req) == 0 && before == nil {
		return nil
	}
	ids := req.SortedIDs()
	return withRetry(ctx, l.Retry, func() error {
		return classify(l.reserveOnce(ctx, ids, req, before))
	})
}

func (l *PostgresLedger) reserveOnce(ctx context.Context, ids []string, req Requirements, before TxHook) error {
	tx, err := l.begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if before != nil {
		if err := before(ctx, tx); err != nil {
			return err
		}
	}
	if err := reserveRows(ctx, tx, ids, req); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// reserveRows locks every row in id order, verifies all of them and only then
// decrements. Any shortage returns before the first UPDATE.
func reserveRows(ctx context.Context, tx pgx.Tx, ids []string, req Requirements) error {
	if len(ids) == 0 {
		return nil
	}
	rows, err := tx.Query(ctx, `
		SELECT catalog_item_id, quantity_on_hand FROM inventory
		WHERE catalog_item_id = ANY($1)
		ORDER BY catalog_item_id
		FOR UPDATE`, ids)
	if err != nil {
		return err
	}
	stock := make(map[string]int, len(ids))
	for rows.Next() {
		var id string
		var qty int
		if err := rows.Scan(&id, &qty); err != nil {
			rows.Close()
			return err
		}
		stock[id] = qty
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, id := range ids {
		if stock[id] < req[id] {
			return apperr.InsufficientStock(id, stock[id], req[id])
		}
	}

	for _, id := range ids {
		ct, err := tx.Exec(ctx, `
			UPDATE inventory SET quantity_on_hand = quantity_on_hand - $2, updated_at = now()
			WHERE catalog_item_id=$1 AND quantity_on_hand >= $2`, id, req[id])
		if err != nil {
			return err
		}
		if ct.RowsAffected() != 1 {
			// cannot happen while we hold the row lock; treat as contention and retry
			return errContention
		}
	}
	return nil
}

func (l *PostgresLedger) Release(ctx context.Context, req Requirements) error {
	if err := req.validate(); err != nil {
		return err
	}
	ids := req.SortedIDs()
	return withRetry(ctx, l.Retry, func() error {
		return classify(l.releaseOnce(ctx, ids, req))
	})
}

func (l *PostgresLedger) releaseOnce(ctx context.Context, ids []string, req Requirements) error {
	tx, err := l.begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, id := range ids {
		ct, err := tx.Exec(ctx, `UPDATE inventory SET quantity_on_hand = quantity_on_hand + $2, updated_at = now()
		                         WHERE catalog_item_id=$1`, id, req[id])
		if err != nil {
			return err
		}
		if ct.RowsAffected() != 1 {
			return apperr.NotFound("no inventory row for %s", id)
		}
	}
	return tx.Commit(ctx)
}
