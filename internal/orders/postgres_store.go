package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ariefcatur/go-pos-checkout/internal/apperr"
	"github.com/ariefcatur/go-pos-checkout/internal/payment"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresStore struct{ DB *pgxpool.Pool }

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func (s *PostgresStore) Insert(ctx context.Context, o Order) error {
	_, err := s.DB.Exec(ctx, `
		INSERT INTO orders(id, owner_id, status, subtotal, tax, total, payment_method, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,NULLIF($7,''),$8,$9)`,
		o.ID, o.OwnerID, string(o.Status), o.Subtotal, o.Tax, o.Total, string(o.PaymentMethod), o.CreatedAt, o.UpdatedAt)
	return err
}

func (s *PostgresStore) Get(ctx context.Context, id string) (Order, error) {
	var o Order
	var status, method string
	err := s.DB.QueryRow(ctx, `
		SELECT id, owner_id, status, subtotal, tax, total, COALESCE(payment_method,''), created_at, updated_at
		FROM orders WHERE id=$1`, id).
		Scan(&o.ID, &o.OwnerID, &status, &o.Subtotal, &o.Tax, &o.Total, &method, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, apperr.NotFound("order %s not found", id)
	}
	if err != nil {
		return Order{}, err
	}
	o.Status, o.PaymentMethod = Status(status), payment.Method(method)

	items, err := loadItems(ctx, s.DB, []string{o.ID})
	if err != nil {
		return Order{}, err
	}
	o.Items = items[o.ID]
	if o.Items == nil {
		o.Items = []OrderItem{}
	}
	return o, nil
}

// Save rewrites the order row and replaces its items in one transaction.
// Toppings go with their items through ON DELETE CASCADE.
func (s *PostgresStore) Save(ctx context.Context, o Order) error {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Another process may have settled or voided the order since it was read.
	var stored string
	err = tx.QueryRow(ctx, `SELECT status FROM orders WHERE id=$1 FOR UPDATE`, o.ID).Scan(&stored)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFound("order %s not found", o.ID)
	}
	if err != nil {
		return err
	}
	if !saveAllowed(Status(stored), o.Status) {
		return apperr.Conflict("order %s changed to %s concurrently", o.ID, stored)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE orders SET status=$2, subtotal=$3, tax=$4, total=$5, payment_method=NULLIF($6,''), updated_at=$7
		WHERE id=$1`,
		o.ID, string(o.Status), o.Subtotal, o.Tax, o.Total, string(o.PaymentMethod), o.UpdatedAt); err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, `DELETE FROM order_items WHERE order_id=$1`, o.ID); err != nil {
		return err
	}
	for _, it := range o.Items {
		if _, err := tx.Exec(ctx, `
			INSERT INTO order_items(id, order_id, catalog_item_id, size, flavor, quantity, base_price, line_total)
			VALUES ($1,$2,$3,NULLIF($4,''),NULLIF($5,''),$6,$7,$8)`,
			it.ID, o.ID, it.CatalogItemID, it.Size, it.Flavor, it.Quantity, it.BasePrice, it.LineTotal); err != nil {
			return err
		}
		for _, tp := range it.Toppings {
			if _, err := tx.Exec(ctx, `
				INSERT INTO order_item_toppings(id, order_item_id, catalog_item_id, price_delta)
				VALUES ($1,$2,$3,$4)`, tp.ID, it.ID, tp.CatalogItemID, tp.PriceDelta); err != nil {
				return err
			}
		}
	}
	return tx.Commit(ctx)
}

// saveAllowed reports whether a write carrying next may replace a row that is
// currently stored: item edits only while OPEN, otherwise a legal transition.
func saveAllowed(stored, next Status) bool {
	if stored == StatusOpen && next == StatusOpen {
		return true
	}
	return CanTransition(stored, next)
}

// MarkPaid locks the order row inside tx and moves it from OPEN to PAID. The row
// lock holds off any other process checking out or voiding the same order until
// tx ends, and the status is re-read under it.
func (s *PostgresStore) MarkPaid(ctx context.Context, tx pgx.Tx, o *Order) error {
	var status string
	err := tx.QueryRow(ctx, `SELECT status FROM orders WHERE id=$1 FOR UPDATE`, o.ID).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFound("order %s not found", o.ID)
	}
	if err != nil {
		return err
	}
	if Status(status) != StatusOpen {
		return apperr.InvalidState("order %s is %s, not OPEN", o.ID, status)
	}
	return tx.QueryRow(ctx, `
		UPDATE orders SET status=$2, payment_method=$3, updated_at=now()
		WHERE id=$1 RETURNING updated_at`,
		o.ID, string(StatusPaid), string(o.PaymentMethod)).Scan(&o.UpdatedAt)
}

func (s *PostgresStore) List(ctx context.Context, f Filter) ([]Order, error) {
	var where []string
	var args []any
	if f.Status != "" {
		args = append(args, string(f.Status))
		where = append(where, fmt.Sprintf("status=$%d", len(args)))
	}
	if !f.From.IsZero() {
		args = append(args, f.From)
		where = append(where, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if !f.To.IsZero() {
		args = append(args, f.To)
		where = append(where, fmt.Sprintf("created_at <= $%d", len(args)))
	}
	q := `SELECT id, owner_id, status, subtotal, tax, total, COALESCE(payment_method,''), created_at, updated_at FROM orders`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY created_at DESC"

	rows, err := s.DB.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Order, 0)
	ids := make([]string, 0)
	for rows.Next() {
		var o Order
		var status, method string
		if err := rows.Scan(&o.ID, &o.OwnerID, &status, &o.Subtotal, &o.Tax, &o.Total, &method, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, err
		}
		o.Status, o.PaymentMethod = Status(status), payment.Method(method)
		out = append(out, o)
		ids = append(ids, o.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return out, nil
	}

	items, err := loadItems(ctx, s.DB, ids)
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Items = items[out[i].ID]
		if out[i].Items == nil {
			out[i].Items = []OrderItem{}
		}
	}
	return out, nil
}

// loadItems fetches items and toppings for a set of orders, keyed by order id.
func loadItems(ctx context.Context, q querier, orderIDs []string) (map[string][]OrderItem, error) {
	rows, err := q.Query(ctx, `
		SELECT id, order_id, catalog_item_id, COALESCE(size,''), COALESCE(flavor,''), quantity, base_price, line_total
		FROM order_items WHERE order_id = ANY($1) ORDER BY seq`, orderIDs)
	if err != nil {
		return nil, err
	}
	var items []OrderItem
	for rows.Next() {
		var it OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.CatalogItemID, &it.Size, &it.Flavor, &it.Quantity, &it.BasePrice, &it.LineTotal); err != nil {
			rows.Close()
			return nil, err
		}
		it.Toppings = []OrderItemTopping{}
		items = append(items, it)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return map[string][]OrderItem{}, nil
	}

	itemIDs := make([]string, 0, len(items))
	for _, it := range items {
		itemIDs = append(itemIDs, it.ID)
	}
	trows, err := q.Query(ctx, `
		SELECT id, order_item_id, catalog_item_id, price_delta
		FROM order_item_toppings WHERE order_item_id = ANY($1) ORDER BY seq`, itemIDs)
	if err != nil {
		return nil, err
	}
	defer trows.Close()
	toppings := make(map[string][]OrderItemTopping)
	for trows.Next() {
		var tp OrderItemTopping
		if err := trows.Scan(&tp.ID, &tp.OrderItemID, &tp.CatalogItemID, &tp.PriceDelta); err != nil {
			return nil, err
		}
		toppings[tp.OrderItemID] = append(toppings[tp.OrderItemID], tp)
	}
	if err := trows.Err(); err != nil {
		return nil, err
	}

	out := make(map[string][]OrderItem)
	for _, it := range items {
		if tps, ok := toppings[it.ID]; ok {
			it.Toppings = tps
		}
		out[it.OrderID] = append(out[it.OrderID], it)
	}
	return out, nil
}
