package checkout

import (
	"context"

	"github.com/ariefcatur/go-pos-checkout/internal/inventory"
	"github.com/ariefcatur/go-pos-checkout/internal/orders"
	"github.com/jackc/pgx/v5"
)

// PostgresCommitter runs the whole commit in one transaction: lock the order row
// and re-check it is OPEN, mark it PAID, then lock and decrement the stock rows.
// A crash or an error anywhere leaves both tables as they were.
type PostgresCommitter struct {
	Orders *orders.PostgresStore
	Ledger *inventory.PostgresLedger
}

func (p PostgresCommitter) CommitPaid(ctx context.Context, o *orders.Order, req inventory.Requirements) error {
	return p.Ledger.ReserveWith(ctx, req, func(ctx context.Context, tx pgx.Tx) error {
		return p.Orders.MarkPaid(ctx, tx, o)
	})
}
