package catalog

import (
	"context"
	"errors"
	"time"

	"github.com/ariefcatur/go-pos-checkout/internal/apperr"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/singleflight"
)

// PostgresStore reads the catalog_items table. Concurrent lookups of the same id
// from several terminals collapse into one query.
type PostgresStore struct {
	DB    *pgxpool.Pool
	group singleflight.Group
}

// lookupTimeout bounds a shared lookup, which no longer follows any one caller's ctx.
const lookupTimeout = 3 * time.Second

func (s *PostgresStore) Get(ctx context.Context, id string) (Item, error) {
	return coalesce(ctx, &s.group, id, s.fetch)
}

func (s *PostgresStore) fetch(ctx context.Context, id string) (Item, error) {
	var it Item
	var cat string
	err := s.DB.QueryRow(ctx, `
		SELECT id, name, category, base_price, is_topping
		FROM catalog_items WHERE id=$1`, id).
		Scan(&it.ID, &it.Name, &cat, &it.BasePrice, &it.IsTopping)
	if errors.Is(err, pgx.ErrNoRows) {
		return Item{}, apperr.NotFound("catalog item %s not found", id)
	}
	if err != nil {
		return Item{}, err
	}
	it.Category = Category(cat)
	return it, nil
}

// coalesce shares one fetch per id among concurrent callers. The fetch runs
// detached from the caller that started it, so that caller going away does not
// fail the others; each caller still stops waiting when its own ctx ends.
func coalesce(ctx context.Context, g *singleflight.Group, id string, fetch func(context.Context, string) (Item, error)) (Item, error) {
	ch := g.DoChan(id, func() (any, error) {
		qctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), lookupTimeout)
		defer cancel()
		return fetch(qctx, id)
	})
	select {
	case <-ctx.Done():
		return Item{}, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return Item{}, r.Err
		}
		return r.Val.(Item), nil
	}
}

func (s *PostgresStore) List(ctx context.Context) ([]Item, error) {
	rows, err := s.DB.Query(ctx, `SELECT id, name, category, base_price, is_topping
	                              FROM catalog_items ORDER BY category, name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Item
	for rows.Next() {
		var it Item
		var cat string
		if err := rows.Scan(&it.ID, &it.Name, &cat, &it.BasePrice, &it.IsTopping); err != nil {
			return nil, err
		}
		it.Category = Category(cat)
		out = append(out, it)
	}
	return out, rows.Err()
}
