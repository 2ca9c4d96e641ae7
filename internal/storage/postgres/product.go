package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/checkout-core/internal/domain/product"
)

var _ product.Repository = (*ProductRepository)(nil)

const (
	getProductSQL = `SELECT id, name, price FROM products WHERE id = $1`

	upsertProductSQL = `
INSERT INTO products (id, name, price) VALUES ($1, $2, $3)
ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, price = EXCLUDED.price`
)

// ProductRepository implements product.Repository backed by PostgreSQL.
type ProductRepository struct {
	pool *pgxpool.Pool
}

// NewProductRepository returns a ProductRepository that uses the given pool.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

// GetByID returns a product or product.ErrNotFound.
func (r *ProductRepository) GetByID(ctx context.Context, id string) (*product.Product, error) {
	var p product.Product
	err := conn(ctx, r.pool).QueryRow(ctx, getProductSQL, id).Scan(&p.ID, &p.Name, &p.Price)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, fmt.Errorf("get product %q: %w", id, err)
	}
	return &p, nil
}

// Upsert inserts or replaces a catalog product. Used by seeding.
func (r *ProductRepository) Upsert(ctx context.Context, id, name string, price decimal.Decimal) error {
	if _, err := conn(ctx, r.pool).Exec(ctx, upsertProductSQL, id, name, price); err != nil {
		return fmt.Errorf("upsert product %q: %w", id, err)
	}
	return nil
}
