package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/checkout-core/internal/domain/product"
	"github.com/xenking/checkout-core/internal/domain/variation"
)

var _ variation.Repository = (*VariationRepository)(nil)

const variationColumns = `id, product_id, variation_type, variation_value,
	price_adjustment, stock_quantity, created_at, updated_at`

const (
	listVariationsSQL = `SELECT ` + variationColumns + `
FROM product_variations WHERE product_id = $1
ORDER BY variation_type, variation_value, created_at`

	getVariationSQL = `SELECT ` + variationColumns + ` FROM product_variations WHERE id = $1`

	insertVariationSQL = `
INSERT INTO product_variations (id, product_id, variation_type, variation_value,
	price_adjustment, stock_quantity)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING created_at, updated_at`

	updateVariationSQL = `
UPDATE product_variations SET variation_type = $2, variation_value = $3,
	price_adjustment = $4, stock_quantity = $5, updated_at = clock_timestamp()
WHERE id = $1
RETURNING updated_at`

	deleteVariationImagesSQL = `
DELETE FROM variation_images WHERE variation_id = $1
RETURNING id, variation_id, image_url, display_order, created_at`

	deleteVariationSQL = `DELETE FROM product_variations WHERE id = $1`

	listImagesSQL = `
SELECT id, variation_id, image_url, display_order, created_at
FROM variation_images WHERE variation_id = ANY($1)
ORDER BY variation_id, display_order, created_at, id`

	// Locking the parent row serializes concurrent appends so two images
	// never compute the same max+1.
	lockVariationSQL = `SELECT id FROM product_variations WHERE id = $1 FOR UPDATE`

	insertImageSQL = `
INSERT INTO variation_images (id, variation_id, image_url, display_order)
SELECT $1::text, $2::text, $3::text, COALESCE(MAX(display_order), 0) + 1
FROM variation_images WHERE variation_id = $2
RETURNING display_order, created_at`

	deleteImageSQL = `
DELETE FROM variation_images WHERE id = $1 AND variation_id = $2
RETURNING id, variation_id, image_url, display_order, created_at`
)

// VariationRepository implements variation.Repository backed by PostgreSQL.
type VariationRepository struct {
	pool *pgxpool.Pool
}

// NewVariationRepository returns a VariationRepository that uses the given pool.
func NewVariationRepository(pool *pgxpool.Pool) *VariationRepository {
	return &VariationRepository{pool: pool}
}

func scanVariation(row pgx.CollectableRow) (variation.Variation, error) {
	var v variation.Variation
	err := row.Scan(&v.ID, &v.ProductID, &v.Type, &v.Value,
		&v.PriceAdjustment, &v.StockQuantity, &v.CreatedAt, &v.UpdatedAt)
	return v, err
}

func scanImage(row pgx.CollectableRow) (variation.Image, error) {
	var img variation.Image
	err := row.Scan(&img.ID, &img.VariationID, &img.URL, &img.DisplayOrder, &img.CreatedAt)
	return img, err
}

// ListByProduct returns the variations of a product with their images.
func (r *VariationRepository) ListByProduct(ctx context.Context, productID string) ([]variation.Variation, error) {
	q := conn(ctx, r.pool)
	rows, err := q.Query(ctx, listVariationsSQL, productID)
	if err != nil {
		return nil, fmt.Errorf("list variations of %q: %w", productID, err)
	}
	vs, err := pgx.CollectRows(rows, scanVariation)
	if err != nil {
		return nil, fmt.Errorf("scan variations: %w", err)
	}
	if err := attachImages(ctx, q, vs); err != nil {
		return nil, err
	}
	return vs, nil
}

// Get returns a variation with its images.
func (r *VariationRepository) Get(ctx context.Context, id string) (*variation.Variation, error) {
	q := conn(ctx, r.pool)
	rows, err := q.Query(ctx, getVariationSQL, id)
	if err != nil {
		return nil, fmt.Errorf("query variation %q: %w", id, err)
	}
	v, err := pgx.CollectExactlyOneRow(rows, scanVariation)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, variation.ErrNotFound
		}
		return nil, fmt.Errorf("scan variation %q: %w", id, err)
	}
	vs := []variation.Variation{v}
	if err := attachImages(ctx, q, vs); err != nil {
		return nil, err
	}
	return &vs[0], nil
}

func attachImages(ctx context.Context, q querier, vs []variation.Variation) error {
	if len(vs) == 0 {
		return nil
	}
	ids := make([]string, len(vs))
	index := make(map[string]int, len(vs))
	for i, v := range vs {
		ids[i] = v.ID
		index[v.ID] = i
	}

	rows, err := q.Query(ctx, listImagesSQL, ids)
	if err != nil {
		return fmt.Errorf("query variation images: %w", err)
	}
	imgs, err := pgx.CollectRows(rows, scanImage)
	if err != nil {
		return fmt.Errorf("scan variation images: %w", err)
	}
	for _, img := range imgs {
		i := index[img.VariationID]
		vs[i].Images = append(vs[i].Images, img)
	}
	return nil
}

// Create inserts v.
func (r *VariationRepository) Create(ctx context.Context, v *variation.Variation) error {
	err := conn(ctx, r.pool).QueryRow(ctx, insertVariationSQL,
		v.ID, v.ProductID, v.Type, v.Value, v.PriceAdjustment, v.StockQuantity,
	).Scan(&v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		switch {
		case isUniqueViolation(err, "product_variations_unique"):
			return variation.ErrDuplicate
		case isForeignKeyViolation(err):
			return product.ErrNotFound
		}
		return fmt.Errorf("insert variation: %w", err)
	}
	return nil
}

// Update stores every mutable field of v.
func (r *VariationRepository) Update(ctx context.Context, v *variation.Variation) error {
	err := conn(ctx, r.pool).QueryRow(ctx, updateVariationSQL,
		v.ID, v.Type, v.Value, v.PriceAdjustment, v.StockQuantity,
	).Scan(&v.UpdatedAt)
	if err != nil {
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			return variation.ErrNotFound
		case isUniqueViolation(err, "product_variations_unique"):
			return variation.ErrDuplicate
		}
		return fmt.Errorf("update variation %q: %w", v.ID, err)
	}
	return nil
}

// Delete removes the variation and its images in one transaction and
// returns the removed images.
func (r *VariationRepository) Delete(ctx context.Context, id string) ([]variation.Image, error) {
	var removed []variation.Image
	err := inTx(ctx, r.pool, func(q querier) error {
		rows, err := q.Query(ctx, deleteVariationImagesSQL, id)
		if err != nil {
			return fmt.Errorf("delete images of %q: %w", id, err)
		}
		removed, err = pgx.CollectRows(rows, scanImage)
		if err != nil {
			return fmt.Errorf("scan deleted images: %w", err)
		}

		tag, err := q.Exec(ctx, deleteVariationSQL, id)
		if err != nil {
			return fmt.Errorf("delete variation %q: %w", id, err)
		}
		if tag.RowsAffected() == 0 {
			return variation.ErrNotFound
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return removed, nil
}

// AddImage appends img after the current last image of its variation.
func (r *VariationRepository) AddImage(ctx context.Context, img *variation.Image) error {
	return inTx(ctx, r.pool, func(q querier) error {
		var locked string
		if err := q.QueryRow(ctx, lockVariationSQL, img.VariationID).Scan(&locked); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return variation.ErrNotFound
			}
			return fmt.Errorf("lock variation %q: %w", img.VariationID, err)
		}
		err := q.QueryRow(ctx, insertImageSQL, img.ID, img.VariationID, img.URL).
			Scan(&img.DisplayOrder, &img.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert variation image: %w", err)
		}
		return nil
	})
}

// DeleteImage removes one image of variationID.
func (r *VariationRepository) DeleteImage(ctx context.Context, variationID, imageID string) (*variation.Image, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, deleteImageSQL, imageID, variationID)
	if err != nil {
		return nil, fmt.Errorf("delete image %q: %w", imageID, err)
	}
	img, err := pgx.CollectExactlyOneRow(rows, scanImage)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, variation.ErrImageNotFound
		}
		return nil, fmt.Errorf("scan deleted image %q: %w", imageID, err)
	}
	return &img, nil
}
