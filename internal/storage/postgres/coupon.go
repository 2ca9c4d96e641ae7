package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/checkout-core/internal/domain/coupon"
)

var _ coupon.Repository = (*CouponRepository)(nil)

const couponColumns = `id, code, discount_type, discount_value, min_order_value,
	max_uses, current_uses, expires_at, is_active, created_at, updated_at`

const (
	findCouponByCodeSQL = `SELECT ` + couponColumns + ` FROM coupons WHERE code = upper($1)`
	getCouponSQL        = `SELECT ` + couponColumns + ` FROM coupons WHERE id = $1`
	listCouponsSQL      = `SELECT ` + couponColumns + ` FROM coupons ORDER BY created_at DESC, id`

	insertCouponSQL = `
INSERT INTO coupons (id, code, discount_type, discount_value, min_order_value,
	max_uses, current_uses, expires_at, is_active, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	updateCouponSQL = `
UPDATE coupons SET code = $2, discount_type = $3, discount_value = $4,
	min_order_value = $5, max_uses = $6, expires_at = $7, is_active = $8,
	updated_at = $9
WHERE id = $1`

	deleteCouponSQL = `DELETE FROM coupons WHERE id = $1`

	// The WHERE clause is the usage ceiling: concurrent redemptions of the
	// last remaining use serialize on the row lock, and the loser matches
	// no row.
	incrementCouponUsesSQL = `
UPDATE coupons SET current_uses = current_uses + 1, updated_at = now()
WHERE id = $1 AND (max_uses IS NULL OR current_uses < max_uses)`

	couponExistsSQL = `SELECT EXISTS (SELECT 1 FROM coupons WHERE id = $1)`

	insertCouponUsageSQL = `
INSERT INTO coupon_usages (id, coupon_id, user_id, order_id, discount_amount)
VALUES ($1, $2, $3, $4, $5)
RETURNING used_at`

	listCouponUsagesSQL = `
SELECT id, coupon_id, user_id, order_id, discount_amount, used_at
FROM coupon_usages WHERE coupon_id = $1 ORDER BY used_at DESC, id`

	// Bulk import keeps existing rows untouched.
	insertCouponIfAbsentSQL = `
INSERT INTO coupons (id, code, discount_type, discount_value, min_order_value,
	max_uses, current_uses, expires_at, is_active, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT (code) DO NOTHING`

	listCouponCodesSQL = `SELECT code FROM coupons`
)

// CouponRepository implements coupon.Repository backed by PostgreSQL.
type CouponRepository struct {
	pool *pgxpool.Pool
}

// NewCouponRepository returns a CouponRepository that uses the given pool.
func NewCouponRepository(pool *pgxpool.Pool) *CouponRepository {
	return &CouponRepository{pool: pool}
}

func scanCoupon(row pgx.CollectableRow) (coupon.Coupon, error) {
	var c coupon.Coupon
	err := row.Scan(
		&c.ID, &c.Code, &c.DiscountType, &c.DiscountValue, &c.MinOrderValue,
		&c.MaxUses, &c.CurrentUses, &c.ExpiresAt, &c.IsActive, &c.CreatedAt, &c.UpdatedAt,
	)
	return c, err
}

// FindByCode looks up a coupon by code. The SQL applies upper() to the
// parameter, so the code is passed as-is.
func (r *CouponRepository) FindByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	return r.one(ctx, findCouponByCodeSQL, code)
}

// Get returns a coupon by id.
func (r *CouponRepository) Get(ctx context.Context, id string) (*coupon.Coupon, error) {
	return r.one(ctx, getCouponSQL, id)
}

func (r *CouponRepository) one(ctx context.Context, sql string, arg string) (*coupon.Coupon, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, sql, arg)
	if err != nil {
		return nil, fmt.Errorf("query coupon %q: %w", arg, err)
	}
	c, err := pgx.CollectExactlyOneRow(rows, scanCoupon)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrNotFound
		}
		return nil, fmt.Errorf("scan coupon %q: %w", arg, err)
	}
	return &c, nil
}

// List returns all coupons, newest first.
func (r *CouponRepository) List(ctx context.Context) ([]coupon.Coupon, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, listCouponsSQL)
	if err != nil {
		return nil, fmt.Errorf("list coupons: %w", err)
	}
	cs, err := pgx.CollectRows(rows, scanCoupon)
	if err != nil {
		return nil, fmt.Errorf("scan coupons: %w", err)
	}
	return cs, nil
}

// Create inserts c. A taken code yields coupon.ErrCodeConflict.
func (r *CouponRepository) Create(ctx context.Context, c *coupon.Coupon) error {
	_, err := conn(ctx, r.pool).Exec(ctx, insertCouponSQL,
		c.ID, c.Code, c.DiscountType, c.DiscountValue, c.MinOrderValue,
		c.MaxUses, c.CurrentUses, c.ExpiresAt, c.IsActive, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err, "coupons_code_key") {
			return coupon.ErrCodeConflict
		}
		return fmt.Errorf("insert coupon %q: %w", c.Code, err)
	}
	return nil
}

// Update stores the editable fields of c. current_uses is never written.
func (r *CouponRepository) Update(ctx context.Context, c *coupon.Coupon) error {
	tag, err := conn(ctx, r.pool).Exec(ctx, updateCouponSQL,
		c.ID, c.Code, c.DiscountType, c.DiscountValue, c.MinOrderValue,
		c.MaxUses, c.ExpiresAt, c.IsActive, c.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err, "coupons_code_key") {
			return coupon.ErrCodeConflict
		}
		return fmt.Errorf("update coupon %q: %w", c.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return coupon.ErrNotFound
	}
	return nil
}

// Delete removes a coupon and its usage trail.
func (r *CouponRepository) Delete(ctx context.Context, id string) error {
	tag, err := conn(ctx, r.pool).Exec(ctx, deleteCouponSQL, id)
	if err != nil {
		return fmt.Errorf("delete coupon %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return coupon.ErrNotFound
	}
	return nil
}

// Redeem atomically consumes one use and records u. It joins the caller's
// transaction when ctx carries one.
func (r *CouponRepository) Redeem(ctx context.Context, u *coupon.Usage) error {
	return inTx(ctx, r.pool, func(q querier) error {
		tag, err := q.Exec(ctx, incrementCouponUsesSQL, u.CouponID)
		if err != nil {
			return fmt.Errorf("increment coupon uses %q: %w", u.CouponID, err)
		}
		if tag.RowsAffected() == 0 {
			var exists bool
			if err := q.QueryRow(ctx, couponExistsSQL, u.CouponID).Scan(&exists); err != nil {
				return fmt.Errorf("check coupon %q: %w", u.CouponID, err)
			}
			if !exists {
				return coupon.ErrNotFound
			}
			return coupon.ErrUsageExceeded
		}

		err = q.QueryRow(ctx, insertCouponUsageSQL,
			u.ID, u.CouponID, u.UserID, u.OrderID, u.DiscountAmount,
		).Scan(&u.UsedAt)
		if err != nil {
			return fmt.Errorf("insert coupon usage: %w", err)
		}
		return nil
	})
}

// ListUsages returns the redemption trail of a coupon, newest first.
func (r *CouponRepository) ListUsages(ctx context.Context, couponID string) ([]coupon.Usage, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, listCouponUsagesSQL, couponID)
	if err != nil {
		return nil, fmt.Errorf("list coupon usages %q: %w", couponID, err)
	}
	us, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (coupon.Usage, error) {
		var u coupon.Usage
		err := row.Scan(&u.ID, &u.CouponID, &u.UserID, &u.OrderID, &u.DiscountAmount, &u.UsedAt)
		return u, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan coupon usages: %w", err)
	}
	return us, nil
}

// InsertIfAbsent stores c unless its code exists. It reports whether a row
// was written.
func (r *CouponRepository) InsertIfAbsent(ctx context.Context, c *coupon.Coupon) (bool, error) {
	tag, err := conn(ctx, r.pool).Exec(ctx, insertCouponIfAbsentSQL,
		c.ID, c.Code, c.DiscountType, c.DiscountValue, c.MinOrderValue,
		c.MaxUses, c.CurrentUses, c.ExpiresAt, c.IsActive, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("insert coupon %q: %w", c.Code, err)
	}
	return tag.RowsAffected() == 1, nil
}

// Codes streams every stored coupon code to fn.
func (r *CouponRepository) Codes(ctx context.Context, fn func(code string)) error {
	rows, err := conn(ctx, r.pool).Query(ctx, listCouponCodesSQL)
	if err != nil {
		return fmt.Errorf("list coupon codes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return fmt.Errorf("scan coupon code: %w", err)
		}
		fn(code)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate coupon codes: %w", err)
	}
	return nil
}
