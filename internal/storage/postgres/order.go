package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/checkout-core/internal/domain/order"
)

var _ order.Repository = (*OrderRepository)(nil)

const orderColumns = `id, user_id, channel, customer_name, customer_email, phone,
	total_price, discount_amount, coupon_code, shipping_address, city, pincode,
	payment_method, status, created_at, updated_at`

const (
	insertOrderSQL = `
INSERT INTO orders (id, user_id, channel, customer_name, customer_email, phone,
	total_price, discount_amount, coupon_code, shipping_address, city, pincode,
	payment_method, status)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
RETURNING created_at, updated_at`

	getOrderSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	listOrdersByUserSQL = `SELECT ` + orderColumns + `
FROM orders WHERE user_id = $1 ORDER BY created_at DESC, id`

	updateOrderStatusSQL = `
UPDATE orders SET status = $3, updated_at = now()
WHERE id = $1 AND status = $2
RETURNING ` + orderColumns

	orderStatusSQL = `SELECT status FROM orders WHERE id = $1`

	updateOrderDetailsSQL = `
UPDATE orders SET shipping_address = $2, city = $3, pincode = $4, updated_at = now()
WHERE id = $1
RETURNING updated_at`

	listOrderItemsSQL = `
SELECT id, order_id, product_id, variation_id, name, quantity, unit_price
FROM order_items WHERE order_id = ANY($1) ORDER BY order_id, position`
)

var orderItemColumns = []string{
	"id", "order_id", "product_id", "variation_id", "name", "quantity", "unit_price", "position",
}

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var o order.Order
	err := row.Scan(
		&o.ID, &o.UserID, &o.Channel, &o.CustomerName, &o.CustomerEmail, &o.Phone,
		&o.TotalPrice, &o.DiscountAmount, &o.CouponCode, &o.ShippingAddress, &o.City, &o.Pincode,
		&o.PaymentMethod, &o.Status, &o.CreatedAt, &o.UpdatedAt,
	)
	return o, err
}

// Create persists the header and items in one transaction, joining the
// caller's transaction if there is one.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	return inTx(ctx, r.pool, func(q querier) error {
		err := q.QueryRow(ctx, insertOrderSQL,
			o.ID, o.UserID, o.Channel, o.CustomerName, o.CustomerEmail, o.Phone,
			o.TotalPrice, o.DiscountAmount, o.CouponCode, o.ShippingAddress, o.City, o.Pincode,
			o.PaymentMethod, o.Status,
		).Scan(&o.CreatedAt, &o.UpdatedAt)
		if err != nil {
			return fmt.Errorf("insert order %q: %w", o.ID, err)
		}
		if len(o.Items) == 0 {
			return nil
		}

		tx, ok := q.(pgx.Tx)
		if !ok {
			return errors.New("order items require a transaction")
		}
		rows := make([][]any, len(o.Items))
		for i, it := range o.Items {
			rows[i] = []any{it.ID, o.ID, it.ProductID, it.VariationID, it.Name, it.Quantity, it.UnitPrice, i}
		}
		if _, err := tx.CopyFrom(ctx, pgx.Identifier{"order_items"}, orderItemColumns, pgx.CopyFromRows(rows)); err != nil {
			return fmt.Errorf("insert items of order %q: %w", o.ID, err)
		}
		return nil
	})
}

// Get returns an order with its items.
func (r *OrderRepository) Get(ctx context.Context, id string) (*order.Order, error) {
	q := conn(ctx, r.pool)
	rows, err := q.Query(ctx, getOrderSQL, id)
	if err != nil {
		return nil, fmt.Errorf("query order %q: %w", id, err)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("scan order %q: %w", id, err)
	}

	orders := []order.Order{o}
	if err := r.attachItems(ctx, q, orders); err != nil {
		return nil, err
	}
	return &orders[0], nil
}

// ListByUser returns the member orders of userID, newest first.
func (r *OrderRepository) ListByUser(ctx context.Context, userID string) ([]order.Order, error) {
	return r.list(ctx, listOrdersByUserSQL, userID)
}

// ListAll returns orders matching f, newest first.
func (r *OrderRepository) ListAll(ctx context.Context, f order.ListFilter) ([]order.Order, error) {
	var (
		where []string
		args  []any
	)
	if f.Channel != "" {
		args = append(args, f.Channel)
		where = append(where, fmt.Sprintf("channel = $%d", len(args)))
	}
	if f.Status != "" {
		args = append(args, f.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}

	var b strings.Builder
	b.WriteString(`SELECT ` + orderColumns + ` FROM orders`)
	if len(where) > 0 {
		b.WriteString(" WHERE " + strings.Join(where, " AND "))
	}
	b.WriteString(" ORDER BY created_at DESC, id")
	if f.Limit > 0 {
		args = append(args, f.Limit)
		fmt.Fprintf(&b, " LIMIT $%d", len(args))
	}
	return r.list(ctx, b.String(), args...)
}

func (r *OrderRepository) list(ctx context.Context, sql string, args ...any) ([]order.Order, error) {
	q := conn(ctx, r.pool)
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	orders, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, fmt.Errorf("scan orders: %w", err)
	}
	if err := r.attachItems(ctx, q, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// attachItems loads the items of all orders with one query.
func (r *OrderRepository) attachItems(ctx context.Context, q querier, orders []order.Order) error {
	if len(orders) == 0 {
		return nil
	}
	ids := make([]string, len(orders))
	index := make(map[string]int, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
		index[o.ID] = i
	}

	rows, err := q.Query(ctx, listOrderItemsSQL, ids)
	if err != nil {
		return fmt.Errorf("query order items: %w", err)
	}
	items, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (order.Item, error) {
		var it order.Item
		err := row.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.VariationID, &it.Name, &it.Quantity, &it.UnitPrice)
		return it, err
	})
	if err != nil {
		return fmt.Errorf("scan order items: %w", err)
	}
	for _, it := range items {
		i := index[it.OrderID]
		orders[i].Items = append(orders[i].Items, it)
	}
	return nil
}

// UpdateStatus moves the order from one status to next. When the stored
// status is no longer from, the current one is reported in an
// *order.InvalidTransitionError.
func (r *OrderRepository) UpdateStatus(ctx context.Context, id string, from, next order.Status) (*order.Order, error) {
	q := conn(ctx, r.pool)
	rows, err := q.Query(ctx, updateOrderStatusSQL, id, from, next)
	if err != nil {
		return nil, fmt.Errorf("update order status %q: %w", id, err)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err == nil {
		orders := []order.Order{o}
		if err := r.attachItems(ctx, q, orders); err != nil {
			return nil, err
		}
		return &orders[0], nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("scan order %q: %w", id, err)
	}

	var current order.Status
	if err := q.QueryRow(ctx, orderStatusSQL, id).Scan(&current); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("get order status %q: %w", id, err)
	}
	return nil, &order.InvalidTransitionError{From: current, To: next}
}

// UpdateDetails stores the delivery details of o.
func (r *OrderRepository) UpdateDetails(ctx context.Context, o *order.Order) error {
	err := conn(ctx, r.pool).QueryRow(ctx, updateOrderDetailsSQL, o.ID, o.ShippingAddress, o.City, o.Pincode).Scan(&o.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return order.ErrNotFound
		}
		return fmt.Errorf("update order details %q: %w", o.ID, err)
	}
	return nil
}
