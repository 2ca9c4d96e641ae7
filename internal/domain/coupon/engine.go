package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Engine validates coupons against order totals, records redemptions, and
// serves administrative CRUD.
type Engine struct {
	repo Repository
	now  func() time.Time
}

// NewEngine creates an Engine backed by the given Repository.
func NewEngine(repo Repository) *Engine {
	return &Engine{repo: repo, now: time.Now}
}

// Validate checks code against orderTotal and returns the computed discount.
// It is read-only: usage is only consumed by Redeem.
func (e *Engine) Validate(ctx context.Context, code string, orderTotal decimal.Decimal) (*Quote, error) {
	if orderTotal.IsNegative() {
		return nil, validation.Errors{"orderTotal": errors.New("must not be negative")}
	}

	c, err := e.repo.FindByCode(ctx, NormalizeCode(code))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFoundOrExpired
		}
		return nil, errors.Wrap(err, "lookup coupon")
	}

	if !c.IsActive || c.Expired(e.now()) {
		return nil, ErrNotFoundOrExpired
	}
	if c.Exhausted() {
		return nil, ErrUsageExceeded
	}
	if orderTotal.LessThan(c.MinOrderValue) {
		return nil, &MinOrderNotMetError{MinOrderValue: c.MinOrderValue}
	}

	discount, final := Compute(c, orderTotal)
	return &Quote{
		Coupon:         c,
		DiscountAmount: discount,
		FinalTotal:     final,
	}, nil
}

// RedeemRequest holds the input for recording a coupon redemption.
type RedeemRequest struct {
	CouponID       string
	OrderID        string
	UserID         *string
	DiscountAmount decimal.Decimal
}

// Redeem appends a usage record and increments the coupon usage counter by
// exactly one. The ceiling is enforced by the repository in a single
// conditional update, so concurrent redemptions cannot overrun max_uses;
// losing redemptions fail with ErrUsageExceeded.
func (e *Engine) Redeem(ctx context.Context, req RedeemRequest) (*Usage, error) {
	if req.CouponID == "" || req.OrderID == "" {
		return nil, validation.Errors{"coupon": errors.New("coupon id and order id are required")}
	}
	if req.DiscountAmount.IsNegative() {
		return nil, validation.Errors{"discount_amount": errors.New("must not be negative")}
	}

	u := &Usage{
		ID:             uuid.New().String(),
		CouponID:       req.CouponID,
		UserID:         req.UserID,
		OrderID:        req.OrderID,
		DiscountAmount: req.DiscountAmount.Round(2),
		UsedAt:         e.now().UTC(),
	}
	if err := e.repo.Redeem(ctx, u); err != nil {
		if errors.Is(err, ErrUsageExceeded) || errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, errors.Wrap(err, "redeem coupon")
	}
	return u, nil
}

// Create validates and stores a new coupon.
func (e *Engine) Create(ctx context.Context, req CreateRequest) (*Coupon, error) {
	req.Code = NormalizeCode(req.Code)
	if err := req.Validate(); err != nil {
		return nil, err
	}

	now := e.now().UTC()
	c := &Coupon{
		ID:            uuid.New().String(),
		Code:          req.Code,
		DiscountType:  req.DiscountType,
		DiscountValue: req.DiscountValue,
		MinOrderValue: req.MinOrderValue,
		MaxUses:       req.MaxUses,
		ExpiresAt:     req.ExpiresAt,
		IsActive:      true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if req.IsActive != nil {
		c.IsActive = *req.IsActive
	}

	if err := e.repo.Create(ctx, c); err != nil {
		if errors.Is(err, ErrCodeConflict) {
			return nil, err
		}
		return nil, errors.Wrap(err, "create coupon")
	}
	return c, nil
}

// Update applies a partial update to the coupon with the given id.
func (e *Engine) Update(ctx context.Context, id string, p Patch) (*Coupon, error) {
	if p.Empty() {
		return nil, validation.Errors{"body": errors.New("no updatable field supplied")}
	}

	c, err := e.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := p.ApplyTo(c); err != nil {
		return nil, err
	}
	c.UpdatedAt = e.now().UTC()

	if err := e.repo.Update(ctx, c); err != nil {
		if errors.Is(err, ErrCodeConflict) || errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, errors.Wrap(err, "update coupon")
	}
	return c, nil
}

// Get returns a coupon by id.
func (e *Engine) Get(ctx context.Context, id string) (*Coupon, error) {
	return e.repo.Get(ctx, id)
}

// List returns every coupon, inactive ones included.
func (e *Engine) List(ctx context.Context) ([]Coupon, error) {
	return e.repo.List(ctx)
}

// Delete removes a coupon by id.
func (e *Engine) Delete(ctx context.Context, id string) error {
	return e.repo.Delete(ctx, id)
}

// Usages returns the redemption trail of a coupon, newest first.
func (e *Engine) Usages(ctx context.Context, couponID string) ([]Usage, error) {
	if _, err := e.repo.Get(ctx, couponID); err != nil {
		return nil, err
	}
	return e.repo.ListUsages(ctx, couponID)
}
