package coupon

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// DiscountType enumerates the supported coupon discount strategies.
type DiscountType string

const (
	// DiscountPercentage takes discount_value percent off the order total.
	DiscountPercentage DiscountType = "percentage"
	// DiscountFlat takes a fixed amount off the order total.
	DiscountFlat DiscountType = "flat"
)

// Valid reports whether t is a known discount type.
func (t DiscountType) Valid() bool {
	return t == DiscountPercentage || t == DiscountFlat
}

var (
	// ErrNotFoundOrExpired is returned by validation when the code is unknown,
	// inactive, or past its expiry. The three cases are deliberately not
	// distinguished.
	ErrNotFoundOrExpired = errors.New("coupon not found or expired")
	// ErrUsageExceeded is returned when a coupon has exhausted max_uses, either
	// at validation time or at redemption time.
	ErrUsageExceeded = errors.New("coupon usage limit exceeded")
	// ErrNotFound is returned by admin lookups of a missing coupon id.
	ErrNotFound = errors.New("coupon not found")
	// ErrCodeConflict is returned when a coupon code is already taken.
	ErrCodeConflict = errors.New("coupon code already exists")
)

// MinOrderNotMetError indicates the order total is below the coupon minimum.
type MinOrderNotMetError struct {
	MinOrderValue decimal.Decimal
}

func (e *MinOrderNotMetError) Error() string {
	return fmt.Sprintf("minimum order value of %s not met", e.MinOrderValue.StringFixed(2))
}

// Coupon is a discount rule keyed by a unique upper-case code.
type Coupon struct {
	ID            string
	Code          string
	DiscountType  DiscountType
	DiscountValue decimal.Decimal
	MinOrderValue decimal.Decimal
	// MaxUses is nil for unlimited.
	MaxUses     *int
	CurrentUses int
	// ExpiresAt is nil for never.
	ExpiresAt *time.Time
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Expired reports whether the coupon has passed its expiry at now.
func (c *Coupon) Expired(now time.Time) bool {
	return c.ExpiresAt != nil && now.After(*c.ExpiresAt)
}

// Exhausted reports whether the usage ceiling has been reached.
func (c *Coupon) Exhausted() bool {
	return c.MaxUses != nil && c.CurrentUses >= *c.MaxUses
}

// Usage is an append-only redemption record.
type Usage struct {
	ID             string
	CouponID       string
	UserID         *string
	OrderID        string
	DiscountAmount decimal.Decimal
	UsedAt         time.Time
}

// Quote is the result of a successful validation.
type Quote struct {
	Coupon         *Coupon
	DiscountAmount decimal.Decimal
	FinalTotal     decimal.Decimal
}

// Repository provides persistence of coupons and their usage trail.
type Repository interface {
	// FindByCode returns the coupon with the given upper-case code, or ErrNotFound.
	FindByCode(ctx context.Context, code string) (*Coupon, error)
	Get(ctx context.Context, id string) (*Coupon, error)
	List(ctx context.Context) ([]Coupon, error)
	Create(ctx context.Context, c *Coupon) error
	Update(ctx context.Context, c *Coupon) error
	Delete(ctx context.Context, id string) error
	// Redeem increments current_uses only while under max_uses and appends u
	// to the usage trail. Returns ErrUsageExceeded when the conditional
	// increment matched no row.
	Redeem(ctx context.Context, u *Usage) error
	ListUsages(ctx context.Context, couponID string) ([]Usage, error)
}
