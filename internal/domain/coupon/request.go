package coupon

import (
	"regexp"
	"strings"
	"time"

	"github.com/go-faster/errors"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/shopspring/decimal"

	"github.com/xenking/checkout-core/pkg/patch"
)

var codePattern = regexp.MustCompile(`^[A-Z0-9_-]+$`)

// NormalizeCode upper-cases and trims a coupon code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// CreateRequest holds the input for creating a coupon.
type CreateRequest struct {
	Code          string          `json:"code"`
	DiscountType  DiscountType    `json:"discount_type"`
	DiscountValue decimal.Decimal `json:"discount_value"`
	MinOrderValue decimal.Decimal `json:"min_order_value"`
	MaxUses       *int            `json:"max_uses"`
	ExpiresAt     *time.Time      `json:"expires_at"`
	// IsActive defaults to true when nil.
	IsActive *bool `json:"is_active"`
}

// Validate checks the request. Code must already be normalized.
func (r CreateRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Code,
			validation.Required.Error("code is required"),
			validation.Length(3, 50),
			validation.Match(codePattern).Error("code may contain only letters, digits, '-' and '_'"),
		),
		validation.Field(&r.DiscountType,
			validation.Required.Error("discount_type is required"),
			validation.By(validType),
		),
		validation.Field(&r.DiscountValue, validation.By(discountValueRule(r.DiscountType))),
		validation.Field(&r.MinOrderValue, validation.By(nonNegative)),
		validation.Field(&r.MaxUses, validation.By(positiveMaxUses)),
	)
}

// Patch is a partial update. Absent fields keep their stored value. MaxUses
// and ExpiresAt accept null to mean unlimited and never; MinOrderValue null
// resets to zero. The remaining fields reject null.
type Patch struct {
	Code          patch.Field[string]
	DiscountType  patch.Field[DiscountType]
	DiscountValue patch.Field[decimal.Decimal]
	MinOrderValue patch.Field[decimal.Decimal]
	MaxUses       patch.Field[int]
	ExpiresAt     patch.Field[time.Time]
	IsActive      patch.Field[bool]
}

// Empty reports whether no recognized field was supplied.
func (p Patch) Empty() bool {
	return !p.Code.Present() &&
		!p.DiscountType.Present() &&
		!p.DiscountValue.Present() &&
		!p.MinOrderValue.Present() &&
		!p.MaxUses.Present() &&
		!p.ExpiresAt.Present() &&
		!p.IsActive.Present()
}

// ApplyTo merges the patch into c and validates the result.
func (p Patch) ApplyTo(c *Coupon) error {
	if p.Empty() {
		return validation.Errors{"body": errors.New("no updatable field supplied")}
	}
	nulls := validation.Errors{}
	for name, isNull := range map[string]bool{
		"code":           p.Code.IsNull(),
		"discount_type":  p.DiscountType.IsNull(),
		"discount_value": p.DiscountValue.IsNull(),
		"is_active":      p.IsActive.IsNull(),
	} {
		if isNull {
			nulls[name] = errors.New("cannot be null")
		}
	}
	if len(nulls) > 0 {
		return nulls
	}

	if code, ok := p.Code.Get(); ok {
		c.Code = NormalizeCode(code)
	}
	c.DiscountType = p.DiscountType.Apply(c.DiscountType)
	c.DiscountValue = p.DiscountValue.Apply(c.DiscountValue)
	c.MinOrderValue = p.MinOrderValue.Apply(c.MinOrderValue)
	c.MaxUses = p.MaxUses.ApplyPtr(c.MaxUses)
	c.ExpiresAt = p.ExpiresAt.ApplyPtr(c.ExpiresAt)
	c.IsActive = p.IsActive.Apply(c.IsActive)

	return CreateRequest{
		Code:          c.Code,
		DiscountType:  c.DiscountType,
		DiscountValue: c.DiscountValue,
		MinOrderValue: c.MinOrderValue,
		MaxUses:       c.MaxUses,
	}.Validate()
}

func validType(v any) error {
	t, _ := v.(DiscountType)
	if !t.Valid() {
		return errors.New("must be 'percentage' or 'flat'")
	}
	return nil
}

func discountValueRule(t DiscountType) validation.RuleFunc {
	return func(v any) error {
		d, _ := v.(decimal.Decimal)
		if !d.IsPositive() {
			return errors.New("must be greater than 0")
		}
		if t == DiscountPercentage && d.GreaterThan(hundred) {
			return errors.New("percentage cannot exceed 100")
		}
		return nil
	}
}

func nonNegative(v any) error {
	d, _ := v.(decimal.Decimal)
	if d.IsNegative() {
		return errors.New("must not be negative")
	}
	return nil
}

func positiveMaxUses(v any) error {
	n, _ := v.(*int)
	if n != nil && *n < 1 {
		return errors.New("must be at least 1")
	}
	return nil
}
