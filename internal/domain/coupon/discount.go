package coupon

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// Compute returns the discount for total under c and the resulting final
// total. The discount never exceeds total; both values are rounded to cents.
func Compute(c *Coupon, total decimal.Decimal) (discount, final decimal.Decimal) {
	switch c.DiscountType {
	case DiscountPercentage:
		discount = total.Mul(c.DiscountValue).Div(hundred)
	default:
		discount = c.DiscountValue
	}

	if discount.IsNegative() {
		discount = decimal.Zero
	}
	discount = decimal.Min(discount, total).Round(2)
	final = total.Sub(discount).Round(2)
	return discount, final
}
