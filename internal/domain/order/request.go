package order

import (
	"strings"

	"github.com/go-faster/errors"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/shopspring/decimal"

	"github.com/xenking/checkout-core/pkg/patch"
)

// SubmitRequest is a checkout submission.
type SubmitRequest struct {
	TotalPrice      *decimal.Decimal `json:"total_price"`
	ShippingAddress string           `json:"shipping_address"`
	City            string           `json:"city"`
	Pincode         string           `json:"pincode"`
	PaymentMethod   string           `json:"payment_method"`
	Phone           string           `json:"phone"`
	FullName        string           `json:"full_name"`
	Email           string           `json:"email"`
	GuestName       string           `json:"guest_name"`
	GuestEmail      string           `json:"guest_email"`
	CouponCode      string           `json:"coupon_code"`
	Items           []ItemRequest    `json:"items"`
}

// Validate checks required fields and every item.
func (r SubmitRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.TotalPrice, validation.NotNil.Error("is required"), validation.By(nonNegativeDecimal)),
		validation.Field(&r.ShippingAddress, validation.Required, validation.Length(1, 500)),
		validation.Field(&r.PaymentMethod, validation.Required, validation.Length(1, 50)),
		validation.Field(&r.Email, is.EmailFormat),
		validation.Field(&r.GuestEmail, is.EmailFormat),
		validation.Field(&r.Items),
	)
}

// ItemRequest is one submitted line item. Name may be omitted when
// VariationID is set; it is then derived from the variation.
type ItemRequest struct {
	ProductID   string           `json:"product_id"`
	VariationID string           `json:"variation_id"`
	Name        string           `json:"name"`
	Quantity    int              `json:"quantity"`
	Price       *decimal.Decimal `json:"price"`
}

// Validate checks a single item.
func (r ItemRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.When(strings.TrimSpace(r.VariationID) == "", validation.Required)),
		validation.Field(&r.Quantity, validation.Required.Error("must be greater than 0"), validation.Min(1)),
		validation.Field(&r.Price, validation.NotNil.Error("is required"), validation.By(nonNegativeDecimal)),
	)
}

// DetailsPatch edits the delivery details of an order. Null clears city and
// pincode; the shipping address cannot be cleared.
type DetailsPatch struct {
	ShippingAddress patch.Field[string]
	City            patch.Field[string]
	Pincode         patch.Field[string]
}

// Empty reports whether no recognized field was supplied.
func (p DetailsPatch) Empty() bool {
	return !p.ShippingAddress.Present() && !p.City.Present() && !p.Pincode.Present()
}

// ApplyTo merges p into o.
func (p DetailsPatch) ApplyTo(o *Order) error {
	if p.Empty() {
		return validation.Errors{"body": errors.New("no updatable field supplied")}
	}
	if p.ShippingAddress.IsNull() {
		return validation.Errors{"shipping_address": errors.New("cannot be null")}
	}
	if v, ok := p.ShippingAddress.Get(); ok {
		v = strings.TrimSpace(v)
		if v == "" {
			return validation.Errors{"shipping_address": errors.New("cannot be blank")}
		}
		o.ShippingAddress = v
	}
	o.City = strings.TrimSpace(p.City.Apply(o.City))
	o.Pincode = strings.TrimSpace(p.Pincode.Apply(o.Pincode))
	return nil
}

func nonNegativeDecimal(v any) error {
	d, _ := v.(*decimal.Decimal)
	if d != nil && d.IsNegative() {
		return errors.New("must not be negative")
	}
	return nil
}
