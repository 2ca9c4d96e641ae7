package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/shopspring/decimal"

	"github.com/xenking/checkout-core/internal/domain/coupon"
)

// ValidateCoupon handles POST /api/coupons/validate.
func (h *Handler) ValidateCoupon(w http.ResponseWriter, r *http.Request) {
	var (
		code  string
		total *decimal.Decimal
	)
	if err := decodeObject(r, func(d *jx.Decoder, key string) error {
		switch key {
		case "code", "coupon_code":
			return decodeValue(d, key, &code, decodeString)
		case "orderTotal", "order_total":
			return decodeValue(d, key, &total, decodeDecimalPtr)
		default:
			return d.Skip()
		}
	}); err != nil {
		writeError(r.Context(), w, err)
		return
	}
	if err := (validation.Errors{
		"code":       validation.Validate(code, validation.Required),
		"orderTotal": validation.Validate(total, validation.NotNil.Error("is required")),
	}).Filter(); err != nil {
		writeError(r.Context(), w, err)
		return
	}

	q, err := h.coupons.Validate(r.Context(), code, *total)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("valid", func(e *jx.Encoder) { e.Bool(true) })
			e.Field("coupon", func(e *jx.Encoder) { encodeCoupon(e, q.Coupon) })
			e.Field("discountAmount", func(e *jx.Encoder) { encodeMoney(e, q.DiscountAmount) })
			e.Field("finalTotal", func(e *jx.Encoder) { encodeMoney(e, q.FinalTotal) })
		})
	})
}

// ListCoupons handles GET /api/coupons.
func (h *Handler) ListCoupons(w http.ResponseWriter, r *http.Request) {
	coupons, err := h.coupons.List(r.Context())
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Arr(func(e *jx.Encoder) {
			for i := range coupons {
				encodeCoupon(e, &coupons[i])
			}
		})
	})
}

// GetCoupon handles GET /api/coupons/{id}.
func (h *Handler) GetCoupon(w http.ResponseWriter, r *http.Request) {
	c, err := h.coupons.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeCoupon(e, c) })
}

// CreateCoupon handles POST /api/coupons.
func (h *Handler) CreateCoupon(w http.ResponseWriter, r *http.Request) {
	var req coupon.CreateRequest
	if err := decodeObject(r, func(d *jx.Decoder, key string) error {
		switch key {
		case "code":
			return decodeValue(d, key, &req.Code, decodeString)
		case "discount_type":
			return decodeValue(d, key, &req.DiscountType, decodeDiscountType)
		case "discount_value":
			return decodeValue(d, key, &req.DiscountValue, decodeDecimal)
		case "min_order_value":
			return decodeValue(d, key, &req.MinOrderValue, decodeOptDecimal)
		case "max_uses":
			return decodeValue(d, key, &req.MaxUses, decodeOptInt)
		case "expires_at":
			return decodeValue(d, key, &req.ExpiresAt, decodeOptTime)
		case "is_active":
			return decodeValue(d, key, &req.IsActive, decodeOptBool)
		default:
			return d.Skip()
		}
	}); err != nil {
		writeError(r.Context(), w, err)
		return
	}
	c, err := h.coupons.Create(r.Context(), req)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { encodeCoupon(e, c) })
}

// UpdateCoupon handles PUT /api/coupons/{id}. Absent fields are kept; null
// max_uses means unlimited and null expires_at means never.
func (h *Handler) UpdateCoupon(w http.ResponseWriter, r *http.Request) {
	var p coupon.Patch
	if err := decodeObject(r, func(d *jx.Decoder, key string) error {
		switch key {
		case "code":
			return decodeField(d, key, &p.Code, (*jx.Decoder).Str)
		case "discount_type":
			return decodeField(d, key, &p.DiscountType, decodeDiscountType)
		case "discount_value":
			return decodeField(d, key, &p.DiscountValue, decodeDecimal)
		case "min_order_value":
			return decodeField(d, key, &p.MinOrderValue, decodeDecimal)
		case "max_uses":
			return decodeField(d, key, &p.MaxUses, (*jx.Decoder).Int)
		case "expires_at":
			return decodeField(d, key, &p.ExpiresAt, decodeTime)
		case "is_active":
			return decodeField(d, key, &p.IsActive, decodeBool)
		default:
			return d.Skip()
		}
	}); err != nil {
		writeError(r.Context(), w, err)
		return
	}
	c, err := h.coupons.Update(r.Context(), chi.URLParam(r, "id"), p)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeCoupon(e, c) })
}

// DeleteCoupon handles DELETE /api/coupons/{id}.
func (h *Handler) DeleteCoupon(w http.ResponseWriter, r *http.Request) {
	if err := h.coupons.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(r.Context(), w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListCouponUsages handles GET /api/coupons/{id}/usages.
func (h *Handler) ListCouponUsages(w http.ResponseWriter, r *http.Request) {
	usages, err := h.coupons.Usages(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Arr(func(e *jx.Encoder) {
			for _, u := range usages {
				e.Obj(func(e *jx.Encoder) {
					e.Field("id", func(e *jx.Encoder) { e.Str(u.ID) })
					e.Field("coupon_id", func(e *jx.Encoder) { e.Str(u.CouponID) })
					e.Field("user_id", func(e *jx.Encoder) { encodeOptStr(e, u.UserID) })
					e.Field("order_id", func(e *jx.Encoder) { e.Str(u.OrderID) })
					e.Field("discount_amount", func(e *jx.Encoder) { encodeMoney(e, u.DiscountAmount) })
					e.Field("used_at", func(e *jx.Encoder) { encodeTime(e, u.UsedAt) })
				})
			}
		})
	})
}

func decodeDiscountType(d *jx.Decoder) (coupon.DiscountType, error) {
	s, err := d.Str()
	if err != nil {
		return "", err
	}
	return coupon.DiscountType(s), nil
}

func decodeOptDecimal(d *jx.Decoder) (decimal.Decimal, error) {
	if d.Next() == jx.Null {
		return decimal.Zero, d.Null()
	}
	return decodeDecimal(d)
}

func decodeOptInt(d *jx.Decoder) (*int, error) {
	if d.Next() == jx.Null {
		return nil, d.Null()
	}
	n, err := d.Int()
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func decodeOptBool(d *jx.Decoder) (*bool, error) {
	if d.Next() == jx.Null {
		return nil, d.Null()
	}
	b, err := d.Bool()
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func decodeOptTime(d *jx.Decoder) (*time.Time, error) {
	if d.Next() == jx.Null {
		return nil, d.Null()
	}
	t, err := decodeTime(d)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func encodeCoupon(e *jx.Encoder, c *coupon.Coupon) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(c.ID) })
		e.Field("code", func(e *jx.Encoder) { e.Str(c.Code) })
		e.Field("discount_type", func(e *jx.Encoder) { e.Str(string(c.DiscountType)) })
		e.Field("discount_value", func(e *jx.Encoder) { encodeMoney(e, c.DiscountValue) })
		e.Field("min_order_value", func(e *jx.Encoder) { encodeMoney(e, c.MinOrderValue) })
		e.Field("max_uses", func(e *jx.Encoder) {
			if c.MaxUses == nil {
				e.Null()
				return
			}
			e.Int(*c.MaxUses)
		})
		e.Field("current_uses", func(e *jx.Encoder) { e.Int(c.CurrentUses) })
		e.Field("expires_at", func(e *jx.Encoder) {
			if c.ExpiresAt == nil {
				e.Null()
				return
			}
			encodeTime(e, *c.ExpiresAt)
		})
		e.Field("is_active", func(e *jx.Encoder) { e.Bool(c.IsActive) })
		e.Field("created_at", func(e *jx.Encoder) { encodeTime(e, c.CreatedAt) })
		e.Field("updated_at", func(e *jx.Encoder) { encodeTime(e, c.UpdatedAt) })
	})
}
