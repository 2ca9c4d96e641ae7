package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/xenking/checkout-core/internal/domain/auth"
	"github.com/xenking/checkout-core/internal/domain/order"
)

// SubmitOrder handles POST /api/orders. A valid bearer token places a member
// order; otherwise the order is placed as a guest.
func (h *Handler) SubmitOrder(w http.ResponseWriter, r *http.Request) {
	req, err := decodeSubmit(r)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	o, err := h.orders.Submit(r.Context(), req, auth.FromContext(r.Context()))
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("id", func(e *jx.Encoder) { e.Str(o.ID) })
			e.Field("channel", func(e *jx.Encoder) { e.Str(string(o.Channel)) })
			e.Field("status", func(e *jx.Encoder) { e.Str(string(o.Status)) })
			e.Field("total_price", func(e *jx.Encoder) { encodeMoney(e, o.TotalPrice) })
			e.Field("discount_amount", func(e *jx.Encoder) { encodeMoney(e, o.DiscountAmount) })
			e.Field("coupon_code", func(e *jx.Encoder) { encodeOptStr(e, o.CouponCode) })
		})
	})
}

// ListMyOrders handles GET /api/orders.
func (h *Handler) ListMyOrders(w http.ResponseWriter, r *http.Request) {
	id := auth.FromContext(r.Context())
	orders, err := h.orders.ListForUser(r.Context(), id.ID)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrders(e, orders) })
}

// GetOrder handles GET /api/orders/{id}.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.Get(r.Context(), chi.URLParam(r, "id"), auth.FromContext(r.Context()))
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrder(e, o) })
}

// ListOrders handles GET /api/admin/orders?channel=&status=&limit=.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := order.ListFilter{
		Channel: order.Channel(q.Get("channel")),
		Status:  order.Status(q.Get("status")),
	}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(r.Context(), w, invalid("limit", errors.New("must be a non-negative integer")))
			return
		}
		f.Limit = n
	}
	orders, err := h.orders.ListAll(r.Context(), f)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrders(e, orders) })
}

// UpdateOrderStatus handles PUT /api/admin/orders/{id}/status.
func (h *Handler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	var status string
	if err := decodeObject(r, func(d *jx.Decoder, key string) error {
		if key == "status" {
			return decodeValue(d, key, &status, decodeString)
		}
		return d.Skip()
	}); err != nil {
		writeError(r.Context(), w, err)
		return
	}
	if status == "" {
		writeError(r.Context(), w, validation.Errors{"status": errors.New("is required")})
		return
	}
	o, err := h.orders.UpdateStatus(r.Context(), chi.URLParam(r, "id"), order.Status(status))
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrder(e, o) })
}

// UpdateOrderDetails handles PATCH /api/admin/orders/{id}.
func (h *Handler) UpdateOrderDetails(w http.ResponseWriter, r *http.Request) {
	var p order.DetailsPatch
	if err := decodeObject(r, func(d *jx.Decoder, key string) error {
		switch key {
		case "shipping_address":
			return decodeField(d, key, &p.ShippingAddress, (*jx.Decoder).Str)
		case "city":
			return decodeField(d, key, &p.City, (*jx.Decoder).Str)
		case "pincode":
			return decodeField(d, key, &p.Pincode, (*jx.Decoder).Str)
		default:
			return d.Skip()
		}
	}); err != nil {
		writeError(r.Context(), w, err)
		return
	}
	o, err := h.orders.UpdateDetails(r.Context(), chi.URLParam(r, "id"), p)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrder(e, o) })
}

func decodeSubmit(r *http.Request) (order.SubmitRequest, error) {
	var req order.SubmitRequest
	strs := map[string]*string{
		"shipping_address": &req.ShippingAddress,
		"city":             &req.City,
		"pincode":          &req.Pincode,
		"payment_method":   &req.PaymentMethod,
		"phone":            &req.Phone,
		"full_name":        &req.FullName,
		"email":            &req.Email,
		"guest_name":       &req.GuestName,
		"guest_email":      &req.GuestEmail,
		"coupon_code":      &req.CouponCode,
	}
	err := decodeObject(r, func(d *jx.Decoder, key string) error {
		if dst, ok := strs[key]; ok {
			return decodeValue(d, key, dst, decodeString)
		}
		switch key {
		case "total_price":
			return decodeValue(d, key, &req.TotalPrice, decodeDecimalPtr)
		case "items":
			if d.Next() == jx.Null {
				return d.Null()
			}
			return d.Arr(func(d *jx.Decoder) error {
				item, err := decodeItem(d, len(req.Items))
				if err != nil {
					return err
				}
				req.Items = append(req.Items, item)
				return nil
			})
		default:
			return d.Skip()
		}
	})
	return req, err
}

func decodeItem(d *jx.Decoder, idx int) (order.ItemRequest, error) {
	var it order.ItemRequest
	wrap := func(err error) error {
		var verr validation.Errors
		if errors.As(err, &verr) {
			return validation.Errors{"items": validation.Errors{strconv.Itoa(idx): verr}}
		}
		return err
	}
	err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "product_id":
			return wrap(decodeValue(d, key, &it.ProductID, decodeString))
		case "variation_id":
			return wrap(decodeValue(d, key, &it.VariationID, decodeString))
		case "name":
			return wrap(decodeValue(d, key, &it.Name, decodeString))
		case "quantity":
			return wrap(decodeValue(d, key, &it.Quantity, decodeInt))
		case "price":
			return wrap(decodeValue(d, key, &it.Price, decodeDecimalPtr))
		default:
			return d.Skip()
		}
	})
	return it, err
}

func encodeOrders(e *jx.Encoder, orders []order.Order) {
	e.Arr(func(e *jx.Encoder) {
		for i := range orders {
			encodeOrder(e, &orders[i])
		}
	})
}

func encodeOrder(e *jx.Encoder, o *order.Order) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(o.ID) })
		e.Field("user_id", func(e *jx.Encoder) { encodeOptStr(e, o.UserID) })
		e.Field("channel", func(e *jx.Encoder) { e.Str(string(o.Channel)) })
		e.Field("customer_name", func(e *jx.Encoder) { e.Str(o.CustomerName) })
		e.Field("customer_email", func(e *jx.Encoder) { e.Str(o.CustomerEmail) })
		e.Field("phone", func(e *jx.Encoder) { e.Str(o.Phone) })
		e.Field("total_price", func(e *jx.Encoder) { encodeMoney(e, o.TotalPrice) })
		e.Field("discount_amount", func(e *jx.Encoder) { encodeMoney(e, o.DiscountAmount) })
		e.Field("coupon_code", func(e *jx.Encoder) { encodeOptStr(e, o.CouponCode) })
		e.Field("shipping_address", func(e *jx.Encoder) { e.Str(o.ShippingAddress) })
		e.Field("city", func(e *jx.Encoder) { e.Str(o.City) })
		e.Field("pincode", func(e *jx.Encoder) { e.Str(o.Pincode) })
		e.Field("payment_method", func(e *jx.Encoder) { e.Str(o.PaymentMethod) })
		e.Field("status", func(e *jx.Encoder) { e.Str(string(o.Status)) })
		e.Field("items", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, it := range o.Items {
					e.Obj(func(e *jx.Encoder) {
						e.Field("id", func(e *jx.Encoder) { e.Str(it.ID) })
						e.Field("product_id", func(e *jx.Encoder) { encodeOptStr(e, it.ProductID) })
						e.Field("variation_id", func(e *jx.Encoder) { encodeOptStr(e, it.VariationID) })
						e.Field("name", func(e *jx.Encoder) { e.Str(it.Name) })
						e.Field("quantity", func(e *jx.Encoder) { e.Int(it.Quantity) })
						e.Field("unit_price", func(e *jx.Encoder) { encodeMoney(e, it.UnitPrice) })
					})
				}
			})
		})
		e.Field("created_at", func(e *jx.Encoder) { encodeTime(e, o.CreatedAt) })
		e.Field("updated_at", func(e *jx.Encoder) { encodeTime(e, o.UpdatedAt) })
	})
}
