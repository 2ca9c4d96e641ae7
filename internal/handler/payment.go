package handler

import (
	"net/http"

	"github.com/go-faster/jx"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/shopspring/decimal"
)

// CreatePaymentOrder handles POST /api/payments/orders.
func (h *Handler) CreatePaymentOrder(w http.ResponseWriter, r *http.Request) {
	var (
		amount  *decimal.Decimal
		receipt string
	)
	if err := decodeObject(r, func(d *jx.Decoder, key string) error {
		switch key {
		case "amount":
			return decodeValue(d, key, &amount, decodeDecimalPtr)
		case "receipt":
			return decodeValue(d, key, &receipt, decodeString)
		default:
			return d.Skip()
		}
	}); err != nil {
		writeError(r.Context(), w, err)
		return
	}
	if err := (validation.Errors{
		"amount": validation.Validate(amount, validation.NotNil.Error("is required"), validation.By(positiveAmount)),
	}).Filter(); err != nil {
		writeError(r.Context(), w, err)
		return
	}

	o, err := h.payments.CreateOrder(r.Context(), *amount, receipt)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("id", func(e *jx.Encoder) { e.Str(o.ID) })
			e.Field("amount", func(e *jx.Encoder) { e.Int64(o.Amount) })
			e.Field("currency", func(e *jx.Encoder) { e.Str(o.Currency) })
			e.Field("receipt", func(e *jx.Encoder) { e.Str(o.Receipt) })
			e.Field("status", func(e *jx.Encoder) { e.Str(o.Status) })
		})
	})
}

// VerifyPayment handles POST /api/payments/verify.
func (h *Handler) VerifyPayment(w http.ResponseWriter, r *http.Request) {
	var orderID, paymentID, signature string
	if err := decodeObject(r, func(d *jx.Decoder, key string) error {
		switch key {
		case "razorpay_order_id":
			return decodeValue(d, key, &orderID, decodeString)
		case "razorpay_payment_id":
			return decodeValue(d, key, &paymentID, decodeString)
		case "razorpay_signature":
			return decodeValue(d, key, &signature, decodeString)
		default:
			return d.Skip()
		}
	}); err != nil {
		writeError(r.Context(), w, err)
		return
	}
	if !h.payments.VerifySignature(orderID, paymentID, signature) {
		writeError(r.Context(), w, errPaymentMismatch)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("verified", func(e *jx.Encoder) { e.Bool(true) })
			e.Field("payment_id", func(e *jx.Encoder) { e.Str(paymentID) })
		})
	})
}

func positiveAmount(v any) error {
	d, _ := v.(*decimal.Decimal)
	if d != nil && !d.IsPositive() {
		return validation.NewError("validation_amount_positive", "must be greater than 0")
	}
	return nil
}
