package handler

import (
	"net/http"

	"github.com/go-faster/jx"

	"github.com/xenking/checkout-core/internal/domain/auth"
)

// SendCode handles POST /api/auth/otp/send.
func (h *Handler) SendCode(w http.ResponseWriter, r *http.Request) {
	phone, _, err := decodePhoneCode(r)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	normalized, err := h.codes.Issue(r.Context(), phone)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("sent", func(e *jx.Encoder) { e.Bool(true) })
			e.Field("phone", func(e *jx.Encoder) { e.Str(normalized) })
		})
	})
}

// VerifyCode handles POST /api/auth/otp/verify. A correct code returns a
// customer token for the phone identity.
func (h *Handler) VerifyCode(w http.ResponseWriter, r *http.Request) {
	phone, code, err := decodePhoneCode(r)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	normalized, err := h.codes.Verify(r.Context(), phone, code)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	id := auth.Identity{ID: "phone:" + normalized, Phone: normalized, Role: auth.RoleCustomer}
	token, err := h.tokens.Issue(id, h.tokenTTL)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("verified", func(e *jx.Encoder) { e.Bool(true) })
			e.Field("token", func(e *jx.Encoder) { e.Str(token) })
			e.Field("expires_in", func(e *jx.Encoder) { e.Int64(int64(h.tokenTTL.Seconds())) })
			e.Field("phone", func(e *jx.Encoder) { e.Str(normalized) })
		})
	})
}

func decodePhoneCode(r *http.Request) (phone, code string, err error) {
	err = decodeObject(r, func(d *jx.Decoder, key string) error {
		switch key {
		case "phone":
			return decodeValue(d, key, &phone, decodeString)
		case "code", "otp":
			return decodeValue(d, key, &code, decodeString)
		default:
			return d.Skip()
		}
	})
	return phone, code, err
}
