package handler

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/checkout-core/internal/domain/otp"
	"github.com/xenking/checkout-core/internal/payment"
)

func TestBearerToken(t *testing.T) {
	for _, tt := range []struct {
		header string
		want   string
	}{
		{"Bearer abc", "abc"},
		{"bearer  abc ", "abc"},
		{"Basic abc", ""},
		{"abc", ""},
		{"", ""},
	} {
		req, _ := http.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", tt.header)
		assert.Equal(t, tt.want, bearerToken(req), tt.header)
	}
}

func TestOTP_SendAndVerify(t *testing.T) {
	f := newFixture()

	w := f.do(t, http.MethodPost, "/api/auth/otp/send", "", `{"phone":"98765 43210"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "98765 43210", f.codes.issued)
	assert.Equal(t, true, decodeBody(t, w)["sent"])

	w = f.do(t, http.MethodPost, "/api/auth/otp/verify", "", `{"phone":"+919876543210","code":"123456"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decodeBody(t, w)
	assert.Equal(t, "token-for-phone:+919876543210", body["token"])
	assert.Equal(t, float64(3600), body["expires_in"])
}

func TestOTP_VerifyErrors(t *testing.T) {
	for _, tt := range []struct {
		err    error
		status int
		kind   string
	}{
		{otp.ErrCodeExpired, http.StatusBadRequest, "CodeExpired"},
		{otp.ErrCodeMismatch, http.StatusBadRequest, "CodeMismatch"},
		{otp.ErrTooManyAttempts, http.StatusTooManyRequests, "TooManyAttempts"},
	} {
		t.Run(tt.kind, func(t *testing.T) {
			f := newFixture()
			f.codes.verifyErr = tt.err

			w := f.do(t, http.MethodPost, "/api/auth/otp/verify", "", `{"phone":"+1555000111","code":"000000"}`)

			requireError(t, w, tt.status, tt.kind)
		})
	}
}

func TestPayments(t *testing.T) {
	f := newFixture()

	requireError(t, f.do(t, http.MethodPost, "/api/payments/orders", "", `{"amount":10}`), http.StatusUnauthorized, "Unauthorized")

	w := f.do(t, http.MethodPost, "/api/payments/orders", "customer", `{"amount":"499.50","receipt":"o-1"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	body := decodeBody(t, w)
	assert.Equal(t, float64(49950), body["amount"])
	assert.Equal(t, "o-1", body["receipt"])

	requireError(t, f.do(t, http.MethodPost, "/api/payments/orders", "customer", `{"amount":0}`), http.StatusBadRequest, "ValidationError")

	f.gateway.err = payment.ErrUpstream
	requireError(t, f.do(t, http.MethodPost, "/api/payments/orders", "customer", `{"amount":1}`), http.StatusBadGateway, "UpstreamError")

	w = f.do(t, http.MethodPost, "/api/payments/verify", "customer",
		`{"razorpay_order_id":"order_1","razorpay_payment_id":"pay_1","razorpay_signature":"good"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decodeBody(t, w)["verified"])

	w = f.do(t, http.MethodPost, "/api/payments/verify", "customer",
		`{"razorpay_order_id":"order_1","razorpay_payment_id":"pay_1","razorpay_signature":"bad"}`)
	requireError(t, w, http.StatusBadRequest, "PaymentVerificationFailed")
}

func TestRouter_Fallbacks(t *testing.T) {
	f := newFixture()

	requireError(t, f.do(t, http.MethodGet, "/api/nope", "", ""), http.StatusNotFound, "NotFound")
	requireError(t, f.do(t, http.MethodPatch, "/api/coupons/validate", "admin", ""), http.StatusMethodNotAllowed, "MethodNotAllowed")
}
