package payment

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *RazorpayClient {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewRazorpayClient(RazorpayConfig{
		BaseURL:   srv.URL,
		KeyID:     "rzp_test",
		KeySecret: "secret",
	}, noop.NewTracerProvider())
}

func TestRazorpayClient_CreateOrder(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/orders", r.URL.Path)
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "rzp_test", user)
		assert.Equal(t, "secret", pass)

		body, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		var amount int64
		var currency string
		assert.NoError(t, jx.DecodeBytes(body).Obj(func(d *jx.Decoder, key string) error {
			switch key {
			case "amount":
				v, err := d.Int64()
				amount = v
				return err
			case "currency":
				v, err := d.Str()
				currency = v
				return err
			}
			return d.Skip()
		}))
		assert.EqualValues(t, 89820, amount)
		assert.Equal(t, "INR", currency)

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"id":"order_9A33XWu170gUtm","amount":89820,"currency":"INR","receipt":null,"status":"created","attempts":0}`))
	})

	o, err := c.CreateOrder(context.Background(), decimal.RequireFromString("898.20"), "")

	require.NoError(t, err)
	assert.Equal(t, "order_9A33XWu170gUtm", o.ID)
	assert.EqualValues(t, 89820, o.Amount)
	assert.Equal(t, "created", o.Status)
}

func TestRazorpayClient_CreateOrderUpstreamError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"code":"BAD_REQUEST_ERROR","description":"The amount must be atleast INR 1.00"}}`))
	})

	_, err := c.CreateOrder(context.Background(), decimal.RequireFromString("0.50"), "r1")

	require.ErrorIs(t, err, ErrUpstream)
	assert.Contains(t, err.Error(), "atleast INR 1.00")
}

func TestRazorpayClient_CreateOrderBadBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"amount":100}`))
	})

	_, err := c.CreateOrder(context.Background(), decimal.NewFromInt(1), "")

	require.ErrorIs(t, err, ErrUpstream)
}

func TestRazorpayClient_CreateOrderRejectsNonPositive(t *testing.T) {
	c := newTestClient(t, func(http.ResponseWriter, *http.Request) {
		t.Error("gateway must not be called")
	})

	_, err := c.CreateOrder(context.Background(), decimal.Zero, "")

	require.Error(t, err)
	require.NotErrorIs(t, err, ErrUpstream)
}

func TestVerifySignature(t *testing.T) {
	sig := Sign("secret", "order_1", "pay_1")

	tests := []struct {
		name      string
		orderID   string
		paymentID string
		signature string
		want      bool
	}{
		{name: "valid", orderID: "order_1", paymentID: "pay_1", signature: sig, want: true},
		{name: "swapped ids", orderID: "pay_1", paymentID: "order_1", signature: sig},
		{name: "tampered", orderID: "order_1", paymentID: "pay_2", signature: sig},
		{name: "empty signature", orderID: "order_1", paymentID: "pay_1"},
		{name: "empty order", paymentID: "pay_1", signature: sig},
	}

	c := NewRazorpayClient(RazorpayConfig{KeySecret: "secret"}, noop.NewTracerProvider())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.VerifySignature(tt.orderID, tt.paymentID, tt.signature))
		})
	}
}

func TestToMinorUnits(t *testing.T) {
	assert.EqualValues(t, 89820, ToMinorUnits(decimal.RequireFromString("898.20")))
	assert.EqualValues(t, 100, ToMinorUnits(decimal.RequireFromString("0.999")))
	assert.EqualValues(t, 5000, ToMinorUnits(decimal.NewFromInt(50)))
}
