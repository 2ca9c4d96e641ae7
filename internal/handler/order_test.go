package handler

import (
	"net/http"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/checkout-core/internal/domain/order"
	"github.com/xenking/checkout-core/pkg/patch"
)

const submitBody = `{
	"total_price": "998.00",
	"shipping_address": "12 Lake Road",
	"city": "Pune",
	"pincode": null,
	"payment_method": "cod",
	"guest_name": "Asha",
	"guest_email": "asha@example.com",
	"coupon_code": "save10",
	"unknown": {"nested": [1, 2]},
	"items": [
		{"product_id": "p1", "name": "Tee", "quantity": 2, "price": 499},
		{"variation_id": "v1", "quantity": 1, "price": "0"}
	]
}`

func TestSubmitOrder_Guest(t *testing.T) {
	f := newFixture()

	w := f.do(t, http.MethodPost, "/api/orders", "", submitBody)

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	body := decodeBody(t, w)
	assert.Equal(t, "o-1", body["id"])
	assert.Equal(t, "guest", body["channel"])
	assert.Equal(t, "pending", body["status"])
	assert.Equal(t, "998.00", body["total_price"])

	require.NotNil(t, f.orders.submitted)
	assert.Nil(t, f.orders.identity)
	req := f.orders.submitted
	assert.True(t, decimal.RequireFromString("998").Equal(*req.TotalPrice))
	assert.Equal(t, "12 Lake Road", req.ShippingAddress)
	assert.Empty(t, req.Pincode)
	assert.Equal(t, "save10", req.CouponCode)
	require.Len(t, req.Items, 2)
	assert.Equal(t, 2, req.Items[0].Quantity)
	assert.True(t, decimal.NewFromInt(499).Equal(*req.Items[0].Price))
	assert.Equal(t, "v1", req.Items[1].VariationID)
	assert.True(t, req.Items[1].Price.IsZero())
}

func TestSubmitOrder_Identity(t *testing.T) {
	for _, tt := range []struct {
		name    string
		token   string
		channel string
		member  bool
	}{
		{name: "Member", token: "customer", channel: "member", member: true},
		{name: "InvalidTokenFallsBackToGuest", token: "expired", channel: "guest"},
		{name: "NoToken", channel: "guest"},
	} {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()

			w := f.do(t, http.MethodPost, "/api/orders", tt.token, submitBody)

			require.Equal(t, http.StatusCreated, w.Code)
			assert.Equal(t, tt.channel, decodeBody(t, w)["channel"])
			if tt.member {
				require.NotNil(t, f.orders.identity)
				assert.Equal(t, "u-1", f.orders.identity.ID)
			} else {
				assert.Nil(t, f.orders.identity)
			}
		})
	}
}

func TestSubmitOrder_BadInput(t *testing.T) {
	for _, tt := range []struct {
		name  string
		body  string
		kind  string
		field string
	}{
		{name: "Malformed", body: `{"total_price":`, kind: "BadRequest"},
		{name: "NotObject", body: `[1]`, kind: "BadRequest"},
		{name: "TotalNotNumber", body: `{"total_price": "abc"}`, kind: "ValidationError", field: "total_price"},
		{name: "TotalWrongType", body: `{"total_price": true}`, kind: "ValidationError", field: "total_price"},
		{name: "ItemQuantityWrongType", body: `{"items": [{"quantity": "two"}]}`, kind: "ValidationError", field: "items"},
	} {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()

			w := f.do(t, http.MethodPost, "/api/orders", "", tt.body)

			body := requireError(t, w, http.StatusBadRequest, tt.kind)
			if tt.field != "" {
				fields, _ := body["fields"].(map[string]any)
				assert.Contains(t, fields, tt.field)
			}
			assert.Nil(t, f.orders.submitted)
		})
	}
}

func TestSubmitOrder_ServiceErrors(t *testing.T) {
	for _, tt := range []struct {
		name   string
		err    error
		status int
		kind   string
	}{
		{name: "Validation", err: (order.SubmitRequest{}).Validate(), status: http.StatusBadRequest, kind: "ValidationError"},
		{name: "Internal", err: errBoom, status: http.StatusInternalServerError, kind: "Internal"},
	} {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			f.orders.submitErr = tt.err

			w := f.do(t, http.MethodPost, "/api/orders", "", submitBody)

			body := requireError(t, w, tt.status, tt.kind)
			assert.NotContains(t, body["message"], "connection reset")
		})
	}
}

func TestListMyOrders(t *testing.T) {
	f := newFixture()
	user, other := "u-1", "u-2"
	f.orders.listed = []order.Order{
		{ID: "a", UserID: &user, Channel: order.ChannelMember},
		{ID: "b", UserID: &other, Channel: order.ChannelMember},
	}

	requireError(t, f.do(t, http.MethodGet, "/api/orders", "", ""), http.StatusUnauthorized, "Unauthorized")

	w := f.do(t, http.MethodGet, "/api/orders", "customer", "")
	require.Equal(t, http.StatusOK, w.Code)
	orders := decodeArray(t, w)
	require.Len(t, orders, 1)
	assert.Equal(t, "a", orders[0]["id"])
}

func TestGetOrder(t *testing.T) {
	f := newFixture()
	owner, other := "u-1", "u-2"
	f.orders.byID["mine"] = &order.Order{ID: "mine", UserID: &owner, Items: []order.Item{{ID: "i1", Name: "Tee", Quantity: 1}}}
	f.orders.byID["theirs"] = &order.Order{ID: "theirs", UserID: &other}

	w := f.do(t, http.MethodGet, "/api/orders/mine", "customer", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, "u-1", body["user_id"])
	assert.Len(t, body["items"], 1)

	requireError(t, f.do(t, http.MethodGet, "/api/orders/theirs", "customer", ""), http.StatusForbidden, "Forbidden")
	requireError(t, f.do(t, http.MethodGet, "/api/orders/missing", "customer", ""), http.StatusNotFound, "NotFound")

	w = f.do(t, http.MethodGet, "/api/orders/theirs", "admin", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestListOrders_Admin(t *testing.T) {
	f := newFixture()

	requireError(t, f.do(t, http.MethodGet, "/api/admin/orders", "customer", ""), http.StatusForbidden, "Forbidden")

	w := f.do(t, http.MethodGet, "/api/admin/orders?channel=guest&status=pending&limit=5", "admin", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, order.ListFilter{Channel: order.ChannelGuest, Status: order.StatusPending, Limit: 5}, f.orders.filter)

	requireError(t, f.do(t, http.MethodGet, "/api/admin/orders?limit=x", "admin", ""), http.StatusBadRequest, "ValidationError")
}

func TestUpdateOrderStatus(t *testing.T) {
	f := newFixture()

	w := f.do(t, http.MethodPut, "/api/admin/orders/o1/status", "admin", `{"status":"confirmed"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, order.StatusConfirmed, f.orders.status)

	requireError(t, f.do(t, http.MethodPut, "/api/admin/orders/o1/status", "admin", `{}`), http.StatusBadRequest, "ValidationError")

	f.orders.statusErr = &order.InvalidTransitionError{From: order.StatusDelivered, To: order.StatusPending}
	requireError(t, f.do(t, http.MethodPut, "/api/admin/orders/o1/status", "admin", `{"status":"pending"}`), http.StatusConflict, "InvalidTransition")
}

func TestUpdateOrderDetails_TriState(t *testing.T) {
	f := newFixture()

	w := f.do(t, http.MethodPatch, "/api/admin/orders/o1", "admin", `{"city":null,"pincode":"411001"}`)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	p := f.orders.details
	assert.Equal(t, patch.Absent, p.ShippingAddress.State())
	assert.True(t, p.City.IsNull())
	v, ok := p.Pincode.Get()
	assert.True(t, ok)
	assert.Equal(t, "411001", v)
}
