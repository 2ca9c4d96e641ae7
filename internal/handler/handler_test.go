package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/xenking/checkout-core/internal/domain/auth"
	"github.com/xenking/checkout-core/internal/domain/coupon"
	"github.com/xenking/checkout-core/internal/domain/order"
	"github.com/xenking/checkout-core/internal/domain/variation"
	"github.com/xenking/checkout-core/internal/payment"
)

// --- Mock implementations ---

type mockOrders struct {
	submitted *order.SubmitRequest
	identity  *auth.Identity
	submitErr error

	byID      map[string]*order.Order
	listed    []order.Order
	filter    order.ListFilter
	status    order.Status
	statusErr error
	details   order.DetailsPatch
}

func (m *mockOrders) Submit(_ context.Context, req order.SubmitRequest, id *auth.Identity) (*order.Order, error) {
	m.submitted = &req
	m.identity = id
	if m.submitErr != nil {
		return nil, m.submitErr
	}
	o := &order.Order{ID: "o-1", Channel: order.ChannelGuest, Status: order.StatusPending}
	if req.TotalPrice != nil {
		o.TotalPrice = *req.TotalPrice
	}
	if id != nil {
		o.Channel = order.ChannelMember
		o.UserID = &id.ID
	}
	return o, nil
}

func (m *mockOrders) ListForUser(_ context.Context, userID string) ([]order.Order, error) {
	var out []order.Order
	for _, o := range m.listed {
		if o.UserID != nil && *o.UserID == userID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (m *mockOrders) ListAll(_ context.Context, f order.ListFilter) ([]order.Order, error) {
	m.filter = f
	return m.listed, nil
}

func (m *mockOrders) Get(_ context.Context, id string, caller *auth.Identity) (*order.Order, error) {
	o, ok := m.byID[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	if !caller.IsAdmin() && (o.UserID == nil || caller == nil || *o.UserID != caller.ID) {
		return nil, order.ErrForbidden
	}
	return o, nil
}

func (m *mockOrders) UpdateStatus(_ context.Context, id string, next order.Status) (*order.Order, error) {
	m.status = next
	if m.statusErr != nil {
		return nil, m.statusErr
	}
	return &order.Order{ID: id, Status: next}, nil
}

func (m *mockOrders) UpdateDetails(_ context.Context, id string, p order.DetailsPatch) (*order.Order, error) {
	m.details = p
	return &order.Order{ID: id}, nil
}

type mockCoupons struct {
	quote    *coupon.Quote
	err      error
	created  *coupon.CreateRequest
	patch    *coupon.Patch
	coupons  []coupon.Coupon
	usages   []coupon.Usage
	deleted  string
}

func (m *mockCoupons) Validate(_ context.Context, code string, total decimal.Decimal) (*coupon.Quote, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.quote, nil
}

func (m *mockCoupons) Create(_ context.Context, req coupon.CreateRequest) (*coupon.Coupon, error) {
	m.created = &req
	if m.err != nil {
		return nil, m.err
	}
	return &coupon.Coupon{ID: "c-1", Code: coupon.NormalizeCode(req.Code), DiscountType: req.DiscountType}, nil
}

func (m *mockCoupons) Update(_ context.Context, id string, p coupon.Patch) (*coupon.Coupon, error) {
	m.patch = &p
	if m.err != nil {
		return nil, m.err
	}
	return &coupon.Coupon{ID: id}, nil
}

func (m *mockCoupons) Get(_ context.Context, id string) (*coupon.Coupon, error) {
	for i := range m.coupons {
		if m.coupons[i].ID == id {
			return &m.coupons[i], nil
		}
	}
	return nil, coupon.ErrNotFound
}

func (m *mockCoupons) List(context.Context) ([]coupon.Coupon, error) {
	return m.coupons, nil
}

func (m *mockCoupons) Delete(_ context.Context, id string) error {
	if _, err := m.Get(context.Background(), id); err != nil {
		return err
	}
	m.deleted = id
	return nil
}

func (m *mockCoupons) Usages(_ context.Context, couponID string) ([]coupon.Usage, error) {
	return m.usages, nil
}

type mockVariations struct {
	byID         map[string]*variation.Variation
	created      *variation.CreateRequest
	patch        *variation.Patch
	deleted      string
	addedURL     string
	deletedImage string
}

func (m *mockVariations) List(_ context.Context, productID string) ([]variation.Variation, error) {
	var out []variation.Variation
	for _, v := range m.byID {
		if v.ProductID == productID {
			out = append(out, *v)
		}
	}
	return out, nil
}

func (m *mockVariations) Get(_ context.Context, id string) (*variation.Variation, error) {
	v, ok := m.byID[id]
	if !ok {
		return nil, variation.ErrNotFound
	}
	return v, nil
}

func (m *mockVariations) Create(_ context.Context, productID string, req variation.CreateRequest) (*variation.Variation, error) {
	m.created = &req
	return &variation.Variation{ID: "v-new", ProductID: productID, Type: req.Type, Value: req.Value}, nil
}

func (m *mockVariations) Update(_ context.Context, id string, p variation.Patch) (*variation.Variation, error) {
	m.patch = &p
	return m.byID[id], nil
}

func (m *mockVariations) Delete(_ context.Context, id string) error {
	m.deleted = id
	return nil
}

func (m *mockVariations) AddImage(_ context.Context, variationID, url string) (*variation.Image, error) {
	m.addedURL = url
	return &variation.Image{ID: "img-1", VariationID: variationID, URL: url, DisplayOrder: 1}, nil
}

func (m *mockVariations) DeleteImage(_ context.Context, variationID, imageID string) error {
	m.deletedImage = imageID
	return nil
}

type mockCodes struct {
	verifyErr error
	issued    string
}

func (m *mockCodes) Issue(_ context.Context, phone string) (string, error) {
	m.issued = phone
	return "+" + strings.TrimPrefix(phone, "+"), nil
}

func (m *mockCodes) Verify(_ context.Context, phone, code string) (string, error) {
	if m.verifyErr != nil {
		return "", m.verifyErr
	}
	return phone, nil
}

// mockTokens accepts "admin" and "customer" as bearer tokens.
type mockTokens struct{}

func (mockTokens) Authenticate(_ context.Context, token string) (*auth.Identity, error) {
	switch token {
	case "admin":
		return &auth.Identity{ID: "u-admin", Role: auth.RoleAdmin}, nil
	case "customer":
		return &auth.Identity{ID: "u-1", Email: "c@example.com", Role: auth.RoleCustomer}, nil
	default:
		return nil, auth.ErrInvalidToken
	}
}

func (mockTokens) Issue(id auth.Identity, _ time.Duration) (string, error) {
	return "token-for-" + id.ID, nil
}

type mockGateway struct {
	err error
}

func (m *mockGateway) CreateOrder(_ context.Context, amount decimal.Decimal, receipt string) (*payment.GatewayOrder, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &payment.GatewayOrder{ID: "order_1", Amount: payment.ToMinorUnits(amount), Currency: "INR", Receipt: receipt, Status: "created"}, nil
}

func (m *mockGateway) VerifySignature(orderID, paymentID, signature string) bool {
	return signature == "good"
}

// --- Helpers ---

type fixture struct {
	orders     *mockOrders
	coupons    *mockCoupons
	variations *mockVariations
	codes      *mockCodes
	gateway    *mockGateway
	router     http.Handler
}

func newFixture() *fixture {
	f := &fixture{
		orders:     &mockOrders{byID: map[string]*order.Order{}},
		coupons:    &mockCoupons{},
		variations: &mockVariations{byID: map[string]*variation.Variation{}},
		codes:      &mockCodes{},
		gateway:    &mockGateway{},
	}
	h := New(Config{TokenTTL: time.Hour}, Deps{
		Orders:     f.orders,
		Coupons:    f.coupons,
		Variations: f.variations,
		Codes:      f.codes,
		Tokens:     mockTokens{},
		Payments:   f.gateway,
	})
	f.router = h.Router()
	return f
}

func (f *fixture) do(t *testing.T, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	return body
}

func decodeArray(t *testing.T, w *httptest.ResponseRecorder) []map[string]any {
	t.Helper()
	var body []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	return body
}

func requireError(t *testing.T, w *httptest.ResponseRecorder, status int, kind string) map[string]any {
	t.Helper()
	require.Equal(t, status, w.Code, w.Body.String())
	body := decodeBody(t, w)
	require.Equal(t, float64(status), body["code"])
	require.Equal(t, kind, body["error"])
	return body
}

var errBoom = errors.New("connection reset by peer")
