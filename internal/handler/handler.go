// Package handler exposes the checkout domain over HTTP with a chi router and
// a go-faster/jx JSON codec.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/xenking/checkout-core/internal/domain/auth"
	"github.com/xenking/checkout-core/internal/domain/coupon"
	"github.com/xenking/checkout-core/internal/domain/order"
	"github.com/xenking/checkout-core/internal/domain/variation"
	"github.com/xenking/checkout-core/internal/payment"
)

// Orders is the order intake surface used by the handlers.
type Orders interface {
	Submit(ctx context.Context, req order.SubmitRequest, id *auth.Identity) (*order.Order, error)
	ListForUser(ctx context.Context, userID string) ([]order.Order, error)
	ListAll(ctx context.Context, f order.ListFilter) ([]order.Order, error)
	Get(ctx context.Context, orderID string, caller *auth.Identity) (*order.Order, error)
	UpdateStatus(ctx context.Context, orderID string, next order.Status) (*order.Order, error)
	UpdateDetails(ctx context.Context, orderID string, p order.DetailsPatch) (*order.Order, error)
}

// Coupons is the coupon engine surface used by the handlers.
type Coupons interface {
	Validate(ctx context.Context, code string, orderTotal decimal.Decimal) (*coupon.Quote, error)
	Create(ctx context.Context, req coupon.CreateRequest) (*coupon.Coupon, error)
	Update(ctx context.Context, id string, p coupon.Patch) (*coupon.Coupon, error)
	Get(ctx context.Context, id string) (*coupon.Coupon, error)
	List(ctx context.Context) ([]coupon.Coupon, error)
	Delete(ctx context.Context, id string) error
	Usages(ctx context.Context, couponID string) ([]coupon.Usage, error)
}

// Variations is the variation resolver surface used by the handlers.
type Variations interface {
	List(ctx context.Context, productID string) ([]variation.Variation, error)
	Get(ctx context.Context, id string) (*variation.Variation, error)
	Create(ctx context.Context, productID string, req variation.CreateRequest) (*variation.Variation, error)
	Update(ctx context.Context, id string, p variation.Patch) (*variation.Variation, error)
	Delete(ctx context.Context, id string) error
	AddImage(ctx context.Context, variationID, url string) (*variation.Image, error)
	DeleteImage(ctx context.Context, variationID, imageID string) error
}

// Codes issues and verifies one-time phone codes.
type Codes interface {
	Issue(ctx context.Context, phone string) (string, error)
	Verify(ctx context.Context, phone, code string) (string, error)
}

// Tokens authenticates bearer tokens and issues new ones.
type Tokens interface {
	auth.Authenticator
	Issue(id auth.Identity, ttl time.Duration) (string, error)
}

// Config holds non-dependency handler settings.
type Config struct {
	// TokenTTL is the lifetime of tokens issued after phone verification.
	TokenTTL time.Duration
}

// Handler serves the /api routes.
type Handler struct {
	orders     Orders
	coupons    Coupons
	variations Variations
	codes      Codes
	tokens     Tokens
	payments   payment.Gateway
	tokenTTL   time.Duration
}

// Deps bundles the collaborators of a Handler.
type Deps struct {
	Orders     Orders
	Coupons    Coupons
	Variations Variations
	Codes      Codes
	Tokens     Tokens
	Payments   payment.Gateway
}

// New constructs a Handler.
func New(cfg Config, deps Deps) *Handler {
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Handler{
		orders:     deps.Orders,
		coupons:    deps.Coupons,
		variations: deps.Variations,
		codes:      deps.Codes,
		tokens:     deps.Tokens,
		payments:   deps.Payments,
		tokenTTL:   ttl,
	}
}

// Routes mounts the API on r.
func (h *Handler) Routes(r chi.Router) {
	r.Use(OptionalAuth(h.tokens))

	r.Route("/orders", func(r chi.Router) {
		r.Post("/", h.SubmitOrder)
		r.Group(func(r chi.Router) {
			r.Use(RequireAuth)
			r.Get("/", h.ListMyOrders)
			r.Get("/{id}", h.GetOrder)
		})
	})

	r.Route("/admin/orders", func(r chi.Router) {
		r.Use(RequireAdmin)
		r.Get("/", h.ListOrders)
		r.Put("/{id}/status", h.UpdateOrderStatus)
		r.Patch("/{id}", h.UpdateOrderDetails)
	})

	r.Route("/coupons", func(r chi.Router) {
		r.Post("/validate", h.ValidateCoupon)
		r.Group(func(r chi.Router) {
			r.Use(RequireAdmin)
			r.Get("/", h.ListCoupons)
			r.Post("/", h.CreateCoupon)
			r.Get("/{id}", h.GetCoupon)
			r.Put("/{id}", h.UpdateCoupon)
			r.Delete("/{id}", h.DeleteCoupon)
			r.Get("/{id}/usages", h.ListCouponUsages)
		})
	})

	r.Route("/variations/{productID}", func(r chi.Router) {
		r.Get("/", h.ListVariations)
		r.Group(func(r chi.Router) {
			r.Use(RequireAdmin)
			r.Post("/", h.CreateVariation)
			r.Put("/{variationID}", h.UpdateVariation)
			r.Delete("/{variationID}", h.DeleteVariation)
			r.Post("/{variationID}/images", h.AddVariationImage)
			r.Delete("/{variationID}/images/{imageID}", h.DeleteVariationImage)
		})
	})

	r.Route("/auth/otp", func(r chi.Router) {
		r.Post("/send", h.SendCode)
		r.Post("/verify", h.VerifyCode)
	})

	r.Route("/payments", func(r chi.Router) {
		r.Use(RequireAuth)
		r.Post("/orders", h.CreatePaymentOrder)
		r.Post("/verify", h.VerifyPayment)
	})
}

// Router returns a standalone router with the API mounted under /api.
func (h *Handler) Router() chi.Router {
	r := chi.NewRouter()
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(r.Context(), w, errRouteNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(r.Context(), w, errMethodNotAllowed)
	})
	r.Route("/api", h.Routes)
	return r
}
