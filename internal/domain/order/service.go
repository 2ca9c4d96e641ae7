package order

import (
	"context"
	"strconv"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/xenking/checkout-core/internal/domain/auth"
	"github.com/xenking/checkout-core/internal/domain/coupon"
	"github.com/xenking/checkout-core/internal/domain/variation"
)

// Coupons validates and redeems coupon codes.
type Coupons interface {
	Validate(ctx context.Context, code string, orderTotal decimal.Decimal) (*coupon.Quote, error)
	Redeem(ctx context.Context, req coupon.RedeemRequest) (*coupon.Usage, error)
}

// Variations resolves the pricing context of a variation.
type Variations interface {
	Resolve(ctx context.Context, id string) (*variation.Resolved, error)
}

// Notifier is told about placed orders after commit. It must not block.
type Notifier interface {
	OrderPlaced(ctx context.Context, o *Order)
}

// Service encapsulates order intake and administration.
type Service struct {
	tx         Transactor
	orders     Repository
	coupons    Coupons
	variations Variations
	notifier   Notifier
	placed     metric.Int64Counter
}

// NewService creates an order Service with the required domain dependencies.
func NewService(
	tx Transactor,
	orders Repository,
	coupons Coupons,
	variations Variations,
	notifier Notifier,
	meter metric.Meter,
) (*Service, error) {
	placed, err := meter.Int64Counter("checkout.orders.placed",
		metric.WithDescription("Orders accepted by channel"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "orders counter")
	}
	return &Service{
		tx:         tx,
		orders:     orders,
		coupons:    coupons,
		variations: variations,
		notifier:   notifier,
		placed:     placed,
	}, nil
}

// Submit validates req, routes it by identity, applies an optional coupon
// and stores the order. A nil identity places a guest order.
func (s *Service) Submit(ctx context.Context, req SubmitRequest, id *auth.Identity) (*Order, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	o := &Order{
		ID:              uuid.New().String(),
		Phone:           strings.TrimSpace(req.Phone),
		TotalPrice:      req.TotalPrice.Round(2),
		ShippingAddress: strings.TrimSpace(req.ShippingAddress),
		City:            strings.TrimSpace(req.City),
		Pincode:         strings.TrimSpace(req.Pincode),
		PaymentMethod:   strings.TrimSpace(req.PaymentMethod),
		Status:          StatusPending,
	}
	route(o, req, id)

	items, err := s.buildItems(ctx, o.ID, req.Items)
	if err != nil {
		return nil, err
	}
	o.Items = items

	var quote *coupon.Quote
	if code := coupon.NormalizeCode(req.CouponCode); code != "" {
		quote, err = s.coupons.Validate(ctx, code, o.TotalPrice)
		if err != nil {
			return nil, err
		}
		o.CouponCode = &quote.Coupon.Code
		o.DiscountAmount = quote.DiscountAmount
		o.TotalPrice = quote.FinalTotal
	}

	if err := s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.orders.Create(ctx, o); err != nil {
			return errors.Wrap(err, "create order")
		}
		if quote == nil {
			return nil
		}
		_, err := s.coupons.Redeem(ctx, coupon.RedeemRequest{
			CouponID:       quote.Coupon.ID,
			OrderID:        o.ID,
			UserID:         o.UserID,
			DiscountAmount: quote.DiscountAmount,
		})
		return err
	}); err != nil {
		return nil, err
	}

	s.placed.Add(ctx, 1, metric.WithAttributes(attribute.String("channel", string(o.Channel))))
	zctx.From(ctx).Info("Order placed",
		zap.String("order_id", o.ID),
		zap.String("channel", string(o.Channel)),
		zap.Stringer("total_price", o.TotalPrice),
		zap.Int("items", len(o.Items)),
	)
	if s.notifier != nil {
		s.notifier.OrderPlaced(ctx, o)
	}
	return o, nil
}

// route fills the channel and customer snapshot from the identity.
func route(o *Order, req SubmitRequest, id *auth.Identity) {
	if id != nil {
		userID := id.ID
		o.UserID = &userID
		o.Channel = ChannelMember
		o.CustomerName = firstNonEmpty(req.FullName, id.Name)
		o.CustomerEmail = firstNonEmpty(req.Email, id.Email)
		if o.Phone == "" {
			o.Phone = id.Phone
		}
		return
	}
	o.Channel = ChannelGuest
	o.CustomerName = firstNonEmpty(req.GuestName, req.FullName)
	o.CustomerEmail = firstNonEmpty(req.GuestEmail, req.Email)
}

func (s *Service) buildItems(ctx context.Context, orderID string, reqs []ItemRequest) ([]Item, error) {
	items := make([]Item, 0, len(reqs))
	for i, r := range reqs {
		it := Item{
			ID:        uuid.New().String(),
			OrderID:   orderID,
			Name:      strings.TrimSpace(r.Name),
			Quantity:  r.Quantity,
			UnitPrice: r.Price.Round(2),
		}
		if pid := strings.TrimSpace(r.ProductID); pid != "" {
			it.ProductID = &pid
		}

		if vid := strings.TrimSpace(r.VariationID); vid != "" {
			res, err := s.variations.Resolve(ctx, vid)
			if errors.Is(err, variation.ErrNotFound) {
				return nil, validation.Errors{"items": validation.Errors{
					strconv.Itoa(i): validation.Errors{"variation_id": errors.New("unknown variation")},
				}}
			}
			if err != nil {
				return nil, errors.Wrap(err, "resolve variation")
			}
			it.VariationID = &vid
			if it.ProductID == nil {
				productID := res.Variation.ProductID
				it.ProductID = &productID
			}
			if it.Name == "" {
				it.Name = res.Product.Name + " (" + res.Variation.Label() + ")"
			}
		}
		items = append(items, it)
	}
	return items, nil
}

// ListForUser returns the member orders of userID.
func (s *Service) ListForUser(ctx context.Context, userID string) ([]Order, error) {
	orders, err := s.orders.ListByUser(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "list user orders")
	}
	return orders, nil
}

// ListAll returns orders across both channels.
func (s *Service) ListAll(ctx context.Context, f ListFilter) ([]Order, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, validation.Errors{"status": errors.Errorf("unknown status %q", f.Status)}
	}
	if f.Channel != "" && f.Channel != ChannelMember && f.Channel != ChannelGuest {
		return nil, validation.Errors{"channel": errors.Errorf("unknown channel %q", f.Channel)}
	}
	orders, err := s.orders.ListAll(ctx, f)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	return orders, nil
}

// Get returns an order. Non-admin callers may only read their own orders.
func (s *Service) Get(ctx context.Context, orderID string, caller *auth.Identity) (*Order, error) {
	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if caller.IsAdmin() {
		return o, nil
	}
	if caller == nil || o.UserID == nil || *o.UserID != caller.ID {
		return nil, ErrForbidden
	}
	return o, nil
}

// UpdateStatus applies a status transition.
func (s *Service) UpdateStatus(ctx context.Context, orderID string, next Status) (*Order, error) {
	if !next.Valid() {
		return nil, validation.Errors{"status": errors.Errorf("unknown status %q", next)}
	}
	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !o.Status.CanTransition(next) {
		return nil, &InvalidTransitionError{From: o.Status, To: next}
	}

	updated, err := s.orders.UpdateStatus(ctx, orderID, o.Status, next)
	if err != nil {
		return nil, err
	}
	zctx.From(ctx).Info("Order status changed",
		zap.String("order_id", orderID),
		zap.String("from", string(o.Status)),
		zap.String("to", string(next)),
	)
	return updated, nil
}

// UpdateDetails edits the delivery details of an order.
func (s *Service) UpdateDetails(ctx context.Context, orderID string, p DetailsPatch) (*Order, error) {
	if p.Empty() {
		return nil, validation.Errors{"body": errors.New("no updatable field supplied")}
	}
	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := p.ApplyTo(o); err != nil {
		return nil, err
	}
	if err := s.orders.UpdateDetails(ctx, o); err != nil {
		return nil, err
	}
	return o, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
