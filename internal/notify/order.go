package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"go.uber.org/multierr"

	"github.com/xenking/checkout-core/internal/domain/order"
)

var _ order.Notifier = (*OrderNotifier)(nil)

// Enqueuer accepts tasks without blocking.
type Enqueuer interface {
	Enqueue(t Task) bool
}

// OrderNotifier turns a placed order into a customer confirmation and an
// admin alert.
type OrderNotifier struct {
	queue      Enqueuer
	mailer     Mailer
	events     Publisher
	adminEmail string
}

// NewOrderNotifier creates an OrderNotifier. events may be nil, and an empty
// adminEmail skips the admin email.
func NewOrderNotifier(queue Enqueuer, mailer Mailer, events Publisher, adminEmail string) *OrderNotifier {
	return &OrderNotifier{queue: queue, mailer: mailer, events: events, adminEmail: adminEmail}
}

// OrderPlaced enqueues both side tasks. The order is copied so later
// mutation by the caller does not race with the workers.
func (n *OrderNotifier) OrderPlaced(_ context.Context, o *order.Order) {
	snapshot := *o
	snapshot.Items = append([]order.Item(nil), o.Items...)

	if snapshot.CustomerEmail != "" {
		n.queue.Enqueue(Task{
			Name: "order.confirmation",
			Run: func(ctx context.Context) error {
				return n.mailer.Send(ctx, confirmationMessage(&snapshot))
			},
		})
	}
	n.queue.Enqueue(Task{
		Name: "order.admin_alert",
		Run: func(ctx context.Context) error {
			return n.alert(ctx, &snapshot)
		},
	})
}

func (n *OrderNotifier) alert(ctx context.Context, o *order.Order) error {
	var err error
	if n.events != nil {
		if pubErr := n.events.Publish(ctx, o.ID, EncodeOrderEvent(o)); pubErr != nil {
			err = multierr.Append(err, errors.Wrap(pubErr, "publish order event"))
		}
	}
	if n.adminEmail != "" {
		if mailErr := n.mailer.Send(ctx, adminMessage(o, n.adminEmail)); mailErr != nil {
			err = multierr.Append(err, errors.Wrap(mailErr, "admin email"))
		}
	}
	return err
}

func confirmationMessage(o *order.Order) Message {
	var b strings.Builder
	fmt.Fprintf(&b, "Hi %s,\n\nThank you for your order %s.\n\n", displayName(o), o.ID)
	writeItems(&b, o)
	if !o.DiscountAmount.IsZero() {
		fmt.Fprintf(&b, "Discount: %s\n", o.DiscountAmount.StringFixed(2))
	}
	fmt.Fprintf(&b, "Total: %s\nPayment: %s\n\nShipping to:\n%s\n", o.TotalPrice.StringFixed(2), o.PaymentMethod, address(o))
	return Message{
		To:      []string{o.CustomerEmail},
		Subject: "Order confirmation " + o.ID,
		Body:    b.String(),
	}
}

func adminMessage(o *order.Order, to string) Message {
	var b strings.Builder
	fmt.Fprintf(&b, "New %s order %s\n\nCustomer: %s <%s> %s\n", o.Channel, o.ID, displayName(o), o.CustomerEmail, o.Phone)
	writeItems(&b, o)
	if o.CouponCode != nil {
		fmt.Fprintf(&b, "Coupon: %s (-%s)\n", *o.CouponCode, o.DiscountAmount.StringFixed(2))
	}
	fmt.Fprintf(&b, "Total: %s\nPayment: %s\nAddress: %s\n", o.TotalPrice.StringFixed(2), o.PaymentMethod, address(o))
	return Message{
		To:      []string{to},
		Subject: fmt.Sprintf("New order %s (%s)", o.ID, o.TotalPrice.StringFixed(2)),
		Body:    b.String(),
	}
}

func writeItems(b *strings.Builder, o *order.Order) {
	for _, it := range o.Items {
		fmt.Fprintf(b, "  %d x %s @ %s\n", it.Quantity, it.Name, it.UnitPrice.StringFixed(2))
	}
}

func displayName(o *order.Order) string {
	if o.CustomerName != "" {
		return o.CustomerName
	}
	return "customer"
}

func address(o *order.Order) string {
	parts := []string{o.ShippingAddress}
	if o.City != "" {
		parts = append(parts, o.City)
	}
	if o.Pincode != "" {
		parts = append(parts, o.Pincode)
	}
	return strings.Join(parts, ", ")
}

// EncodeOrderEvent renders the order.placed event payload.
func EncodeOrderEvent(o *order.Order) []byte {
	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("type", func(e *jx.Encoder) { e.Str("order.placed") })
		e.Field("order_id", func(e *jx.Encoder) { e.Str(o.ID) })
		e.Field("channel", func(e *jx.Encoder) { e.Str(string(o.Channel)) })
		e.Field("user_id", func(e *jx.Encoder) {
			if o.UserID == nil {
				e.Null()
				return
			}
			e.Str(*o.UserID)
		})
		e.Field("customer_email", func(e *jx.Encoder) { e.Str(o.CustomerEmail) })
		e.Field("total_price", func(e *jx.Encoder) { e.Str(o.TotalPrice.StringFixed(2)) })
		e.Field("discount_amount", func(e *jx.Encoder) { e.Str(o.DiscountAmount.StringFixed(2)) })
		e.Field("coupon_code", func(e *jx.Encoder) {
			if o.CouponCode == nil {
				e.Null()
				return
			}
			e.Str(*o.CouponCode)
		})
		e.Field("items", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, it := range o.Items {
					e.Obj(func(e *jx.Encoder) {
						e.Field("name", func(e *jx.Encoder) { e.Str(it.Name) })
						e.Field("quantity", func(e *jx.Encoder) { e.Int(it.Quantity) })
						e.Field("unit_price", func(e *jx.Encoder) { e.Str(it.UnitPrice.StringFixed(2)) })
					})
				}
			})
		})
		e.Field("created_at", func(e *jx.Encoder) { e.Str(o.CreatedAt.UTC().Format(time.RFC3339)) })
	})
	return e.Bytes()
}
