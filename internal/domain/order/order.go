package order

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Channel records how an order was placed.
type Channel string

const (
	// ChannelMember orders are linked to an authenticated user.
	ChannelMember Channel = "member"
	// ChannelGuest orders keep only a name and email snapshot.
	ChannelGuest Channel = "guest"
)

// Status is the fulfilment state of an order.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusShipped   Status = "shipped"
	StatusDelivered Status = "delivered"
	StatusCancelled Status = "cancelled"
)

// transitions lists the allowed next states of each status. Terminal states
// have no entry.
var transitions = map[Status][]Status{
	StatusPending:   {StatusConfirmed, StatusCancelled},
	StatusConfirmed: {StatusShipped, StatusCancelled},
	StatusShipped:   {StatusDelivered, StatusCancelled},
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusShipped, StatusDelivered, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no transition leaves s.
func (s Status) Terminal() bool {
	return len(transitions[s]) == 0
}

// CanTransition reports whether s may move to next.
func (s Status) CanTransition(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

var (
	// ErrNotFound is returned when an order does not exist.
	ErrNotFound = errors.New("order not found")
	// ErrForbidden is returned when a caller reads an order it does not own.
	ErrForbidden = errors.New("order belongs to another user")
)

// InvalidTransitionError is returned for a status change the transition
// table does not allow.
type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot move order from %s to %s", e.From, e.To)
}

// Order is a placed order with its line items.
type Order struct {
	ID              string
	UserID          *string
	Channel         Channel
	CustomerName    string
	CustomerEmail   string
	Phone           string
	TotalPrice      decimal.Decimal
	DiscountAmount  decimal.Decimal
	CouponCode      *string
	ShippingAddress string
	City            string
	Pincode         string
	PaymentMethod   string
	Status          Status
	Items           []Item
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Item is a line item snapshot taken at purchase time.
type Item struct {
	ID          string
	OrderID     string
	ProductID   *string
	VariationID *string
	Name        string
	Quantity    int
	UnitPrice   decimal.Decimal
}

// Repository defines persistence operations for orders.
type Repository interface {
	// Create stores the header and items.
	Create(ctx context.Context, o *Order) error
	Get(ctx context.Context, id string) (*Order, error)
	// ListByUser returns member orders of userID, newest first.
	ListByUser(ctx context.Context, userID string) ([]Order, error)
	// ListAll returns every order, newest first, optionally filtered.
	ListAll(ctx context.Context, f ListFilter) ([]Order, error)
	// UpdateStatus moves the order to next if it is still in from. It returns
	// the stored order, or an *InvalidTransitionError carrying the current
	// status when the row changed concurrently.
	UpdateStatus(ctx context.Context, id string, from, next Status) (*Order, error)
	UpdateDetails(ctx context.Context, o *Order) error
}

// ListFilter narrows ListAll. Zero values match everything.
type ListFilter struct {
	Channel Channel
	Status  Status
	Limit   int
}

// Transactor runs fn in a single database transaction.
type Transactor interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}
