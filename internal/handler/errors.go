package handler

import (
	"context"
	"net/http"
	"sort"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"go.uber.org/zap"

	"github.com/xenking/checkout-core/internal/domain/auth"
	"github.com/xenking/checkout-core/internal/domain/coupon"
	"github.com/xenking/checkout-core/internal/domain/order"
	"github.com/xenking/checkout-core/internal/domain/otp"
	"github.com/xenking/checkout-core/internal/domain/product"
	"github.com/xenking/checkout-core/internal/domain/variation"
	"github.com/xenking/checkout-core/internal/payment"
)

var (
	errMalformed        = errors.New("malformed JSON body")
	errRouteNotFound    = errors.New("route not found")
	errMethodNotAllowed = errors.New("method not allowed")
	errPaymentMismatch  = errors.New("payment signature mismatch")
)

// apiError is the resolved HTTP form of an error.
type apiError struct {
	status  int
	kind    string
	message string
	extra   func(e *jx.Encoder)
}

// classify maps domain errors onto HTTP statuses. Unknown errors become 500.
func classify(err error) apiError {
	var (
		verr       validation.Errors
		minErr     *coupon.MinOrderNotMetError
		transition *order.InvalidTransitionError
	)
	switch {
	case errors.As(err, &verr):
		return apiError{
			status:  http.StatusBadRequest,
			kind:    "ValidationError",
			message: verr.Error(),
			extra:   func(e *jx.Encoder) { encodeFieldErrors(e, verr) },
		}
	case errors.Is(err, errMalformed):
		return apiError{status: http.StatusBadRequest, kind: "BadRequest", message: err.Error()}
	case errors.As(err, &minErr):
		return apiError{
			status:  http.StatusBadRequest,
			kind:    "MinOrderNotMet",
			message: minErr.Error(),
			extra: func(e *jx.Encoder) {
				e.Field("minOrderValue", func(e *jx.Encoder) { encodeMoney(e, minErr.MinOrderValue) })
			},
		}
	case errors.Is(err, coupon.ErrNotFoundOrExpired):
		return apiError{status: http.StatusNotFound, kind: "CouponNotFound", message: "Invalid or expired coupon code"}
	case errors.Is(err, coupon.ErrUsageExceeded):
		return apiError{status: http.StatusBadRequest, kind: "CouponUsageExceeded", message: "Coupon usage limit exceeded"}
	case errors.As(err, &transition):
		return apiError{status: http.StatusConflict, kind: "InvalidTransition", message: transition.Error()}
	case errors.Is(err, coupon.ErrCodeConflict), errors.Is(err, variation.ErrDuplicate):
		return apiError{status: http.StatusConflict, kind: "Conflict", message: err.Error()}
	case errors.Is(err, order.ErrNotFound),
		errors.Is(err, coupon.ErrNotFound),
		errors.Is(err, variation.ErrNotFound),
		errors.Is(err, variation.ErrImageNotFound),
		errors.Is(err, product.ErrNotFound),
		errors.Is(err, errRouteNotFound):
		return apiError{status: http.StatusNotFound, kind: "NotFound", message: rootMessage(err)}
	case errors.Is(err, errMethodNotAllowed):
		return apiError{status: http.StatusMethodNotAllowed, kind: "MethodNotAllowed", message: err.Error()}
	case errors.Is(err, auth.ErrUnauthenticated), errors.Is(err, auth.ErrInvalidToken):
		return apiError{status: http.StatusUnauthorized, kind: "Unauthorized", message: "authentication required"}
	case errors.Is(err, auth.ErrForbidden), errors.Is(err, order.ErrForbidden):
		return apiError{status: http.StatusForbidden, kind: "Forbidden", message: "access denied"}
	case errors.Is(err, otp.ErrCodeExpired):
		return apiError{status: http.StatusBadRequest, kind: "CodeExpired", message: "code expired or not requested"}
	case errors.Is(err, otp.ErrCodeMismatch):
		return apiError{status: http.StatusBadRequest, kind: "CodeMismatch", message: "invalid code"}
	case errors.Is(err, otp.ErrTooManyAttempts):
		return apiError{status: http.StatusTooManyRequests, kind: "TooManyAttempts", message: "too many attempts, request a new code"}
	case errors.Is(err, errPaymentMismatch):
		return apiError{status: http.StatusBadRequest, kind: "PaymentVerificationFailed", message: err.Error()}
	case errors.Is(err, payment.ErrUpstream):
		return apiError{status: http.StatusBadGateway, kind: "UpstreamError", message: "payment gateway unavailable"}
	default:
		return apiError{status: http.StatusInternalServerError, kind: "Internal", message: "internal server error"}
	}
}

// rootMessage returns the innermost error text, hiding wrapping context.
func rootMessage(err error) string {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err.Error()
		}
		err = next
	}
}

// writeError writes the {"code","error","message"} body for err. Server
// errors are logged with the full chain.
func writeError(ctx context.Context, w http.ResponseWriter, err error) {
	ae := classify(err)
	if ae.status >= http.StatusInternalServerError {
		zctx.From(ctx).Error("Request failed", zap.Error(err))
	} else {
		zctx.From(ctx).Debug("Request rejected", zap.Int("status", ae.status), zap.Error(err))
	}

	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("code", func(e *jx.Encoder) { e.Int(ae.status) })
		e.Field("error", func(e *jx.Encoder) { e.Str(ae.kind) })
		e.Field("message", func(e *jx.Encoder) { e.Str(ae.message) })
		if ae.extra != nil {
			ae.extra(e)
		}
	})
	writeRaw(w, ae.status, e.Bytes())
}

func encodeFieldErrors(e *jx.Encoder, verr validation.Errors) {
	names := make([]string, 0, len(verr))
	for name := range verr {
		names = append(names, name)
	}
	sort.Strings(names)
	e.Field("fields", func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			for _, name := range names {
				e.Field(name, func(e *jx.Encoder) { e.Str(verr[name].Error()) })
			}
		})
	})
}
