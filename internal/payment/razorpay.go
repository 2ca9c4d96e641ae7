package payment

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/trace"
)

// DefaultTimeout bounds every gateway call. Calls are not retried.
const DefaultTimeout = 10 * time.Second

var _ Gateway = (*RazorpayClient)(nil)

// RazorpayConfig holds gateway credentials.
type RazorpayConfig struct {
	BaseURL   string
	KeyID     string
	KeySecret string
	Currency  string
}

// RazorpayClient is a Gateway backed by the Razorpay orders API.
type RazorpayClient struct {
	cfg    RazorpayConfig
	client *http.Client
}

// NewRazorpayClient creates a client with an instrumented transport.
func NewRazorpayClient(cfg RazorpayConfig, tp trace.TracerProvider) *RazorpayClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.razorpay.com"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Currency == "" {
		cfg.Currency = "INR"
	}
	return &RazorpayClient{
		cfg: cfg,
		client: &http.Client{
			Timeout:   DefaultTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport, otelhttp.WithTracerProvider(tp)),
		},
	}
}

// CreateOrder registers amount with the gateway.
func (c *RazorpayClient) CreateOrder(ctx context.Context, amount decimal.Decimal, receipt string) (*GatewayOrder, error) {
	if !amount.IsPositive() {
		return nil, errors.New("amount must be positive")
	}

	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("amount", func(e *jx.Encoder) { e.Int64(ToMinorUnits(amount)) })
		e.Field("currency", func(e *jx.Encoder) { e.Str(c.cfg.Currency) })
		if receipt != "" {
			e.Field("receipt", func(e *jx.Encoder) { e.Str(receipt) })
		}
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/v1/orders", bytes.NewReader(e.Bytes()))
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	req.SetBasicAuth(c.cfg.KeyID, c.cfg.KeySecret)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUpstream, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %w", ErrUpstream, err)
	}
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("%w: status %d: %s", ErrUpstream, resp.StatusCode, gatewayMessage(body))
	}

	o, err := decodeOrder(body)
	if err != nil {
		return nil, fmt.Errorf("%w: decode order: %w", ErrUpstream, err)
	}
	return o, nil
}

// VerifySignature checks a checkout callback signature with the key secret.
func (c *RazorpayClient) VerifySignature(orderID, paymentID, signature string) bool {
	return VerifySignature(c.cfg.KeySecret, orderID, paymentID, signature)
}

func decodeOrder(body []byte) (*GatewayOrder, error) {
	var o GatewayOrder
	if err := jx.DecodeBytes(body).Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "id":
			o.ID, err = d.Str()
		case "amount":
			o.Amount, err = d.Int64()
		case "currency":
			o.Currency, err = d.Str()
		case "receipt":
			if d.Next() == jx.Null {
				return d.Null()
			}
			o.Receipt, err = d.Str()
		case "status":
			o.Status, err = d.Str()
		default:
			err = d.Skip()
		}
		return err
	}); err != nil {
		return nil, err
	}
	if o.ID == "" {
		return nil, errors.New("missing order id")
	}
	return &o, nil
}

// gatewayMessage extracts error.description from an error body.
func gatewayMessage(body []byte) string {
	msg := ""
	_ = jx.DecodeBytes(body).Obj(func(d *jx.Decoder, key string) error {
		if key != "error" || d.Next() != jx.Object {
			return d.Skip()
		}
		return d.Obj(func(d *jx.Decoder, key string) error {
			if key == "description" && d.Next() == jx.String {
				s, err := d.Str()
				msg = s
				return err
			}
			return d.Skip()
		})
	})
	if msg == "" {
		msg = http.StatusText(http.StatusBadGateway)
	}
	return msg
}
