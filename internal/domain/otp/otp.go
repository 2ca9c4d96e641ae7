// Package otp issues and verifies short-lived numeric codes sent to a phone.
package otp

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"go.uber.org/zap"
)

// Verification limits.
const (
	CodeLength  = 6
	CodeTTL     = 5 * time.Minute
	MaxAttempts = 3
)

var (
	// ErrCodeExpired is returned when no live code exists for the phone.
	ErrCodeExpired = errors.New("code expired or not requested")
	// ErrCodeMismatch is returned for a wrong code with attempts remaining.
	ErrCodeMismatch = errors.New("invalid code")
	// ErrTooManyAttempts is returned when the attempt budget is spent. The
	// stored code is discarded.
	ErrTooManyAttempts = errors.New("too many attempts")
	// ErrNoEntry is returned by a Store when the key is absent or expired.
	ErrNoEntry = errors.New("otp entry not found")
)

// Entry is a pending code for one phone.
type Entry struct {
	Code      string    `json:"code"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Attempts  int       `json:"attempts"`
}

// Store keeps pending entries keyed by normalized phone.
type Store interface {
	Get(ctx context.Context, key string) (*Entry, error)
	Set(ctx context.Context, key string, e *Entry, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	// IncrAttempts atomically increments the attempt counter of a live entry,
	// keeping its expiry, and returns the new count. Returns ErrNoEntry when
	// the key is absent or expired.
	IncrAttempts(ctx context.Context, key string) (int, error)
}

// Sender delivers a code to a phone.
type Sender interface {
	SendCode(ctx context.Context, phone, code string) error
}

// Verifier issues and checks codes.
type Verifier struct {
	store  Store
	sender Sender
	now    func() time.Time
	code   func() (string, error)
}

// NewVerifier creates a Verifier over store, delivering codes with sender.
func NewVerifier(store Store, sender Sender) *Verifier {
	return &Verifier{store: store, sender: sender, now: time.Now, code: randomCode}
}

// NormalizePhone keeps digits and a leading plus sign.
func NormalizePhone(raw string) string {
	raw = strings.TrimSpace(raw)
	var b strings.Builder
	for i, r := range raw {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' && i == 0:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func validatePhone(phone string) error {
	digits := strings.TrimPrefix(phone, "+")
	if len(digits) < 7 || len(digits) > 15 {
		return validation.Errors{"phone": errors.New("must contain 7 to 15 digits")}
	}
	return nil
}

// Issue generates a fresh code for phone, replacing any pending one, and
// sends it. It returns the normalized phone.
func (v *Verifier) Issue(ctx context.Context, phone string) (string, error) {
	phone = NormalizePhone(phone)
	if err := validatePhone(phone); err != nil {
		return "", err
	}

	code, err := v.code()
	if err != nil {
		return "", errors.Wrap(err, "generate code")
	}
	now := v.now()
	e := &Entry{Code: code, CreatedAt: now, ExpiresAt: now.Add(CodeTTL)}
	if err := v.store.Set(ctx, phone, e, CodeTTL); err != nil {
		return "", errors.Wrap(err, "store code")
	}
	if err := v.sender.SendCode(ctx, phone, code); err != nil {
		return "", errors.Wrap(err, "send code")
	}
	return phone, nil
}

// Verify checks code for phone. Every call spends one attempt before the
// code is compared, so at most MaxAttempts guesses are ever evaluated per
// issued code, however many arrive concurrently. A successful check
// consumes the code.
func (v *Verifier) Verify(ctx context.Context, phone, code string) (string, error) {
	phone = NormalizePhone(phone)
	if err := validatePhone(phone); err != nil {
		return "", err
	}

	e, err := v.store.Get(ctx, phone)
	if errors.Is(err, ErrNoEntry) {
		return "", ErrCodeExpired
	}
	if err != nil {
		return "", errors.Wrap(err, "load code")
	}

	if !v.now().Before(e.ExpiresAt) {
		v.discard(ctx, phone, "expired")
		return "", ErrCodeExpired
	}

	attempts, err := v.store.IncrAttempts(ctx, phone)
	if errors.Is(err, ErrNoEntry) {
		return "", ErrCodeExpired
	}
	if err != nil {
		return "", errors.Wrap(err, "count attempt")
	}
	if attempts > MaxAttempts {
		v.discard(ctx, phone, "attempts exhausted")
		return "", ErrTooManyAttempts
	}

	if subtle.ConstantTimeCompare([]byte(strings.TrimSpace(code)), []byte(e.Code)) == 1 {
		if err := v.store.Delete(ctx, phone); err != nil {
			return "", errors.Wrap(err, "consume code")
		}
		return phone, nil
	}

	if attempts == MaxAttempts {
		v.discard(ctx, phone, "attempts exhausted")
		return "", ErrTooManyAttempts
	}
	return "", ErrCodeMismatch
}

// discard drops a dead entry. Failures are logged; the entry expires anyway.
func (v *Verifier) discard(ctx context.Context, phone, reason string) {
	if err := v.store.Delete(ctx, phone); err != nil {
		zctx.From(ctx).Warn("Discard one-time code failed",
			zap.String("reason", reason),
			zap.Error(err),
		)
	}
}

func randomCode() (string, error) {
	limit := big.NewInt(1_000_000)
	n, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", CodeLength, n.Int64()), nil
}
