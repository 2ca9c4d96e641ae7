package coupon

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/checkout-core/pkg/patch"
)

// memRepo is an in-memory Repository whose Redeem mirrors the conditional
// UPDATE used in Postgres.
type memRepo struct {
	mu      sync.Mutex
	byID    map[string]*Coupon
	usages  []Usage
	findErr error
}

func newMemRepo(coupons ...*Coupon) *memRepo {
	r := &memRepo{byID: make(map[string]*Coupon)}
	for _, c := range coupons {
		r.byID[c.ID] = c
	}
	return r
}

func (m *memRepo) FindByCode(_ context.Context, code string) (*Coupon, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findErr != nil {
		return nil, m.findErr
	}
	for _, c := range m.byID {
		if c.Code == code {
			cp := *c
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memRepo) Get(_ context.Context, id string) (*Coupon, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *memRepo) List(_ context.Context) ([]Coupon, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Coupon, 0, len(m.byID))
	for _, c := range m.byID {
		out = append(out, *c)
	}
	return out, nil
}

func (m *memRepo) Create(_ context.Context, c *Coupon) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.byID {
		if existing.Code == c.Code {
			return ErrCodeConflict
		}
	}
	cp := *c
	m.byID[c.ID] = &cp
	return nil
}

func (m *memRepo) Update(_ context.Context, c *Coupon) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[c.ID]; !ok {
		return ErrNotFound
	}
	cp := *c
	m.byID[c.ID] = &cp
	return nil
}

func (m *memRepo) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[id]; !ok {
		return ErrNotFound
	}
	delete(m.byID, id)
	return nil
}

func (m *memRepo) Redeem(_ context.Context, u *Usage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.byID[u.CouponID]
	if !ok {
		return ErrNotFound
	}
	if c.MaxUses != nil && c.CurrentUses >= *c.MaxUses {
		return ErrUsageExceeded
	}
	c.CurrentUses++
	m.usages = append(m.usages, *u)
	return nil
}

func (m *memRepo) ListUsages(_ context.Context, couponID string) ([]Usage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Usage
	for _, u := range m.usages {
		if u.CouponID == couponID {
			out = append(out, u)
		}
	}
	return out, nil
}

func intPtr(v int) *int { return &v }

func save10() *Coupon {
	return &Coupon{
		ID:            "c-save10",
		Code:          "SAVE10",
		DiscountType:  DiscountPercentage,
		DiscountValue: decimal.NewFromInt(10),
		MinOrderValue: decimal.NewFromInt(500),
		MaxUses:       intPtr(2),
		IsActive:      true,
	}
}

func TestEngine_Validate(t *testing.T) {
	fixedNow := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	past := fixedNow.Add(-time.Hour)
	future := fixedNow.Add(time.Hour)

	tests := []struct {
		name         string
		coupon       *Coupon
		code         string
		total        string
		wantDiscount string
		wantFinal    string
		wantErr      error
		wantMin      string
	}{
		{
			name:         "scenario SAVE10 on 1000",
			coupon:       save10(),
			code:         "save10",
			total:        "1000",
			wantDiscount: "100.00",
			wantFinal:    "900.00",
		},
		{
			name:    "unknown code",
			coupon:  save10(),
			code:    "NOPE",
			total:   "1000",
			wantErr: ErrNotFoundOrExpired,
		},
		{
			name: "inactive collapses to not found",
			coupon: &Coupon{
				ID: "c1", Code: "OFF", DiscountType: DiscountFlat,
				DiscountValue: decimal.NewFromInt(5), IsActive: false,
			},
			code:    "OFF",
			total:   "100",
			wantErr: ErrNotFoundOrExpired,
		},
		{
			name: "expired collapses to not found",
			coupon: &Coupon{
				ID: "c1", Code: "OLD", DiscountType: DiscountFlat,
				DiscountValue: decimal.NewFromInt(5), IsActive: true, ExpiresAt: &past,
			},
			code:    "OLD",
			total:   "100",
			wantErr: ErrNotFoundOrExpired,
		},
		{
			name: "future expiry is valid",
			coupon: &Coupon{
				ID: "c1", Code: "SOON", DiscountType: DiscountFlat,
				DiscountValue: decimal.NewFromInt(5), IsActive: true, ExpiresAt: &future,
			},
			code:         "SOON",
			total:        "100",
			wantDiscount: "5",
			wantFinal:    "95",
		},
		{
			name: "usage exhausted",
			coupon: &Coupon{
				ID: "c1", Code: "LIMIT", DiscountType: DiscountFlat,
				DiscountValue: decimal.NewFromInt(5), IsActive: true,
				MaxUses: intPtr(3), CurrentUses: 3,
			},
			code:    "LIMIT",
			total:   "100",
			wantErr: ErrUsageExceeded,
		},
		{
			name: "unlimited uses",
			coupon: &Coupon{
				ID: "c1", Code: "ANY", DiscountType: DiscountFlat,
				DiscountValue: decimal.NewFromInt(5), IsActive: true, CurrentUses: 9999,
			},
			code:         "ANY",
			total:        "100",
			wantDiscount: "5",
			wantFinal:    "95",
		},
		{
			name:    "below minimum order",
			coupon:  save10(),
			code:    "SAVE10",
			total:   "499.99",
			wantMin: "500",
		},
		{
			name:         "at minimum order",
			coupon:       save10(),
			code:         "SAVE10",
			total:        "500",
			wantDiscount: "50",
			wantFinal:    "450",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewEngine(newMemRepo(tt.coupon))
			e.now = func() time.Time { return fixedNow }

			q, err := e.Validate(context.Background(), tt.code, decimal.RequireFromString(tt.total))

			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, q)
				return
			}
			if tt.wantMin != "" {
				var minErr *MinOrderNotMetError
				require.ErrorAs(t, err, &minErr)
				assert.True(t, decimal.RequireFromString(tt.wantMin).Equal(minErr.MinOrderValue))
				return
			}

			require.NoError(t, err)
			assert.True(t, decimal.RequireFromString(tt.wantDiscount).Equal(q.DiscountAmount),
				"expected discount %s, got %s", tt.wantDiscount, q.DiscountAmount)
			assert.True(t, decimal.RequireFromString(tt.wantFinal).Equal(q.FinalTotal),
				"expected final %s, got %s", tt.wantFinal, q.FinalTotal)
		})
	}
}

func TestEngine_ValidateNegativeTotal(t *testing.T) {
	e := NewEngine(newMemRepo(save10()))

	_, err := e.Validate(context.Background(), "SAVE10", decimal.NewFromInt(-1))

	var verr validation.Errors
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr, "orderTotal")
}

func TestEngine_ValidateLookupError(t *testing.T) {
	repo := newMemRepo()
	repo.findErr = errors.New("connection refused")
	e := NewEngine(repo)

	_, err := e.Validate(context.Background(), "X", decimal.NewFromInt(10))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "lookup coupon")
	assert.NotErrorIs(t, err, ErrNotFoundOrExpired)
}

// Validation is read-only. Once the stored counter reaches max_uses, both a
// fresh validation and a further redemption report ErrUsageExceeded.
func TestEngine_ValidateThenRedeemPastCeiling(t *testing.T) {
	ctx := context.Background()
	repo := newMemRepo(save10())
	e := NewEngine(repo)

	q, err := e.Validate(ctx, "SAVE10", decimal.NewFromInt(1000))
	require.NoError(t, err)

	for i, order := range []string{"o1", "o2"} {
		_, err := e.Redeem(ctx, RedeemRequest{CouponID: q.Coupon.ID, OrderID: order, DiscountAmount: q.DiscountAmount})
		require.NoError(t, err, "redemption %d", i+1)
	}

	c, err := repo.Get(ctx, q.Coupon.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, c.CurrentUses)

	_, err = e.Validate(ctx, "SAVE10", decimal.NewFromInt(1000))
	require.ErrorIs(t, err, ErrUsageExceeded)

	_, err = e.Redeem(ctx, RedeemRequest{CouponID: q.Coupon.ID, OrderID: "o3", DiscountAmount: q.DiscountAmount})
	require.ErrorIs(t, err, ErrUsageExceeded)

	usages, err := e.Usages(ctx, q.Coupon.ID)
	require.NoError(t, err)
	assert.Len(t, usages, 2)
}

func TestEngine_RedeemConcurrent(t *testing.T) {
	ctx := context.Background()
	repo := newMemRepo(save10())
	e := NewEngine(repo)

	const attempts = 10
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		okCount  int
		exceeded int
	)
	for i := range attempts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.Redeem(ctx, RedeemRequest{
				CouponID:       "c-save10",
				OrderID:        string(rune('a' + i)),
				DiscountAmount: decimal.NewFromInt(100),
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				okCount++
			case errors.Is(err, ErrUsageExceeded):
				exceeded++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 2, okCount)
	assert.Equal(t, attempts-2, exceeded)

	c, err := repo.Get(ctx, "c-save10")
	require.NoError(t, err)
	assert.Equal(t, 2, c.CurrentUses)
}

func TestEngine_RedeemValidation(t *testing.T) {
	e := NewEngine(newMemRepo(save10()))

	_, err := e.Redeem(context.Background(), RedeemRequest{CouponID: "c-save10"})

	var verr validation.Errors
	require.ErrorAs(t, err, &verr)
}

func TestEngine_Create(t *testing.T) {
	ctx := context.Background()
	e := NewEngine(newMemRepo())

	c, err := e.Create(ctx, CreateRequest{
		Code:          " summer25 ",
		DiscountType:  DiscountPercentage,
		DiscountValue: decimal.NewFromInt(25),
	})
	require.NoError(t, err)
	assert.Equal(t, "SUMMER25", c.Code)
	assert.True(t, c.IsActive)
	assert.Nil(t, c.MaxUses)
	assert.Nil(t, c.ExpiresAt)
	assert.NotEmpty(t, c.ID)

	_, err = e.Create(ctx, CreateRequest{
		Code:          "SUMMER25",
		DiscountType:  DiscountFlat,
		DiscountValue: decimal.NewFromInt(5),
	})
	require.ErrorIs(t, err, ErrCodeConflict)
}

func TestEngine_CreateValidation(t *testing.T) {
	tests := []struct {
		name  string
		req   CreateRequest
		field string
	}{
		{
			name:  "missing code",
			req:   CreateRequest{DiscountType: DiscountFlat, DiscountValue: decimal.NewFromInt(1)},
			field: "code",
		},
		{
			name:  "unknown type",
			req:   CreateRequest{Code: "ABC", DiscountType: "bogo", DiscountValue: decimal.NewFromInt(1)},
			field: "discount_type",
		},
		{
			name:  "percentage over 100",
			req:   CreateRequest{Code: "ABC", DiscountType: DiscountPercentage, DiscountValue: decimal.NewFromInt(101)},
			field: "discount_value",
		},
		{
			name:  "zero value",
			req:   CreateRequest{Code: "ABC", DiscountType: DiscountFlat},
			field: "discount_value",
		},
		{
			name: "negative minimum",
			req: CreateRequest{
				Code: "ABC", DiscountType: DiscountFlat, DiscountValue: decimal.NewFromInt(1),
				MinOrderValue: decimal.NewFromInt(-1),
			},
			field: "min_order_value",
		},
		{
			name: "zero max uses",
			req: CreateRequest{
				Code: "ABC", DiscountType: DiscountFlat, DiscountValue: decimal.NewFromInt(1),
				MaxUses: intPtr(0),
			},
			field: "max_uses",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewEngine(newMemRepo()).Create(context.Background(), tt.req)

			var verr validation.Errors
			require.ErrorAs(t, err, &verr)
			assert.Contains(t, verr, tt.field)
		})
	}
}

func TestEngine_Update(t *testing.T) {
	ctx := context.Background()
	expires := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)

	t.Run("absent fields keep values", func(t *testing.T) {
		e := NewEngine(newMemRepo(save10()))

		c, err := e.Update(ctx, "c-save10", Patch{IsActive: patch.Value(false)})
		require.NoError(t, err)
		assert.False(t, c.IsActive)
		assert.Equal(t, "SAVE10", c.Code)
		require.NotNil(t, c.MaxUses)
		assert.Equal(t, 2, *c.MaxUses)
		assert.True(t, decimal.NewFromInt(500).Equal(c.MinOrderValue))
	})

	t.Run("null clears max_uses and expires_at", func(t *testing.T) {
		seed := save10()
		seed.ExpiresAt = &expires
		e := NewEngine(newMemRepo(seed))

		c, err := e.Update(ctx, "c-save10", Patch{
			MaxUses:   patch.Nil[int](),
			ExpiresAt: patch.Nil[time.Time](),
		})
		require.NoError(t, err)
		assert.Nil(t, c.MaxUses)
		assert.Nil(t, c.ExpiresAt)
	})

	t.Run("set values", func(t *testing.T) {
		e := NewEngine(newMemRepo(save10()))

		c, err := e.Update(ctx, "c-save10", Patch{
			Code:      patch.Value("save-more"),
			MaxUses:   patch.Value(10),
			ExpiresAt: patch.Value(expires),
		})
		require.NoError(t, err)
		assert.Equal(t, "SAVE-MORE", c.Code)
		require.NotNil(t, c.MaxUses)
		assert.Equal(t, 10, *c.MaxUses)
		require.NotNil(t, c.ExpiresAt)
		assert.True(t, expires.Equal(*c.ExpiresAt))
	})

	t.Run("empty patch rejected", func(t *testing.T) {
		e := NewEngine(newMemRepo(save10()))

		_, err := e.Update(ctx, "c-save10", Patch{})
		var verr validation.Errors
		require.ErrorAs(t, err, &verr)
	})

	t.Run("null on required field rejected", func(t *testing.T) {
		e := NewEngine(newMemRepo(save10()))

		_, err := e.Update(ctx, "c-save10", Patch{DiscountValue: patch.Nil[decimal.Decimal]()})
		var verr validation.Errors
		require.ErrorAs(t, err, &verr)
		assert.Contains(t, verr, "discount_value")
	})

	t.Run("missing coupon", func(t *testing.T) {
		e := NewEngine(newMemRepo())

		_, err := e.Update(ctx, "nope", Patch{IsActive: patch.Value(true)})
		require.ErrorIs(t, err, ErrNotFound)
	})
}

func TestEngine_Delete(t *testing.T) {
	ctx := context.Background()
	e := NewEngine(newMemRepo(save10()))

	require.NoError(t, e.Delete(ctx, "c-save10"))
	require.ErrorIs(t, e.Delete(ctx, "c-save10"), ErrNotFound)

	list, err := e.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}
