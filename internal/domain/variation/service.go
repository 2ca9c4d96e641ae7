package variation

import (
	"context"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/checkout-core/internal/domain/product"
	"github.com/xenking/checkout-core/pkg/patch"
)

// CreateRequest holds the input for creating a variation. Empty Type, nil
// PriceAdjustment and nil StockQuantity take the package defaults.
type CreateRequest struct {
	Type            string           `json:"variation_type"`
	Value           string           `json:"variation_value"`
	PriceAdjustment *decimal.Decimal `json:"price_adjustment"`
	StockQuantity   *int             `json:"stock_quantity"`
}

// Validate checks the request after defaults are applied.
func (r CreateRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Type, validation.Required, validation.Length(1, 50)),
		validation.Field(&r.Value, validation.Required.Error("variation_value is required"), validation.Length(1, 100)),
		validation.Field(&r.StockQuantity, validation.By(nonNegativeStock)),
	)
}

// Patch is a partial update of a variation. Type and Value reject null;
// a null PriceAdjustment or StockQuantity resets it to zero.
type Patch struct {
	Type            patch.Field[string]
	Value           patch.Field[string]
	PriceAdjustment patch.Field[decimal.Decimal]
	StockQuantity   patch.Field[int]
}

// Empty reports whether no recognized field was supplied.
func (p Patch) Empty() bool {
	return !p.Type.Present() && !p.Value.Present() && !p.PriceAdjustment.Present() && !p.StockQuantity.Present()
}

// Resolved is the pricing context of a variation for a line item.
type Resolved struct {
	Variation *Variation
	Product   *product.Product
	// UnitPrice is the product price plus the variation adjustment, floored at zero.
	UnitPrice decimal.Decimal
}

// Service manages product variations and their images.
type Service struct {
	products product.Repository
	repo     Repository
	files    FileRemover
}

// NewService creates a variation Service.
func NewService(products product.Repository, repo Repository, files FileRemover) *Service {
	return &Service{products: products, repo: repo, files: files}
}

// List returns the variations of a product with their ordered images.
func (s *Service) List(ctx context.Context, productID string) ([]Variation, error) {
	vs, err := s.repo.ListByProduct(ctx, productID)
	if err != nil {
		return nil, errors.Wrap(err, "list variations")
	}
	return vs, nil
}

// Get returns a single variation with its images.
func (s *Service) Get(ctx context.Context, id string) (*Variation, error) {
	return s.repo.Get(ctx, id)
}

// Create adds a variation to an existing product.
func (s *Service) Create(ctx context.Context, productID string, req CreateRequest) (*Variation, error) {
	if _, err := s.products.GetByID(ctx, productID); err != nil {
		return nil, err
	}

	req.Type = strings.TrimSpace(req.Type)
	req.Value = strings.TrimSpace(req.Value)
	if req.Type == "" {
		req.Type = DefaultType
	}
	if req.StockQuantity == nil {
		stock := DefaultStock
		req.StockQuantity = &stock
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	v := &Variation{
		ID:            uuid.New().String(),
		ProductID:     productID,
		Type:          req.Type,
		Value:         req.Value,
		StockQuantity: *req.StockQuantity,
	}
	if req.PriceAdjustment != nil {
		v.PriceAdjustment = req.PriceAdjustment.Round(2)
	}

	if err := s.repo.Create(ctx, v); err != nil {
		if errors.Is(err, ErrDuplicate) {
			return nil, err
		}
		return nil, errors.Wrap(err, "create variation")
	}
	return v, nil
}

// Update merges p into the stored variation.
func (s *Service) Update(ctx context.Context, id string, p Patch) (*Variation, error) {
	if p.Empty() {
		return nil, validation.Errors{"body": errors.New("no updatable field supplied")}
	}
	if p.Type.IsNull() || p.Value.IsNull() {
		return nil, validation.Errors{"variation": errors.New("variation_type and variation_value cannot be null")}
	}

	v, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if t, ok := p.Type.Get(); ok {
		v.Type = strings.TrimSpace(t)
	}
	if val, ok := p.Value.Get(); ok {
		v.Value = strings.TrimSpace(val)
	}
	v.PriceAdjustment = p.PriceAdjustment.Apply(v.PriceAdjustment).Round(2)
	v.StockQuantity = p.StockQuantity.Apply(v.StockQuantity)

	stock := v.StockQuantity
	if err := (CreateRequest{Type: v.Type, Value: v.Value, StockQuantity: &stock}).Validate(); err != nil {
		return nil, err
	}

	if err := s.repo.Update(ctx, v); err != nil {
		if errors.Is(err, ErrDuplicate) || errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, errors.Wrap(err, "update variation")
	}
	return v, nil
}

// Delete removes a variation and its images. Backing files are removed
// afterwards on a best-effort basis; failures are logged and do not undo
// the delete.
func (s *Service) Delete(ctx context.Context, id string) error {
	images, err := s.repo.Delete(ctx, id)
	if err != nil {
		return err
	}
	for _, img := range images {
		s.removeFile(ctx, img)
	}
	return nil
}

// AddImage appends an image after the current last one.
func (s *Service) AddImage(ctx context.Context, variationID, url string) (*Image, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, validation.Errors{"image_url": errors.New("is required")}
	}
	if _, err := s.repo.Get(ctx, variationID); err != nil {
		return nil, err
	}

	img := &Image{
		ID:          uuid.New().String(),
		VariationID: variationID,
		URL:         url,
	}
	if err := s.repo.AddImage(ctx, img); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, errors.Wrap(err, "add variation image")
	}
	return img, nil
}

// DeleteImage removes one image row and then its backing file, best-effort.
func (s *Service) DeleteImage(ctx context.Context, variationID, imageID string) error {
	img, err := s.repo.DeleteImage(ctx, variationID, imageID)
	if err != nil {
		return err
	}
	s.removeFile(ctx, *img)
	return nil
}

// Resolve returns the pricing context of a variation.
func (s *Service) Resolve(ctx context.Context, id string) (*Resolved, error) {
	v, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	p, err := s.products.GetByID(ctx, v.ProductID)
	if err != nil {
		return nil, errors.Wrapf(err, "product of variation %s", id)
	}

	price := p.Price.Add(v.PriceAdjustment)
	if price.IsNegative() {
		price = decimal.Zero
	}
	return &Resolved{Variation: v, Product: p, UnitPrice: price.Round(2)}, nil
}

func (s *Service) removeFile(ctx context.Context, img Image) {
	if s.files == nil || img.URL == "" {
		return
	}
	if err := s.files.Remove(ctx, img.URL); err != nil {
		zctx.From(ctx).Warn("Variation image file cleanup failed",
			zap.String("image_id", img.ID),
			zap.String("url", img.URL),
			zap.Error(err),
		)
	}
}

func nonNegativeStock(v any) error {
	n, _ := v.(*int)
	if n != nil && *n < 0 {
		return errors.New("stock_quantity must not be negative")
	}
	return nil
}
