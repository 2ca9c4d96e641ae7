package variation

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Defaults applied by Create when the request leaves a field empty.
const (
	DefaultType  = "Size"
	DefaultStock = 100
)

var (
	// ErrNotFound is returned when a variation does not exist.
	ErrNotFound = errors.New("variation not found")
	// ErrImageNotFound is returned when a variation image does not exist.
	ErrImageNotFound = errors.New("variation image not found")
	// ErrDuplicate is returned when (product, type, value) is already taken.
	ErrDuplicate = errors.New("variation already exists for product")
)

// Variation is a purchasable variant of a product, e.g. Size = M.
type Variation struct {
	ID              string
	ProductID       string
	Type            string
	Value           string
	PriceAdjustment decimal.Decimal
	StockQuantity   int
	Images          []Image
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Label renders the variation for line-item display, e.g. "Size: M".
func (v *Variation) Label() string {
	return fmt.Sprintf("%s: %s", v.Type, v.Value)
}

// Image is a picture attached to a variation. DisplayOrder is gap-tolerant
// and never reindexed.
type Image struct {
	ID           string
	VariationID  string
	URL          string
	DisplayOrder int
	CreatedAt    time.Time
}

// Repository provides persistence of variations and their images.
type Repository interface {
	// ListByProduct returns variations with their images, images ordered by
	// display order then insertion.
	ListByProduct(ctx context.Context, productID string) ([]Variation, error)
	Get(ctx context.Context, id string) (*Variation, error)
	Create(ctx context.Context, v *Variation) error
	Update(ctx context.Context, v *Variation) error
	// Delete removes the variation and its image rows, returning the removed
	// images so their backing files can be cleaned up.
	Delete(ctx context.Context, id string) ([]Image, error)
	// AddImage stores img at max(display_order)+1 for its variation and fills
	// in the assigned ID, order and timestamp.
	AddImage(ctx context.Context, img *Image) error
	// DeleteImage removes one image of the given variation.
	DeleteImage(ctx context.Context, variationID, imageID string) (*Image, error)
}

// FileRemover deletes the backing file of an image.
type FileRemover interface {
	Remove(ctx context.Context, url string) error
}
