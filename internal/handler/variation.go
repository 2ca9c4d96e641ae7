package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"

	"github.com/xenking/checkout-core/internal/domain/variation"
)

// ListVariations handles GET /api/variations/{productID}.
func (h *Handler) ListVariations(w http.ResponseWriter, r *http.Request) {
	vs, err := h.variations.List(r.Context(), chi.URLParam(r, "productID"))
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Arr(func(e *jx.Encoder) {
			for i := range vs {
				encodeVariation(e, &vs[i])
			}
		})
	})
}

// CreateVariation handles POST /api/variations/{productID}.
func (h *Handler) CreateVariation(w http.ResponseWriter, r *http.Request) {
	var req variation.CreateRequest
	if err := decodeObject(r, func(d *jx.Decoder, key string) error {
		switch key {
		case "variation_type":
			return decodeValue(d, key, &req.Type, decodeString)
		case "variation_value":
			return decodeValue(d, key, &req.Value, decodeString)
		case "price_adjustment":
			return decodeValue(d, key, &req.PriceAdjustment, decodeDecimalPtr)
		case "stock_quantity":
			return decodeValue(d, key, &req.StockQuantity, decodeOptInt)
		default:
			return d.Skip()
		}
	}); err != nil {
		writeError(r.Context(), w, err)
		return
	}
	v, err := h.variations.Create(r.Context(), chi.URLParam(r, "productID"), req)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { encodeVariation(e, v) })
}

// UpdateVariation handles PUT /api/variations/{productID}/{variationID}.
func (h *Handler) UpdateVariation(w http.ResponseWriter, r *http.Request) {
	var p variation.Patch
	if err := decodeObject(r, func(d *jx.Decoder, key string) error {
		switch key {
		case "variation_type":
			return decodeField(d, key, &p.Type, (*jx.Decoder).Str)
		case "variation_value":
			return decodeField(d, key, &p.Value, (*jx.Decoder).Str)
		case "price_adjustment":
			return decodeField(d, key, &p.PriceAdjustment, decodeDecimal)
		case "stock_quantity":
			return decodeField(d, key, &p.StockQuantity, (*jx.Decoder).Int)
		default:
			return d.Skip()
		}
	}); err != nil {
		writeError(r.Context(), w, err)
		return
	}
	id, err := h.variationOfProduct(r)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	v, err := h.variations.Update(r.Context(), id, p)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeVariation(e, v) })
}

// DeleteVariation handles DELETE /api/variations/{productID}/{variationID}.
func (h *Handler) DeleteVariation(w http.ResponseWriter, r *http.Request) {
	id, err := h.variationOfProduct(r)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	if err := h.variations.Delete(r.Context(), id); err != nil {
		writeError(r.Context(), w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AddVariationImage handles POST /api/variations/{productID}/{variationID}/images
// with an {"image_url"} body pointing at an uploaded file.
func (h *Handler) AddVariationImage(w http.ResponseWriter, r *http.Request) {
	var url string
	if err := decodeObject(r, func(d *jx.Decoder, key string) error {
		if key == "image_url" {
			return decodeValue(d, key, &url, decodeString)
		}
		return d.Skip()
	}); err != nil {
		writeError(r.Context(), w, err)
		return
	}
	id, err := h.variationOfProduct(r)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	img, err := h.variations.AddImage(r.Context(), id, url)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { encodeImage(e, img) })
}

// DeleteVariationImage handles
// DELETE /api/variations/{productID}/{variationID}/images/{imageID}.
func (h *Handler) DeleteVariationImage(w http.ResponseWriter, r *http.Request) {
	id, err := h.variationOfProduct(r)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	if err := h.variations.DeleteImage(r.Context(), id, chi.URLParam(r, "imageID")); err != nil {
		writeError(r.Context(), w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// variationOfProduct returns the variation id from the path after checking
// it belongs to the product in the path.
func (h *Handler) variationOfProduct(r *http.Request) (string, error) {
	v, err := h.variations.Get(r.Context(), chi.URLParam(r, "variationID"))
	if err != nil {
		return "", err
	}
	if v.ProductID != chi.URLParam(r, "productID") {
		return "", variation.ErrNotFound
	}
	return v.ID, nil
}

func encodeVariation(e *jx.Encoder, v *variation.Variation) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(v.ID) })
		e.Field("product_id", func(e *jx.Encoder) { e.Str(v.ProductID) })
		e.Field("variation_type", func(e *jx.Encoder) { e.Str(v.Type) })
		e.Field("variation_value", func(e *jx.Encoder) { e.Str(v.Value) })
		e.Field("price_adjustment", func(e *jx.Encoder) { encodeMoney(e, v.PriceAdjustment) })
		e.Field("stock_quantity", func(e *jx.Encoder) { e.Int(v.StockQuantity) })
		e.Field("images", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for i := range v.Images {
					encodeImage(e, &v.Images[i])
				}
			})
		})
		e.Field("created_at", func(e *jx.Encoder) { encodeTime(e, v.CreatedAt) })
		e.Field("updated_at", func(e *jx.Encoder) { encodeTime(e, v.UpdatedAt) })
	})
}

func encodeImage(e *jx.Encoder, img *variation.Image) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(img.ID) })
		e.Field("variation_id", func(e *jx.Encoder) { e.Str(img.VariationID) })
		e.Field("image_url", func(e *jx.Encoder) { e.Str(img.URL) })
		e.Field("display_order", func(e *jx.Encoder) { e.Int(img.DisplayOrder) })
		e.Field("created_at", func(e *jx.Encoder) { encodeTime(e, img.CreatedAt) })
	})
}
