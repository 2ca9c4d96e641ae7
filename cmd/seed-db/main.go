package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/checkout-core/internal/domain/coupon"
	"github.com/xenking/checkout-core/internal/domain/variation"
	"github.com/xenking/checkout-core/internal/storage/files"
	"github.com/xenking/checkout-core/internal/storage/postgres"
)

type variationJSON struct {
	Type            string           `json:"variation_type"`
	Value           string           `json:"variation_value"`
	PriceAdjustment *decimal.Decimal `json:"price_adjustment"`
	StockQuantity   *int             `json:"stock_quantity"`
}

type productJSON struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Price      decimal.Decimal `json:"price"`
	Variations []variationJSON `json:"variations"`
}

type seedFile struct {
	Products []productJSON          `json:"products"`
	Coupons  []coupon.CreateRequest `json:"coupons"`
}

func main() {
	var (
		databaseURL string
		seedPath    string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&seedPath, "seed-file", "db/seed/catalog.json", "path to seed JSON file")
	flag.Parse()

	lg, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = lg.Sync() }()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		lg.Fatal("Database URL is required: set --database-url or DATABASE_URL")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, lg, databaseURL, seedPath); err != nil {
		lg.Fatal("Seed failed", zap.Error(err))
	}
	lg.Info("Seed completed")
}

func run(ctx context.Context, lg *zap.Logger, databaseURL, seedPath string) error {
	data, err := os.ReadFile(seedPath)
	if err != nil {
		return errors.Wrap(err, "read seed file")
	}
	var seed seedFile
	if err := json.Unmarshal(data, &seed); err != nil {
		return errors.Wrap(err, "parse seed file")
	}

	lg.Info("Connecting to database")
	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	products := postgres.NewProductRepository(pool)
	variations := variation.NewService(products, postgres.NewVariationRepository(pool), files.Nop{})
	coupons := coupon.NewEngine(postgres.NewCouponRepository(pool))

	if err := seedProducts(ctx, lg, products, variations, seed.Products); err != nil {
		return errors.Wrap(err, "seed products")
	}
	if err := seedCoupons(ctx, lg, coupons, seed.Coupons); err != nil {
		return errors.Wrap(err, "seed coupons")
	}
	return nil
}

// seedProducts upserts products and adds any variation not already present.
func seedProducts(
	ctx context.Context,
	lg *zap.Logger,
	products *postgres.ProductRepository,
	variations *variation.Service,
	items []productJSON,
) error {
	lg.Info("Upserting products", zap.Int("count", len(items)))

	for _, p := range items {
		if err := products.Upsert(ctx, p.ID, p.Name, p.Price); err != nil {
			return err
		}

		added := 0
		for _, v := range p.Variations {
			_, err := variations.Create(ctx, p.ID, variation.CreateRequest{
				Type:            v.Type,
				Value:           v.Value,
				PriceAdjustment: v.PriceAdjustment,
				StockQuantity:   v.StockQuantity,
			})
			switch {
			case err == nil:
				added++
			case errors.Is(err, variation.ErrDuplicate):
			default:
				return errors.Wrapf(err, "variation %s of %s", v.Value, p.ID)
			}
		}

		lg.Info("Upserted product",
			zap.String("id", p.ID),
			zap.String("name", p.Name),
			zap.Int("variations_added", added),
		)
	}
	return nil
}

// seedCoupons creates coupons whose code is not taken yet.
func seedCoupons(ctx context.Context, lg *zap.Logger, coupons *coupon.Engine, items []coupon.CreateRequest) error {
	lg.Info("Seeding coupons", zap.Int("count", len(items)))

	for _, req := range items {
		c, err := coupons.Create(ctx, req)
		if errors.Is(err, coupon.ErrCodeConflict) {
			lg.Info("Coupon exists", zap.String("code", coupon.NormalizeCode(req.Code)))
			continue
		}
		if err != nil {
			return errors.Wrapf(err, "coupon %s", req.Code)
		}
		lg.Info("Created coupon", zap.String("code", c.Code), zap.String("type", string(c.DiscountType)))
	}
	return nil
}
