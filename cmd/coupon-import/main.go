package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"sync/atomic"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/checkout-core/internal/domain/coupon"
	"github.com/xenking/checkout-core/internal/storage/postgres"
)

const (
	bloomFPR      = 0.001
	progressEvery = 10_000
)

type options struct {
	databaseURL  string
	capacity     uint
	workers      int
	skipExisting bool
	files        []string
}

// stats are updated from several goroutines.
type stats struct {
	parsed   atomic.Int64
	invalid  atomic.Int64
	inserted atomic.Int64
	existing atomic.Int64
	filtered atomic.Int64
}

func main() {
	var opts options

	flag.StringVar(&opts.databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.UintVar(&opts.capacity, "capacity", 1_000_000, "expected number of stored plus imported codes")
	flag.IntVar(&opts.workers, "workers", 4, "concurrent insert workers")
	flag.BoolVar(&opts.skipExisting, "skip-existing", false,
		"skip codes the filter reports as stored without asking the database (may drop a few new codes)")
	flag.Parse()
	opts.files = flag.Args()

	lg, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = lg.Sync() }()

	if opts.databaseURL == "" {
		opts.databaseURL = os.Getenv("DATABASE_URL")
	}
	if opts.databaseURL == "" {
		lg.Fatal("Database URL is required: set --database-url or DATABASE_URL")
	}
	if len(opts.files) == 0 {
		lg.Fatal("Usage: coupon-import [flags] FILE.gz...")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	st := &stats{}
	if err := run(ctx, lg, opts, st); err != nil {
		lg.Fatal("Coupon import failed", zap.Error(err))
	}
	lg.Info("Coupon import completed",
		zap.Int64("parsed", st.parsed.Load()),
		zap.Int64("invalid", st.invalid.Load()),
		zap.Int64("inserted", st.inserted.Load()),
		zap.Int64("existing", st.existing.Load()),
		zap.Int64("filtered", st.filtered.Load()),
	)
}

func run(ctx context.Context, lg *zap.Logger, opts options, st *stats) error {
	for _, f := range opts.files {
		if _, err := os.Stat(f); err != nil {
			return errors.Wrapf(err, "check file %s", f)
		}
	}

	pool, err := postgres.NewPool(ctx, opts.databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}
	repo := postgres.NewCouponRepository(pool)

	// Pass 1: remember every stored code.
	filter := bloom.NewWithEstimates(opts.capacity, bloomFPR)
	var stored int
	if err := repo.Codes(ctx, func(code string) {
		filter.AddString(code)
		stored++
	}); err != nil {
		return errors.Wrap(err, "load stored codes")
	}
	lg.Info("Loaded stored codes", zap.Int("count", stored))

	// Pass 2: parse every file concurrently and insert what is new.
	rows := make(chan *coupon.Coupon, 1024)
	g, ctx := errgroup.WithContext(ctx)
	var readers errgroup.Group

	for i, path := range opts.files {
		readers.Go(func() error {
			return readFile(ctx, lg.With(zap.Int("file", i+1)), path, rows, st)
		})
	}
	g.Go(func() error {
		defer close(rows)
		return readers.Wait()
	})

	gate := &codeGate{filter: filter}
	for range max(opts.workers, 1) {
		g.Go(func() error {
			for c := range rows {
				if gate.seen(c.Code) && opts.skipExisting {
					st.filtered.Add(1)
					continue
				}
				ok, err := repo.InsertIfAbsent(ctx, c)
				if err != nil {
					return err
				}
				if ok {
					if n := st.inserted.Add(1); n%progressEvery == 0 {
						lg.Info("Insert progress", zap.Int64("inserted", n))
					}
				} else {
					st.existing.Add(1)
				}
			}
			return nil
		})
	}

	return g.Wait()
}

// readFile streams one gzip file into rows.
func readFile(ctx context.Context, lg *zap.Logger, path string, rows chan<- *coupon.Coupon, st *stats) error {
	var lines int
	err := streamGzFile(ctx, path, func(line string) error {
		lines++
		req, ok, err := parseLine(line)
		if err != nil {
			st.invalid.Add(1)
			lg.Debug("Skipping line", zap.Int("line", lines), zap.Error(err))
			return nil
		}
		if !ok {
			return nil
		}
		st.parsed.Add(1)

		select {
		case rows <- newCoupon(req):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	if err != nil {
		return errors.Wrapf(err, "import %s", path)
	}
	lg.Info("File complete", zap.String("path", path), zap.Int("lines", lines))
	return nil
}

func newCoupon(req coupon.CreateRequest) *coupon.Coupon {
	now := time.Now().UTC()
	c := &coupon.Coupon{
		ID:            uuid.New().String(),
		Code:          req.Code,
		DiscountType:  req.DiscountType,
		DiscountValue: req.DiscountValue,
		MinOrderValue: req.MinOrderValue,
		MaxUses:       req.MaxUses,
		ExpiresAt:     req.ExpiresAt,
		IsActive:      true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if req.IsActive != nil {
		c.IsActive = *req.IsActive
	}
	return c
}
