package main

import (
	"bufio"
	"context"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"

	"github.com/xenking/checkout-core/internal/domain/coupon"
)

// parseLine reads one import record:
//
//	CODE,TYPE,VALUE[,MIN_ORDER[,MAX_USES[,EXPIRES_AT]]]
//
// Blank lines and lines starting with '#' report ok=false with no error.
// Empty optional fields keep their defaults. EXPIRES_AT is RFC 3339.
func parseLine(line string) (req coupon.CreateRequest, ok bool, err error) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return req, false, nil
	}

	fields := strings.Split(line, ",")
	if len(fields) < 3 || len(fields) > 6 {
		return req, false, errors.Errorf("want 3 to 6 fields, got %d", len(fields))
	}
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}

	req.Code = coupon.NormalizeCode(fields[0])
	req.DiscountType = coupon.DiscountType(strings.ToLower(fields[1]))
	if req.DiscountValue, err = decimal.NewFromString(fields[2]); err != nil {
		return req, false, errors.Wrap(err, "discount value")
	}
	if len(fields) > 3 && fields[3] != "" {
		if req.MinOrderValue, err = decimal.NewFromString(fields[3]); err != nil {
			return req, false, errors.Wrap(err, "min order value")
		}
	}
	if len(fields) > 4 && fields[4] != "" {
		n, err := strconv.Atoi(fields[4])
		if err != nil {
			return req, false, errors.Wrap(err, "max uses")
		}
		req.MaxUses = &n
	}
	if len(fields) > 5 && fields[5] != "" {
		t, err := time.Parse(time.RFC3339, fields[5])
		if err != nil {
			return req, false, errors.Wrap(err, "expires at")
		}
		t = t.UTC()
		req.ExpiresAt = &t
	}

	if err := req.Validate(); err != nil {
		return req, false, err
	}
	return req, true, nil
}

// codeGate records codes in a shared bloom filter. seen reports whether the
// code may have been stored or imported already; false is exact.
type codeGate struct {
	mu     sync.Mutex
	filter *bloom.BloomFilter
}

func (g *codeGate) seen(code string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.filter.TestAndAddString(code)
}

// streamGzFile opens a gzip-compressed file and calls fn for each line.
func streamGzFile(ctx context.Context, path string, fn func(line string) error) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	scanner := bufio.NewScanner(gz)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(scanner.Text()); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}
	return nil
}
