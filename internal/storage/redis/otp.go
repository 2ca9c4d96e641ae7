// Package redis backs shared key-value state with Redis.
package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"

	"github.com/xenking/checkout-core/internal/domain/otp"
)

var _ otp.Store = (*OTPStore)(nil)

// Hash fields of a stored entry. Times are unix milliseconds.
const (
	fieldCode      = "code"
	fieldCreatedAt = "created_at"
	fieldExpiresAt = "expires_at"
	fieldAttempts  = "attempts"
)

// incrAttempts bumps the counter only while the entry exists, so a key that
// expired or was consumed is not recreated. HINCRBY keeps the TTL.
var incrAttempts = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then
	return -1
end
return redis.call("HINCRBY", KEYS[1], ARGV[1], 1)
`)

// OTPStore keeps one-time code entries as hashes with a TTL.
type OTPStore struct {
	client redis.Cmdable
	prefix string
}

// NewOTPStore creates an OTPStore. Keys are namespaced with prefix.
func NewOTPStore(client redis.Cmdable, prefix string) *OTPStore {
	return &OTPStore{client: client, prefix: prefix}
}

func (s *OTPStore) key(k string) string {
	return s.prefix + k
}

func (s *OTPStore) Get(ctx context.Context, key string) (*otp.Entry, error) {
	fields, err := s.client.HGetAll(ctx, s.key(key)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hgetall %q: %w", key, err)
	}
	if len(fields) == 0 {
		return nil, otp.ErrNoEntry
	}
	e, err := entryFromHash(fields)
	if err != nil {
		return nil, fmt.Errorf("decode otp entry: %w", err)
	}
	return e, nil
}

// Set replaces the entry. The old hash is deleted first so no stale field
// survives a reissue.
func (s *OTPStore) Set(ctx context.Context, key string, e *otp.Entry, ttl time.Duration) error {
	if ttl <= 0 {
		return s.Delete(ctx, key)
	}
	k := s.key(key)
	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, k)
		p.HSet(ctx, k, entryFields(e))
		p.PExpire(ctx, k, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis set %q: %w", key, err)
	}
	return nil
}

func (s *OTPStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("redis del %q: %w", key, err)
	}
	return nil
}

func (s *OTPStore) IncrAttempts(ctx context.Context, key string) (int, error) {
	n, err := incrAttempts.Run(ctx, s.client, []string{s.key(key)}, fieldAttempts).Int()
	if err != nil {
		return 0, fmt.Errorf("redis incr attempts %q: %w", key, err)
	}
	if n < 0 {
		return 0, otp.ErrNoEntry
	}
	return n, nil
}

func entryFields(e *otp.Entry) map[string]any {
	return map[string]any{
		fieldCode:      e.Code,
		fieldCreatedAt: e.CreatedAt.UnixMilli(),
		fieldExpiresAt: e.ExpiresAt.UnixMilli(),
		fieldAttempts:  e.Attempts,
	}
}

func entryFromHash(fields map[string]string) (*otp.Entry, error) {
	var (
		e   otp.Entry
		err error
	)
	e.Code = fields[fieldCode]
	if e.Code == "" {
		return nil, errors.New("missing code")
	}
	if e.CreatedAt, err = unixMilli(fields[fieldCreatedAt]); err != nil {
		return nil, errors.Wrap(err, fieldCreatedAt)
	}
	if e.ExpiresAt, err = unixMilli(fields[fieldExpiresAt]); err != nil {
		return nil, errors.Wrap(err, fieldExpiresAt)
	}
	if v := fields[fieldAttempts]; v != "" {
		if e.Attempts, err = strconv.Atoi(v); err != nil {
			return nil, errors.Wrap(err, fieldAttempts)
		}
	}
	return &e, nil
}

func unixMilli(v string) (time.Time, error) {
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(ms).UTC(), nil
}

// NewClient creates a go-redis client and verifies the connection.
func NewClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	c := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	if err := c.Ping(ctx).Err(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return c, nil
}
