package httpmiddleware

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitConfig configures the per-client token bucket.
type RateLimitConfig struct {
	// Max is the burst size and the number of requests refilled per Window.
	Max int
	// Window is the refill period for Max tokens.
	Window time.Duration
	// KeyFunc identifies the client. Defaults to the client IP.
	KeyFunc func(r *http.Request) string
}

func (c RateLimitConfig) withDefaults() RateLimitConfig {
	if c.Max <= 0 {
		c.Max = 100
	}
	if c.Window <= 0 {
		c.Window = time.Minute
	}
	if c.KeyFunc == nil {
		c.KeyFunc = ClientIP
	}
	return c
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type limiterSet struct {
	cfg   RateLimitConfig
	limit rate.Limit
	now   func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket
}

func newLimiterSet(cfg RateLimitConfig) *limiterSet {
	cfg = cfg.withDefaults()
	return &limiterSet{
		cfg:     cfg,
		limit:   rate.Every(cfg.Window / time.Duration(cfg.Max)),
		now:     time.Now,
		buckets: make(map[string]*bucket),
	}
}

// take consumes a token for key. It reports the whole tokens left, the time
// until the next token (when rejected) and the time until the bucket is full.
func (s *limiterSet) take(key string) (ok bool, remaining int, wait, reset time.Duration) {
	now := s.now()

	s.mu.Lock()
	b, found := s.buckets[key]
	if !found {
		b = &bucket{limiter: rate.NewLimiter(s.limit, s.cfg.Max)}
		s.buckets[key] = b
	}
	b.lastSeen = now
	s.mu.Unlock()

	ok = b.limiter.AllowN(now, 1)
	tokens := b.limiter.TokensAt(now)
	remaining = int(math.Max(0, math.Floor(tokens)))
	if !ok {
		wait = s.refill(1 - tokens)
	}
	reset = s.refill(float64(s.cfg.Max) - tokens)
	return ok, remaining, wait, reset
}

func (s *limiterSet) refill(tokens float64) time.Duration {
	if tokens <= 0 {
		return 0
	}
	return time.Duration(tokens / float64(s.limit) * float64(time.Second))
}

func ceilSeconds(d time.Duration) string {
	secs := int(math.Ceil(d.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}

// sweep drops buckets idle for longer than a full refill.
func (s *limiterSet) sweep() {
	cutoff := s.now().Add(-s.cfg.Window)
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, b := range s.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(s.buckets, k)
		}
	}
}

func (s *limiterSet) middleware() Middleware {
	limit := strconv.Itoa(s.cfg.Max)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ok, remaining, wait, reset := s.take(s.cfg.KeyFunc(r))
			h := w.Header()
			h.Set("X-RateLimit-Limit", limit)
			h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			h.Set("X-RateLimit-Reset", ceilSeconds(reset))
			if ok {
				next.ServeHTTP(w, r)
				return
			}
			h.Set("Retry-After", ceilSeconds(wait))
			WriteError(w, http.StatusTooManyRequests, "TooManyRequests", "rate limit exceeded")
		})
	}
}

// RateLimit limits each client to cfg.Max requests per cfg.Window with bursts
// up to cfg.Max. Idle clients are never evicted; prefer RateLimitWithCleanup
// for long-running servers.
func RateLimit(cfg RateLimitConfig) Middleware {
	return newLimiterSet(cfg).middleware()
}

// RateLimitWithCleanup is RateLimit with a background sweep of idle clients
// that stops when ctx is done.
func RateLimitWithCleanup(ctx context.Context, cfg RateLimitConfig) Middleware {
	s := newLimiterSet(cfg)
	go func() {
		ticker := time.NewTicker(s.cfg.Window)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.sweep()
			}
		}
	}()
	return s.middleware()
}

// ClientIP returns the first X-Forwarded-For hop, then X-Real-IP, then the
// remote address host.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
