// Package health serves liveness and readiness probes backed by periodic
// background checks.
//
// A check flips to unhealthy after FailureThreshold consecutive failures and
// back to healthy after SuccessThreshold consecutive successes.
package health

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-faster/jx"
)

// Default thresholds applied to every registered check.
const (
	FailureThreshold = 3
	SuccessThreshold = 1
)

// CheckFunc reports a problem with a dependency, or nil when it is healthy.
type CheckFunc func(ctx context.Context) error

// Kind selects the probe a check contributes to.
type Kind int

const (
	Liveness Kind = iota
	Readiness
)

type result struct {
	err      error
	duration time.Duration
}

// probe is driven by a single goroutine; only healthy and last are read
// concurrently.
type probe struct {
	kind    Kind
	name    string
	timeout time.Duration
	check   CheckFunc

	healthy atomic.Bool
	last    atomic.Pointer[result]

	fails int
	oks   int
}

func (p *probe) run(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	start := time.Now()
	err := p.check(ctx)
	p.last.Store(&result{err: err, duration: time.Since(start)})

	if err != nil {
		p.oks = 0
		p.fails++
		if p.fails >= FailureThreshold {
			p.healthy.Store(false)
		}
		return
	}
	p.fails = 0
	p.oks++
	if p.oks >= SuccessThreshold {
		p.healthy.Store(true)
	}
}

func (p *probe) loop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	p.run(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.run(ctx)
		}
	}
}

// Health tracks probes and the manual readiness flag.
type Health struct {
	ready atomic.Bool

	mu     sync.RWMutex
	probes []*probe
	cancel context.CancelFunc
}

// New returns a Health that is not ready until SetReady(true).
func New() *Health {
	return &Health{}
}

// Add registers a check. Checks start healthy.
func (h *Health) Add(kind Kind, name string, timeout time.Duration, check CheckFunc) {
	p := &probe{kind: kind, name: name, timeout: timeout, check: check}
	p.healthy.Store(true)

	h.mu.Lock()
	defer h.mu.Unlock()
	h.probes = append(h.probes, p)
}

// AddLivenessCheck registers a check that keeps the process alive.
func (h *Health) AddLivenessCheck(name string, timeout time.Duration, check CheckFunc) {
	h.Add(Liveness, name, timeout, check)
}

// AddReadinessCheck registers a check that gates incoming traffic.
func (h *Health) AddReadinessCheck(name string, timeout time.Duration, check CheckFunc) {
	h.Add(Readiness, name, timeout, check)
}

// Start runs every registered check every interval until Stop or ctx is done.
func (h *Health) Start(ctx context.Context, interval time.Duration) {
	ctx, cancel := context.WithCancel(ctx)

	h.mu.Lock()
	if h.cancel != nil {
		h.cancel()
	}
	h.cancel = cancel
	probes := append([]*probe(nil), h.probes...)
	h.mu.Unlock()

	for _, p := range probes {
		go p.loop(ctx, interval)
	}
}

// Stop cancels the background checks. It is safe to call more than once.
func (h *Health) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cancel != nil {
		h.cancel()
		h.cancel = nil
	}
}

// SetReady sets the manual readiness flag, e.g. false while draining.
func (h *Health) SetReady(ready bool) {
	h.ready.Store(ready)
}

// IsReady reports the manual flag combined with every readiness check.
func (h *Health) IsReady() bool {
	if !h.ready.Load() {
		return false
	}
	for _, p := range h.snapshot(Readiness) {
		if !p.healthy.Load() {
			return false
		}
	}
	return true
}

func (h *Health) snapshot(kind Kind) []*probe {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var out []*probe
	for _, p := range h.probes {
		if p.kind == kind {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}

// LiveEndpoint serves /livez: 200 when every liveness check is healthy,
// 503 otherwise.
func (h *Health) LiveEndpoint(w http.ResponseWriter, _ *http.Request) {
	probes := h.snapshot(Liveness)
	write(w, probes, allHealthy(probes))
}

// ReadyEndpoint serves /readyz: 200 when the service is marked ready and
// every readiness check is healthy, 503 otherwise.
func (h *Health) ReadyEndpoint(w http.ResponseWriter, _ *http.Request) {
	probes := h.snapshot(Readiness)
	write(w, probes, h.ready.Load() && allHealthy(probes))
}

func allHealthy(probes []*probe) bool {
	for _, p := range probes {
		if !p.healthy.Load() {
			return false
		}
	}
	return true
}

// write renders {"status":..,"checks":{name:{"healthy":..,"error":..,"duration_ms":..}}}.
func write(w http.ResponseWriter, probes []*probe, ok bool) {
	status, code := "ok", http.StatusOK
	if !ok {
		status, code = "unhealthy", http.StatusServiceUnavailable
	}

	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("status", func(e *jx.Encoder) { e.Str(status) })
		if len(probes) == 0 {
			return
		}
		e.Field("checks", func(e *jx.Encoder) {
			e.Obj(func(e *jx.Encoder) {
				for _, p := range probes {
					e.Field(p.name, func(e *jx.Encoder) { encodeProbe(e, p) })
				}
			})
		})
	})

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(e.Bytes())
}

func encodeProbe(e *jx.Encoder, p *probe) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("healthy", func(e *jx.Encoder) { e.Bool(p.healthy.Load()) })
		r := p.last.Load()
		if r == nil {
			return
		}
		if r.err != nil {
			e.Field("error", func(e *jx.Encoder) { e.Str(r.err.Error()) })
		}
		e.Field("duration_ms", func(e *jx.Encoder) { e.Int64(r.duration.Milliseconds()) })
	})
}
