// Package notify delivers best-effort side messages outside the request path.
package notify

import (
	"context"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// Task is one unit of side work.
type Task struct {
	Name string
	Run  func(ctx context.Context) error
}

// DispatcherConfig sizes the dispatcher.
type DispatcherConfig struct {
	Workers     int
	QueueSize   int
	TaskTimeout time.Duration
}

func (c *DispatcherConfig) setDefaults() {
	if c.Workers <= 0 {
		c.Workers = 2
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
	if c.TaskTimeout <= 0 {
		c.TaskTimeout = 10 * time.Second
	}
}

// Dispatcher runs tasks on a fixed worker pool fed by a bounded queue.
// Failures are logged and counted, never retried.
type Dispatcher struct {
	cfg   DispatcherConfig
	lg    *zap.Logger
	queue chan Task

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup

	failed  metric.Int64Counter
	dropped metric.Int64Counter
}

// NewDispatcher creates a Dispatcher. Call Start to launch the workers.
func NewDispatcher(lg *zap.Logger, meter metric.Meter, cfg DispatcherConfig) (*Dispatcher, error) {
	cfg.setDefaults()

	failed, err := meter.Int64Counter("checkout.notify.failed",
		metric.WithDescription("Notification tasks that returned an error"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed counter")
	}
	dropped, err := meter.Int64Counter("checkout.notify.dropped",
		metric.WithDescription("Notification tasks dropped on a full queue"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "dropped counter")
	}

	return &Dispatcher{
		cfg:     cfg,
		lg:      lg,
		queue:   make(chan Task, cfg.QueueSize),
		failed:  failed,
		dropped: dropped,
	}, nil
}

// Start launches the workers.
func (d *Dispatcher) Start() {
	for range d.cfg.Workers {
		d.wg.Add(1)
		go d.worker()
	}
}

// Enqueue schedules t without blocking. It reports false when the task was
// dropped because the queue is full or the dispatcher is shutting down.
func (d *Dispatcher) Enqueue(t Task) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.drop(t, "closed")
		return false
	}
	select {
	case d.queue <- t:
		return true
	default:
		d.drop(t, "queue full")
		return false
	}
}

func (d *Dispatcher) drop(t Task, reason string) {
	d.dropped.Add(context.Background(), 1, metric.WithAttributes(attribute.String("task", t.Name)))
	d.lg.Warn("Notification dropped", zap.String("task", t.Name), zap.String("reason", reason))
}

// Shutdown stops accepting tasks and waits for queued ones to finish or for
// ctx to expire.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "drain notifications")
	}
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for t := range d.queue {
		d.run(t)
	}
}

func (d *Dispatcher) run(t Task) {
	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.TaskTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			d.failed.Add(ctx, 1, metric.WithAttributes(attribute.String("task", t.Name)))
			d.lg.Error("Notification panicked", zap.String("task", t.Name), zap.Any("panic", r))
		}
	}()

	start := time.Now()
	if err := t.Run(ctx); err != nil {
		d.failed.Add(ctx, 1, metric.WithAttributes(attribute.String("task", t.Name)))
		d.lg.Error("Notification failed",
			zap.String("task", t.Name),
			zap.Duration("took", time.Since(start)),
			zap.Error(err),
		)
		return
	}
	d.lg.Debug("Notification sent", zap.String("task", t.Name), zap.Duration("took", time.Since(start)))
}
