// Package admission bounds how many AI provider calls run at once. Excess
// work waits in a bounded FIFO queue; waiting past QueueTimeout fails the
// caller with an overload error.
package admission

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hiyari/incident-reports-back/internal/apperr"
)

const (
	DefaultMaxConcurrent = 5
	DefaultQueueTimeout  = 45 * time.Second
	DefaultQueueMaxSize  = 150
	DefaultSweepInterval = time.Second

	// overloadRatio of QueueMaxSize at which IsOverloaded reports true.
	overloadRatio = 0.9

	defaultRetryAfterSeconds = 2
)

var (
	ErrQueueFull    = apperr.Overloaded("Queue is full. Service overloaded.", defaultRetryAfterSeconds)
	ErrQueueTimeout = apperr.Overloaded("Request timeout in queue", defaultRetryAfterSeconds)
	ErrOverloaded   = apperr.Overloaded("Service temporarily overloaded. Please retry later.", defaultRetryAfterSeconds)
)

type Config struct {
	MaxConcurrent int
	QueueTimeout  time.Duration
	QueueMaxSize  int
	SweepInterval time.Duration
	Clock         func() time.Time
	Logger        *zap.Logger
}

type Status struct {
	Running       int  `json:"running"`
	Queued        int  `json:"queued"`
	MaxConcurrent int  `json:"maxConcurrent"`
	IsOverloaded  bool `json:"isOverloaded"`
}

type itemState int

const (
	stateQueued itemState = iota
	stateDispatched
	stateFinished
)

type item struct {
	ctx        context.Context
	op         func(ctx context.Context) error
	enqueuedAt time.Time
	state      itemState
	done       chan error
}

// Controller is safe for concurrent use. Construct one per process and share it.
type Controller struct {
	mu      sync.Mutex
	running int
	queue   []*item

	maxConcurrent int
	queueTimeout  time.Duration
	queueMaxSize  int
	sweepInterval time.Duration
	clock         func() time.Time
	logger        *zap.Logger
}

func New(cfg Config) *Controller {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = DefaultMaxConcurrent
	}
	if cfg.QueueTimeout <= 0 {
		cfg.QueueTimeout = DefaultQueueTimeout
	}
	if cfg.QueueMaxSize <= 0 {
		cfg.QueueMaxSize = DefaultQueueMaxSize
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultSweepInterval
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Controller{
		queue:         make([]*item, 0, cfg.QueueMaxSize),
		maxConcurrent: cfg.MaxConcurrent,
		queueTimeout:  cfg.QueueTimeout,
		queueMaxSize:  cfg.QueueMaxSize,
		sweepInterval: cfg.SweepInterval,
		clock:         cfg.Clock,
		logger:        cfg.Logger,
	}
}

// Submit runs op once a slot is free and returns its error. It fails with
// ErrQueueFull without running op when the queue is at capacity, and with
// ErrQueueTimeout when op waited longer than QueueTimeout.
func (c *Controller) Submit(ctx context.Context, op func(ctx context.Context) error) error {
	c.mu.Lock()
	if len(c.queue) >= c.queueMaxSize {
		c.mu.Unlock()
		c.logger.Warn("admission queue full", zap.Int("queue_max_size", c.queueMaxSize))
		return ErrQueueFull
	}
	it := &item{
		ctx:        ctx,
		op:         op,
		enqueuedAt: c.clock(),
		done:       make(chan error, 1),
	}
	c.queue = append(c.queue, it)
	c.drainLocked()
	c.mu.Unlock()

	select {
	case err := <-it.done:
		return err
	case <-ctx.Done():
	}

	c.mu.Lock()
	if it.state == stateQueued {
		c.removeLocked(it)
		it.state = stateFinished
		c.mu.Unlock()
		return ctx.Err()
	}
	c.mu.Unlock()
	return <-it.done
}

// Execute is Submit for operations that produce a value.
func Execute[T any](ctx context.Context, c *Controller, op func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := c.Submit(ctx, func(ctx context.Context) error {
		value, err := op(ctx)
		if err != nil {
			return err
		}
		result = value
		return nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return result, nil
}

// WithOverloadCheck rejects with ErrOverloaded before queueing when the
// controller is already near capacity.
func WithOverloadCheck[T any](ctx context.Context, c *Controller, op func(ctx context.Context) (T, error)) (T, error) {
	if c.IsOverloaded() {
		var zero T
		return zero, ErrOverloaded
	}
	return Execute(ctx, c, op)
}

func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Status{
		Running:       c.running,
		Queued:        len(c.queue),
		MaxConcurrent: c.maxConcurrent,
		IsOverloaded:  c.overloadedLocked(),
	}
}

func (c *Controller) IsOverloaded() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.overloadedLocked()
}

// Sweep expires stale queue entries and dispatches into free slots.
func (c *Controller) Sweep() {
	c.mu.Lock()
	c.drainLocked()
	c.mu.Unlock()
}

// Run sweeps every SweepInterval until ctx is done.
func (c *Controller) Run(ctx context.Context) {
	ticker := time.NewTicker(c.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Sweep()
		}
	}
}

func (c *Controller) overloadedLocked() bool {
	return float64(len(c.queue)) >= float64(c.queueMaxSize)*overloadRatio
}

func (c *Controller) drainLocked() {
	now := c.clock()
	c.expireLocked(now)

	for c.running < c.maxConcurrent && len(c.queue) > 0 {
		it := c.queue[0]
		c.queue[0] = nil
		c.queue = c.queue[1:]

		if c.expired(it, now) {
			c.failLocked(it, ErrQueueTimeout)
			continue
		}

		it.state = stateDispatched
		c.running++
		go c.run(it)
	}
}

// expireLocked drops the expired prefix; arrivals are appended in time order.
func (c *Controller) expireLocked(now time.Time) {
	expired := 0
	for len(c.queue) > 0 && c.expired(c.queue[0], now) {
		c.failLocked(c.queue[0], ErrQueueTimeout)
		c.queue[0] = nil
		c.queue = c.queue[1:]
		expired++
	}
	if expired > 0 {
		c.logger.Info("expired queued requests", zap.Int("count", expired), zap.Int("queued", len(c.queue)))
	}
}

func (c *Controller) expired(it *item, now time.Time) bool {
	return now.Sub(it.enqueuedAt) > c.queueTimeout
}

func (c *Controller) failLocked(it *item, err error) {
	it.state = stateFinished
	it.done <- err
}

func (c *Controller) removeLocked(target *item) {
	for index, it := range c.queue {
		if it == target {
			copy(c.queue[index:], c.queue[index+1:])
			c.queue[len(c.queue)-1] = nil
			c.queue = c.queue[:len(c.queue)-1]
			return
		}
	}
}

func (c *Controller) run(it *item) {
	err := c.invoke(it)

	c.mu.Lock()
	it.state = stateFinished
	c.running--
	c.drainLocked()
	c.mu.Unlock()

	it.done <- err
}

func (c *Controller) invoke(it *item) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			c.logger.Error("admitted operation panicked", zap.Any("panic", recovered))
			err = fmt.Errorf("operation panicked: %v", recovered)
		}
	}()
	return it.op(it.ctx)
}
