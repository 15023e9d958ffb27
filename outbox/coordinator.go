package outbox

import (
	"context"
	"sync"

	"github.com/jrsteele09/go-session-sync/connectivity"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Drainer is implemented by *Outbox.
type Drainer interface {
	Drain(ctx context.Context) (DrainResult, error)
}

// ResultHandler is called after every drain pass.
type ResultHandler func(DrainResult, error)

// Coordinator decides when to drain. It drains on start, on every offline to online
// edge and whenever Trigger is called, and never runs two drains at once: a trigger
// that arrives during a drain schedules exactly one follow-up pass.
type Coordinator struct {
	drainer  Drainer
	signal   connectivity.Signal
	onResult ResultHandler
	log      zerolog.Logger

	lock    sync.Mutex
	idle    *sync.Cond
	ctx     context.Context
	cancel  context.CancelFunc
	detach  func()
	running bool
	rerun   bool
}

type CoordinatorOption func(*Coordinator)

// WithResultHandler is called after every drain pass.
func WithResultHandler(handler ResultHandler) CoordinatorOption {
	return func(c *Coordinator) {
		c.onResult = handler
	}
}

func WithCoordinatorLogger(logger zerolog.Logger) CoordinatorOption {
	return func(c *Coordinator) {
		c.log = logger
	}
}

// NewCoordinator creates a coordinator that drains drainer whenever signal comes online.
func NewCoordinator(drainer Drainer, signal connectivity.Signal, options ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		drainer: drainer,
		signal:  signal,
		log:     log.With().Str("component", "sync").Logger(),
	}
	c.idle = sync.NewCond(&c.lock)
	for _, opt := range options {
		opt(c)
	}
	return c
}

// Start subscribes to connectivity and drains once if currently online.
// Drains run until ctx is done or Stop is called.
func (c *Coordinator) Start(ctx context.Context) {
	c.lock.Lock()
	if c.ctx != nil {
		c.lock.Unlock()
		return
	}
	c.ctx, c.cancel = context.WithCancel(ctx)
	c.lock.Unlock()

	detach := c.signal.Subscribe(func(e connectivity.Event) {
		if e == connectivity.WentOnline {
			c.log.Debug().Msg("back online, draining")
			c.Trigger()
		}
	})

	c.lock.Lock()
	c.detach = detach
	c.lock.Unlock()

	c.log.Info().Msg("sync coordinator started")
	c.Trigger()
}

// Trigger requests a drain pass. It is a no-op when offline or not started.
func (c *Coordinator) Trigger() {
	if !c.signal.Online() {
		c.log.Debug().Msg("offline, drain skipped")
		return
	}

	c.lock.Lock()
	defer c.lock.Unlock()

	if c.ctx == nil || c.ctx.Err() != nil {
		return
	}
	if c.running {
		c.rerun = true
		return
	}
	c.running = true
	go c.run(c.ctx)
}

func (c *Coordinator) run(ctx context.Context) {
	for {
		result, err := c.drainer.Drain(ctx)
		if err != nil {
			c.log.Warn().Err(err).Int("delivered", result.Delivered).Int("remaining", result.Remaining).Msg("drain stopped")
		} else if result.Delivered > 0 || result.Failed > 0 {
			c.log.Info().Int("delivered", result.Delivered).Int("failed", result.Failed).Int("remaining", result.Remaining).Msg("drain finished")
		}
		if c.onResult != nil {
			c.onResult(result, err)
		}

		c.lock.Lock()
		if !c.rerun || ctx.Err() != nil {
			c.running = false
			c.rerun = false
			c.idle.Broadcast()
			c.lock.Unlock()
			return
		}
		c.rerun = false
		c.lock.Unlock()
	}
}

// Wait blocks until no drain is running or scheduled.
func (c *Coordinator) Wait() {
	c.lock.Lock()
	defer c.lock.Unlock()
	for c.running {
		c.idle.Wait()
	}
}

// Stop detaches from connectivity, cancels any running drain and waits for it to return.
func (c *Coordinator) Stop() {
	c.lock.Lock()
	detach, cancel := c.detach, c.cancel
	c.detach = nil
	c.lock.Unlock()

	if detach != nil {
		detach()
	}
	if cancel != nil {
		cancel()
	}
	c.Wait()
	c.log.Info().Msg("sync coordinator stopped")
}
