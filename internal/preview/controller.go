// Package preview keeps a remote preview in sync with the latest
// parameters. Every request gets an increasing id; starting one cancels the
// one in flight, and a response whose id is no longer the latest is dropped.
package preview

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// Fetch performs one preview request.
type Fetch[P, R any] func(ctx context.Context, params P) (R, error)

// Handler receives the lifecycle of live requests. Calls are serialized and
// never made for superseded or cancelled requests. A handler may schedule a
// debounced Request but must not start an immediate one or call Close.
type Handler[P, R any] struct {
	OnStart  func(id uint64, params P, showLoader bool)
	OnResult func(id uint64, params P, result R)
	OnError  func(id uint64, params P, err error)
}

// Options for one Request.
type Options struct {
	// ShowLoader is passed through to OnStart.
	ShowLoader bool
	// Debounce delays the request; a newer Request replaces a pending one.
	Debounce time.Duration
}

// Controller runs at most one live request at a time.
type Controller[P, R any] struct {
	name    string
	fetch   Fetch[P, R]
	handler Handler[P, R]

	// deliver serializes handler calls with the staleness check.
	deliver sync.Mutex

	mu       sync.Mutex
	seq      uint64
	gen      uint64
	timer    *time.Timer
	cancel   context.CancelFunc
	inflight bool
	closed   bool
	wg       sync.WaitGroup
}

// New returns a controller; name is used in logs.
func New[P, R any](name string, fetch Fetch[P, R], handler Handler[P, R]) *Controller[P, R] {
	return &Controller[P, R]{name: name, fetch: fetch, handler: handler}
}

// Request schedules a preview for params. Any pending debounced request is
// discarded; the in-flight request is cancelled when this one starts.
func (c *Controller[P, R]) Request(params P, opts Options) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.gen++
	gen := c.gen

	if opts.Debounce <= 0 {
		c.mu.Unlock()
		c.start(gen, params, opts.ShowLoader)
		return
	}
	c.timer = time.AfterFunc(opts.Debounce, func() {
		c.start(gen, params, opts.ShowLoader)
	})
	c.mu.Unlock()
}

func (c *Controller[P, R]) start(gen uint64, params P, showLoader bool) {
	c.deliver.Lock()
	c.mu.Lock()
	if c.closed || gen != c.gen {
		c.mu.Unlock()
		c.deliver.Unlock()
		return
	}
	c.timer = nil
	if c.cancel != nil {
		c.cancel()
	}
	c.seq++
	id := c.seq
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.inflight = true
	c.wg.Add(1)
	c.mu.Unlock()

	if c.handler.OnStart != nil {
		c.handler.OnStart(id, params, showLoader)
	}
	c.deliver.Unlock()

	go c.run(ctx, cancel, id, params)
}

func (c *Controller[P, R]) run(ctx context.Context, cancel context.CancelFunc, id uint64, params P) {
	defer c.wg.Done()
	defer cancel()

	result, err := c.fetch(ctx, params)

	c.deliver.Lock()
	defer c.deliver.Unlock()

	c.mu.Lock()
	live := !c.closed && id == c.seq
	if live {
		c.cancel = nil
	}
	c.mu.Unlock()

	if !live {
		slog.Debug("preview response dropped", "controller", c.name, "request_id", id)
		return
	}
	// Busy stays true until the outcome has been delivered.
	defer func() {
		c.mu.Lock()
		if id == c.seq {
			c.inflight = false
		}
		c.mu.Unlock()
	}()
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		if c.handler.OnError != nil {
			c.handler.OnError(id, params, err)
		}
		return
	}
	if c.handler.OnResult != nil {
		c.handler.OnResult(id, params, result)
	}
}

// Latest is the most recently issued request id.
func (c *Controller[P, R]) Latest() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seq
}

// Busy reports whether a request is pending or in flight.
func (c *Controller[P, R]) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timer != nil || c.inflight
}

// Cancel drops the pending and in-flight requests without closing.
func (c *Controller[P, R]) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	// Bumping seq makes a response that ignores cancellation stale too.
	c.seq++
	c.inflight = false
}

// Close cancels everything and waits for in-flight fetches to return. No
// handler is called afterwards.
func (c *Controller[P, R]) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.mu.Unlock()
	c.wg.Wait()
}
