// Package notify implements the change-notification protocol shared by the
// cart and wishlist stores: de-duplicated listener registration and ordered
// fan-out delivery on a single dispatcher goroutine, so UI-owning observers
// never need their own synchronization.
package notify

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Listener receives the store's derived item count after every mutation.
// Implementations must be comparable; registration is de-duplicated by
// listener identity.
type Listener interface {
	StoreUpdated(count int)
}

// Callback wraps a plain function as a Listener. Each call returns a
// distinct identity, so the same function can back several registrations.
func Callback(fn func(count int)) Listener {
	return &callback{fn: fn}
}

type callback struct {
	fn func(int)
}

func (c *callback) StoreUpdated(count int) { c.fn(count) }

// Dispatcher owns the single delivery goroutine. All listener callbacks,
// whatever goroutine triggered the mutation, run on the goroutine that
// called Run, in the order they were posted.
type Dispatcher struct {
	lg *zap.Logger

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []func()
	closed bool
}

// NewDispatcher creates a dispatcher. Run must be called before posted
// work is delivered.
func NewDispatcher(lg *zap.Logger) *Dispatcher {
	d := &Dispatcher{lg: lg}
	d.cond = sync.NewCond(&d.mu)
	return d
}

// Run drains the queue until ctx is cancelled, then finishes any work
// already posted and returns ctx.Err(). The calling goroutine is the
// delivery thread; Run must not be called concurrently.
func (d *Dispatcher) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		d.mu.Lock()
		d.closed = true
		d.mu.Unlock()
		d.cond.Broadcast()
	})
	defer stop()

	for {
		d.mu.Lock()
		for len(d.queue) == 0 && !d.closed {
			d.cond.Wait()
		}
		if len(d.queue) == 0 {
			d.mu.Unlock()
			return ctx.Err()
		}
		fn := d.queue[0]
		d.queue = d.queue[1:]
		d.mu.Unlock()

		fn()
	}
}

// Post enqueues fn for delivery. It never blocks on delivery; posts after
// the dispatcher stopped are dropped.
func (d *Dispatcher) Post(fn func()) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.queue = append(d.queue, fn)
	d.mu.Unlock()
	d.cond.Signal()
}

// Hub keeps the ordered, de-duplicated listener registry for one store and
// broadcasts derived counts through a shared Dispatcher.
type Hub struct {
	d  *Dispatcher
	lg *zap.Logger

	mu        sync.Mutex
	listeners []Listener
}

// NewHub creates an empty registry delivering through d.
func NewHub(d *Dispatcher, lg *zap.Logger) *Hub {
	return &Hub{d: d, lg: lg}
}

// Add registers l, preserving insertion order. Registering an
// already-registered listener is a no-op.
func (h *Hub) Add(l Listener) {
	if l == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, got := range h.listeners {
		if got == l {
			return
		}
	}
	h.listeners = append(h.listeners, l)
}

// Remove unregisters l. Removing an unknown listener is a no-op.
func (h *Hub) Remove(l Listener) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, got := range h.listeners {
		if got == l {
			h.listeners = append(h.listeners[:i], h.listeners[i+1:]...)
			return
		}
	}
}

// Broadcast schedules delivery of count to every listener registered at
// delivery time. A panicking listener does not prevent delivery to the
// rest of the round.
func (h *Hub) Broadcast(count int) {
	h.d.Post(func() {
		for _, l := range h.snapshot() {
			h.deliver(l, count)
		}
	})
}

// NotifyOne schedules delivery of count to a single listener. Used to
// prime a listener with the current state right after registration.
func (h *Hub) NotifyOne(l Listener, count int) {
	if l == nil {
		return
	}
	h.d.Post(func() {
		h.deliver(l, count)
	})
}

func (h *Hub) snapshot() []Listener {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Listener, len(h.listeners))
	copy(out, h.listeners)
	return out
}

func (h *Hub) deliver(l Listener, count int) {
	defer func() {
		if r := recover(); r != nil {
			h.lg.Error("Listener panicked during notification", zap.Any("panic", r))
		}
	}()
	l.StoreUpdated(count)
}
