// Package cancel provides the per-run stop signal shared by every entity.
package cancel

import (
	"context"
	"sync"
)

// Token is the abortable signal meaning "the program was stopped".
//
// A Token is created once per program run. After Signal it stays stopped.
type Token struct {
	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	stopped  bool
	nextID   uint64
	handlers map[uint64]func()
	order    []uint64
}

// New returns a fresh token whose context is derived from parent.
func New(parent context.Context) *Token {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	t := &Token{
		ctx:      ctx,
		cancel:   cancel,
		handlers: make(map[uint64]func()),
	}
	// A cancelled parent stops the run as well.
	context.AfterFunc(ctx, t.Signal)
	return t
}

// Signal stops the token. Handlers registered so far run exactly once, in
// registration order, before Signal returns. Later calls are no-ops.
func (t *Token) Signal() {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	t.stopped = true
	fns := make([]func(), 0, len(t.order))
	for _, id := range t.order {
		if fn, ok := t.handlers[id]; ok {
			fns = append(fns, fn)
		}
	}
	t.handlers = nil
	t.order = nil
	t.mu.Unlock()

	t.cancel()
	for _, fn := range fns {
		fn()
	}
}

// Stopped reports whether the token has been stopped.
func (t *Token) Stopped() bool {
	return t.ctx.Err() != nil
}

// Done is closed once the token is stopped.
func (t *Token) Done() <-chan struct{} {
	return t.ctx.Done()
}

// Context is cancelled when the token is stopped. Subscriptions and timers
// scoped to the run are registered against it.
func (t *Token) Context() context.Context {
	return t.ctx
}

// OnStop registers handler to run once when the token is stopped. When the
// token is already stopped the handler runs on a new goroutine, never during
// registration. The returned release func unregisters a pending handler.
func (t *Token) OnStop(handler func()) (release func()) {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		go handler()
		return func() {}
	}
	id := t.nextID
	t.nextID++
	t.handlers[id] = handler
	t.order = append(t.order, id)
	t.mu.Unlock()

	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		if t.handlers == nil {
			return
		}
		delete(t.handlers, id)
		for i, v := range t.order {
			if v == id {
				t.order = append(t.order[:i], t.order[i+1:]...)
				break
			}
		}
	}
}

// Scope returns a child context cancelled on stop or when the returned
// cancel func is called. Use it for registrations that may end earlier than
// the run, such as a deleted entity's subscriptions.
func (t *Token) Scope() (context.Context, context.CancelFunc) {
	return context.WithCancel(t.ctx)
}
