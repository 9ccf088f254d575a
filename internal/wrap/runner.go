package wrap

import (
	"context"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/tomas-wrobel/scrap-engine-sub002/internal/cancel"
	"github.com/tomas-wrobel/scrap-engine-sub002/internal/core"
)

// Runner binds the wrappers to one entity. It is built when the entity is
// constructed and shared by all of its operations.
type Runner struct {
	token *cancel.Token
	clock clock.Clock
	pace  atomic.Int64
	turbo *atomic.Bool
}

// NewRunner returns a Runner. turbo is shared by every entity of a program
// run; a nil turbo means pacing is always on.
func NewRunner(tok *cancel.Token, clk clock.Clock, pace time.Duration, turbo *atomic.Bool) *Runner {
	if clk == nil {
		clk = clock.New()
	}
	if turbo == nil {
		turbo = new(atomic.Bool)
	}
	r := &Runner{token: tok, clock: clk, turbo: turbo}
	r.pace.Store(int64(pace))
	return r
}

// Token returns the stop signal of the run.
func (r *Runner) Token() *cancel.Token { return r.token }

// Clock returns the clock used for pacing and waits.
func (r *Runner) Clock() clock.Clock { return r.clock }

// Pace returns the configured frame delay, ignoring turbo mode.
func (r *Runner) Pace() time.Duration { return time.Duration(r.pace.Load()) }

// SetPace changes the frame delay used by Paced.
func (r *Runner) SetPace(d time.Duration) { r.pace.Store(int64(d)) }

// Turbo reports whether pacing is disabled.
func (r *Runner) Turbo() bool { return r.turbo.Load() }

func (r *Runner) effectivePace() time.Duration {
	if r.turbo.Load() {
		return 0
	}
	return r.Pace()
}

// Paced runs op one frame later, see Paced.
func (r *Runner) Paced(op func(ctx context.Context) error) error {
	_, err := Paced(r.token, r.clock, r.effectivePace(), discard(op))
	return err
}

// Interruptible runs op racing the stop signal, see Interruptible.
func (r *Runner) Interruptible(op func(ctx context.Context) error) error {
	_, err := Interruptible(r.token, discard(op))
	return err
}

// Event runs an event handler, see Event.
func (r *Runner) Event(handler func(ctx context.Context) error, done func(err error)) error {
	return Event(r.token, handler, done)
}

// Sleep waits d or until stop.
func (r *Runner) Sleep(d time.Duration) error {
	return Sleep(r.token, r.clock, d)
}

// Yield waits one frame, or just checks the stop signal in turbo mode.
func (r *Runner) Yield() error {
	if p := r.effectivePace(); p > 0 {
		return Sleep(r.token, r.clock, p)
	}
	if r.token.Stopped() {
		return core.ErrStop
	}
	runtime.Gosched()
	return nil
}

func discard(op func(ctx context.Context) error) Op[struct{}] {
	return func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	}
}
