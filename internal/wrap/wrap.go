// Package wrap holds the combinators every user-facing entity operation goes
// through: frame pacing, racing against the program stop signal, and event
// handlers with a completion hook.
package wrap

import (
	"context"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/tomas-wrobel/scrap-engine-sub002/internal/cancel"
	"github.com/tomas-wrobel/scrap-engine-sub002/internal/core"
)

// Op is an asynchronous operation. ctx is cancelled when the program stops.
type Op[T any] func(ctx context.Context) (T, error)

type result[T any] struct {
	value T
	err   error
}

// safeInvoke runs op and turns a panic into an error.
func safeInvoke[T any](ctx context.Context, op Op[T]) (value T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return op(ctx)
}

// Interruptible races op against the stop signal. When op settles first its
// result is returned, also if the stop arrives right after. When the stop
// wins, ErrStop is returned at once and op keeps running in the background
// until it returns on its own. An already stopped token never starts op.
func Interruptible[T any](tok *cancel.Token, op Op[T]) (T, error) {
	var zero T
	if tok.Stopped() {
		return zero, core.ErrStop
	}
	// Buffered so the background goroutine never blocks after losing the race.
	res := make(chan result[T], 1)
	go func() {
		v, err := safeInvoke(tok.Context(), op)
		res <- result[T]{value: v, err: err}
	}()

	select {
	case r := <-res:
		return r.value, r.err
	case <-tok.Done():
		select {
		case r := <-res:
			return r.value, r.err
		default:
			return zero, core.ErrStop
		}
	}
}

// Paced delays op by pace on clk. A stop during the delay returns ErrStop and
// op is never invoked. A zero pace skips the delay.
func Paced[T any](tok *cancel.Token, clk clock.Clock, pace time.Duration, op Op[T]) (T, error) {
	var zero T
	if pace > 0 {
		t := clk.Timer(pace)
		select {
		case <-t.C:
		case <-tok.Done():
			t.Stop()
			return zero, core.ErrStop
		}
	}
	return Interruptible(tok, op)
}

// Event runs handler under Interruptible and then calls done exactly once
// with the outcome, whether the handler finished, failed or was stopped.
func Event(tok *cancel.Token, handler func(ctx context.Context) error, done func(err error)) error {
	_, err := Interruptible(tok, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, handler(ctx)
	})
	if done != nil {
		done(err)
	}
	return err
}

// Sleep waits d on clk or until the stop signal.
func Sleep(tok *cancel.Token, clk clock.Clock, d time.Duration) error {
	if tok.Stopped() {
		return core.ErrStop
	}
	if d <= 0 {
		return nil
	}
	t := clk.Timer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-tok.Done():
		return core.ErrStop
	}
}
