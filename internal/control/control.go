// Package control implements the looping and waiting blocks. Every iteration
// yields one frame and observes the stop signal, so a forever loop can always
// be terminated.
package control

import (
	"context"
	"time"

	"github.com/tomas-wrobel/scrap-engine-sub002/internal/wrap"
)

// Body is one loop iteration.
type Body func(ctx context.Context) error

// Condition is evaluated once per frame.
type Condition func() bool

// Wait pauses for d or until stop.
func Wait(r *wrap.Runner, d time.Duration) error {
	return r.Sleep(d)
}

// WaitUntil yields frames until cond holds.
func WaitUntil(r *wrap.Runner, cond Condition) error {
	for !cond() {
		if err := r.Yield(); err != nil {
			return err
		}
	}
	return nil
}

// Repeat runs body n times. A non-positive n runs nothing.
func Repeat(r *wrap.Runner, n int, body Body) error {
	for i := 0; i < n; i++ {
		if err := iterate(r, body); err != nil {
			return err
		}
	}
	return nil
}

// RepeatUntil runs body until cond holds, checking before each iteration.
func RepeatUntil(r *wrap.Runner, cond Condition, body Body) error {
	for !cond() {
		if err := iterate(r, body); err != nil {
			return err
		}
	}
	return nil
}

// Forever runs body until it fails or the program stops. It never returns nil.
func Forever(r *wrap.Runner, body Body) error {
	for {
		if err := iterate(r, body); err != nil {
			return err
		}
	}
}

func iterate(r *wrap.Runner, body Body) error {
	if err := r.Interruptible(body); err != nil {
		return err
	}
	return r.Yield()
}
