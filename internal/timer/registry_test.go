package timer

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
)

func expectNoFire(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
		t.Fatal("callback fired early")
	case <-time.After(20 * time.Millisecond):
	}
}

func expectFire(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for callback")
	}
}

func TestWhenElapsedFiresOnce(t *testing.T) {
	mock := clock.NewMock()
	r := New(mock)
	fired := make(chan struct{}, 4)
	r.WhenElapsed(time.Second, func() { fired <- struct{}{} })

	mock.Add(999 * time.Millisecond)
	expectNoFire(t, fired)
	mock.Add(time.Millisecond)
	expectFire(t, fired)
	mock.Add(5 * time.Second)
	expectNoFire(t, fired)
	if r.Pending() != 0 {
		t.Fatalf("expected no pending entries, got %d", r.Pending())
	}
}

func TestResetReschedulesFromNewReference(t *testing.T) {
	mock := clock.NewMock()
	r := New(mock)
	fired := make(chan struct{}, 4)
	r.WhenElapsed(1000*time.Millisecond, func() { fired <- struct{}{} })

	mock.Add(700 * time.Millisecond)
	r.Reset()

	// The original 1000ms mark passes without firing.
	mock.Add(300 * time.Millisecond)
	expectNoFire(t, fired)
	mock.Add(699 * time.Millisecond)
	expectNoFire(t, fired)
	// 1000ms after the reset, 1700ms after registration.
	mock.Add(time.Millisecond)
	expectFire(t, fired)

	mock.Add(3 * time.Second)
	expectNoFire(t, fired)
}

func TestResetIsNotCumulative(t *testing.T) {
	mock := clock.NewMock()
	r := New(mock)
	fired := make(chan struct{}, 4)
	r.WhenElapsed(500*time.Millisecond, func() { fired <- struct{}{} })

	mock.Add(400 * time.Millisecond)
	r.Reset()
	mock.Add(400 * time.Millisecond)
	r.Reset()
	mock.Add(499 * time.Millisecond)
	expectNoFire(t, fired)
	mock.Add(time.Millisecond)
	expectFire(t, fired)
}

func TestRegistrationUsesSharedReference(t *testing.T) {
	mock := clock.NewMock()
	r := New(mock)
	mock.Add(300 * time.Millisecond)

	fired := make(chan struct{}, 1)
	r.WhenElapsed(time.Second, func() { fired <- struct{}{} })
	mock.Add(699 * time.Millisecond)
	expectNoFire(t, fired)
	mock.Add(time.Millisecond)
	expectFire(t, fired)
}

func TestCancelAndClose(t *testing.T) {
	mock := clock.NewMock()
	r := New(mock)
	fired := make(chan struct{}, 4)
	cancel := r.WhenElapsed(time.Second, func() { fired <- struct{}{} })
	r.WhenElapsed(2*time.Second, func() { fired <- struct{}{} })
	cancel()
	r.Close()

	mock.Add(5 * time.Second)
	expectNoFire(t, fired)
	r.WhenElapsed(time.Millisecond, func() { fired <- struct{}{} })
	mock.Add(time.Second)
	expectNoFire(t, fired)
}

func TestElapsed(t *testing.T) {
	mock := clock.NewMock()
	r := New(mock)
	mock.Add(1500 * time.Millisecond)
	if got := r.Elapsed(); got != 1500*time.Millisecond {
		t.Fatalf("expected 1.5s elapsed, got %v", got)
	}
	r.Reset()
	if got := r.Elapsed(); got != 0 {
		t.Fatalf("expected 0 after reset, got %v", got)
	}
}
