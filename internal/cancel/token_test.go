package cancel

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestSignalRunsHandlersOnce(t *testing.T) {
	tok := New(context.Background())
	var calls int32
	var order []int
	tok.OnStop(func() { atomic.AddInt32(&calls, 1); order = append(order, 1) })
	tok.OnStop(func() { atomic.AddInt32(&calls, 1); order = append(order, 2) })

	tok.Signal()
	tok.Signal()

	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Fatalf("expected 2 handler calls, got %d", got)
	}
	if len(order) != 2 || order[0] != 1 || order[1] != 2 {
		t.Fatalf("unexpected handler order %v", order)
	}
	if !tok.Stopped() {
		t.Fatal("token should be stopped")
	}
	select {
	case <-tok.Done():
	default:
		t.Fatal("done channel should be closed")
	}
}

func TestOnStopAfterSignalIsDeferred(t *testing.T) {
	tok := New(context.Background())
	tok.Signal()

	// A synchronous call would block on gate and never return.
	gate := make(chan struct{})
	ran := make(chan struct{})
	tok.OnStop(func() {
		<-gate
		close(ran)
	})
	close(gate)

	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for late handler")
	}
}

func TestReleaseRemovesHandler(t *testing.T) {
	tok := New(context.Background())
	var called int32
	release := tok.OnStop(func() { atomic.StoreInt32(&called, 1) })
	release()
	tok.Signal()
	if atomic.LoadInt32(&called) != 0 {
		t.Fatal("released handler should not run")
	}
}

func TestParentCancelStopsToken(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	tok := New(parent)
	ran := make(chan struct{})
	tok.OnStop(func() { close(ran) })
	cancel()
	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for parent cancellation")
	}
	if !tok.Stopped() {
		t.Fatal("token should be stopped after parent cancel")
	}
}

func TestFreshTokenPerRun(t *testing.T) {
	first := New(context.Background())
	first.Signal()
	second := New(context.Background())
	if second.Stopped() {
		t.Fatal("new token must not inherit stop state")
	}
}

func TestScopeEndsOnStop(t *testing.T) {
	tok := New(context.Background())
	ctx, cancel := tok.Scope()
	defer cancel()
	tok.Signal()
	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("scope should end on stop")
	}
}
