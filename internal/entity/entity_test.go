package entity

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/tomas-wrobel/scrap-engine-sub002/internal/blackboard"
	"github.com/tomas-wrobel/scrap-engine-sub002/internal/broadcast"
	"github.com/tomas-wrobel/scrap-engine-sub002/internal/cancel"
	"github.com/tomas-wrobel/scrap-engine-sub002/internal/core"
	"github.com/tomas-wrobel/scrap-engine-sub002/internal/eventbus"
	"github.com/tomas-wrobel/scrap-engine-sub002/internal/host"
	"github.com/tomas-wrobel/scrap-engine-sub002/internal/timer"
)

type fixture struct {
	env      Env
	renderer *host.RecordingRenderer
	catalog  *host.Catalog
	store    *blackboard.MemoryStore
}

func newFixture(t *testing.T, clk clock.Clock) *fixture {
	t.Helper()
	bus := eventbus.NewMemoryBus()
	store := blackboard.NewMemoryStore()
	tok := cancel.New(context.Background())
	if clk == nil {
		clk = clock.New()
	}
	f := &fixture{
		renderer: host.NewRecordingRenderer(nil),
		catalog:  host.NewCatalog(nil),
		store:    store,
	}
	f.env = Env{
		Token:     tok,
		Clock:     clk,
		Messages:  broadcast.NewChannel("message", bus, tok, nil),
		Backdrops: broadcast.NewChannel("backdrop", bus, tok, nil),
		Timer:     timer.New(clk),
		Renderer:  f.renderer,
		Audio:     f.catalog,
		Monitor:   store,
	}
	t.Cleanup(func() {
		tok.Signal()
		bus.Close()
		store.Close()
	})
	return f
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timeout waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestInvalidWriteLeavesValue(t *testing.T) {
	f := newFixture(t, nil)
	e := New(f.env, "s1", "cat", core.KindSprite)
	if err := e.DeclareVariable("score", TypeNumber); err != nil {
		t.Fatalf("declare: %v", err)
	}
	if err := e.SetVariable("score", 3); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := e.SetVariable("score", "three"); !errors.Is(err, core.ErrInvalidVariableType) {
		t.Fatalf("expected ErrInvalidVariableType, got %v", err)
	}
	if v, _ := e.Variable("score"); v != 3.0 {
		t.Fatalf("value changed to %v", v)
	}
}

func TestMultiTypeVariable(t *testing.T) {
	f := newFixture(t, nil)
	e := New(f.env, "s1", "cat", core.KindSprite)
	e.DeclareVariable("answer", TypeString, TypeNumber)
	if v, _ := e.Variable("answer"); v != "" {
		t.Fatalf("default should come from the first type, got %v", v)
	}
	if err := e.SetVariable("answer", 42); err != nil {
		t.Fatalf("number write: %v", err)
	}
	if err := e.SetVariable("answer", "yes"); err != nil {
		t.Fatalf("string write: %v", err)
	}
	if err := e.SetVariable("answer", true); !errors.Is(err, core.ErrInvalidVariableType) {
		t.Fatalf("boolean write should fail, got %v", err)
	}
	if err := e.ChangeVariable("answer", 1); !errors.Is(err, core.ErrNotIncrementable) {
		t.Fatalf("string value is not incrementable, got %v", err)
	}
}

func TestChangeVariable(t *testing.T) {
	f := newFixture(t, nil)
	e := New(f.env, "s1", "cat", core.KindSprite)
	e.DeclareVariable("n", TypeNumber)
	e.DeclareVariable("flag", TypeBoolean)
	if err := e.ChangeVariable("n", 2.5); err != nil {
		t.Fatalf("change: %v", err)
	}
	if v, _ := e.Variable("n"); v != 2.5 {
		t.Fatalf("expected 2.5, got %v", v)
	}
	if err := e.ChangeVariable("flag", 1); !errors.Is(err, core.ErrNotIncrementable) {
		t.Fatalf("expected ErrNotIncrementable, got %v", err)
	}
	if err := e.ChangeVariable("missing", 1); !errors.Is(err, core.ErrUnknownVariable) {
		t.Fatalf("expected ErrUnknownVariable, got %v", err)
	}
}

func TestRedeclareOverwrites(t *testing.T) {
	f := newFixture(t, nil)
	e := New(f.env, "s1", "cat", core.KindSprite)
	e.DeclareVariable("x", TypeNumber)
	e.SetVariable("x", 5)
	e.DeclareVariable("x", TypeBoolean)
	if v, _ := e.Variable("x"); v != false {
		t.Fatalf("expected redeclared default, got %v", v)
	}
	if names := e.Variables(); len(names) != 1 {
		t.Fatalf("expected one variable, got %v", names)
	}
}

func TestListOperations(t *testing.T) {
	f := newFixture(t, nil)
	e := New(f.env, "s1", "cat", core.KindSprite)
	e.DeclareVariable("items", TypeList)
	e.AddToList("items", "a")
	e.AddToList("items", 2.0)
	if n, _ := e.LengthOfList("items"); n != 2 {
		t.Fatalf("expected length 2, got %d", n)
	}
	if v, _ := e.ItemOfList("items", 1); v != "a" {
		t.Fatalf("unexpected first item %v", v)
	}
	if _, err := e.ItemOfList("items", 3); err == nil {
		t.Fatal("expected out of range error")
	}
}

func TestMonitorFollowsVisibility(t *testing.T) {
	f := newFixture(t, nil)
	e := New(f.env, "s1", "cat", core.KindSprite)
	e.DeclareVariable("score", TypeNumber)
	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	key := blackboard.Key("cat", "score")
	if upd, _, err := f.store.Get(context.Background(), key); err != nil || upd.Visible {
		t.Fatalf("seeded monitor %+v, err %v", upd, err)
	}
	e.SetVariable("score", 7)
	if err := e.ShowVariable("score"); err != nil {
		t.Fatalf("show: %v", err)
	}
	upd, ver, _ := f.store.Get(context.Background(), key)
	if !upd.Visible || upd.Value != 7.0 || ver != 3 {
		t.Fatalf("unexpected monitor %+v version %d", upd, ver)
	}
	if v, _ := e.Variable("score"); v != 7.0 {
		t.Fatalf("show changed the value to %v", v)
	}
}

func TestEffectsRanges(t *testing.T) {
	f := newFixture(t, nil)
	e := New(f.env, "s1", "cat", core.KindSprite)
	e.SetEffect(EffectGhost, 150)
	e.SetEffect(EffectColor, 250)
	e.ChangeEffect(EffectBrightness, -300)
	if v, _ := e.Effect(EffectGhost); v != 100 {
		t.Fatalf("ghost not clamped: %v", v)
	}
	if v, _ := e.Effect(EffectColor); v != 50 {
		t.Fatalf("color not wrapped: %v", v)
	}
	if v, _ := e.Effect(EffectBrightness); v != -100 {
		t.Fatalf("brightness not clamped: %v", v)
	}
	if err := e.SetEffect("blur", 1); !errors.Is(err, ErrUnknownEffect) {
		t.Fatalf("expected ErrUnknownEffect, got %v", err)
	}
	e.ClearEffects()
	if len(e.Snapshot().Effects) != 0 {
		t.Fatal("effects not cleared")
	}
}

func TestPlaySoundUntilDone(t *testing.T) {
	f := newFixture(t, nil)
	f.catalog.Add(host.AssetSound, "meow", 10*time.Millisecond)
	e := New(f.env, "s1", "cat", core.KindSprite)
	e.AddSound("meow")

	start := time.Now()
	if err := e.PlaySoundUntilDone("meow"); err != nil {
		t.Fatalf("play: %v", err)
	}
	if time.Since(start) < 10*time.Millisecond {
		t.Fatal("returned before the sound ended")
	}
	waitFor(t, "handle removal", func() bool { return e.PlayingSounds() == 0 })

	if err := e.PlaySound("bark"); !errors.Is(err, core.ErrAsset) {
		t.Fatalf("expected ErrAsset, got %v", err)
	}
}

func TestStopEndsSounds(t *testing.T) {
	f := newFixture(t, nil)
	f.catalog.Add(host.AssetSound, "song", time.Hour)
	e := New(f.env, "s1", "cat", core.KindSprite)
	e.AddSound("song")
	if err := e.PlaySound("song"); err != nil {
		t.Fatalf("play: %v", err)
	}
	if e.PlayingSounds() != 1 {
		t.Fatalf("expected one live sound, got %d", e.PlayingSounds())
	}

	res := make(chan error, 1)
	go func() { res <- e.PlaySoundUntilDone("song") }()
	waitFor(t, "second sound", func() bool { return e.PlayingSounds() == 2 })
	f.env.Token.Signal()

	if err := <-res; !core.IsStop(err) {
		t.Fatalf("expected ErrStop, got %v", err)
	}
	waitFor(t, "sounds stopped", func() bool { return e.PlayingSounds() == 0 })
}

func TestHandleEventRunsMatchingScripts(t *testing.T) {
	f := newFixture(t, nil)
	e := New(f.env, "s1", "cat", core.KindSprite)
	var space, anyKey, clicks atomic.Int32
	e.WhenKeyPressed("space", func(ctx context.Context) error { space.Add(1); return nil })
	e.WhenKeyPressed(AnyKey, func(ctx context.Context) error { anyKey.Add(1); return nil })
	e.WhenClicked(func(ctx context.Context) error { clicks.Add(1); return nil })

	e.HandleEvent(core.Event{Type: EventKey, Payload: map[string]interface{}{"key": "space"}})
	e.HandleEvent(core.Event{Type: EventKey, Payload: map[string]interface{}{"key": "a"}})
	e.HandleEvent(core.Event{Type: EventClick, Payload: map[string]interface{}{"target": "dog"}})
	e.HandleEvent(core.Event{Type: EventClick, Payload: map[string]interface{}{"target": "s1"}})

	waitFor(t, "scripts", func() bool { return space.Load() == 1 && anyKey.Load() == 2 && clicks.Load() == 1 })
	if err := e.HandleEvent(core.Event{Type: "wheel"}); err == nil {
		t.Fatal("expected error for unsupported event")
	}
}

func TestBroadcastWaitBetweenEntities(t *testing.T) {
	f := newFixture(t, nil)
	sender := New(f.env, "stage", "Stage", core.KindStage)
	receiver := New(f.env, "s1", "cat", core.KindSprite)
	receiver.DeclareVariable("hits", TypeNumber)
	err := receiver.WhenReceiveMessage("go", func(ctx context.Context) error {
		if err := receiver.Wait(0.01); err != nil {
			return err
		}
		return receiver.ChangeVariable("hits", 1)
	})
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	if err := sender.BroadcastMessageWait("go"); err != nil {
		t.Fatalf("broadcast: %v", err)
	}
	if v, _ := receiver.Variable("hits"); v != 1.0 {
		t.Fatalf("expected the listener to finish before the wait, got %v", v)
	}
}

func TestDeleteReleasesSubscriptions(t *testing.T) {
	f := newFixture(t, nil)
	e := New(f.env, "s1", "cat", core.KindSprite)
	e.WhenReceiveMessage("go", func(ctx context.Context) error { return nil })
	if len(f.env.Messages.Listeners("go")) != 1 {
		t.Fatal("listener not registered")
	}
	e.Delete()
	waitFor(t, "listener removal", func() bool { return len(f.env.Messages.Listeners("go")) == 0 })
	if !e.Deleted() {
		t.Fatal("entity should report deletion")
	}
}

func TestWhenTimerElapsed(t *testing.T) {
	mock := clock.NewMock()
	f := newFixture(t, mock)
	e := New(f.env, "s1", "cat", core.KindSprite)
	var fired atomic.Int32
	e.WhenTimerElapsed(1, func(ctx context.Context) error { fired.Add(1); return nil })

	mock.Add(999 * time.Millisecond)
	if fired.Load() != 0 {
		t.Fatal("fired early")
	}
	mock.Add(time.Millisecond)
	waitFor(t, "timer trigger", func() bool { return fired.Load() == 1 })
	if e.Timer() != 1 {
		t.Fatalf("unexpected timer %v", e.Timer())
	}
}

func TestStopAllSignalsToken(t *testing.T) {
	f := newFixture(t, nil)
	e := New(f.env, "s1", "cat", core.KindSprite)
	if err := e.StopAll(); !core.IsStop(err) {
		t.Fatalf("expected ErrStop, got %v", err)
	}
	if !f.env.Token.Stopped() {
		t.Fatal("token not stopped")
	}
	if err := e.Wait(1); !core.IsStop(err) {
		t.Fatalf("wait after stop should fail, got %v", err)
	}
}

func TestReleaseKeepsMonitorsDeleteDropsThem(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	kept := New(f.env, "s1", "cat", core.KindSprite)
	gone := New(f.env, "s2", "dog", core.KindSprite)
	for _, e := range []*Entity{kept, gone} {
		if err := e.DeclareVariable("n", TypeNumber); err != nil {
			t.Fatalf("declare: %v", err)
		}
		if err := e.Start(ctx); err != nil {
			t.Fatalf("start: %v", err)
		}
	}

	kept.Release()
	gone.Delete()
	if !kept.Deleted() || !gone.Deleted() {
		t.Fatal("both entities should be detached")
	}
	if _, _, err := f.store.Get(ctx, blackboard.Key("cat", "n")); err != nil {
		t.Fatalf("release dropped the monitor: %v", err)
	}
	if _, _, err := f.store.Get(ctx, blackboard.Key("dog", "n")); !errors.Is(err, blackboard.ErrNotFound) {
		t.Fatalf("delete kept the monitor: %v", err)
	}
}

func TestConcurrentWritesLeaveMonitorCurrent(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	e := New(f.env, "s1", "cat", core.KindSprite)
	e.DeclareVariable("n", TypeNumber)
	if err := e.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(v int) {
			defer wg.Done()
			e.SetVariable("n", v)
		}(i)
	}
	wg.Wait()

	want, _ := e.Variable("n")
	upd, _, err := f.store.Get(ctx, blackboard.Key("cat", "n"))
	if err != nil || upd.Value != want {
		t.Fatalf("monitor holds %v, entity holds %v (err %v)", upd.Value, want, err)
	}
}
