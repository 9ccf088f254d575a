package sprite

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/tomas-wrobel/scrap-engine-sub002/internal/broadcast"
	"github.com/tomas-wrobel/scrap-engine-sub002/internal/cancel"
	"github.com/tomas-wrobel/scrap-engine-sub002/internal/core"
	"github.com/tomas-wrobel/scrap-engine-sub002/internal/entity"
	"github.com/tomas-wrobel/scrap-engine-sub002/internal/eventbus"
	"github.com/tomas-wrobel/scrap-engine-sub002/internal/host"
	"github.com/tomas-wrobel/scrap-engine-sub002/internal/timer"
)

func newEnv(t *testing.T) (entity.Env, *host.RecordingRenderer) {
	t.Helper()
	bus := eventbus.NewMemoryBus()
	tok := cancel.New(context.Background())
	r := host.NewRecordingRenderer(nil)
	t.Cleanup(func() {
		tok.Signal()
		bus.Close()
	})
	return entity.Env{
		Token:     tok,
		Messages:  broadcast.NewChannel("message", bus, tok, nil),
		Backdrops: broadcast.NewChannel("backdrop", bus, tok, nil),
		Timer:     timer.New(nil),
		Renderer:  r,
	}, r
}

func near(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestMoveFollowsDirection(t *testing.T) {
	env, r := newEnv(t)
	s := New(env, "s1", "cat", Options{})
	if err := s.Move(10); err != nil {
		t.Fatalf("move: %v", err)
	}
	if !near(s.X(), 10) || !near(s.Y(), 0) {
		t.Fatalf("unexpected position %v,%v", s.X(), s.Y())
	}
	s.PointInDirection(0)
	s.Move(5)
	if !near(s.X(), 10) || !near(s.Y(), 5) {
		t.Fatalf("unexpected position %v,%v", s.X(), s.Y())
	}
	snap, ok := r.Latest("s1")
	if !ok || !near(snap.Y, 5) || snap.Direction != 0 {
		t.Fatalf("renderer not updated: %+v", snap)
	}
}

func TestTurnWraps(t *testing.T) {
	env, _ := newEnv(t)
	s := New(env, "s1", "cat", Options{})
	s.TurnRight(180)
	if s.Direction() != -90 {
		t.Fatalf("expected -90, got %v", s.Direction())
	}
	s.TurnLeft(90)
	if s.Direction() != 180 {
		t.Fatalf("expected 180, got %v", s.Direction())
	}
}

func TestPenDrawsLines(t *testing.T) {
	env, r := newEnv(t)
	s := New(env, "s1", "cat", Options{})
	s.GoTo(1, 1)
	if len(r.Lines()) != 0 {
		t.Fatal("pen up should not draw")
	}
	s.PenDown()
	s.SetPenColor("red")
	s.GoTo(4, 5)
	s.ChangeY(1)
	lines := r.Lines()
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	if lines[0].From != (host.Point{X: 1, Y: 1}) || lines[0].To != (host.Point{X: 4, Y: 5}) || lines[0].Color != "red" {
		t.Fatalf("unexpected line %+v", lines[0])
	}
	s.Stamp()
	if r.Stamps() != 1 {
		t.Fatal("stamp not drawn")
	}
}

func TestGlideReachesTarget(t *testing.T) {
	env, _ := newEnv(t)
	s := New(env, "s1", "cat", Options{})
	start := time.Now()
	if err := s.Glide(0.05, 30, -20); err != nil {
		t.Fatalf("glide: %v", err)
	}
	if time.Since(start) < 50*time.Millisecond {
		t.Fatal("glide finished early")
	}
	if s.X() != 30 || s.Y() != -20 {
		t.Fatalf("unexpected end position %v,%v", s.X(), s.Y())
	}
}

func TestGlideStops(t *testing.T) {
	env, _ := newEnv(t)
	s := New(env, "s1", "cat", Options{})
	res := make(chan error, 1)
	go func() { res <- s.Glide(10, 100, 0) }()
	time.Sleep(30 * time.Millisecond)
	env.Token.Signal()
	if err := <-res; !core.IsStop(err) {
		t.Fatalf("expected ErrStop, got %v", err)
	}
	if x := s.X(); x <= 0 || x >= 100 {
		t.Fatalf("expected a partial glide, got x=%v", x)
	}
}

func TestSayForClearsBubble(t *testing.T) {
	env, _ := newEnv(t)
	s := New(env, "s1", "cat", Options{})
	if err := s.SayFor("hi", 0.01); err != nil {
		t.Fatalf("say for: %v", err)
	}
	if text, _ := s.Bubble(); text != "" {
		t.Fatalf("bubble not cleared: %q", text)
	}
}

func TestSayForClearsBubbleOnStop(t *testing.T) {
	env, _ := newEnv(t)
	s := New(env, "s1", "cat", Options{})
	res := make(chan error, 1)
	go func() { res <- s.ThinkFor("hmm", 10) }()
	deadline := time.Now().Add(time.Second)
	for {
		if text, thinking := s.Bubble(); text == "hmm" && thinking {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("bubble never shown")
		}
		time.Sleep(time.Millisecond)
	}
	env.Token.Signal()
	if err := <-res; !core.IsStop(err) {
		t.Fatalf("expected ErrStop, got %v", err)
	}
	deadline = time.Now().Add(time.Second)
	for {
		if text, _ := s.Bubble(); text == "" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("bubble left after stop")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestNewerBubbleSurvivesOldTimeout(t *testing.T) {
	env, _ := newEnv(t)
	s := New(env, "s1", "cat", Options{})
	done := make(chan error, 1)
	go func() { done <- s.SayFor("first", 0.02) }()
	time.Sleep(5 * time.Millisecond)
	s.Say("second")
	<-done
	if text, _ := s.Bubble(); text != "second" {
		t.Fatalf("expected the newer bubble, got %q", text)
	}
}

func TestCostumes(t *testing.T) {
	env, _ := newEnv(t)
	s := New(env, "s1", "cat", Options{Costumes: []string{"a", "b"}, Sounds: []string{"meow"}})
	s.NextCostume()
	if name, n := s.Costume(); name != "b" || n != 2 {
		t.Fatalf("unexpected costume %s %d", name, n)
	}
	s.NextCostume()
	if name, _ := s.Costume(); name != "a" {
		t.Fatalf("costumes should wrap, got %s", name)
	}
	if err := s.SwitchCostumeTo("z"); !errors.Is(err, core.ErrAsset) {
		t.Fatalf("expected ErrAsset, got %v", err)
	}
	if n := len(s.Assets()); n != 3 {
		t.Fatalf("expected 3 assets, got %d", n)
	}
}

type registry map[string]core.Entity

func (r registry) Lookup(id string) (core.Entity, error) {
	e, ok := r[id]
	if !ok {
		return nil, core.ErrUnknownEntity
	}
	return e, nil
}

func TestStageLookup(t *testing.T) {
	env, _ := newEnv(t)
	stage := entity.New(env, "stage", "Stage", core.KindStage)
	s := New(env, "s1", "cat", Options{Stage: "stage", Registry: registry{"stage": stage}})
	got, err := s.Stage()
	if err != nil || got.ID() != "stage" {
		t.Fatalf("unexpected stage %v, err %v", got, err)
	}
}

func TestPacedMotionStops(t *testing.T) {
	env, _ := newEnv(t)
	env.Pace = time.Hour
	s := New(env, "s1", "cat", Options{})
	res := make(chan error, 1)
	go func() { res <- s.Move(10) }()
	time.Sleep(5 * time.Millisecond)
	env.Token.Signal()
	if err := <-res; !core.IsStop(err) {
		t.Fatalf("expected ErrStop, got %v", err)
	}
	if s.X() != 0 {
		t.Fatal("paced op ran after stop")
	}
}
