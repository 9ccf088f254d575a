// Package entity implements the behaviour shared by the stage and sprites:
// variables, graphic effects, sounds, event triggers and broadcasts. Every
// operation that user scripts call goes through the entity's wrap.Runner so
// it observes pacing and the program stop signal.
package entity

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/tomas-wrobel/scrap-engine-sub002/internal/blackboard"
	"github.com/tomas-wrobel/scrap-engine-sub002/internal/broadcast"
	"github.com/tomas-wrobel/scrap-engine-sub002/internal/cancel"
	"github.com/tomas-wrobel/scrap-engine-sub002/internal/core"
	"github.com/tomas-wrobel/scrap-engine-sub002/internal/host"
	"github.com/tomas-wrobel/scrap-engine-sub002/internal/timer"
	"github.com/tomas-wrobel/scrap-engine-sub002/internal/wrap"
)

// Script is a user script body or event handler.
type Script func(ctx context.Context) error

// Env carries the services of one program run. Token, Messages, Backdrops and
// Timer are required; the collaborators may be nil.
type Env struct {
	Token     *cancel.Token
	Clock     clock.Clock
	Pace      time.Duration
	Turbo     *atomic.Bool
	Messages  *broadcast.Channel
	Backdrops *broadcast.Channel
	Timer     *timer.Registry
	Renderer  host.Renderer
	Audio     host.AudioPlayer
	Monitor   blackboard.Store
	Logger    *log.Logger
}

// Entity is the common part of the stage and sprites.
type Entity struct {
	id     string
	name   string
	kind   core.Kind
	env    Env
	runner *wrap.Runner
	logger *log.Logger

	ctx     context.Context
	cancel  context.CancelFunc
	release func()
	live    atomic.Bool

	// pubMu orders monitor writes; published holds the last sequence
	// written per variable.
	pubMu     sync.Mutex
	published map[string]uint64

	mu        sync.Mutex
	variables map[string]*Variable
	order     []string
	seq       map[string]uint64
	effects   Effects
	volume    float64
	sounds    []string
	audios    map[uint64]host.Playback
	nextAudio uint64
	triggers  map[string][]Script
	snapshot  func() host.Snapshot
	deleted   bool
}

// New returns an entity bound to env. Its registrations live until Delete or
// the end of the run.
func New(env Env, id, name string, kind core.Kind) *Entity {
	if env.Logger == nil {
		env.Logger = log.Default()
	}
	if env.Clock == nil {
		env.Clock = clock.New()
	}
	ctx, cancel := env.Token.Scope()
	e := &Entity{
		id:        id,
		name:      name,
		kind:      kind,
		env:       env,
		runner:    wrap.NewRunner(env.Token, env.Clock, env.Pace, env.Turbo),
		logger:    env.Logger,
		ctx:       ctx,
		cancel:    cancel,
		variables: make(map[string]*Variable),
		seq:       make(map[string]uint64),
		published: make(map[string]uint64),
		volume:    100,
		audios:    make(map[uint64]host.Playback),
		triggers:  make(map[string][]Script),
	}
	e.release = env.Token.OnStop(e.cleanup)
	return e
}

func (e *Entity) ID() string      { return e.id }
func (e *Entity) Name() string    { return e.name }
func (e *Entity) Kind() core.Kind { return e.kind }

// Runner returns the wrappers bound to this entity.
func (e *Entity) Runner() *wrap.Runner { return e.runner }

// Context is cancelled when the entity is deleted or the run stops.
func (e *Entity) Context() context.Context { return e.ctx }

// Logger returns the entity logger.
func (e *Entity) Logger() *log.Logger { return e.logger }

// SetPace changes the frame delay of paced operations.
func (e *Entity) SetPace(d time.Duration) { e.runner.SetPace(d) }

// SetSnapshot installs the function describing the entity to the renderer.
// Stage and sprite constructors call it.
func (e *Entity) SetSnapshot(fn func() host.Snapshot) {
	e.mu.Lock()
	e.snapshot = fn
	e.mu.Unlock()
}

// BaseSnapshot fills the fields every entity owns.
func (e *Entity) BaseSnapshot() host.Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return host.Snapshot{
		ID:      e.id,
		Name:    e.name,
		Kind:    e.kind,
		Visible: true,
		Effects: e.effects.Map(),
	}
}

// Snapshot returns the current visible state.
func (e *Entity) Snapshot() host.Snapshot {
	e.mu.Lock()
	fn := e.snapshot
	e.mu.Unlock()
	if fn == nil {
		return e.BaseSnapshot()
	}
	return fn()
}

// Render sends the current state to the renderer. Failures are logged.
func (e *Entity) Render() {
	if e.env.Renderer == nil {
		return
	}
	if err := e.env.Renderer.Render(context.Background(), e.Snapshot()); err != nil {
		e.logger.Printf("%s: render: %v", e.name, err)
	}
}

// Renderer returns the run's renderer, possibly nil.
func (e *Entity) Renderer() host.Renderer { return e.env.Renderer }

// Assets lists the assets the entity needs before it is ready.
func (e *Entity) Assets() []host.Asset {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]host.Asset, 0, len(e.sounds))
	for _, s := range e.sounds {
		out = append(out, host.Asset{Kind: host.AssetSound, ID: s})
	}
	return out
}

// Start seeds the variable monitors and draws the first frame.
func (e *Entity) Start(ctx context.Context) error {
	if err := e.seedMonitors(ctx); err != nil {
		return err
	}
	e.Render()
	return nil
}

// seedMonitors writes every variable in one transaction. Later writes are
// published one by one.
func (e *Entity) seedMonitors(ctx context.Context) error {
	e.pubMu.Lock()
	defer e.pubMu.Unlock()
	updates, seqs := e.variableUpdates()
	if e.env.Monitor != nil && len(updates) > 0 {
		if err := e.env.Monitor.Txn(ctx, updates); err != nil {
			return fmt.Errorf("%s: seed monitors: %w", e.name, err)
		}
	}
	for n, seq := range seqs {
		e.published[n] = seq
	}
	e.live.Store(true)
	return nil
}

// Stop releases the transient state of the entity: sounds and anything the
// concrete type adds through cleanup.
func (e *Entity) Stop(ctx context.Context) error {
	e.cleanup()
	return nil
}

func (e *Entity) cleanup() {
	e.stopSounds()
}

// Release ends every subscription and trigger of the entity and stops its
// sounds. Monitor entries stay in the store, so a host can still read the
// final values after the run. Scripts already running keep running until
// they return or the run stops.
func (e *Entity) Release() {
	e.detach()
}

// Delete releases the entity and also drops its variable monitors.
func (e *Entity) Delete() {
	names, first := e.detach()
	if !first || e.env.Monitor == nil {
		return
	}
	e.pubMu.Lock()
	defer e.pubMu.Unlock()
	if !e.live.Swap(false) {
		return
	}
	for _, n := range names {
		if err := e.env.Monitor.Delete(context.Background(), blackboard.Key(e.name, n)); err != nil {
			e.logger.Printf("%s: monitor delete %s: %v", e.name, n, err)
		}
	}
}

// detach reports the declared variables and whether this call did the work.
func (e *Entity) detach() ([]string, bool) {
	e.mu.Lock()
	if e.deleted {
		e.mu.Unlock()
		return nil, false
	}
	e.deleted = true
	e.triggers = make(map[string][]Script)
	names := append([]string(nil), e.order...)
	e.mu.Unlock()

	e.cancel()
	e.release()
	e.stopSounds()
	return names, true
}

// Deleted reports whether Delete or Release was called.
func (e *Entity) Deleted() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.deleted
}

// Wait pauses the calling script.
func (e *Entity) Wait(seconds float64) error {
	return e.runner.Sleep(Seconds(seconds))
}

// StopAll stops the whole program. The calling script ends with ErrStop.
func (e *Entity) StopAll() error {
	e.env.Token.Signal()
	return core.ErrStop
}

// Seconds converts block seconds to a duration.
func Seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

var _ core.Entity = (*Entity)(nil)

// BackdropChannel returns the channel announcing backdrop switches.
func (e *Entity) BackdropChannel() *broadcast.Channel { return e.env.Backdrops }
