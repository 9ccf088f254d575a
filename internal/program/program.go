// Package program runs one block program: a stage and its sprites sharing a
// stop signal, a message bus, a timer and the host collaborators.
package program

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/tomas-wrobel/scrap-engine-sub002/internal/blackboard"
	"github.com/tomas-wrobel/scrap-engine-sub002/internal/broadcast"
	"github.com/tomas-wrobel/scrap-engine-sub002/internal/cancel"
	"github.com/tomas-wrobel/scrap-engine-sub002/internal/core"
	"github.com/tomas-wrobel/scrap-engine-sub002/internal/entity"
	"github.com/tomas-wrobel/scrap-engine-sub002/internal/eventbus"
	"github.com/tomas-wrobel/scrap-engine-sub002/internal/host"
	"github.com/tomas-wrobel/scrap-engine-sub002/internal/sprite"
	"github.com/tomas-wrobel/scrap-engine-sub002/internal/stage"
	"github.com/tomas-wrobel/scrap-engine-sub002/internal/timer"
)

// Bus topics a host uses to drive a run.
const (
	StopTopic   = "program.stop"
	InputPrefix = "input."
)

// DefaultPace is the frame delay of paced operations.
const DefaultPace = time.Second / 60

// Config holds the collaborators and options of a run. Zero fields get
// in-process defaults.
type Config struct {
	Pace     time.Duration
	Turbo    bool
	Clock    clock.Clock
	Bus      eventbus.Bus
	Monitor  blackboard.Store
	Renderer host.Renderer
	Assets   host.AssetLoader
	Audio    host.AudioPlayer
	Logger   *log.Logger
}

// StageSpec describes the stage. Init registers its scripts and variables.
type StageSpec struct {
	ID        string
	Name      string
	Backdrops []string
	Sounds    []string
	Init      func(s *stage.Stage) error
}

// SpriteSpec describes one sprite. The ID defaults to the name.
type SpriteSpec struct {
	ID      string
	Name    string
	Options sprite.Options
	Init    func(s *sprite.Sprite) error
}

// Program is a single run. It cannot be restarted; build a new one instead.
type Program struct {
	cfg    Config
	logger *log.Logger

	token     *cancel.Token
	turbo     atomic.Bool
	bus       eventbus.Bus
	monitor   blackboard.Store
	owned     []func() error
	messages  *broadcast.Channel
	backdrops *broadcast.Channel
	timer     *timer.Registry
	registry  *Registry
	lifecycle *Lifecycle

	stage       *stage.Stage
	stageInit   func(*stage.Stage) error
	sprites     []*sprite.Sprite
	spriteInits []func(*sprite.Sprite) error

	closeOnce sync.Once
	closeErr  error
}

// New builds the entities of a run. Scripts are registered later by Run.
func New(cfg Config, st StageSpec, sprites ...SpriteSpec) (*Program, error) {
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.Pace == 0 {
		cfg.Pace = DefaultPace
	}
	p := &Program{
		cfg:      cfg,
		logger:   cfg.Logger,
		token:    cancel.New(context.Background()),
		registry: NewRegistry(),
	}
	p.turbo.Store(cfg.Turbo)

	p.bus = cfg.Bus
	if p.bus == nil {
		bus := eventbus.NewMemoryBus()
		p.bus = bus
		p.owned = append(p.owned, bus.Close)
	}
	p.monitor = cfg.Monitor
	if p.monitor == nil {
		store := blackboard.NewMemoryStore()
		p.monitor = store
		p.owned = append(p.owned, store.Close)
	}
	p.messages = broadcast.NewChannel("message", p.bus, p.token, p.logger)
	p.backdrops = broadcast.NewChannel("backdrop", p.bus, p.token, p.logger)
	p.timer = timer.New(cfg.Clock)
	p.token.OnStop(p.timer.Close)

	env := entity.Env{
		Token:     p.token,
		Clock:     cfg.Clock,
		Pace:      cfg.Pace,
		Turbo:     &p.turbo,
		Messages:  p.messages,
		Backdrops: p.backdrops,
		Timer:     p.timer,
		Renderer:  cfg.Renderer,
		Audio:     cfg.Audio,
		Monitor:   p.monitor,
		Logger:    p.logger,
	}

	if st.ID == "" {
		st.ID = "stage"
	}
	if st.Name == "" {
		st.Name = "Stage"
	}
	p.stage = stage.New(env, st.ID, st.Name, st.Backdrops, st.Sounds)
	p.stageInit = st.Init
	if err := p.registry.Add(p.stage); err != nil {
		return nil, p.abort(err)
	}
	for _, spec := range sprites {
		if spec.Name == "" {
			return nil, p.abort(errors.New("sprite without a name"))
		}
		if spec.ID == "" {
			spec.ID = spec.Name
		}
		opts := spec.Options
		opts.Stage = p.stage.ID()
		opts.Registry = p.registry
		s := sprite.New(env, spec.ID, spec.Name, opts)
		if err := p.registry.Add(s); err != nil {
			return nil, p.abort(err)
		}
		p.sprites = append(p.sprites, s)
		p.spriteInits = append(p.spriteInits, spec.Init)
	}

	p.lifecycle = p.newLifecycle()
	if err := p.lifecycle.ValidateTransitions(); err != nil {
		return nil, p.abort(err)
	}
	return p, nil
}

func (p *Program) abort(err error) error {
	return multierr.Append(err, p.Close())
}

func (p *Program) newLifecycle() *Lifecycle {
	l := NewLifecycle("program", StateCreated, p.bus, p.logger)
	l.AddTransition(Transition{From: StateCreated, Step: StepLoad, To: StateLoading})
	// A stopped run never becomes ready or running.
	l.AddTransition(Transition{From: StateLoading, Step: StepLoaded, To: StateReady, Action: p.running})
	l.AddTransition(Transition{From: StateReady, Step: StepFlag, To: StateRunning, Action: p.running})
	for _, s := range []State{StateCreated, StateLoading, StateReady, StateRunning} {
		l.AddTransition(Transition{From: s, Step: StepStop, To: StateStopped})
	}
	for _, s := range []State{StateCreated, StateStopped} {
		l.AddTransition(Transition{From: s, Step: StepClose, To: StateClosed})
	}
	l.AddStateActions(StateRunning, StateActions{
		OnEnter: func(ctx context.Context) error { return p.GreenFlag() },
	})
	l.AddStateActions(StateStopped, StateActions{
		OnEnter: func(ctx context.Context) error { return p.registry.StopAll(ctx) },
	})
	return l
}

// Run loads assets, runs the init callbacks, fires the green flag and blocks
// until the program is stopped or ctx ends. A stop is not an error.
func (p *Program) Run(ctx context.Context) error {
	if err := p.lifecycle.Trigger(ctx, StepLoad); err != nil {
		return err
	}
	defer context.AfterFunc(ctx, p.token.Signal)()

	if err := p.start(); err != nil {
		p.token.Signal()
		_ = p.lifecycle.Trigger(context.Background(), StepStop)
		if p.token.Stopped() && (core.IsStop(err) || errors.Is(err, context.Canceled)) {
			return nil
		}
		return err
	}
	if err := p.lifecycle.Trigger(ctx, StepFlag); err != nil {
		if p.token.Stopped() {
			return nil
		}
		return err
	}
	p.logger.Printf("program running with %d sprites", len(p.sprites))

	<-p.token.Done()
	// Close may have moved the lifecycle on already.
	if err := p.lifecycle.Trigger(context.Background(), StepStop); err != nil && !errors.Is(err, ErrInvalidTransition) {
		return err
	}
	return nil
}

func (p *Program) start() error {
	tctx := p.token.Context()
	if err := p.load(tctx); err != nil {
		return err
	}
	if err := p.init(); err != nil {
		return err
	}
	if err := p.listen(tctx); err != nil {
		return err
	}
	g, gctx := errgroup.WithContext(tctx)
	for _, m := range p.registry.Members() {
		m := m
		g.Go(func() error { return m.Start(gctx) })
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return p.lifecycle.Trigger(tctx, StepLoaded)
}

func (p *Program) running(ctx context.Context) error {
	if p.token.Stopped() {
		return core.ErrStop
	}
	return nil
}

// load fetches every asset concurrently. The first failure cancels the rest.
func (p *Program) load(ctx context.Context) error {
	if p.cfg.Assets == nil {
		return nil
	}
	g, gctx := errgroup.WithContext(ctx)
	for _, m := range p.registry.Members() {
		for _, a := range m.Assets() {
			name, a := m.Name(), a
			g.Go(func() error {
				if err := p.cfg.Assets.Load(gctx, a.Kind, a.ID); err != nil {
					return fmt.Errorf("%s: load %s %q: %w", name, a.Kind, a.ID, err)
				}
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		p.logger.Println("asset loading failed", err)
		return err
	}
	return nil
}

func (p *Program) init() error {
	if p.stageInit != nil {
		if err := p.stageInit(p.stage); err != nil {
			return fmt.Errorf("init %s: %w", p.stage.Name(), err)
		}
	}
	for i, s := range p.sprites {
		if fn := p.spriteInits[i]; fn != nil {
			if err := fn(s); err != nil {
				return fmt.Errorf("init %s: %w", s.Name(), err)
			}
		}
	}
	return nil
}

// listen routes input events and the external stop topic for the run.
func (p *Program) listen(ctx context.Context) error {
	input, err := p.bus.SubscribePattern(ctx, InputPrefix+"*")
	if err != nil {
		return fmt.Errorf("subscribe input: %w", err)
	}
	stop, err := p.bus.Subscribe(ctx, StopTopic)
	if err != nil {
		return fmt.Errorf("subscribe stop: %w", err)
	}
	go func() {
		for ev := range input {
			if err := p.registry.Dispatch(ev); err != nil {
				p.logger.Println("input dispatch error", err)
			}
		}
	}()
	go func() {
		for range stop {
			p.logger.Println("stop requested over the bus")
			p.Stop()
		}
	}()
	return nil
}

// GreenFlag starts every "when flag clicked" script.
func (p *Program) GreenFlag() error {
	if p.token.Stopped() {
		return core.ErrStop
	}
	return p.registry.Dispatch(core.Event{
		ID:        uuid.NewString(),
		Type:      entity.EventFlag,
		Source:    "program",
		Timestamp: time.Now(),
	})
}

// PressKey publishes a key press on the input topic.
func (p *Program) PressKey(ctx context.Context, key string) error {
	return p.bus.Publish(ctx, InputPrefix+"key."+key, core.Event{
		ID:        uuid.NewString(),
		Type:      entity.EventKey,
		Source:    "host",
		Timestamp: time.Now(),
		Payload:   map[string]interface{}{"key": key},
	})
}

// Click publishes a click on the entity with the given id or name.
func (p *Program) Click(ctx context.Context, target string) error {
	return p.bus.Publish(ctx, InputPrefix+"click."+target, core.Event{
		ID:        uuid.NewString(),
		Type:      entity.EventClick,
		Source:    "host",
		Timestamp: time.Now(),
		Payload:   map[string]interface{}{"target": target},
	})
}

// Stop signals the run. It is safe to call any number of times.
func (p *Program) Stop() {
	p.token.Signal()
}

// Stopped reports whether the run was stopped.
func (p *Program) Stopped() bool { return p.token.Stopped() }

// SetTurbo toggles frame pacing for every entity.
func (p *Program) SetTurbo(on bool) { p.turbo.Store(on) }

// State returns the lifecycle state.
func (p *Program) State() State { return p.lifecycle.State() }

// Stage returns the stage.
func (p *Program) Stage() *stage.Stage { return p.stage }

// Sprite returns the sprite with the given name.
func (p *Program) Sprite(name string) (*sprite.Sprite, error) {
	for _, s := range p.sprites {
		if s.Name() == name {
			return s, nil
		}
	}
	return nil, fmt.Errorf("%w: sprite %q", core.ErrUnknownEntity, name)
}

// Sprites returns the sprites in declaration order.
func (p *Program) Sprites() []*sprite.Sprite {
	return append([]*sprite.Sprite(nil), p.sprites...)
}

// Registry returns the entity registry of the run.
func (p *Program) Registry() *Registry { return p.registry }

// Monitor returns the variable monitor store.
func (p *Program) Monitor() blackboard.Store { return p.monitor }

// Bus returns the bus of the run.
func (p *Program) Bus() eventbus.Bus { return p.bus }

// Close stops the run, releases every entity and closes the default bus and
// monitor store. Collaborators passed in Config are left open, and a monitor
// store passed in keeps the final variable values.
func (p *Program) Close() error {
	p.closeOnce.Do(func() {
		p.token.Signal()
		if p.lifecycle != nil {
			if p.lifecycle.State() != StateStopped {
				_ = p.lifecycle.Trigger(context.Background(), StepStop)
			}
			_ = p.lifecycle.Trigger(context.Background(), StepClose)
		}
		p.registry.Clear()
		for _, closeFn := range p.owned {
			p.closeErr = multierr.Append(p.closeErr, closeFn())
		}
	})
	return p.closeErr
}

var _ sprite.Registry = (*Registry)(nil)
