package program

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tomas-wrobel/scrap-engine-sub002/internal/core"
	"github.com/tomas-wrobel/scrap-engine-sub002/internal/eventbus"
)

// ErrInvalidTransition is returned when a step is not allowed in the current state.
var ErrInvalidTransition = errors.New("invalid lifecycle transition")

// State is a phase of a program run.
type State string

const (
	StateCreated State = "created"
	StateLoading State = "loading"
	StateReady   State = "ready"
	StateRunning State = "running"
	StateStopped State = "stopped"
	StateClosed  State = "closed"
)

// Step moves a run between states.
type Step string

const (
	StepLoad   Step = "load"
	StepLoaded Step = "loaded"
	StepFlag   Step = "flag"
	StepStop   Step = "stop"
	StepClose  Step = "close"
)

// Transition defines a state change caused by a step.
type Transition struct {
	From   State
	Step   Step
	To     State
	Action func(ctx context.Context) error
}

// StateActions groups callbacks for a state.
type StateActions struct {
	OnEnter func(ctx context.Context) error
	OnExit  func(ctx context.Context) error
}

// Lifecycle is the state machine of a program run. Every transition is
// announced on the bus topic StateTopic.
type Lifecycle struct {
	id           string
	current      State
	transitions  map[State]map[Step]Transition
	stateActions map[State]StateActions
	bus          eventbus.Bus
	mu           sync.RWMutex
	logger       *log.Logger
}

// StateTopic carries lifecycle transitions.
const StateTopic = "program.state"

// NewLifecycle returns a machine in the initial state.
func NewLifecycle(id string, initial State, bus eventbus.Bus, logger *log.Logger) *Lifecycle {
	if logger == nil {
		logger = log.Default()
	}
	return &Lifecycle{
		id:           id,
		current:      initial,
		transitions:  make(map[State]map[Step]Transition),
		stateActions: make(map[State]StateActions),
		bus:          bus,
		logger:       logger,
	}
}

// AddTransition registers a transition.
func (l *Lifecycle) AddTransition(t Transition) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.transitions[t.From]; !ok {
		l.transitions[t.From] = make(map[Step]Transition)
	}
	l.transitions[t.From][t.Step] = t
}

// AddStateActions sets callbacks for a state.
func (l *Lifecycle) AddStateActions(s State, actions StateActions) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stateActions[s] = actions
}

// ValidateTransitions checks that all states with actions are reachable.
func (l *Lifecycle) ValidateTransitions() error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	reachable := map[State]bool{l.current: true}
	for from, steps := range l.transitions {
		for _, t := range steps {
			if from == "" || t.To == "" {
				return fmt.Errorf("invalid transition %v", t)
			}
			reachable[t.To] = true
		}
		reachable[from] = true
	}
	for s := range l.stateActions {
		if !reachable[s] {
			return fmt.Errorf("state %s unreachable", s)
		}
	}
	return nil
}

// Trigger applies step. A failing transition action keeps the current state.
// Enter and exit callbacks run after the state changed; their errors are
// logged, except a program stop.
func (l *Lifecycle) Trigger(ctx context.Context, step Step) error {
	l.mu.Lock()
	from := l.current
	t, ok := l.transitions[from][step]
	if !ok {
		l.mu.Unlock()
		return fmt.Errorf("%w: %s in state %s", ErrInvalidTransition, step, from)
	}
	if t.Action != nil {
		if err := t.Action(ctx); err != nil {
			l.mu.Unlock()
			return err
		}
	}
	l.current = t.To
	exit := l.stateActions[from].OnExit
	enter := l.stateActions[t.To].OnEnter
	l.mu.Unlock()

	if exit != nil {
		if err := exit(ctx); err != nil && !core.IsStop(err) {
			l.logger.Printf("%s: leaving %s: %v", l.id, from, err)
		}
	}
	l.announce(from, t.To)
	if enter != nil {
		if err := enter(ctx); err != nil && !core.IsStop(err) {
			l.logger.Printf("%s: entering %s: %v", l.id, t.To, err)
		}
	}
	return nil
}

func (l *Lifecycle) announce(from, to State) {
	if l.bus == nil {
		return
	}
	ev := core.Event{
		ID:        uuid.NewString(),
		Type:      "state",
		Source:    l.id,
		Timestamp: time.Now(),
		Payload:   map[string]interface{}{"from": string(from), "to": string(to)},
	}
	if err := l.bus.Publish(context.Background(), StateTopic, ev); err != nil && !errors.Is(err, eventbus.ErrClosed) {
		l.logger.Println(l.id, "state publish error", err)
	}
}

// State returns the current state.
func (l *Lifecycle) State() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.current
}
