package entity

import (
	"context"
	"fmt"

	"github.com/tomas-wrobel/scrap-engine-sub002/internal/broadcast"
	"github.com/tomas-wrobel/scrap-engine-sub002/internal/core"
)

// Event types routed to HandleEvent.
const (
	EventFlag  = "flag"
	EventKey   = "key"
	EventClick = "click"
)

// AnyKey registers a script for every key press.
const AnyKey = "any"

// WhenFlagClicked runs script each time the program starts.
func (e *Entity) WhenFlagClicked(script Script) { e.addTrigger(EventFlag, script) }

// WhenKeyPressed runs script on each press of key, or of any key for AnyKey.
func (e *Entity) WhenKeyPressed(key string, script Script) {
	e.addTrigger(EventKey+":"+key, script)
}

// WhenClicked runs script each time the entity is clicked.
func (e *Entity) WhenClicked(script Script) { e.addTrigger(EventClick, script) }

func (e *Entity) addTrigger(trigger string, script Script) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.deleted {
		return
	}
	e.triggers[trigger] = append(e.triggers[trigger], script)
}

// HandleEvent starts the scripts registered for an input or flag event. Each
// script runs on its own goroutine.
func (e *Entity) HandleEvent(ev core.Event) error {
	var triggers []string
	switch ev.Type {
	case EventFlag:
		triggers = []string{EventFlag}
	case EventKey:
		triggers = []string{EventKey + ":" + ev.Field("key"), EventKey + ":" + AnyKey}
	case EventClick:
		if target := ev.Field("target"); target != e.id && target != e.name {
			return nil
		}
		triggers = []string{EventClick}
	default:
		return fmt.Errorf("%s: unsupported event %q", e.name, ev.Type)
	}

	e.mu.Lock()
	var scripts []Script
	for _, t := range triggers {
		scripts = append(scripts, e.triggers[t]...)
	}
	e.mu.Unlock()

	for _, s := range scripts {
		go e.run(ev.Type, s)
	}
	return nil
}

// run executes script with event semantics and logs a failure.
func (e *Entity) run(trigger string, script Script) error {
	return e.runner.Event(script, func(err error) {
		if err != nil && !core.IsStop(err) {
			e.logger.Printf("%s: %s script failed: %v", e.name, trigger, err)
		}
	})
}

// WhenReceiveMessage runs script for every broadcast of message.
func (e *Entity) WhenReceiveMessage(message string, script Script) error {
	_, err := e.env.Messages.Listen(e.ctx, message, e.id, broadcast.Handler(script))
	return err
}

// BroadcastMessage sends message to every listener and continues at once.
func (e *Entity) BroadcastMessage(message string) error {
	return e.runner.Interruptible(func(ctx context.Context) error {
		_, err := e.env.Messages.Broadcast(ctx, message, e.id)
		return err
	})
}

// BroadcastMessageWait sends message and waits until every listener
// registered at that moment finished its script.
func (e *Entity) BroadcastMessageWait(message string) error {
	return e.runner.Interruptible(func(ctx context.Context) error {
		return e.env.Messages.BroadcastAndWait(ctx, message, e.id)
	})
}

// WhenBackdropSwitchesTo runs script each time the stage switches to backdrop.
func (e *Entity) WhenBackdropSwitchesTo(backdrop string, script Script) error {
	_, err := e.env.Backdrops.Listen(e.ctx, backdrop, e.id, broadcast.Handler(script))
	return err
}

// WhenTimerElapsed runs script once the shared timer passes seconds.
func (e *Entity) WhenTimerElapsed(seconds float64, script Script) {
	cancel := e.env.Timer.WhenElapsed(Seconds(seconds), func() {
		go e.run("timer", script)
	})
	context.AfterFunc(e.ctx, cancel)
}

// ResetTimer restarts the shared timer.
func (e *Entity) ResetTimer() {
	e.env.Timer.Reset()
}

// Timer returns the seconds since the last reset.
func (e *Entity) Timer() float64 {
	return e.env.Timer.Elapsed().Seconds()
}
