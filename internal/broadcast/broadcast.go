// Package broadcast implements named fan-out messages whose completion can be
// awaited. The same protocol serves user broadcasts and backdrop changes; each
// uses its own Channel over the shared bus.
package broadcast

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tomas-wrobel/scrap-engine-sub002/internal/cancel"
	"github.com/tomas-wrobel/scrap-engine-sub002/internal/core"
	"github.com/tomas-wrobel/scrap-engine-sub002/internal/eventbus"
	"github.com/tomas-wrobel/scrap-engine-sub002/internal/wrap"
)

// Handler is run once per received dispatch.
type Handler func(ctx context.Context) error

// Listener is one registration of an entity for a message name. ID is unique
// per registration, not per entity.
type Listener struct {
	Message string
	ID      string
	Owner   string
}

const (
	eventDispatch = "dispatch"
	eventDone     = "done"
	eventRemoved  = "removed"
)

// Channel is a named pub/sub channel with per-listener completion tracking.
type Channel struct {
	name   string
	bus    eventbus.Bus
	token  *cancel.Token
	logger *log.Logger

	mu        sync.RWMutex
	listeners map[string]map[string]Listener
}

// NewChannel returns a channel whose topics are prefixed with name.
func NewChannel(name string, bus eventbus.Bus, tok *cancel.Token, logger *log.Logger) *Channel {
	if logger == nil {
		logger = log.Default()
	}
	return &Channel{
		name:      name,
		bus:       bus,
		token:     tok,
		logger:    logger,
		listeners: make(map[string]map[string]Listener),
	}
}

// Name returns the channel name.
func (c *Channel) Name() string { return c.name }

func (c *Channel) topic(message string) string  { return c.name + ".msg." + message }
func (c *Channel) doneTopic(msgID string) string { return c.name + ".done." + msgID }
func (c *Channel) removedTopic() string          { return c.name + ".removed" }

// Listen registers handler for message until ctx ends. Each dispatch runs the
// handler on its own goroutine with event semantics and then reports
// completion for the dispatch's msgID.
func (c *Channel) Listen(ctx context.Context, message, owner string, handler Handler) (Listener, error) {
	if c.token.Stopped() {
		return Listener{}, core.ErrStop
	}
	l := Listener{Message: message, ID: uuid.NewString(), Owner: owner}
	lctx, stop := context.WithCancel(ctx)
	ch, err := c.bus.Subscribe(lctx, c.topic(message))
	if err != nil {
		stop()
		return Listener{}, fmt.Errorf("listen %s %q: %w", c.name, message, err)
	}

	c.mu.Lock()
	set, ok := c.listeners[message]
	if !ok {
		set = make(map[string]Listener)
		c.listeners[message] = set
	}
	set[l.ID] = l
	c.mu.Unlock()

	go c.serve(lctx, stop, l, ch, handler)
	return l, nil
}

func (c *Channel) serve(ctx context.Context, stop context.CancelFunc, l Listener, ch <-chan core.Event, handler Handler) {
	defer c.forget(l)
	defer stop()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			go c.run(l, ev.ID, handler)
		}
	}
}

func (c *Channel) run(l Listener, msgID string, handler Handler) {
	_ = wrap.Event(c.token, handler, func(err error) {
		status := core.StatusOf(err)
		if status == core.StatusFailure {
			c.logger.Printf("%s handler of %s for %q failed: %v", c.name, l.Owner, l.Message, err)
		}
		c.publish(c.doneTopic(msgID), eventDone, l.Owner, map[string]interface{}{
			"listener": l.ID,
			"msg":      msgID,
			"status":   status.String(),
		})
	})
}

// forget drops l from the registry and tells pending waits not to expect it.
func (c *Channel) forget(l Listener) {
	c.mu.Lock()
	if set, ok := c.listeners[l.Message]; ok {
		delete(set, l.ID)
		if len(set) == 0 {
			delete(c.listeners, l.Message)
		}
	}
	c.mu.Unlock()
	c.publish(c.removedTopic(), eventRemoved, l.Owner, map[string]interface{}{"listener": l.ID})
}

func (c *Channel) publish(topic, typ, source string, payload map[string]interface{}) {
	ev := core.Event{
		ID:        uuid.NewString(),
		Type:      typ,
		Source:    source,
		Timestamp: time.Now(),
		Payload:   payload,
	}
	// Completions must go out after a stop too, so they do not use the run ctx.
	if err := c.bus.Publish(context.Background(), topic, ev); err != nil && !errors.Is(err, eventbus.ErrClosed) {
		c.logger.Println(c.name, "publish error", err)
	}
}

// Listeners returns the IDs registered for message, sorted.
func (c *Channel) Listeners(message string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]string, 0, len(c.listeners[message]))
	for id := range c.listeners[message] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (c *Channel) registered(message, id string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.listeners[message][id]
	return ok
}

// Broadcast dispatches message to every listener registered now and returns
// the fresh msgID without waiting.
func (c *Channel) Broadcast(ctx context.Context, message, source string) (string, error) {
	if c.token.Stopped() {
		return "", core.ErrStop
	}
	msgID := uuid.NewString()
	return msgID, c.dispatch(ctx, message, source, msgID)
}

func (c *Channel) dispatch(ctx context.Context, message, source, msgID string) error {
	ev := core.Event{
		ID:        msgID,
		Type:      eventDispatch,
		Source:    source,
		Timestamp: time.Now(),
		Payload:   map[string]interface{}{"message": message, "channel": c.name},
	}
	if err := c.bus.Publish(ctx, c.topic(message), ev); err != nil {
		return fmt.Errorf("%s %q: %w", c.name, message, err)
	}
	return nil
}

// pending is the state of one broadcast-and-wait call.
type pending struct {
	msgID     string
	remaining map[string]struct{}
}

func (p *pending) settle(listenerID string) {
	delete(p.remaining, listenerID)
}

func (p *pending) empty() bool { return len(p.remaining) == 0 }

// BroadcastAndWait dispatches message and returns once every listener
// registered at dispatch time reported completion for this msgID. With no
// listeners it returns immediately. A stop ends the wait with ErrStop.
func (c *Channel) BroadcastAndWait(ctx context.Context, message, source string) error {
	if c.token.Stopped() {
		return core.ErrStop
	}
	msgID := uuid.NewString()
	p := &pending{msgID: msgID, remaining: make(map[string]struct{})}
	for _, id := range c.Listeners(message) {
		p.remaining[id] = struct{}{}
	}
	if p.empty() {
		return c.dispatch(ctx, message, source, msgID)
	}

	wctx, stop := context.WithCancel(c.token.Context())
	defer stop()
	done, err := c.bus.Subscribe(wctx, c.doneTopic(msgID))
	if err != nil {
		return c.stopOr(fmt.Errorf("await %s %q: %w", c.name, message, err))
	}
	removed, err := c.bus.Subscribe(wctx, c.removedTopic())
	if err != nil {
		return c.stopOr(fmt.Errorf("await %s %q: %w", c.name, message, err))
	}
	// Listeners that went away before the removal subscription existed.
	for id := range p.remaining {
		if !c.registered(message, id) {
			p.settle(id)
		}
	}
	if err := c.dispatch(ctx, message, source, msgID); err != nil {
		return err
	}

	for !p.empty() {
		select {
		case ev, ok := <-done:
			if !ok {
				return c.stopOr(eventbus.ErrClosed)
			}
			if ev.Field("msg") == msgID {
				p.settle(ev.Field("listener"))
			}
		case ev, ok := <-removed:
			if !ok {
				return c.stopOr(eventbus.ErrClosed)
			}
			p.settle(ev.Field("listener"))
		case <-c.token.Done():
			return core.ErrStop
		case <-ctx.Done():
			return c.stopOr(ctx.Err())
		}
	}
	return nil
}

func (c *Channel) stopOr(err error) error {
	if c.token.Stopped() {
		return core.ErrStop
	}
	return err
}
