package blackboard

import (
	"context"
	"fmt"
	"sync"

	"github.com/tomas-wrobel/scrap-engine-sub002/internal/core"
	"github.com/tomas-wrobel/scrap-engine-sub002/internal/eventbus"
)

type entry struct {
	update  core.VariableUpdate
	version int64
}

// MemoryStore is the in-process Store. Notifications travel over a private
// MemoryBus so watchers never block writers.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]entry
	bus     *eventbus.MemoryBus
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]entry),
		bus:     eventbus.NewMemoryBus(),
	}
}

// Put stores value under key and returns the new version.
func (s *MemoryStore) Put(ctx context.Context, key string, value interface{}, visible bool) (int64, error) {
	s.mu.Lock()
	e := s.entries[key]
	e.version++
	e.update = core.VariableUpdate{Key: key, Value: value, Visible: visible}
	s.entries[key] = e
	s.mu.Unlock()
	return e.version, s.notify(ctx, e.update)
}

func (s *MemoryStore) notify(ctx context.Context, upd core.VariableUpdate) error {
	ev := core.Event{
		ID:      upd.Key,
		Type:    "variable",
		Payload: map[string]interface{}{"update": upd},
	}
	return s.bus.Publish(ctx, upd.Key, ev)
}

// Get returns the last update for key and its version.
func (s *MemoryStore) Get(ctx context.Context, key string) (core.VariableUpdate, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[key]
	if !ok {
		return core.VariableUpdate{}, 0, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return e.update, e.version, nil
}

// Txn applies every update under one lock.
func (s *MemoryStore) Txn(ctx context.Context, updates []core.VariableUpdate) error {
	s.mu.Lock()
	for _, upd := range updates {
		e := s.entries[upd.Key]
		e.version++
		e.update = upd
		s.entries[upd.Key] = e
	}
	s.mu.Unlock()
	for _, upd := range updates {
		if err := s.notify(ctx, upd); err != nil {
			return err
		}
	}
	return nil
}

// Watch streams updates of keys matching a glob pattern until ctx ends.
func (s *MemoryStore) Watch(ctx context.Context, pattern string) (<-chan core.VariableUpdate, error) {
	events, err := s.bus.SubscribePattern(ctx, pattern)
	if err != nil {
		return nil, err
	}
	ch := make(chan core.VariableUpdate)
	go func() {
		defer close(ch)
		for ev := range events {
			upd, ok := ev.Payload["update"].(core.VariableUpdate)
			if !ok {
				continue
			}
			select {
			case ch <- upd:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

// Delete removes key.
func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
	return nil
}

// Close ends all watches.
func (s *MemoryStore) Close() error {
	return s.bus.Close()
}

var _ Store = (*MemoryStore)(nil)
