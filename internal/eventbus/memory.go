package eventbus

import (
	"context"
	"errors"
	"path"
	"sync"

	"github.com/tomas-wrobel/scrap-engine-sub002/internal/core"
)

// ErrClosed is returned by operations on a closed bus.
var ErrClosed = errors.New("eventbus: closed")

// subscription buffers events without bound so a slow handler never makes
// Publish block or drop a message.
type subscription struct {
	id      uint64
	key     string
	pattern bool

	mu     sync.Mutex
	queue  []core.Event
	notify chan struct{}
	out    chan core.Event
	done   chan struct{}
	once   sync.Once
}

func (s *subscription) matches(topic string) bool {
	if !s.pattern {
		return s.key == topic
	}
	ok, err := path.Match(s.key, topic)
	return err == nil && ok
}

func (s *subscription) enqueue(ev core.Event) {
	s.mu.Lock()
	s.queue = append(s.queue, ev)
	s.mu.Unlock()
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *subscription) close() {
	s.once.Do(func() { close(s.done) })
}

func (s *subscription) deliver() {
	defer close(s.out)
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.mu.Unlock()
			select {
			case <-s.notify:
				continue
			case <-s.done:
				return
			}
		}
		ev := s.queue[0]
		s.queue[0] = core.Event{}
		s.queue = s.queue[1:]
		s.mu.Unlock()

		select {
		case s.out <- ev:
		case <-s.done:
			return
		}
	}
}

// MemoryBus is the in-process Bus used by a single program run.
type MemoryBus struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[uint64]*subscription
	closed bool
}

// NewMemoryBus returns an empty in-process bus.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: make(map[uint64]*subscription)}
}

// Publish delivers event to every subscription matching topic at call time.
func (b *MemoryBus) Publish(ctx context.Context, topic string, event core.Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}
	for _, s := range b.subs {
		if s.matches(topic) {
			s.enqueue(event)
		}
	}
	return nil
}

// Subscribe listens for events on a topic until ctx is done.
func (b *MemoryBus) Subscribe(ctx context.Context, topic string) (<-chan core.Event, error) {
	return b.subscribe(ctx, topic, false)
}

// SubscribePattern listens for events on topics matching a glob pattern.
func (b *MemoryBus) SubscribePattern(ctx context.Context, pattern string) (<-chan core.Event, error) {
	if _, err := path.Match(pattern, ""); err != nil {
		return nil, err
	}
	return b.subscribe(ctx, pattern, true)
}

func (b *MemoryBus) subscribe(ctx context.Context, key string, pattern bool) (<-chan core.Event, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrClosed
	}
	s := &subscription{
		id:      b.nextID,
		key:     key,
		pattern: pattern,
		notify:  make(chan struct{}, 1),
		out:     make(chan core.Event),
		done:    make(chan struct{}),
	}
	b.nextID++
	b.subs[s.id] = s
	b.mu.Unlock()

	go s.deliver()
	go func() {
		select {
		case <-ctx.Done():
			b.remove(s)
		case <-s.done:
		}
	}()
	return s.out, nil
}

func (b *MemoryBus) remove(s *subscription) {
	b.mu.Lock()
	delete(b.subs, s.id)
	b.mu.Unlock()
	s.close()
}

// Unsubscribe ends every subscription registered for topic or pattern.
func (b *MemoryBus) Unsubscribe(ctx context.Context, topic string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, s := range b.subs {
		if s.key == topic {
			delete(b.subs, id)
			s.close()
		}
	}
	return nil
}

// Subscribers returns the number of live subscriptions.
func (b *MemoryBus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close terminates all subscriptions.
func (b *MemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for id, s := range b.subs {
		delete(b.subs, id)
		s.close()
	}
	return nil
}

var _ Bus = (*MemoryBus)(nil)
