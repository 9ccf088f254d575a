package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tomas-wrobel/scrap-engine-sub002/internal/core"
)

// RedisBus implements Bus using Redis Pub/Sub with automatic reconnection.
// It lets a host process observe or drive a program run over the network,
// for example by publishing on the stop topic.
type RedisBus struct {
	mu            sync.Mutex
	client        *redis.Client
	options       *redis.Options
	subscriptions map[string][]*redis.PubSub
	prefix        string
	logger        *log.Logger
}

// NewRedisBus creates a new Redis-backed event bus using the given options.
// Topics are namespaced with prefix so several runs can share a server.
func NewRedisBus(opts *redis.Options, prefix string, logger *log.Logger) *RedisBus {
	if logger == nil {
		logger = log.Default()
	}
	return &RedisBus{
		client:        redis.NewClient(opts),
		options:       opts,
		subscriptions: make(map[string][]*redis.PubSub),
		prefix:        prefix,
		logger:        logger,
	}
}

// ensureConnection pings the server and reconnects if necessary.
func (b *RedisBus) ensureConnection(ctx context.Context) *redis.Client {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.client.Ping(ctx).Err(); err != nil {
		b.logger.Println("eventbus reconnecting to Redis", err)
		b.client = redis.NewClient(b.options)
	}
	return b.client
}

// Publish sends an event to a topic.
func (b *RedisBus) Publish(ctx context.Context, topic string, event core.Event) error {
	client := b.ensureConnection(ctx)
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return client.Publish(ctx, b.prefix+topic, data).Err()
}

// receive forwards messages of pubsub until ctx ends or the pubsub is closed.
func (b *RedisBus) receive(ctx context.Context, pubsub *redis.PubSub) <-chan core.Event {
	ch := make(chan core.Event)
	go func() {
		defer close(ch)
		defer pubsub.Close()
		// A blocked read does not observe ctx; closing the pubsub unblocks it.
		stop := context.AfterFunc(ctx, func() { _ = pubsub.Close() })
		defer stop()
		for {
			msg, err := pubsub.ReceiveMessage(ctx)
			if err != nil {
				if ctx.Err() != nil || errors.Is(err, redis.ErrClosed) {
					return
				}
				b.logger.Println("eventbus receive error", err)
				select {
				case <-time.After(time.Second):
				case <-ctx.Done():
					return
				}
				continue
			}
			var ev core.Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				b.logger.Println("eventbus decode error", err)
				continue
			}
			select {
			case ch <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch
}

// track waits for the server to confirm the subscription so that a publish
// issued after Subscribe returns is guaranteed to be delivered.
func (b *RedisBus) track(ctx context.Context, key string, ps *redis.PubSub) (<-chan core.Event, error) {
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, err
	}
	b.mu.Lock()
	b.subscriptions[key] = append(b.subscriptions[key], ps)
	b.mu.Unlock()
	return b.receive(ctx, ps), nil
}

// Subscribe listens for events on a topic.
func (b *RedisBus) Subscribe(ctx context.Context, topic string) (<-chan core.Event, error) {
	client := b.ensureConnection(ctx)
	return b.track(ctx, topic, client.Subscribe(ctx, b.prefix+topic))
}

// SubscribePattern listens for events using a pattern.
func (b *RedisBus) SubscribePattern(ctx context.Context, pattern string) (<-chan core.Event, error) {
	client := b.ensureConnection(ctx)
	return b.track(ctx, pattern, client.PSubscribe(ctx, b.prefix+pattern))
}

// Unsubscribe stops listening on a topic.
func (b *RedisBus) Unsubscribe(ctx context.Context, topic string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs, ok := b.subscriptions[topic]
	if !ok {
		return nil
	}
	delete(b.subscriptions, topic)
	var firstErr error
	for _, ps := range subs {
		if err := ps.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Close terminates all subscriptions and closes the client.
func (b *RedisBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, subs := range b.subscriptions {
		for _, ps := range subs {
			_ = ps.Close()
		}
	}
	b.subscriptions = make(map[string][]*redis.PubSub)
	return b.client.Close()
}

var _ Bus = (*RedisBus)(nil)
