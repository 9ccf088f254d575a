package eventbus

import (
	"context"

	"github.com/tomas-wrobel/scrap-engine-sub002/internal/core"
)

// Bus defines publish/subscribe semantics for events.
//
// A published event reaches every subscription that was registered when
// Publish was called. Subscriptions end when their ctx is cancelled, when the
// topic is unsubscribed or when the bus is closed; the channel is then closed.
type Bus interface {
	Publish(ctx context.Context, topic string, event core.Event) error
	Subscribe(ctx context.Context, topic string) (<-chan core.Event, error)
	SubscribePattern(ctx context.Context, pattern string) (<-chan core.Event, error)
	Unsubscribe(ctx context.Context, topic string) error
	Close() error
}
