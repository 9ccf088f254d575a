package core

import "context"

// Entity defines the minimal behaviour expected from any stage or sprite.
type Entity interface {
	ID() string
	Name() string
	Kind() Kind
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	HandleEvent(event Event) error
}
