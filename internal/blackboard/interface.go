// Package blackboard holds the variable monitor state of a program run. Every
// declared variable has one entry keyed by Key(entity, variable); watchers see
// each write so a host can display monitors.
package blackboard

import (
	"context"
	"errors"

	"github.com/tomas-wrobel/scrap-engine-sub002/internal/core"
)

// ErrNotFound is returned by Get for a key that was never written.
var ErrNotFound = errors.New("blackboard: key not found")

// Store defines operations on the monitor state.
type Store interface {
	Put(ctx context.Context, key string, value interface{}, visible bool) (int64, error)
	Get(ctx context.Context, key string) (core.VariableUpdate, int64, error)
	Txn(ctx context.Context, updates []core.VariableUpdate) error
	Watch(ctx context.Context, pattern string) (<-chan core.VariableUpdate, error)
	Delete(ctx context.Context, key string) error
	Close() error
}

// Key builds the monitor key of a variable owned by an entity.
func Key(entity, variable string) string {
	return entity + ":" + variable
}
