package program

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/multierr"

	"github.com/tomas-wrobel/scrap-engine-sub002/internal/core"
	"github.com/tomas-wrobel/scrap-engine-sub002/internal/host"
)

// Member is an entity managed by a program run.
type Member interface {
	core.Entity
	Assets() []host.Asset
	Release()
	Delete()
}

// Registry holds the entities of one run in creation order.
type Registry struct {
	mu      sync.RWMutex
	members map[string]Member
	order   []string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{members: make(map[string]Member)}
}

// Add registers m. IDs must be unique within a run.
func (r *Registry) Add(m Member) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.members[m.ID()]; ok {
		return fmt.Errorf("duplicate entity id %q", m.ID())
	}
	r.members[m.ID()] = m
	r.order = append(r.order, m.ID())
	return nil
}

// Lookup resolves an entity by id.
func (r *Registry) Lookup(id string) (core.Entity, error) {
	m, err := r.Member(id)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// Member resolves a member by id.
func (r *Registry) Member(id string) (Member, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.members[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", core.ErrUnknownEntity, id)
	}
	return m, nil
}

// Members returns the members in creation order.
func (r *Registry) Members() []Member {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Member, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.members[id])
	}
	return out
}

// IDs returns the member ids in creation order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Remove deletes a member and drops it from the registry.
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	m, ok := r.members[id]
	if ok {
		delete(r.members, id)
		for i, v := range r.order {
			if v == id {
				r.order = append(r.order[:i], r.order[i+1:]...)
				break
			}
		}
	}
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %q", core.ErrUnknownEntity, id)
	}
	m.Delete()
	return nil
}

// Clear releases every member and empties the registry. Unlike Remove it
// keeps the variable monitors of the members.
func (r *Registry) Clear() {
	r.mu.Lock()
	members := make([]Member, 0, len(r.order))
	for _, id := range r.order {
		members = append(members, r.members[id])
	}
	r.members = make(map[string]Member)
	r.order = nil
	r.mu.Unlock()
	for _, m := range members {
		m.Release()
	}
}

// StopAll stops every member and collects their errors.
func (r *Registry) StopAll(ctx context.Context) error {
	var err error
	for _, m := range r.Members() {
		if e := m.Stop(ctx); e != nil {
			err = multierr.Append(err, fmt.Errorf("stop %s: %w", m.Name(), e))
		}
	}
	return err
}

// Dispatch hands ev to every member and collects their errors.
func (r *Registry) Dispatch(ev core.Event) error {
	var err error
	for _, m := range r.Members() {
		err = multierr.Append(err, m.HandleEvent(ev))
	}
	return err
}
