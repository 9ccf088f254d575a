// Package stage implements the backdrop-holding entity of a run.
package stage

import (
	"context"
	"fmt"
	"sync"

	"github.com/tomas-wrobel/scrap-engine-sub002/internal/core"
	"github.com/tomas-wrobel/scrap-engine-sub002/internal/entity"
	"github.com/tomas-wrobel/scrap-engine-sub002/internal/host"
)

// Stage is the single backdrop entity of a program.
type Stage struct {
	*entity.Entity

	mu        sync.Mutex
	backdrops []string
	current   int
}

// New returns a stage showing the first backdrop.
func New(env entity.Env, id, name string, backdrops, sounds []string) *Stage {
	s := &Stage{
		Entity:    entity.New(env, id, name, core.KindStage),
		backdrops: append([]string(nil), backdrops...),
	}
	for _, snd := range sounds {
		s.AddSound(snd)
	}
	s.SetSnapshot(s.snapshot)
	return s
}

func (s *Stage) snapshot() host.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := s.Entity.BaseSnapshot()
	if len(s.backdrops) > 0 {
		snap.Backdrop = s.backdrops[s.current]
	}
	return snap
}

// Assets adds the backdrops to the entity assets.
func (s *Stage) Assets() []host.Asset {
	out := s.Entity.Assets()
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.backdrops {
		out = append(out, host.Asset{Kind: host.AssetBackdrop, ID: b})
	}
	return out
}

// Backdrop returns the current backdrop name and its 1-based number.
func (s *Stage) Backdrop() (string, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.backdrops) == 0 {
		return "", 0
	}
	return s.backdrops[s.current], s.current + 1
}

func (s *Stage) index(name string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, b := range s.backdrops {
		if b == name {
			return i, nil
		}
	}
	return 0, fmt.Errorf("%w: stage has no backdrop %q", core.ErrAsset, name)
}

// show selects backdrop i, renders it and returns its name.
func (s *Stage) show(i int) string {
	s.mu.Lock()
	s.current = i
	name := s.backdrops[i]
	s.mu.Unlock()
	s.Render()
	return name
}

// SwitchBackdropTo shows a backdrop and starts its listeners without waiting.
func (s *Stage) SwitchBackdropTo(name string) error {
	i, err := s.index(name)
	if err != nil {
		return err
	}
	return s.switchTo(func() int { return i }, false)
}

// SwitchBackdropToAndWait shows a backdrop and waits until every listener
// registered for it finished.
func (s *Stage) SwitchBackdropToAndWait(name string) error {
	i, err := s.index(name)
	if err != nil {
		return err
	}
	return s.switchTo(func() int { return i }, true)
}

// NextBackdrop advances to the following backdrop, wrapping around.
func (s *Stage) NextBackdrop() error {
	return s.switchTo(func() int {
		s.mu.Lock()
		defer s.mu.Unlock()
		if len(s.backdrops) == 0 {
			return -1
		}
		return (s.current + 1) % len(s.backdrops)
	}, false)
}

func (s *Stage) switchTo(pick func() int, wait bool) error {
	var name string
	err := s.Runner().Paced(func(ctx context.Context) error {
		i := pick()
		if i < 0 {
			return fmt.Errorf("%w: stage has no backdrops", core.ErrAsset)
		}
		name = s.show(i)
		return nil
	})
	if err != nil {
		return err
	}
	ch := s.BackdropChannel()
	return s.Runner().Interruptible(func(ctx context.Context) error {
		if wait {
			return ch.BroadcastAndWait(ctx, name, s.ID())
		}
		_, err := ch.Broadcast(ctx, name, s.ID())
		return err
	})
}

// EraseAll clears the pen layer.
func (s *Stage) EraseAll() error {
	return s.Runner().Paced(func(ctx context.Context) error {
		r := s.Renderer()
		if r == nil {
			return nil
		}
		return r.ClearPen(ctx)
	})
}

var _ core.Entity = (*Stage)(nil)
