// Package sprite implements movable entities: motion, looks, speech bubbles
// and the pen.
package sprite

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/tomas-wrobel/scrap-engine-sub002/internal/core"
	"github.com/tomas-wrobel/scrap-engine-sub002/internal/entity"
	"github.com/tomas-wrobel/scrap-engine-sub002/internal/host"
)

// Registry resolves entities of the same run by id.
type Registry interface {
	Lookup(id string) (core.Entity, error)
}

// Options describe the initial state of a sprite.
type Options struct {
	Costumes  []string
	Sounds    []string
	X, Y      float64
	Direction float64
	Size      float64
	Hidden    bool
	Stage     string
	Registry  Registry
}

type pen struct {
	down  bool
	color string
	size  float64
}

// Sprite is an entity with a position on the stage.
type Sprite struct {
	*entity.Entity

	stageID  string
	registry Registry

	mu        sync.Mutex
	x, y      float64
	direction float64
	size      float64
	visible   bool
	costumes  []string
	costume   int
	bubble    string
	thinking  bool
	bubbleGen uint64
	pen       pen
}

// New returns a sprite. A zero Direction points right and a zero Size is 100%.
func New(env entity.Env, id, name string, opts Options) *Sprite {
	s := &Sprite{
		Entity:    entity.New(env, id, name, core.KindSprite),
		stageID:   opts.Stage,
		registry:  opts.Registry,
		x:         opts.X,
		y:         opts.Y,
		direction: opts.Direction,
		size:      opts.Size,
		visible:   !opts.Hidden,
		costumes:  append([]string(nil), opts.Costumes...),
		pen:       pen{color: "#0000ff", size: 1},
	}
	if s.direction == 0 {
		s.direction = 90
	}
	if s.size == 0 {
		s.size = 100
	}
	for _, snd := range opts.Sounds {
		s.AddSound(snd)
	}
	s.SetSnapshot(s.snapshot)
	return s
}

func (s *Sprite) snapshot() host.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := s.Entity.BaseSnapshot()
	snap.X, snap.Y = s.x, s.y
	snap.Direction = s.direction
	snap.Size = s.size
	snap.Visible = s.visible
	if len(s.costumes) > 0 {
		snap.Costume = s.costumes[s.costume]
	}
	snap.Bubble = s.bubble
	snap.Thinking = s.thinking
	return snap
}

// Assets adds the costumes to the entity assets.
func (s *Sprite) Assets() []host.Asset {
	out := s.Entity.Assets()
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.costumes {
		out = append(out, host.Asset{Kind: host.AssetCostume, ID: c})
	}
	return out
}

// Stage resolves the stage of the run.
func (s *Sprite) Stage() (core.Entity, error) {
	if s.registry == nil {
		return nil, fmt.Errorf("%w: %s has no registry", core.ErrUnknownEntity, s.Name())
	}
	return s.registry.Lookup(s.stageID)
}

// Stop clears the speech bubble on top of the entity cleanup.
func (s *Sprite) Stop(ctx context.Context) error {
	if err := s.Entity.Stop(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	cleared := s.bubble != ""
	s.bubble = ""
	s.bubbleGen++
	s.mu.Unlock()
	if cleared {
		s.Render()
	}
	return nil
}

// X returns the x position.
func (s *Sprite) X() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.x
}

// Y returns the y position.
func (s *Sprite) Y() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.y
}

// Direction returns the heading in degrees, 90 being right.
func (s *Sprite) Direction() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.direction
}

func (s *Sprite) Size() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.size
}

func (s *Sprite) Visible() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.visible
}

// Bubble returns the text shown and whether it is a thought.
func (s *Sprite) Bubble() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bubble, s.thinking
}

// wrapDirection maps degrees to (-180, 180].
func wrapDirection(d float64) float64 {
	d = math.Mod(d, 360)
	if d > 180 {
		d -= 360
	}
	if d <= -180 {
		d += 360
	}
	return d
}

var _ core.Entity = (*Sprite)(nil)
