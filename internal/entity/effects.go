package entity

import (
	"context"
	"errors"
	"fmt"
	"math"
)

// ErrUnknownEffect is returned for an effect name outside the four channels.
var ErrUnknownEffect = errors.New("unknown effect")

// Effect names a graphic effect channel.
type Effect string

const (
	EffectColor      Effect = "color"
	EffectGhost      Effect = "ghost"
	EffectBrightness Effect = "brightness"
	EffectSaturation Effect = "saturation"
)

// Effects holds the four effect channels. Color wraps at 200, the others are
// clamped to their ranges.
type Effects struct {
	Color      float64
	Ghost      float64
	Brightness float64
	Saturation float64
}

func (fx *Effects) field(effect Effect) (*float64, error) {
	switch effect {
	case EffectColor:
		return &fx.Color, nil
	case EffectGhost:
		return &fx.Ghost, nil
	case EffectBrightness:
		return &fx.Brightness, nil
	case EffectSaturation:
		return &fx.Saturation, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownEffect, effect)
}

func limit(effect Effect, v float64) float64 {
	switch effect {
	case EffectColor:
		v = math.Mod(v, 200)
		if v < 0 {
			v += 200
		}
		return v
	case EffectGhost:
		return math.Max(0, math.Min(100, v))
	default:
		return math.Max(-100, math.Min(100, v))
	}
}

// Get returns the value of a channel.
func (fx *Effects) Get(effect Effect) (float64, error) {
	p, err := fx.field(effect)
	if err != nil {
		return 0, err
	}
	return *p, nil
}

// Set writes a channel, applying its range.
func (fx *Effects) Set(effect Effect, v float64) error {
	p, err := fx.field(effect)
	if err != nil {
		return err
	}
	*p = limit(effect, v)
	return nil
}

// Map returns the non-zero channels keyed by name.
func (fx *Effects) Map() map[string]float64 {
	m := make(map[string]float64, 4)
	for _, e := range []Effect{EffectColor, EffectGhost, EffectBrightness, EffectSaturation} {
		if v, _ := fx.Get(e); v != 0 {
			m[string(e)] = v
		}
	}
	return m
}

// SetEffect sets an effect channel one frame later.
func (e *Entity) SetEffect(effect Effect, v float64) error {
	return e.changeEffect(effect, func(float64) float64 { return v })
}

// ChangeEffect adds delta to an effect channel one frame later.
func (e *Entity) ChangeEffect(effect Effect, delta float64) error {
	return e.changeEffect(effect, func(cur float64) float64 { return cur + delta })
}

func (e *Entity) changeEffect(effect Effect, next func(float64) float64) error {
	var probe Effects
	if _, err := probe.field(effect); err != nil {
		return err
	}
	return e.runner.Paced(func(ctx context.Context) error {
		e.mu.Lock()
		cur, _ := e.effects.Get(effect)
		err := e.effects.Set(effect, next(cur))
		e.mu.Unlock()
		if err != nil {
			return err
		}
		e.Render()
		return nil
	})
}

// ClearEffects resets every channel one frame later.
func (e *Entity) ClearEffects() error {
	return e.runner.Paced(func(ctx context.Context) error {
		e.mu.Lock()
		e.effects = Effects{}
		e.mu.Unlock()
		e.Render()
		return nil
	})
}

// Effect returns the current value of a channel.
func (e *Entity) Effect(effect Effect) (float64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.effects.Get(effect)
}
