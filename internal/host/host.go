// Package host declares the collaborators a program run drives but does not
// implement: drawing, asset loading and audio output.
package host

import (
	"context"

	"github.com/tomas-wrobel/scrap-engine-sub002/internal/core"
)

// Snapshot is the visible state of one entity after a mutation.
type Snapshot struct {
	ID        string             `json:"id"`
	Name      string             `json:"name"`
	Kind      core.Kind          `json:"kind"`
	X         float64            `json:"x"`
	Y         float64            `json:"y"`
	Direction float64            `json:"direction"`
	Size      float64            `json:"size"`
	Visible   bool               `json:"visible"`
	Costume   string             `json:"costume,omitempty"`
	Backdrop  string             `json:"backdrop,omitempty"`
	Bubble    string             `json:"bubble,omitempty"`
	Thinking  bool               `json:"thinking,omitempty"`
	Effects   map[string]float64 `json:"effects,omitempty"`
}

// Point is a stage coordinate.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Line is one pen segment.
type Line struct {
	From  Point   `json:"from"`
	To    Point   `json:"to"`
	Color string  `json:"color"`
	Size  float64 `json:"size"`
}

// Renderer draws entities and the pen layer.
type Renderer interface {
	Render(ctx context.Context, snap Snapshot) error
	DrawLine(ctx context.Context, line Line) error
	Stamp(ctx context.Context, snap Snapshot) error
	ClearPen(ctx context.Context) error
}

// AssetKind tells an AssetLoader what an id refers to.
type AssetKind string

const (
	AssetCostume  AssetKind = "costume"
	AssetBackdrop AssetKind = "backdrop"
	AssetSound    AssetKind = "sound"
)

// AssetLoader makes an asset ready for use. Failures are reported, not retried.
type AssetLoader interface {
	Load(ctx context.Context, kind AssetKind, id string) error
}

// Playback is a live sound.
type Playback interface {
	Done() <-chan struct{}
	Stop()
}

// AudioPlayer starts sounds.
type AudioPlayer interface {
	Play(ctx context.Context, sound string, volume float64) (Playback, error)
}

// Asset names one asset of an entity.
type Asset struct {
	Kind AssetKind
	ID   string
}
