package sprite

import (
	"context"
	"math"
)

func (s *Sprite) PenDown() error { return s.setPen(func(p *pen) { p.down = true }) }
func (s *Sprite) PenUp() error   { return s.setPen(func(p *pen) { p.down = false }) }

// SetPenColor takes any color string the renderer understands.
func (s *Sprite) SetPenColor(color string) error {
	return s.setPen(func(p *pen) { p.color = color })
}

// SetPenSize sets the line width, at least 1.
func (s *Sprite) SetPenSize(size float64) error {
	return s.setPen(func(p *pen) { p.size = math.Max(1, size) })
}

func (s *Sprite) ChangePenSize(delta float64) error {
	return s.setPen(func(p *pen) { p.size = math.Max(1, p.size+delta) })
}

func (s *Sprite) setPen(fn func(p *pen)) error {
	return s.paced(func() {
		s.mu.Lock()
		fn(&s.pen)
		s.mu.Unlock()
	})
}

// PenIsDown reports the pen state.
func (s *Sprite) PenIsDown() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pen.down
}

// Stamp draws the current look onto the pen layer.
func (s *Sprite) Stamp() error {
	return s.Runner().Paced(func(ctx context.Context) error {
		r := s.Renderer()
		if r == nil {
			return nil
		}
		return r.Stamp(ctx, s.Snapshot())
	})
}
