package sprite

import (
	"context"
	"math"
	"time"

	"github.com/tomas-wrobel/scrap-engine-sub002/internal/core"
	"github.com/tomas-wrobel/scrap-engine-sub002/internal/entity"
	"github.com/tomas-wrobel/scrap-engine-sub002/internal/host"
)

// glideFrame is the glide step used when pacing is off.
const glideFrame = time.Second / 60

// moveTo places the sprite and draws the pen trail.
func (s *Sprite) moveTo(x, y float64) {
	s.mu.Lock()
	from := host.Point{X: s.x, Y: s.y}
	s.x, s.y = x, y
	p := s.pen
	s.mu.Unlock()

	if r := s.Renderer(); p.down && r != nil {
		line := host.Line{From: from, To: host.Point{X: x, Y: y}, Color: p.color, Size: p.size}
		if err := r.DrawLine(context.Background(), line); err != nil {
			s.Logger().Printf("%s: draw line: %v", s.Name(), err)
		}
	}
	s.Render()
}

func (s *Sprite) paced(fn func()) error {
	return s.Runner().Paced(func(ctx context.Context) error {
		fn()
		return nil
	})
}

// Move walks steps along the current direction.
func (s *Sprite) Move(steps float64) error {
	return s.paced(func() {
		s.mu.Lock()
		rad := (90 - s.direction) * math.Pi / 180
		x := s.x + steps*math.Cos(rad)
		y := s.y + steps*math.Sin(rad)
		s.mu.Unlock()
		s.moveTo(x, y)
	})
}

func (s *Sprite) GoTo(x, y float64) error {
	return s.paced(func() { s.moveTo(x, y) })
}

func (s *Sprite) SetX(x float64) error {
	return s.paced(func() { s.moveTo(x, s.Y()) })
}

func (s *Sprite) SetY(y float64) error {
	return s.paced(func() { s.moveTo(s.X(), y) })
}

func (s *Sprite) ChangeX(dx float64) error {
	return s.paced(func() { s.moveTo(s.X()+dx, s.Y()) })
}

func (s *Sprite) ChangeY(dy float64) error {
	return s.paced(func() { s.moveTo(s.X(), s.Y()+dy) })
}

func (s *Sprite) setDirection(next func(cur float64) float64) error {
	return s.paced(func() {
		s.mu.Lock()
		s.direction = wrapDirection(next(s.direction))
		s.mu.Unlock()
		s.Render()
	})
}

func (s *Sprite) TurnRight(degrees float64) error {
	return s.setDirection(func(cur float64) float64 { return cur + degrees })
}

func (s *Sprite) TurnLeft(degrees float64) error {
	return s.setDirection(func(cur float64) float64 { return cur - degrees })
}

func (s *Sprite) PointInDirection(degrees float64) error {
	return s.setDirection(func(float64) float64 { return degrees })
}

// Glide moves to (x, y) in a straight line over seconds, one step per frame.
// A stop leaves the sprite where it was at that frame.
func (s *Sprite) Glide(seconds, x, y float64) error {
	r := s.Runner()
	return r.Interruptible(func(ctx context.Context) error {
		clk := r.Clock()
		d := entity.Seconds(seconds)
		x0, y0 := s.X(), s.Y()
		start := clk.Now()
		frame := r.Pace()
		if frame <= 0 || r.Turbo() {
			frame = glideFrame
		}
		for {
			t := 1.0
			if d > 0 {
				t = math.Min(1, float64(clk.Since(start))/float64(d))
			}
			s.moveTo(x0+(x-x0)*t, y0+(y-y0)*t)
			if t >= 1 {
				return nil
			}
			tm := clk.Timer(frame)
			select {
			case <-tm.C:
			case <-ctx.Done():
				tm.Stop()
				return core.ErrStop
			}
		}
	})
}
