package sprite

import (
	"context"
	"fmt"
	"math"

	"github.com/tomas-wrobel/scrap-engine-sub002/internal/core"
	"github.com/tomas-wrobel/scrap-engine-sub002/internal/entity"
)

func (s *Sprite) Show() error { return s.setVisible(true) }
func (s *Sprite) Hide() error { return s.setVisible(false) }

func (s *Sprite) setVisible(v bool) error {
	return s.paced(func() {
		s.mu.Lock()
		s.visible = v
		s.mu.Unlock()
		s.Render()
	})
}

// SetSize sets the size in percent. Sizes below zero become zero.
func (s *Sprite) SetSize(percent float64) error {
	return s.paced(func() {
		s.mu.Lock()
		s.size = math.Max(0, percent)
		s.mu.Unlock()
		s.Render()
	})
}

func (s *Sprite) ChangeSize(delta float64) error {
	return s.paced(func() {
		s.mu.Lock()
		s.size = math.Max(0, s.size+delta)
		s.mu.Unlock()
		s.Render()
	})
}

// SwitchCostumeTo selects a costume by name.
func (s *Sprite) SwitchCostumeTo(name string) error {
	s.mu.Lock()
	idx := -1
	for i, c := range s.costumes {
		if c == name {
			idx = i
			break
		}
	}
	s.mu.Unlock()
	if idx < 0 {
		return fmt.Errorf("%w: %s has no costume %q", core.ErrAsset, s.Name(), name)
	}
	return s.paced(func() {
		s.mu.Lock()
		s.costume = idx
		s.mu.Unlock()
		s.Render()
	})
}

// NextCostume advances to the following costume, wrapping around.
func (s *Sprite) NextCostume() error {
	return s.paced(func() {
		s.mu.Lock()
		if n := len(s.costumes); n > 0 {
			s.costume = (s.costume + 1) % n
		}
		s.mu.Unlock()
		s.Render()
	})
}

// Costume returns the current costume name and its 1-based number.
func (s *Sprite) Costume() (string, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.costumes) == 0 {
		return "", 0
	}
	return s.costumes[s.costume], s.costume + 1
}

func (s *Sprite) Say(text string) error   { return s.paced(func() { s.setBubble(text, false) }) }
func (s *Sprite) Think(text string) error { return s.paced(func() { s.setBubble(text, true) }) }

func (s *Sprite) setBubble(text string, thinking bool) uint64 {
	s.mu.Lock()
	s.bubble = text
	s.thinking = thinking
	s.bubbleGen++
	gen := s.bubbleGen
	s.mu.Unlock()
	s.Render()
	return gen
}

// clearBubble removes the bubble unless a newer one replaced it.
func (s *Sprite) clearBubble(gen uint64) {
	s.mu.Lock()
	if s.bubbleGen != gen {
		s.mu.Unlock()
		return
	}
	s.bubble = ""
	s.thinking = false
	s.mu.Unlock()
	s.Render()
}

// SayFor shows text for seconds. The bubble is cleared when the time is up
// and also when the program stops first.
func (s *Sprite) SayFor(text string, seconds float64) error {
	return s.bubbleFor(text, false, seconds)
}

func (s *Sprite) ThinkFor(text string, seconds float64) error {
	return s.bubbleFor(text, true, seconds)
}

func (s *Sprite) bubbleFor(text string, thinking bool, seconds float64) error {
	r := s.Runner()
	return r.Interruptible(func(ctx context.Context) error {
		gen := s.setBubble(text, thinking)
		defer s.clearBubble(gen)
		t := r.Clock().Timer(entity.Seconds(seconds))
		defer t.Stop()
		select {
		case <-t.C:
			return nil
		case <-ctx.Done():
			return core.ErrStop
		}
	})
}
