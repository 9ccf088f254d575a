package host

import (
	"context"
	"log"
	"sync"
)

// RecordingRenderer keeps every call. Tests inspect it and the CLI uses it to
// report the final frame.
type RecordingRenderer struct {
	mu     sync.Mutex
	frames []Snapshot
	latest map[string]Snapshot
	lines  []Line
	stamps []Snapshot
	clears int
	logger *log.Logger
}

// NewRecordingRenderer returns an empty recorder. A non-nil logger prints
// each frame as it arrives.
func NewRecordingRenderer(logger *log.Logger) *RecordingRenderer {
	return &RecordingRenderer{latest: make(map[string]Snapshot), logger: logger}
}

func (r *RecordingRenderer) Render(ctx context.Context, snap Snapshot) error {
	r.mu.Lock()
	r.frames = append(r.frames, snap)
	r.latest[snap.ID] = snap
	r.mu.Unlock()
	if r.logger != nil {
		r.logger.Printf("render %s %s x=%.1f y=%.1f dir=%.0f costume=%s backdrop=%s bubble=%q",
			snap.Kind, snap.Name, snap.X, snap.Y, snap.Direction, snap.Costume, snap.Backdrop, snap.Bubble)
	}
	return nil
}

func (r *RecordingRenderer) DrawLine(ctx context.Context, line Line) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, line)
	return nil
}

func (r *RecordingRenderer) Stamp(ctx context.Context, snap Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stamps = append(r.stamps, snap)
	return nil
}

// ClearPen drops recorded lines and stamps.
func (r *RecordingRenderer) ClearPen(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = nil
	r.stamps = nil
	r.clears++
	return nil
}

// Latest returns the last snapshot rendered for id.
func (r *RecordingRenderer) Latest(id string) (Snapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.latest[id]
	return s, ok
}

// Frames returns the number of Render calls.
func (r *RecordingRenderer) Frames() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.frames)
}

// Lines returns a copy of the pen lines drawn since the last clear.
func (r *RecordingRenderer) Lines() []Line {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Line(nil), r.lines...)
}

// Stamps returns the number of stamps since the last clear.
func (r *RecordingRenderer) Stamps() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.stamps)
}

// Clears returns how often the pen layer was cleared.
func (r *RecordingRenderer) Clears() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.clears
}

var _ Renderer = (*RecordingRenderer)(nil)
