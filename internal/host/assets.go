package host

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/tomas-wrobel/scrap-engine-sub002/internal/core"
)

// Catalog is an AssetLoader and AudioPlayer over a fixed set of known
// assets. Sounds play for their declared duration on the catalog clock.
type Catalog struct {
	clock clock.Clock

	mu     sync.Mutex
	assets map[AssetKind]map[string]time.Duration
	loaded map[string]bool
}

// NewCatalog returns an empty catalog using clk, or the wall clock when nil.
func NewCatalog(clk clock.Clock) *Catalog {
	if clk == nil {
		clk = clock.New()
	}
	return &Catalog{
		clock:  clk,
		assets: make(map[AssetKind]map[string]time.Duration),
		loaded: make(map[string]bool),
	}
}

// Add registers an asset. d is the playback length of a sound.
func (c *Catalog) Add(kind AssetKind, id string, d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.assets[kind]
	if !ok {
		m = make(map[string]time.Duration)
		c.assets[kind] = m
	}
	m[id] = d
}

func (c *Catalog) lookup(kind AssetKind, id string) (time.Duration, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	d, ok := c.assets[kind][id]
	return d, ok
}

// Load fails with ErrAsset for unknown assets.
func (c *Catalog) Load(ctx context.Context, kind AssetKind, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, ok := c.lookup(kind, id); !ok {
		return fmt.Errorf("%w: %s %q not found", core.ErrAsset, kind, id)
	}
	c.mu.Lock()
	c.loaded[string(kind)+"/"+id] = true
	c.mu.Unlock()
	return nil
}

// Loaded reports whether an asset was loaded.
func (c *Catalog) Loaded(kind AssetKind, id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loaded[string(kind)+"/"+id]
}

// Play starts a sound that ends after its declared duration or on Stop.
func (c *Catalog) Play(ctx context.Context, sound string, volume float64) (Playback, error) {
	d, ok := c.lookup(AssetSound, sound)
	if !ok {
		return nil, fmt.Errorf("%w: sound %q not found", core.ErrAsset, sound)
	}
	p := &timedPlayback{done: make(chan struct{})}
	t := c.clock.AfterFunc(d, p.finish)
	p.mu.Lock()
	p.timer = t
	p.mu.Unlock()
	return p, nil
}

type timedPlayback struct {
	mu    sync.Mutex
	timer *clock.Timer
	once  sync.Once
	done  chan struct{}
}

func (p *timedPlayback) Done() <-chan struct{} { return p.done }

func (p *timedPlayback) finish() {
	p.once.Do(func() { close(p.done) })
}

// Stop ends the sound early.
func (p *timedPlayback) Stop() {
	p.mu.Lock()
	t := p.timer
	p.mu.Unlock()
	if t != nil {
		t.Stop()
	}
	p.finish()
}

var (
	_ AssetLoader = (*Catalog)(nil)
	_ AudioPlayer = (*Catalog)(nil)
)
