// Package project reads a YAML project descriptor and builds a runnable
// program from it.
package project

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/benbjohnson/clock"
	"gopkg.in/yaml.v3"

	"github.com/tomas-wrobel/scrap-engine-sub002/internal/core"
	"github.com/tomas-wrobel/scrap-engine-sub002/internal/host"
	"github.com/tomas-wrobel/scrap-engine-sub002/internal/program"
	"github.com/tomas-wrobel/scrap-engine-sub002/internal/sprite"
	"github.com/tomas-wrobel/scrap-engine-sub002/internal/stage"
)

// Duration is a time.Duration written as "500ms" or a number of seconds.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var secs float64
	if err := value.Decode(&secs); err == nil {
		*d = Duration(secs * float64(time.Second))
		return nil
	}
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("line %d: invalid duration %q", value.Line, value.Value)
	}
	*d = Duration(parsed)
	return nil
}

// Sound is a sound asset with its playback length.
type Sound struct {
	Name     string   `yaml:"name"`
	Duration Duration `yaml:"duration"`
}

// Variable declares an entity variable.
type Variable struct {
	Name    string      `yaml:"name"`
	Types   []string    `yaml:"types"`
	Value   interface{} `yaml:"value"`
	Visible bool        `yaml:"visible"`
}

// Script is a trigger and the blocks it runs.
type Script struct {
	When string  `yaml:"when"`
	Do   []Block `yaml:"do"`
}

// Stage describes the stage section.
type Stage struct {
	Name      string     `yaml:"name"`
	Backdrops []string   `yaml:"backdrops"`
	Sounds    []Sound    `yaml:"sounds"`
	Variables []Variable `yaml:"variables"`
	Scripts   []Script   `yaml:"scripts"`
}

// Sprite describes one sprite.
type Sprite struct {
	Name      string     `yaml:"name"`
	X         float64    `yaml:"x"`
	Y         float64    `yaml:"y"`
	Direction float64    `yaml:"direction"`
	Size      float64    `yaml:"size"`
	Hidden    bool       `yaml:"hidden"`
	Costumes  []string   `yaml:"costumes"`
	Sounds    []Sound    `yaml:"sounds"`
	Variables []Variable `yaml:"variables"`
	Scripts   []Script   `yaml:"scripts"`
}

// Project is the root of a descriptor.
type Project struct {
	Name    string   `yaml:"name"`
	Pace    Duration `yaml:"pace"`
	Turbo   bool     `yaml:"turbo"`
	Stage   Stage    `yaml:"stage"`
	Sprites []Sprite `yaml:"sprites"`
}

// Load decodes and validates a descriptor.
func Load(r io.Reader) (*Project, error) {
	var p Project
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("decode project: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// LoadFile reads a descriptor from path.
func LoadFile(path string) (*Project, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Load(bytes.NewReader(data))
}

// Validate compiles every script once so errors surface before a run.
func (p *Project) Validate() error {
	if _, err := compileAll(p.Stage.Scripts, core.KindStage); err != nil {
		return fmt.Errorf("stage: %w", err)
	}
	seen := make(map[string]bool)
	for _, s := range p.Sprites {
		if s.Name == "" {
			return fmt.Errorf("sprite without a name")
		}
		if seen[s.Name] {
			return fmt.Errorf("duplicate sprite %q", s.Name)
		}
		seen[s.Name] = true
		if _, err := compileAll(s.Scripts, core.KindSprite); err != nil {
			return fmt.Errorf("sprite %s: %w", s.Name, err)
		}
	}
	return nil
}

// Catalog returns the assets of the project as a loader and audio player.
func (p *Project) Catalog(clk clock.Clock) *host.Catalog {
	c := host.NewCatalog(clk)
	for _, b := range p.Stage.Backdrops {
		c.Add(host.AssetBackdrop, b, 0)
	}
	for _, snd := range p.Stage.Sounds {
		c.Add(host.AssetSound, snd.Name, time.Duration(snd.Duration))
	}
	for _, s := range p.Sprites {
		for _, cos := range s.Costumes {
			c.Add(host.AssetCostume, cos, 0)
		}
		for _, snd := range s.Sounds {
			c.Add(host.AssetSound, snd.Name, time.Duration(snd.Duration))
		}
	}
	return c
}

func soundNames(sounds []Sound) []string {
	out := make([]string, 0, len(sounds))
	for _, s := range sounds {
		out = append(out, s.Name)
	}
	return out
}

// Build returns a program running the project. Pace and turbo of the
// project apply when cfg leaves them unset.
func (p *Project) Build(cfg program.Config) (*program.Program, error) {
	if cfg.Pace == 0 {
		cfg.Pace = time.Duration(p.Pace)
	}
	cfg.Turbo = cfg.Turbo || p.Turbo

	stageScripts, err := compileAll(p.Stage.Scripts, core.KindStage)
	if err != nil {
		return nil, fmt.Errorf("stage: %w", err)
	}
	vars := p.Stage.Variables
	st := program.StageSpec{
		Name:      p.Stage.Name,
		Backdrops: p.Stage.Backdrops,
		Sounds:    soundNames(p.Stage.Sounds),
		Init: func(s *stage.Stage) error {
			return install(&target{e: s.Entity, st: s}, vars, stageScripts)
		},
	}

	specs := make([]program.SpriteSpec, 0, len(p.Sprites))
	for _, sp := range p.Sprites {
		scripts, err := compileAll(sp.Scripts, core.KindSprite)
		if err != nil {
			return nil, fmt.Errorf("sprite %s: %w", sp.Name, err)
		}
		vars := sp.Variables
		specs = append(specs, program.SpriteSpec{
			Name: sp.Name,
			Options: sprite.Options{
				Costumes:  sp.Costumes,
				Sounds:    soundNames(sp.Sounds),
				X:         sp.X,
				Y:         sp.Y,
				Direction: sp.Direction,
				Size:      sp.Size,
				Hidden:    sp.Hidden,
			},
			Init: func(s *sprite.Sprite) error {
				return install(&target{e: s.Entity, sp: s}, vars, scripts)
			},
		})
	}
	return program.New(cfg, st, specs...)
}
