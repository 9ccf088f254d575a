package project

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/tomas-wrobel/scrap-engine-sub002/internal/control"
	"github.com/tomas-wrobel/scrap-engine-sub002/internal/core"
	"github.com/tomas-wrobel/scrap-engine-sub002/internal/entity"
	"github.com/tomas-wrobel/scrap-engine-sub002/internal/sprite"
	"github.com/tomas-wrobel/scrap-engine-sub002/internal/stage"
)

// Block is one step of a script: a single-key map from operation to its
// argument, or a bare operation name.
type Block struct {
	Op   string
	Arg  *yaml.Node
	Line int
}

func (b *Block) UnmarshalYAML(value *yaml.Node) error {
	b.Line = value.Line
	switch value.Kind {
	case yaml.ScalarNode:
		b.Op = value.Value
		return nil
	case yaml.MappingNode:
		if len(value.Content) != 2 {
			return fmt.Errorf("line %d: a block has exactly one operation", value.Line)
		}
		b.Op = value.Content[0].Value
		b.Arg = value.Content[1]
		return nil
	}
	return fmt.Errorf("line %d: invalid block", value.Line)
}

// target is the entity a compiled script runs on. sp or st is set by kind.
type target struct {
	e  *entity.Entity
	sp *sprite.Sprite
	st *stage.Stage
}

type step func(t *target) error

type compiled struct {
	trigger string
	arg     string
	body    step
}

type compiler func(arg *yaml.Node, kind core.Kind) (step, error)

type opSpec struct {
	kind    core.Kind
	compile compiler
}

// ops is filled by init because loop blocks compile nested block lists.
var ops map[string]opSpec

func compileAll(scripts []Script, kind core.Kind) ([]compiled, error) {
	out := make([]compiled, 0, len(scripts))
	for _, s := range scripts {
		trigger, arg, _ := strings.Cut(s.When, ":")
		switch trigger {
		case entity.EventFlag, entity.EventClick:
		case entity.EventKey, "message", "backdrop":
			if arg == "" {
				return nil, fmt.Errorf("trigger %q needs an argument", s.When)
			}
		case "timer":
			if _, err := strconv.ParseFloat(arg, 64); err != nil {
				return nil, fmt.Errorf("trigger %q: invalid seconds", s.When)
			}
		default:
			return nil, fmt.Errorf("unknown trigger %q", s.When)
		}
		body, err := compileBlocks(s.Do, kind)
		if err != nil {
			return nil, err
		}
		out = append(out, compiled{trigger: trigger, arg: arg, body: body})
	}
	return out, nil
}

func compileBlocks(blocks []Block, kind core.Kind) (step, error) {
	steps := make([]step, 0, len(blocks))
	for _, b := range blocks {
		spec, ok := ops[b.Op]
		if !ok {
			return nil, fmt.Errorf("line %d: unknown block %q", b.Line, b.Op)
		}
		if spec.kind != "" && spec.kind != kind {
			return nil, fmt.Errorf("line %d: %q is a %s block", b.Line, b.Op, spec.kind)
		}
		s, err := spec.compile(b.Arg, kind)
		if err != nil {
			return nil, fmt.Errorf("line %d: %s: %w", b.Line, b.Op, err)
		}
		steps = append(steps, s)
	}
	return func(t *target) error {
		for _, s := range steps {
			if err := s(t); err != nil {
				return err
			}
		}
		return nil
	}, nil
}

// install declares the variables of t and registers its scripts.
func install(t *target, vars []Variable, scripts []compiled) error {
	for _, v := range vars {
		types := make([]entity.VariableType, 0, len(v.Types))
		for _, name := range v.Types {
			vt, err := entity.ParseVariableType(name)
			if err != nil {
				return err
			}
			types = append(types, vt)
		}
		if len(types) == 0 {
			types = append(types, entity.TypeNumber)
		}
		if err := t.e.DeclareVariable(v.Name, types...); err != nil {
			return err
		}
		if v.Value != nil {
			if err := t.e.SetVariable(v.Name, v.Value); err != nil {
				return err
			}
		}
		if v.Visible {
			if err := t.e.ShowVariable(v.Name); err != nil {
				return err
			}
		}
	}
	for _, c := range scripts {
		body := c.body
		script := func(ctx context.Context) error { return body(t) }
		var err error
		switch c.trigger {
		case entity.EventFlag:
			t.e.WhenFlagClicked(script)
		case entity.EventClick:
			t.e.WhenClicked(script)
		case entity.EventKey:
			t.e.WhenKeyPressed(c.arg, script)
		case "message":
			err = t.e.WhenReceiveMessage(c.arg, script)
		case "backdrop":
			err = t.e.WhenBackdropSwitchesTo(c.arg, script)
		case "timer":
			secs, _ := strconv.ParseFloat(c.arg, 64)
			t.e.WhenTimerElapsed(secs, script)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func number(arg *yaml.Node) (float64, error) {
	var f float64
	if arg == nil {
		return 0, fmt.Errorf("missing number")
	}
	if err := arg.Decode(&f); err != nil {
		return 0, fmt.Errorf("expected a number, got %q", arg.Value)
	}
	return f, nil
}

func text(arg *yaml.Node) (string, error) {
	if arg == nil || arg.Kind != yaml.ScalarNode {
		return "", fmt.Errorf("expected a string")
	}
	return arg.Value, nil
}

func decode(arg *yaml.Node, v interface{}) error {
	if arg == nil {
		return fmt.Errorf("missing arguments")
	}
	return arg.Decode(v)
}

// Argument-less blocks.
func bare(fn func(t *target) error) compiler {
	return func(arg *yaml.Node, kind core.Kind) (step, error) { return fn, nil }
}

func withNumber(fn func(t *target, n float64) error) compiler {
	return func(arg *yaml.Node, kind core.Kind) (step, error) {
		n, err := number(arg)
		if err != nil {
			return nil, err
		}
		return func(t *target) error { return fn(t, n) }, nil
	}
}

func withText(fn func(t *target, s string) error) compiler {
	return func(arg *yaml.Node, kind core.Kind) (step, error) {
		s, err := text(arg)
		if err != nil {
			return nil, err
		}
		return func(t *target) error { return fn(t, s) }, nil
	}
}

// condition is "variable equals value", compared by printed form.
type condition struct {
	Var    string      `yaml:"var"`
	Equals interface{} `yaml:"equals"`
}

func (c condition) holds(t *target) bool {
	v, err := t.e.Variable(c.Var)
	if err != nil {
		return false
	}
	return fmt.Sprint(v) == fmt.Sprint(c.Equals)
}

func init() {
	ops = map[string]opSpec{
		// Control.
		"wait": {compile: withNumber(func(t *target, n float64) error { return t.e.Wait(n) })},
		"stop_all": {compile: bare(func(t *target) error { return t.e.StopAll() })},
		"repeat": {compile: func(arg *yaml.Node, kind core.Kind) (step, error) {
			var a struct {
				Times float64 `yaml:"times"`
				Do    []Block `yaml:"do"`
			}
			if err := decode(arg, &a); err != nil {
				return nil, err
			}
			return loop(a.Do, kind, func(t *target, body control.Body) error {
				return control.Repeat(t.e.Runner(), int(a.Times), body)
			})
		}},
		"forever": {compile: func(arg *yaml.Node, kind core.Kind) (step, error) {
			var blocks []Block
			if err := decode(arg, &blocks); err != nil {
				return nil, err
			}
			return loop(blocks, kind, func(t *target, body control.Body) error {
				return control.Forever(t.e.Runner(), body)
			})
		}},
		"repeat_until": {compile: func(arg *yaml.Node, kind core.Kind) (step, error) {
			var a struct {
				condition `yaml:",inline"`
				Do        []Block `yaml:"do"`
			}
			if err := decode(arg, &a); err != nil {
				return nil, err
			}
			cond := a.condition
			return loop(a.Do, kind, func(t *target, body control.Body) error {
				return control.RepeatUntil(t.e.Runner(), func() bool { return cond.holds(t) }, body)
			})
		}},
		"wait_until": {compile: func(arg *yaml.Node, kind core.Kind) (step, error) {
			var cond condition
			if err := decode(arg, &cond); err != nil {
				return nil, err
			}
			return func(t *target) error {
				return control.WaitUntil(t.e.Runner(), func() bool { return cond.holds(t) })
			}, nil
		}},
		"if": {compile: func(arg *yaml.Node, kind core.Kind) (step, error) {
			var a struct {
				condition `yaml:",inline"`
				Then      []Block `yaml:"then"`
				Else      []Block `yaml:"else"`
			}
			if err := decode(arg, &a); err != nil {
				return nil, err
			}
			return branch(a.condition, a.Then, a.Else, kind)
		}},

		// Variables.
		"set": {compile: func(arg *yaml.Node, kind core.Kind) (step, error) {
			var a struct {
				Var   string      `yaml:"var"`
				Value interface{} `yaml:"value"`
			}
			if err := decode(arg, &a); err != nil {
				return nil, err
			}
			return func(t *target) error { return t.e.SetVariable(a.Var, a.Value) }, nil
		}},
		"change": {compile: func(arg *yaml.Node, kind core.Kind) (step, error) {
			var a struct {
				Var string  `yaml:"var"`
				By  float64 `yaml:"by"`
			}
			if err := decode(arg, &a); err != nil {
				return nil, err
			}
			return func(t *target) error { return t.e.ChangeVariable(a.Var, a.By) }, nil
		}},
		"add_to_list": {compile: func(arg *yaml.Node, kind core.Kind) (step, error) {
			var a struct {
				List string      `yaml:"list"`
				Item interface{} `yaml:"item"`
			}
			if err := decode(arg, &a); err != nil {
				return nil, err
			}
			return func(t *target) error { return t.e.AddToList(a.List, a.Item) }, nil
		}},
		"show_variable": {compile: withText(func(t *target, s string) error { return t.e.ShowVariable(s) })},
		"hide_variable": {compile: withText(func(t *target, s string) error { return t.e.HideVariable(s) })},

		// Events.
		"broadcast":          {compile: withText(func(t *target, s string) error { return t.e.BroadcastMessage(s) })},
		"broadcast_and_wait": {compile: withText(func(t *target, s string) error { return t.e.BroadcastMessageWait(s) })},
		"reset_timer":        {compile: bare(func(t *target) error { t.e.ResetTimer(); return nil })},

		// Sound.
		"play_sound":            {compile: withText(func(t *target, s string) error { return t.e.PlaySound(s) })},
		"play_sound_until_done": {compile: withText(func(t *target, s string) error { return t.e.PlaySoundUntilDone(s) })},
		"stop_all_sounds":       {compile: bare(func(t *target) error { return t.e.StopAllSounds() })},
		"set_volume":            {compile: withNumber(func(t *target, n float64) error { return t.e.SetVolume(n) })},
		"change_volume":         {compile: withNumber(func(t *target, n float64) error { return t.e.ChangeVolume(n) })},

		// Effects.
		"set_effect":    {compile: effect(func(t *target, fx entity.Effect, v float64) error { return t.e.SetEffect(fx, v) })},
		"change_effect": {compile: effect(func(t *target, fx entity.Effect, v float64) error { return t.e.ChangeEffect(fx, v) })},
		"clear_effects": {compile: bare(func(t *target) error { return t.e.ClearEffects() })},

		// Motion.
		"move":               spriteOp(withNumber(func(t *target, n float64) error { return t.sp.Move(n) })),
		"turn_right":         spriteOp(withNumber(func(t *target, n float64) error { return t.sp.TurnRight(n) })),
		"turn_left":          spriteOp(withNumber(func(t *target, n float64) error { return t.sp.TurnLeft(n) })),
		"point_in_direction": spriteOp(withNumber(func(t *target, n float64) error { return t.sp.PointInDirection(n) })),
		"set_x":              spriteOp(withNumber(func(t *target, n float64) error { return t.sp.SetX(n) })),
		"set_y":              spriteOp(withNumber(func(t *target, n float64) error { return t.sp.SetY(n) })),
		"change_x":           spriteOp(withNumber(func(t *target, n float64) error { return t.sp.ChangeX(n) })),
		"change_y":           spriteOp(withNumber(func(t *target, n float64) error { return t.sp.ChangeY(n) })),
		"go_to": spriteOp(func(arg *yaml.Node, kind core.Kind) (step, error) {
			var a struct{ X, Y float64 }
			if err := decode(arg, &a); err != nil {
				return nil, err
			}
			return func(t *target) error { return t.sp.GoTo(a.X, a.Y) }, nil
		}),
		"glide": spriteOp(func(arg *yaml.Node, kind core.Kind) (step, error) {
			var a struct{ Secs, X, Y float64 }
			if err := decode(arg, &a); err != nil {
				return nil, err
			}
			return func(t *target) error { return t.sp.Glide(a.Secs, a.X, a.Y) }, nil
		}),

		// Looks.
		"show":           spriteOp(bare(func(t *target) error { return t.sp.Show() })),
		"hide":           spriteOp(bare(func(t *target) error { return t.sp.Hide() })),
		"set_size":       spriteOp(withNumber(func(t *target, n float64) error { return t.sp.SetSize(n) })),
		"change_size":    spriteOp(withNumber(func(t *target, n float64) error { return t.sp.ChangeSize(n) })),
		"switch_costume": spriteOp(withText(func(t *target, s string) error { return t.sp.SwitchCostumeTo(s) })),
		"next_costume":   spriteOp(bare(func(t *target) error { return t.sp.NextCostume() })),
		"say":            spriteOp(withText(func(t *target, s string) error { return t.sp.Say(s) })),
		"think":          spriteOp(withText(func(t *target, s string) error { return t.sp.Think(s) })),
		"say_for":        spriteOp(timedText(func(t *target, s string, secs float64) error { return t.sp.SayFor(s, secs) })),
		"think_for":      spriteOp(timedText(func(t *target, s string, secs float64) error { return t.sp.ThinkFor(s, secs) })),

		// Pen.
		"pen_down":      spriteOp(bare(func(t *target) error { return t.sp.PenDown() })),
		"pen_up":        spriteOp(bare(func(t *target) error { return t.sp.PenUp() })),
		"set_pen_color": spriteOp(withText(func(t *target, s string) error { return t.sp.SetPenColor(s) })),
		"set_pen_size":  spriteOp(withNumber(func(t *target, n float64) error { return t.sp.SetPenSize(n) })),
		"stamp":         spriteOp(bare(func(t *target) error { return t.sp.Stamp() })),

		// Stage.
		"switch_backdrop":          stageOp(withText(func(t *target, s string) error { return t.st.SwitchBackdropTo(s) })),
		"switch_backdrop_and_wait": stageOp(withText(func(t *target, s string) error { return t.st.SwitchBackdropToAndWait(s) })),
		"next_backdrop":            stageOp(bare(func(t *target) error { return t.st.NextBackdrop() })),
		"erase_all":                stageOp(bare(func(t *target) error { return t.st.EraseAll() })),
	}
}

func spriteOp(c compiler) opSpec { return opSpec{kind: core.KindSprite, compile: c} }
func stageOp(c compiler) opSpec  { return opSpec{kind: core.KindStage, compile: c} }

// loop compiles a nested block list and hands it to run as a loop body.
func loop(blocks []Block, kind core.Kind, run func(t *target, body control.Body) error) (step, error) {
	inner, err := compileBlocks(blocks, kind)
	if err != nil {
		return nil, err
	}
	return func(t *target) error {
		return run(t, func(ctx context.Context) error { return inner(t) })
	}, nil
}

func branch(cond condition, then, otherwise []Block, kind core.Kind) (step, error) {
	thenStep, err := compileBlocks(then, kind)
	if err != nil {
		return nil, err
	}
	elseStep, err := compileBlocks(otherwise, kind)
	if err != nil {
		return nil, err
	}
	return func(t *target) error {
		if cond.holds(t) {
			return thenStep(t)
		}
		return elseStep(t)
	}, nil
}

func effect(fn func(t *target, fx entity.Effect, v float64) error) compiler {
	return func(arg *yaml.Node, kind core.Kind) (step, error) {
		var a struct {
			Effect string  `yaml:"effect"`
			Value  float64 `yaml:"value"`
		}
		if err := decode(arg, &a); err != nil {
			return nil, err
		}
		fx := entity.Effect(a.Effect)
		var probe entity.Effects
		if _, err := probe.Get(fx); err != nil {
			return nil, err
		}
		return func(t *target) error { return fn(t, fx, a.Value) }, nil
	}
}

func timedText(fn func(t *target, s string, secs float64) error) compiler {
	return func(arg *yaml.Node, kind core.Kind) (step, error) {
		var a struct {
			Text string  `yaml:"text"`
			Secs float64 `yaml:"secs"`
		}
		if err := decode(arg, &a); err != nil {
			return nil, err
		}
		return func(t *target) error { return fn(t, a.Text, a.Secs) }, nil
	}
}
