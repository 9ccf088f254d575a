package entity

import (
	"context"
	"fmt"
	"sort"

	"github.com/tomas-wrobel/scrap-engine-sub002/internal/blackboard"
	"github.com/tomas-wrobel/scrap-engine-sub002/internal/core"
)

// VariableType is one of the value shapes a variable may hold.
type VariableType int

const (
	TypeNumber VariableType = iota
	TypeString
	TypeBoolean
	TypeList
)

func (t VariableType) String() string {
	switch t {
	case TypeNumber:
		return "number"
	case TypeString:
		return "string"
	case TypeBoolean:
		return "boolean"
	case TypeList:
		return "list"
	}
	return "unknown"
}

// ParseVariableType maps a type name to a VariableType.
func ParseVariableType(s string) (VariableType, error) {
	switch s {
	case "number":
		return TypeNumber, nil
	case "string":
		return TypeString, nil
	case "boolean":
		return TypeBoolean, nil
	case "list":
		return TypeList, nil
	}
	return 0, fmt.Errorf("%w: %q", core.ErrInvalidVariableType, s)
}

// Default is the value a fresh variable of this type holds.
func (t VariableType) Default() interface{} {
	switch t {
	case TypeString:
		return ""
	case TypeBoolean:
		return false
	case TypeList:
		return []interface{}{}
	}
	return 0.0
}

// normalize returns v in the canonical representation of t. Numbers are
// stored as float64 and lists are copied.
func (t VariableType) normalize(v interface{}) (interface{}, bool) {
	switch t {
	case TypeNumber:
		return toFloat(v)
	case TypeString:
		s, ok := v.(string)
		return s, ok
	case TypeBoolean:
		b, ok := v.(bool)
		return b, ok
	case TypeList:
		l, ok := v.([]interface{})
		if !ok {
			return nil, false
		}
		return append([]interface{}{}, l...), true
	}
	return nil, false
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}

// Variable is a typed, possibly visible, value of an entity.
type Variable struct {
	Value   interface{}
	Visible bool
	Types   []VariableType
}

// accept returns v normalized for the first declared type it satisfies.
func (v *Variable) accept(value interface{}) (interface{}, bool) {
	for _, t := range v.Types {
		if n, ok := t.normalize(value); ok {
			return n, true
		}
	}
	return nil, false
}

func (v *Variable) numeric() bool {
	for _, t := range v.Types {
		if t == TypeNumber {
			return true
		}
	}
	return false
}

// DeclareVariable creates or overwrites a variable holding the default of
// its first type.
func (e *Entity) DeclareVariable(name string, types ...VariableType) error {
	if len(types) == 0 {
		return fmt.Errorf("%w: variable %q declares no type", core.ErrInvalidVariableType, name)
	}
	e.mu.Lock()
	if _, ok := e.variables[name]; !ok {
		e.order = append(e.order, name)
	}
	v := &Variable{Value: types[0].Default(), Types: append([]VariableType(nil), types...)}
	e.variables[name] = v
	value, visible := v.Value, v.Visible
	seq := e.nextSeq(name)
	e.mu.Unlock()
	e.publishVariable(name, seq, value, visible)
	return nil
}

func (e *Entity) lookup(name string) (*Variable, error) {
	v, ok := e.variables[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s", core.ErrUnknownVariable, e.name, name)
	}
	return v, nil
}

// SetVariable writes value when it satisfies one of the declared types.
// A violating write fails before anything changes.
func (e *Entity) SetVariable(name string, value interface{}) error {
	e.mu.Lock()
	v, err := e.lookup(name)
	if err != nil {
		e.mu.Unlock()
		return err
	}
	n, ok := v.accept(value)
	if !ok {
		e.mu.Unlock()
		return fmt.Errorf("%w: %T for %s.%s", core.ErrInvalidVariableType, value, e.name, name)
	}
	v.Value = n
	visible := v.Visible
	seq := e.nextSeq(name)
	e.mu.Unlock()
	e.publishVariable(name, seq, n, visible)
	return nil
}

// ChangeVariable adds delta to a numeric variable.
func (e *Entity) ChangeVariable(name string, delta float64) error {
	e.mu.Lock()
	v, err := e.lookup(name)
	if err != nil {
		e.mu.Unlock()
		return err
	}
	cur, ok := v.Value.(float64)
	if !v.numeric() || !ok {
		e.mu.Unlock()
		return fmt.Errorf("%w: %s.%s", core.ErrNotIncrementable, e.name, name)
	}
	v.Value = cur + delta
	value, visible := v.Value, v.Visible
	seq := e.nextSeq(name)
	e.mu.Unlock()
	e.publishVariable(name, seq, value, visible)
	return nil
}

// Variable returns the current value. Lists are returned as a copy.
func (e *Entity) Variable(name string) (interface{}, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	v, err := e.lookup(name)
	if err != nil {
		return nil, err
	}
	if l, ok := v.Value.([]interface{}); ok {
		return append([]interface{}{}, l...), nil
	}
	return v.Value, nil
}

// Variables returns the declared names in declaration order.
func (e *Entity) Variables() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.order...)
}

func (e *Entity) ShowVariable(name string) error { return e.setVisible(name, true) }
func (e *Entity) HideVariable(name string) error { return e.setVisible(name, false) }

func (e *Entity) setVisible(name string, visible bool) error {
	e.mu.Lock()
	v, err := e.lookup(name)
	if err != nil {
		e.mu.Unlock()
		return err
	}
	v.Visible = visible
	value := v.Value
	seq := e.nextSeq(name)
	e.mu.Unlock()
	e.publishVariable(name, seq, value, visible)
	e.Render()
	return nil
}

// AddToList appends item to a list variable.
func (e *Entity) AddToList(name string, item interface{}) error {
	e.mu.Lock()
	v, err := e.lookup(name)
	if err != nil {
		e.mu.Unlock()
		return err
	}
	l, ok := v.Value.([]interface{})
	if !ok {
		e.mu.Unlock()
		return fmt.Errorf("%w: %s.%s is not a list", core.ErrInvalidVariableType, e.name, name)
	}
	l = append(l, item)
	v.Value = l
	value, visible := append([]interface{}{}, l...), v.Visible
	seq := e.nextSeq(name)
	e.mu.Unlock()
	e.publishVariable(name, seq, value, visible)
	return nil
}

// ItemOfList returns the item at a 1-based index.
func (e *Entity) ItemOfList(name string, index int) (interface{}, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	v, err := e.lookup(name)
	if err != nil {
		return nil, err
	}
	l, ok := v.Value.([]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s is not a list", core.ErrInvalidVariableType, e.name, name)
	}
	if index < 1 || index > len(l) {
		return nil, fmt.Errorf("%s.%s: index %d out of range [1, %d]", e.name, name, index, len(l))
	}
	return l[index-1], nil
}

// LengthOfList returns the number of items of a list variable.
func (e *Entity) LengthOfList(name string) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	v, err := e.lookup(name)
	if err != nil {
		return 0, err
	}
	l, ok := v.Value.([]interface{})
	if !ok {
		return 0, fmt.Errorf("%w: %s.%s is not a list", core.ErrInvalidVariableType, e.name, name)
	}
	return len(l), nil
}

// nextSeq numbers a write of name. Callers hold e.mu.
func (e *Entity) nextSeq(name string) uint64 {
	e.seq[name]++
	return e.seq[name]
}

// variableUpdates snapshots every variable with the sequence of its last
// write. Callers hold e.pubMu.
func (e *Entity) variableUpdates() ([]core.VariableUpdate, map[string]uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	names := append([]string(nil), e.order...)
	sort.Strings(names)
	out := make([]core.VariableUpdate, 0, len(names))
	seqs := make(map[string]uint64, len(names))
	for _, n := range names {
		v := e.variables[n]
		out = append(out, core.VariableUpdate{Key: blackboard.Key(e.name, n), Value: v.Value, Visible: v.Visible})
		seqs[n] = e.seq[n]
	}
	return out, seqs
}

// publishVariable mirrors a write into the monitor store once the entity
// started. Writes reach the store in sequence order; one overtaken by a
// newer write of the same variable is dropped. Earlier writes are seeded
// together by Start.
func (e *Entity) publishVariable(name string, seq uint64, value interface{}, visible bool) {
	if e.env.Monitor == nil {
		return
	}
	e.pubMu.Lock()
	defer e.pubMu.Unlock()
	if !e.live.Load() || seq <= e.published[name] {
		return
	}
	e.published[name] = seq
	if _, err := e.env.Monitor.Put(context.Background(), blackboard.Key(e.name, name), value, visible); err != nil {
		e.logger.Printf("%s: monitor %s: %v", e.name, name, err)
	}
}
