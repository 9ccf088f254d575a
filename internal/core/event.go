package core

import "time"

// Event is the envelope carried by the message bus between entities.
type Event struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"`
	Source    string                 `json:"source"`
	Timestamp time.Time              `json:"timestamp"`
	Payload   map[string]interface{} `json:"payload"`
}

// Field returns a payload entry as a string, or "" when missing.
func (e Event) Field(key string) string {
	s, _ := e.Payload[key].(string)
	return s
}

// VariableUpdate is emitted by the monitor store when a watched variable changes.
type VariableUpdate struct {
	Key     string      `json:"key"`
	Value   interface{} `json:"value"`
	Visible bool        `json:"visible"`
}
