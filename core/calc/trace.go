package calc

import (
	"bytes"
	"encoding/json"
)

// Trace is the ordered record of every named intermediate value a
// calculation produced. Entries are write-once: a name can never be
// overwritten within one calculation, so the first write wins.
type Trace struct {
	names  []string
	values map[string]any
}

// NewTrace creates an empty trace.
func NewTrace() *Trace {
	return &Trace{values: make(map[string]any)}
}

// Put records a named value. Subsequent writes to the same name are
// ignored.
func (t *Trace) Put(name string, value any) {
	if _, exists := t.values[name]; exists {
		return
	}
	t.names = append(t.names, name)
	t.values[name] = value
}

// Get returns a recorded value.
func (t *Trace) Get(name string) (any, bool) {
	v, ok := t.values[name]
	return v, ok
}

// Names returns the recorded names in insertion order.
func (t *Trace) Names() []string {
	out := make([]string, len(t.names))
	copy(out, t.names)
	return out
}

// Map returns a copy of the trace for audit snapshots, keyed by name.
func (t *Trace) Map() map[string]any {
	out := make(map[string]any, len(t.values))
	for k, v := range t.values {
		out[k] = v
	}
	return out
}

// Len returns the number of recorded entries.
func (t *Trace) Len() int { return len(t.names) }

// Output is one named calculation result. Value may itself be an
// Outputs list to represent grouped line-item results.
type Output struct {
	Name        string
	Passthrough bool
	Value       any
}

// Outputs is an ordered list of calculation results. It marshals to a
// JSON object whose keys appear in list order.
type Outputs []Output

// Get returns the value for a named entry.
func (o Outputs) Get(name string) (any, bool) {
	for _, e := range o {
		if e.Name == name {
			return e.Value, true
		}
	}
	return nil, false
}

// MarshalJSON renders the outputs as an object preserving entry order.
func (o Outputs) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range o {
		if i > 0 {
			buf.WriteByte(',')
		}
		name, err := json.Marshal(e.Name)
		if err != nil {
			return nil, err
		}
		buf.Write(name)
		buf.WriteByte(':')
		value, err := json.Marshal(e.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
