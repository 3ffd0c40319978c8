package scxmlgo

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// InternalState is the mutable execution record carried through a run
// (spec.md §3 "InternalState"). It is single-owner mutable during execute;
// the History Ledger snapshots it on demand.
//
// data is stored as a JSON document (via encoding/json into a raw buffer)
// so dotted-path reads/writes can use gjson/sjson rather than hand-rolled
// map-of-maps traversal — the same approach the pack's agent-markup and
// mammoth-adjacent code uses for nested key access.
type InternalState struct {
	Name      string
	SessionID string
	Event     *Event
	Datamodel Datamodel

	raw                   []byte // JSON object document backing `data`
	pendingInternalEvents []Event
}

// NewInternalState creates an empty InternalState for a fresh session.
func NewInternalState(name string, dm Datamodel) *InternalState {
	return &InternalState{
		Name:      name,
		SessionID: NewID(),
		Datamodel: dm,
		raw:       []byte(`{}`),
	}
}

// Get reads data.<location> via a dotted gjson path. Returns (nil, false)
// if the location is absent.
func (s *InternalState) Get(location string) (any, bool) {
	r := gjson.GetBytes(s.raw, location)
	if !r.Exists() {
		return nil, false
	}
	return r.Value(), true
}

// Set writes value at data.<location>, creating intermediate objects as
// needed (spec.md §4.4 Assign: "writes to data.<location> via dotted-path
// set").
func (s *InternalState) Set(location string, value any) error {
	out, err := sjson.SetBytes(s.raw, location, value)
	if err != nil {
		return fmt.Errorf("scxmlgo: assign %q: %w", location, err)
	}
	s.raw = out
	return nil
}

// SetRaw writes a pre-serialized JSON value at data.<location>, used when
// Assign content is inline XML/text already shaped as JSON.
func (s *InternalState) SetRaw(location string, rawJSON []byte) error {
	out, err := sjson.SetRawBytes(s.raw, location, rawJSON)
	if err != nil {
		return fmt.Errorf("scxmlgo: assign (raw) %q: %w", location, err)
	}
	s.raw = out
	return nil
}

// Delete removes data.<location> entirely (Assign clear=true).
func (s *InternalState) Delete(location string) error {
	out, err := sjson.DeleteBytes(s.raw, location)
	if err != nil {
		return fmt.Errorf("scxmlgo: delete %q: %w", location, err)
	}
	s.raw = out
	return nil
}

// Snapshot returns a deep copy of the data document as a generic map, for
// scope building (expression evaluation) and history entries.
func (s *InternalState) Snapshot() map[string]any {
	var m map[string]any
	if err := json.Unmarshal(s.raw, &m); err != nil || m == nil {
		return map[string]any{}
	}
	return m
}

// RawJSON returns the backing JSON document bytes (used by persistence).
func (s *InternalState) RawJSON() []byte {
	out := make([]byte, len(s.raw))
	copy(out, s.raw)
	return out
}

// LoadRawJSON replaces the backing JSON document wholesale (used on
// persistence restore).
func (s *InternalState) LoadRawJSON(raw []byte) {
	if len(raw) == 0 {
		raw = []byte(`{}`)
	}
	s.raw = append([]byte(nil), raw...)
}

// PushPendingInternal appends an event produced by executable content
// during the current microstep; drained into the internal queue only at
// the microstep boundary (spec.md §4.1 step "Drain _pendingInternalEvents",
// §5 ordering law (e)).
func (s *InternalState) PushPendingInternal(e Event) {
	s.pendingInternalEvents = append(s.pendingInternalEvents, e)
}

// DrainPendingInternal removes and returns all pending internal events.
func (s *InternalState) DrainPendingInternal() []Event {
	out := s.pendingInternalEvents
	s.pendingInternalEvents = nil
	return out
}

// scope builds the {state, _event} evaluation scope spec.md §4.2 requires
// for cond/expr evaluation.
func (s *InternalState) scope() map[string]any {
	scope := map[string]any{"state": s.Snapshot()}
	if s.Event != nil {
		scope["_event"] = map[string]any{
			"name": s.Event.Name,
			"type": string(s.Event.Type),
			"data": s.Event.Data,
		}
	} else {
		scope["_event"] = nil
	}
	return scope
}
