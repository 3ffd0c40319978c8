package scxmlgo

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType distinguishes where an Event originated, per spec.md §3.
type EventType string

const (
	EventInternal EventType = "internal"
	EventExternal EventType = "external"
	EventPlatform EventType = "platform"
)

// Event is an SCXML event as defined by spec.md §3 and §6.
type Event struct {
	Name       string         `json:"name"`
	Type       EventType      `json:"type"`
	SendID     string         `json:"sendid,omitempty"`
	Origin     string         `json:"origin,omitempty"`
	OriginType string         `json:"origintype,omitempty"`
	InvokeID   string         `json:"invokeid,omitempty"`
	Data       map[string]any `json:"data,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
}

// NewEvent constructs an Event of the given type, stamping a current
// timestamp. Data defaults to an empty map so downstream dotted-path
// lookups never nil-panic.
func NewEvent(name string, typ EventType, data map[string]any) Event {
	if data == nil {
		data = map[string]any{}
	}
	return Event{Name: name, Type: typ, Data: data, Timestamp: time.Now()}
}

// NewID generates a fresh random identifier, used for default sendids and
// session IDs (spec.md §4.4 Send: "send_<ts>_<rand>" convention,
// generalized here to a UUID for global uniqueness across sessions).
func NewID() string {
	return uuid.NewString()
}

// eventQueue is a simple thread-safe FIFO used for both the internal and
// external queues (spec.md §3 "Active configuration", §5 ordering law (d)).
type eventQueue struct {
	mu    sync.Mutex
	items []Event
}

func (q *eventQueue) push(e Event) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, e)
}

func (q *eventQueue) pop() (Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return Event{}, false
	}
	e := q.items[0]
	q.items = q.items[1:]
	return e, true
}

func (q *eventQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *eventQueue) drain() []Event {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.items
	q.items = nil
	return out
}

// snapshot returns a defensive copy, used by persistence (spec.md §6).
func (q *eventQueue) snapshot() []Event {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Event, len(q.items))
	copy(out, q.items)
	return out
}

// restore replaces the queue contents wholesale, used on deserialize.
func (q *eventQueue) restore(events []Event) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append([]Event(nil), events...)
}
