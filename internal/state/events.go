package state

import "time"

// EventType identifies what changed on a job.
type EventType string

const (
	// EventStatusChanged fires on every status transition
	EventStatusChanged EventType = "status_changed"
	// EventProgress fires on progress/message updates
	EventProgress EventType = "progress"
)

// Event describes a single job change.
type Event struct {
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data,omitempty"`
}

// Listener receives job change notifications together with the snapshot taken
// at the moment of the change.
type Listener interface {
	OnJobEvent(snapshot Snapshot, event Event)
}

// ListenerFunc adapts a function to the Listener interface.
type ListenerFunc func(snapshot Snapshot, event Event)

// OnJobEvent implements Listener.
func (f ListenerFunc) OnJobEvent(snapshot Snapshot, event Event) {
	f(snapshot, event)
}

// Subscribe registers a listener for subsequent job changes.
func (j *Job) Subscribe(l Listener) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.listeners = append(j.listeners, l)
}

// emit runs outside the job lock so listeners can read the job freely.
func emit(listeners []Listener, snap Snapshot, event Event) {
	for _, l := range listeners {
		l.OnJobEvent(snap, event)
	}
}
